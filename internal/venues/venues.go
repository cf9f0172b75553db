// Package venues searches a places API (Foursquare v3 response shape) for
// sports venues near a coordinate.
package venues

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"rallyup/backend/internal/domain"
)

const (
	DefaultBaseURL      = "https://api.foursquare.com/v3"
	DefaultRadiusMeters = 10000
	DefaultLimit        = 15
	MaxRadiusMeters     = 100000

	defaultCategory = "Sports Venue"
	defaultAddress  = "No address available"
)

var (
	ErrNotConfigured = errors.New("venue search is not configured")
	ErrUpstream      = errors.New("venue search failed")
)

// Venue is one search result; it is accepted as input to a session draft.
type Venue struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Address        string          `json:"address"`
	Coordinate     domain.GeoPoint `json:"coordinate"`
	Category       string          `json:"category"`
	DistanceMeters int             `json:"distanceMeters"`
}

type SearchParams struct {
	Lat          float64
	Lng          float64
	RadiusMeters int
	// Query is free text; CategoryHint (usually a sport) is used when empty.
	Query        string
	CategoryHint string
	Limit        int
}

// Observer records search outcomes.
type Observer interface {
	ObserveVenueSearch(outcome string, d time.Duration)
}

type Config struct {
	BaseURL string
	APIKey  string
	// RequestsPerSecond bounds outbound calls; zero means 5.
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Observer          Observer
}

type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	limiter *rate.Limiter
	obs     Observer
}

func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		hc:      hc,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		obs:     cfg.Observer,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

func (c *Client) Search(ctx context.Context, p SearchParams) ([]Venue, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return nil, fmt.Errorf("%w: coordinate out of range", domain.ErrBadRequest)
	}
	if p.RadiusMeters <= 0 {
		p.RadiusMeters = DefaultRadiusMeters
	}
	if p.RadiusMeters > MaxRadiusMeters {
		p.RadiusMeters = MaxRadiusMeters
	}
	if p.Limit <= 0 || p.Limit > 50 {
		p.Limit = DefaultLimit
	}
	query := strings.TrimSpace(p.Query)
	if query == "" {
		query = strings.TrimSpace(p.CategoryHint)
	}

	start := time.Now()
	venues, err := c.search(ctx, query, p)
	if c.obs != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		c.obs.ObserveVenueSearch(outcome, time.Since(start))
	}
	return venues, err
}

func (c *Client) search(ctx context.Context, query string, p SearchParams) ([]Venue, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	v := url.Values{}
	if query != "" {
		v.Set("query", query)
	}
	v.Set("ll", strconv.FormatFloat(p.Lat, 'f', -1, 64)+","+strconv.FormatFloat(p.Lng, 'f', -1, 64))
	v.Set("radius", strconv.Itoa(p.RadiusMeters))
	v.Set("limit", strconv.Itoa(p.Limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/places/search?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}

	venues := make([]Venue, 0, len(out.Results))
	for _, r := range out.Results {
		venues = append(venues, r.venue())
	}
	return venues, nil
}

type searchResponse struct {
	Results []place `json:"results"`
}

type place struct {
	FsqID      string `json:"fsq_id"`
	Name       string `json:"name"`
	Distance   int    `json:"distance"`
	Categories []struct {
		Name string `json:"name"`
	} `json:"categories"`
	Location struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"location"`
	Geocodes struct {
		Main struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"main"`
	} `json:"geocodes"`
}

func (p place) venue() Venue {
	category := defaultCategory
	if len(p.Categories) > 0 && p.Categories[0].Name != "" {
		category = p.Categories[0].Name
	}
	address := p.Location.FormattedAddress
	if address == "" {
		address = defaultAddress
	}
	return Venue{
		ID:             p.FsqID,
		Name:           p.Name,
		Address:        address,
		Coordinate:     domain.GeoPoint{Lat: p.Geocodes.Main.Latitude, Lng: p.Geocodes.Main.Longitude},
		Category:       category,
		DistanceMeters: p.Distance,
	}
}
