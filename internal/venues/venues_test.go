package venues

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rallyup/backend/internal/domain"
)

type outcomes struct {
	mu  sync.Mutex
	got []string
}

func (o *outcomes) ObserveVenueSearch(outcome string, _ time.Duration) {
	o.mu.Lock()
	o.got = append(o.got, outcome)
	o.mu.Unlock()
}

const sample = `{
  "results": [
    {
      "fsq_id": "4b1",
      "name": "Kiwanis Park Tennis Center",
      "distance": 812,
      "categories": [{"name": "Tennis Court"}],
      "location": {"formatted_address": "6111 S All-America Way, Tempe, AZ"},
      "geocodes": {"main": {"latitude": 33.3718, "longitude": -111.9305}}
    },
    {
      "fsq_id": "5c2",
      "name": "Unnamed Court",
      "distance": 1500,
      "categories": [],
      "location": {},
      "geocodes": {"main": {"latitude": 33.4, "longitude": -111.9}}
    }
  ]
}`

func TestSearch(t *testing.T) {
	reqs := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs <- r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sample))
	}))
	defer srv.Close()

	obs := &outcomes{}
	c := New(Config{BaseURL: srv.URL + "/", APIKey: "fsq-key", Observer: obs})
	out, err := c.Search(context.Background(), SearchParams{Lat: 33.42, Lng: -111.94, CategoryHint: "tennis"})
	require.NoError(t, err)

	got := <-reqs
	assert.Equal(t, "/places/search", got.URL.Path)
	assert.Equal(t, "fsq-key", got.Header.Get("Authorization"))
	q := got.URL.Query()
	assert.Equal(t, "tennis", q.Get("query"), "the hint is used when no query is given")
	assert.Equal(t, "33.42,-111.94", q.Get("ll"))
	assert.Equal(t, "10000", q.Get("radius"))
	assert.Equal(t, "15", q.Get("limit"))

	require.Len(t, out, 2)
	assert.Equal(t, Venue{
		ID:             "4b1",
		Name:           "Kiwanis Park Tennis Center",
		Address:        "6111 S All-America Way, Tempe, AZ",
		Coordinate:     domain.GeoPoint{Lat: 33.3718, Lng: -111.9305},
		Category:       "Tennis Court",
		DistanceMeters: 812,
	}, out[0])
	assert.Equal(t, "Sports Venue", out[1].Category)
	assert.Equal(t, "No address available", out[1].Address)
	assert.Equal(t, []string{"success"}, obs.got)
}

func TestSearchClampsParams(t *testing.T) {
	queries := make(chan map[string][]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query()
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k"})
	out, err := c.Search(context.Background(), SearchParams{Lat: 1, Lng: 2, RadiusMeters: 500000, Limit: 99, Query: " courts ", CategoryHint: "tennis"})
	require.NoError(t, err)
	assert.Empty(t, out)
	q := <-queries
	assert.Equal(t, []string{"100000"}, q["radius"])
	assert.Equal(t, []string{"15"}, q["limit"])
	assert.Equal(t, []string{"courts"}, q["query"])
}

func TestSearchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	obs := &outcomes{}
	c := New(Config{BaseURL: srv.URL, APIKey: "bad", Observer: obs})
	_, err := c.Search(context.Background(), SearchParams{Lat: 1, Lng: 2})
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, []string{"error"}, obs.got)
}

func TestSearchNotConfigured(t *testing.T) {
	c := New(Config{})
	assert.False(t, c.Enabled())
	_, err := c.Search(context.Background(), SearchParams{Lat: 1, Lng: 2})
	assert.ErrorIs(t, err, ErrNotConfigured)

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
}

func TestSearchBadCoordinate(t *testing.T) {
	c := New(Config{APIKey: "k"})
	_, err := c.Search(context.Background(), SearchParams{Lat: 91, Lng: 0})
	assert.True(t, domain.IsErrBadRequest(err))
}
