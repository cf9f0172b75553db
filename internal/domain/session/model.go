package session

import (
	"fmt"
	"strings"
	"time"

	"rallyup/backend/internal/domain"
	"rallyup/backend/internal/store"
	"rallyup/backend/internal/venues"
)

const (
	ColSessions = "sessions"

	MinParticipants        = 2
	MaxParticipantsLimit   = 30
	DefaultMaxParticipants = 8
)

// Session is a scheduled meetup under sessions/{id}. The host is always a
// member of CurrentParticipants.
type Session struct {
	ID                  string            `json:"id"`
	HostID              string            `json:"hostId"`
	Title               string            `json:"title"`
	Sport               domain.Sport      `json:"sport"`
	DateTime            time.Time         `json:"dateTime"`
	Location            domain.GeoPoint   `json:"location"`
	Address             string            `json:"address"`
	MaxParticipants     int               `json:"maxParticipants"`
	CurrentParticipants []string          `json:"currentParticipants"`
	Description         string            `json:"description"`
	IsPrivate           bool              `json:"isPrivate"`
	SkillLevel          domain.SkillLevel `json:"skillLevel"`
	VenueName           string            `json:"venueName,omitempty"`
	VenueCategory       string            `json:"venueCategory,omitempty"`
	CreatedAt           time.Time         `json:"createdAt,omitempty"`
	UpdatedAt           time.Time         `json:"updatedAt,omitempty"`
}

func (s Session) HasParticipant(uid string) bool {
	return domain.Contains(s.CurrentParticipants, uid)
}

func (s Session) IsFull() bool {
	return len(s.CurrentParticipants) >= s.MaxParticipants
}

// Guests are the participants other than the host.
func (s Session) Guests() []string {
	out := make([]string, 0, len(s.CurrentParticipants))
	for _, uid := range s.CurrentParticipants {
		if uid != s.HostID {
			out = append(out, uid)
		}
	}
	return out
}

// Draft is the input for creating a session. Venue, when set, is a result of
// venue search and fills location, address and venue fields left empty.
type Draft struct {
	Title           string           `json:"title" validate:"required,max=100"`
	Sport           string           `json:"sport" validate:"required,sport"`
	DateTime        time.Time        `json:"dateTime" validate:"required"`
	Location        *domain.GeoPoint `json:"location,omitempty"`
	Address         string           `json:"address" validate:"max=300"`
	MaxParticipants int              `json:"maxParticipants" validate:"omitempty,gte=2,lte=30"`
	Description     string           `json:"description" validate:"max=1000"`
	IsPrivate       bool             `json:"isPrivate"`
	SkillLevel      string           `json:"skillLevel" validate:"omitempty,skill"`
	VenueName       string           `json:"venueName,omitempty" validate:"max=120"`
	VenueCategory   string           `json:"venueCategory,omitempty" validate:"max=120"`
	Venue           *venues.Venue    `json:"venue,omitempty"`
}

func (d *Draft) Trim() {
	d.Title = strings.TrimSpace(d.Title)
	d.Sport = strings.ToLower(strings.TrimSpace(d.Sport))
	d.Address = strings.TrimSpace(d.Address)
	d.Description = strings.TrimSpace(d.Description)
	d.SkillLevel = strings.ToLower(strings.TrimSpace(d.SkillLevel))
	d.VenueName = strings.TrimSpace(d.VenueName)
	d.VenueCategory = strings.TrimSpace(d.VenueCategory)
}

// normalize fills defaults and venue-derived fields.
func (d *Draft) normalize() {
	if v := d.Venue; v != nil {
		if d.Location == nil {
			loc := v.Coordinate
			d.Location = &loc
		}
		if d.Address == "" {
			d.Address = v.Address
		}
		if d.VenueName == "" {
			d.VenueName = v.Name
		}
		if d.VenueCategory == "" {
			d.VenueCategory = v.Category
		}
	}
	if d.VenueName == "" {
		if i := strings.Index(d.Address, ", "); i > 0 {
			d.VenueName = d.Address[:i]
		}
	}
	if d.MaxParticipants == 0 {
		d.MaxParticipants = DefaultMaxParticipants
	}
	if d.SkillLevel == "" {
		d.SkillLevel = string(domain.SkillBeginner)
	}
}

// UpdateDetailsInput holds the host-editable fields.
type UpdateDetailsInput struct {
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	MaxParticipants *int    `json:"maxParticipants,omitempty"`
}

func (in *UpdateDetailsInput) Trim() {
	if in.Title != nil {
		*in.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		*in.Description = strings.TrimSpace(*in.Description)
	}
}

// ListFilter narrows List results client-side. Zero values match everything.
type ListFilter struct {
	Sport         string
	Query         string
	HostID        string
	ParticipantID string
	UpcomingOnly  bool
	Now           time.Time
}

func encodeSession(s Session) map[string]any {
	m := map[string]any{
		"id":                  s.ID,
		"hostId":              s.HostID,
		"title":               s.Title,
		"sport":               string(s.Sport),
		"dateTime":            s.DateTime,
		"location":            s.Location.Map(),
		"address":             s.Address,
		"maxParticipants":     int64(s.MaxParticipants),
		"currentParticipants": s.CurrentParticipants,
		"description":         s.Description,
		"isPrivate":           s.IsPrivate,
		"skillLevel":          string(s.SkillLevel),
		"createdAt":           s.CreatedAt,
		"updatedAt":           s.UpdatedAt,
	}
	if s.VenueName != "" {
		m["venueName"] = s.VenueName
	}
	if s.VenueCategory != "" {
		m["venueCategory"] = s.VenueCategory
	}
	return m
}

func decodeSession(id string, data map[string]any) (*Session, error) {
	s := &Session{ID: id}
	var bad []string
	var ok bool

	if s.HostID, ok = store.String(data, "hostId"); !ok || s.HostID == "" {
		bad = append(bad, "hostId")
	}
	if s.Title, ok = store.String(data, "title"); !ok {
		bad = append(bad, "title")
	}
	if raw, ok := store.String(data, "sport"); ok {
		sp, err := domain.ParseSport(raw)
		if err != nil {
			bad = append(bad, "sport")
		}
		s.Sport = sp
	} else {
		bad = append(bad, "sport")
	}
	if s.DateTime, ok = store.Time(data, "dateTime"); !ok {
		bad = append(bad, "dateTime")
	}
	if loc, ok := store.Map(data, "location"); ok {
		lat, okLat := store.Float(loc, "lat")
		lng, okLng := store.Float(loc, "lng")
		if !okLat || !okLng {
			bad = append(bad, "location")
		}
		s.Location = domain.GeoPoint{Lat: lat, Lng: lng}
	} else {
		bad = append(bad, "location")
	}
	if s.Address, ok = store.String(data, "address"); !ok {
		bad = append(bad, "address")
	}
	if n, ok := store.Int(data, "maxParticipants"); ok {
		s.MaxParticipants = int(n)
	} else {
		bad = append(bad, "maxParticipants")
	}
	if s.CurrentParticipants, ok = store.Strings(data, "currentParticipants"); !ok {
		bad = append(bad, "currentParticipants")
	}
	if s.Description, ok = store.String(data, "description"); !ok {
		bad = append(bad, "description")
	}
	if raw, ok := store.String(data, "skillLevel"); ok {
		lvl, err := domain.ParseSkillLevel(raw)
		if err != nil {
			bad = append(bad, "skillLevel")
		}
		s.SkillLevel = lvl
	} else {
		bad = append(bad, "skillLevel")
	}

	if len(bad) > 0 {
		return nil, fmt.Errorf("%w: session %s: missing or invalid %s", ErrMalformedSession, id, strings.Join(bad, ", "))
	}

	s.IsPrivate, _ = store.Bool(data, "isPrivate")
	s.VenueName = store.StringOr(data, "venueName", "")
	s.VenueCategory = store.StringOr(data, "venueCategory", "")
	s.CreatedAt, _ = store.Time(data, "createdAt")
	s.UpdatedAt, _ = store.Time(data, "updatedAt")
	return s, nil
}
