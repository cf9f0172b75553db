// Package domain holds the types and error taxonomy shared by the profile,
// session, conversation and lifecycle packages.
package domain

import (
	"fmt"
	"strings"
	"time"
)

type Sport string

const (
	SportPickleball Sport = "pickleball"
	SportBadminton  Sport = "badminton"
	SportBasketball Sport = "basketball"
	SportSoccer     Sport = "soccer"
	SportTennis     Sport = "tennis"
	SportVolleyball Sport = "volleyball"
)

var Sports = []Sport{SportPickleball, SportBadminton, SportBasketball, SportSoccer, SportTennis, SportVolleyball}

func ParseSport(s string) (Sport, error) {
	v := Sport(strings.ToLower(strings.TrimSpace(s)))
	for _, sp := range Sports {
		if sp == v {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: unknown sport %q", ErrBadRequest, s)
}

type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillProfessional SkillLevel = "professional"
)

var SkillLevels = []SkillLevel{SkillBeginner, SkillIntermediate, SkillAdvanced, SkillProfessional}

func ParseSkillLevel(s string) (SkillLevel, error) {
	v := SkillLevel(strings.ToLower(strings.TrimSpace(s)))
	for _, l := range SkillLevels {
		if l == v {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: unknown skill level %q", ErrBadRequest, s)
}

type GeoPoint struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

func (p GeoPoint) Map() map[string]any {
	return map[string]any{"lat": p.Lat, "lng": p.Lng}
}

// Now returns the current UTC time at the store's microsecond precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Contains reports whether xs holds x.
func Contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
