package profile

import (
	"fmt"
	"strings"
	"time"

	"rallyup/backend/internal/domain"
	"rallyup/backend/internal/store"
)

const (
	ColUsers = "users"

	FieldSessionHistory  = "sessionHistory"
	FieldCreatedSessions = "createdSessions"
)

// DefaultLocation is assigned to stub profiles until the user picks one.
var DefaultLocation = domain.GeoPoint{Lat: 33.4255, Lng: -111.9400}

// User is a profile document under users/{uid}.
type User struct {
	ID              string            `json:"id"`
	FullName        string            `json:"fullName"`
	Email           string            `json:"email"`
	Bio             string            `json:"bio"`
	PreferredSports []domain.Sport    `json:"preferredSports"`
	SkillLevel      domain.SkillLevel `json:"skillLevel"`
	Location        domain.GeoPoint   `json:"location"`
	LocationName    string            `json:"locationName"`
	SessionHistory  []string          `json:"sessionHistory"`
	CreatedSessions []string          `json:"createdSessions"`
	ProfileComplete bool              `json:"profileComplete"`
	ProfileImage    string            `json:"profileImage,omitempty"`
	CreatedAt       time.Time         `json:"createdAt,omitempty"`
	UpdatedAt       time.Time         `json:"updatedAt,omitempty"`
}

// IsComplete reports whether bio and preferred sports are both set.
func (u User) IsComplete() bool {
	return u.Bio != "" && len(u.PreferredSports) > 0
}

// UpdateProfileInput is a partial update; nil fields are left untouched.
type UpdateProfileInput struct {
	FullName        *string          `json:"fullName,omitempty" validate:"omitempty,max=80"`
	Bio             *string          `json:"bio,omitempty" validate:"omitempty,max=500"`
	PreferredSports *[]string        `json:"preferredSports,omitempty" validate:"omitempty,max=6,dive,sport"`
	SkillLevel      *string          `json:"skillLevel,omitempty" validate:"omitempty,skill"`
	Location        *domain.GeoPoint `json:"location,omitempty"`
	LocationName    *string          `json:"locationName,omitempty" validate:"omitempty,max=120"`
	ProfileImage    *string          `json:"profileImage,omitempty" validate:"omitempty,max=1024"`
}

func (in *UpdateProfileInput) Trim() {
	for _, p := range []*string{in.FullName, in.Bio, in.SkillLevel, in.LocationName, in.ProfileImage} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	if in.PreferredSports != nil {
		sports := make([]string, 0, len(*in.PreferredSports))
		seen := map[string]bool{}
		for _, s := range *in.PreferredSports {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			sports = append(sports, s)
		}
		in.PreferredSports = &sports
	}
}

func (in UpdateProfileInput) Empty() bool {
	return in.FullName == nil && in.Bio == nil && in.PreferredSports == nil &&
		in.SkillLevel == nil && in.Location == nil && in.LocationName == nil && in.ProfileImage == nil
}

// fields returns the document fields the input sets.
func (in UpdateProfileInput) fields() map[string]any {
	f := map[string]any{}
	if in.FullName != nil {
		f["fullName"] = *in.FullName
	}
	if in.Bio != nil {
		f["bio"] = *in.Bio
	}
	if in.PreferredSports != nil {
		f["preferredSports"] = *in.PreferredSports
	}
	if in.SkillLevel != nil {
		f["skillLevel"] = strings.ToLower(*in.SkillLevel)
	}
	if in.Location != nil {
		f["location"] = in.Location.Map()
	}
	if in.LocationName != nil {
		f["locationName"] = *in.LocationName
	}
	if in.ProfileImage != nil {
		f["profileImage"] = *in.ProfileImage
	}
	return f
}

func stubFields(fullName, email string, now time.Time) map[string]any {
	return map[string]any{
		"fullName":           fullName,
		"email":              email,
		"bio":                "",
		"preferredSports":    []string{},
		"skillLevel":         string(domain.SkillBeginner),
		"location":           DefaultLocation.Map(),
		"locationName":       "",
		FieldSessionHistory:  []string{},
		FieldCreatedSessions: []string{},
		"profileComplete":    false,
		"createdAt":          now,
		"updatedAt":          now,
	}
}

// completeFromData applies the completeness rule to raw document data so it
// works on profiles that fail strict decoding.
func completeFromData(data map[string]any) bool {
	bio, _ := store.String(data, "bio")
	sports, _ := store.Strings(data, "preferredSports")
	return strings.TrimSpace(bio) != "" && len(sports) > 0
}

func decodeUser(id string, data map[string]any) (*User, error) {
	u := &User{ID: id}
	var bad []string
	var ok bool

	if u.FullName, ok = store.String(data, "fullName"); !ok {
		bad = append(bad, "fullName")
	}
	if u.Email, ok = store.String(data, "email"); !ok {
		bad = append(bad, "email")
	}
	if s, ok := store.String(data, "skillLevel"); ok {
		lvl, err := domain.ParseSkillLevel(s)
		if err != nil {
			bad = append(bad, "skillLevel")
		}
		u.SkillLevel = lvl
	} else {
		bad = append(bad, "skillLevel")
	}
	if raw, ok := store.Strings(data, "preferredSports"); ok {
		u.PreferredSports = make([]domain.Sport, 0, len(raw))
		for _, s := range raw {
			sp, err := domain.ParseSport(s)
			if err != nil {
				bad = append(bad, "preferredSports")
				break
			}
			u.PreferredSports = append(u.PreferredSports, sp)
		}
	} else {
		bad = append(bad, "preferredSports")
	}
	if loc, ok := store.Map(data, "location"); ok {
		lat, okLat := store.Float(loc, "lat")
		lng, okLng := store.Float(loc, "lng")
		if !okLat || !okLng {
			bad = append(bad, "location")
		}
		u.Location = domain.GeoPoint{Lat: lat, Lng: lng}
	} else {
		bad = append(bad, "location")
	}

	if len(bad) > 0 {
		return nil, fmt.Errorf("%w: user %s: missing or invalid %s", ErrMalformedProfile, id, strings.Join(bad, ", "))
	}

	u.Bio = store.StringOr(data, "bio", "")
	u.LocationName = store.StringOr(data, "locationName", "")
	u.ProfileImage = store.StringOr(data, "profileImage", "")
	u.SessionHistory, _ = store.Strings(data, FieldSessionHistory)
	u.CreatedSessions, _ = store.Strings(data, FieldCreatedSessions)
	if u.SessionHistory == nil {
		u.SessionHistory = []string{}
	}
	if u.CreatedSessions == nil {
		u.CreatedSessions = []string{}
	}
	u.ProfileComplete, _ = store.Bool(data, "profileComplete")
	u.CreatedAt, _ = store.Time(data, "createdAt")
	u.UpdatedAt, _ = store.Time(data, "updatedAt")
	return u, nil
}
