package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"firebase.google.com/go/v4/auth"

	"rallyup/backend/internal/domain"
	"rallyup/backend/internal/store"
)

// AuthUpdater mirrors display-name changes to the identity provider.
// *auth.Client satisfies it.
type AuthUpdater interface {
	UpdateUser(ctx context.Context, uid string, user *auth.UserToUpdate) (*auth.UserRecord, error)
}

type Service struct {
	repo  *Repo
	names *NameCache
	auth  AuthUpdater
	log   *slog.Logger
}

func NewService(repo *Repo, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, names: NewNameCache(repo), log: log}
}

// SetAuthUpdater enables display-name sync to Firebase Auth.
func (s *Service) SetAuthUpdater(a AuthUpdater) {
	s.auth = a
}

// Names is the read-through display-name cache backed by this service.
func (s *Service) Names() *NameCache {
	return s.names
}

// GetProfile reads and strictly decodes a profile.
func (s *Service) GetProfile(ctx context.Context, uid string) (*User, error) {
	if uid == "" {
		return nil, fmt.Errorf("%w: uid is required", ErrBadRequest)
	}
	doc, err := s.repo.Get(ctx, uid)
	if err != nil {
		return nil, domain.ReadErr(err, "user %s", uid)
	}
	return decodeUser(uid, doc.Data)
}

// IsProfileComplete is true iff bio and preferredSports are both non-empty.
func (s *Service) IsProfileComplete(ctx context.Context, uid string) (bool, error) {
	if uid == "" {
		return false, fmt.Errorf("%w: uid is required", ErrBadRequest)
	}
	doc, err := s.repo.Get(ctx, uid)
	if err != nil {
		return false, domain.ReadErr(err, "user %s", uid)
	}
	return completeFromData(doc.Data), nil
}

// UpdateProfile merges the set fields and recomputes profileComplete in the
// same transaction. Unspecified fields are never removed.
func (s *Service) UpdateProfile(ctx context.Context, uid string, in UpdateProfileInput) error {
	if uid == "" {
		return fmt.Errorf("%w: uid is required", ErrBadRequest)
	}
	in.Trim()
	if in.Empty() {
		return fmt.Errorf("%w: no fields to update", ErrBadRequest)
	}
	if in.FullName != nil && *in.FullName == "" {
		return fmt.Errorf("%w: fullName cannot be empty", ErrBadRequest)
	}
	if err := domain.Validate(in); err != nil {
		return err
	}

	fields := in.fields()
	err := s.repo.Mutate(ctx, uid, func(cur map[string]any) (map[string]any, error) {
		merged := make(map[string]any, len(cur)+len(fields))
		for k, v := range cur {
			merged[k] = v
		}
		for k, v := range fields {
			merged[k] = v
		}
		out := make(map[string]any, len(fields)+2)
		for k, v := range fields {
			out[k] = v
		}
		out["profileComplete"] = completeFromData(merged)
		out["updatedAt"] = domain.Now()
		return out, nil
	})
	if err != nil {
		return domain.WriteErr(err, "update profile %s", uid)
	}

	if in.FullName != nil {
		s.names.Invalidate(uid)
		s.syncDisplayName(ctx, uid, *in.FullName)
	}
	return nil
}

func (s *Service) syncDisplayName(ctx context.Context, uid, name string) {
	if s.auth == nil {
		return
	}
	if _, err := s.auth.UpdateUser(ctx, uid, (&auth.UserToUpdate{}).DisplayName(name)); err != nil {
		s.log.Warn("profile: failed to sync display name", "uid", uid, "error", err)
	}
}

// CreateStubProfile writes the minimal profile created at signup. An
// existing profile is left untouched.
func (s *Service) CreateStubProfile(ctx context.Context, uid, fullName, email string) error {
	uid = strings.TrimSpace(uid)
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(email)
	if uid == "" || fullName == "" || email == "" {
		return fmt.Errorf("%w: uid, fullName and email are required", ErrBadRequest)
	}

	err := s.repo.Create(ctx, uid, stubFields(fullName, email, domain.Now()))
	if store.IsErrAlreadyExists(err) {
		s.log.Debug("profile: stub already exists", "uid", uid)
		return nil
	}
	if err != nil {
		return domain.WriteErr(err, "create profile %s", uid)
	}
	s.names.Invalidate(uid)
	return nil
}

// SessionRefs returns the user's sessionHistory and createdSessions without
// requiring the rest of the profile to be well formed.
func (s *Service) SessionRefs(ctx context.Context, uid string) (history, created []string, err error) {
	doc, err := s.repo.Get(ctx, uid)
	if err != nil {
		return nil, nil, domain.ReadErr(err, "user %s", uid)
	}
	history, _ = store.Strings(doc.Data, FieldSessionHistory)
	created, _ = store.Strings(doc.Data, FieldCreatedSessions)
	return history, created, nil
}

// AddSessionRef appends sessionID to the user's sessionHistory.
func (s *Service) AddSessionRef(ctx context.Context, uid, sessionID string) error {
	return domain.WriteErr(s.repo.AddToList(ctx, uid, FieldSessionHistory, sessionID),
		"add session %s to history of %s", sessionID, uid)
}

// RemoveSessionRef removes sessionID from the user's sessionHistory.
func (s *Service) RemoveSessionRef(ctx context.Context, uid, sessionID string) error {
	return domain.WriteErr(s.repo.RemoveFromList(ctx, uid, FieldSessionHistory, sessionID),
		"remove session %s from history of %s", sessionID, uid)
}

func (s *Service) AddCreatedSession(ctx context.Context, uid, sessionID string) error {
	return domain.WriteErr(s.repo.AddToList(ctx, uid, FieldCreatedSessions, sessionID),
		"add session %s to createdSessions of %s", sessionID, uid)
}

func (s *Service) RemoveCreatedSession(ctx context.Context, uid, sessionID string) error {
	return domain.WriteErr(s.repo.RemoveFromList(ctx, uid, FieldCreatedSessions, sessionID),
		"remove session %s from createdSessions of %s", sessionID, uid)
}
