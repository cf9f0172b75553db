package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"rallyup/backend/internal/domain"
	"rallyup/backend/internal/store"
	"rallyup/backend/internal/utils"
)

// RefWriter maintains the session ids denormalized onto user documents.
// Removals of absent ids must be no-ops.
type RefWriter interface {
	AddSessionRef(ctx context.Context, uid, sessionID string) error
	RemoveSessionRef(ctx context.Context, uid, sessionID string) error
	AddCreatedSession(ctx context.Context, uid, sessionID string) error
	RemoveCreatedSession(ctx context.Context, uid, sessionID string) error
}

type Service struct {
	repo *Repo
	refs RefWriter
	log  *slog.Logger
	obs  domain.SagaObserver
}

func NewService(repo *Repo, refs RefWriter, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, refs: refs, log: log}
}

// SetObserver records saga step outcomes (metrics).
func (s *Service) SetObserver(obs domain.SagaObserver) {
	s.obs = obs
}

func (s *Service) saga(op string) domain.Saga {
	return domain.Saga{Op: op, Logger: s.log, Observer: s.obs}
}

// Create persists a new session with the host as its only participant, then
// records it on the host's createdSessions and sessionHistory. If a later
// write fails the session is returned together with a *PartialFailure.
func (s *Service) Create(ctx context.Context, hostID string, d Draft) (*Session, error) {
	if hostID == "" {
		return nil, fmt.Errorf("%w: hostId is required", ErrBadRequest)
	}
	d.Trim()
	d.normalize()
	if err := domain.Validate(d); err != nil {
		return nil, err
	}
	if d.Location == nil {
		return nil, fmt.Errorf("%w: location or venue is required", ErrBadRequest)
	}
	if err := domain.Validate(d.Location); err != nil {
		return nil, err
	}

	now := domain.Now()
	sess := Session{
		ID:                  s.repo.NewID(),
		HostID:              hostID,
		Title:               d.Title,
		Sport:               domain.Sport(d.Sport),
		DateTime:            d.DateTime.UTC().Truncate(time.Microsecond),
		Location:            *d.Location,
		Address:             d.Address,
		MaxParticipants:     d.MaxParticipants,
		CurrentParticipants: []string{hostID},
		Description:         d.Description,
		IsPrivate:           d.IsPrivate,
		SkillLevel:          domain.SkillLevel(d.SkillLevel),
		VenueName:           d.VenueName,
		VenueCategory:       d.VenueCategory,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err := s.saga("create_session").Run(ctx,
		domain.Step{Name: "create_session", Run: func(ctx context.Context) error {
			return domain.WriteErr(s.repo.Create(ctx, sess), "create session %s", sess.ID)
		}},
		domain.Step{Name: "add_created_session", Run: func(ctx context.Context) error {
			return s.refs.AddCreatedSession(ctx, hostID, sess.ID)
		}},
		domain.Step{Name: "add_session_history", Run: func(ctx context.Context) error {
			return s.refs.AddSessionRef(ctx, hostID, sess.ID)
		}},
	)
	if err != nil {
		if domain.IsErrPartialFailure(err) {
			return &sess, err
		}
		return nil, err
	}
	s.log.Info("session: created", "session_id", sess.ID, "host_id", hostID, "sport", sess.Sport)
	return &sess, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrBadRequest)
	}
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		if domain.IsKnown(err) {
			return nil, err
		}
		return nil, domain.ReadErr(err, "session %s", id)
	}
	return sess, nil
}

// List reads every session and filters client-side, ordered by dateTime.
// Documents that fail to decode are skipped.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Session, error) {
	all, bad, err := s.repo.List(ctx)
	if err != nil {
		return nil, domain.ReadErr(err, "list sessions")
	}
	for _, e := range bad {
		s.log.Warn("session: skipping malformed document", "error", e)
	}

	sport := strings.ToLower(strings.TrimSpace(f.Sport))
	out := make([]Session, 0, len(all))
	for _, sess := range all {
		if sport != "" && string(sess.Sport) != sport {
			continue
		}
		if f.HostID != "" && sess.HostID != f.HostID {
			continue
		}
		if f.ParticipantID != "" && !sess.HasParticipant(f.ParticipantID) {
			continue
		}
		if f.UpcomingOnly && !f.Now.IsZero() && sess.DateTime.Before(f.Now) {
			continue
		}
		if !utils.MatchesQuery(f.Query, sess.Title, sess.Description, sess.VenueName, sess.Address, string(sess.Sport)) {
			continue
		}
		out = append(out, sess)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DateTime.Equal(out[j].DateTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].DateTime.Before(out[j].DateTime)
	})
	return out, nil
}

// Participating queries the sessions listing uid as a participant.
func (s *Service) Participating(ctx context.Context, uid string) ([]Session, error) {
	out, bad, err := s.repo.ListByParticipant(ctx, uid)
	if err != nil {
		return nil, domain.ReadErr(err, "sessions of %s", uid)
	}
	for _, e := range bad {
		s.log.Warn("session: skipping malformed document", "error", e)
	}
	return out, nil
}

// Join adds uid to the session and to uid's sessionHistory. Capacity is
// checked in the same transaction as the add; joining twice is a no-op.
func (s *Service) Join(ctx context.Context, id, uid string) error {
	if id == "" || uid == "" {
		return fmt.Errorf("%w: sessionId and uid are required", ErrBadRequest)
	}
	return s.saga("join_session").Run(ctx,
		domain.Step{Name: "add_participant", Run: func(ctx context.Context) error {
			err := s.repo.Mutate(ctx, id, func(sess *Session) (map[string]any, error) {
				if sess.HasParticipant(uid) {
					return nil, nil
				}
				if sess.IsFull() {
					return nil, fmt.Errorf("%w: %d/%d", ErrAlreadyFull, len(sess.CurrentParticipants), sess.MaxParticipants)
				}
				return map[string]any{
					"currentParticipants": store.ArrayUnion(uid),
					"updatedAt":           domain.Now(),
				}, nil
			})
			return txErr(err, "join session %s", id)
		}},
		domain.Step{Name: "add_session_history", Run: func(ctx context.Context) error {
			return s.refs.AddSessionRef(ctx, uid, id)
		}},
	)
}

// Leave removes uid from the session and from uid's sessionHistory. The host
// can never leave.
func (s *Service) Leave(ctx context.Context, id, uid string) error {
	if id == "" || uid == "" {
		return fmt.Errorf("%w: sessionId and uid are required", ErrBadRequest)
	}
	return s.saga("leave_session").Run(ctx,
		domain.Step{Name: "remove_participant", Run: func(ctx context.Context) error {
			err := s.repo.Mutate(ctx, id, func(sess *Session) (map[string]any, error) {
				if sess.HostID == uid {
					return nil, ErrHostCannotLeave
				}
				if !sess.HasParticipant(uid) {
					return nil, nil
				}
				return map[string]any{
					"currentParticipants": store.ArrayRemove(uid),
					"updatedAt":           domain.Now(),
				}, nil
			})
			return txErr(err, "leave session %s", id)
		}},
		domain.Step{Name: "remove_session_history", Run: func(ctx context.Context) error {
			return s.refs.RemoveSessionRef(ctx, uid, id)
		}},
	)
}

// UpdateDetails applies host edits to title, description and capacity.
func (s *Service) UpdateDetails(ctx context.Context, id, hostID string, in UpdateDetailsInput) (*Session, error) {
	if id == "" || hostID == "" {
		return nil, fmt.Errorf("%w: sessionId and hostId are required", ErrBadRequest)
	}
	in.Trim()
	if in.Title == nil && in.Description == nil && in.MaxParticipants == nil {
		return nil, fmt.Errorf("%w: no fields to update", ErrBadRequest)
	}
	if in.Title != nil && *in.Title == "" {
		return nil, fmt.Errorf("%w: title cannot be empty", ErrBadRequest)
	}

	err := s.repo.Mutate(ctx, id, func(sess *Session) (map[string]any, error) {
		if sess.HostID != hostID {
			return nil, ErrNotHost
		}
		fields := map[string]any{"updatedAt": domain.Now()}
		if in.Title != nil {
			fields["title"] = *in.Title
		}
		if in.Description != nil {
			fields["description"] = *in.Description
		}
		if in.MaxParticipants != nil {
			n := *in.MaxParticipants
			min := len(sess.CurrentParticipants)
			if min < MinParticipants {
				min = MinParticipants
			}
			if n < min || n > MaxParticipantsLimit {
				return nil, fmt.Errorf("%w: maxParticipants must be between %d and %d", ErrBadRequest, min, MaxParticipantsLimit)
			}
			fields["maxParticipants"] = int64(n)
		}
		return fields, nil
	})
	if err != nil {
		return nil, txErr(err, "update session %s", id)
	}
	return s.Get(ctx, id)
}

// RemoveParticipant lets the host remove a guest. It returns the session as
// read before the removal.
func (s *Service) RemoveParticipant(ctx context.Context, id, hostID, uid string) (*Session, error) {
	if id == "" || hostID == "" || uid == "" {
		return nil, fmt.Errorf("%w: sessionId, hostId and uid are required", ErrBadRequest)
	}
	var before *Session
	err := s.saga("remove_participant").Run(ctx,
		domain.Step{Name: "remove_participant", Run: func(ctx context.Context) error {
			err := s.repo.Mutate(ctx, id, func(sess *Session) (map[string]any, error) {
				if sess.HostID != hostID {
					return nil, ErrNotHost
				}
				if uid == sess.HostID {
					return nil, ErrCannotRemoveHost
				}
				cp := *sess
				before = &cp
				if !sess.HasParticipant(uid) {
					return nil, nil
				}
				return map[string]any{
					"currentParticipants": store.ArrayRemove(uid),
					"updatedAt":           domain.Now(),
				}, nil
			})
			return txErr(err, "remove participant from %s", id)
		}},
		domain.Step{Name: "remove_session_history", Run: func(ctx context.Context) error {
			return s.refs.RemoveSessionRef(ctx, uid, id)
		}},
	)
	return before, err
}

// DeleteDocument removes the session document; deleting a missing one is a no-op.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	return domain.WriteErr(s.repo.Delete(ctx, id), "delete session %s", id)
}

// txErr keeps domain errors raised inside a transaction and classifies store
// errors.
func txErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if domain.IsKnown(err) {
		return err
	}
	return domain.WriteErr(err, format, args...)
}
