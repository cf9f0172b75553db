// Package lifecycle coordinates multi-document session operations that span
// sessions, user profiles and conversations.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"rallyup/backend/internal/domain"
	"rallyup/backend/internal/domain/conversation"
	"rallyup/backend/internal/domain/profile"
	"rallyup/backend/internal/domain/session"
)

const (
	cancelledText = "The session '%s' has been cancelled by the host."
	removedText   = "Sorry, you have been removed from the session '%s'. Please contact the host if you have any questions."
	interestText  = "Hi! I'm interested in your %s session: %s"
)

// fanOutLimit bounds concurrent per-participant writes.
const fanOutLimit = 8

// CancelMessageID is the fixed id of the cancellation notice sent to uid, so
// a retried delete never posts it twice.
func CancelMessageID(sessionID, uid string) string {
	return "cancel-" + sessionID + "-" + uid
}

// RemovalMessageID is the fixed id of the notice sent to a removed guest.
func RemovalMessageID(sessionID, uid string) string {
	return "remove-" + sessionID + "-" + uid
}

type Orchestrator struct {
	sessions *session.Service
	profiles *profile.Service
	convs    *conversation.Service
	log      *slog.Logger
	obs      domain.SagaObserver
}

func New(sessions *session.Service, profiles *profile.Service, convs *conversation.Service, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{sessions: sessions, profiles: profiles, convs: convs, log: log}
}

func (o *Orchestrator) SetObserver(obs domain.SagaObserver) {
	o.obs = obs
}

func (o *Orchestrator) saga(op string) domain.Saga {
	return domain.Saga{Op: op, Logger: o.log, Observer: o.obs}
}

// ToggleParticipation joins uid to the session or leaves it, and reports the
// resulting membership.
func (o *Orchestrator) ToggleParticipation(ctx context.Context, sessionID, uid string) (bool, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if sess.HasParticipant(uid) {
		if err := o.sessions.Leave(ctx, sessionID, uid); err != nil {
			return true, err
		}
		return false, nil
	}
	if err := o.sessions.Join(ctx, sessionID, uid); err != nil {
		return false, err
	}
	return true, nil
}

// MessageHost opens (or reuses) the conversation between uid and the host.
func (o *Orchestrator) MessageHost(ctx context.Context, sessionID, uid string) (*conversation.Thread, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.HostID == uid {
		return nil, conversation.ErrCannotMessageSelf
	}
	opener := fmt.Sprintf(interestText, sess.Sport, sess.Title)
	return o.convs.FindOrCreate(ctx, uid, sess.HostID, opener)
}

// DeleteSession notifies guests, scrubs every cross-reference and then
// deletes the session document. Each step is a retryable idempotent write;
// a failure part way returns *PartialFailure. Deleting a session that is
// already gone only scrubs the host's createdSessions.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID, hostID string) error {
	if sessionID == "" || hostID == "" {
		return fmt.Errorf("%w: sessionId and hostId are required", domain.ErrBadRequest)
	}
	sess, err := o.sessions.Get(ctx, sessionID)
	if domain.IsErrNotFound(err) {
		o.log.Info("lifecycle: session already deleted", "session_id", sessionID)
		return o.profiles.RemoveCreatedSession(ctx, hostID, sessionID)
	}
	if err != nil {
		return err
	}
	if sess.HostID != hostID {
		return session.ErrNotHost
	}

	guests := sess.Guests()
	// Warm the name cache for every participant in one fan-out so the
	// notices below don't each pay for a read, and fail before any write.
	if _, err := o.profiles.Names().Names(ctx, sess.CurrentParticipants...); err != nil {
		return domain.ReadErr(err, "resolve participant names")
	}

	text := fmt.Sprintf(cancelledText, sess.Title)
	err = o.saga("delete_session").Run(ctx,
		domain.Step{Name: "notify_participants", Run: func(ctx context.Context) error {
			return fanOut(ctx, guests, func(ctx context.Context, uid string) error {
				_, err := o.convs.Deliver(ctx, hostID, uid, text,
					conversation.WithMessageID(CancelMessageID(sessionID, uid)))
				if err != nil {
					return fmt.Errorf("notify %s: %w", uid, err)
				}
				return nil
			})
		}},
		domain.Step{Name: "remove_session_history", Run: func(ctx context.Context) error {
			return fanOut(ctx, sess.CurrentParticipants, func(ctx context.Context, uid string) error {
				return o.profiles.RemoveSessionRef(ctx, uid, sessionID)
			})
		}},
		domain.Step{Name: "remove_created_session", Run: func(ctx context.Context) error {
			return o.profiles.RemoveCreatedSession(ctx, hostID, sessionID)
		}},
		domain.Step{Name: "delete_session", Run: func(ctx context.Context) error {
			return o.sessions.DeleteDocument(ctx, sessionID)
		}},
	)
	if err != nil {
		return err
	}
	o.log.Info("lifecycle: session deleted", "session_id", sessionID, "host_id", hostID, "notified", len(guests))
	return nil
}

// RemoveParticipant tells uid they were removed and then takes them off the
// host's session. The notice has a fixed id, so a retry after either step
// fails re-sends nothing and finishes the removal. A uid that is no longer a
// member gets no notice; only its leftover references are scrubbed.
func (o *Orchestrator) RemoveParticipant(ctx context.Context, sessionID, hostID, uid string) error {
	if sessionID == "" || hostID == "" || uid == "" {
		return fmt.Errorf("%w: sessionId, hostId and uid are required", domain.ErrBadRequest)
	}
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.HostID != hostID {
		return session.ErrNotHost
	}
	if uid == sess.HostID {
		return session.ErrCannotRemoveHost
	}

	return o.saga("remove_participant").Run(ctx,
		domain.Step{Name: "notify_participant", Run: func(ctx context.Context) error {
			if !sess.HasParticipant(uid) {
				return nil
			}
			_, err := o.convs.Deliver(ctx, hostID, uid, fmt.Sprintf(removedText, sess.Title),
				conversation.WithMessageID(RemovalMessageID(sessionID, uid)))
			return err
		}},
		domain.Step{Name: "remove_participant", Run: func(ctx context.Context) error {
			_, err := o.sessions.RemoveParticipant(ctx, sessionID, hostID, uid)
			return err
		}},
	)
}

// fanOut runs fn for every uid concurrently and waits for all of them. One
// failing uid does not stop the others; the failures are joined.
func fanOut(ctx context.Context, uids []string, fn func(ctx context.Context, uid string) error) error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(fanOutLimit)
	for _, uid := range uids {
		g.Go(func() error {
			if err := fn(ctx, uid); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
