package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"rallyup/backend/internal/domain"
)

// Report lists the session ids Reconcile changed on one user.
type Report struct {
	UID            string   `json:"uid"`
	AddedHistory   []string `json:"addedHistory"`
	RemovedHistory []string `json:"removedHistory"`
	AddedCreated   []string `json:"addedCreated"`
	RemovedCreated []string `json:"removedCreated"`
}

func (r Report) Changed() bool {
	return len(r.AddedHistory)+len(r.RemovedHistory)+len(r.AddedCreated)+len(r.RemovedCreated) > 0
}

// Reconcile repairs uid's sessionHistory and createdSessions against the
// sessions themselves, undoing what interrupted sagas left behind. Sessions
// that exist but fail to decode are left alone.
func (o *Orchestrator) Reconcile(ctx context.Context, uid string) (*Report, error) {
	if uid == "" {
		return nil, fmt.Errorf("%w: uid is required", domain.ErrBadRequest)
	}
	history, created, err := o.profiles.SessionRefs(ctx, uid)
	if err != nil {
		return nil, err
	}
	participating, err := o.sessions.Participating(ctx, uid)
	if err != nil {
		return nil, err
	}

	refs := map[string]struct{}{}
	for _, id := range append(append([]string{}, history...), created...) {
		refs[id] = struct{}{}
	}

	type state struct {
		gone   bool
		member bool
		host   bool
	}
	var mu sync.Mutex
	states := make(map[string]state, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for id := range refs {
		g.Go(func() error {
			sess, err := o.sessions.Get(gctx, id)
			var st state
			switch {
			case domain.IsErrNotFound(err):
				st.gone = true
			case domain.IsErrMalformedData(err):
				return nil
			case err != nil:
				return err
			default:
				st.member = sess.HasParticipant(uid)
				st.host = sess.HostID == uid
			}
			mu.Lock()
			states[id] = st
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report{UID: uid}
	for _, id := range history {
		if st, ok := states[id]; ok && (st.gone || !st.member) {
			rep.RemovedHistory = append(rep.RemovedHistory, id)
		}
	}
	for _, id := range created {
		if st, ok := states[id]; ok && (st.gone || !st.host) {
			rep.RemovedCreated = append(rep.RemovedCreated, id)
		}
	}
	for _, sess := range participating {
		if !domain.Contains(history, sess.ID) {
			rep.AddedHistory = append(rep.AddedHistory, sess.ID)
		}
		if sess.HostID == uid && !domain.Contains(created, sess.ID) {
			rep.AddedCreated = append(rep.AddedCreated, sess.ID)
		}
	}

	if err := o.apply(ctx, uid, rep); err != nil {
		return rep, err
	}
	if rep.Changed() {
		o.log.Info("lifecycle: reconciled references", "uid", uid,
			"added_history", len(rep.AddedHistory), "removed_history", len(rep.RemovedHistory),
			"added_created", len(rep.AddedCreated), "removed_created", len(rep.RemovedCreated))
	}
	return rep, nil
}

func (o *Orchestrator) apply(ctx context.Context, uid string, rep *Report) error {
	steps := []domain.Step{
		{Name: "remove_session_history", Run: each(rep.RemovedHistory, func(ctx context.Context, id string) error {
			return o.profiles.RemoveSessionRef(ctx, uid, id)
		})},
		{Name: "remove_created_session", Run: each(rep.RemovedCreated, func(ctx context.Context, id string) error {
			return o.profiles.RemoveCreatedSession(ctx, uid, id)
		})},
		{Name: "add_session_history", Run: each(rep.AddedHistory, func(ctx context.Context, id string) error {
			return o.profiles.AddSessionRef(ctx, uid, id)
		})},
		{Name: "add_created_session", Run: each(rep.AddedCreated, func(ctx context.Context, id string) error {
			return o.profiles.AddCreatedSession(ctx, uid, id)
		})},
	}
	return o.saga("reconcile").Run(ctx, steps...)
}

func each(ids []string, fn func(ctx context.Context, id string) error) func(context.Context) error {
	return func(ctx context.Context) error {
		for _, id := range ids {
			if err := fn(ctx, id); err != nil {
				return err
			}
		}
		return nil
	}
}
