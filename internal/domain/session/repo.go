package session

import (
	"context"

	"rallyup/backend/internal/store"
)

type Repo struct {
	st store.Store
}

func NewRepo(st store.Store) *Repo {
	return &Repo{st: st}
}

func sessionPath(id string) string {
	return store.Join(ColSessions, id)
}

func (r *Repo) NewID() string {
	return r.st.NewID(ColSessions)
}

func (r *Repo) Create(ctx context.Context, s Session) error {
	return r.st.Create(ctx, sessionPath(s.ID), encodeSession(s))
}

func (r *Repo) Get(ctx context.Context, id string) (*Session, error) {
	doc, err := r.st.Get(ctx, sessionPath(id))
	if err != nil {
		return nil, err
	}
	return decodeSession(doc.ID, doc.Data)
}

// List reads the whole sessions collection. Malformed documents are returned
// separately so callers can skip and report them.
func (r *Repo) List(ctx context.Context) ([]Session, []error, error) {
	docs, err := r.st.Query(ctx, store.Query{Collection: ColSessions})
	if err != nil {
		return nil, nil, err
	}
	return decodeAll(docs)
}

// ListByParticipant queries sessions whose currentParticipants contains uid.
func (r *Repo) ListByParticipant(ctx context.Context, uid string) ([]Session, []error, error) {
	q := store.Query{Collection: ColSessions}.Where("currentParticipants", store.OpArrayContains, uid)
	docs, err := r.st.Query(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	return decodeAll(docs)
}

// Mutate runs fn against the current session inside a transaction and
// merges the fields it returns. fn returning no fields writes nothing.
func (r *Repo) Mutate(ctx context.Context, id string, fn func(s *Session) (map[string]any, error)) error {
	return r.st.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get(sessionPath(id))
		if err != nil {
			return err
		}
		s, err := decodeSession(doc.ID, doc.Data)
		if err != nil {
			return err
		}
		fields, err := fn(s)
		if err != nil || len(fields) == 0 {
			return err
		}
		return tx.Update(sessionPath(id), fields)
	})
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	return r.st.Delete(ctx, sessionPath(id))
}

func decodeAll(docs []store.Doc) ([]Session, []error, error) {
	out := make([]Session, 0, len(docs))
	var bad []error
	for _, d := range docs {
		s, err := decodeSession(d.ID, d.Data)
		if err != nil {
			bad = append(bad, err)
			continue
		}
		out = append(out, *s)
	}
	return out, bad, nil
}
