package profile

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

func userPath(uid string) string {
	return store.Join(ColUsers, uid)
}

// Get returns the raw user document.
func (r *Repo) Get(ctx context.Context, uid string) (*store.Doc, error) {
	return r.st.Get(ctx, userPath(uid))
}

func (r *Repo) Create(ctx context.Context, uid string, data map[string]any) error {
	return r.st.Create(ctx, userPath(uid), data)
}

// Mutate reads the user inside a transaction, lets build compute the fields
// to merge, and writes them.
func (r *Repo) Mutate(ctx context.Context, uid string, build func(cur map[string]any) (map[string]any, error)) error {
	return r.st.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get(userPath(uid))
		if err != nil {
			return err
		}
		fields, err := build(doc.Data)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		return tx.Set(userPath(uid), fields, true)
	})
}

// AddToList appends id to an array field; the user document must exist.
func (r *Repo) AddToList(ctx context.Context, uid, field, id string) error {
	return r.st.Update(ctx, userPath(uid), map[string]any{field: store.ArrayUnion(id)})
}

// RemoveFromList removes id from an array field. A missing user or an
// absent id is a no-op.
func (r *Repo) RemoveFromList(ctx context.Context, uid, field, id string) error {
	err := r.st.Update(ctx, userPath(uid), map[string]any{field: store.ArrayRemove(id)})
	if store.IsErrNotFound(err) {
		return nil
	}
	return err
}
