package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore implements Store over a Cloud Firestore client.
type Firestore struct {
	FS *firestore.Client
}

func NewFirestore(fs *firestore.Client) *Firestore {
	return &Firestore{FS: fs}
}

func (s *Firestore) Get(ctx context.Context, path string) (*Doc, error) {
	snap, err := s.FS.Doc(path).Get(ctx)
	if err != nil {
		return nil, mapErr(err, path)
	}
	return toDoc(snap), nil
}

func (s *Firestore) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	var err error
	if merge {
		_, err = s.FS.Doc(path).Set(ctx, encode(data), firestore.MergeAll)
	} else {
		_, err = s.FS.Doc(path).Set(ctx, encode(data))
	}
	return mapErr(err, path)
}

func (s *Firestore) Create(ctx context.Context, path string, data map[string]any) error {
	_, err := s.FS.Doc(path).Create(ctx, encode(data))
	return mapErr(err, path)
}

func (s *Firestore) Update(ctx context.Context, path string, fields map[string]any) error {
	_, err := s.FS.Doc(path).Update(ctx, updates(fields))
	return mapErr(err, path)
}

func (s *Firestore) Delete(ctx context.Context, path string) error {
	_, err := s.FS.Doc(path).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return mapErr(err, path)
}

func (s *Firestore) Query(ctx context.Context, q Query) ([]Doc, error) {
	iter := s.query(q).Documents(ctx)
	defer iter.Stop()

	var out []Doc
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Collection, err)
		}
		out = append(out, *toDoc(snap))
	}
	return out, nil
}

func (s *Firestore) Listen(ctx context.Context, q Query) (Subscription, error) {
	return &firestoreSub{ctx: ctx, it: s.query(q).Snapshots(ctx)}, nil
}

func (s *Firestore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.FS.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{fs: s.FS, tx: t})
	})
}

func (s *Firestore) NewID(collection string) string {
	return s.FS.Collection(collection).NewDoc().ID
}

func (s *Firestore) query(q Query) firestore.Query {
	fq := s.FS.Collection(q.Collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

type firestoreSub struct {
	ctx context.Context
	it  *firestore.QuerySnapshotIterator
}

func (s *firestoreSub) Next() ([]Doc, error) {
	qs, err := s.it.Next()
	if err != nil {
		if err == iterator.Done || s.ctx.Err() != nil || status.Code(err) == codes.Canceled {
			return nil, ErrDone
		}
		return nil, err
	}
	snaps, err := qs.Documents.GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]Doc, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, *toDoc(snap))
	}
	return out, nil
}

func (s *firestoreSub) Stop() { s.it.Stop() }

type firestoreTx struct {
	fs *firestore.Client
	tx *firestore.Transaction
}

func (t *firestoreTx) Get(path string) (*Doc, error) {
	snap, err := t.tx.Get(t.fs.Doc(path))
	if err != nil {
		return nil, mapErr(err, path)
	}
	return toDoc(snap), nil
}

func (t *firestoreTx) Set(path string, data map[string]any, merge bool) error {
	if merge {
		return t.tx.Set(t.fs.Doc(path), encode(data), firestore.MergeAll)
	}
	return t.tx.Set(t.fs.Doc(path), encode(data))
}

func (t *firestoreTx) Update(path string, fields map[string]any) error {
	return t.tx.Update(t.fs.Doc(path), updates(fields))
}

func (t *firestoreTx) Delete(path string) error {
	return t.tx.Delete(t.fs.Doc(path))
}

func toDoc(snap *firestore.DocumentSnapshot) *Doc {
	return &Doc{ID: snap.Ref.ID, Path: snap.Ref.Path, Data: snap.Data()}
}

// encode swaps store transforms for their Firestore sentinels.
func encode(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = encodeValue(v)
	}
	return out
}

func encodeValue(v any) any {
	t, ok := v.(Transform)
	if !ok {
		return v
	}
	switch t.Kind {
	case TransformArrayUnion:
		return firestore.ArrayUnion(t.Values...)
	case TransformArrayRemove:
		return firestore.ArrayRemove(t.Values...)
	}
	return v
}

func updates(fields map[string]any) []firestore.Update {
	out := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		out = append(out, firestore.Update{Path: k, Value: encodeValue(v)})
	}
	return out
}

func mapErr(err error, path string) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", path, err)
}
