// Package store is the document-store contract the domain packages consume.
// Paths are slash separated: "users/{uid}", "conversations/{id}/messages/{mid}".
package store

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	// ErrDone is returned by Subscription.Next once the subscription has ended.
	ErrDone = errors.New("subscription done")
)

func IsErrNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsErrAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// Doc is one document read from the store. Data holds Firestore-normalized
// values: string, bool, int64, float64, time.Time, []any, map[string]any, nil.
type Doc struct {
	ID   string
	Path string
	Data map[string]any
}

type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// Where returns a copy of q with one more filter.
func (q Query) Where(field string, op Op, v any) Query {
	fs := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(fs, q.Filters)
	q.Filters = append(fs, Filter{Field: field, Op: op, Value: v})
	return q
}

// Subscription delivers full result sets. Next blocks until the next snapshot
// and returns ErrDone after Stop or when the listen context ends.
type Subscription interface {
	Next() ([]Doc, error)
	Stop()
}

// Tx is a read-modify-write transaction. All reads must precede writes.
type Tx interface {
	Get(path string) (*Doc, error)
	Set(path string, data map[string]any, merge bool) error
	Update(path string, fields map[string]any) error
	Delete(path string) error
}

type Store interface {
	Get(ctx context.Context, path string) (*Doc, error)
	Set(ctx context.Context, path string, data map[string]any, merge bool) error
	Create(ctx context.Context, path string, data map[string]any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error
	Query(ctx context.Context, q Query) ([]Doc, error)
	Listen(ctx context.Context, q Query) (Subscription, error)
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	NewID(collection string) string
}

// Join builds a document or collection path from segments.
func Join(segs ...string) string {
	return strings.Join(segs, "/")
}

// Split returns the collection path and the document id of a document path.
func Split(path string) (collection, id string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
