// Package memstore is an in-memory store.Store used by tests and by the API
// server when STORE_BACKEND=memory. It mirrors the Firestore behaviour the
// domain relies on: merge semantics, array transforms, NotFound/AlreadyExists,
// full-snapshot listeners and serialized transactions.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rallyup/backend/internal/store"
)

type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpQuery  Op = "query"
	OpListen Op = "listen"
)

// FaultFunc is consulted before every operation; a non-nil error is returned
// to the caller and the operation is not applied.
type FaultFunc func(op Op, path string) error

var errReadAfterWrite = errors.New("memstore: transaction reads must precede writes")

type Store struct {
	mu       sync.Mutex
	cols     map[string]map[string]map[string]any
	watchers map[string]map[*subscription]struct{}
	fault    FaultFunc

	txMu sync.Mutex
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		cols:     map[string]map[string]map[string]any{},
		watchers: map[string]map[*subscription]struct{}{},
	}
}

func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	s.fault = f
	s.mu.Unlock()
}

func (s *Store) check(op Op, path string) error {
	s.mu.Lock()
	f := s.fault
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f(op, path)
}

func (s *Store) Get(ctx context.Context, path string) (*store.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.check(OpGet, path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(path)
}

func (s *Store) getLocked(path string) (*store.Doc, error) {
	col, id := store.Split(path)
	data, ok := s.cols[col][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, path)
	}
	return &store.Doc{ID: id, Path: path, Data: copyMap(data)}, nil
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.check(OpSet, path); err != nil {
		return err
	}
	s.apply([]write{{kind: OpSet, path: path, data: data, merge: merge}})
	return nil
}

func (s *Store) Create(ctx context.Context, path string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.check(OpCreate, path); err != nil {
		return err
	}
	s.mu.Lock()
	col, id := store.Split(path)
	_, exists := s.cols[col][id]
	s.mu.Unlock()
	if exists {
		return fmt.Errorf("%w: %s", store.ErrAlreadyExists, path)
	}
	return s.applyChecked([]write{{kind: OpCreate, path: path, data: data}})
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.check(OpUpdate, path); err != nil {
		return err
	}
	return s.applyChecked([]write{{kind: OpUpdate, path: path, data: fields}})
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.check(OpDelete, path); err != nil {
		return err
	}
	s.apply([]write{{kind: OpDelete, path: path}})
	return nil
}

func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.check(OpQuery, q.Collection); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryLocked(q), nil
}

func (s *Store) Listen(ctx context.Context, q store.Query) (store.Subscription, error) {
	if err := s.check(OpListen, q.Collection); err != nil {
		return nil, err
	}
	sub := &subscription{
		s:      s,
		ctx:    ctx,
		q:      q,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	if s.watchers[q.Collection] == nil {
		s.watchers[q.Collection] = map[*subscription]struct{}{}
	}
	s.watchers[q.Collection][sub] = struct{}{}
	s.mu.Unlock()
	return sub, nil
}

func (s *Store) NewID(string) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

// RunTransaction serializes transactions and applies buffered writes
// atomically when fn returns nil.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &transaction{s: s, ctx: ctx}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.applyChecked(tx.writes)
}

// Watchers reports the number of live subscriptions on a collection.
func (s *Store) Watchers(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers[collection])
}

type write struct {
	kind  Op
	path  string
	data  map[string]any
	merge bool
}

// applyChecked validates existence preconditions for every write before
// applying any of them.
func (s *Store) applyChecked(ws []write) error {
	s.mu.Lock()
	for _, w := range ws {
		col, id := store.Split(w.path)
		_, exists := s.cols[col][id]
		switch {
		case w.kind == OpUpdate && !exists:
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", store.ErrNotFound, w.path)
		case w.kind == OpCreate && exists:
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", store.ErrAlreadyExists, w.path)
		}
	}
	s.mu.Unlock()
	s.apply(ws)
	return nil
}

func (s *Store) apply(ws []write) {
	s.mu.Lock()
	touched := map[string]bool{}
	for _, w := range ws {
		col, id := store.Split(w.path)
		touched[col] = true
		docs := s.cols[col]
		if docs == nil {
			docs = map[string]map[string]any{}
			s.cols[col] = docs
		}
		switch w.kind {
		case OpDelete:
			delete(docs, id)
		case OpUpdate:
			cur := docs[id]
			if cur == nil {
				continue
			}
			for k, v := range w.data {
				setPath(cur, strings.Split(k, "."), normalize(v))
			}
		case OpCreate:
			docs[id] = mergeInto(map[string]any{}, normalizeMap(w.data))
		case OpSet:
			if w.merge && docs[id] != nil {
				docs[id] = mergeInto(docs[id], normalizeMap(w.data))
			} else {
				docs[id] = mergeInto(map[string]any{}, normalizeMap(w.data))
			}
		}
	}
	var subs []*subscription
	for col := range touched {
		for sub := range s.watchers[col] {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}

func (s *Store) queryLocked(q store.Query) []store.Doc {
	var out []store.Doc
	for id, data := range s.cols[q.Collection] {
		if !matches(data, q.Filters) {
			continue
		}
		if q.OrderBy != "" {
			if _, ok := data[q.OrderBy]; !ok {
				continue
			}
		}
		out = append(out, store.Doc{ID: id, Path: store.Join(q.Collection, id), Data: copyMap(data)})
	}
	sort.Slice(out, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compare(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy])
			if c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (s *Store) unwatch(sub *subscription) {
	s.mu.Lock()
	delete(s.watchers[sub.q.Collection], sub)
	s.mu.Unlock()
}

type subscription struct {
	s       *Store
	ctx     context.Context
	q       store.Query
	notify  chan struct{}
	done    chan struct{}
	once    sync.Once
	started bool
	last    []store.Doc
}

func (sub *subscription) Next() ([]store.Doc, error) {
	for {
		select {
		case <-sub.done:
			return nil, store.ErrDone
		case <-sub.ctx.Done():
			sub.Stop()
			return nil, store.ErrDone
		default:
		}

		if sub.started {
			select {
			case <-sub.notify:
			case <-sub.done:
				return nil, store.ErrDone
			case <-sub.ctx.Done():
				sub.Stop()
				return nil, store.ErrDone
			}
		}

		sub.s.mu.Lock()
		docs := sub.s.queryLocked(sub.q)
		sub.s.mu.Unlock()

		if sub.started && reflect.DeepEqual(docs, sub.last) {
			continue
		}
		sub.started = true
		sub.last = docs
		out := make([]store.Doc, len(docs))
		for i, d := range docs {
			out[i] = store.Doc{ID: d.ID, Path: d.Path, Data: copyMap(d.Data)}
		}
		return out, nil
	}
}

func (sub *subscription) Stop() {
	sub.once.Do(func() {
		close(sub.done)
		sub.s.unwatch(sub)
	})
}

type transaction struct {
	s      *Store
	ctx    context.Context
	writes []write
}

func (t *transaction) Get(path string) (*store.Doc, error) {
	if len(t.writes) > 0 {
		return nil, errReadAfterWrite
	}
	return t.s.Get(t.ctx, path)
}

func (t *transaction) Set(path string, data map[string]any, merge bool) error {
	if err := t.s.check(OpSet, path); err != nil {
		return err
	}
	t.writes = append(t.writes, write{kind: OpSet, path: path, data: data, merge: merge})
	return nil
}

func (t *transaction) Update(path string, fields map[string]any) error {
	if err := t.s.check(OpUpdate, path); err != nil {
		return err
	}
	t.writes = append(t.writes, write{kind: OpUpdate, path: path, data: fields})
	return nil
}

func (t *transaction) Delete(path string) error {
	if err := t.s.check(OpDelete, path); err != nil {
		return err
	}
	t.writes = append(t.writes, write{kind: OpDelete, path: path})
	return nil
}

// mergeInto applies src onto dst with MergeAll semantics: nested maps merge
// leaf by leaf, transforms are evaluated against the current value.
func mergeInto(dst, src map[string]any) map[string]any {
	for k, v := range src {
		switch x := v.(type) {
		case store.Transform:
			dst[k] = applyTransform(dst[k], x)
		case map[string]any:
			cur, ok := dst[k].(map[string]any)
			if !ok {
				cur = map[string]any{}
			}
			dst[k] = mergeInto(cur, x)
		default:
			dst[k] = v
		}
	}
	return dst
}

func setPath(m map[string]any, keys []string, v any) {
	if len(keys) == 1 {
		if t, ok := v.(store.Transform); ok {
			m[keys[0]] = applyTransform(m[keys[0]], t)
			return
		}
		if mv, ok := v.(map[string]any); ok {
			v = mergeInto(map[string]any{}, mv)
		}
		m[keys[0]] = v
		return
	}
	next, ok := m[keys[0]].(map[string]any)
	if !ok {
		next = map[string]any{}
		m[keys[0]] = next
	}
	setPath(next, keys[1:], v)
}

func applyTransform(cur any, t store.Transform) any {
	arr, _ := cur.([]any)
	switch t.Kind {
	case store.TransformArrayUnion:
		out := append([]any{}, arr...)
		for _, v := range t.Values {
			if !containsValue(out, v) {
				out = append(out, v)
			}
		}
		return out
	case store.TransformArrayRemove:
		out := make([]any, 0, len(arr))
		for _, x := range arr {
			if !containsValue(t.Values, x) {
				out = append(out, x)
			}
		}
		return out
	}
	return cur
}

func matches(data map[string]any, filters []store.Filter) bool {
	for _, f := range filters {
		v := normalize(f.Value)
		switch f.Op {
		case store.OpEqual:
			if !equalValues(data[f.Field], v) {
				return false
			}
		case store.OpArrayContains:
			arr, ok := data[f.Field].([]any)
			if !ok || !containsValue(arr, v) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func containsValue(arr []any, v any) bool {
	for _, x := range arr {
		if equalValues(x, v) {
			return true
		}
	}
	return false
}

func equalValues(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func compare(a, b any) int {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, y)
		}
		if y, ok := b.(float64); ok {
			return cmpOrdered(float64(x), y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmpOrdered(x, y)
		}
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, float64(y))
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.(bool); ok && x != y {
			if !x {
				return -1
			}
			return 1
		}
	}
	return 0
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
