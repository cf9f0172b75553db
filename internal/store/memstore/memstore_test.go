package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rallyup/backend/internal/store"
)

func TestCreateGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Get(ctx, "users/u1")
	require.True(t, store.IsErrNotFound(err))

	require.NoError(t, s.Create(ctx, "users/u1", map[string]any{"fullName": "Ana", "age": 30}))
	err = s.Create(ctx, "users/u1", map[string]any{"fullName": "Other"})
	require.True(t, store.IsErrAlreadyExists(err))

	doc, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.ID)
	assert.Equal(t, "users/u1", doc.Path)
	assert.Equal(t, "Ana", doc.Data["fullName"])
	assert.Equal(t, int64(30), doc.Data["age"], "ints are normalized to int64")

	require.NoError(t, s.Delete(ctx, "users/u1"))
	require.NoError(t, s.Delete(ctx, "users/u1"), "deleting a missing doc is a no-op")
	_, err = s.Get(ctx, "users/u1")
	assert.True(t, store.IsErrNotFound(err))
}

func TestReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{"sports": []string{"tennis"}}, false))

	doc, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	doc.Data["sports"].([]any)[0] = "soccer"

	again, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, []any{"tennis"}, again.Data["sports"])
}

func TestSetMergeAndTransforms(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{
		"fullName":       "Ana",
		"location":       map[string]any{"lat": 1.0, "lng": 2.0},
		"sessionHistory": []any{"s1"},
	}, false))

	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{
		"location":       map[string]any{"lat": 5.0},
		"sessionHistory": store.ArrayUnion("s1", "s2"),
	}, true))

	doc, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", doc.Data["fullName"])
	assert.Equal(t, map[string]any{"lat": 5.0, "lng": 2.0}, doc.Data["location"])
	assert.Equal(t, []any{"s1", "s2"}, doc.Data["sessionHistory"])

	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{
		"sessionHistory": store.ArrayRemove("s1", "missing"),
	}, true))
	doc, err = s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, []any{"s2"}, doc.Data["sessionHistory"])
	assert.Equal(t, "Ana", doc.Data["fullName"])

	// a non-merge set replaces the document
	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{"bio": "hi"}, false))
	doc, err = s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"bio": "hi"}, doc.Data)
}

func TestArrayUnionOnMissingField(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{"createdSessions": store.ArrayUnion("s1")}, true))
	doc, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, []any{"s1"}, doc.Data["createdSessions"])
}

func TestUpdateDottedPaths(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.Update(ctx, "conversations/c1", map[string]any{"lastMessage.isRead": true})
	require.True(t, store.IsErrNotFound(err), "update requires an existing doc")

	require.NoError(t, s.Create(ctx, "conversations/c1", map[string]any{
		"lastMessage": map[string]any{"content": "hi", "isRead": false},
	}))
	require.NoError(t, s.Update(ctx, "conversations/c1", map[string]any{"lastMessage.isRead": true}))

	doc, err := s.Get(ctx, "conversations/c1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"content": "hi", "isRead": true}, doc.Data["lastMessage"])
}

func TestQueryFiltersOrderLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(ctx, "sessions/"+id, map[string]any{
			"sport":        "tennis",
			"participants": []string{"host", id},
			"createdAt":    base.Add(time.Duration(i) * time.Hour),
		}, false))
	}
	require.NoError(t, s.Set(ctx, "sessions/d", map[string]any{"sport": "soccer", "participants": []string{"host"}}, false))

	docs, err := s.Query(ctx, store.Query{Collection: "sessions"}.Where("sport", store.OpEqual, "tennis"))
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	docs, err = s.Query(ctx, store.Query{Collection: "sessions"}.Where("participants", store.OpArrayContains, "b"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].ID)

	docs, err = s.Query(ctx, store.Query{Collection: "sessions", OrderBy: "createdAt", Desc: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, docs, 2, "docs without the order field are excluded")
	assert.Equal(t, "c", docs[0].ID)
	assert.Equal(t, "b", docs[1].ID)
}

func TestListenDeliversSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New()
	require.NoError(t, s.Set(ctx, "conversations/c1/messages/m1", map[string]any{"content": "one"}, false))

	q := store.Query{Collection: "conversations/c1/messages"}
	sub, err := s.Listen(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Watchers(q.Collection))

	docs, err := sub.Next()
	require.NoError(t, err)
	assert.Len(t, docs, 1, "first snapshot is immediate")

	go func() {
		_ = s.Set(context.Background(), "conversations/c1/messages/m2", map[string]any{"content": "two"}, false)
	}()
	docs, err = sub.Next()
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	sub.Stop()
	_, err = sub.Next()
	assert.ErrorIs(t, err, store.ErrDone)
	assert.Equal(t, 0, s.Watchers(q.Collection))
}

func TestListenEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()
	sub, err := s.Listen(ctx, store.Query{Collection: "users"})
	require.NoError(t, err)
	_, err = sub.Next()
	require.NoError(t, err)

	cancel()
	_, err = sub.Next()
	assert.ErrorIs(t, err, store.ErrDone)
	assert.Equal(t, 0, s.Watchers("users"))
}

func TestTransactionAppliesAtomically(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "sessions/s1", map[string]any{"count": 1}, false))

	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get("sessions/s1")
		if err != nil {
			return err
		}
		n, _ := store.Int(doc.Data, "count")
		if err := tx.Update("sessions/s1", map[string]any{"count": n + 1}); err != nil {
			return err
		}
		return tx.Set("users/u1", map[string]any{"ok": true}, true)
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, "sessions/s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Data["count"])

	boom := errors.New("boom")
	err = s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		_ = tx.Delete("sessions/s1")
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = s.Get(ctx, "sessions/s1")
	assert.NoError(t, err, "aborted transaction writes nothing")
}

func TestTransactionRejectsReadAfterWrite(t *testing.T) {
	s := New()
	err := s.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_ = tx.Set("users/u1", map[string]any{"a": 1}, false)
		_, err := tx.Get("users/u1")
		return err
	})
	assert.ErrorIs(t, err, errReadAfterWrite)
}

func TestTransactionUpdateMissingFails(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{"a": 1}, false))

	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		_ = tx.Set("users/u1", map[string]any{"a": 2}, false)
		return tx.Update("users/missing", map[string]any{"a": 1})
	})
	require.True(t, store.IsErrNotFound(err))

	doc, err := s.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Data["a"])
}

func TestFaultInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("unavailable")
	s.SetFault(func(op Op, path string) error {
		if op == OpSet && path == "users/u2" {
			return boom
		}
		return nil
	})

	require.NoError(t, s.Set(ctx, "users/u1", map[string]any{"a": 1}, false))
	require.ErrorIs(t, s.Set(ctx, "users/u2", map[string]any{"a": 1}, false), boom)
	_, err := s.Get(ctx, "users/u2")
	assert.True(t, store.IsErrNotFound(err))

	s.SetFault(nil)
	require.NoError(t, s.Set(ctx, "users/u2", map[string]any{"a": 1}, false))
}

func TestNewIDIsUnique(t *testing.T) {
	s := New()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := s.NewID("sessions")
		assert.Len(t, id, 20)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
