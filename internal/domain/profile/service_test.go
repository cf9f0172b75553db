package profile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rallyup/backend/internal/domain"
	"rallyup/backend/internal/store"
	"rallyup/backend/internal/store/memstore"
)

func newService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	return NewService(NewRepo(st), nil), st
}

func strp(s string) *string { return &s }

func TestCreateStubProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	require.NoError(t, svc.CreateStubProfile(ctx, "u1", " Ana Diaz ", "ana@example.com"))

	u, err := svc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Diaz", u.FullName)
	assert.Equal(t, domain.SkillBeginner, u.SkillLevel)
	assert.Equal(t, DefaultLocation, u.Location)
	assert.Empty(t, u.PreferredSports)
	assert.Empty(t, u.SessionHistory)
	assert.False(t, u.ProfileComplete)

	complete, err := svc.IsProfileComplete(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, complete)
}

func TestCreateStubProfileKeepsExisting(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	require.NoError(t, svc.CreateStubProfile(ctx, "u1", "Ana", "ana@example.com"))
	require.NoError(t, svc.UpdateProfile(ctx, "u1", UpdateProfileInput{Bio: strp("plays daily")}))
	require.NoError(t, svc.CreateStubProfile(ctx, "u1", "Someone Else", "x@example.com"))

	u, err := svc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.FullName)
	assert.Equal(t, "plays daily", u.Bio)
}

func TestCreateStubProfileRequiresFields(t *testing.T) {
	svc, _ := newService(t)
	err := svc.CreateStubProfile(context.Background(), "u1", "  ", "ana@example.com")
	assert.True(t, IsErrBadRequest(err))
}

func TestUpdateProfileCompleteness(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	require.NoError(t, svc.CreateStubProfile(ctx, "u1", "Ana", "ana@example.com"))

	require.NoError(t, svc.UpdateProfile(ctx, "u1", UpdateProfileInput{Bio: strp("Weekend player")}))
	complete, err := svc.IsProfileComplete(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, complete, "sports still empty")

	sports := []string{"Tennis", "tennis", " pickleball "}
	require.NoError(t, svc.UpdateProfile(ctx, "u1", UpdateProfileInput{PreferredSports: &sports}))

	u, err := svc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Sport{domain.SportTennis, domain.SportPickleball}, u.PreferredSports)
	assert.True(t, u.ProfileComplete)
	assert.Equal(t, "Weekend player", u.Bio, "unspecified fields are kept")

	require.NoError(t, svc.UpdateProfile(ctx, "u1", UpdateProfileInput{Bio: strp("   ")}))
	u, err = svc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, u.ProfileComplete)
}

func TestUpdateProfileValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	require.NoError(t, svc.CreateStubProfile(ctx, "u1", "Ana", "ana@example.com"))

	assert.True(t, IsErrBadRequest(svc.UpdateProfile(ctx, "u1", UpdateProfileInput{})))
	assert.True(t, IsErrBadRequest(svc.UpdateProfile(ctx, "u1", UpdateProfileInput{FullName: strp(" ")})))
	assert.True(t, IsErrBadRequest(svc.UpdateProfile(ctx, "u1", UpdateProfileInput{SkillLevel: strp("guru")})))

	bad := []string{"curling"}
	assert.True(t, IsErrBadRequest(svc.UpdateProfile(ctx, "u1", UpdateProfileInput{PreferredSports: &bad})))

	err := svc.UpdateProfile(ctx, "missing", UpdateProfileInput{Bio: strp("x")})
	assert.True(t, IsErrNotFound(err))
}

func TestGetProfileMalformed(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	require.NoError(t, st.Set(ctx, "users/u1", map[string]any{
		"fullName": "Ana",
		"bio":      "hi",
	}, false))

	_, err := svc.GetProfile(ctx, "u1")
	require.Error(t, err)
	assert.True(t, IsErrMalformedProfile(err))
	assert.True(t, domain.IsErrMalformedData(err))

	// completeness only reads bio and sports
	complete, err := svc.IsProfileComplete(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, complete)

	_, err = svc.GetProfile(ctx, "nobody")
	assert.True(t, IsErrNotFound(err))
}

func TestSessionRefs(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	require.NoError(t, svc.CreateStubProfile(ctx, "u1", "Ana", "ana@example.com"))

	require.NoError(t, svc.AddSessionRef(ctx, "u1", "s1"))
	require.NoError(t, svc.AddSessionRef(ctx, "u1", "s1"))
	require.NoError(t, svc.AddCreatedSession(ctx, "u1", "s1"))

	history, created, err := svc.SessionRefs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, history)
	assert.Equal(t, []string{"s1"}, created)

	require.NoError(t, svc.RemoveSessionRef(ctx, "u1", "s1"))
	require.NoError(t, svc.RemoveCreatedSession(ctx, "u1", "s1"))
	require.NoError(t, svc.RemoveSessionRef(ctx, "ghost", "s1"), "removing from a missing user is a no-op")

	history, created, err = svc.SessionRefs(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, created)

	assert.True(t, domain.IsErrNotFound(svc.AddSessionRef(ctx, "ghost", "s1")))
}

func TestSessionRefsWriteFailure(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)
	require.NoError(t, svc.CreateStubProfile(ctx, "u1", "Ana", "ana@example.com"))
	st.SetFault(func(op memstore.Op, path string) error {
		if op == memstore.OpUpdate {
			return errors.New("unavailable")
		}
		return nil
	})
	assert.True(t, domain.IsErrWriteFailure(svc.AddSessionRef(ctx, "u1", "s1")))
}

type fakeAuth struct {
	calls atomic.Int32
	err   error
}

func (f *fakeAuth) UpdateUser(ctx context.Context, uid string, u *auth.UserToUpdate) (*auth.UserRecord, error) {
	f.calls.Add(1)
	return nil, f.err
}

func TestUpdateProfileSyncsDisplayName(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	fa := &fakeAuth{err: errors.New("auth down")}
	svc.SetAuthUpdater(fa)
	require.NoError(t, svc.CreateStubProfile(ctx, "u1", "Ana", "ana@example.com"))

	name, err := svc.Names().Name(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", name)

	require.NoError(t, svc.UpdateProfile(ctx, "u1", UpdateProfileInput{FullName: strp("Ana Maria")}),
		"auth sync failures are logged, not returned")
	assert.Equal(t, int32(1), fa.calls.Load())

	name, err = svc.Names().Name(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", name)
}

type countingRepo struct {
	st    store.Store
	reads atomic.Int32
}

func (r *countingRepo) Get(ctx context.Context, uid string) (*store.Doc, error) {
	r.reads.Add(1)
	return r.st.Get(ctx, "users/"+uid)
}

func TestNameCache(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	require.NoError(t, st.Set(ctx, "users/u1", map[string]any{"fullName": "Ana"}, false))
	require.NoError(t, st.Set(ctx, "users/u2", map[string]any{"fullName": "  "}, false))
	repo := &countingRepo{st: st}
	c := NewNameCache(repo)

	names, err := c.Names(ctx, "u1", "u2", "ghost", "")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "Ana", "u2": UnknownName, "ghost": UnknownName}, names)

	before := repo.reads.Load()
	name, err := c.Name(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", name)
	assert.Equal(t, before, repo.reads.Load(), "cached")

	require.NoError(t, st.Set(ctx, "users/u1", map[string]any{"fullName": "Ana B"}, false))
	c.Invalidate("u1")
	name, err = c.Name(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana B", name)
}

func TestNameCacheReadError(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	boom := errors.New("unavailable")
	st.SetFault(func(memstore.Op, string) error { return boom })
	c := NewNameCache(&countingRepo{st: st})

	_, err := c.Names(ctx, "u1")
	assert.ErrorIs(t, err, boom)
}

type gatedRepo struct {
	st      *memstore.Store
	started chan struct{}
	release chan struct{}
}

func (r *gatedRepo) Get(ctx context.Context, uid string) (*store.Doc, error) {
	doc, err := r.st.Get(ctx, "users/"+uid)
	if r.started != nil {
		close(r.started)
		r.started = nil
		<-r.release
	}
	return doc, err
}

func TestNameCacheInvalidateDuringRead(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	require.NoError(t, st.Set(ctx, "users/u1", map[string]any{"fullName": "Ana"}, false))
	repo := &gatedRepo{st: st, started: make(chan struct{}), release: make(chan struct{})}
	started := repo.started
	c := NewNameCache(repo)

	done := make(chan string)
	go func() {
		name, _ := c.Name(ctx, "u1")
		done <- name
	}()
	<-started

	// the rename lands after the read but before it is cached
	require.NoError(t, st.Set(ctx, "users/u1", map[string]any{"fullName": "Ana B"}, false))
	c.Invalidate("u1")
	close(repo.release)
	assert.Equal(t, "Ana", <-done)

	name, err := c.Name(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana B", name, "the stale read was not cached")
}
