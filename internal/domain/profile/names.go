package profile

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"rallyup/backend/internal/store"
)

// UnknownName is shown for users whose profile is missing or has no name.
const UnknownName = "Unknown User"

type docGetter interface {
	Get(ctx context.Context, uid string) (*store.Doc, error)
}

// NameCache is a read-through cache of display names keyed by uid.
// Entries live until Invalidate; concurrent misses for one uid share a read.
// A read that overlaps an Invalidate of its uid is returned but not cached.
type NameCache struct {
	repo  docGetter
	group singleflight.Group

	mu    sync.RWMutex
	names map[string]string
	gen   map[string]uint64
}

func NewNameCache(repo docGetter) *NameCache {
	return &NameCache{repo: repo, names: map[string]string{}, gen: map[string]uint64{}}
}

func (c *NameCache) Name(ctx context.Context, uid string) (string, error) {
	c.mu.RLock()
	name, ok := c.names[uid]
	c.mu.RUnlock()
	if ok {
		return name, nil
	}

	v, err, _ := c.group.Do(uid, func() (any, error) {
		c.mu.RLock()
		gen := c.gen[uid]
		c.mu.RUnlock()

		doc, err := c.repo.Get(ctx, uid)
		if store.IsErrNotFound(err) {
			return UnknownName, nil
		}
		if err != nil {
			return "", err
		}
		name, _ := store.String(doc.Data, "fullName")
		name = strings.TrimSpace(name)
		if name == "" {
			return UnknownName, nil
		}
		c.mu.Lock()
		if c.gen[uid] == gen {
			c.names[uid] = name
		}
		c.mu.Unlock()
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Names resolves all uids concurrently and returns once every lookup has
// finished. The first error cancels the rest.
func (c *NameCache) Names(ctx context.Context, uids ...string) (map[string]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)

	var mu sync.Mutex
	out := make(map[string]string, len(uids))
	for _, uid := range uids {
		if uid == "" {
			continue
		}
		g.Go(func() error {
			name, err := c.Name(gctx, uid)
			if err != nil {
				return err
			}
			mu.Lock()
			out[uid] = name
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *NameCache) Invalidate(uid string) {
	c.mu.Lock()
	delete(c.names, uid)
	c.gen[uid]++
	c.mu.Unlock()
	c.group.Forget(uid)
}
