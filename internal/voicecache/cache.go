// Package voicecache serves voice metadata with a stale-while-revalidate
// policy over a durable record. Reads within the TTL never touch the
// discovery source; stale reads answer immediately from the old record
// and refresh in the background.
package voicecache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parlancelabs/parlance/internal/engine"
	"github.com/parlancelabs/parlance/internal/store"
)

// DiscoverFunc enumerates the voices currently known to the engine.
type DiscoverFunc func(ctx context.Context) ([]string, error)

// RecordStore is the durable backing for the cached record.
type RecordStore interface {
	ReadVoiceRecord(ctx context.Context) (store.VoiceRecord, bool, error)
	WriteVoiceRecord(ctx context.Context, rec store.VoiceRecord) error
}

// Submitter schedules best-effort background work.
type Submitter interface {
	Submit(name string, fn func(context.Context) error) bool
}

// Snapshot is a point-in-time view of the cached record.
type Snapshot struct {
	Names       []string
	Count       int
	LastUpdated time.Time
	Age         time.Duration
	Stale       bool
}

// Cache coordinates cached reads against a single discovery source.
type Cache struct {
	discover DiscoverFunc
	store    RecordStore
	tasks    Submitter
	ttl      time.Duration
	log      *slog.Logger
	clock    func() time.Time

	mu         sync.Mutex
	refreshing atomic.Bool
}

// New builds a cache with the given TTL. A nil tasks submitter disables
// background refresh; stale reads then refresh synchronously.
func New(discover DiscoverFunc, rs RecordStore, tasks Submitter, ttl time.Duration, log *slog.Logger) *Cache {
	return &Cache{
		discover: discover,
		store:    rs,
		tasks:    tasks,
		ttl:      ttl,
		log:      log.With(slog.String("component", "voice-cache")),
		clock:    time.Now,
	}
}

func (c *Cache) snapshot(rec store.VoiceRecord) Snapshot {
	age := c.clock().Sub(rec.LastUpdated)
	return Snapshot{
		Names:       rec.Names,
		Count:       rec.Count,
		LastUpdated: rec.LastUpdated,
		Age:         age,
		Stale:       age > c.ttl,
	}
}

// Get returns the current voice snapshot. With force set the record is
// rebuilt synchronously. Otherwise a missing record triggers a
// synchronous build, a fresh record is returned as-is, and a stale
// record is returned immediately while one refresh runs in the
// background.
func (c *Cache) Get(ctx context.Context, force bool) (Snapshot, error) {
	if force {
		return c.Refresh(ctx, true)
	}

	rec, ok, err := c.store.ReadVoiceRecord(ctx)
	if err != nil {
		c.log.Warn("voice record read failed, rebuilding", slog.String("error", err.Error()))
		ok = false
	}
	if !ok {
		return c.Refresh(ctx, false)
	}

	snap := c.snapshot(rec)
	if !snap.Stale {
		return snap, nil
	}

	c.scheduleRefresh(ctx)
	return snap, nil
}

func (c *Cache) scheduleRefresh(ctx context.Context) {
	if c.tasks == nil {
		if _, err := c.Refresh(ctx, false); err != nil {
			c.log.Warn("voice refresh failed", slog.String("error", err.Error()))
		}
		return
	}
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}
	submitted := c.tasks.Submit("voice-refresh", func(ctx context.Context) error {
		defer c.refreshing.Store(false)
		_, err := c.Refresh(ctx, false)
		return err
	})
	if !submitted {
		c.refreshing.Store(false)
	}
}

// Refresh rebuilds the record from the discovery source. Without force,
// a record another caller refreshed while this one waited on the lock
// is returned without a second discovery call. An empty discovery
// result yields a zero-count snapshot and leaves the stored record
// untouched.
func (c *Cache) Refresh(ctx context.Context, force bool) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force {
		if rec, ok, err := c.store.ReadVoiceRecord(ctx); err == nil && ok {
			if snap := c.snapshot(rec); !snap.Stale {
				return snap, nil
			}
		}
	}

	names, err := c.discover(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("discover voices: %w", err)
	}
	names = engine.NormalizeVoices(names)

	now := c.clock().UTC()
	if len(names) == 0 {
		c.log.Warn("voice discovery returned no voices, keeping stored record")
		return Snapshot{Names: []string{}, Count: 0, LastUpdated: now}, nil
	}

	rec := store.VoiceRecord{Names: names, Count: len(names), LastUpdated: now}
	if err := c.store.WriteVoiceRecord(ctx, rec); err != nil {
		return Snapshot{}, fmt.Errorf("persist voice record: %w", err)
	}
	c.log.Info("voice record refreshed", slog.Int("count", rec.Count))
	return c.snapshot(rec), nil
}
