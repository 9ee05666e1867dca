package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/douyudm/dmclient/internal/persist"
	"go.uber.org/zap"
)

// Store is the persistence the cache needs. *persist.RoomRepo implements it.
type Store interface {
	Load(ctx context.Context, name string) (*persist.RoomAliasRow, error)
	Save(ctx context.Context, name string, roomID int, source string) error
	Delete(ctx context.Context, name string) error
}

// Cached consults store before next and records what next resolves.
// Entries older than ttl are refreshed; ttl <= 0 keeps them forever.
type Cached struct {
	store Store
	next  Resolver
	ttl   time.Duration
	now   func() time.Time
	log   *zap.Logger
}

func NewCached(store Store, next Resolver, ttl time.Duration, log *zap.Logger) *Cached {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cached{store: store, next: next, ttl: ttl, now: time.Now, log: log}
}

func (c *Cached) Resolve(ctx context.Context, name string) (int, error) {
	row, err := c.store.Load(ctx, name)
	if err != nil {
		// A broken cache must not block lookups.
		c.log.Warn("房間快取讀取失敗", zap.String("name", name), zap.Error(err))
		row = nil
	} else if row != nil && (c.ttl <= 0 || c.now().Sub(row.ResolvedAt) < c.ttl) {
		return row.RoomID, nil
	}

	id, err := c.next.Resolve(ctx, name)
	if err != nil {
		// A stale entry for a name the API no longer knows is dropped.
		if row != nil && errors.Is(err, ErrNotFound) {
			if derr := c.store.Delete(ctx, name); derr != nil {
				c.log.Warn("房間快取刪除失敗", zap.String("name", name), zap.Error(derr))
			} else {
				c.log.Info("已移除失效的房間快取", zap.String("name", name), zap.Int("room", row.RoomID))
			}
		}
		return 0, err
	}
	if err := c.store.Save(ctx, name, id, "api"); err != nil {
		c.log.Warn("房間快取寫入失敗", zap.String("name", name), zap.Error(err))
	}
	return id, nil
}
