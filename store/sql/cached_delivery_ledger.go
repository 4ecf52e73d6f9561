package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/watchrelay/watchrelay/core"
)

const deliveryCacheKeyPrefix = "watchrelay::delivery::v1"

// CachedDeliveryLedger fronts a DeliveryLedger with an in-process cache for
// membership checks. Every cycle re-tests the same recent window of event
// ids, so positive and negative lookups both benefit. MarkDelivered drops the
// cached entry before returning, keeping the ledger the source of truth.
type CachedDeliveryLedger struct {
	base  core.DeliveryLedger
	cache repositorycache.CacheService
}

func NewCachedDeliveryLedger(
	base core.DeliveryLedger,
	cacheService repositorycache.CacheService,
) (*CachedDeliveryLedger, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base delivery ledger is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: delivery cache service is required")
	}
	return &CachedDeliveryLedger{base: base, cache: cacheService}, nil
}

// DeliveryCacheKey returns the deterministic cache key for an event id:
// watchrelay::delivery::v1::<event_id> with the id URL-path escaped.
func DeliveryCacheKey(eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", fmt.Errorf("sqlstore: event id is required")
	}
	return deliveryCacheKeyPrefix + "::" + url.PathEscape(eventID), nil
}

func (l *CachedDeliveryLedger) IsDelivered(ctx context.Context, eventID string) (bool, error) {
	if l == nil || l.base == nil || l.cache == nil {
		return false, fmt.Errorf("sqlstore: cached delivery ledger is not configured")
	}
	cacheKey, err := DeliveryCacheKey(eventID)
	if err != nil {
		return false, err
	}
	return repositorycache.GetOrFetch(ctx, l.cache, cacheKey, func(ctx context.Context) (bool, error) {
		return l.base.IsDelivered(ctx, eventID)
	})
}

func (l *CachedDeliveryLedger) MarkDelivered(ctx context.Context, eventID string) error {
	if l == nil || l.base == nil || l.cache == nil {
		return fmt.Errorf("sqlstore: cached delivery ledger is not configured")
	}
	cacheKey, err := DeliveryCacheKey(eventID)
	if err != nil {
		return err
	}
	if err := l.base.MarkDelivered(ctx, eventID); err != nil {
		return err
	}
	return l.cache.Delete(ctx, cacheKey)
}

// PurgeOlderThan passes through uncached. A purged id may linger in the cache
// as delivered until its TTL runs out; that only suppresses a re-notification
// the retention window already considers stale.
func (l *CachedDeliveryLedger) PurgeOlderThan(ctx context.Context, horizon time.Duration) (int, error) {
	if l == nil || l.base == nil {
		return 0, fmt.Errorf("sqlstore: cached delivery ledger is not configured")
	}
	return l.base.PurgeOlderThan(ctx, horizon)
}

var _ core.DeliveryLedger = (*CachedDeliveryLedger)(nil)
