package catalog

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"reelshelf/internal/metrics"
)

const DefaultTTL = 5 * time.Minute

// Forced rescans never join a lazy load, which may return a fresh snapshot
// without scanning.
const (
	lazyScanKey   = "scan"
	forcedScanKey = "rescan"
)

type snapshot struct {
	catalog  *Catalog
	storedAt time.Time
}

// Cache holds the latest Catalog for one Scanner and rescans once it is older
// than the TTL. Concurrent readers of a stale cache share a single scan.
type Cache struct {
	scanner Scanner
	ttl     time.Duration
	scope   string
	logger  zerolog.Logger
	now     func() time.Time

	current atomic.Pointer[snapshot]
	group   singleflight.Group
}

// NewCache wraps scanner. scope labels logs and metrics ("default", "admin").
func NewCache(scanner Scanner, ttl time.Duration, scope string) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		scanner: scanner,
		ttl:     ttl,
		scope:   scope,
		logger:  scanner.Logger.With().Str("component", "catalog").Str("scope", scope).Logger(),
		now:     time.Now,
	}
}

// Get returns the cached catalog, scanning first when it is missing or stale.
// If ctx ends while waiting on a scan, the previous snapshot is returned.
func (c *Cache) Get(ctx context.Context) *Catalog {
	if snap := c.current.Load(); snap != nil && c.fresh(snap) {
		return snap.catalog
	}
	return c.load(ctx, false)
}

// Refresh rescans regardless of age.
func (c *Cache) Refresh(ctx context.Context) *Catalog {
	return c.load(ctx, true)
}

// Root is the library directory this cache scans.
func (c *Cache) Root() string {
	return c.scanner.Root
}

func (c *Cache) fresh(snap *snapshot) bool {
	return c.now().Sub(snap.storedAt) <= c.ttl
}

func (c *Cache) load(ctx context.Context, force bool) *Catalog {
	key := lazyScanKey
	if force {
		key = forcedScanKey
	}
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if !force {
			if snap := c.current.Load(); snap != nil && c.fresh(snap) {
				return snap.catalog, nil
			}
		}
		// the scan outlives the caller that triggered it; others may be waiting
		return c.scan(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		return res.Val.(*Catalog)
	case <-ctx.Done():
		if snap := c.current.Load(); snap != nil {
			return snap.catalog
		}
		return emptyCatalog(c.now())
	}
}

func (c *Cache) scan(ctx context.Context) *Catalog {
	started := time.Now()
	cat, err := c.scanner.Scan(ctx)
	metrics.ScanDuration.WithLabelValues(c.scope).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.ScanFailuresTotal.WithLabelValues(c.scope).Inc()
		if prev := c.current.Load(); prev != nil {
			c.logger.Error().Err(err).Msg("library scan failed, serving previous catalog")
			return prev.catalog
		}
		c.logger.Error().Err(err).Msg("library scan failed, serving empty catalog")
	} else {
		c.logger.Debug().Int("series", len(cat.Series)).Dur("took", time.Since(started)).Msg("library scanned")
	}
	c.current.Store(&snapshot{catalog: cat, storedAt: c.now()})
	metrics.CatalogSeries.WithLabelValues(c.scope).Set(float64(len(cat.Series)))
	return cat
}
