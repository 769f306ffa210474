// Package cache stores encoded query results in Redis and removes them again
// when the entities or areas they were computed from change.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/cache/cellindex"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/cache/redisstore"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/observability"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/mapper"
)

const (
	defaultMaxCells = 512
	delBatch        = 256
)

type Options struct {
	TTL          time.Duration
	TTLOverrides map[string]time.Duration // by entity type
	OpTimeout    time.Duration
	Res          int
	MaxCells     int
}

// Entry is one result to store. Envelopes are the spatial filters of the
// query in EPSG:4326; none means the result depends on the whole entity.
// Related names further entity or relationship types the result reads,
// tracked without a spatial bound.
type Entry struct {
	Service   string
	Entity    string
	Related   []string
	Key       string
	Envelopes []model.BBox
	Body      []byte
}

type ResultCache struct {
	logger *slog.Logger
	cli    *redisstore.Client
	index  *cellindex.Index
	mapr   mapper.Interface
	opts   Options
}

func New(logger *slog.Logger, cli *redisstore.Client, mapr mapper.Interface, opts Options) *ResultCache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxCells <= 0 {
		opts.MaxCells = defaultMaxCells
	}
	return &ResultCache{
		logger: logger,
		cli:    cli,
		index:  cellindex.NewRedisIndex(cli, opts.Res),
		mapr:   mapr,
		opts:   opts,
	}
}

// returns context with timeout if set
func (c *ResultCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.OpTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.OpTimeout)
}

func (c *ResultCache) Ping(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.cli.Ping(ctx); err != nil {
		return fmt.Errorf("cache ping: %w", err)
	}
	return nil
}

// Get returns the cached body for key. Redis failures are logged and read as
// a miss so a degraded cache never fails a query.
func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	b, ok, err := c.cli.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "err", err)
	}
	if !ok || err != nil {
		observability.IncCacheMiss()
		return nil, false
	}
	observability.IncCacheHit()
	return b, true
}

func (c *ResultCache) ttlFor(entity string) time.Duration {
	if d, ok := c.opts.TTLOverrides[entity]; ok {
		return d
	}
	return c.opts.TTL
}

func (c *ResultCache) Put(ctx context.Context, e Entry) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ttl := c.ttlFor(e.Entity)
	cells, err := c.cover(e.Envelopes)
	if err != nil {
		return fmt.Errorf("cache put %q: %w", e.Key, err)
	}
	if err := c.cli.Set(ctx, e.Key, e.Body, ttl); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	if err := c.track(ctx, e, cells, ttl); err != nil {
		// an untracked entry could outlive an edit
		_ = c.cli.Del(ctx, e.Key)
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (c *ResultCache) track(ctx context.Context, e Entry, cells model.Cells, ttl time.Duration) error {
	if err := c.index.Track(ctx, e.Service, e.Entity, cells, e.Key, ttl); err != nil {
		return err
	}
	for _, r := range e.Related {
		if err := c.index.Track(ctx, e.Service, r, nil, e.Key, ttl); err != nil {
			return err
		}
	}
	return nil
}

// cover maps envelopes to index cells. nil means unbounded, which is also
// the answer when the cover would be too large to track.
func (c *ResultCache) cover(envs []model.BBox) (model.Cells, error) {
	if len(envs) == 0 {
		return nil, nil
	}
	var cells model.Cells
	for _, bb := range envs {
		cs, err := c.mapr.Cover(bb, c.opts.Res)
		if err != nil {
			return nil, err
		}
		cells = append(cells, cs...)
		if len(cells) > c.opts.MaxCells {
			return nil, nil
		}
	}
	return cells, nil
}

// InvalidateEntity drops every cached result of an entity type.
func (c *ResultCache) InvalidateEntity(ctx context.Context, service, entity, source string) (int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ks, err := c.index.KeysForEntity(ctx, service, entity)
	if err != nil {
		return 0, fmt.Errorf("invalidate entity %s: %w", entity, err)
	}
	if err := c.delete(ctx, ks); err != nil {
		return 0, fmt.Errorf("invalidate entity %s: %w", entity, err)
	}
	if err := c.index.DropEntity(ctx, service, entity); err != nil {
		return len(ks), fmt.Errorf("invalidate entity %s: %w", entity, err)
	}
	observability.AddInvalidations(source, len(ks))
	c.logger.Debug("cache invalidated", "service", service, "entity", entity, "keys", len(ks), "source", source)
	return len(ks), nil
}

// InvalidateArea drops the cached results of an entity type whose query
// envelopes touch the given envelopes or cells, plus every unbounded result.
func (c *ResultCache) InvalidateArea(ctx context.Context, service, entity string, envs []model.BBox, cells model.Cells, source string) (int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	all := make(model.Cells, 0, len(cells))
	for _, bb := range envs {
		cs, err := c.mapr.Cover(bb, c.opts.Res)
		if err != nil {
			return 0, fmt.Errorf("invalidate area: %w", err)
		}
		all = append(all, cs...)
	}
	if len(cells) > 0 {
		cs, err := c.mapr.Normalize(cells, c.opts.Res)
		if err != nil {
			return 0, fmt.Errorf("invalidate area: %w", err)
		}
		all = append(all, cs...)
	}

	ks, err := c.index.KeysForCells(ctx, service, entity, all)
	if err != nil {
		return 0, fmt.Errorf("invalidate area: %w", err)
	}
	if err := c.delete(ctx, ks); err != nil {
		return 0, fmt.Errorf("invalidate area: %w", err)
	}
	observability.AddInvalidations(source, len(ks))
	c.logger.Debug("cache invalidated", "service", service, "entity", entity, "cells", len(all), "keys", len(ks), "source", source)
	return len(ks), nil
}

// CoverPolygon maps a GeoJSON Polygon or MultiPolygon to index cells.
func (c *ResultCache) CoverPolygon(geojson string) (model.Cells, error) {
	cells, err := c.mapr.CellsForPolygon(model.Polygon{GeoJSON: geojson}, c.opts.Res)
	if err != nil {
		return nil, fmt.Errorf("cover polygon: %w", err)
	}
	return cells, nil
}

func (c *ResultCache) delete(ctx context.Context, ks []string) error {
	for len(ks) > 0 {
		n := min(len(ks), delBatch)
		if err := c.cli.Del(ctx, ks[:n]...); err != nil {
			return err
		}
		ks = ks[n:]
	}
	return nil
}
