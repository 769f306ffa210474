// Package cellindex records which cached results depend on which entity
// types and H3 cells, so edits and change events can find them again.
package cellindex

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/cache/keys"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/cache/redisstore"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
)

type Index struct {
	cli *redisstore.Client
	res int
}

func NewRedisIndex(cli *redisstore.Client, res int) *Index {
	return &Index{cli: cli, res: res}
}

// Res is the resolution the cell sets are kept at.
func (ix *Index) Res() int { return ix.res }

// Track registers key under its entity set and, when cells is nil, under the
// unbounded set; otherwise under every cell set. Sets expire with ttl.
func (ix *Index) Track(ctx context.Context, service, entity string, cells model.Cells, key string, ttl time.Duration) error {
	sets := make([]string, 0, len(cells)+2)
	sets = append(sets, keys.EntityIndexKey(service, entity))
	if cells == nil {
		sets = append(sets, keys.UnboundedIndexKey(service, entity))
	}
	for _, c := range cells {
		sets = append(sets, keys.CellIndexKey(service, entity, ix.res, c))
	}
	if err := ix.cli.AddToSets(ctx, sets, key, ttl); err != nil {
		return fmt.Errorf("cellindex track: %w", err)
	}
	return nil
}

// KeysForEntity returns every tracked key of an entity type.
func (ix *Index) KeysForEntity(ctx context.Context, service, entity string) ([]string, error) {
	out, err := ix.cli.Members(ctx, keys.EntityIndexKey(service, entity))
	if err != nil {
		return nil, fmt.Errorf("cellindex entity: %w", err)
	}
	return out, nil
}

// KeysForCells returns the keys tracked under any of cells plus every
// unbounded key of the entity type.
func (ix *Index) KeysForCells(ctx context.Context, service, entity string, cells model.Cells) ([]string, error) {
	sets := make([]string, 0, len(cells)+1)
	sets = append(sets, keys.UnboundedIndexKey(service, entity))
	for _, c := range cells {
		sets = append(sets, keys.CellIndexKey(service, entity, ix.res, c))
	}
	out, err := ix.cli.Members(ctx, sets...)
	if err != nil {
		return nil, fmt.Errorf("cellindex cells: %w", err)
	}
	return out, nil
}

// DropEntity removes the entity set itself; cell sets holding stale members
// are harmless and expire on their own.
func (ix *Index) DropEntity(ctx context.Context, service, entity string) error {
	if err := ix.cli.Del(ctx, keys.EntityIndexKey(service, entity)); err != nil {
		return fmt.Errorf("cellindex drop: %w", err)
	}
	return nil
}
