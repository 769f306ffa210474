package kafkaconsumer

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/invalidation"
)

// dedupe remembers the newest event time applied per target so redelivered
// and superseded events are not applied twice.
type dedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[uint64, int64]
}

func newDedupe(size int) *dedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[uint64, int64](size)
	return &dedupe{lru: c}
}

// eventKey identifies what an event invalidates, ignoring when it happened.
func eventKey(ev invalidation.Event) uint64 {
	var b strings.Builder
	b.WriteString(ev.Source)
	b.WriteByte(0)
	b.WriteString(ev.Service)
	b.WriteByte(0)
	b.WriteString(ev.Entity)
	b.WriteByte(0)
	if ev.FeatureID != nil {
		fid, _ := json.Marshal(ev.FeatureID)
		b.Write(fid)
	}
	b.WriteByte(0)
	if ev.BBox != nil {
		b.WriteString(fmt.Sprintf("%g,%g,%g,%g", ev.BBox.X1, ev.BBox.Y1, ev.BBox.X2, ev.BBox.Y2))
	}
	b.WriteByte(0)
	b.Write(ev.Geometry)
	b.WriteByte(0)
	b.WriteString(strings.Join(ev.Cells, ","))
	return xxhash.Sum64String(b.String())
}

// stale reports whether an event at ts for key is no newer than one already
// applied.
func (d *dedupe) stale(key uint64, ts int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return ok && ts <= last
}

func (d *dedupe) record(key uint64, ts int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && ts <= last {
		return
	}
	d.lru.Add(key, ts)
}
