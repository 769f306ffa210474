package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/cache/redisstore"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
	h3mapper "github.com/mohammed-shakir/kg-feature-bridge/internal/mapper/h3"
)

func newCache(t *testing.T, opts Options) (*ResultCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cli, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	if opts.Res == 0 {
		opts.Res = 6
	}
	if opts.TTL == 0 {
		opts.TTL = time.Minute
	}
	return New(nil, cli, h3mapper.New(), opts), mr
}

var stavanger = model.BBox{X1: 5.70, Y1: 58.95, X2: 5.76, Y2: 58.99, SRID: "EPSG:4326"}

func TestPutGet_RoundTripWithTTL(t *testing.T) {
	c, mr := newCache(t, Options{TTLOverrides: map[string]time.Duration{"Field": 5 * time.Minute}})
	ctx := context.Background()

	if _, ok := c.Get(ctx, "k1"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	if err := c.Put(ctx, Entry{Service: "wells", Entity: "Well", Key: "k1", Body: []byte(`{"a":1}`)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, ok := c.Get(ctx, "k1")
	if !ok || string(b) != `{"a":1}` {
		t.Fatalf("Get=%q,%v", b, ok)
	}
	if ttl := mr.TTL("k1"); ttl != time.Minute {
		t.Fatalf("ttl=%v want 1m", ttl)
	}

	if err := c.Put(ctx, Entry{Service: "wells", Entity: "Field", Key: "k2", Body: []byte(`{}`)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ttl := mr.TTL("k2"); ttl != 5*time.Minute {
		t.Fatalf("override ttl=%v want 5m", ttl)
	}
}

func TestInvalidateEntity(t *testing.T) {
	c, mr := newCache(t, Options{})
	ctx := context.Background()

	for _, e := range []Entry{
		{Service: "wells", Entity: "Well", Key: "a", Body: []byte("1")},
		{Service: "wells", Entity: "Well", Key: "b", Body: []byte("2"), Envelopes: []model.BBox{stavanger}},
		{Service: "wells", Entity: "Field", Key: "c", Body: []byte("3")},
	} {
		if err := c.Put(ctx, e); err != nil {
			t.Fatalf("Put %s: %v", e.Key, err)
		}
	}

	n, err := c.InvalidateEntity(ctx, "wells", "Well", "edit")
	if err != nil {
		t.Fatalf("InvalidateEntity: %v", err)
	}
	if n != 2 {
		t.Fatalf("invalidated=%d want 2", n)
	}
	if mr.Exists("a") || mr.Exists("b") {
		t.Fatalf("well results still cached")
	}
	if !mr.Exists("c") {
		t.Fatalf("field result must survive")
	}
}

func TestInvalidateArea_OnlyTouchedAndUnbounded(t *testing.T) {
	c, mr := newCache(t, Options{})
	ctx := context.Background()

	oslo := model.BBox{X1: 10.70, Y1: 59.90, X2: 10.78, Y2: 59.94, SRID: "EPSG:4326"}
	for _, e := range []Entry{
		{Service: "wells", Entity: "Well", Key: "stavanger", Body: []byte("1"), Envelopes: []model.BBox{stavanger}},
		{Service: "wells", Entity: "Well", Key: "oslo", Body: []byte("2"), Envelopes: []model.BBox{oslo}},
		{Service: "wells", Entity: "Well", Key: "everything", Body: []byte("3")},
	} {
		if err := c.Put(ctx, e); err != nil {
			t.Fatalf("Put %s: %v", e.Key, err)
		}
	}

	change := model.BBox{X1: 5.72, Y1: 58.96, X2: 5.73, Y2: 58.97, SRID: "EPSG:4326"}
	n, err := c.InvalidateArea(ctx, "wells", "Well", []model.BBox{change}, nil, "kafka")
	if err != nil {
		t.Fatalf("InvalidateArea: %v", err)
	}
	if n != 2 {
		t.Fatalf("invalidated=%d want 2", n)
	}
	if mr.Exists("stavanger") || mr.Exists("everything") {
		t.Fatalf("touched results still cached")
	}
	if !mr.Exists("oslo") {
		t.Fatalf("untouched result was dropped")
	}
}

func TestInvalidateArea_ByCellOfOtherResolution(t *testing.T) {
	c, mr := newCache(t, Options{})
	ctx := context.Background()

	if err := c.Put(ctx, Entry{Service: "wells", Entity: "Well", Key: "k", Body: []byte("1"), Envelopes: []model.BBox{stavanger}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	m := h3mapper.New()
	center, err := m.CellForPoint(5.73, 58.97, 6)
	if err != nil {
		t.Fatalf("CellForPoint: %v", err)
	}
	kids, err := m.ToChildren(center, 9)
	if err != nil {
		t.Fatalf("ToChildren: %v", err)
	}
	fine := kids[0]
	if _, err := c.InvalidateArea(ctx, "wells", "Well", nil, model.Cells{fine}, "kafka"); err != nil {
		t.Fatalf("InvalidateArea: %v", err)
	}
	if mr.Exists("k") {
		t.Fatalf("result under the changed cell still cached")
	}
}

func TestPut_TooManyCellsFallsBackToUnbounded(t *testing.T) {
	c, mr := newCache(t, Options{MaxCells: 2})
	ctx := context.Background()

	wide := model.BBox{X1: 4, Y1: 58, X2: 8, Y2: 61, SRID: "EPSG:4326"}
	if err := c.Put(ctx, Entry{Service: "wells", Entity: "Well", Key: "wide", Body: []byte("1"), Envelopes: []model.BBox{wide}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !mr.Exists("kgidx:wells:well:unbounded") {
		t.Fatalf("expected unbounded tracking")
	}
	far := model.BBox{X1: 20, Y1: 65, X2: 20.1, Y2: 65.1, SRID: "EPSG:4326"}
	if _, err := c.InvalidateArea(ctx, "wells", "Well", []model.BBox{far}, nil, "kafka"); err != nil {
		t.Fatalf("InvalidateArea: %v", err)
	}
	if mr.Exists("wide") {
		t.Fatalf("unbounded result must be invalidated by any area change")
	}
}

func TestGet_RedisDownIsMiss(t *testing.T) {
	c, mr := newCache(t, Options{OpTimeout: 100 * time.Millisecond})
	mr.Close()
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Fatalf("expected miss when redis is down")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
}
