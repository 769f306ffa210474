package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/invalidation"
)

type call struct {
	kind   string
	entity string
	envs   int
	cells  model.Cells
}

type fakeInvalidator struct {
	failFirst atomic.Bool
	mu        sync.Mutex
	calls     []call
}

func (f *fakeInvalidator) record(c call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.failFirst.Load() {
		f.failFirst.Store(false)
		return errors.New("boom")
	}
	return nil
}

func (f *fakeInvalidator) InvalidateEntity(_ context.Context, _, entity, _ string) (int, error) {
	return 1, f.record(call{kind: "entity", entity: entity})
}

func (f *fakeInvalidator) InvalidateArea(_ context.Context, _, entity string, envs []model.BBox, cells model.Cells, _ string) (int, error) {
	return 1, f.record(call{kind: "area", entity: entity, envs: len(envs), cells: cells})
}

func (f *fakeInvalidator) CoverPolygon(geojson string) (model.Cells, error) {
	if geojson == `{"type":"Polygon","coordinates":[]}` {
		return nil, errors.New("empty polygon")
	}
	return model.Cells{"85098803fffffff"}, nil
}

type sess struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
	meta   []string
}

func (s *sess) Claims() map[string][]int32 { return nil }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, metadata string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.meta = append(s.meta, metadata)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Errors() <-chan error                             { return nil }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "kg-changes" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

var clock atomic.Int64

// tick returns strictly increasing event times.
func tick() time.Time {
	return time.Unix(1_760_000_000, 0).UTC().Add(time.Duration(clock.Add(1)) * time.Millisecond)
}

func eventBytes(mut func(*invalidation.Event)) []byte {
	ev := invalidation.Event{
		Version: 1, Op: "update", Service: "wells", Entity: "Well", TS: tick(),
		BBox: &invalidation.BBox{X1: 5, Y1: 58, X2: 6, Y2: 59, SRID: "EPSG:4326"},
	}
	if mut != nil {
		mut(&ev)
	}
	b, _ := json.Marshal(ev)
	return b
}

func msgAt(part int32, off int64, v []byte) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "kg-changes", Partition: part, Offset: off, Value: v}
}

func newConsumerForTest(inv Invalidator) *Consumer {
	return New(NewConfig("x", "kg-changes", "g"), nil, inv)
}

func TestCommitMetadataNamesInstance(t *testing.T) {
	cfg := NewConfig("x", "kg-changes", "g")
	cfg.Self = "bridge-a"
	c := New(cfg, nil, &fakeInvalidator{})

	g := &groupHandler{process: c.ProcessOne, instance: cfg.Self}
	s := &sess{ctx: t.Context()}
	if err := g.Setup(s); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- msgAt(0, 3, eventBytes(func(ev *invalidation.Event) { ev.Source = "bridge-b" }))
	close(ch)

	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.meta) != 1 || s.meta[0] != "bridge-a" {
		t.Fatalf("commit metadata=%v want [bridge-a]", s.meta)
	}
	if err := g.Cleanup(s); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}

func TestSinglePartition_OrderAndCommitAfterWork(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)

	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- msgAt(0, 10, eventBytes(nil))
	ch <- msgAt(0, 11, eventBytes(nil))
	close(ch)

	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 2 || s.marked[0] != 10 || s.marked[1] != 11 {
		t.Fatalf("marked offsets=%v want [10 11]", s.marked)
	}
	if len(inv.calls) != 2 || inv.calls[0].kind != "area" || inv.calls[0].envs != 1 {
		t.Fatalf("calls=%+v", inv.calls)
	}
}

func TestRetry_CommitOnceAfterSuccess(t *testing.T) {
	inv := &fakeInvalidator{}
	inv.failFirst.Store(true)
	c := newConsumerForTest(inv)
	ctx := context.Background()

	msg := msgAt(0, 5, eventBytes(nil))
	if err := c.ProcessOne(ctx, msg); err == nil {
		t.Fatalf("expected error on first attempt")
	}

	s := &sess{ctx: ctx}
	g := &groupHandler{process: c.ProcessOne}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- msg
	close(ch)
	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim second attempt: %v", err)
	}
	if len(s.marked) != 1 || s.marked[0] != 5 {
		t.Fatalf("offset was not marked after success; marked=%v", s.marked)
	}
}

func TestFailure_StopsClaimWithoutMarking(t *testing.T) {
	inv := &fakeInvalidator{}
	inv.failFirst.Store(true)
	c := newConsumerForTest(inv)

	s := &sess{ctx: t.Context()}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- msgAt(0, 1, eventBytes(nil))
	ch <- msgAt(0, 2, eventBytes(nil))
	close(ch)
	g := &groupHandler{process: c.ProcessOne}
	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err == nil {
		t.Fatalf("expected claim to stop on failure")
	}
	if len(s.marked) != 0 {
		t.Fatalf("nothing may be marked after a failure: %v", s.marked)
	}
}

func TestPoisonMessagesAreSkipped(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)
	ctx := context.Background()

	bad := [][]byte{
		[]byte("{not json"),
		eventBytes(func(e *invalidation.Event) { e.Version = 9 }),
	}
	for i, v := range bad {
		if err := c.ProcessOne(ctx, msgAt(0, int64(i), v)); err != nil {
			t.Fatalf("message %d: expected skip, got %v", i, err)
		}
	}
	if len(inv.calls) != 0 {
		t.Fatalf("invalid events reached the cache: %+v", inv.calls)
	}
}

func TestEventShapes(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)
	ctx := context.Background()

	entityWide := eventBytes(func(e *invalidation.Event) { e.BBox = nil })
	polygon := eventBytes(func(e *invalidation.Event) {
		e.BBox = nil
		e.Geometry = json.RawMessage(`{"type":"Polygon","coordinates":[[[5,58],[6,58],[6,59],[5,59],[5,58]]]}`)
		e.Cells = []string{"8609880a7ffffff"}
	})
	unusable := eventBytes(func(e *invalidation.Event) {
		e.BBox = nil
		e.Geometry = json.RawMessage(`{"type":"Polygon","coordinates":[]}`)
	})
	for i, v := range [][]byte{entityWide, polygon, unusable} {
		if err := c.ProcessOne(ctx, msgAt(0, int64(i), v)); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
	}

	if len(inv.calls) != 3 {
		t.Fatalf("calls=%+v", inv.calls)
	}
	if inv.calls[0].kind != "entity" || inv.calls[0].entity != "Well" {
		t.Fatalf("entity-wide event: %+v", inv.calls[0])
	}
	if inv.calls[1].kind != "area" || len(inv.calls[1].cells) != 2 {
		t.Fatalf("polygon event: %+v", inv.calls[1])
	}
	if inv.calls[2].kind != "entity" {
		t.Fatalf("unusable geometry must fall back to entity: %+v", inv.calls[2])
	}
}

func TestOwnEventsSkipped(t *testing.T) {
	inv := &fakeInvalidator{}
	cfg := NewConfig("x", "kg-changes", "g")
	cfg.Self = "bridge-1"
	c := New(cfg, nil, inv)

	v := eventBytes(func(e *invalidation.Event) { e.Source = "bridge-1" })
	if err := c.ProcessOne(context.Background(), msgAt(0, 1, v)); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if len(inv.calls) != 0 {
		t.Fatalf("own event was applied: %+v", inv.calls)
	}
}

func TestMultiPartition_Parallel(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)
	g := &groupHandler{process: c.ProcessOne}
	s := &sess{ctx: t.Context()}

	p0 := make(chan *sarama.ConsumerMessage, 2)
	p1 := make(chan *sarama.ConsumerMessage, 2)
	p0 <- msgAt(0, 1, eventBytes(nil))
	p0 <- msgAt(0, 2, eventBytes(nil))
	p1 <- msgAt(1, 1, eventBytes(nil))
	p1 <- msgAt(1, 2, eventBytes(nil))
	close(p0)
	close(p1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 0, msgs: p0}) }()
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 1, msgs: p1}) }()
	wg.Wait()

	if len(s.marked) != 4 {
		t.Fatalf("expected 4 marks total; got %v", s.marked)
	}
}

func TestRedeliveredAndSupersededEventsSkipped(t *testing.T) {
	inv := &fakeInvalidator{}
	c := newConsumerForTest(inv)
	ctx := context.Background()

	older := eventBytes(nil)
	newer := eventBytes(nil)
	other := eventBytes(func(e *invalidation.Event) { e.Entity = "Field" })

	for i, v := range [][]byte{newer, newer, older, other} {
		if err := c.ProcessOne(ctx, msgAt(0, int64(i), v)); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
	}
	if len(inv.calls) != 2 || inv.calls[0].entity != "Well" || inv.calls[1].entity != "Field" {
		t.Fatalf("calls=%+v", inv.calls)
	}
}

func TestSplitCSV(t *testing.T) {
	got := SplitCSV(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("SplitCSV=%v", got)
	}
}
