package kgserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/cache"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/cache/redisstore"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/composer"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgclient"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgerr"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgpb"
	h3mapper "github.com/mohammed-shakir/kg-feature-bridge/internal/mapper/h3"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/quantize"
)

func testModel() *kgpb.DataModel {
	oid := kgpb.Property{Name: "objectid", FieldType: kgpb.FieldTypeOID}
	name := kgpb.Property{Name: "name", FieldType: kgpb.FieldTypeString}
	return &kgpb.DataModel{
		EntityTypes: []kgpb.EntityType{
			{Name: "Well", Properties: []kgpb.Property{oid, name,
				{Name: "shape", FieldType: kgpb.FieldTypeGeometry, GeometryType: kgpb.GeometryPoint}}},
			{Name: "Field", Properties: []kgpb.Property{oid, name,
				{Name: "shape", FieldType: kgpb.FieldTypeGeometry, GeometryType: kgpb.GeometryPolygon}}},
			{Name: "Operator", Properties: []kgpb.Property{oid, name}},
		},
		RelationshipTypes: []kgpb.RelationshipType{
			{Name: "LocatedIn", Origins: []string{"Well"}, Destinations: []string{"Field"}},
			{Name: "OperatedBy", Origins: []string{"Well"}, Destinations: []string{"Operator"}},
		},
		GlobalIDProperty: "globalid",
	}
}

func well(id int64, name string, x, y int64) kgpb.AnyValue {
	return kgpb.AnyValue{Entity: &kgpb.EntityValue{TypeName: "Well", Properties: []kgpb.PropertyValue{
		{Name: "objectid", Value: kgpb.Int64(id)},
		{Name: "name", Value: kgpb.String(name)},
		{Name: "shape", Value: kgpb.Geometry(kgpb.GeometryValue{Lengths: []uint32{1}, Coords: []int64{x, y}})},
	}}}
}

func operator(id int64, name string) kgpb.AnyValue {
	return kgpb.AnyValue{Entity: &kgpb.EntityValue{TypeName: "Operator", Properties: []kgpb.PropertyValue{
		{Name: "objectid", Value: kgpb.Int64(id)},
		{Name: "name", Value: kgpb.String(name)},
	}}}
}

func stream(frames ...*kgpb.QueryResultFrame) []byte {
	b := kgpb.AppendDelimited(nil, kgpb.MarshalQueryResultHeader(&kgpb.QueryResultHeader{
		Transform: &quantize.Params{Scale: quantize.Scale{X: 1, Y: 1}},
	}))
	for _, f := range frames {
		b = kgpb.AppendDelimited(b, kgpb.MarshalQueryResultFrame(f))
	}
	return b
}

type upstream struct {
	mu      sync.Mutex
	queries []string
	edits   atomic.Int32
	reply   []byte
}

func (u *upstream) lastQuery() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.queries) == 0 {
		return ""
	}
	return u.queries[len(u.queries)-1]
}

func (u *upstream) queryCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.queries)
}

func newUpstream(t *testing.T, reply []byte) (*upstream, *httptest.Server) {
	t.Helper()
	u := &upstream{reply: reply}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		switch {
		case strings.HasSuffix(r.URL.Path, "/dataModel/queryDataModel"):
			_, _ = w.Write(kgpb.MarshalDataModel(testModel()))
		case strings.HasSuffix(r.URL.Path, "/graph/query"):
			u.mu.Lock()
			u.queries = append(u.queries, r.URL.Query().Get("openCypherQuery"))
			body := u.reply
			u.mu.Unlock()
			_, _ = w.Write(body)
		case strings.HasSuffix(r.URL.Path, "/graph/applyEdits"):
			u.edits.Add(1)
			id := kgpb.UUID([16]byte{0x0f, 0x6e, 0x2c, 0x36, 0x4b, 0x70, 0x4a, 0xd4, 0x9e, 0x8c, 0x1d, 0x0c, 0x1b, 0x2b, 0x1a, 0x10})
			_, _ = w.Write(kgpb.MarshalApplyEditsResult(&kgpb.ApplyEditsResult{
				EntityResults: []kgpb.TypedEditResults{{TypeName: "Well", AddResults: []kgpb.EditResult{{ID: &id}}}},
			}))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return u, srv
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(op, service, entity string, featureID any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, op+" "+service+"/"+entity+" "+toString(featureID))
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func newResultCache(t *testing.T) *cache.ResultCache {
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
	return cache.New(nil, cli, h3mapper.New(), cache.Options{TTL: time.Minute, Res: 5})
}

func newServer(t *testing.T, url string, opts Options) *Server {
	t.Helper()
	return New(nil, Config{Name: "wells", URL: url, Token: "cfg-token"}, kgclient.New(nil, nil, ""), opts)
}

func TestQueryLayer_AssemblesFeatures(t *testing.T) {
	u, srv := newUpstream(t, stream(&kgpb.QueryResultFrame{Rows: []kgpb.Row{
		{Values: []kgpb.AnyValue{well(1, "A-1", 5, 58)}},
		{Values: []kgpb.AnyValue{well(2, "A-2", 6, 59)}},
	}}))
	s := newServer(t, srv.URL, Options{})

	res, err := s.QueryLayer(context.Background(), "0", model.NewQueryParams())
	if err != nil {
		t.Fatalf("QueryLayer: %v", err)
	}
	if got := u.lastQuery(); got != "match (n:Well) return n" {
		t.Fatalf("cypher=%q", got)
	}
	fc, ok := res.Payload.(*composer.FeatureCollection)
	if !ok || res.Cached != nil {
		t.Fatalf("unexpected result %#v", res)
	}
	if len(fc.Features) != 2 || fc.Metadata == nil || fc.Metadata.IDField != "OBJECTID" {
		t.Fatalf("collection=%+v", fc)
	}
	b, _ := json.Marshal(fc.Features[0])
	for _, want := range []string{`"OBJECTID":1`, `"name":"A-1"`, `"coordinates":[5,58]`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("feature %s missing %s", b, want)
		}
	}
	if !s.Ready() {
		t.Fatalf("server must be ready after a schema load")
	}
}

func TestQueryLayer_CountOnly(t *testing.T) {
	_, srv := newUpstream(t, stream(&kgpb.QueryResultFrame{Rows: []kgpb.Row{
		{Values: []kgpb.AnyValue{kgpb.Int64(42)}},
	}}))
	s := newServer(t, srv.URL, Options{})

	p := model.NewQueryParams()
	p.ReturnCountOnly = true
	res, err := s.QueryLayer(context.Background(), "0", p)
	if err != nil {
		t.Fatalf("QueryLayer: %v", err)
	}
	fc := res.Payload.(*composer.FeatureCollection)
	if fc.Count == nil || *fc.Count != 42 || len(fc.Features) != 0 {
		t.Fatalf("count collection=%+v", fc)
	}
}

func TestQueryLayer_Errors(t *testing.T) {
	_, srv := newUpstream(t, stream(&kgpb.QueryResultFrame{Error: &kgpb.Error{Code: 7, Message: "bad cypher"}}))
	s := newServer(t, srv.URL, Options{Cache: newResultCache(t)})
	ctx := context.Background()

	if _, err := s.QueryLayer(ctx, "x", model.NewQueryParams()); !kgerr.Is(err, kgerr.KindInvalidLayerID) {
		t.Fatalf("want InvalidLayerID, got %v", err)
	}
	if _, err := s.QueryLayer(ctx, "9", model.NewQueryParams()); !kgerr.Is(err, kgerr.KindInvalidLayerID) {
		t.Fatalf("want InvalidLayerID for out of range, got %v", err)
	}
	p := model.NewQueryParams()
	p.Where = "name = "
	if _, err := s.QueryLayer(ctx, "0", p); !kgerr.Is(err, kgerr.KindFilterParse) {
		t.Fatalf("want FilterParse, got %v", err)
	}
	_, err := s.QueryLayer(ctx, "0", model.NewQueryParams())
	if !kgerr.Is(err, kgerr.KindGraphQuery) || kgerr.Message(err) != "bad cypher" {
		t.Fatalf("want GraphQuery 'bad cypher', got %v", err)
	}
}

func TestQueryLayer_CachedAndInvalidatedByEdit(t *testing.T) {
	u, srv := newUpstream(t, stream(&kgpb.QueryResultFrame{Rows: []kgpb.Row{
		{Values: []kgpb.AnyValue{well(1, "A-1", 5, 58)}},
	}}))
	ev := &recorder{}
	s := newServer(t, srv.URL, Options{Cache: newResultCache(t), Events: ev})
	ctx := context.Background()

	p := model.NewQueryParams()
	p.Geometry = "4.5,57.5,6.5,59.5"

	first, err := s.QueryLayer(ctx, "0", p)
	if err != nil || first.Payload == nil {
		t.Fatalf("first query: %v %+v", err, first)
	}
	second, err := s.QueryLayer(ctx, "0", p)
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if second.Cached == nil || u.queryCount() != 1 {
		t.Fatalf("expected cache hit, upstream calls=%d", u.queryCount())
	}
	want, _ := composer.Encode(first.Payload, composer.FormatGeoJSON)
	if string(second.Cached) != string(want) {
		t.Fatalf("cached body differs:\n%s\n%s", second.Cached, want)
	}

	other := model.NewQueryParams()
	other.Token = "caller-token"
	other.Geometry = p.Geometry
	if _, err := s.QueryLayer(ctx, "0", other); err != nil {
		t.Fatalf("other token: %v", err)
	}
	if u.queryCount() != 2 {
		t.Fatalf("results must not be shared across tokens")
	}

	pt := [2]float64{5.5, 58.5}
	if _, err := s.AddEntity(ctx, kgclient.NewEntity{TypeName: "well", Point: &pt,
		Properties: []kgpb.PropertyValue{{Name: "name", Value: kgpb.String("A-3")}}},
		quantize.Params{Scale: quantize.Scale{X: 1e-6, Y: 1e-6}, Translate: quantize.Translate{X: -180, Y: -90}}, ""); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	if u.edits.Load() != 1 {
		t.Fatalf("edit not submitted")
	}
	if len(ev.events) != 1 || ev.events[0] != "insert wells/Well {0F6E2C36-4B70-4AD4-9E8C-1D0C1B2B1A10}" {
		t.Fatalf("events=%v", ev.events)
	}

	third, err := s.QueryLayer(ctx, "0", p)
	if err != nil {
		t.Fatalf("third query: %v", err)
	}
	if third.Cached != nil || u.queryCount() != 3 {
		t.Fatalf("edit must invalidate cached results")
	}
}

func TestAddEntity_UnknownType(t *testing.T) {
	_, srv := newUpstream(t, stream())
	s := newServer(t, srv.URL, Options{})
	_, err := s.AddEntity(context.Background(), kgclient.NewEntity{TypeName: "Pipeline"}, quantize.Params{}, "")
	if !kgerr.Is(err, kgerr.KindEdits) {
		t.Fatalf("want Edits error, got %v", err)
	}
}

func TestAddRelationship(t *testing.T) {
	u, srv := newUpstream(t, stream())
	ev := &recorder{}
	s := newServer(t, srv.URL, Options{Events: ev})
	ctx := context.Background()

	if _, err := s.AddRelationship(ctx, "not-a-guid", "{0F6E2C36-4B70-4AD4-9E8C-1D0C1B2B1A10}", "OperatedBy", ""); !kgerr.Is(err, kgerr.KindInvalidRelationship) {
		t.Fatalf("want InvalidRelationship, got %v", err)
	}
	if _, err := s.AddRelationship(ctx,
		"{0F6E2C36-4B70-4AD4-9E8C-1D0C1B2B1A10}", "1d0c1b2b-1a10-4ad4-9e8c-0f6e2c364b70", "OperatedBy", ""); err != nil {
		t.Fatalf("AddRelationship: %v", err)
	}
	if u.edits.Load() != 1 || len(ev.events) != 1 || !strings.HasPrefix(ev.events[0], "insert wells/OperatedBy") {
		t.Fatalf("edits=%d events=%v", u.edits.Load(), ev.events)
	}
}

func TestQueryRelated_GroupsByOrigin(t *testing.T) {
	u, srv := newUpstream(t, stream(&kgpb.QueryResultFrame{Rows: []kgpb.Row{
		{Values: []kgpb.AnyValue{well(1, "A-1", 5, 58), operator(10, "North")}},
		{Values: []kgpb.AnyValue{well(1, "A-1", 5, 58), operator(11, "South")}},
		{Values: []kgpb.AnyValue{well(2, "A-2", 6, 59), operator(10, "North")}},
	}}))
	s := newServer(t, srv.URL, Options{})

	p := model.NewQueryParams()
	p.RelationshipID = 1
	res, err := s.QueryRelated(context.Background(), "0", p)
	if err != nil {
		t.Fatalf("QueryRelated: %v", err)
	}
	if got := u.lastQuery(); got != "match (n:Well)-[r:OperatedBy]->(m:Operator) return n, m order by n.objectid" {
		t.Fatalf("cypher=%q", got)
	}
	rc := res.Payload.(*composer.RelatedCollection)
	if len(rc.Features) != 2 || len(rc.Features[0].Features) != 2 || len(rc.Features[1].Features) != 1 {
		t.Fatalf("groups=%+v", rc.Features)
	}
	if rc.Features[0].Features[0].Geometry != nil {
		t.Fatalf("table features have no geometry")
	}

	p.RelationshipID = 7
	if _, err := s.QueryRelated(context.Background(), "0", p); !kgerr.Is(err, kgerr.KindInvalidRelationship) {
		t.Fatalf("want InvalidRelationship, got %v", err)
	}
}

func TestInfoAndLayerInfo(t *testing.T) {
	_, srv := newUpstream(t, stream())
	s := newServer(t, srv.URL, Options{})
	ctx := context.Background()

	info, err := s.Info(ctx, model.NewQueryParams())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if len(info.Layers) != 2 || len(info.Tables) != 1 {
		t.Fatalf("layers=%d tables=%d", len(info.Layers), len(info.Tables))
	}
	li, err := s.LayerInfo(ctx, "2", model.NewQueryParams())
	if err != nil {
		t.Fatalf("LayerInfo: %v", err)
	}
	if li.Metadata.Name != "Operator" || li.Metadata.GeometryType != nil {
		t.Fatalf("layer info=%+v", li.Metadata)
	}
}

func TestQuery_Undecorated(t *testing.T) {
	_, srv := newUpstream(t, stream(&kgpb.QueryResultFrame{Rows: []kgpb.Row{
		{Values: []kgpb.AnyValue{well(1, "A-1", 5, 58)}},
	}}))
	s := newServer(t, srv.URL, Options{})
	fc, err := s.Query(context.Background(), "match (n:Well) return n", model.NewQueryParams(), "shape", false)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if fc.Metadata != nil || fc.FiltersApplied != nil || len(fc.Features) != 1 {
		t.Fatalf("collection=%+v", fc)
	}
}
