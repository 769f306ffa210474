package invalidation

import (
	"encoding/json"
	"testing"
	"time"
)

func mustTS() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }

func base() Event {
	return Event{Version: 1, Op: "update", Service: "wells", Entity: "Well", TS: mustTS()}
}

func TestValidate_EntityWideEvent(t *testing.T) {
	ev := base()
	if err := ev.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if ev.Spatial() {
		t.Fatalf("event without area must not be spatial")
	}
}

func TestValidate_BBoxAndGeometryExclusive(t *testing.T) {
	ev := base()
	ev.BBox = &BBox{X1: 5, Y1: 58, X2: 6, Y2: 59, SRID: "EPSG:4326"}
	ev.Geometry = json.RawMessage(`{"type":"Polygon","coordinates":[[[5,58],[6,58],[6,59],[5,59],[5,58]]]}`)
	if err := ev.Validate(); err == nil {
		t.Fatalf("expected error when both bbox and geometry are set")
	}
}

func TestValidate_Spatial(t *testing.T) {
	bb := base()
	bb.BBox = &BBox{X1: 5.7, Y1: 58.9, X2: 5.7, Y2: 58.9, SRID: "EPSG:4326"}
	if err := bb.Validate(); err != nil {
		t.Fatalf("point bbox: %v", err)
	}

	poly := base()
	poly.Op = "insert"
	poly.Geometry = json.RawMessage(`{"type":"MultiPolygon","coordinates":[]}`)
	if err := poly.Validate(); err != nil {
		t.Fatalf("polygon: %v", err)
	}

	cells := base()
	cells.Cells = []string{"85098803fffffff"}
	if err := cells.Validate(); err != nil || !cells.Spatial() {
		t.Fatalf("cells: err=%v spatial=%v", err, cells.Spatial())
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Event){
		"version":   func(e *Event) { e.Version = 2 },
		"op":        func(e *Event) { e.Op = "upsert" },
		"service":   func(e *Event) { e.Service = " " },
		"entity":    func(e *Event) { e.Entity = "" },
		"ts":        func(e *Event) { e.TS = time.Time{} },
		"srid":      func(e *Event) { e.BBox = &BBox{X1: 1, Y1: 1, X2: 2, Y2: 2, SRID: "EPSG:3857"} },
		"lon":       func(e *Event) { e.BBox = &BBox{X1: -190, Y1: 1, X2: 2, Y2: 2, SRID: "EPSG:4326"} },
		"inverted":  func(e *Event) { e.BBox = &BBox{X1: 3, Y1: 1, X2: 2, Y2: 2, SRID: "EPSG:4326"} },
		"geomtype":  func(e *Event) { e.Geometry = json.RawMessage(`{"type":"Point","coordinates":[1,2]}`) },
		"geomjson":  func(e *Event) { e.Geometry = json.RawMessage(`{`) },
		"emptycell": func(e *Event) { e.Cells = []string{""} },
	}
	for name, mut := range cases {
		ev := base()
		mut(&ev)
		if err := ev.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
