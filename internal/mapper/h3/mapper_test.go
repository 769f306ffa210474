package h3mapper

import (
	"reflect"
	"slices"
	"sort"
	"testing"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
)

func TestCellsForBBox_SortedUnique(t *testing.T) {
	m := New()
	bb := model.BBox{X1: 5.60, Y1: 58.90, X2: 5.80, Y2: 59.00, SRID: "EPSG:4326"}

	cells, err := m.CellsForBBox(bb, 8)
	if err != nil {
		t.Fatalf("CellsForBBox err: %v", err)
	}
	if len(cells) == 0 {
		t.Fatalf("expected non-empty cells for bbox")
	}
	if !sort.StringsAreSorted([]string(cells)) || hasDups(cells) {
		t.Fatalf("cells must be sorted and unique: %v", cells)
	}
}

func TestCover_PointYieldsOneCell(t *testing.T) {
	m := New()
	bb := model.BBox{X1: 5.73, Y1: 58.97, X2: 5.73, Y2: 58.97}

	cells, err := m.Cover(bb, 7)
	if err != nil {
		t.Fatalf("Cover: %v", err)
	}
	want, _ := m.CellForPoint(5.73, 58.97, 7)
	if len(cells) != 1 || cells[0] != want {
		t.Fatalf("cells=%v want [%s]", cells, want)
	}
}

func TestCover_SmallEnvelopeStillCovered(t *testing.T) {
	m := New()
	// far smaller than a res-3 cell, so the polyfill alone is empty
	bb := model.BBox{X1: 5.7300, Y1: 58.9700, X2: 5.7301, Y2: 58.9701}

	cells, err := m.Cover(bb, 3)
	if err != nil {
		t.Fatalf("Cover: %v", err)
	}
	if len(cells) == 0 {
		t.Fatalf("expected at least one covering cell")
	}
	c, _ := m.CellForPoint(5.73, 58.97, 3)
	if !slices.Contains(cells, c) {
		t.Fatalf("corner cell %s missing from %v", c, cells)
	}
}

func TestCover_IncludesPolyfill(t *testing.T) {
	m := New()
	bb := model.BBox{X1: 5.60, Y1: 58.90, X2: 5.80, Y2: 59.00}

	fill, err := m.CellsForBBox(bb, 8)
	if err != nil {
		t.Fatalf("CellsForBBox: %v", err)
	}
	cover, err := m.Cover(bb, 8)
	if err != nil {
		t.Fatalf("Cover: %v", err)
	}
	for _, c := range fill {
		if !slices.Contains(cover, c) {
			t.Fatalf("cover missing polyfill cell %s", c)
		}
	}
	if hasDups(cover) {
		t.Fatalf("cover must be unique")
	}
}

func TestCellsForPolygon_SubsetOfBBoxAndDeterministic(t *testing.T) {
	m := New()
	bb := model.BBox{X1: 5.60, Y1: 58.90, X2: 5.80, Y2: 59.00}
	poly := model.Polygon{GeoJSON: `{"type":"Polygon","coordinates":[[
		[5.62,58.92],[5.78,58.92],[5.78,58.98],[5.62,58.98],[5.62,58.92]
	]]}`}

	cp, err := m.CellsForPolygon(poly, 9)
	if err != nil {
		t.Fatalf("polygon: %v", err)
	}
	cb, err := m.CellsForBBox(bb, 9)
	if err != nil {
		t.Fatalf("bbox: %v", err)
	}
	if len(cp) == 0 || len(cp) > len(cb) {
		t.Fatalf("polygon coverage=%d bbox coverage=%d", len(cp), len(cb))
	}
	cp2, _ := m.CellsForPolygon(poly, 9)
	if !reflect.DeepEqual(cp, cp2) {
		t.Fatalf("expected identical output for identical input")
	}
}

func TestCellsForPolygon_MultiPolygon(t *testing.T) {
	m := New()
	poly := model.Polygon{GeoJSON: `{"type":"MultiPolygon","coordinates":[
		[[[5.62,58.92],[5.66,58.92],[5.66,58.95],[5.62,58.95],[5.62,58.92]]],
		[[[10.70,59.90],[10.75,59.90],[10.75,59.93],[10.70,59.93],[10.70,59.90]]]
	]}`}
	cells, err := m.CellsForPolygon(poly, 8)
	if err != nil {
		t.Fatalf("multipolygon: %v", err)
	}
	a, _ := m.CellForPoint(5.64, 58.935, 8)
	b, _ := m.CellForPoint(10.725, 59.915, 8)
	if !slices.Contains(cells, a) || !slices.Contains(cells, b) {
		t.Fatalf("expected both parts covered")
	}
}

func TestBounds_InvalidResolutionAndBadGeometry(t *testing.T) {
	m := New()
	bb := model.BBox{X1: 5, Y1: 58, X2: 6, Y2: 59}

	if _, err := m.CellsForBBox(bb, -1); err == nil {
		t.Fatalf("expected error for res=-1")
	}
	if _, err := m.Cover(bb, 16); err == nil {
		t.Fatalf("expected error for res=16")
	}
	for _, g := range []string{
		`{"type":"Polygon","coordinates":[[]]}`,
		`{"type":"LineString","coordinates":[[5,58],[6,59]]}`,
		`not json`,
	} {
		if _, err := m.CellsForPolygon(model.Polygon{GeoJSON: g}, 8); err == nil {
			t.Fatalf("expected error for %s", g)
		}
	}
}

func hasDups(s []string) bool {
	seen := map[string]struct{}{}
	for _, v := range s {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}
