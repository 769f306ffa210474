package h3mapper

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
)

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

// CellsForBBox polyfills a lon/lat envelope. Envelopes smaller than a cell
// may yield no cells; Cover handles that case.
func (m *Mapper) CellsForBBox(bb model.BBox, res int) (model.Cells, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	outer := h3.GeoLoop{
		{Lat: bb.Y1, Lng: bb.X1},
		{Lat: bb.Y1, Lng: bb.X2},
		{Lat: bb.Y2, Lng: bb.X2},
		{Lat: bb.Y2, Lng: bb.X1},
	}
	return polyfill([]h3.GeoPolygon{{GeoLoop: outer}}, res)
}

// CellForPoint returns the cell containing a lon/lat point.
func (m *Mapper) CellForPoint(lon, lat float64, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 point: %w", err)
	}
	return c.String(), nil
}

// Cover returns every cell the envelope touches: the polyfill plus the cells
// under its corners and centre, so small envelopes and points are never
// left without a cell.
func (m *Mapper) Cover(bb model.BBox, res int) (model.Cells, error) {
	var cells model.Cells
	if !bb.IsPoint() {
		c, err := m.CellsForBBox(bb, res)
		if err != nil {
			return nil, err
		}
		cells = c
	}
	pts := [][2]float64{
		{(bb.X1 + bb.X2) / 2, (bb.Y1 + bb.Y2) / 2},
		{bb.X1, bb.Y1}, {bb.X2, bb.Y1}, {bb.X2, bb.Y2}, {bb.X1, bb.Y2},
	}
	for _, p := range pts {
		c, err := m.CellForPoint(p[0], p[1], res)
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return uniqueSorted(cells), nil
}

// CellsForPolygon polyfills a GeoJSON Polygon or MultiPolygon and adds the
// cells under its outer ring vertices.
func (m *Mapper) CellsForPolygon(poly model.Polygon, res int) (model.Cells, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}

	var g struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal([]byte(poly.GeoJSON), &g); err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}

	var polys [][][][]float64 // [poly][ring][i][lon,lat]
	switch g.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("parse polygon coords: %w", err)
		}
		polys = [][][][]float64{rings}
	case "MultiPolygon":
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil, fmt.Errorf("parse multipolygon coords: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported GeoJSON type: %s", g.Type)
	}
	if len(polys) == 0 {
		return nil, errors.New("empty polygon")
	}

	geo := make([]h3.GeoPolygon, 0, len(polys))
	for pi, rings := range polys {
		if len(rings) == 0 {
			return nil, fmt.Errorf("polygon %d is empty", pi)
		}
		gp := h3.GeoPolygon{GeoLoop: toLoop(rings[0])}
		if len(gp.GeoLoop) < 3 {
			return nil, fmt.Errorf("polygon %d outer ring has < 4 vertices", pi)
		}
		for i, r := range rings[1:] {
			h := toLoop(r)
			if len(h) < 3 {
				return nil, fmt.Errorf("polygon %d hole %d has < 4 vertices", pi, i)
			}
			gp.Holes = append(gp.Holes, h)
		}
		geo = append(geo, gp)
	}
	cells, err := polyfill(geo, res)
	if err != nil {
		return nil, err
	}
	// vertex cells keep polygons smaller than a cell covered
	for _, gp := range geo {
		for _, ll := range gp.GeoLoop {
			c, err := h3.LatLngToCell(ll, res)
			if err != nil {
				return nil, fmt.Errorf("h3 vertex: %w", err)
			}
			cells = append(cells, c.String())
		}
	}
	return uniqueSorted(cells), nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// toLoop converts a GeoJSON ring to a loop, dropping the closing vertex.
func toLoop(coords [][]float64) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(coords))
	for _, xy := range coords {
		if len(xy) < 2 {
			continue
		}
		loop = append(loop, h3.LatLng{Lat: xy[1], Lng: xy[0]})
	}
	if n := len(loop); n >= 2 && loop[0] == loop[n-1] {
		loop = loop[:n-1]
	}
	return loop
}

func polyfill(polys []h3.GeoPolygon, res int) (model.Cells, error) {
	var out model.Cells
	for _, p := range polys {
		cells, err := h3.PolygonToCells(p, res)
		if err != nil {
			return nil, fmt.Errorf("h3 polyfill: %w", err)
		}
		for _, c := range cells {
			out = append(out, c.String())
		}
	}
	return uniqueSorted(out), nil
}

func uniqueSorted(cells model.Cells) model.Cells {
	sort.Strings(cells)
	out := cells[:0]
	for i, c := range cells {
		if i > 0 && c == cells[i-1] {
			continue
		}
		out = append(out, c)
	}
	return out
}
