package cypher

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgerr"
)

const earthRadius = 6378137.0

var mercatorWKIDs = map[int]bool{102100: true, 102113: true, 900913: true, 3857: true, 3785: true}

type spatialRef struct {
	WKID       int `json:"wkid"`
	LatestWKID int `json:"latestWkid"`
}

func (s *spatialRef) id() int {
	if s == nil {
		return 0
	}
	if s.WKID != 0 {
		return s.WKID
	}
	return s.LatestWKID
}

type geometryJSON struct {
	X    *float64 `json:"x"`
	Y    *float64 `json:"y"`
	XMin *float64 `json:"xmin"`
	YMin *float64 `json:"ymin"`
	XMax *float64 `json:"xmax"`
	YMax *float64 `json:"ymax"`

	SpatialReference *spatialRef `json:"spatialReference"`
}

// parseInSR accepts a bare wkid or a spatial reference object.
func parseInSR(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	var sr spatialRef
	if err := json.Unmarshal([]byte(s), &sr); err != nil {
		return 0, fmt.Errorf("inSR %q: %w", s, err)
	}
	return sr.id(), nil
}

func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("coordinate %q: %w", p, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// parseGeometry reads a point or envelope in delimited or JSON form and
// returns it with the wkid it was expressed in (0 when unknown).
func parseGeometry(geometry, inSR string) (model.BBox, int, error) {
	wkid, err := parseInSR(inSR)
	if err != nil {
		return model.BBox{}, 0, err
	}
	geometry = strings.TrimSpace(geometry)

	if strings.HasPrefix(geometry, "{") {
		var g geometryJSON
		if err := json.Unmarshal([]byte(geometry), &g); err != nil {
			return model.BBox{}, 0, fmt.Errorf("geometry: %w", err)
		}
		if id := g.SpatialReference.id(); id != 0 {
			wkid = id
		}
		switch {
		case g.XMin != nil && g.YMin != nil && g.XMax != nil && g.YMax != nil:
			return model.BBox{X1: *g.XMin, Y1: *g.YMin, X2: *g.XMax, Y2: *g.YMax}, wkid, nil
		case g.X != nil && g.Y != nil:
			return model.BBox{X1: *g.X, Y1: *g.Y, X2: *g.X, Y2: *g.Y}, wkid, nil
		default:
			return model.BBox{}, 0, errors.New("geometry is neither a point nor an envelope")
		}
	}

	v, err := parseFloats(geometry)
	if err != nil {
		return model.BBox{}, 0, err
	}
	switch len(v) {
	case 2:
		return model.BBox{X1: v[0], Y1: v[1], X2: v[0], Y2: v[1]}, wkid, nil
	case 4:
		return model.BBox{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, wkid, nil
	default:
		return model.BBox{}, 0, fmt.Errorf("geometry has %d coordinates, want 2 or 4", len(v))
	}
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }

// toLonLat reprojects a spherical mercator coordinate to WGS84 degrees.
func toLonLat(x, y float64) (float64, float64) {
	lon := x / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return round6(lon), round6(lat)
}

// splitAntimeridian divides wide envelopes into equal-width pieces.
func splitAntimeridian(b model.BBox) []model.BBox {
	n := 1
	switch span := b.Width(); {
	case span >= 360:
		n = 4
	case span >= 180:
		n = 2
	}
	if n == 1 {
		return []model.BBox{b}
	}
	step := b.Width() / float64(n)
	out := make([]model.BBox, n)
	for i := range n {
		out[i] = model.BBox{X1: b.X1 + float64(i)*step, Y1: b.Y1, X2: b.X1 + float64(i+1)*step, Y2: b.Y2, SRID: b.SRID}
	}
	// the last edge is pinned so the pieces cover the input exactly
	out[n-1].X2 = b.X2
	return out
}

// Envelopes normalizes the spatial filter of params to WGS84 and splits it
// at hemisphere widths. It returns nil when no geometry was given.
func Envelopes(params model.QueryParams) ([]model.BBox, error) {
	if strings.TrimSpace(params.Geometry) == "" {
		return nil, nil
	}
	b, wkid, err := parseGeometry(params.Geometry, params.InSR)
	if err != nil {
		return nil, kgerr.Wrap(kgerr.KindInvalidSpatialFilter, "parse geometry", err)
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	b.SRID = "EPSG:4326"
	if mercatorWKIDs[wkid] {
		b.X1, b.Y1 = toLonLat(b.X1, b.Y1)
		b.X2, b.Y2 = toLonLat(b.X2, b.Y2)
	}
	if b.X1 > b.X2 {
		// xmin east of xmax: the envelope crosses the antimeridian
		east, west := b, b
		east.X2, west.X1 = 180, -180
		return []model.BBox{east, west}, nil
	}
	return splitAntimeridian(b), nil
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// wkt renders an envelope as a closed polygon ring, or a point.
func wkt(b model.BBox) string {
	if b.IsPoint() {
		return "POINT(" + ff(b.X1) + " " + ff(b.Y1) + ")"
	}
	x1, y1, x2, y2 := ff(b.X1), ff(b.Y1), ff(b.X2), ff(b.Y2)
	return "POLYGON((" + x1 + " " + y1 + ", " + x2 + " " + y1 + ", " + x2 + " " + y2 + ", " + x1 + " " + y2 + ", " + x1 + " " + y1 + "))"
}

func spatialFunc(rel string) (string, error) {
	switch strings.TrimSpace(rel) {
	case "", model.SpatialRelIntersects:
		return "esri.graph.ST_Intersects", nil
	case model.SpatialRelContains:
		return "esri.graph.ST_Contains", nil
	case model.SpatialRelWithin:
		return "esri.graph.ST_Within", nil
	default:
		return "", fmt.Errorf("unsupported spatialRel %q", rel)
	}
}

// spatialClause builds the OR of one predicate per envelope against the
// geometry property field of node ns.
func spatialClause(params model.QueryParams, ns, field string) (string, error) {
	fn, err := spatialFunc(params.SpatialRel)
	if err != nil {
		return "", kgerr.Wrap(kgerr.KindInvalidSpatialFilter, "spatial predicate", err)
	}
	envs, err := Envelopes(params)
	if err != nil || len(envs) == 0 {
		return "", err
	}
	preds := make([]string, 0, len(envs))
	for _, e := range envs {
		preds = append(preds, fmt.Sprintf("%s(esri.graph.ST_GeomFromText('%s'), %s.%s)", fn, wkt(e), ns, field))
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return "(" + strings.Join(preds, " OR ") + ")", nil
}
