// Package model defines core domain types shared across the service.
package model

import "fmt"

// BBox is a lon/lat envelope. SRID names the reference it was expressed in
// before normalization.
type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   string
}

// String representation in xmin,ymin,xmax,ymax,srid order
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s", b.X1, b.Y1, b.X2, b.Y2, b.SRID)
}

func (b BBox) IsPoint() bool {
	return b.X1 == b.X2 && b.Y1 == b.Y2
}

func (b BBox) Width() float64 { return b.X2 - b.X1 }

const (
	SpatialRelIntersects = "esriSpatialRelIntersects"
	SpatialRelContains   = "esriSpatialRelContains"
	SpatialRelWithin     = "esriSpatialRelWithin"
)

// QueryParams are the feature-service query parameters the bridge honours.
// Zero values mean "not given"; ResultRecordCount and RelationshipID use -1.
type QueryParams struct {
	Where             string
	ObjectIDs         string
	Geometry          string
	GeometryType      string
	InSR              string
	SpatialRel        string
	ReturnIDsOnly     bool
	ReturnCountOnly   bool
	ResultRecordCount int
	RelationshipID    int
	Token             string
	Format            string
}

// NewQueryParams returns params with nothing set.
func NewQueryParams() QueryParams {
	return QueryParams{ResultRecordCount: -1, RelationshipID: -1}
}

func (q QueryParams) HasLimit() bool { return q.ResultRecordCount >= 0 }

// Request identifies what a caller asked for: a service, optionally a layer
// and a method on it.
type Request struct {
	Service string
	Layer   string
	Method  string
	Query   QueryParams
}

// Cells is a set of H3 cell ids in string form.
type Cells []string

// Polygon carries a GeoJSON Polygon or MultiPolygon in EPSG:4326.
type Polygon struct {
	GeoJSON string
}
