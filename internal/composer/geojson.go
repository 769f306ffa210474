package composer

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgpb"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/quantize"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/schema"
)

type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

type Feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   *Geometry      `json:"geometry"`
}

type Metadata struct {
	IDField string `json:"idField"`
}

type FiltersApplied struct {
	Where    bool `json:"where"`
	Geometry bool `json:"geometry"`
}

type FeatureCollection struct {
	Type           string          `json:"type"`
	Properties     map[string]any  `json:"properties,omitempty"`
	Features       []Feature       `json:"features"`
	Count          *int            `json:"count,omitempty"`
	Metadata       *Metadata       `json:"metadata,omitempty"`
	FiltersApplied *FiltersApplied `json:"filtersApplied,omitempty"`
}

// RelatedCollection holds one child collection per origin record.
type RelatedCollection struct {
	Type           string              `json:"type"`
	Features       []FeatureCollection `json:"features"`
	Metadata       *Metadata           `json:"metadata,omitempty"`
	FiltersApplied *FiltersApplied     `json:"filtersApplied,omitempty"`
}

func decoration() (*Metadata, *FiltersApplied) {
	return &Metadata{IDField: "OBJECTID"}, &FiltersApplied{Where: true, Geometry: true}
}

// Decorate marks the collection with the id field and the applied filters.
func (fc *FeatureCollection) Decorate() *FeatureCollection {
	fc.Metadata, fc.FiltersApplied = decoration()
	return fc
}

func (rc *RelatedCollection) Decorate() *RelatedCollection {
	rc.Metadata, rc.FiltersApplied = decoration()
	return rc
}

func emptyCollection() FeatureCollection {
	return FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
}

// ToFeatureCollection converts rows whose first value is an entity (or a bare
// scalar, for id-only queries) into features. geomField names the entity's
// geometry property; transform is the response's quantization, nil for raw.
func ToFeatureCollection(rows []kgpb.Row, geomField string, transform *quantize.Params) FeatureCollection {
	fc := emptyCollection()
	for _, r := range rows {
		if len(r.Values) == 0 {
			continue
		}
		fc.Features = append(fc.Features, toFeature(r.Values[0], geomField, transform))
	}
	return fc
}

// ToRelationshipCollections groups consecutive rows by the object id of their
// first value. Each row's second value becomes a feature of its group. Rows
// must already be ordered by origin id.
func ToRelationshipCollections(rows []kgpb.Row, geomField string, transform *quantize.Params) RelatedCollection {
	out := RelatedCollection{Type: "FeatureCollection", Features: []FeatureCollection{}}
	var key string
	for _, r := range rows {
		if len(r.Values) < 2 {
			continue
		}
		id := objectID(r.Values[0])
		k := fmt.Sprint(id)
		if len(out.Features) == 0 || k != key {
			g := emptyCollection()
			g.Properties = map[string]any{schema.PublicFieldName("objectid"): id}
			out.Features = append(out.Features, g)
			key = k
		}
		last := &out.Features[len(out.Features)-1]
		last.Features = append(last.Features, toFeature(r.Values[1], geomField, transform))
	}
	return out
}

// CountCollection reports the row count for a count-only query. A single
// integer scalar row is taken as the aggregate the server computed.
func CountCollection(rows []kgpb.Row) FeatureCollection {
	n := len(rows)
	if len(rows) == 1 && len(rows[0].Values) == 1 {
		if v, ok := ToValue(rows[0].Values[0]).(int64); ok {
			n = int(v)
		}
	}
	fc := emptyCollection()
	fc.Count = &n
	return fc
}

func objectID(v kgpb.AnyValue) any {
	switch {
	case v.Entity != nil:
		if p, ok := v.Entity.Property("objectid"); ok {
			return ToValue(p)
		}
		return nil
	default:
		return ToValue(v)
	}
}

func toFeature(v kgpb.AnyValue, geomField string, transform *quantize.Params) Feature {
	f := Feature{Type: "Feature", Properties: map[string]any{}}
	if v.Entity == nil {
		f.Properties["OBJECTID"] = ToValue(v)
		return f
	}
	for _, p := range v.Entity.Properties {
		if geomField != "" && strings.EqualFold(p.Name, geomField) {
			if p.Value.Primitive != nil && p.Value.Primitive.Geometry != nil {
				f.Geometry = ToGeometry(p.Value.Primitive.Geometry, transform)
			}
			continue
		}
		f.Properties[schema.PublicFieldName(p.Name)] = ToValue(p.Value)
	}
	return f
}

// ToValue maps a decoded value onto its JSON representation. Dates are epoch
// milliseconds and UUIDs are braced upper-case strings.
func ToValue(v kgpb.AnyValue) any {
	switch {
	case v.Primitive != nil:
		return primitiveValue(v.Primitive)
	case v.Array != nil:
		out := make([]any, 0, len(v.Array.Values))
		for _, e := range v.Array.Values {
			out = append(out, ToValue(e))
		}
		return out
	case v.Entity != nil:
		return propertyMap(v.Entity.Properties)
	case v.Relationship != nil:
		return propertyMap(v.Relationship.Properties)
	default:
		return nil
	}
}

func propertyMap(props []kgpb.PropertyValue) map[string]any {
	out := make(map[string]any, len(props))
	for _, p := range props {
		out[schema.PublicFieldName(p.Name)] = ToValue(p.Value)
	}
	return out
}

func primitiveValue(p *kgpb.Primitive) any {
	switch p.Kind {
	case kgpb.KindBool:
		return p.Bool
	case kgpb.KindInt32, kgpb.KindInt64, kgpb.KindDate:
		return p.Int
	case kgpb.KindUint32, kgpb.KindUint64:
		return p.Uint
	case kgpb.KindFloat, kgpb.KindDouble:
		if math.IsNaN(p.Float) || math.IsInf(p.Float, 0) {
			return nil
		}
		return p.Float
	case kgpb.KindString:
		return p.Str
	case kgpb.KindUUID:
		id, err := uuid.FromBytes(p.Bytes)
		if err != nil {
			return nil
		}
		return "{" + strings.ToUpper(id.String()) + "}"
	case kgpb.KindBlob:
		return p.Bytes
	case kgpb.KindGeometry:
		if p.Geometry == nil {
			return nil
		}
		return ToGeometry(p.Geometry, nil)
	default:
		return nil
	}
}

// ToGeometry rebuilds a GeoJSON geometry from quantized coordinates. It
// returns nil for an empty geometry.
func ToGeometry(g *kgpb.GeometryValue, transform *quantize.Params) *Geometry {
	var pts [][2]float64
	if transform != nil {
		pts = quantize.Reconstruct(*transform, g.Coords)
	} else {
		pts = quantize.ReconstructRaw(g.Coords)
	}
	if len(pts) == 0 {
		return nil
	}

	switch g.GeometryType {
	case kgpb.GeometryPolygon:
		return &Geometry{Type: "Polygon", Coordinates: quantize.Parts(pts, g.Lengths)}
	case kgpb.GeometryPolyline:
		parts := quantize.Parts(pts, g.Lengths)
		if len(parts) == 1 {
			return &Geometry{Type: "LineString", Coordinates: parts[0]}
		}
		return &Geometry{Type: "MultiLineString", Coordinates: parts}
	case kgpb.GeometryMultipoint:
		return &Geometry{Type: "MultiPoint", Coordinates: pts}
	default:
		return &Geometry{Type: "Point", Coordinates: pts[0]}
	}
}
