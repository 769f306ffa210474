// Package kgpb holds the knowledge-graph service's protobuf messages and a
// hand-written codec for them built on protowire.
package kgpb

import (
	"strings"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/quantize"
)

type FieldType int32

const (
	FieldTypeSmallInteger FieldType = iota
	FieldTypeInteger
	FieldTypeSingle
	FieldTypeDouble
	FieldTypeString
	FieldTypeDate
	FieldTypeOID
	FieldTypeGeometry
	FieldTypeBlob
	FieldTypeRaster
	FieldTypeGUID
	FieldTypeGlobalID
	FieldTypeXML
	FieldTypeBigInteger
)

var fieldTypeNames = [...]string{
	"SmallInteger", "Integer", "Single", "Double", "String", "Date", "OID",
	"Geometry", "Blob", "Raster", "GUID", "GlobalID", "XML", "BigInteger",
}

// String returns the esriFieldType* name.
func (f FieldType) String() string {
	return "esriFieldType" + f.Short()
}

// Short returns the name without the esriFieldType prefix.
func (f FieldType) Short() string {
	if f < 0 || int(f) >= len(fieldTypeNames) {
		return "Unknown"
	}
	return fieldTypeNames[f]
}

// GeometryType follows the wire enum; Point is the zero value, which is why
// point properties arrive without an explicit geometry type.
type GeometryType int32

const (
	GeometryPoint GeometryType = iota
	GeometryMultipoint
	GeometryPolyline
	GeometryPolygon
	GeometryMultipatch
	GeometryEnvelope
)

func (g GeometryType) String() string {
	switch g {
	case GeometryPoint:
		return "esriGeometryTypePoint"
	case GeometryMultipoint:
		return "esriGeometryTypeMultipoint"
	case GeometryPolyline:
		return "esriGeometryTypePolyline"
	case GeometryPolygon:
		return "esriGeometryTypePolygon"
	case GeometryMultipatch:
		return "esriGeometryTypeMultipatch"
	case GeometryEnvelope:
		return "esriGeometryTypeEnvelope"
	default:
		return "esriGeometryTypeUnknown"
	}
}

type Cardinality int32

const (
	CardinalityUnknown Cardinality = iota
	CardinalityOneToOne
	CardinalityOneToMany
	CardinalityManyToMany
)

func (c Cardinality) String() string {
	switch c {
	case CardinalityOneToOne:
		return "esriRelCardinalityOneToOne"
	case CardinalityOneToMany:
		return "esriRelCardinalityOneToMany"
	case CardinalityManyToMany:
		return "esriRelCardinalityManyToMany"
	default:
		return "esriRelCardinalityUnknown"
	}
}

type SpatialReference struct {
	WKID       int32
	LatestWKID int32
	WKT        string
}

type Error struct {
	Code    int32
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

type Property struct {
	Name         string
	Alias        string
	Domain       string
	FieldType    FieldType
	GeometryType GeometryType
	HasZ         bool
	HasM         bool
	Nullable     bool
	Editable     bool
	Visible      bool
	Required     bool
}

type EntityType struct {
	Name       string
	Alias      string
	Role       int32
	Strict     bool
	Properties []Property
}

// GeometryProperty returns the property typed as geometry, if any.
func (e *EntityType) GeometryProperty() (Property, bool) {
	for _, p := range e.Properties {
		if p.FieldType == FieldTypeGeometry {
			return p, true
		}
	}
	return Property{}, false
}

type RelationshipType struct {
	Name         string
	Alias        string
	Strict       bool
	Properties   []Property
	Origins      []string
	Destinations []string
	Cardinality  Cardinality
}

type DataModel struct {
	Timestamp         uint64
	SpatialReference  *SpatialReference
	EntityTypes       []EntityType
	RelationshipTypes []RelationshipType
	Strict            bool
	ObjectIDProperty  string
	GlobalIDProperty  string
	ArcGISManaged     bool
}

type QueryResultHeader struct {
	Error            *Error
	MajorVersion     uint32
	MinorVersion     uint32
	SpatialReference *SpatialReference
	Transform        *quantize.Params
	HeaderKeys       []string
}

type QueryResultFrame struct {
	Error *Error
	Rows  []Row
}

type Row struct {
	Values []AnyValue
}

// AnyValue is one of Primitive, Array, Entity or Relationship; exactly one
// pointer is set on a decoded value.
type AnyValue struct {
	Primitive    *Primitive
	Array        *ArrayValue
	Entity       *EntityValue
	Relationship *RelationshipValue
}

type ArrayValue struct {
	Values []AnyValue
}

type PropertyValue struct {
	Name  string
	Value AnyValue
}

type EntityValue struct {
	TypeName   string
	ID         *AnyValue
	Properties []PropertyValue
}

// Property looks up a property by name, case-insensitively.
func (e *EntityValue) Property(name string) (AnyValue, bool) {
	for _, p := range e.Properties {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return AnyValue{}, false
}

type RelationshipValue struct {
	TypeName   string
	ID         *AnyValue
	OriginID   *AnyValue
	DestID     *AnyValue
	Properties []PropertyValue
}

type PrimitiveKind int

const (
	KindNull PrimitiveKind = iota
	KindBool
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat
	KindDouble
	KindString
	KindDate
	KindUUID
	KindGeometry
	KindBlob
)

// Primitive is a closed tagged union over the wire's scalar variants. Int holds
// Int32/Int64/Date (epoch ms), Uint holds Uint32/Uint64, Float holds
// Float/Double, Bytes holds UUID/Blob.
type Primitive struct {
	Kind     PrimitiveKind
	Bool     bool
	Int      int64
	Uint     uint64
	Float    float64
	Str      string
	Bytes    []byte
	Geometry *GeometryValue
}

type GeometryValue struct {
	GeometryType GeometryType
	HasZ         bool
	HasM         bool
	Lengths      []uint32
	Coords       []int64
}

func Null() AnyValue                { return AnyValue{Primitive: &Primitive{Kind: KindNull}} }
func Bool(v bool) AnyValue          { return AnyValue{Primitive: &Primitive{Kind: KindBool, Bool: v}} }
func Int32(v int32) AnyValue        { return AnyValue{Primitive: &Primitive{Kind: KindInt32, Int: int64(v)}} }
func Int64(v int64) AnyValue        { return AnyValue{Primitive: &Primitive{Kind: KindInt64, Int: v}} }
func Uint64(v uint64) AnyValue      { return AnyValue{Primitive: &Primitive{Kind: KindUint64, Uint: v}} }
func Double(v float64) AnyValue     { return AnyValue{Primitive: &Primitive{Kind: KindDouble, Float: v}} }
func String(v string) AnyValue      { return AnyValue{Primitive: &Primitive{Kind: KindString, Str: v}} }
func Date(ms int64) AnyValue        { return AnyValue{Primitive: &Primitive{Kind: KindDate, Int: ms}} }
func UUID(b [16]byte) AnyValue      { return AnyValue{Primitive: &Primitive{Kind: KindUUID, Bytes: b[:]}} }
func Geometry(g GeometryValue) AnyValue {
	return AnyValue{Primitive: &Primitive{Kind: KindGeometry, Geometry: &g}}
}

type ApplyEditsHeader struct {
	MajorVersion          uint32
	MinorVersion          uint32
	InputSpatialReference *SpatialReference
	InputTransform        *quantize.Params
}

// NamedObjectAdd is one object to create; Properties keep insertion order.
type NamedObjectAdd struct {
	Properties []PropertyValue
}

type TypedAdds struct {
	TypeName string
	Objects  []NamedObjectAdd
}

type ApplyEditsFrame struct {
	Entities      []TypedAdds
	Relationships []TypedAdds
}

type EditResult struct {
	ID    *AnyValue
	Error *Error
}

type TypedEditResults struct {
	TypeName   string
	AddResults []EditResult
}

type ApplyEditsResult struct {
	Error               *Error
	EntityResults       []TypedEditResults
	RelationshipResults []TypedEditResults
}
