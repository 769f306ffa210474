package schema

import (
	"strings"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgpb"
)

// WorldExtent is reported for every layer; the graph service does not expose
// per-entity extents.
var WorldExtent = [2][2]float64{{180, 90}, {-180, -90}}

type FieldInfo struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
	Type  string `json:"type"`
}

type RelationshipInfo struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	RelatedTableID int    `json:"relatedTableId"`
	Cardinality    string `json:"cardinality"`
	Role           Role   `json:"role"`
}

type LayerMetadata struct {
	ID            int                `json:"id"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Extent        [2][2]float64      `json:"extent"`
	Fields        []FieldInfo        `json:"fields"`
	GeometryType  *string            `json:"geometryType"`
	IDField       string             `json:"idField"`
	Relationships []RelationshipInfo `json:"relationships"`
}

// LayerInfo is the layer descriptor: an empty FeatureCollection whose metadata
// describes the layer.
type LayerInfo struct {
	Type     string        `json:"type"`
	Features []any         `json:"features"`
	Metadata LayerMetadata `json:"metadata"`
}

type ServiceInfo struct {
	Layers []LayerInfo `json:"layers"`
	Tables []LayerInfo `json:"tables"`
}

// PublicFieldName is the name a property is exposed under.
func PublicFieldName(name string) string {
	if strings.EqualFold(name, "objectid") {
		return "OBJECTID"
	}
	return name
}

func fieldType(f kgpb.FieldType) string {
	return strings.TrimPrefix(f.String(), "esriFieldType")
}

// Info renders the layer descriptor.
func (l *Layer) Info() LayerInfo {
	md := LayerMetadata{
		ID:            l.ID,
		Name:          l.Entity.Name,
		Description:   l.Entity.Name,
		Extent:        WorldExtent,
		Fields:        make([]FieldInfo, 0, len(l.Entity.Properties)),
		IDField:       "OBJECTID",
		Relationships: make([]RelationshipInfo, 0, len(l.Relationships)),
	}
	if l.Entity.Alias != "" {
		md.Description = l.Entity.Alias
	}
	for _, p := range l.Entity.Properties {
		md.Fields = append(md.Fields, FieldInfo{
			Name:  PublicFieldName(p.Name),
			Alias: p.Alias,
			Type:  fieldType(p.FieldType),
		})
	}
	if l.GeometryType != "" {
		gt := l.GeometryType
		md.GeometryType = &gt
	}
	for _, r := range l.Relationships {
		md.Relationships = append(md.Relationships, RelationshipInfo{
			ID:             r.ID,
			Name:           r.Name,
			RelatedTableID: r.RelatedTableID,
			Cardinality:    r.Cardinality.String(),
			Role:           r.Role,
		})
	}
	return LayerInfo{Type: "FeatureCollection", Features: []any{}, Metadata: md}
}

// ServiceInfo renders every layer and table of the catalog.
func (c *Catalog) ServiceInfo() ServiceInfo {
	out := ServiceInfo{Layers: []LayerInfo{}, Tables: []LayerInfo{}}
	for i := range c.Layers {
		if i < c.NumLayers {
			out.Layers = append(out.Layers, c.Layers[i].Info())
		} else {
			out.Tables = append(out.Tables, c.Layers[i].Info())
		}
	}
	return out
}
