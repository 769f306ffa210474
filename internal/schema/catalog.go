// Package schema turns a knowledge graph data model into feature-service
// layers, tables and relationships, and caches the result per service.
package schema

import (
	"strings"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgpb"
)

// Role is the side of a relationship a layer sits on.
type Role string

const (
	RoleOrigin      Role = "esriRelRoleOrigin"
	RoleDestination Role = "esriRelRoleDestination"
)

// Relationship points at another layer of the same catalog by id.
type Relationship struct {
	ID             int
	Name           string
	Role           Role
	RelatedTableID int
	Cardinality    kgpb.Cardinality
}

// Layer is an entity type exposed as a layer (it has a geometry property) or
// a table (it does not). ID is the layer's index in Catalog.Layers.
type Layer struct {
	ID            int
	Entity        kgpb.EntityType
	GeometryType  string
	GeometryField string
	Relationships []Relationship
}

func (l *Layer) Name() string { return l.Entity.Name }

func (l *Layer) IsTable() bool { return l.GeometryField == "" }

// Relationship finds a relationship of l by id.
func (l *Layer) Relationship(id int) (Relationship, bool) {
	for _, r := range l.Relationships {
		if r.ID == id {
			return r, true
		}
	}
	return Relationship{}, false
}

// Catalog is the derived, read-only view of one data model. Layers holds
// geometry entities first and tables after them, both in discovery order.
type Catalog struct {
	Model     *kgpb.DataModel
	Layers    []Layer
	NumLayers int
	byName    map[string]int
}

// GeometryClass maps a wire geometry type to its GeoJSON name. Points arrive
// without an explicit type so anything unrecognised is a Point.
func GeometryClass(g kgpb.GeometryType) string {
	switch g {
	case kgpb.GeometryPolygon:
		return "Polygon"
	case kgpb.GeometryPolyline:
		return "LineString"
	case kgpb.GeometryMultipoint:
		return "MultiPoint"
	default:
		return "Point"
	}
}

func newLayer(et kgpb.EntityType) Layer {
	l := Layer{Entity: et}
	if p, ok := et.GeometryProperty(); ok {
		l.GeometryField = p.Name
		l.GeometryType = GeometryClass(p.GeometryType)
	}
	return l
}

// Build derives the catalog from dm.
func Build(dm *kgpb.DataModel) *Catalog {
	c := &Catalog{Model: dm, byName: make(map[string]int, len(dm.EntityTypes))}

	var tables []Layer
	for _, et := range dm.EntityTypes {
		l := newLayer(et)
		if l.IsTable() {
			tables = append(tables, l)
			continue
		}
		c.Layers = append(c.Layers, l)
	}
	c.NumLayers = len(c.Layers)
	c.Layers = append(c.Layers, tables...)

	for i := range c.Layers {
		c.Layers[i].ID = i
		c.byName[c.Layers[i].Entity.Name] = i
	}

	relID := 0
	for _, rt := range dm.RelationshipTypes {
		for _, origin := range rt.Origins {
			for _, dest := range rt.Destinations {
				oi, ok1 := c.byName[origin]
				di, ok2 := c.byName[dest]
				if !ok1 || !ok2 {
					continue
				}
				c.Layers[oi].Relationships = append(c.Layers[oi].Relationships, Relationship{
					ID: relID, Name: rt.Name, Role: RoleOrigin, RelatedTableID: di, Cardinality: rt.Cardinality,
				})
				if oi != di {
					c.Layers[di].Relationships = append(c.Layers[di].Relationships, Relationship{
						ID: relID, Name: rt.Name, Role: RoleDestination, RelatedTableID: oi, Cardinality: rt.Cardinality,
					})
				}
				relID++
			}
		}
	}
	return c
}

// Layer returns the layer or table with the given id.
func (c *Catalog) Layer(id int) (*Layer, bool) {
	if id < 0 || id >= len(c.Layers) {
		return nil, false
	}
	return &c.Layers[id], true
}

// ByName looks an entity type up by name, ignoring case.
func (c *Catalog) ByName(name string) (*Layer, bool) {
	if i, ok := c.byName[name]; ok {
		return &c.Layers[i], true
	}
	for i := range c.Layers {
		if strings.EqualFold(c.Layers[i].Entity.Name, name) {
			return &c.Layers[i], true
		}
	}
	return nil, false
}
