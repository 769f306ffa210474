// Package invalidation defines the change events exchanged over Kafka. They
// are produced after edits and consumed to drop stale cached results.
package invalidation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
)

const Version = 1

type Event struct {
	Version   int             `json:"version"`
	Op        string          `json:"op"`
	Service   string          `json:"service"`
	Entity    string          `json:"entity"`
	TS        time.Time       `json:"ts"`
	FeatureID any             `json:"feature_id,omitempty"`
	Source    string          `json:"source,omitempty"`
	BBox      *BBox           `json:"bbox,omitempty"`
	Geometry  json.RawMessage `json:"geometry,omitempty"`
	Cells     []string        `json:"cells,omitempty"`
}

type BBox struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	SRID string  `json:"srid"`
}

func (b BBox) Model() model.BBox {
	return model.BBox{X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2, SRID: b.SRID}
}

// Spatial reports whether the event names an area. Events without one
// apply to the whole entity type.
func (e Event) Spatial() bool {
	return e.BBox != nil || len(e.Geometry) > 0 || len(e.Cells) > 0
}

func (e Event) Validate() error {
	if e.Version != Version {
		return fmt.Errorf("version must be %d", Version)
	}
	switch e.Op {
	case "insert", "update", "delete":
	default:
		return errors.New("op must be insert|update|delete")
	}
	if strings.TrimSpace(e.Service) == "" {
		return errors.New("service is required")
	}
	if strings.TrimSpace(e.Entity) == "" {
		return errors.New("entity is required")
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	if e.BBox != nil && len(e.Geometry) > 0 {
		return errors.New("at most one of bbox or geometry is allowed")
	}
	if e.BBox != nil {
		bb := *e.BBox
		if bb.SRID != "EPSG:4326" {
			return errors.New("bbox.srid must be EPSG:4326")
		}
		if !(bb.X1 >= -180 && bb.X1 <= 180 && bb.X2 >= -180 && bb.X2 <= 180) {
			return errors.New("bbox longitude out of range")
		}
		if !(bb.Y1 >= -90 && bb.Y1 <= 90 && bb.Y2 >= -90 && bb.Y2 <= 90) {
			return errors.New("bbox latitude out of range")
		}
		if bb.X2 < bb.X1 || bb.Y2 < bb.Y1 {
			return errors.New("bbox must satisfy x2>=x1 and y2>=y1")
		}
	}
	if len(e.Geometry) > 0 {
		var hdr struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(e.Geometry, &hdr); err != nil {
			return fmt.Errorf("geometry parse: %w", err)
		}
		if hdr.Type != "Polygon" && hdr.Type != "MultiPolygon" {
			return errors.New("geometry.type must be Polygon or MultiPolygon")
		}
	}
	for _, c := range e.Cells {
		if strings.TrimSpace(c) == "" {
			return errors.New("cells must not contain empty ids")
		}
	}
	return nil
}
