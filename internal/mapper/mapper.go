// Package mapper converts between geometric coordinates and H3 cells.
package mapper

import (
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
)

// Interface is what the result cache and the invalidation consumer need to
// turn envelopes and event geometries into index cells.
type Interface interface {
	Cover(bb model.BBox, res int) (model.Cells, error)
	CellsForPolygon(poly model.Polygon, res int) (model.Cells, error)
	Normalize(cells model.Cells, res int) (model.Cells, error)
}
