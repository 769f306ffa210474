package h3mapper

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/model"
)

func parseCell(cell string) (h3.Cell, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return 0, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return 0, fmt.Errorf("invalid h3 cell %q", cell)
	}
	return c, nil
}

func (m *Mapper) ToParent(cell string, parentRes int) (string, error) {
	if err := validateRes(parentRes); err != nil {
		return "", err
	}
	c, err := parseCell(cell)
	if err != nil {
		return "", err
	}
	curRes := c.Resolution()
	if parentRes > curRes {
		return "", fmt.Errorf("parentRes %d must be <= cell resolution %d", parentRes, curRes)
	}
	if parentRes == curRes {
		return cell, nil
	}
	p, err := c.Parent(parentRes)
	if err != nil {
		return "", fmt.Errorf("h3 parent: %w", err)
	}
	return p.String(), nil
}

func (m *Mapper) ToChildren(cell string, childRes int) (model.Cells, error) {
	if err := validateRes(childRes); err != nil {
		return nil, err
	}
	c, err := parseCell(cell)
	if err != nil {
		return nil, err
	}
	curRes := c.Resolution()
	if childRes < curRes {
		return nil, fmt.Errorf("childRes %d must be >= cell resolution %d", childRes, curRes)
	}
	if childRes == curRes {
		return model.Cells{cell}, nil
	}
	kids, err := c.Children(childRes)
	if err != nil {
		return nil, fmt.Errorf("h3 children: %w", err)
	}
	out := make(model.Cells, 0, len(kids))
	for _, k := range kids {
		out = append(out, k.String())
	}
	return uniqueSorted(out), nil
}

// Normalize brings cells of any resolution to res: finer cells map to their
// parent, coarser cells expand to their children.
func (m *Mapper) Normalize(cells model.Cells, res int) (model.Cells, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	var out model.Cells
	for _, cell := range cells {
		c, err := parseCell(cell)
		if err != nil {
			return nil, err
		}
		if c.Resolution() >= res {
			p, err := m.ToParent(cell, res)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
			continue
		}
		kids, err := m.ToChildren(cell, res)
		if err != nil {
			return nil, err
		}
		out = append(out, kids...)
	}
	return uniqueSorted(out), nil
}
