package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/piwi3910/KitPlacer/internal/model"
)

var (
	// ErrKitMismatch is returned when a kit is built against a strategy
	// resolved for different kit dimensions.
	ErrKitMismatch = errors.New("kit dimensions do not match strategy")

	// ErrOverlap is part of the error taxonomy but is never returned:
	// contributions from overlapping blocks stack instead.
	ErrOverlap = errors.New("selected blocks overlap")
)

// Contribution is one material amount landing in a plate well.
type Contribution struct {
	Material string  `json:"material"`
	Amount   float64 `json:"amount"`
	Unit     string  `json:"unit"`
	Block    string  `json:"block"` // ID of the block that produced it
}

// WellAssignment maps absolute plate wells to the contributions they receive.
type WellAssignment map[model.WellID][]Contribution

// Wells returns the assigned wells in row-major order.
func (a WellAssignment) Wells() []model.WellID {
	wells := make([]model.WellID, 0, len(a))
	for w := range a {
		wells = append(wells, w)
	}
	sort.Slice(wells, func(i, j int) bool { return wells[i].Less(wells[j]) })
	return wells
}

// Contributions counts every contribution across all wells.
func (a WellAssignment) Contributions() int {
	n := 0
	for _, c := range a {
		n += len(c)
	}
	return n
}

// BuildAssignment expands the kit design across every selected block.
// Each design entry is offset by the block anchor and appended to the
// target well in kit order; wells reached by more than one block keep
// every contribution. A kit with N design entries and K selected blocks
// always yields N*K contributions.
func BuildAssignment(kit model.KitDescriptor, s Strategy, sel Selection) (WellAssignment, error) {
	if kit.Rows != s.KitRows || kit.Cols != s.KitCols {
		return nil, fmt.Errorf("%w: kit %dx%d, strategy %dx%d", ErrKitMismatch, kit.Rows, kit.Cols, s.KitRows, s.KitCols)
	}
	blocks, err := SelectedBlocks(s, sel)
	if err != nil {
		return nil, err
	}

	out := make(WellAssignment)
	for _, b := range blocks {
		for _, e := range kit.Design {
			target := e.Well.Offset(b.Anchor)
			if !s.Layout.Contains(target) {
				return nil, fmt.Errorf("design well %s lands on %s outside the plate", e.Well, target)
			}
			unit := e.Unit
			if unit == "" {
				unit = model.DefaultUnit
			}
			out[target] = append(out[target], Contribution{
				Material: e.Material,
				Amount:   e.Amount,
				Unit:     unit,
				Block:    b.ID,
			})
		}
	}
	return out, nil
}
