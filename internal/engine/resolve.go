package engine

import (
	"fmt"

	"github.com/piwi3910/KitPlacer/internal/model"
)

// Resolve picks the placement strategy for a kitRows x kitCols kit on the
// given plate and enumerates its candidate blocks. Rules are tried in
// order: exact match, row blocks, column blocks, 2-D tiling (collapsing to
// default_a1 when only one tile fits), and finally unsupported.
func Resolve(kitRows, kitCols int, layout model.PlateLayout) Strategy {
	s := Strategy{Layout: layout, KitRows: kitRows, KitCols: kitCols}

	switch {
	case kitRows <= 0 || kitCols <= 0:
		s.Kind = KindUnsupported
		s.Reason = fmt.Sprintf("invalid kit size %dx%d", kitRows, kitCols)
	case kitRows == layout.Rows && kitCols == layout.Cols:
		s.Kind = KindExactMatch
		s.Blocks = []Block{wholePlateBlock(layout)}
	case kitCols == layout.Cols && kitRows < layout.Rows:
		s.Kind = KindRowBlocks
		s.Blocks = rowBlocks(kitRows, layout)
	case kitRows == layout.Rows && kitCols < layout.Cols:
		s.Kind = KindColBlocks
		s.Blocks = colBlocks(kitCols, layout)
	case kitRows < layout.Rows && kitCols < layout.Cols:
		rowTiles := layout.Rows / kitRows
		colTiles := layout.Cols / kitCols
		if rowTiles*colTiles > 1 {
			s.Kind = KindBlockPlacement
			s.Blocks = tileBlocks(kitRows, kitCols, rowTiles, colTiles)
		} else {
			s.Kind = KindDefaultA1
			s.Blocks = []Block{{
				ID:       "A1",
				Anchor:   model.WellID{},
				SpanRows: kitRows,
				SpanCols: kitCols,
				Label:    wellRangeLabel(model.WellID{}, kitRows, kitCols),
			}}
		}
	default:
		s.Kind = KindUnsupported
		s.Reason = fmt.Sprintf("%dx%d kit does not fit on %s (%dx%d)", kitRows, kitCols, layout.Name, layout.Rows, layout.Cols)
	}

	return specialize(s)
}

// ResolveForPlate looks up the plate type and resolves against its layout.
func ResolveForPlate(kitRows, kitCols int, plate model.PlateType) (Strategy, error) {
	layout, err := model.LookupPlate(plate)
	if err != nil {
		return Strategy{}, err
	}
	return Resolve(kitRows, kitCols, layout), nil
}

func wholePlateBlock(layout model.PlateLayout) Block {
	return Block{
		ID:       "A1",
		Anchor:   model.WellID{},
		SpanRows: layout.Rows,
		SpanCols: layout.Cols,
		Label:    "Full plate",
	}
}

func rowBlocks(kitRows int, layout model.PlateLayout) []Block {
	n := layout.Rows / kitRows
	blocks := make([]Block, 0, n)
	for i := 0; i < n; i++ {
		first := i * kitRows
		blocks = append(blocks, Block{
			ID:       rowRangeID(first, kitRows),
			Anchor:   model.WellID{Row: first, Col: 0},
			SpanRows: kitRows,
			SpanCols: layout.Cols,
			Label:    rowRangeLabel(first, kitRows),
		})
	}
	return blocks
}

func colBlocks(kitCols int, layout model.PlateLayout) []Block {
	n := layout.Cols / kitCols
	blocks := make([]Block, 0, n)
	for i := 0; i < n; i++ {
		first := i * kitCols
		blocks = append(blocks, Block{
			ID:       colRangeID(first, kitCols),
			Anchor:   model.WellID{Row: 0, Col: first},
			SpanRows: layout.Rows,
			SpanCols: kitCols,
			Label:    colRangeLabel(first, kitCols),
		})
	}
	return blocks
}

func tileBlocks(kitRows, kitCols, rowTiles, colTiles int) []Block {
	blocks := make([]Block, 0, rowTiles*colTiles)
	for r := 0; r < rowTiles; r++ {
		for c := 0; c < colTiles; c++ {
			anchor := model.WellID{Row: r * kitRows, Col: c * kitCols}
			blocks = append(blocks, Block{
				ID:       anchor.String(),
				Anchor:   anchor,
				SpanRows: kitRows,
				SpanCols: kitCols,
				Label:    wellRangeLabel(anchor, kitRows, kitCols),
			})
		}
	}
	return blocks
}

// Named layouts for the kit formats the lab ships. They keep the tiling
// arithmetic and only rename the strategy and its blocks.
var (
	quadrantNames = []struct{ id, label string }{
		{"top_left", "Top Left"},
		{"top_right", "Top Right"},
		{"bottom_left", "Bottom Left"},
		{"bottom_right", "Bottom Right"},
	}
	halfNames = []struct{ id, label string }{
		{"top_half", "Top Half"},
		{"bottom_half", "Bottom Half"},
	}
)

func specialize(s Strategy) Strategy {
	is96 := s.Layout.Rows == 8 && s.Layout.Cols == 12
	switch {
	case s.Kind == KindBlockPlacement && s.KitRows == 4 && s.KitCols == 6 && len(s.Blocks) == len(quadrantNames):
		s.Kind = KindQuadrantSelection
		s.Blocks = renameBlocks(s.Blocks, func(i int, b Block) (string, string) {
			return quadrantNames[i].id, fmt.Sprintf("%s (%s)", quadrantNames[i].label, b.Label)
		})
	case s.Kind == KindRowBlocks && is96 && s.KitRows == 2 && s.KitCols == 12:
		s.Kind = KindRowPairSelection
		s.Blocks = renameBlocks(s.Blocks, func(_ int, b Block) (string, string) {
			return b.ID, fmt.Sprintf("%s (row pair)", b.Label)
		})
	case s.Kind == KindRowBlocks && is96 && s.KitRows == 4 && s.KitCols == 12:
		s.Kind = KindHalfSelection
		s.Blocks = renameBlocks(s.Blocks, func(i int, b Block) (string, string) {
			return halfNames[i].id, fmt.Sprintf("%s (%s)", halfNames[i].label, b.Label)
		})
	}
	return s
}

func renameBlocks(blocks []Block, name func(int, Block) (id, label string)) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		b.ID, b.Label = name(i, b)
		out[i] = b
	}
	return out
}

func rowRangeID(first, n int) string {
	if n == 1 {
		return "row_" + model.RowLetter(first)
	}
	return fmt.Sprintf("rows_%s-%s", model.RowLetter(first), model.RowLetter(first+n-1))
}

func rowRangeLabel(first, n int) string {
	if n == 1 {
		return "Row " + model.RowLetter(first)
	}
	return fmt.Sprintf("Rows %s-%s", model.RowLetter(first), model.RowLetter(first+n-1))
}

func colRangeID(first, n int) string {
	if n == 1 {
		return fmt.Sprintf("col_%d", first+1)
	}
	return fmt.Sprintf("cols_%d-%d", first+1, first+n)
}

func colRangeLabel(first, n int) string {
	if n == 1 {
		return fmt.Sprintf("Column %d", first+1)
	}
	return fmt.Sprintf("Columns %d-%d", first+1, first+n)
}

func wellRangeLabel(anchor model.WellID, rows, cols int) string {
	last := model.WellID{Row: anchor.Row + rows - 1, Col: anchor.Col + cols - 1}
	if last == anchor {
		return anchor.String()
	}
	return fmt.Sprintf("%s-%s", anchor, last)
}
