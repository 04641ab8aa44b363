// Package engine implements kit placement: choosing how a kit can be laid
// onto a destination plate, validating which candidate blocks the operator
// picked, expanding the kit design into absolute wells and encoding the
// choice for the apply endpoint.
package engine

import (
	"fmt"

	"github.com/piwi3910/KitPlacer/internal/model"
)

// Kind identifies a placement strategy.
type Kind string

const (
	KindExactMatch        Kind = "exact_match"        // Kit and plate have the same grid
	KindRowBlocks         Kind = "row_blocks"         // Full-width kit stacked down the rows
	KindColBlocks         Kind = "col_blocks"         // Full-height kit repeated across columns
	KindBlockPlacement    Kind = "block_placement"    // 2-D tiling of a smaller kit
	KindQuadrantSelection Kind = "quadrant_selection" // 4x6 kit on a 96-well plate
	KindRowPairSelection  Kind = "row_pair_selection" // 2x12 kit on a 96-well plate
	KindHalfSelection     Kind = "half_selection"     // 4x12 kit on a 96-well plate
	KindDefaultA1         Kind = "default_a1"         // Only one tile fits; forced to A1
	KindUnsupported       Kind = "unsupported"        // Kit larger than the plate
)

// Kinds lists every strategy kind.
var Kinds = []Kind{
	KindExactMatch,
	KindRowBlocks,
	KindColBlocks,
	KindBlockPlacement,
	KindQuadrantSelection,
	KindRowPairSelection,
	KindHalfSelection,
	KindDefaultA1,
	KindUnsupported,
}

// Cardinality is how many blocks the operator picks for a strategy.
type Cardinality int

const (
	CardinalityNone   Cardinality = iota // Nothing can be placed
	CardinalityAuto                      // The single block is selected implicitly
	CardinalitySingle                    // Exactly one block; a new pick replaces the old
	CardinalityMulti                     // One or more blocks
)

func (c Cardinality) String() string {
	switch c {
	case CardinalityAuto:
		return "auto"
	case CardinalitySingle:
		return "single"
	case CardinalityMulti:
		return "multi"
	default:
		return "none"
	}
}

// Cardinality returns the selection rule of the strategy kind.
func (k Kind) Cardinality() Cardinality {
	switch k {
	case KindExactMatch, KindDefaultA1:
		return CardinalityAuto
	case KindHalfSelection:
		return CardinalitySingle
	case KindRowBlocks, KindColBlocks, KindBlockPlacement, KindQuadrantSelection, KindRowPairSelection:
		return CardinalityMulti
	case KindUnsupported:
		return CardinalityNone
	}
	panic(fmt.Sprintf("engine: unhandled strategy kind %q", string(k)))
}

// Base returns the generic tiling a named specialization is built on.
func (k Kind) Base() Kind {
	switch k {
	case KindQuadrantSelection:
		return KindBlockPlacement
	case KindRowPairSelection, KindHalfSelection:
		return KindRowBlocks
	case KindExactMatch, KindRowBlocks, KindColBlocks, KindBlockPlacement, KindDefaultA1, KindUnsupported:
		return k
	}
	panic(fmt.Sprintf("engine: unhandled strategy kind %q", string(k)))
}

// AutoSelected reports whether the single block is selected without user action.
func (k Kind) AutoSelected() bool {
	return k.Cardinality() == CardinalityAuto
}

// Block is one candidate position of the kit on the plate.
type Block struct {
	ID       string       `json:"id"`
	Anchor   model.WellID `json:"anchor"` // Top-left well of the kit footprint
	SpanRows int          `json:"span_rows"`
	SpanCols int          `json:"span_cols"`
	Label    string       `json:"label"`
}

// Wells returns every plate well covered by the block, row-major.
func (b Block) Wells() []model.WellID {
	wells := make([]model.WellID, 0, b.SpanRows*b.SpanCols)
	for r := 0; r < b.SpanRows; r++ {
		for c := 0; c < b.SpanCols; c++ {
			wells = append(wells, model.WellID{Row: b.Anchor.Row + r, Col: b.Anchor.Col + c})
		}
	}
	return wells
}

// Overlaps reports whether two blocks share any well.
func (b Block) Overlaps(o Block) bool {
	return b.Anchor.Row < o.Anchor.Row+o.SpanRows && o.Anchor.Row < b.Anchor.Row+b.SpanRows &&
		b.Anchor.Col < o.Anchor.Col+o.SpanCols && o.Anchor.Col < b.Anchor.Col+b.SpanCols
}

// Strategy is the resolved placement rule for one kit on one plate.
type Strategy struct {
	Kind    Kind              `json:"kind"`
	Layout  model.PlateLayout `json:"layout"`
	KitRows int               `json:"kit_rows"`
	KitCols int               `json:"kit_cols"`
	Blocks  []Block           `json:"blocks"`
	Reason  string            `json:"reason,omitempty"` // Set for unsupported placements
}

// Block looks up a block by ID.
func (s Strategy) Block(id string) (Block, bool) {
	for _, b := range s.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return Block{}, false
}

// Cardinality is shorthand for s.Kind.Cardinality().
func (s Strategy) Cardinality() Cardinality {
	return s.Kind.Cardinality()
}

// Supported reports whether the kit can be placed at all.
func (s Strategy) Supported() bool {
	return s.Kind != KindUnsupported
}
