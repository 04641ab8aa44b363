package engine

import (
	"errors"
	"fmt"
)

// Selection errors. They block an apply locally; nothing is sent.
var (
	ErrUnsupportedPlacement = errors.New("kit not supported on this plate")
	ErrEmptySelection       = errors.New("no block selected")
	ErrInvalidCardinality   = errors.New("invalid number of selected blocks")
	ErrUnknownBlock         = errors.New("unknown block")
)

// Selection is the ordered list of chosen block IDs.
type Selection []string

// Contains reports whether id is selected.
func (s Selection) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// DefaultSelection is the selection a strategy starts with: its single
// block for auto-selected strategies, nothing otherwise.
func DefaultSelection(s Strategy) Selection {
	if s.Kind.AutoSelected() && len(s.Blocks) == 1 {
		return Selection{s.Blocks[0].ID}
	}
	return Selection{}
}

// Toggle applies a click on block id. Multi-select strategies add or remove
// the block, single-select strategies replace the previous choice and
// auto-selected strategies keep their forced block.
func Toggle(s Strategy, sel Selection, id string) (Selection, error) {
	if _, ok := s.Block(id); !ok {
		if !s.Supported() {
			return sel, ErrUnsupportedPlacement
		}
		return sel, fmt.Errorf("%w: %q", ErrUnknownBlock, id)
	}

	switch s.Cardinality() {
	case CardinalityAuto:
		return DefaultSelection(s), nil
	case CardinalitySingle:
		return Selection{id}, nil
	case CardinalityMulti:
		if sel.Contains(id) {
			out := make(Selection, 0, len(sel)-1)
			for _, v := range sel {
				if v != id {
					out = append(out, v)
				}
			}
			return out, nil
		}
		out := make(Selection, len(sel), len(sel)+1)
		copy(out, sel)
		return append(out, id), nil
	default:
		return sel, ErrUnsupportedPlacement
	}
}

// Validate checks a selection against the strategy's cardinality rule.
// Auto-selected strategies accept an empty selection (it is implied) or
// exactly their forced block. Every selected ID must name a block.
func Validate(s Strategy, sel Selection) error {
	if !s.Supported() {
		return ErrUnsupportedPlacement
	}
	for _, id := range sel {
		if _, ok := s.Block(id); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownBlock, id)
		}
	}

	switch s.Cardinality() {
	case CardinalityAuto:
		if len(sel) > 1 {
			return fmt.Errorf("%w: %s takes exactly one block, got %d", ErrInvalidCardinality, s.Kind, len(sel))
		}
	case CardinalitySingle:
		if len(sel) == 0 {
			return ErrEmptySelection
		}
		if len(sel) > 1 {
			return fmt.Errorf("%w: %s takes exactly one block, got %d", ErrInvalidCardinality, s.Kind, len(sel))
		}
	case CardinalityMulti:
		if len(sel) == 0 {
			return ErrEmptySelection
		}
	default:
		return ErrUnsupportedPlacement
	}
	return nil
}

// SelectedBlocks returns the blocks a valid selection stands for, in
// selection order. Auto-selected strategies always yield their forced block.
func SelectedBlocks(s Strategy, sel Selection) ([]Block, error) {
	if err := Validate(s, sel); err != nil {
		return nil, err
	}
	if s.Kind.AutoSelected() {
		return []Block{s.Blocks[0]}, nil
	}
	blocks := make([]Block, 0, len(sel))
	for _, id := range sel {
		b, _ := s.Block(id)
		blocks = append(blocks, b)
	}
	return blocks, nil
}
