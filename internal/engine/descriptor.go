package engine

import (
	"errors"
	"fmt"

	"github.com/piwi3910/KitPlacer/internal/model"
)

// StrategyExactPlacement is the wire tag shared by exact_match and
// default_a1: both place a single copy at A1.
const StrategyExactPlacement = "exact_placement"

// ErrNoSelection is returned when encoding a placement that needs an
// explicit block choice but has none.
var ErrNoSelection = errors.New("no placement selected")

// ErrInvalidDescriptor is returned when a descriptor cannot be decoded
// against the kit and plate it names.
var ErrInvalidDescriptor = errors.New("invalid placement descriptor")

// WireKitSize is the kit size echoed in a tiling descriptor.
type WireKitSize struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

// PlacementDescriptor is the position payload of the apply-kit request.
// The backend recomputes the assignment from it, so field names and order
// are part of the wire contract.
type PlacementDescriptor struct {
	Strategy         string          `json:"strategy"`
	Position         string          `json:"position,omitempty"`
	Positions        []string        `json:"positions,omitempty"`
	DestinationPlate model.PlateType `json:"destination_plate"`
	KitSize          *WireKitSize    `json:"kit_size,omitempty"`
}

// Encode serializes a strategy and selection into a descriptor.
func Encode(s Strategy, sel Selection, plate model.PlateType, kitSize model.KitSize) (PlacementDescriptor, error) {
	if !s.Supported() {
		return PlacementDescriptor{}, ErrUnsupportedPlacement
	}
	if s.Kind.AutoSelected() {
		if err := Validate(s, sel); err != nil {
			return PlacementDescriptor{}, err
		}
		return PlacementDescriptor{
			Strategy:         StrategyExactPlacement,
			Position:         "A1",
			DestinationPlate: plate,
		}, nil
	}

	if len(sel) == 0 {
		return PlacementDescriptor{}, ErrNoSelection
	}
	if err := Validate(s, sel); err != nil {
		return PlacementDescriptor{}, err
	}
	return PlacementDescriptor{
		Strategy:         string(s.Kind),
		Positions:        append([]string(nil), sel...),
		DestinationPlate: plate,
		KitSize:          &WireKitSize{Rows: kitSize.Rows, Columns: kitSize.Columns},
	}, nil
}

// Decode re-resolves the strategy a descriptor was encoded from and
// returns it with the selection it carries. kitSize comes from the apply
// request; a kit size echoed in the descriptor must agree with it.
func Decode(d PlacementDescriptor, kitSize model.KitSize) (Strategy, Selection, error) {
	if d.KitSize != nil && (d.KitSize.Rows != kitSize.Rows || d.KitSize.Columns != kitSize.Columns) {
		return Strategy{}, nil, fmt.Errorf("%w: kit size %dx%d does not match %dx%d",
			ErrInvalidDescriptor, d.KitSize.Rows, d.KitSize.Columns, kitSize.Rows, kitSize.Columns)
	}
	s, err := ResolveForPlate(kitSize.Rows, kitSize.Columns, d.DestinationPlate)
	if err != nil {
		return Strategy{}, nil, err
	}
	if !s.Supported() {
		return s, nil, ErrUnsupportedPlacement
	}

	if d.Strategy == StrategyExactPlacement {
		if !s.Kind.AutoSelected() {
			return s, nil, fmt.Errorf("%w: exact placement requested but kit resolves to %s", ErrInvalidDescriptor, s.Kind)
		}
		if d.Position != "" && d.Position != "A1" {
			return s, nil, fmt.Errorf("%w: exact placement must start at A1, got %q", ErrInvalidDescriptor, d.Position)
		}
		return s, DefaultSelection(s), nil
	}

	if d.Strategy != string(s.Kind) {
		return s, nil, fmt.Errorf("%w: strategy %q, kit resolves to %s", ErrInvalidDescriptor, d.Strategy, s.Kind)
	}
	if len(d.Positions) == 0 {
		return s, nil, ErrNoSelection
	}
	sel := Selection(append([]string(nil), d.Positions...))
	if err := Validate(s, sel); err != nil {
		return s, nil, err
	}
	return s, sel, nil
}
