package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/KitPlacer/internal/model"
)

func TestEncode_ExactPlacementWire(t *testing.T) {
	s := Resolve(6, 8, layout(t, model.Plate48))
	d, err := Encode(s, nil, model.Plate48, model.KitSize{Rows: 6, Columns: 8})
	require.NoError(t, err)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"strategy":"exact_placement","position":"A1","destination_plate":"48"}`, string(data))
}

func TestEncode_DefaultA1UsesExactPlacement(t *testing.T) {
	s := Resolve(4, 6, layout(t, model.Plate48))
	d, err := Encode(s, DefaultSelection(s), model.Plate48, model.KitSize{Rows: 4, Columns: 6})
	require.NoError(t, err)
	assert.Equal(t, StrategyExactPlacement, d.Strategy)
	assert.Nil(t, d.KitSize)
}

func TestEncode_TilingWire(t *testing.T) {
	s := Resolve(4, 6, layout(t, model.Plate96))
	d, err := Encode(s, Selection{"top_left", "bottom_right"}, model.Plate96, model.KitSize{Rows: 4, Columns: 6, TotalWells: 24})
	require.NoError(t, err)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t,
		`{"strategy":"quadrant_selection","positions":["top_left","bottom_right"],"destination_plate":"96","kit_size":{"rows":4,"columns":6}}`,
		string(data))
}

func TestEncode_Errors(t *testing.T) {
	quads := Resolve(4, 6, layout(t, model.Plate96))
	_, err := Encode(quads, nil, model.Plate96, model.KitSize{Rows: 4, Columns: 6})
	assert.ErrorIs(t, err, ErrNoSelection)

	halves := Resolve(4, 12, layout(t, model.Plate96))
	_, err = Encode(halves, Selection{"top_half", "bottom_half"}, model.Plate96, model.KitSize{Rows: 4, Columns: 12})
	assert.ErrorIs(t, err, ErrInvalidCardinality)

	unsupported := Resolve(10, 10, layout(t, model.Plate96))
	_, err = Encode(unsupported, nil, model.Plate96, model.KitSize{Rows: 10, Columns: 10})
	assert.ErrorIs(t, err, ErrUnsupportedPlacement)
}

func TestDecode_RoundTrip(t *testing.T) {
	size := model.KitSize{Rows: 1, Columns: 12}
	s := Resolve(1, 12, layout(t, model.Plate96))
	sel := Selection{"row_D", "row_A"}

	d, err := Encode(s, sel, model.Plate96, size)
	require.NoError(t, err)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	var wire PlacementDescriptor
	require.NoError(t, json.Unmarshal(data, &wire))

	got, gotSel, err := Decode(wire, size)
	require.NoError(t, err)
	assert.Equal(t, KindRowBlocks, got.Kind)
	assert.Equal(t, sel, gotSel)
}

func TestDecode_ExactPlacement(t *testing.T) {
	d := PlacementDescriptor{Strategy: StrategyExactPlacement, Position: "A1", DestinationPlate: model.Plate24}
	s, sel, err := Decode(d, model.KitSize{Rows: 4, Columns: 6})
	require.NoError(t, err)
	assert.Equal(t, KindExactMatch, s.Kind)
	assert.Equal(t, Selection{"A1"}, sel)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		d    PlacementDescriptor
		size model.KitSize
		want error
	}{
		{
			name: "strategy mismatch",
			d:    PlacementDescriptor{Strategy: "row_blocks", Positions: []string{"top_left"}, DestinationPlate: model.Plate96},
			size: model.KitSize{Rows: 4, Columns: 6},
			want: ErrInvalidDescriptor,
		},
		{
			name: "exact on tiling kit",
			d:    PlacementDescriptor{Strategy: StrategyExactPlacement, Position: "A1", DestinationPlate: model.Plate96},
			size: model.KitSize{Rows: 4, Columns: 6},
			want: ErrInvalidDescriptor,
		},
		{
			name: "exact off A1",
			d:    PlacementDescriptor{Strategy: StrategyExactPlacement, Position: "B1", DestinationPlate: model.Plate48},
			size: model.KitSize{Rows: 6, Columns: 8},
			want: ErrInvalidDescriptor,
		},
		{
			name: "kit size disagrees",
			d: PlacementDescriptor{Strategy: "quadrant_selection", Positions: []string{"top_left"},
				DestinationPlate: model.Plate96, KitSize: &WireKitSize{Rows: 2, Columns: 12}},
			size: model.KitSize{Rows: 4, Columns: 6},
			want: ErrInvalidDescriptor,
		},
		{
			name: "unknown block",
			d:    PlacementDescriptor{Strategy: "quadrant_selection", Positions: []string{"middle"}, DestinationPlate: model.Plate96},
			size: model.KitSize{Rows: 4, Columns: 6},
			want: ErrUnknownBlock,
		},
		{
			name: "no positions",
			d:    PlacementDescriptor{Strategy: "quadrant_selection", DestinationPlate: model.Plate96},
			size: model.KitSize{Rows: 4, Columns: 6},
			want: ErrNoSelection,
		},
		{
			name: "unsupported",
			d:    PlacementDescriptor{Strategy: "row_blocks", Positions: []string{"row_A"}, DestinationPlate: model.Plate24},
			size: model.KitSize{Rows: 1, Columns: 12},
			want: ErrUnsupportedPlacement,
		},
		{
			name: "unknown plate",
			d:    PlacementDescriptor{Strategy: StrategyExactPlacement, DestinationPlate: model.PlateType(6)},
			size: model.KitSize{Rows: 2, Columns: 3},
			want: model.ErrUnknownPlateType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.d, tt.size)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
