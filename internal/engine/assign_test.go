package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/KitPlacer/internal/model"
)

// kitOf builds a rows x cols kit with one "cat" entry in every well and a
// "base" entry in the top-left well.
func kitOf(rows, cols int) model.KitDescriptor {
	kit := model.KitDescriptor{
		Rows:       rows,
		Cols:       cols,
		TotalWells: rows * cols,
		Materials: []model.Material{
			{Name: "cat", Alias: "C1"},
			{Name: "base"},
		},
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			kit.Design = append(kit.Design, model.DesignEntry{
				Well:     model.WellID{Row: r, Col: c},
				Material: "cat",
				Amount:   float64(r*cols + c + 1),
				Unit:     model.DefaultUnit,
			})
		}
	}
	kit.Design = append(kit.Design, model.DesignEntry{Well: model.WellID{}, Material: "base", Amount: 10})
	return kit
}

func TestBuildAssignment_QuadrantOffsets(t *testing.T) {
	kit := kitOf(4, 6)
	s := Resolve(4, 6, layout(t, model.Plate96))

	a, err := BuildAssignment(kit, s, Selection{"bottom_right"})
	require.NoError(t, err)

	assert.Len(t, a, 24)
	require.Len(t, a[model.Well('E', 7)], 2)
	assert.Equal(t, "cat", a[model.Well('E', 7)][0].Material)
	assert.Equal(t, 1.0, a[model.Well('E', 7)][0].Amount)
	assert.Equal(t, "base", a[model.Well('E', 7)][1].Material)
	assert.Equal(t, model.DefaultUnit, a[model.Well('E', 7)][1].Unit, "missing unit defaults")
	assert.Equal(t, "bottom_right", a[model.Well('E', 7)][1].Block)
	assert.Equal(t, 24.0, a[model.Well('H', 12)][0].Amount)
	assert.NotContains(t, a, model.Well('A', 1))
}

func TestBuildAssignment_ContributionCount(t *testing.T) {
	tests := []struct {
		rows, cols int
		plate      model.PlateType
		sel        Selection
	}{
		{4, 6, model.Plate96, Selection{"top_left", "top_right", "bottom_left"}},
		{1, 12, model.Plate96, Selection{"row_A", "row_C", "row_H"}},
		{2, 12, model.Plate96, Selection{"rows_A-B"}},
		{6, 8, model.Plate48, nil},
		{3, 5, model.Plate96, Selection{"A1", "D6"}},
	}
	for _, tt := range tests {
		kit := kitOf(tt.rows, tt.cols)
		s := Resolve(tt.rows, tt.cols, layout(t, tt.plate))
		a, err := BuildAssignment(kit, s, tt.sel)
		require.NoError(t, err)

		k := len(tt.sel)
		if s.Kind.AutoSelected() {
			k = 1
		}
		assert.Equal(t, len(kit.Design)*k, a.Contributions(), "%dx%d on %d", tt.rows, tt.cols, tt.plate)
	}
}

func TestBuildAssignment_DuplicateBlockStacks(t *testing.T) {
	kit := kitOf(1, 12)
	s := Resolve(1, 12, layout(t, model.Plate96))

	a, err := BuildAssignment(kit, s, Selection{"row_B", "row_B"})
	require.NoError(t, err)

	assert.Equal(t, 2*len(kit.Design), a.Contributions())
	require.Len(t, a[model.Well('B', 1)], 4)
	assert.Equal(t, a[model.Well('B', 1)][0], a[model.Well('B', 1)][2])
}

func TestBuildAssignment_Errors(t *testing.T) {
	kit := kitOf(4, 6)

	_, err := BuildAssignment(kit, Resolve(4, 6, layout(t, model.Plate96)), nil)
	assert.ErrorIs(t, err, ErrEmptySelection)

	_, err = BuildAssignment(kit, Resolve(2, 12, layout(t, model.Plate96)), Selection{"rows_A-B"})
	assert.ErrorIs(t, err, ErrKitMismatch)

	big := kitOf(8, 12)
	_, err = BuildAssignment(big, Resolve(8, 12, layout(t, model.Plate48)), nil)
	assert.ErrorIs(t, err, ErrUnsupportedPlacement)
}

func TestWellAssignmentWellsSorted(t *testing.T) {
	kit := kitOf(2, 12)
	s := Resolve(2, 12, layout(t, model.Plate96))
	a, err := BuildAssignment(kit, s, Selection{"rows_G-H", "rows_A-B"})
	require.NoError(t, err)

	wells := a.Wells()
	require.Len(t, wells, 48)
	assert.Equal(t, "A1", wells[0].String())
	assert.Equal(t, "A12", wells[11].String())
	assert.Equal(t, "H12", wells[47].String())
}
