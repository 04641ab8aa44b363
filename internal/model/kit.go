package model

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Material sources recognised by the experiment.
const (
	SourceKitUpload = "kit_upload"
	SourceManual    = "manual"
)

// DefaultUnit is applied to design amounts that carry no unit.
const DefaultUnit = "μmol"

// Material is one chemical listed by a kit.
type Material struct {
	ID              string `json:"id,omitempty"`
	Name            string `json:"name"`
	Alias           string `json:"alias,omitempty"`
	CAS             string `json:"cas,omitempty"`
	SMILES          string `json:"smiles,omitempty"`
	MolecularWeight string `json:"molecular_weight,omitempty"`
	Barcode         string `json:"barcode,omitempty"`
	Role            string `json:"role,omitempty"`
	Source          string `json:"source,omitempty"`
}

// Ref returns the key design entries use to point at this material:
// the name, or the alias when the kit only lists an alias.
func (m Material) Ref() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Alias
}

// DesignEntry places an amount of one material in a kit-relative well.
type DesignEntry struct {
	Well     WellID  `json:"well"`     // Relative to the kit's top-left well
	Material string  `json:"material"` // Material.Ref() of the listed material
	Amount   float64 `json:"amount"`
	Unit     string  `json:"unit,omitempty"`
}

// KitSize is the kit geometry echoed on the wire.
type KitSize struct {
	Rows         int `json:"rows"`
	Columns      int `json:"columns"`
	TotalWells   int `json:"total_wells,omitempty"`
	ContentWells int `json:"content_wells,omitempty"`
}

// KitDescriptor is an analyzed kit. It is immutable once built.
type KitDescriptor struct {
	Rows       int           `json:"rows"`
	Cols       int           `json:"cols"`
	TotalWells int           `json:"total_wells"`
	Materials  []Material    `json:"materials"`
	Design     []DesignEntry `json:"design"`
	Filename   string        `json:"filename,omitempty"`
	Origin     WellID        `json:"origin"` // Top-left well of the kit on its source sheet
}

// Size returns the wire form of the kit geometry.
func (k KitDescriptor) Size() KitSize {
	return KitSize{
		Rows:         k.Rows,
		Columns:      k.Cols,
		TotalWells:   k.TotalWells,
		ContentWells: k.ContentWells(),
	}
}

// KitFootprint is the kit size plus where the kit sat on the sheet it was
// read from: its row letters, column numbers and every well in between.
type KitFootprint struct {
	KitSize
	RowRange string   `json:"row_range"`
	ColRange string   `json:"col_range"`
	Wells    []string `json:"wells"`
}

// Footprint returns the size and source-sheet range of the kit.
func (k KitDescriptor) Footprint() KitFootprint {
	f := KitFootprint{KitSize: k.Size(), Wells: []string{}}
	if k.Rows < 1 || k.Cols < 1 {
		return f
	}
	last := WellID{Row: k.Origin.Row + k.Rows - 1, Col: k.Origin.Col + k.Cols - 1}
	f.RowRange = RowLetter(k.Origin.Row)
	if k.Rows > 1 {
		f.RowRange += "-" + RowLetter(last.Row)
	}
	f.ColRange = strconv.Itoa(k.Origin.Col + 1)
	if k.Cols > 1 {
		f.ColRange += "-" + strconv.Itoa(last.Col+1)
	}
	for r := k.Origin.Row; r <= last.Row; r++ {
		for c := k.Origin.Col; c <= last.Col; c++ {
			f.Wells = append(f.Wells, WellID{Row: r, Col: c}.String())
		}
	}
	return f
}

// ContentWells counts distinct wells with at least one design entry.
func (k KitDescriptor) ContentWells() int {
	seen := make(map[WellID]bool, len(k.Design))
	for _, e := range k.Design {
		seen[e.Well] = true
	}
	return len(seen)
}

// Errors reported by KitDescriptor.Validate.
var (
	ErrInvalidKitSize     = errors.New("invalid kit size")
	ErrWellOutsideKit     = errors.New("design well outside kit grid")
	ErrUnknownMaterial    = errors.New("design references unknown material")
	ErrTotalWellsMismatch = errors.New("total wells does not match rows x cols")
)

// Validate checks the kit's geometry invariants: rows and cols within the
// largest plate, total wells equal to rows*cols, every design well inside
// the kit grid and every design entry naming a listed material.
func (k KitDescriptor) Validate() error {
	if k.Rows < 1 || k.Rows > MaxRows || k.Cols < 1 || k.Cols > MaxCols {
		return fmt.Errorf("%w: %dx%d", ErrInvalidKitSize, k.Rows, k.Cols)
	}
	if k.TotalWells != k.Rows*k.Cols {
		return fmt.Errorf("%w: %d != %d", ErrTotalWellsMismatch, k.TotalWells, k.Rows*k.Cols)
	}
	refs := make(map[string]bool, len(k.Materials)*2)
	for _, m := range k.Materials {
		if m.Name != "" {
			refs[m.Name] = true
		}
		if m.Alias != "" {
			refs[m.Alias] = true
		}
	}
	for _, e := range k.Design {
		if e.Well.Row < 0 || e.Well.Row >= k.Rows || e.Well.Col < 0 || e.Well.Col >= k.Cols {
			return fmt.Errorf("%w: %s in %dx%d kit", ErrWellOutsideKit, e.Well, k.Rows, k.Cols)
		}
		if !refs[e.Material] {
			return fmt.Errorf("%w: %q", ErrUnknownMaterial, e.Material)
		}
	}
	return nil
}

// KitShape names one of the kit formats the lab ships.
type KitShape string

const (
	KitShape4x6          KitShape = "4x6"
	KitShape2x12         KitShape = "2x12"
	KitShape6x8          KitShape = "6x8"
	KitShape4x12         KitShape = "4x12"
	KitShape8x12         KitShape = "8x12"
	KitShapeUnrecognized KitShape = ""
)

var knownShapes = []struct {
	rows, cols int
	shape      KitShape
	plates     []PlateType // destinations the shape is advertised for
}{
	{4, 6, KitShape4x6, []PlateType{Plate24, Plate96}},
	{2, 12, KitShape2x12, []PlateType{Plate96}},
	{6, 8, KitShape6x8, []PlateType{Plate48}},
	{4, 12, KitShape4x12, []PlateType{Plate96}},
	{8, 12, KitShape8x12, []PlateType{Plate96}},
}

// ClassifyKit maps kit dimensions to a known shape. The second result is
// false for any other geometry; placement still works for those kits.
func ClassifyKit(rows, cols int) (KitShape, bool) {
	for _, s := range knownShapes {
		if s.rows == rows && s.cols == cols {
			return s.shape, true
		}
	}
	return KitShapeUnrecognized, false
}

// CompatiblePlates lists the destinations a known shape is advertised for.
// Unrecognized shapes return nil.
func CompatiblePlates(shape KitShape) []PlateType {
	for _, s := range knownShapes {
		if s.shape == shape {
			return append([]PlateType(nil), s.plates...)
		}
	}
	return nil
}

// NewMaterial creates a Material with a generated ID.
func NewMaterial(name, alias, source string) Material {
	return Material{
		ID:     uuid.New().String()[:8],
		Name:   name,
		Alias:  alias,
		Source: source,
	}
}
