package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownPlateType is returned when a plate type is not in the catalog.
var ErrUnknownPlateType = errors.New("unknown plate type")

// PlateType identifies a destination plate by its well count.
type PlateType int

const (
	Plate24 PlateType = 24
	Plate48 PlateType = 48
	Plate96 PlateType = 96
)

func (p PlateType) String() string {
	return strconv.Itoa(int(p))
}

// ParsePlateType accepts "24", "48", "96" and the "96-well" style.
func ParsePlateType(s string) (PlateType, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "-well")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPlateType, s)
	}
	pt := PlateType(n)
	if _, ok := plateCatalog[pt]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownPlateType, n)
	}
	return pt, nil
}

// MarshalJSON encodes the plate type as a string ("96"), the form the
// experiment API has always used.
func (p PlateType) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts both "96" and 96.
func (p *PlateType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: %s", ErrUnknownPlateType, string(data))
		}
		s = strconv.Itoa(n)
	}
	pt, err := ParsePlateType(s)
	if err != nil {
		return err
	}
	*p = pt
	return nil
}

// PlateLayout describes the grid of a destination plate.
type PlateLayout struct {
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
	Name string `json:"name"`
}

// Wells returns the number of wells on the plate.
func (l PlateLayout) Wells() int {
	return l.Rows * l.Cols
}

// Contains reports whether w lies on the plate.
func (l PlateLayout) Contains(w WellID) bool {
	return w.Row >= 0 && w.Row < l.Rows && w.Col >= 0 && w.Col < l.Cols
}

// Built-in plate catalog. rows*cols always equals the plate type.
var plateCatalog = map[PlateType]PlateLayout{
	Plate24: {Rows: 4, Cols: 6, Name: "24-well plate"},
	Plate48: {Rows: 6, Cols: 8, Name: "48-well plate"},
	Plate96: {Rows: 8, Cols: 12, Name: "96-well plate"},
}

// LookupPlate returns the layout for a plate type.
func LookupPlate(pt PlateType) (PlateLayout, error) {
	layout, ok := plateCatalog[pt]
	if !ok {
		return PlateLayout{}, fmt.Errorf("%w: %d", ErrUnknownPlateType, int(pt))
	}
	return layout, nil
}

// PlateTypes returns the supported plate types in ascending order.
func PlateTypes() []PlateType {
	types := make([]PlateType, 0, len(plateCatalog))
	for pt := range plateCatalog {
		types = append(types, pt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
