package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Largest supported plate bounds every well coordinate.
const (
	MaxRows = 8
	MaxCols = 12
)

// WellID addresses one well. Row and Col are zero-based; the canonical
// string form is the row letter followed by the one-based column ("B7").
type WellID struct {
	Row int
	Col int
}

// Well builds a WellID from a row letter and a one-based column number.
func Well(rowLetter byte, col int) WellID {
	return WellID{Row: int(rowLetter - 'A'), Col: col - 1}
}

// RowLetter returns the letter of a zero-based row index.
func RowLetter(row int) string {
	return string(rune('A' + row))
}

// ParseWell parses "A1".."H12" (case-insensitive, surrounding space ignored).
func ParseWell(s string) (WellID, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return WellID{}, fmt.Errorf("invalid well %q", s)
	}
	letter := s[0]
	if letter < 'A' || letter >= 'A'+MaxRows {
		return WellID{}, fmt.Errorf("invalid well %q: row must be A-%s", s, RowLetter(MaxRows-1))
	}
	col, err := strconv.Atoi(s[1:])
	if err != nil || col < 1 || col > MaxCols {
		return WellID{}, fmt.Errorf("invalid well %q: column must be 1-%d", s, MaxCols)
	}
	return Well(letter, col), nil
}

func (w WellID) String() string {
	return fmt.Sprintf("%s%d", RowLetter(w.Row), w.Col+1)
}

// Offset shifts w by the given anchor.
func (w WellID) Offset(anchor WellID) WellID {
	return WellID{Row: anchor.Row + w.Row, Col: anchor.Col + w.Col}
}

// Less orders wells row-major.
func (w WellID) Less(o WellID) bool {
	if w.Row != o.Row {
		return w.Row < o.Row
	}
	return w.Col < o.Col
}

func (w WellID) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *WellID) UnmarshalText(text []byte) error {
	parsed, err := ParseWell(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
