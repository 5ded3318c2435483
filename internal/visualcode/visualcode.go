// Package visualcode renders a payment reference as a decorative square code.
//
// The grid only looks like a QR code: every cell is picked from the value's
// UTF-16 code units at an offset derived from a hash of the whole value. It
// carries no error correction and is not machine readable. The one hard
// property is determinism.
package visualcode

import (
	"strings"
	"unicode/utf16"
)

// Size is the width and height of every grid.
const Size = 21

// Grid is a rendered code; true cells are filled.
type Grid [Size][Size]bool

// Hash is the classic polynomial string hash (h = h*31 + c) over UTF-16 code
// units, wrapped to a signed 32-bit integer.
func Hash(value string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(value)) {
		h = h*31 + int32(c)
	}
	return h
}

// Render returns the grid for value. The empty string renders blank.
func Render(value string) Grid {
	var g Grid

	units := utf16.Encode([]rune(value))
	if len(units) == 0 {
		return g
	}

	seed := int64(Hash(value))
	if seed < 0 {
		seed = -seed
	}
	n := int64(len(units))
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			index := (int64(row*Size+col) + seed) % n
			g[row][col] = (int(units[index])+row+col)%3 == 0
		}
	}
	return g
}

// Rows returns the grid as strings of '1' and '0', one per row.
func (g Grid) Rows() []string {
	rows := make([]string, Size)
	for r := range g {
		var b strings.Builder
		b.Grow(Size)
		for _, filled := range g[r] {
			if filled {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
		rows[r] = b.String()
	}
	return rows
}

// String draws the grid with block characters for terminals.
func (g Grid) String() string {
	var b strings.Builder
	for r := range g {
		for _, filled := range g[r] {
			if filled {
				b.WriteString("██")
			} else {
				b.WriteString("  ")
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
