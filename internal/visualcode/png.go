package visualcode

import (
	"fmt"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
)

// quietZone is the blank margin, in cells, around the code.
const quietZone = 2

// DefaultScale is the pixel size of one cell when none is requested.
const DefaultScale = 8

// PNG writes the grid as a black-on-white PNG where each cell is scale pixels wide.
func (g Grid) PNG(w io.Writer, scale int) error {
	if scale <= 0 {
		scale = DefaultScale
	}

	side := Size + 2*quietZone
	img := imaging.New(side, side, color.White)
	for r := range g {
		for c, filled := range g[r] {
			if filled {
				img.Set(c+quietZone, r+quietZone, color.Black)
			}
		}
	}

	scaled := imaging.Resize(img, side*scale, side*scale, imaging.NearestNeighbor)
	if err := imaging.Encode(w, scaled, imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode code image: %w", err)
	}
	return nil
}
