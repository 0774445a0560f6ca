package grid

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// BBox is an inclusive rectangle in grid coordinates (OSGB easting/northing metres).
type BBox struct {
	MinX int `json:"min_x" yaml:"min_x" mapstructure:"min_x"`
	MinY int `json:"min_y" yaml:"min_y" mapstructure:"min_y"`
	MaxX int `json:"max_x" yaml:"max_x" mapstructure:"max_x"`
	MaxY int `json:"max_y" yaml:"max_y" mapstructure:"max_y"`
}

// Contains reports whether (x, y) lies inside the box, edges included.
func (b BBox) Contains(x, y int) bool {
	return b.MinX <= x && x <= b.MaxX && b.MinY <= y && y <= b.MaxY
}

// Validate checks that the box is not inverted.
func (b BBox) Validate() error {
	if b.MinX > b.MaxX {
		return eris.Errorf("grid: bbox min_x %d > max_x %d", b.MinX, b.MaxX)
	}
	if b.MinY > b.MaxY {
		return eris.Errorf("grid: bbox min_y %d > max_y %d", b.MinY, b.MaxY)
	}
	return nil
}

// Bounds converts the box to a go-geom XY bounds.
func (b BBox) Bounds() *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(float64(b.MinX), float64(b.MinY), float64(b.MaxX), float64(b.MaxY))
}
