// Package model defines core domain types shared across the renderer.
package model

import "fmt"

// TileID addresses one unit of source data. Immutable, usable as a map key.
type TileID struct {
	Source string
	Zoom   int
	X, Y   int
}

// String representation matching the z/x/y URL convention
func (id TileID) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", id.Source, id.Zoom, id.X, id.Y)
}

// DrawSpec describes a copy from the logical canvas to a caller output
// surface. Source coordinates are on the canvas; destination coordinates are
// on the caller's surface.
type DrawSpec struct {
	SrcLeft, SrcTop int
	Width, Height   int
	DstLeft, DstTop int
}

// TileSpec places one tile on the logical canvas. Size is the intended
// on-canvas edge length in pixels, which may differ from the tile's own pixel
// dimensions.
type TileSpec struct {
	ID        TileID
	Left, Top int
	Size      int
}
