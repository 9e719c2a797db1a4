// Package software is a CPU render backend: it paints placed tiles into the
// working surface with affine transforms. It stands in for a GPU pipeline.
package software

import (
	"image"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/oskarlund/tilerender/internal/compose"
)

// Renderer implements compose.RenderBackend.
type Renderer struct {
	interp xdraw.Transformer
}

var _ compose.RenderBackend = (*Renderer)(nil)

func New() *Renderer {
	return &Renderer{interp: xdraw.ApproxBiLinear}
}

// RenderBlock draws every placed tile through its placement transform. Tiles
// are drawn in slice order; later tiles paint over earlier ones.
func (r *Renderer) RenderBlock(work *image.RGBA, tiles []compose.PlacedTile) {
	for _, t := range tiles {
		if t.Image == nil {
			continue
		}
		m := t.Transform
		aff := f64.Aff3{m.A, m.B, m.C, m.D, m.E, m.F}
		r.interp.Transform(work, aff, t.Image, t.Image.Bounds(), xdraw.Over, nil)
	}
}

// Style is a zoom-parameterized paint state holder implementing
// compose.StyleEngine. The demo pipeline has no paint properties to
// re-evaluate, so it only records the zoom it was last updated for.
type Style struct {
	mu   sync.Mutex
	zoom int
}

var _ compose.StyleEngine = (*Style)(nil)

func NewStyle() *Style { return &Style{} }

func (s *Style) UpdateZoom(zoom int) {
	s.mu.Lock()
	s.zoom = zoom
	s.mu.Unlock()
}

func (s *Style) Zoom() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}
