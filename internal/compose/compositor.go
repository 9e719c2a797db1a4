// Package compose partitions a bounding region into fixed-size blocks,
// places tiles into each block and copies the results out to every consumer
// destination.
package compose

import (
	"image"
	"log/slog"

	xdraw "golang.org/x/image/draw"
)

// DefaultBlockSize is the edge length of one compositing block in canvas
// pixels.
const DefaultBlockSize = 512

// DefaultOversample renders each block at twice its canvas resolution so
// shapes spanning a tile edge come out without seams.
const DefaultOversample = 2

// PlacedTile is one tile positioned for a block render. Transform maps the
// tile's local pixel space into working-surface pixels and is filled in by
// the compositor before each backend call.
type PlacedTile struct {
	Image     *image.RGBA
	Left, Top int // canvas placement
	Size      int // on-canvas edge length
	Transform Matrix
}

// Target is one consumer's copy-out: the canvas-space source rectangle and
// the destination surface with its offset.
type Target struct {
	Src             Rect
	Dst             *image.RGBA
	DstLeft, DstTop int
}

// RenderBackend paints placed tiles into the working surface. The surface is
// shared across all blocks of all renders and is fully drawn and fully
// copied out before it is reused.
type RenderBackend interface {
	RenderBlock(work *image.RGBA, tiles []PlacedTile)
}

// StyleEngine re-evaluates paint state for a zoom level. Called before each
// block render so paint properties match the tiles being drawn.
type StyleEngine interface {
	UpdateZoom(zoom int)
}

type Config struct {
	BlockSize  int
	Oversample int
}

type Compositor struct {
	blockSize  int
	oversample int
	backend    RenderBackend
	style      StyleEngine
	work       *image.RGBA
	scaler     xdraw.Scaler
	logger     *slog.Logger
}

func New(backend RenderBackend, style StyleEngine, cfg Config, logger *slog.Logger) *Compositor {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.Oversample <= 0 {
		cfg.Oversample = DefaultOversample
	}
	if logger == nil {
		logger = slog.Default()
	}
	side := cfg.BlockSize * cfg.Oversample
	return &Compositor{
		blockSize:  cfg.BlockSize,
		oversample: cfg.Oversample,
		backend:    backend,
		style:      style,
		work:       image.NewRGBA(image.Rect(0, 0, side, side)),
		scaler:     xdraw.ApproxBiLinear,
		logger:     logger,
	}
}

// Composite renders the union bounding box of all targets block by block and
// copies each block∩target sub-rectangle into the target destination.
// Returns the number of blocks handed to the backend. Not safe for
// concurrent use: the working surface is a single shared resource.
func (c *Compositor) Composite(tiles []PlacedTile, targets []Target, zoom int) int {
	if len(tiles) == 0 || len(targets) == 0 {
		return 0
	}

	var bbox Rect
	for _, t := range targets {
		bbox = bbox.Union(t.Src)
	}
	if bbox.Empty() {
		return 0
	}

	os := float64(c.oversample)
	blocks := 0

	// Row-major over the bounding box.
	for by := bbox.Top; by < bbox.Bottom; by += c.blockSize {
		for bx := bbox.Left; bx < bbox.Right; bx += c.blockSize {
			block := RectXYWH(bx, by, c.blockSize, c.blockSize)

			overlapping := targets[:0:0]
			for _, t := range targets {
				if t.Src.Overlaps(block) {
					overlapping = append(overlapping, t)
				}
			}
			if len(overlapping) == 0 {
				continue
			}

			c.style.UpdateZoom(zoom)
			c.clearWork()

			placed := make([]PlacedTile, len(tiles))
			for i, t := range tiles {
				placed[i] = t
				placed[i].Transform = c.placement(t, bx, by, os)
			}
			c.backend.RenderBlock(c.work, placed)
			blocks++

			for _, t := range overlapping {
				c.copyOut(t, block)
			}
		}
	}
	return blocks
}

// placement maps a tile's local pixel space into working-surface pixels:
// translate by the tile offset minus the block origin, scaled by the
// on-canvas size over the tile's own resolution, all oversampled.
func (c *Compositor) placement(t PlacedTile, bx, by int, os float64) Matrix {
	px := t.Size
	if t.Image != nil && t.Image.Bounds().Dx() > 0 {
		px = t.Image.Bounds().Dx()
	}
	s := float64(t.Size) / float64(px)
	m := Translate(float64(t.Left-bx), float64(t.Top-by)).Multiply(Scale(s, s))
	return Scale(os, os).Multiply(m)
}

// copyOut copies the target∩block sub-rectangle from the oversampled
// working surface into the target destination at the corresponding offset.
func (c *Compositor) copyOut(t Target, block Rect) {
	inter := t.Src.Intersect(block)
	if inter.Empty() {
		return
	}
	srcRect := image.Rect(
		(inter.Left-block.Left)*c.oversample,
		(inter.Top-block.Top)*c.oversample,
		(inter.Right-block.Left)*c.oversample,
		(inter.Bottom-block.Top)*c.oversample,
	)
	dstRect := image.Rect(
		t.DstLeft+(inter.Left-t.Src.Left),
		t.DstTop+(inter.Top-t.Src.Top),
		t.DstLeft+(inter.Right-t.Src.Left),
		t.DstTop+(inter.Bottom-t.Src.Top),
	)
	c.scaler.Scale(t.Dst, dstRect, c.work, srcRect, xdraw.Src, nil)
}

func (c *Compositor) clearWork() {
	for i := range c.work.Pix {
		c.work.Pix[i] = 0
	}
}

// Clear blanks every target's destination rectangle. Used when a render
// settles with no usable tiles.
func Clear(targets []Target) {
	for _, t := range targets {
		dst := image.Rect(t.DstLeft, t.DstTop,
			t.DstLeft+t.Src.Width(), t.DstTop+t.Src.Height())
		xdraw.Draw(t.Dst, dst, image.Transparent, image.Point{}, xdraw.Src)
	}
}
