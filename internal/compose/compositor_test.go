package compose

import (
	"image"
	"image/color"
	"testing"
)

// paintBackend fills the working surface with a solid color and records each
// block's placed tiles.
type paintBackend struct {
	fill  color.RGBA
	calls [][]PlacedTile
}

func (b *paintBackend) RenderBlock(work *image.RGBA, tiles []PlacedTile) {
	cp := make([]PlacedTile, len(tiles))
	copy(cp, tiles)
	b.calls = append(b.calls, cp)
	for y := work.Bounds().Min.Y; y < work.Bounds().Max.Y; y++ {
		for x := work.Bounds().Min.X; x < work.Bounds().Max.X; x++ {
			work.SetRGBA(x, y, b.fill)
		}
	}
}

type recordStyle struct {
	zooms []int
}

func (s *recordStyle) UpdateZoom(zoom int) { s.zooms = append(s.zooms, zoom) }

func testTile(left, top, size, px int) PlacedTile {
	return PlacedTile{
		Image: image.NewRGBA(image.Rect(0, 0, px, px)),
		Left:  left,
		Top:   top,
		Size:  size,
	}
}

func TestCompositeSkipsBlocksWithoutConsumers(t *testing.T) {
	backend := &paintBackend{fill: color.RGBA{R: 255, A: 255}}
	style := &recordStyle{}
	c := New(backend, style, Config{BlockSize: 32, Oversample: 2}, nil)

	// Two far-apart consumers: the union bbox is a 3x3 block grid but only
	// the two corner blocks have an overlapping consumer.
	targets := []Target{
		{Src: RectXYWH(0, 0, 32, 32), Dst: image.NewRGBA(image.Rect(0, 0, 32, 32))},
		{Src: RectXYWH(64, 64, 32, 32), Dst: image.NewRGBA(image.Rect(0, 0, 32, 32))},
	}
	tiles := []PlacedTile{testTile(0, 0, 96, 96)}

	blocks := c.Composite(tiles, targets, 7)
	if blocks != 2 {
		t.Fatalf("rendered %d blocks, want 2", blocks)
	}
	if len(backend.calls) != 2 {
		t.Fatalf("backend called %d times, want 2", len(backend.calls))
	}
}

func TestCompositeUpdatesStylePerBlock(t *testing.T) {
	backend := &paintBackend{fill: color.RGBA{G: 255, A: 255}}
	style := &recordStyle{}
	c := New(backend, style, Config{BlockSize: 32, Oversample: 2}, nil)

	targets := []Target{
		{Src: RectXYWH(0, 0, 96, 32), Dst: image.NewRGBA(image.Rect(0, 0, 96, 32))},
	}
	blocks := c.Composite([]PlacedTile{testTile(0, 0, 96, 96)}, targets, 12)

	if blocks != 3 {
		t.Fatalf("rendered %d blocks, want 3", blocks)
	}
	if len(style.zooms) != 3 {
		t.Fatalf("style updated %d times, want once per block", len(style.zooms))
	}
	for _, z := range style.zooms {
		if z != 12 {
			t.Fatalf("style updated with zoom %d, want 12", z)
		}
	}
}

func TestCompositeCopiesPixelsToEveryTarget(t *testing.T) {
	backend := &paintBackend{fill: color.RGBA{R: 200, G: 10, B: 30, A: 255}}
	c := New(backend, &recordStyle{}, Config{BlockSize: 64, Oversample: 2}, nil)

	dst1 := image.NewRGBA(image.Rect(0, 0, 64, 64))
	dst2 := image.NewRGBA(image.Rect(0, 0, 80, 80))
	targets := []Target{
		{Src: RectXYWH(0, 0, 64, 64), Dst: dst1},
		{Src: RectXYWH(16, 16, 32, 32), Dst: dst2, DstLeft: 8, DstTop: 8},
	}

	if got := c.Composite([]PlacedTile{testTile(0, 0, 64, 64)}, targets, 3); got != 1 {
		t.Fatalf("rendered %d blocks, want 1", got)
	}

	if got := dst1.RGBAAt(32, 32); got.R != 200 || got.A != 255 {
		t.Fatalf("dst1 center pixel = %+v, want backend fill", got)
	}
	if got := dst2.RGBAAt(10, 10); got.R != 200 || got.A != 255 {
		t.Fatalf("dst2 offset pixel = %+v, want backend fill", got)
	}
	if got := dst2.RGBAAt(0, 0); got.A != 0 {
		t.Fatalf("dst2 outside the copy-out rect must stay blank, got %+v", got)
	}
}

func TestCompositeNothingToDo(t *testing.T) {
	c := New(&paintBackend{}, &recordStyle{}, Config{}, nil)
	if got := c.Composite(nil, []Target{{Src: RectXYWH(0, 0, 10, 10)}}, 0); got != 0 {
		t.Fatalf("no tiles must render zero blocks, got %d", got)
	}
	if got := c.Composite([]PlacedTile{testTile(0, 0, 10, 10)}, nil, 0); got != 0 {
		t.Fatalf("no targets must render zero blocks, got %d", got)
	}
}

func TestPlacementTransform(t *testing.T) {
	c := New(&paintBackend{}, &recordStyle{}, Config{BlockSize: 64, Oversample: 2}, nil)

	// Tile at canvas (10, 20), native resolution: local corners map to the
	// oversampled, block-relative positions.
	m := c.placement(testTile(10, 20, 256, 256), 0, 0, 2)
	if x, y := m.Apply(0, 0); x != 20 || y != 40 {
		t.Fatalf("origin mapped to (%v,%v), want (20,40)", x, y)
	}
	if x, y := m.Apply(256, 256); x != 532 || y != 552 {
		t.Fatalf("far corner mapped to (%v,%v), want (532,552)", x, y)
	}

	// Overzoomed tile: 128px of pixels covering 256 canvas units scales 2x
	// before the oversample.
	m = c.placement(testTile(0, 0, 256, 128), 0, 0, 2)
	if x, y := m.Apply(128, 128); x != 512 || y != 512 {
		t.Fatalf("overzoom corner mapped to (%v,%v), want (512,512)", x, y)
	}

	// Block origin subtracts before scaling.
	m = c.placement(testTile(100, 100, 64, 64), 64, 64, 2)
	if x, y := m.Apply(0, 0); x != 72 || y != 72 {
		t.Fatalf("block-relative origin mapped to (%v,%v), want (72,72)", x, y)
	}
}

func TestClearBlanksTargetRects(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			dst.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	Clear([]Target{{Src: RectXYWH(0, 0, 16, 16), Dst: dst, DstLeft: 4, DstTop: 4}})

	if got := dst.RGBAAt(10, 10); got.A != 0 {
		t.Fatalf("cleared region must be transparent, got %+v", got)
	}
	if got := dst.RGBAAt(25, 25); got.R != 255 {
		t.Fatalf("pixels outside the cleared rect must be untouched, got %+v", got)
	}
}
