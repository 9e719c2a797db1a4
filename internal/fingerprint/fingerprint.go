// Package fingerprint canonicalizes render requests and derives the stable
// key under which concurrent identical requests coalesce.
package fingerprint

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/oskarlund/tilerender/internal/model"
)

// Canonicalize shifts tile placements and the draw source origin by the
// minimum left/top among all placements. Destination coordinates are left
// untouched. Two requests that are geometrically identical up to a uniform
// translation normalize to the same tile set and hence the same fingerprint.
func Canonicalize(specs []model.TileSpec, draw model.DrawSpec) ([]model.TileSpec, model.DrawSpec) {
	if len(specs) == 0 {
		return nil, draw
	}
	minLeft, minTop := specs[0].Left, specs[0].Top
	for _, s := range specs[1:] {
		if s.Left < minLeft {
			minLeft = s.Left
		}
		if s.Top < minTop {
			minTop = s.Top
		}
	}
	out := make([]model.TileSpec, len(specs))
	for i, s := range specs {
		s.Left -= minLeft
		s.Top -= minTop
		out[i] = s
	}
	draw.SrcLeft -= minLeft
	draw.SrcTop -= minTop
	return out, draw
}

// Fingerprint produces a stable, order-independent key from the fully
// qualified description of each tile spec.
func Fingerprint(specs []model.TileSpec) string {
	sorted := make([]model.TileSpec, len(specs))
	copy(sorted, specs)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ID.Source != b.ID.Source {
			return a.ID.Source < b.ID.Source
		}
		if a.ID.Zoom != b.ID.Zoom {
			return a.ID.Zoom < b.ID.Zoom
		}
		if a.ID.X != b.ID.X {
			return a.ID.X < b.ID.X
		}
		if a.ID.Y != b.ID.Y {
			return a.ID.Y < b.ID.Y
		}
		if a.Left != b.Left {
			return a.Left < b.Left
		}
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		return a.Size < b.Size
	})

	d := xxhash.New()
	for _, s := range sorted {
		_, _ = fmt.Fprintf(d, "%s;%d;%d;%d;%d;%d;%d|",
			s.ID.Source, s.ID.Zoom, s.ID.X, s.ID.Y, s.Left, s.Top, s.Size)
	}
	return fmt.Sprintf("n%d:f=%016x", len(specs), d.Sum64())
}
