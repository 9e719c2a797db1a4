package tilepool

import (
	"context"
	"image"

	"github.com/oskarlund/tilerender/internal/model"
)

// DataState tracks what the tile currently holds.
type DataState int

const (
	StateUnloaded DataState = iota
	StateLoading
	StateLoaded
	// StateDud marks a tile whose fetch failed. It counts as "has data" so it
	// is retained in the cache and not re-fetched until invalidated, but it
	// never satisfies a renderable query.
	StateDud
)

// Tile is one coordinate-addressed unit of source data with refcounted usage.
// All mutable fields are guarded by the owning Manager's mutex; the Image
// payload is written by the fetch backend while the load is in flight and
// must not be read before the load resolves.
type Tile struct {
	ID   model.TileID
	Size int

	// Image is the decoded payload, mutated in place by the fetch backend.
	Image *image.RGBA

	uses  int
	state DataState
	load  *loadHandle
}

// loadHandle is the shared async handle for a tile's fetch. Concurrent
// acquirers wait on the same done channel so a tile is fetched at most once
// per issue.
type loadHandle struct {
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

func (t *Tile) hasData() bool {
	return t.state == StateLoaded || t.state == StateDud
}

// State returns the tile's data state. Only meaningful once the load handle
// has resolved or under the owning manager's lock.
func (t *Tile) State() DataState { return t.state }

// Usable reports whether the tile can contribute to a render.
func (t *Tile) Usable() bool { return t.state == StateLoaded }
