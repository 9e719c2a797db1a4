// Package tilepool owns tile lifecycle per source: refcounted in-use tiles,
// a bounded LRU of released-but-retained tiles, and async load orchestration.
package tilepool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/oskarlund/tilerender/internal/model"
	"github.com/oskarlund/tilerender/internal/observability"
)

// Error kinds recorded on a tile's load handle. They never propagate past
// the manager boundary; callers see them only as aggregate failure counts.
var (
	ErrLoadTimeout = errors.New("tilepool: tile load timed out")
	ErrLoadFailed  = errors.New("tilepool: tile load failed")
	errLoadStale   = errors.New("tilepool: tile load superseded")
)

// DefaultCapacity bounds the released-tile cache.
const DefaultCapacity = 20

// DefaultLoadTimeout bounds one tile fetch.
const DefaultLoadTimeout = 60 * time.Second

// Backend is the fetch/decode layer for one source. LoadTile must respect
// ctx cancellation and mutate the tile's Image in place on success.
type Backend interface {
	LoadTile(ctx context.Context, t *Tile) error
	AbortTile(t *Tile)
	UnloadTile(t *Tile)
	SourceLoaded() bool
}

type Config struct {
	Capacity    int
	LoadTimeout time.Duration
}

// Manager owns all tiles for one source. A tile lives in exactly one of the
// in-use set (uses > 0) or the LRU cache (uses == 0, has data); a tile with
// no data and no consumer is discarded outright.
type Manager struct {
	source  string
	backend Backend
	logger  *slog.Logger
	timeout time.Duration

	mu    sync.Mutex
	inUse map[model.TileID]*Tile
	cache *lru.Cache[model.TileID, *Tile]
}

func New(source string, backend Backend, cfg Config, logger *slog.Logger) *Manager {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultLoadTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		source:  source,
		backend: backend,
		logger:  logger,
		timeout: cfg.LoadTimeout,
		inUse:   make(map[model.TileID]*Tile),
	}
	// Remove also fires this callback; promotion bumps uses first so the
	// callback leaves promoted tiles alone.
	c, _ := lru.NewWithEvict(cfg.Capacity, func(id model.TileID, t *Tile) {
		if t.uses > 0 {
			return
		}
		observability.IncTileCacheEvent(m.source, "evict")
		m.unload(t)
	})
	m.cache = c
	return m
}

// Acquire returns the tile for id with its usage count incremented, issuing
// a load if the tile has no active or previously-resolved load handle. The
// returned channel closes when that load resolves; it is already closed for
// tiles whose load resolved earlier.
func (m *Manager) Acquire(id model.TileID, size int) (*Tile, <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.inUse[id]
	switch {
	case ok:
		t.uses++
	default:
		if cached, hit := m.cache.Peek(id); hit {
			t = cached
			t.uses++ // before Remove, so the evict callback skips unload
			m.cache.Remove(id)
			observability.IncTileCacheEvent(m.source, "hit")
		} else {
			t = &Tile{ID: id, Size: size, uses: 1}
			observability.IncTileCacheEvent(m.source, "miss")
		}
		m.inUse[id] = t
	}

	if t.load == nil {
		m.issueLoad(t)
	}
	return t, t.load.done
}

// Retain increments usage on a tile that is already in use. Used when a new
// consumer attaches to a pending render that has acquired its tiles.
func (m *Manager) Retain(t *Tile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.uses <= 0 {
		panic("tilepool: retain of unreferenced tile")
	}
	t.uses++
}

// Release decrements usage. At zero the tile either moves into the LRU cache
// (it has data, loaded or dud) or is aborted and discarded (it has none).
// Releasing a tile whose usage is already zero is a programming error.
func (m *Manager) Release(t *Tile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.uses <= 0 {
		panic("tilepool: release of tile with zero usage")
	}
	t.uses--
	if t.uses > 0 {
		return
	}
	delete(m.inUse, t.ID)
	if t.hasData() {
		m.cache.Add(t.ID, t)
		return
	}
	// No data and nobody waiting: the tile has no future value.
	if t.load != nil {
		t.load.cancel()
		t.load = nil
	}
	m.backend.AbortTile(t)
	m.unload(t)
}

// InvalidateAll clears the load handle on every non-dud tile so the next
// acquire re-issues a fetch. Must be called when style, visible layers or
// resolution change, since those change what "loaded" means for a tile's
// rendered output.
func (m *Manager) InvalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.inUse {
		m.invalidate(t)
	}
	for _, id := range m.cache.Keys() {
		if t, ok := m.cache.Peek(id); ok {
			m.invalidate(t)
		}
	}
}

// Loaded reports quiescence: the source itself is loaded and no in-use tile
// has a load still in flight.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.backend.SourceLoaded() {
		return false
	}
	for _, t := range m.inUse {
		if t.load == nil {
			continue
		}
		select {
		case <-t.load.done:
		default:
			return false
		}
	}
	return true
}

func (m *Manager) invalidate(t *Tile) {
	if t.state == StateDud {
		return
	}
	if t.load != nil {
		t.load.cancel()
		t.load = nil
	}
}

// issueLoad starts the tile's fetch. Called with the manager lock held; the
// continuation re-acquires it and checks the handle is still current before
// mutating tile state.
func (m *Manager) issueLoad(t *Tile) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	h := &loadHandle{done: make(chan struct{}), cancel: cancel}
	t.load = h
	t.state = StateLoading

	go func() {
		defer cancel()
		start := time.Now()
		err := m.backend.LoadTile(ctx, t)

		m.mu.Lock()
		defer m.mu.Unlock()

		if t.load != h {
			// Invalidated or discarded while in flight.
			h.err = errLoadStale
			close(h.done)
			return
		}
		switch {
		case err == nil:
			t.state = StateLoaded
			observability.ObserveTileLoad(m.source, "ok", time.Since(start).Seconds())
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			// Abort the in-flight fetch and leave the tile retryable: the
			// handle is cleared so the next acquire re-issues.
			m.backend.AbortTile(t)
			t.state = StateUnloaded
			t.load = nil
			h.err = ErrLoadTimeout
			observability.ObserveTileLoad(m.source, "timeout", time.Since(start).Seconds())
			m.logger.Warn("tile load timeout", "tile", t.ID.String(), "timeout", m.timeout.String())
		default:
			t.state = StateDud
			h.err = ErrLoadFailed
			observability.ObserveTileLoad(m.source, "error", time.Since(start).Seconds())
			m.logger.Warn("tile load failed", "tile", t.ID.String(), "err", err)
		}
		close(h.done)
	}()
}

func (m *Manager) unload(t *Tile) {
	m.backend.UnloadTile(t)
	t.Image = nil
	t.state = StateUnloaded
}

// Uses returns the current usage count. Intended for tests and invariants.
func (m *Manager) Uses(t *Tile) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return t.uses
}

// Cached reports whether id currently sits in the released-tile cache.
func (m *Manager) Cached(id model.TileID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Contains(id)
}

// InUse reports whether id currently sits in the in-use set.
func (m *Manager) InUse(id model.TileID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inUse[id]
	return ok
}
