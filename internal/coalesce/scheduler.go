// Package coalesce deduplicates concurrent render requests by canonical
// tile-set fingerprint and settles every attached consumer exactly once.
package coalesce

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/oskarlund/tilerender/internal/compose"
	"github.com/oskarlund/tilerender/internal/fingerprint"
	"github.com/oskarlund/tilerender/internal/model"
	"github.com/oskarlund/tilerender/internal/observability"
	"github.com/oskarlund/tilerender/internal/tilepool"
)

// Callback receives the render result. Invoked outside the scheduler lock;
// it is safe to call Release from inside it.
type Callback func(Result)

type tileRef struct {
	mgr  *tilepool.Manager
	tile *tilepool.Tile
}

type consumer struct {
	draw model.DrawSpec // canonicalized
	dst  *image.RGBA
	done Callback
}

// pendingRender is one in-flight, deduplicated compositing job shared by all
// consumers whose requests canonicalize to the same fingerprint.
type pendingRender struct {
	fp    string
	id    uint64
	zoom  int
	start time.Time

	specs     []model.TileSpec // canonical, 1:1 with tiles
	tiles     []tileRef
	waits     []<-chan struct{}
	consumers []*consumer
}

// Handle identifies one consumer's stake in a pending render. It must be
// passed to Release exactly once, regardless of outcome.
type Handle struct {
	renderID uint64
	fp       string
	cons     *consumer
	tiles    []tileRef
	released bool
}

// Scheduler is the render coalescer. All registry mutation happens under one
// mutex so continuations never interleave; compositing is serialized under
// the same mutex because the working surface is a single shared resource.
type Scheduler struct {
	registry *tilepool.Registry
	comp     *compose.Compositor
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingRender
	seq     uint64
}

func New(registry *tilepool.Registry, comp *compose.Compositor, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		registry: registry,
		comp:     comp,
		logger:   logger,
		pending:  make(map[string]*pendingRender),
	}
}

// Submit canonicalizes and fingerprints the request, then either attaches a
// new consumer to a matching pending render or creates one, acquiring one
// tile per spec and awaiting all loads. The callback settles asynchronously
// with the render outcome.
func (s *Scheduler) Submit(dst *image.RGBA, draw model.DrawSpec, specs []model.TileSpec, done Callback) (*Handle, error) {
	if len(specs) == 0 {
		return nil, ErrEmptyRequest
	}
	canon, canonDraw := fingerprint.Canonicalize(specs, draw)
	fp := fingerprint.Fingerprint(canon)

	cons := &consumer{draw: canonDraw, dst: dst, done: done}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[fp]; ok {
		for _, r := range p.tiles {
			r.mgr.Retain(r.tile)
		}
		p.consumers = append(p.consumers, cons)
		observability.IncCoalescedConsumer()
		s.logger.Debug("render coalesced", "fingerprint", fp, "consumers", len(p.consumers))
		return &Handle{renderID: p.id, fp: fp, cons: cons, tiles: p.tiles}, nil
	}

	s.seq++
	p := &pendingRender{
		fp:        fp,
		id:        s.seq,
		zoom:      canon[0].ID.Zoom,
		start:     time.Now(),
		specs:     canon,
		consumers: []*consumer{cons},
	}
	for _, spec := range canon {
		mgr, ok := s.registry.Manager(spec.ID.Source)
		if !ok {
			for _, r := range p.tiles {
				r.mgr.Release(r.tile)
			}
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, spec.ID.Source)
		}
		t, loaded := mgr.Acquire(spec.ID, spec.Size)
		p.tiles = append(p.tiles, tileRef{mgr: mgr, tile: t})
		p.waits = append(p.waits, loaded)
	}
	s.pending[fp] = p
	go s.await(p)

	s.logger.Debug("render submitted", "fingerprint", fp, "render_id", p.id, "tiles", len(p.tiles))
	return &Handle{renderID: p.id, fp: fp, cons: cons, tiles: p.tiles}, nil
}

// await blocks until every tile load resolves, then settles the render if it
// is still the one registered under its fingerprint. A render canceled or
// superseded in the meantime is a no-op here.
func (s *Scheduler) await(p *pendingRender) {
	for _, w := range p.waits {
		<-w
	}

	s.mu.Lock()
	if cur, ok := s.pending[p.fp]; !ok || cur.id != p.id {
		s.mu.Unlock()
		return
	}
	delete(s.pending, p.fp)

	var placed []compose.PlacedTile
	failed := 0
	for i, r := range p.tiles {
		if !r.tile.Usable() {
			failed++
			continue
		}
		spec := p.specs[i]
		placed = append(placed, compose.PlacedTile{
			Image: r.tile.Image,
			Left:  spec.Left,
			Top:   spec.Top,
			Size:  spec.Size,
		})
	}

	targets := make([]compose.Target, len(p.consumers))
	for i, c := range p.consumers {
		targets[i] = compose.Target{
			Src:     compose.RectXYWH(c.draw.SrcLeft, c.draw.SrcTop, c.draw.Width, c.draw.Height),
			Dst:     c.dst,
			DstLeft: c.draw.DstLeft,
			DstTop:  c.draw.DstTop,
		}
	}

	var res Result
	if len(placed) == 0 {
		compose.Clear(targets)
		res = Result{
			Outcome: OutcomeNoUsableTiles,
			Failed:  failed,
			Err:     fmt.Errorf("%w: %d tile load(s) failed", ErrNoUsableTiles, failed),
		}
	} else {
		blocks := s.comp.Composite(placed, targets, p.zoom)
		observability.AddBlocksRendered(blocks)
		res = Result{Outcome: OutcomeSuccess}
		if failed > 0 {
			res.Outcome = OutcomePartial
			res.Failed = failed
		}
	}
	consumers := p.consumers
	s.mu.Unlock()

	observability.ObserveRender(res.Outcome.String(), time.Since(p.start).Seconds())
	s.logger.Debug("render settled",
		"fingerprint", p.fp, "render_id", p.id,
		"outcome", res.Outcome.String(), "failed", res.Failed,
		"consumers", len(consumers))

	// Attachment order, exactly once.
	for _, c := range consumers {
		if c.done != nil {
			c.done(res)
		}
	}
}

// Release returns the handle's tile references to their managers regardless
// of render outcome. If the render is still pending, the consumer is removed
// and settled with a cancellation; draining the last consumer tears the
// whole render down without compositing.
func (s *Scheduler) Release(h *Handle) {
	if h == nil {
		return
	}

	s.mu.Lock()
	if h.released {
		s.mu.Unlock()
		return
	}
	h.released = true

	var settle Callback
	var res Result
	if p, ok := s.pending[h.fp]; ok && p.id == h.renderID {
		for i, c := range p.consumers {
			if c == h.cons {
				p.consumers = append(p.consumers[:i], p.consumers[i+1:]...)
				settle = c.done
				break
			}
		}
		if settle != nil {
			res = Result{Outcome: OutcomeCanceled}
			if len(p.consumers) == 0 {
				// Nobody is waiting: never composite this render.
				delete(s.pending, p.fp)
				res = Result{Outcome: OutcomeFullyCanceled}
				observability.ObserveRender(res.Outcome.String(), time.Since(p.start).Seconds())
				s.logger.Debug("render fully canceled", "fingerprint", p.fp, "render_id", p.id)
			}
		}
	}
	s.mu.Unlock()

	for _, r := range h.tiles {
		r.mgr.Release(r.tile)
	}
	if settle != nil {
		settle(res)
	}
}

// CancelAll settles every pending render with a cancellation outcome, clears
// the registry and forces invalidation on every manager. Tile references
// held by outstanding handles remain until those handles are released.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	var settled []*consumer
	for fp, p := range s.pending {
		settled = append(settled, p.consumers...)
		observability.ObserveRender(OutcomeCanceled.String(), time.Since(p.start).Seconds())
		delete(s.pending, fp)
	}
	s.mu.Unlock()

	res := Result{Outcome: OutcomeCanceled}
	for _, c := range settled {
		if c.done != nil {
			c.done(res)
		}
	}
	s.registry.InvalidateAll()
}

// InvalidateAll forces every tile to re-fetch on next acquire. Call on
// style, layer visibility or resolution changes.
func (s *Scheduler) InvalidateAll() {
	s.registry.InvalidateAll()
}

// Loaded reports quiescence: all sources loaded and no render pending.
func (s *Scheduler) Loaded() bool {
	s.mu.Lock()
	n := len(s.pending)
	s.mu.Unlock()
	return n == 0 && s.registry.Loaded()
}

// Pending returns the number of in-flight renders. Intended for tests.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
