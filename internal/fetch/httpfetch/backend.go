// Package httpfetch loads tiles over HTTP from a z/x/y URL template and
// decodes them into the tile's image in place.
package httpfetch

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	_ "image/jpeg"
	_ "image/png"

	"github.com/oskarlund/tilerender/internal/model"
	"github.com/oskarlund/tilerender/internal/tilepool"
)

// Backend implements tilepool.Backend for one HTTP tile source.
type Backend struct {
	source string
	tmpl   string
	client *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[model.TileID]context.CancelFunc
}

var _ tilepool.Backend = (*Backend)(nil)

// New constructs a backend. tmpl carries {z}, {x} and {y} placeholders.
func New(source, tmpl string, client *http.Client, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		source:   source,
		tmpl:     tmpl,
		client:   client,
		logger:   logger,
		inflight: make(map[model.TileID]context.CancelFunc),
	}
}

func (b *Backend) LoadTile(ctx context.Context, t *tilepool.Tile) error {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.inflight[t.ID] = cancel
	b.mu.Unlock()
	defer func() {
		cancel()
		b.mu.Lock()
		delete(b.inflight, t.ID)
		b.mu.Unlock()
	}()

	u := b.url(t.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request %q: %w", u, err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", t.ID.String(), err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			b.logger.Warn("close response body", "err", cerr)
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("fetch %s: status=%d body=%q",
			t.ID.String(), resp.StatusCode, strings.TrimSpace(string(body)))
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return fmt.Errorf("decode %s: %w", t.ID.String(), err)
	}
	t.Image = toRGBA(img)
	return nil
}

// AbortTile cancels the tile's in-flight fetch, if any.
func (b *Backend) AbortTile(t *tilepool.Tile) {
	b.mu.Lock()
	cancel := b.inflight[t.ID]
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// UnloadTile releases the decoded payload. The manager clears the image
// reference itself; nothing external to free here.
func (b *Backend) UnloadTile(_ *tilepool.Tile) {}

func (b *Backend) SourceLoaded() bool { return true }

func (b *Backend) url(id model.TileID) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(id.Zoom),
		"{x}", strconv.Itoa(id.X),
		"{y}", strconv.Itoa(id.Y),
	)
	return r.Replace(b.tmpl)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}
