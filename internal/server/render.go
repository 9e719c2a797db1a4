package server

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oskarlund/tilerender/internal/coalesce"
	"github.com/oskarlund/tilerender/internal/model"
	"github.com/oskarlund/tilerender/internal/observability"
)

// RenderRequest is one validated /render query: a canvas rectangle to
// composite from one source at one zoom.
type RenderRequest struct {
	Source    string
	Zoom      int
	Left, Top int
	Width     int
	Height    int
	TileSize  int
}

const (
	maxOutputEdge   = 4096
	defaultTileSize = 256
)

func ParseRenderRequest(r *http.Request) (RenderRequest, error) {
	q := r.URL.Query()

	source := strings.TrimSpace(q.Get("source"))
	if source == "" {
		return RenderRequest{}, errors.New("missing required parameter: source")
	}
	zoom, err := getIntParam(q.Get("zoom"), "zoom")
	if err != nil {
		return RenderRequest{}, err
	}
	if zoom < 0 || zoom > 24 {
		return RenderRequest{}, errors.New("zoom must be in [0,24]")
	}
	left, err := getIntParam(q.Get("left"), "left")
	if err != nil {
		return RenderRequest{}, err
	}
	top, err := getIntParam(q.Get("top"), "top")
	if err != nil {
		return RenderRequest{}, err
	}
	width, err := getIntParam(q.Get("width"), "width")
	if err != nil {
		return RenderRequest{}, err
	}
	height, err := getIntParam(q.Get("height"), "height")
	if err != nil {
		return RenderRequest{}, err
	}
	if width <= 0 || height <= 0 {
		return RenderRequest{}, errors.New("width and height must be positive")
	}
	if width > maxOutputEdge || height > maxOutputEdge {
		return RenderRequest{}, fmt.Errorf("output larger than %dpx per edge", maxOutputEdge)
	}

	tileSize := defaultTileSize
	if raw := q.Get("tile"); raw != "" {
		tileSize, err = getIntParam(raw, "tile")
		if err != nil {
			return RenderRequest{}, err
		}
		if tileSize < 64 || tileSize > 1024 {
			return RenderRequest{}, errors.New("tile must be in [64,1024]")
		}
	}

	return RenderRequest{
		Source: source, Zoom: zoom,
		Left: left, Top: top, Width: width, Height: height,
		TileSize: tileSize,
	}, nil
}

func getIntParam(raw, name string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, fmt.Errorf("missing required parameter: %s", name)
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return n, nil
}

// TileSpecs computes the tile grid covering the requested canvas rectangle.
func (rr RenderRequest) TileSpecs() []model.TileSpec {
	ts := rr.TileSize
	x0 := floorDiv(rr.Left, ts)
	y0 := floorDiv(rr.Top, ts)
	x1 := floorDiv(rr.Left+rr.Width-1, ts)
	y1 := floorDiv(rr.Top+rr.Height-1, ts)

	var specs []model.TileSpec
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			specs = append(specs, model.TileSpec{
				ID:   model.TileID{Source: rr.Source, Zoom: rr.Zoom, X: x, Y: y},
				Left: x * ts,
				Top:  y * ts,
				Size: ts,
			})
		}
	}
	return specs
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// HandleRender submits one render per request and streams the composited
// PNG once the render settles.
func HandleRender(logger *slog.Logger, sched *coalesce.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, "/render", sw.code, time.Since(start).Seconds())
		}()

		rr, err := ParseRenderRequest(r)
		if err != nil {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			return
		}

		dst := image.NewRGBA(image.Rect(0, 0, rr.Width, rr.Height))
		draw := model.DrawSpec{
			SrcLeft: rr.Left, SrcTop: rr.Top,
			Width: rr.Width, Height: rr.Height,
		}

		results := make(chan coalesce.Result, 1)
		handle, err := sched.Submit(dst, draw, rr.TileSpecs(), func(res coalesce.Result) {
			results <- res
		})
		if err != nil {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			return
		}

		var res coalesce.Result
		select {
		case res = <-results:
			sched.Release(handle)
		case <-r.Context().Done():
			// Withdraw; the consumer settles canceled via the callback.
			sched.Release(handle)
			http.Error(sw, "request canceled", http.StatusRequestTimeout)
			return
		}

		switch res.Outcome {
		case coalesce.OutcomeSuccess, coalesce.OutcomePartial:
			if res.Outcome == coalesce.OutcomePartial {
				sw.Header().Set("X-Failed-Tiles", strconv.Itoa(res.Failed))
			}
			sw.Header().Set("Content-Type", "image/png")
			if err := png.Encode(sw, dst); err != nil {
				logger.Warn("png encode", "err", err)
			}
		case coalesce.OutcomeNoUsableTiles:
			http.Error(sw, res.Err.Error(), http.StatusBadGateway)
		default:
			http.Error(sw, "render canceled", http.StatusRequestTimeout)
		}
	}
}

// HandleInvalidate cancels pending renders and invalidates every source.
func HandleInvalidate(logger *slog.Logger, sched *coalesce.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched.CancelAll()
		logger.Info("invalidation requested", "remote", r.RemoteAddr)
		w.WriteHeader(http.StatusAccepted)
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
