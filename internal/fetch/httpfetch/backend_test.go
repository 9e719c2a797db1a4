package httpfetch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oskarlund/tilerender/internal/model"
	"github.com/oskarlund/tilerender/internal/tilepool"
)

func pngBytes(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestLoadTileDecodesPNG(t *testing.T) {
	want := color.RGBA{R: 10, G: 200, B: 30, A: 255}
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes(t, 64, 64, want))
	}))
	defer srv.Close()

	b := New("osm", srv.URL+"/tiles/{z}/{x}/{y}.png", srv.Client(), nil)
	tile := &tilepool.Tile{ID: model.TileID{Source: "osm", Zoom: 3, X: 5, Y: 2}, Size: 64}

	if err := b.LoadTile(context.Background(), tile); err != nil {
		t.Fatalf("LoadTile: %v", err)
	}
	if gotPath != "/tiles/3/5/2.png" {
		t.Fatalf("url template expanded to %q", gotPath)
	}
	if tile.Image == nil {
		t.Fatalf("tile image not set")
	}
	if got := tile.Image.RGBAAt(32, 32); got != want {
		t.Fatalf("decoded pixel = %+v, want %+v", got, want)
	}
}

func TestLoadTileUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "tile not found", http.StatusNotFound)
	}))
	defer srv.Close()

	b := New("osm", srv.URL+"/{z}/{x}/{y}", srv.Client(), nil)
	tile := &tilepool.Tile{ID: model.TileID{Source: "osm", Zoom: 1, X: 0, Y: 0}, Size: 64}

	err := b.LoadTile(context.Background(), tile)
	if err == nil {
		t.Fatalf("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "status=404") {
		t.Fatalf("error must carry the upstream status, got %v", err)
	}
	if tile.Image != nil {
		t.Fatalf("failed load must not set the image")
	}
}

func TestLoadTileUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not an image"))
	}))
	defer srv.Close()

	b := New("osm", srv.URL+"/{z}/{x}/{y}", srv.Client(), nil)
	tile := &tilepool.Tile{ID: model.TileID{Source: "osm", Zoom: 1, X: 0, Y: 0}, Size: 64}

	if err := b.LoadTile(context.Background(), tile); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestAbortTileCancelsInflightFetch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	b := New("osm", srv.URL+"/{z}/{x}/{y}", srv.Client(), nil)
	tile := &tilepool.Tile{ID: model.TileID{Source: "osm", Zoom: 1, X: 1, Y: 1}, Size: 64}

	errCh := make(chan error, 1)
	go func() { errCh <- b.LoadTile(context.Background(), tile) }()

	<-started
	b.AbortTile(tile)

	if err := <-errCh; err == nil {
		t.Fatalf("aborted fetch must return an error")
	}
}
