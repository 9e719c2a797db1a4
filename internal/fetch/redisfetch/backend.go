// Package redisfetch layers a redis byte cache of encoded tiles in front of
// another fetch backend, so restarts and sibling instances reuse fetches.
package redisfetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oskarlund/tilerender/internal/model"
	"github.com/oskarlund/tilerender/internal/tilepool"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

// Backend implements tilepool.Backend by checking redis for an encoded tile
// before delegating to the inner backend. Cache errors degrade to a plain
// fetch; they never fail a load on their own.
type Backend struct {
	inner  tilepool.Backend
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ tilepool.Backend = (*Backend)(nil)

func New(ctx context.Context, addr string, inner tilepool.Backend, ttl time.Duration, logger *slog.Logger, opts ...Option) (*Backend, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     64,
		MinIdleConns: 4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Backend{inner: inner, rdb: rdb, ttl: ttl, logger: logger}, nil
}

func (b *Backend) LoadTile(ctx context.Context, t *tilepool.Tile) error {
	key := cacheKey(t.ID)

	if raw, err := b.rdb.Get(ctx, key).Bytes(); err == nil {
		img, derr := png.Decode(bytes.NewReader(raw))
		if derr == nil {
			t.Image = toRGBA(img)
			return nil
		}
		b.logger.Warn("cached tile undecodable, refetching", "key", key, "err", derr)
	} else if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
		b.logger.Warn("redis get failed, falling through to fetch", "key", key, "err", err)
	}

	if err := b.inner.LoadTile(ctx, t); err != nil {
		return err
	}

	if t.Image != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, t.Image); err == nil {
			if err := b.rdb.Set(ctx, key, buf.Bytes(), b.ttl).Err(); err != nil {
				b.logger.Warn("redis set failed", "key", key, "err", err)
			}
		}
	}
	return nil
}

func (b *Backend) AbortTile(t *tilepool.Tile)  { b.inner.AbortTile(t) }
func (b *Backend) UnloadTile(t *tilepool.Tile) { b.inner.UnloadTile(t) }
func (b *Backend) SourceLoaded() bool          { return b.inner.SourceLoaded() }

func (b *Backend) Close() error {
	if err := b.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

func cacheKey(id model.TileID) string {
	return fmt.Sprintf("tile:%s:%d:%d:%d", id.Source, id.Zoom, id.X, id.Y)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}
