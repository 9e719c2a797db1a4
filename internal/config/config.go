package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Driver  string
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr     string
	LogLevel string

	// Tile pool
	CacheCapacity int
	LoadTimeout   time.Duration

	// Compositor
	BlockSize  int
	Oversample int

	// Fetch backends: source name → z/x/y URL template with {z}/{x}/{y}
	// placeholders, e.g. "osm=https://tiles.example.com/{z}/{x}/{y}.png".
	Sources      map[string]string
	FetchTimeout time.Duration

	// Optional redis byte cache in front of HTTP fetches
	RedisAddr string
	RedisTTL  time.Duration

	Invalidation InvalidationCfg
}

func FromEnv() Config {
	return Config{
		Addr:     getenv("ADDR", ":8090"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		CacheCapacity: getint("TILE_CACHE_CAPACITY", 20),
		LoadTimeout:   getduration("TILE_LOAD_TIMEOUT", 60*time.Second),

		BlockSize:  getint("BLOCK_SIZE", 512),
		Oversample: getint("OVERSAMPLE", 2),

		Sources:      parseSourceMap(getenv("TILE_SOURCES", "")),
		FetchTimeout: getduration("FETCH_TIMEOUT", 30*time.Second),

		RedisAddr: getenv("REDIS_ADDR", ""),
		RedisTTL:  getduration("REDIS_TTL", 10*time.Minute),

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Driver:  getenv("INVALIDATION_DRIVER", "none"),
			Topic:   getenv("KAFKA_TOPIC", "style-invalidation"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "render-invalidator"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "osm=https://a/{z}/{x}/{y}.png,hillshade=https://b/{z}/{x}/{y}.png"
func parseSourceMap(s string) map[string]string {
	out := map[string]string{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
