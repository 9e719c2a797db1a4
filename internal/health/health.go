// Package health exposes liveness and readiness handlers.
package health

import (
	"encoding/json"
	"net/http"
)

// QuiescenceReporter reports whether all sources are loaded and no render
// is pending.
type QuiescenceReporter interface {
	Loaded() bool
}

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// Readiness reports quiescence: ready means no further visual change is
// imminent.
func Readiness(q QuiescenceReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status string `json:"status"`
		}
		out := resp{Status: "not_ready"}
		code := http.StatusServiceUnavailable
		if q.Loaded() {
			out.Status = "ready"
			code = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(out)
	}
}
