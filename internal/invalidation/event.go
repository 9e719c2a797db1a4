// Package invalidation defines the style-change event that forces cached
// tiles to re-fetch on next acquire.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

// Event announces a global state change that alters what "loaded" means for
// a tile's rendered output. Op names what changed; Source optionally narrows
// the invalidation to one tile source.
type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "style", "layers", "resolution":
	default:
		return fmt.Errorf("op must be style|layers|resolution")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.Source != strings.TrimSpace(e.Source) {
		return fmt.Errorf("source must not have surrounding whitespace")
	}
	return nil
}
