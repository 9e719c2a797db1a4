package coalesce

import "errors"

// Outcome classifies how a render settled.
type Outcome int

const (
	// OutcomeSuccess: every tile loaded and the composite ran.
	OutcomeSuccess Outcome = iota
	// OutcomePartial: the composite ran with a usable subset; Failed carries
	// the number of tiles that did not load.
	OutcomePartial
	// OutcomeNoUsableTiles: every tile failed; destinations were cleared.
	OutcomeNoUsableTiles
	// OutcomeCanceled: this consumer withdrew (or CancelAll ran) while other
	// consumers remained attached.
	OutcomeCanceled
	// OutcomeFullyCanceled: the last consumer withdrew and the whole render
	// was torn down without compositing.
	OutcomeFullyCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartial:
		return "partial"
	case OutcomeNoUsableTiles:
		return "no_usable_tiles"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeFullyCanceled:
		return "fully_canceled"
	default:
		return "unknown"
	}
}

// Result is delivered to every consumer of a settled render, exactly once.
type Result struct {
	Outcome Outcome
	// Failed counts tiles that did not load. Non-zero for OutcomePartial and
	// OutcomeNoUsableTiles.
	Failed int
	Err    error
}

var (
	ErrNoUsableTiles = errors.New("coalesce: no usable tiles")
	ErrUnknownSource = errors.New("coalesce: unknown source")
	ErrEmptyRequest  = errors.New("coalesce: request has no tile specs")
)
