package rank

import (
	"math"
	"time"
)

// DefaultDecayConstant is the rating decay time scale in seconds used when
// configuration does not provide one. An event roughly e times older than
// this counts e times less.
const DefaultDecayConstant = 241920.0

// DecayConfig exposes the current decay constant in seconds. Implementations
// may refresh the value at any time; the manager reads it on every weight
// computation. Values must be strictly positive.
type DecayConfig interface {
	DecayConstant() float64
}

// StaticDecay is a DecayConfig with a fixed constant.
type StaticDecay float64

func (d StaticDecay) DecayConstant() float64 { return float64(d) }

// ratingWeight converts elapsed time into the additive rating weight for an
// event at now, relative to a list's reference timestamp. Both arguments are
// epoch seconds.
func ratingWeight(now, reference, decayConstant float64) float64 {
	return math.Exp((now - reference) / decayConstant)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
