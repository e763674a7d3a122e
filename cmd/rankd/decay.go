package main

import (
	"sync"
	"time"
)

const decayRefreshInterval = time.Minute

// liveDecay feeds the ranking manager a decay constant that tracks the
// stored configuration, so `rankd config set rating.decay_constant` takes
// effect without restarting the daemon. The platform backend shells out, so
// lookups are cached between refreshes; a failed reload keeps the last good
// value.
type liveDecay struct {
	load         func() (float64, error)
	refreshEvery time.Duration

	mu      sync.Mutex
	value   float64
	checked time.Time
}

func newLiveDecay(initial float64, load func() (float64, error)) *liveDecay {
	return &liveDecay{
		load:         load,
		refreshEvery: decayRefreshInterval,
		value:        initial,
		checked:      time.Now(),
	}
}

func (d *liveDecay) DecayConstant() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if time.Since(d.checked) >= d.refreshEvery {
		d.checked = time.Now()
		if v, err := d.load(); err == nil && v > 0 {
			d.value = v
		}
	}
	return d.value
}
