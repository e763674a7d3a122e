package main

import (
	"errors"
	"testing"
)

func TestLiveDecayRefreshes(t *testing.T) {
	current := 100.0
	d := newLiveDecay(50.0, func() (float64, error) {
		return current, nil
	})
	d.refreshEvery = 0

	if got := d.DecayConstant(); got != 100.0 {
		t.Errorf("DecayConstant() = %v, want the reloaded 100", got)
	}

	current = 200.0
	if got := d.DecayConstant(); got != 200.0 {
		t.Errorf("DecayConstant() = %v, want the updated 200", got)
	}
}

func TestLiveDecayKeepsLastValueOnFailure(t *testing.T) {
	calls := 0
	d := newLiveDecay(50.0, func() (float64, error) {
		calls++
		if calls > 1 {
			return 0, errors.New("backend unavailable")
		}
		return 75.0, nil
	})
	d.refreshEvery = 0

	if got := d.DecayConstant(); got != 75.0 {
		t.Errorf("DecayConstant() = %v, want 75", got)
	}
	if got := d.DecayConstant(); got != 75.0 {
		t.Errorf("DecayConstant() after failed reload = %v, want the last good 75", got)
	}
}

func TestLiveDecayCachesBetweenRefreshes(t *testing.T) {
	calls := 0
	d := newLiveDecay(50.0, func() (float64, error) {
		calls++
		return 75.0, nil
	})

	d.DecayConstant()
	d.DecayConstant()
	if calls != 0 {
		t.Errorf("loader called %d times within the refresh interval, want 0", calls)
	}
}
