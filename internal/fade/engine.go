// Package fade implements time-based linear intensity ramps. The engine knows
// nothing about buffers or transports; it hands interpolated values back
// through a per-tick callback.
package fade

import "math"

// state is one in-flight fade.
type state struct {
	current float64
	target  float64
	// rate is intensity units per second.
	rate float64
}

// Engine steps every active fade toward its target on each Tick. Not safe for
// concurrent use; the controller serializes all access.
type Engine struct {
	fades map[int]*state
}

// NewEngine creates an engine with no active fades.
func NewEngine() *Engine {
	return &Engine{fades: make(map[int]*state)}
}

// Start begins a linear ramp from current to target over duration seconds.
// A non-positive duration means "apply immediately": no fade entry is created
// and the caller should write the target value directly. Starting a fade for
// a fixture that already has one replaces it; the caller passes the in-flight
// current value so the new ramp starts where the old one left off.
func (e *Engine) Start(virtualID int, current, target, duration float64) bool {
	if duration <= 0 {
		delete(e.fades, virtualID)
		return false
	}

	e.fades[virtualID] = &state{
		current: current,
		target:  target,
		rate:    math.Abs(target-current) / duration,
	}
	return true
}

// Tick advances every active fade by dt seconds. onIntensity is invoked for
// each fade every tick, completed or not, so callers can flush the value into
// the channel buffer within the same tick. A fade whose remaining distance
// fits inside this step snaps to its target and is removed.
func (e *Engine) Tick(dt float64, onIntensity func(virtualID int, value float64)) {
	if dt <= 0 {
		return
	}

	for id, f := range e.fades {
		step := f.rate * dt
		remaining := f.target - f.current

		if math.Abs(remaining) <= step {
			f.current = f.target
			delete(e.fades, id)
		} else if remaining > 0 {
			f.current += step
		} else {
			f.current -= step
		}

		if onIntensity != nil {
			onIntensity(id, f.current)
		}
	}
}

// Cancel removes an in-flight fade without snapping to target; the fixture
// freezes at its current value. Reports whether a fade was active.
func (e *Engine) Cancel(virtualID int) bool {
	if _, ok := e.fades[virtualID]; !ok {
		return false
	}
	delete(e.fades, virtualID)
	return true
}

// Current returns the interpolated value of an active fade. Used to retarget
// without a value jump.
func (e *Engine) Current(virtualID int) (float64, bool) {
	if f, ok := e.fades[virtualID]; ok {
		return f.current, true
	}
	return 0, false
}

// Active returns the number of in-flight fades.
func (e *Engine) Active() int {
	return len(e.fades)
}

// Clear drops every fade. Used by controller shutdown and AllOff.
func (e *Engine) Clear() {
	e.fades = make(map[int]*state)
}
