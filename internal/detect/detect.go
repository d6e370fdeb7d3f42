// Package detect implements heuristic evaluators for scripted mouse and
// keyboard behaviour. Both detectors are O(1) per event with bounded memory:
// the mouse side keeps one previous sample, the keyboard side a window of at
// most five inter-press intervals. They hold no locks; each input listener
// owns its detector.
package detect

import (
	"math"
	"time"
)

const (
	// MouseSpeedThreshold is the speed in pixels/second above which a move
	// is flagged as scripted.
	MouseSpeedThreshold = 1000.0

	// KeyWindowSize is the number of inter-press intervals evaluated per
	// keyboard timing check.
	KeyWindowSize = 5

	// KeyDeviationThreshold flags a window whose max-min interval spread is
	// below this value; near-perfectly uniform timing implies automation.
	KeyDeviationThreshold = 50 * time.Millisecond
)

// Mouse flags moves whose instantaneous speed exceeds MouseSpeedThreshold.
type Mouse struct {
	prevX, prevY float64
	prevAt       time.Time
	primed       bool
	speed        float64
}

// Observe records a move event and reports whether it is anomalous. The
// previous sample is always overwritten, regardless of the verdict.
func (m *Mouse) Observe(x, y float64, at time.Time) bool {
	anomalous := false
	m.speed = 0
	if m.primed {
		elapsed := at.Sub(m.prevAt).Seconds()
		if elapsed > 0 {
			dx := x - m.prevX
			dy := y - m.prevY
			m.speed = math.Sqrt(dx*dx+dy*dy) / elapsed
			anomalous = m.speed > MouseSpeedThreshold
		}
	}
	m.prevX, m.prevY = x, y
	m.prevAt = at
	m.primed = true
	return anomalous
}

// Speed reports the speed computed by the last Observe, in pixels/second.
// It is zero before two samples exist or when no time elapsed between them.
func (m *Mouse) Speed() float64 { return m.speed }

// Keyboard flags bursts of key presses with near-uniform timing.
type Keyboard struct {
	prevAt  time.Time
	primed  bool
	window  [KeyWindowSize]time.Duration
	n       int
	spread  time.Duration
	checked bool
}

// Observe records a key-press event and reports whether it completes an
// anomalous timing window. A check happens exactly once per KeyWindowSize
// accumulated intervals, and the window is cleared afterward whether or not
// it was flagged.
func (k *Keyboard) Observe(at time.Time) bool {
	anomalous := false
	k.checked = false
	if k.primed {
		k.window[k.n] = at.Sub(k.prevAt)
		k.n++
		if k.n == KeyWindowSize {
			min, max := k.window[0], k.window[0]
			for _, d := range k.window[1:] {
				if d < min {
					min = d
				}
				if d > max {
					max = d
				}
			}
			k.spread = max - min
			k.checked = true
			anomalous = k.spread < KeyDeviationThreshold
			k.n = 0
		}
	}
	k.prevAt = at
	k.primed = true
	return anomalous
}

// Spread reports the max-min interval spread of the window evaluated by the
// last Observe; ok is false when that Observe did not complete a window.
func (k *Keyboard) Spread() (spread time.Duration, ok bool) { return k.spread, k.checked }

// WindowLen reports the current number of buffered intervals, in [0, KeyWindowSize).
func (k *Keyboard) WindowLen() int { return k.n }
