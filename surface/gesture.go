package surface

import (
	"math"
	"time"
)

// PointerKind distinguishes the two input devices with different drag
// activation rules.
type PointerKind int

const (
	PointerMouse PointerKind = iota
	PointerTouch
)

// PointerSample is one observed pointer position.
type PointerSample struct {
	X, Y float64
	At   time.Time
}

// GestureRecognizer disambiguates a click or tap from a drag. A mouse drag
// activates once the pointer travels past a distance threshold; a touch drag
// activates after the finger has been held for a delay while staying within a
// tolerance radius, so list scrolling is not swallowed.
type GestureRecognizer struct {
	DistancePx       float64
	TouchDelay       time.Duration
	TouchTolerancePx float64
}

// NewGestureRecognizer returns a recognizer with the console's defaults.
func NewGestureRecognizer() GestureRecognizer {
	return GestureRecognizer{
		DistancePx:       5,
		TouchDelay:       250 * time.Millisecond,
		TouchTolerancePx: 5,
	}
}

// StartsDrag decides whether the movement from down to current begins a drag.
func (g GestureRecognizer) StartsDrag(kind PointerKind, down, current PointerSample) bool {
	moved := distance(down, current)
	switch kind {
	case PointerMouse:
		return moved > g.DistancePx
	case PointerTouch:
		if moved > g.TouchTolerancePx {
			return false
		}
		return current.At.Sub(down.At) >= g.TouchDelay
	}
	return false
}

func distance(a, b PointerSample) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
