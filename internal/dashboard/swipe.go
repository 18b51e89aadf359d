package dashboard

import "math"

// Swipe-to-delete geometry, in CSS pixels.
const (
	SwipeMaxOffset       = -200.0
	SwipeDeleteThreshold = -100.0
)

// Intent is what releasing a swiped row asks for.
type Intent int

const (
	IntentReset Intent = iota
	IntentDelete
)

func (i Intent) String() string {
	if i == IntentDelete {
		return "delete"
	}
	return "reset"
}

// Swipe tracks one horizontal drag on a list row. Only leftward movement
// reveals the delete action.
type Swipe struct {
	startX float64
	offset float64
	active bool
}

// Start begins a drag at x.
func (s *Swipe) Start(x float64) {
	s.startX = x
	s.offset = 0
	s.active = true
}

// Move updates the drag to x and returns the row offset.
func (s *Swipe) Move(x float64) float64 {
	if !s.active {
		return 0
	}
	s.offset = ClampOffset(x - s.startX)
	return s.offset
}

// Offset is the current row offset.
func (s *Swipe) Offset() float64 {
	return s.offset
}

// Release ends the drag and returns the row to rest.
func (s *Swipe) Release() Intent {
	intent := ReleaseIntent(s.offset)
	*s = Swipe{}
	return intent
}

// ClampOffset limits a signed drag distance to [SwipeMaxOffset, 0].
// NaN is treated as no movement.
func ClampOffset(d float64) float64 {
	switch {
	case math.IsNaN(d), d > 0:
		return 0
	case d < SwipeMaxOffset:
		return SwipeMaxOffset
	default:
		return d
	}
}

// ReleaseIntent maps a release offset to an intent; it clamps first.
func ReleaseIntent(offset float64) Intent {
	if ClampOffset(offset) <= SwipeDeleteThreshold {
		return IntentDelete
	}
	return IntentReset
}
