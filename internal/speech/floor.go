package speech

import (
	"errors"
	"sync"
)

// Holder identifies which gate owns the audio floor.
type Holder int

const (
	Nobody Holder = iota
	Microphone
	Speaker
)

func (h Holder) String() string {
	switch h {
	case Microphone:
		return "microphone"
	case Speaker:
		return "speaker"
	default:
		return "nobody"
	}
}

// ErrFloorBusy is returned when the other gate holds the floor.
var ErrFloorBusy = errors.New("speech: audio floor is held by another gate")

// Floor is the mutual-exclusion token shared by the capture and playback
// gates. A gate may be Active only while it holds the floor.
type Floor struct {
	mu     sync.Mutex
	holder Holder
}

// NewFloor creates a free Floor.
func NewFloor() *Floor { return &Floor{} }

// Acquire takes the floor for h. It fails with ErrFloorBusy while the floor
// is held, including by h itself: every Acquire pairs with one Release.
func (f *Floor) Acquire(h Holder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holder != Nobody {
		return ErrFloorBusy
	}
	f.holder = h
	return nil
}

// Release frees the floor if h holds it.
func (f *Floor) Release(h Holder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holder == h {
		f.holder = Nobody
	}
}

// Holder returns the current owner.
func (f *Floor) Holder() Holder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holder
}
