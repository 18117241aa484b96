// Package intent defines the classifier boundary: the raw response an NLU
// service returns for an utterance, and the parsed Intent with typed slots
// that action handlers consume.
package intent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Classifier maps free text to a classification Response.
type Classifier interface {
	// Name returns the backend identifier (e.g., "wit").
	Name() string

	// Classify sends text to the NLU service. Implementations return a
	// *ClassificationError on failure.
	Classify(ctx context.Context, text string) (*Response, error)
}

// SlotKind tags the variant held by a SlotValue.
type SlotKind int

const (
	SlotString SlotKind = iota
	SlotNumber
	SlotDateTime
	SlotLocation
	SlotEnum
)

func (k SlotKind) String() string {
	switch k {
	case SlotString:
		return "string"
	case SlotNumber:
		return "number"
	case SlotDateTime:
		return "datetime"
	case SlotLocation:
		return "location"
	case SlotEnum:
		return "enum"
	default:
		return fmt.Sprintf("SlotKind(%d)", int(k))
	}
}

// Location is a named place with coordinates.
type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// HasCoords reports whether the location was resolved to coordinates.
func (l Location) HasCoords() bool { return l.Lat != 0 || l.Long != 0 }

// SlotValue is a tagged union over the slot types a classifier can extract.
// Only the field matching Kind is meaningful.
type SlotValue struct {
	Kind SlotKind `json:"kind"`

	Str string  `json:"str,omitempty"`
	Num float64 `json:"num,omitempty"`

	// Time is the instant (or interval start) of a DateTime slot; End is the
	// interval end and is zero for a single instant.
	Time  time.Time `json:"time,omitzero"`
	End   time.Time `json:"end,omitzero"`
	Grain string    `json:"grain,omitempty"`

	Loc  Location `json:"loc,omitzero"`
	Enum string   `json:"enum,omitempty"`

	// Raw is the span of the utterance the slot was extracted from.
	Raw string `json:"raw,omitempty"`
}

// IsInterval reports whether a DateTime slot spans a range.
func (v SlotValue) IsInterval() bool { return v.Kind == SlotDateTime && !v.End.IsZero() }

// Intent is a classified user goal.
type Intent struct {
	Name       string               `json:"name"`
	Confidence float64              `json:"confidence"`
	Slots      map[string]SlotValue `json:"slots,omitempty"`
}

// Slot returns the named slot.
func (i Intent) Slot(name string) (SlotValue, bool) {
	v, ok := i.Slots[name]
	return v, ok
}

// Text returns the string form of a String or Enum slot, or "".
func (i Intent) Text(name string) string {
	v, ok := i.Slots[name]
	if !ok {
		return ""
	}
	switch v.Kind {
	case SlotEnum:
		return v.Enum
	case SlotString:
		return v.Str
	case SlotLocation:
		return v.Loc.Name
	default:
		return v.Raw
	}
}

// FailureKind classifies a ClassificationError.
type FailureKind int

const (
	FailureNetwork FailureKind = iota
	FailureTimeout
	FailureParse
)

func (k FailureKind) String() string {
	switch k {
	case FailureNetwork:
		return "network"
	case FailureTimeout:
		return "timeout"
	case FailureParse:
		return "parse"
	default:
		return "unknown"
	}
}

// ClassificationError reports why an utterance could not be classified.
type ClassificationError struct {
	Kind FailureKind
	Err  error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification %s error: %v", e.Kind, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// NewClassificationError wraps err, promoting context deadline expiry to a
// timeout regardless of the kind requested.
func NewClassificationError(kind FailureKind, err error) *ClassificationError {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = FailureTimeout
	}
	return &ClassificationError{Kind: kind, Err: err}
}
