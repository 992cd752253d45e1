package entities

import (
	"fmt"
	"time"
)

// OpenEnded is the Until of a window that has no planned end yet, such as a
// crew member's assignment to a dispatch that is still running.
var OpenEnded = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// TimeWindow is a half-open time range [From, Until)
type TimeWindow struct {
	From  time.Time `json:"from" db:"reserved_from"`
	Until time.Time `json:"until" db:"reserved_until"`
}

// NewTimeWindow builds a window in UTC
func NewTimeWindow(from, until time.Time) TimeWindow {
	return TimeWindow{From: from.UTC(), Until: until.UTC()}
}

// Valid reports whether From is strictly before Until
func (w TimeWindow) Valid() bool {
	return w.From.Before(w.Until)
}

// Overlaps reports whether [a,b) and [c,d) intersect, i.e. a < d && c < b.
// Touching endpoints do not overlap.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.From.Before(other.Until) && other.From.Before(w.Until)
}

// Contains reports whether t falls inside the window
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.Until)
}

// Equal reports whether both bounds are the same instant
func (w TimeWindow) Equal(other TimeWindow) bool {
	return w.From.Equal(other.From) && w.Until.Equal(other.Until)
}

// Instant is the smallest window containing t
func Instant(t time.Time) TimeWindow {
	return TimeWindow{From: t, Until: t.Add(time.Nanosecond)}
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.From.Format(time.RFC3339), w.Until.Format(time.RFC3339))
}
