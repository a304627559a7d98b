package scheduling

import "time"

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Occurrence is one concrete time box of a (possibly recurring) request.
type Occurrence struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (o Occurrence) Overlaps(other Occurrence) bool {
	return Overlaps(o.Start, o.End, other.Start, other.End)
}

func (o Occurrence) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// Valid reports whether the window has a positive duration.
func (o Occurrence) Valid() bool {
	return o.End.After(o.Start)
}
