// Package splitpoint implements the split policy: the ordered list of rules
// deciding when the Cluster Helper should start a new output file. The
// "current" split point is an index into the list rather than a pointer, so
// growing the list never invalidates it.
package splitpoint

// Type selects which quantity a SplitPoint's Point is measured in.
type Type int

const (
	// Size splits when the estimated bytes written to the current file
	// would reach Value.
	Size Type = iota
	// Duration splits when the span from the current file's first timecode
	// to the packet's assigned timecode reaches Value.
	Duration
	// TimecodeWallclock splits when the packet's assigned timecode itself
	// reaches Value.
	TimecodeWallclock
)

// Point is one split trigger.
type Point struct {
	Value   int64
	Type    Type
	UseOnce bool
}

// List is the ordered collection of split points with an index-based
// "current" pointer.
type List struct {
	points  []Point
	current int
}

// Add registers a new split trigger and resets the current pointer to the
// first point.
func (l *List) Add(p Point) {
	l.points = append(l.points, p)
	l.current = 0
}

// Len reports how many split points have been registered.
func (l *List) Len() int {
	return len(l.points)
}

// Current returns the active split point and true, or the zero value and
// false if the list is exhausted (every point has been consumed) or empty.
func (l *List) Current() (Point, bool) {
	if l.current >= len(l.points) {
		return Point{}, false
	}
	return l.points[l.current], true
}

// Advance consumes the current split point, moving to the next one. Called
// after a use-once split point fires.
func (l *List) Advance() {
	if l.current < len(l.points) {
		l.current++
	}
}

// Exhausted reports whether every split point has been consumed.
func (l *List) Exhausted() bool {
	return l.current >= len(l.points)
}
