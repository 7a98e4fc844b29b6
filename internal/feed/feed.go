// Package feed fans out one notification per rendered cluster to subscribed
// monitor viewers.
package feed

import "sync"

// Event is published once per completed cluster render. No payload bytes
// are replayed here; those belong to the EBML writer's sink, which this
// core does not own.
type Event struct {
	GlobalTimecode int64
	Bytes          uint64
	Blocks         int
	SplitFollowed  bool
}

// Feed is the per-job render-event broadcaster.
type Feed struct {
	vlock   sync.Mutex // protects viewers
	viewers map[chan<- Event]bool
}

// New constructs an empty Feed.
func New() *Feed {
	return &Feed{viewers: make(map[chan<- Event]bool)}
}

// Connect registers ch to receive subsequent events.
func (f *Feed) Connect(ch chan<- Event) {
	f.vlock.Lock()
	f.viewers[ch] = true
	f.vlock.Unlock()
}

// Disconnect removes ch from the viewer set.
func (f *Feed) Disconnect(ch chan<- Event) {
	f.vlock.Lock()
	delete(f.viewers, ch)
	f.vlock.Unlock()
}

// Publish fans ev out to every connected viewer. A viewer whose channel is
// full is skipped rather than blocked on; a skipped event is simply lost to
// that one viewer.
func (f *Feed) Publish(ev Event) {
	f.vlock.Lock()
	defer f.vlock.Unlock()
	for ch := range f.viewers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// ViewerCount reports how many viewers are currently connected, for the
// admin/status surfaces.
func (f *Feed) ViewerCount() int {
	f.vlock.Lock()
	defer f.vlock.Unlock()
	return len(f.viewers)
}
