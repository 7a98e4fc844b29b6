package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOutToAllViewers(t *testing.T) {
	f := New()
	a := make(chan Event, 1)
	b := make(chan Event, 1)
	f.Connect(a)
	f.Connect(b)
	assert.Equal(t, 2, f.ViewerCount())

	f.Publish(Event{GlobalTimecode: 40_000_000, Bytes: 128, Blocks: 2})

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, int64(40_000_000), (<-a).GlobalTimecode)
	assert.Equal(t, uint64(128), (<-b).Bytes)
}

func TestPublishSkipsFullViewerWithoutBlocking(t *testing.T) {
	f := New()
	slow := make(chan Event, 1)
	f.Connect(slow)
	slow <- Event{} // fill the buffer

	done := make(chan struct{})
	go func() {
		f.Publish(Event{Blocks: 9})
		close(done)
	}()
	<-done // would hang if Publish blocked on the full channel
}

func TestDisconnectStopsDelivery(t *testing.T) {
	f := New()
	ch := make(chan Event, 1)
	f.Connect(ch)
	f.Disconnect(ch)
	assert.Equal(t, 0, f.ViewerCount())

	f.Publish(Event{Blocks: 1})
	assert.Len(t, ch, 0)
}
