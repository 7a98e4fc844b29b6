package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundToScale(t *testing.T) {
	assert.Equal(t, Timecode(1_000_000), RoundToScale(1_499_999, 1_000_000))
	assert.Equal(t, Timecode(2_000_000), RoundToScale(2_000_000, 1_000_000))
	assert.Equal(t, Timecode(0), RoundToScale(999_999, 1_000_000))
}

func TestRoundToScaleZeroScaleIsNoop(t *testing.T) {
	assert.Equal(t, Timecode(12345), RoundToScale(12345, 0))
}

func TestPacketRoundTimecodesPreservesUnmodified(t *testing.T) {
	p := &Packet{
		Timecode:         1_234_567,
		Duration:         2_345_678,
		AssignedTimecode: 1_234_567,
		BRef:             500_000,
		FRef:             NoRef,
	}
	p.RoundTimecodes(1_000_000)

	assert.Equal(t, Timecode(1_234_567), p.UnmodifiedAssignedTimecode)
	assert.Equal(t, Timecode(2_345_678), p.UnmodifiedDuration)
	assert.Equal(t, Timecode(1_000_000), p.Timecode)
	assert.Equal(t, Timecode(2_000_000), p.Duration)
	assert.Equal(t, Timecode(1_000_000), p.AssignedTimecode)
	assert.Equal(t, Timecode(0), p.BRef)
	assert.Equal(t, Timecode(NoRef), p.FRef) // untouched: not > 0
}

func TestPacketRoundTimecodesSkipsNonPositiveDuration(t *testing.T) {
	p := &Packet{Duration: 0}
	p.RoundTimecodes(1_000_000)
	assert.Equal(t, Timecode(0), p.Duration)
}

func TestPacketKeyframeAndRefHelpers(t *testing.T) {
	p := &Packet{BRef: NoRef, FRef: NoRef}
	assert.True(t, p.IsKeyframe())
	assert.False(t, p.HasBRef())
	assert.False(t, p.HasFRef())

	p.BRef = 10
	assert.False(t, p.IsKeyframe())
	assert.True(t, p.HasBRef())
}
