package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andradeandrey/mkvmux/internal/packet"
)

func TestReadRecordsParsesJSONLinesSkippingBlanks(t *testing.T) {
	input := strings.NewReader(`{"track":"v0","track_type":"video","timecode":0,"bref":-1,"fref":-1,"data":"aGVsbG8="}

{"track":"v0","track_type":"video","timecode":40000000,"bref":0,"fref":-1,"data":"d29ybGQ="}
`)
	records, err := readRecords(input)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "v0", records[0].Track)
	assert.Equal(t, int64(-1), records[0].BRef)
	assert.Equal(t, int64(40_000_000), records[1].Timecode)
}

func TestReadRecordsRejectsMalformedLine(t *testing.T) {
	_, err := readRecords(strings.NewReader(`not json`))
	assert.Error(t, err)
}

func TestCueStrategyFromName(t *testing.T) {
	assert.Equal(t, packet.CueIFrames, cueStrategyFromName("iframes"))
	assert.Equal(t, packet.CueAll, cueStrategyFromName("all"))
	assert.Equal(t, packet.CueSparse, cueStrategyFromName("sparse"))
	assert.Equal(t, packet.CueNone, cueStrategyFromName("none"))
	assert.Equal(t, packet.CueUnspecified, cueStrategyFromName("bogus"))
}

func TestTrackTypeFromName(t *testing.T) {
	assert.Equal(t, packet.TrackVideo, trackTypeFromName("video"))
	assert.Equal(t, packet.TrackAudio, trackTypeFromName("audio"))
	assert.Equal(t, packet.TrackSubtitle, trackTypeFromName("subtitle"))
	assert.Equal(t, packet.TrackUnknown, trackTypeFromName("bogus"))
}

func TestCLITrackDefaults(t *testing.T) {
	tr := newCLITrack("v0", packet.TrackVideo, packet.CueIFrames)
	assert.Equal(t, packet.Timecode(-1), tr.LastCueTimecode())
	assert.Equal(t, packet.Timecode(-1), tr.FreeRefs())
	assert.True(t, tr.LacingEnabled())
	assert.False(t, tr.ContainsGap())

	tr.SetLastCueTimecode(5)
	tr.SetFreeRefs(10)
	assert.Equal(t, packet.Timecode(5), tr.LastCueTimecode())
	assert.Equal(t, packet.Timecode(10), tr.FreeRefs())
}
