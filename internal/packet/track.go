package packet

// TrackType classifies a source track, used by the Cluster Helper's cue and
// split policies.
type TrackType int

const (
	TrackUnknown TrackType = iota
	TrackVideo
	TrackAudio
	TrackSubtitle
)

// CueStrategy selects which packets get a cue (index) entry, per track.
type CueStrategy int

const (
	CueUnspecified CueStrategy = iota
	CueNone
	CueIFrames
	CueAll
	CueSparse
)

// TrackEntry is an opaque handle to the EBML TrackEntry element a
// packetizer's track is bound to; the core never inspects it, only threads
// it through to the EBML writer.
type TrackEntry interface{}

// TrackRef is the contract the Cluster Helper pulls against the source track
// that produced a packet. These callbacks must be non-reentrant: a TrackRef
// implementation must never call back into the Cluster Helper from within
// one of these methods.
type TrackRef interface {
	// TrackType reports this track's media kind.
	TrackType() TrackType
	// DefaultDuration returns the track's configured default frame
	// duration, or 0 if none is set.
	DefaultDuration() Timecode
	// TrackEntry returns the opaque EBML TrackEntry handle for this track.
	TrackEntry() TrackEntry
	// CueCreation reports this track's configured cue strategy.
	CueCreation() CueStrategy
	// LastCueTimecode returns the assigned timecode of the most recently
	// recorded cue entry for this track, or -1 if none yet.
	LastCueTimecode() Timecode
	// SetLastCueTimecode records the assigned timecode of a newly added
	// cue entry.
	SetLastCueTimecode(tc Timecode)
	// FreeRefs returns the watermark below which retained packets from
	// this track are no longer needed by any live reference.
	FreeRefs() Timecode
	// SetFreeRefs raises the watermark: timecodes below tc need no longer be
	// retained.
	SetFreeRefs(tc Timecode)
	// ContainsGap reports whether this track has a signaled gap, which
	// marks the cluster SilentTrackUsed.
	ContainsGap() bool
	// LacingEnabled reports whether this track permits lacing multiple
	// frames into one block.
	LacingEnabled() bool
	// ReferenceTimecodeTolerance returns the fuzz tolerance (in
	// nanoseconds) used when resolving bref/fref against retained packet
	// timecodes; 0 means "use the default".
	ReferenceTimecodeTolerance() Timecode
}
