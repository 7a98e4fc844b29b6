package packet

import "github.com/andradeandrey/mkvmux/internal/buffer"

// BlockHandle is an opaque reference to the block (SimpleBlock or
// BlockGroup) a packet was rendered into, set by the Cluster Helper at
// render time.
type BlockHandle interface{}

// Packet is the unit of work carried from a packetizer into the Cluster
// Helper: a payload buffer, timecodes, reference relationships, and flags
// decided upstream.
type Packet struct {
	Data       *buffer.Buffer
	CodecState *buffer.Buffer   // nil if no codec-state change on this packet
	DataAdds   []*buffer.Buffer // BlockAddition blobs

	Source TrackRef

	Timecode         Timecode
	Duration         Timecode
	BRef             Timecode // NoRef (-1) => absent
	FRef             Timecode // NoRef (-1) => absent
	AssignedTimecode Timecode

	// Pre-rounding copies, used by the render group for duration
	// accounting.
	UnmodifiedAssignedTimecode Timecode
	UnmodifiedDuration         Timecode

	DurationMandatory bool
	GapFollowing      bool
	RefPriority       uint8

	// PacketNum is assigned by the Cluster Helper on ingress, monotonically
	// increasing across all ingested packets.
	PacketNum uint64

	// Superseeded is set by the Cluster Helper's reference-GC pass once no
	// live reference can point at this packet anymore.
	Superseeded bool

	// Group is set once this packet has been rendered into a block.
	Group BlockHandle
}

// HasBRef reports whether this packet carries a backward reference.
func (p *Packet) HasBRef() bool { return p.BRef != NoRef }

// HasFRef reports whether this packet carries a forward reference.
func (p *Packet) HasFRef() bool { return p.FRef != NoRef }

// IsKeyframe reports whether this packet is independent of any other frame
// (no backward reference), the condition the split policy and the cue
// I-frame strategy both test.
func (p *Packet) IsKeyframe() bool { return !p.HasBRef() }

// RoundTimecodes applies RoundToScale to every timecode field that
// participates in the on-wire precision: Timecode, Duration (if positive),
// AssignedTimecode, BRef (if positive), FRef (if positive). The unmodified
// copies are saved first.
func (p *Packet) RoundTimecodes(scale uint64) {
	p.UnmodifiedAssignedTimecode = p.AssignedTimecode
	p.UnmodifiedDuration = p.Duration

	p.Timecode = RoundToScale(p.Timecode, scale)
	if p.Duration > 0 {
		p.Duration = RoundToScale(p.Duration, scale)
	}
	p.AssignedTimecode = RoundToScale(p.AssignedTimecode, scale)
	if p.BRef > 0 {
		p.BRef = RoundToScale(p.BRef, scale)
	}
	if p.FRef > 0 {
		p.FRef = RoundToScale(p.FRef, scale)
	}
}
