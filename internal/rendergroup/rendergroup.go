// Package rendergroup implements render groups: per-source-track state the
// Cluster Helper threads through one cluster's render pass to decide lacing
// continuation, block type, and BlockDuration emission. Groups live only for
// the duration of a single render pass and are never shared.
package rendergroup

import (
	"github.com/andradeandrey/mkvmux/internal/ebml"
	"github.com/andradeandrey/mkvmux/internal/packet"
)

// Config carries the slice of Cluster Helper configuration the render group
// needs.
type Config struct {
	Scale          uint64
	UseDurations   bool
	UseSimpleBlock bool
	Lacing         ebml.LacingType
}

// Group is one render group: a source reference, the ordered durations of
// the frames laced into the current block, the ordered block handles already
// opened for this source, and the lacing-continuation state.
type Group struct {
	Source            packet.TrackRef
	Durations         []packet.Timecode
	Handles           []ebml.BlockHandle
	MoreData          bool
	DurationMandatory bool
}

// New creates an empty render group for source; MoreData and
// DurationMandatory both start false.
func New(source packet.TrackRef) *Group {
	return &Group{Source: source}
}

// Append drives one packet through the render group's lacing/block-type
// decision and returns the block handle it was written into and whether that
// handle was newly created this call.
func (g *Group) Append(cl *ebml.Cluster, pkt *packet.Packet, timecodeOffset packet.Timecode, cfg Config) (handle ebml.BlockHandle, isNewHandle bool) {
	hasCodecState := pkt.CodecState != nil

	if pkt.HasBRef() || hasCodecState {
		g.MoreData = false
	}

	if !g.MoreData {
		g.flushDuration(cfg)
		g.Durations = g.Durations[:0]
		g.DurationMandatory = false

		blobType := ebml.BlockBlobAlwaysSimple
		if !cfg.UseSimpleBlock {
			blobType = ebml.BlockBlobNoSimple
		} else if g.mustDurationBeSet(pkt, cfg) {
			blobType = ebml.BlockBlobNoSimple
		}
		if hasCodecState {
			blobType = ebml.BlockBlobNoSimple
		}

		handle = cl.AddBlockBlob(blobType)
		g.Handles = append(g.Handles, handle)
		isNewHandle = true
	} else {
		handle = g.Handles[len(g.Handles)-1]
	}

	relTC := pkt.AssignedTimecode - timecodeOffset
	bref := pkt.BRef - timecodeOffset
	fref := pkt.FRef - timecodeOffset

	g.MoreData = handle.AddFrameAuto(pkt.Source.TrackEntry(), relTC, pkt.Data.Bytes(), cfg.Lacing, bref, fref)

	if !pkt.HasBRef() && !pkt.HasFRef() {
		pkt.Source.SetFreeRefs(pkt.Timecode)
	}

	if hasCodecState {
		handle.PushCodecState(pkt.CodecState.Bytes())
	}

	if pkt.RefPriority > 0 && handle.ReplaceSimpleByGroup() {
		handle.PushReferencePriority(pkt.RefPriority)
	}

	if len(pkt.DataAdds) > 0 && handle.ReplaceSimpleByGroup() {
		adds := make([][]byte, len(pkt.DataAdds))
		for i, d := range pkt.DataAdds {
			adds[i] = d.Bytes()
		}
		handle.PushBlockAdditions(adds)
	}

	if pkt.HasBRef() || pkt.HasFRef() || !pkt.Source.LacingEnabled() {
		g.MoreData = false
	}

	g.Durations = append(g.Durations, pkt.UnmodifiedDuration)
	g.DurationMandatory = g.DurationMandatory || pkt.DurationMandatory

	return handle, isNewHandle
}

// Flush finalizes BlockDuration on the group's last handle; the Cluster
// Helper calls it for every group at the end of a cluster render.
func (g *Group) Flush(cfg Config) {
	g.flushDuration(cfg)
}

func (g *Group) flushDuration(cfg Config) {
	if len(g.Durations) == 0 || len(g.Handles) == 0 {
		return
	}
	handle := g.Handles[len(g.Handles)-1]
	blockDuration := sumDurations(g.Durations)
	defDuration := g.Source.DefaultDuration()
	n := packet.Timecode(len(g.Durations))

	if g.DurationMandatory {
		if blockDuration > 0 && blockDuration != n*defDuration {
			handle.SetBlockDuration(packet.RoundToScale(blockDuration, cfg.Scale))
		}
		return
	}
	if (cfg.UseDurations || defDuration > 0) && blockDuration > 0 &&
		packet.RoundToScale(blockDuration, cfg.Scale) != packet.RoundToScale(n*defDuration, cfg.Scale) {
		handle.SetBlockDuration(packet.RoundToScale(blockDuration, cfg.Scale))
	}
}

// mustDurationBeSet reports whether appending pkt would force a
// BlockDuration to be emitted. Evaluated against the group's current
// (just-flushed, so typically empty) durations list plus pkt's own rounded
// Duration.
func (g *Group) mustDurationBeSet(pkt *packet.Packet, cfg Config) bool {
	blockDuration := sumDurations(g.Durations) + pkt.Duration
	defDuration := g.Source.DefaultDuration()
	n := packet.Timecode(len(g.Durations) + 1)

	if g.DurationMandatory || pkt.DurationMandatory {
		if blockDuration > 0 && blockDuration != n*defDuration {
			return true
		}
		return false
	}
	if (cfg.UseDurations || defDuration > 0) && blockDuration > 0 &&
		packet.RoundToScale(blockDuration, cfg.Scale) != packet.RoundToScale(n*defDuration, cfg.Scale) {
		return true
	}
	return false
}

func sumDurations(ds []packet.Timecode) packet.Timecode {
	var total packet.Timecode
	for _, d := range ds {
		total += d
	}
	return total
}
