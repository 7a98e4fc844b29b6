// Package fake is an in-memory stand-in for a real Matroska/EBML element
// writer, sufficient to exercise internal/cluster's orchestration logic
// without a production container encoder. It records structure and reports
// rough per-element byte-cost estimates instead of wire encodings.
package fake

import (
	"io"

	"github.com/andradeandrey/mkvmux/internal/ebml"
	"github.com/andradeandrey/mkvmux/internal/packet"
)

// Frame is one recorded AddFrameAuto call, kept for test assertions.
type Frame struct {
	Track      packet.TrackEntry
	RelativeTC packet.Timecode
	Data       []byte
	Lacing     ebml.LacingType
	BRef       packet.Timecode
	FRef       packet.Timecode
}

// maxLacedFrames bounds how many frames the fake will agree to lace into a
// single block before reporting moreData=false on its own, independent of
// the rendergroup-level lacing-disable rules.
const maxLacedFrames = 8

// BlockHandle is a fake SimpleBlock/BlockGroup under construction.
type BlockHandle struct {
	BlobType    ebml.BlockBlobType
	IsGroup     bool
	Frames      []Frame
	Duration    packet.Timecode
	DurationSet bool
	CodecState  []byte
	Adds        [][]byte
	RefPriority uint8
}

var _ ebml.BlockHandle = (*BlockHandle)(nil)

func (b *BlockHandle) AddFrameAuto(track packet.TrackEntry, relTC packet.Timecode, data []byte, lacing ebml.LacingType, bref, fref packet.Timecode) bool {
	cp := make([]byte, len(data))
	copy(cp, data)
	b.Frames = append(b.Frames, Frame{Track: track, RelativeTC: relTC, Data: cp, Lacing: lacing, BRef: bref, FRef: fref})
	return len(b.Frames) < maxLacedFrames
}

func (b *BlockHandle) SetBlockDuration(d packet.Timecode) {
	b.Duration = d
	b.DurationSet = true
}

func (b *BlockHandle) ReplaceSimpleByGroup() bool {
	b.IsGroup = true
	return true
}

func (b *BlockHandle) PushCodecState(state []byte) {
	cp := make([]byte, len(state))
	copy(cp, state)
	b.CodecState = cp
	b.IsGroup = true
}

func (b *BlockHandle) PushBlockAdditions(adds [][]byte) {
	for _, a := range adds {
		cp := make([]byte, len(a))
		copy(cp, a)
		b.Adds = append(b.Adds, cp)
	}
	b.IsGroup = true
}

func (b *BlockHandle) PushReferencePriority(priority uint8) {
	b.RefPriority = priority
	b.IsGroup = true
}

// frameOverhead estimates the per-frame byte cost the way the size-split
// estimator does: 10 bytes for a keyframe, 13 for a frame with only a
// backward reference, 16 for both references.
func frameOverhead(f Frame) int {
	switch {
	case f.BRef == packet.NoRef:
		return 10
	case f.FRef == packet.NoRef:
		return 13
	default:
		return 16
	}
}

// Cluster is a fake Matroska Cluster element.
type Cluster struct {
	Parent          ebml.Segment
	PrevTC          packet.Timecode
	Scale           uint64
	MinTC           packet.Timecode
	MaxTC           packet.Timecode
	SilentTrackUsed bool
	Blobs           []*BlockHandle
	size            uint64
}

var _ ebml.ClusterImpl = (*Cluster)(nil)

func (c *Cluster) SetParent(seg ebml.Segment)                          { c.Parent = seg }
func (c *Cluster) SetPreviousTimecode(tc packet.Timecode, scale uint64) { c.PrevTC, c.Scale = tc, scale }
func (c *Cluster) SetMinTimecode(tc packet.Timecode)                   { c.MinTC = tc }
func (c *Cluster) SetMaxTimecode(tc packet.Timecode)                   { c.MaxTC = tc }
func (c *Cluster) SetSilentTrackUsed()                                 { c.SilentTrackUsed = true }

func (c *Cluster) AddBlockBlob(t ebml.BlockBlobType) ebml.BlockHandle {
	bh := &BlockHandle{BlobType: t, IsGroup: t == ebml.BlockBlobNoSimple}
	c.Blobs = append(c.Blobs, bh)
	return bh
}

func (c *Cluster) Render(out ebml.Writer, cues ebml.Cues) (uint64, error) {
	size := uint64(21) // Cluster + Cluster timecode, per the size-split estimator's header allowance.
	for _, bh := range c.Blobs {
		for _, f := range bh.Frames {
			size += uint64(len(f.Data) + frameOverhead(f))
		}
		if cues != nil {
			cues.AddBlockBlob(bh)
		}
	}
	c.size = size
	if out != nil {
		if _, err := out.Write(make([]byte, size)); err != nil {
			return 0, err
		}
	}
	return size, nil
}

func (c *Cluster) GlobalTimecode() packet.Timecode { return c.MinTC }
func (c *Cluster) ElementSize() uint64             { return c.size }

// Cues is a fake cue (index) table.
type Cues struct {
	blobs []ebml.BlockHandle
}

var _ ebml.Cues = (*Cues)(nil)

func (c *Cues) AddBlockBlob(bh ebml.BlockHandle) { c.blobs = append(c.blobs, bh) }
func (c *Cues) Count() int                       { return len(c.blobs) }

// ElementSize estimates the serialized cue table size at a flat 15 bytes per
// entry (CuePoint + CueTrackPositions, roughly).
func (c *Cues) ElementSize() uint64 { return uint64(len(c.blobs) * 15) }

// Writer is a fake output sink backed by an io.Writer (commonly a
// bytes.Buffer in tests), tracking the write offset the way a real file
// writer's getFilePointer() would.
type Writer struct {
	w      io.Writer
	offset int64
}

var _ ebml.Writer = (*Writer)(nil)

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.offset += int64(n)
	return n, err
}

func (w *Writer) Offset() int64 { return w.offset }

// Factory constructs fake Clusters, standing in for a real writer's cluster
// allocation.
type Factory struct{}

var _ ebml.Factory = (*Factory)(nil)

func (Factory) NewCluster() *ebml.Cluster { return ebml.NewCluster(&Cluster{}) }

// SeekHead is a fake global seek head, recording every cluster it's asked to
// index for test assertions.
type SeekHead struct {
	Indexed []*ebml.Cluster
}

var _ ebml.SeekHeadForCues = (*SeekHead)(nil)

func (s *SeekHead) IndexCluster(cluster *ebml.Cluster, segment ebml.Segment) {
	s.Indexed = append(s.Indexed, cluster)
}
