// Package ebml defines the contracts the Cluster Helper (internal/cluster)
// drives to serialize clusters. The EBML writer itself, the concrete
// Matroska/EBML element encoder, is not part of this repository: it is
// treated as an opaque sink that accepts structured cluster elements and
// reports serialized byte sizes. The fake subpackage ships a minimal
// in-memory implementation so the core is independently testable without a
// real container encoder.
package ebml

import (
	"github.com/andradeandrey/mkvmux/internal/packet"
)

// LacingType selects the block-lacing encoding the EBML writer should use
// when multiple frames are packed into one block.
type LacingType int

const (
	LacingAuto LacingType = iota
	LacingXiph
	LacingEBML
)

// BlockBlobType selects whether a new block handle defaults to SimpleBlock
// encoding or is pinned to BlockGroup encoding.
type BlockBlobType int

const (
	BlockBlobAlwaysSimple BlockBlobType = iota
	BlockBlobNoSimple
)

// Segment is an opaque handle to the enclosing Matroska Segment element;
// the core never inspects it, only threads it through to Cluster.SetParent.
type Segment interface{}

// BlockHandle is a single SimpleBlock or BlockGroup under construction.
// Exactly one call sequence renders one handle: zero or more AddFrameAuto
// calls while it returns moreData=true, optionally followed by
// SetBlockDuration / PushCodecState / PushBlockAdditions /
// PushReferencePriority.
type BlockHandle interface {
	// AddFrameAuto feeds one frame into the block. relativeTC is the
	// packet's assigned timecode relative to the cluster's timecode
	// offset; bref/fref are likewise offset-relative, or packet.NoRef.
	// Returns whether further frames may still be laced into this handle.
	AddFrameAuto(track packet.TrackEntry, relativeTC packet.Timecode, data []byte, lacing LacingType, bref, fref packet.Timecode) bool
	// SetBlockDuration attaches a BlockDuration child element.
	SetBlockDuration(d packet.Timecode)
	// ReplaceSimpleByGroup upgrades a SimpleBlock-shaped handle into a
	// BlockGroup in place, returning whether the upgrade succeeded (it
	// always does for the Fake; a real writer might refuse after the
	// block has already been serialized).
	ReplaceSimpleByGroup() bool
	// PushCodecState attaches a CodecState child element. Requires
	// BlockGroup.
	PushCodecState(state []byte)
	// PushBlockAdditions attaches one BlockMore per blob; the i-th blob
	// (0-based) gets AddID i+2, since AddID numbering starts at 1 and ID 1
	// is the block's own payload. Requires BlockGroup.
	PushBlockAdditions(adds [][]byte)
	// PushReferencePriority attaches a ReferencePriority child element.
	// Requires BlockGroup.
	PushReferencePriority(priority uint8)
}

// Cluster is one Matroska Cluster element under construction.
type Cluster struct {
	impl ClusterImpl
}

// ClusterImpl is the interface a concrete EBML writer's cluster type must
// satisfy; Cluster is a thin, comparable wrapper around it so
// internal/cluster can hold Clusters in maps/slices without caring about the
// concrete writer.
type ClusterImpl interface {
	SetParent(seg Segment)
	SetPreviousTimecode(lastTC packet.Timecode, scale uint64)
	SetMinTimecode(tc packet.Timecode)
	SetMaxTimecode(tc packet.Timecode)
	SetSilentTrackUsed()
	AddBlockBlob(blobType BlockBlobType) BlockHandle
	Render(out Writer, cues Cues) (uint64, error)
	GlobalTimecode() packet.Timecode
	ElementSize() uint64
}

// NewCluster wraps a concrete ClusterImpl.
func NewCluster(impl ClusterImpl) *Cluster { return &Cluster{impl: impl} }

func (c *Cluster) SetParent(seg Segment)                       { c.impl.SetParent(seg) }
func (c *Cluster) SetPreviousTimecode(tc packet.Timecode, s uint64) { c.impl.SetPreviousTimecode(tc, s) }
func (c *Cluster) SetMinTimecode(tc packet.Timecode)            { c.impl.SetMinTimecode(tc) }
func (c *Cluster) SetMaxTimecode(tc packet.Timecode)            { c.impl.SetMaxTimecode(tc) }
func (c *Cluster) SetSilentTrackUsed()                          { c.impl.SetSilentTrackUsed() }
func (c *Cluster) AddBlockBlob(t BlockBlobType) BlockHandle     { return c.impl.AddBlockBlob(t) }
func (c *Cluster) Render(out Writer, cues Cues) (uint64, error) { return c.impl.Render(out, cues) }
func (c *Cluster) GlobalTimecode() packet.Timecode              { return c.impl.GlobalTimecode() }
func (c *Cluster) ElementSize() uint64                          { return c.impl.ElementSize() }

// Cues is the cue (index) table the EBML writer accumulates across the
// whole output file.
type Cues interface {
	AddBlockBlob(bh BlockHandle)
	Count() int
	ElementSize() uint64
}

// Writer is the byte sink bound via Helper.SetOutput. It is synchronous:
// Render either succeeds or returns an I/O error, which the core propagates
// to the caller of Helper.Render.
type Writer interface {
	Write(p []byte) (int, error)
	// Offset reports the current write position, used to seed the
	// header-overhead estimate on first render when splitting is enabled.
	Offset() int64
}

// Factory constructs fresh Cluster elements; it is implemented by whatever
// concrete writer is bound to the Helper.
type Factory interface {
	NewCluster() *Cluster
}

// SeekHeadForCues is the optional seek-head collaborator a Matroska writer
// may bind so every rendered cluster is indexed into a global seek head, in
// addition to the cue table Cues already maintains. When unbound, clusters
// are simply not indexed into a seek head; the cue table alone still works.
type SeekHeadForCues interface {
	IndexCluster(cluster *Cluster, segment Segment)
}
