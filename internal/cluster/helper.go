// Package cluster implements the Cluster Helper: the orchestrator that
// groups ingested packets into Matroska clusters, decides cluster and file
// boundaries, drives per-track render groups, maintains the cue table, and
// garbage-collects clusters once every reference into them is resolved.
package cluster

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/andradeandrey/mkvmux/internal/ebml"
	"github.com/andradeandrey/mkvmux/internal/mxlog"
	"github.com/andradeandrey/mkvmux/internal/packet"
	"github.com/andradeandrey/mkvmux/internal/rendergroup"
	"github.com/andradeandrey/mkvmux/internal/splitpoint"
)

// FileBoundary is the optional hook a multi-file writer implements so the
// Cluster Helper can finish the current output file and open the next one
// when a split point fires. When no FileBoundary is bound, splitting still
// occurs at the cluster level (a new cluster is opened, counters reset) but
// the output writer is left unchanged, which suits single-file output.
type FileBoundary interface {
	FinishFile() error
	CreateNextOutputFile() (ebml.Writer, error)
}

// Helper is the Cluster Helper.
type Helper struct {
	cfg     Config
	factory ebml.Factory
	segment ebml.Segment
	cues    ebml.Cues
	out     ebml.Writer

	fileBoundary    FileBoundary
	seekHeadForCues ebml.SeekHeadForCues

	clusters           []*entry
	clusterContentSize int64

	minTimecodeInCluster packet.Timecode
	maxTimecodeInCluster packet.Timecode
	lastClusterTC        packet.Timecode

	numCueElements int
	headerOverhead int64
	tagsSize       int64

	packetNum uint64

	timecodeOffset         packet.Timecode
	firstTimecodeInFile    packet.Timecode
	bytesInFile            int64
	maxTimecodeAndDuration packet.Timecode

	splitPoints splitpoint.List
	fileNum     uint32
	segmentUID  uuid.UUID

	hasVideoTrack bool

	log *mxlog.Logger

	splitFollowsNextRender bool
	lastRender             RenderStats
}

// RenderStats summarizes the most recently completed renderCluster call, for
// admin/monitoring surfaces that want to publish a notification per rendered
// cluster without duplicating the Cluster Helper's own bookkeeping.
type RenderStats struct {
	GlobalTimecode packet.Timecode
	Bytes          uint64
	Blocks         int
	SplitFollowed  bool
}

// LastRenderStats reports RenderStats for the most recent successful
// renderCluster call, for admin/diagnostic surfaces.
func (h *Helper) LastRenderStats() RenderStats { return h.lastRender }

// New constructs a Cluster Helper bound to factory (for constructing new
// EBML clusters), segment (the enclosing Matroska Segment, threaded through
// to each cluster) and cues (the shared cue/index table accumulated across
// the whole output).
func New(cfg Config, factory ebml.Factory, segment ebml.Segment, cues ebml.Cues) *Helper {
	return &Helper{
		cfg:                  cfg,
		factory:              factory,
		segment:              segment,
		cues:                 cues,
		minTimecodeInCluster: -1,
		maxTimecodeInCluster: -1,
		headerOverhead:       -1,
		firstTimecodeInFile:  -1,
		fileNum:              1,
		segmentUID:           uuid.New(),
	}
}

// SetLogger binds the verbosity-gated trace logger. A nil logger (the
// default) disables tracing entirely.
func (h *Helper) SetLogger(l *mxlog.Logger) { h.log = l }

// SegmentUID returns the unique identifier of the output file currently
// being written. A fresh UID is generated for each file opened by a split,
// so players and tools can tell the resulting segments apart.
func (h *Helper) SegmentUID() uuid.UUID { return h.segmentUID }

// SetOutput binds the byte sink subsequent Render calls write into.
func (h *Helper) SetOutput(w ebml.Writer) { h.out = w }

// SetFileBoundary binds the optional multi-file split hook.
func (h *Helper) SetFileBoundary(fb FileBoundary) { h.fileBoundary = fb }

// SetSeekHeadForCues binds the optional global seek-head collaborator; when
// bound, every rendered non-empty cluster is also indexed into it. Unbound
// by default.
func (h *Helper) SetSeekHeadForCues(sh ebml.SeekHeadForCues) { h.seekHeadForCues = sh }

// SetTagsSize records the fixed byte cost of container-level elements
// written before the first cluster (e.g. Tags), used to seed the
// header-overhead estimate on first render when splitting is enabled.
func (h *Helper) SetTagsSize(n int64) { h.tagsSize = n }

// AddSplitPoint registers a new split trigger; multiple are allowed.
func (h *Helper) AddSplitPoint(p splitpoint.Point) { h.splitPoints.Add(p) }

// GetDuration returns the span from the first timecode of the current file
// to the highest timecode-plus-duration seen so far.
func (h *Helper) GetDuration() packet.Timecode {
	return h.maxTimecodeAndDuration - h.firstTimecodeInFile
}

// ClusterCount reports how many clusters (rendered and pending) are
// currently retained, for admin/diagnostic surfaces.
func (h *Helper) ClusterCount() int { return len(h.clusters) }

// BytesInFile reports the running total of rendered cluster sizes since the
// last file boundary, for admin/diagnostic surfaces.
func (h *Helper) BytesInFile() int64 { return h.bytesInFile }

// FileNum reports the 1-based index of the output file currently being
// written, for admin/diagnostic surfaces.
func (h *Helper) FileNum() uint32 { return h.fileNum }

// PacketCount returns the number of packets ingested into the active
// cluster, or -1 if there is no active cluster.
func (h *Helper) PacketCount() int {
	e := h.active()
	if e == nil {
		return -1
	}
	return len(e.packets)
}

// Packet returns the num-th packet of the active cluster; ok is true iff
// num is a valid index into it.
func (h *Helper) Packet(num int) (*packet.Packet, bool) {
	e := h.active()
	if e == nil || num < 0 || num >= len(e.packets) {
		return nil, false
	}
	return e.packets[num], true
}

func (h *Helper) active() *entry {
	if len(h.clusters) == 0 {
		return nil
	}
	return h.clusters[len(h.clusters)-1]
}

func (h *Helper) addCluster() *entry {
	c := h.factory.NewCluster()
	c.SetParent(h.segment)
	c.SetPreviousTimecode(h.lastClusterTC, h.cfg.Scale)
	e := &entry{cluster: c}
	h.clusters = append(h.clusters, e)
	h.clusterContentSize = 0
	return e
}

func (h *Helper) getTimecode() packet.Timecode {
	e := h.active()
	if e == nil || len(e.packets) == 0 {
		return 0
	}
	return e.packets[0].AssignedTimecode
}

func (h *Helper) splitting() bool { return h.splitPoints.Len() > 0 }

// AddPacket is the packetizer-facing ingestion entry point: it rounds the
// packet's timecodes, decides cluster and file boundaries, and inserts the
// packet into the active cluster.
func (h *Helper) AddPacket(pkt *packet.Packet) error {
	pkt.RoundTimecodes(h.cfg.Scale)

	timecode := h.getTimecode()

	h.log.Verbosef(4, "cluster helper: new packet { timecode: %d duration: %d bref: %d fref: %d assigned: %d }",
		pkt.Timecode, pkt.Duration, pkt.BRef, pkt.FRef, pkt.AssignedTimecode)

	hi := pkt.AssignedTimecode
	if h.maxTimecodeInCluster != -1 && h.maxTimecodeInCluster >= pkt.AssignedTimecode {
		hi = h.maxTimecodeInCluster
	}
	lo := pkt.AssignedTimecode
	if h.minTimecodeInCluster != -1 && h.minTimecodeInCluster <= pkt.AssignedTimecode {
		lo = h.minTimecodeInCluster
	}
	var timecodeDelayTicks int64
	if h.cfg.Scale != 0 {
		timecodeDelayTicks = int64(hi-lo) / int64(h.cfg.Scale)
	}

	if len(h.clusters) == 0 {
		h.addCluster()
	} else if timecodeDelayTicks > 32767 || timecodeDelayTicks < -32768 ||
		(len(h.active().packets) != 0 && h.active().packets[len(h.active().packets)-1].GapFollowing) ||
		(int64(pkt.AssignedTimecode-timecode) > h.cfg.MaxNsPerCluster && h.allReferencesResolved(h.active())) {
		if err := h.renderActive(); err != nil {
			return err
		}
		h.addCluster()
	}

	if h.splitting() && !h.splitPoints.Exhausted() && h.fileNum <= h.cfg.SplitMaxNumFiles &&
		!pkt.HasBRef() && (pkt.Source.TrackType() == packet.TrackVideo || !h.hasVideoTrack) {

		pt, _ := h.splitPoints.Current()
		split := false
		active := h.active()

		switch pt.Type {
		case splitpoint.Size:
			var additionalSize int64
			if len(active.packets) > 0 {
				additionalSize = 21
				for _, p := range active.packets {
					additionalSize += int64(p.Data.Size())
					switch {
					case !p.HasBRef():
						additionalSize += 10
					case !p.HasFRef():
						additionalSize += 13
					default:
						additionalSize += 16
					}
				}
			}
			if h.numCueElements > 0 {
				additionalSize += int64(h.cues.ElementSize())
			}
			h.log.Verbosef(3, "cluster helper split decision: headerOverhead %d, additionalSize %d, bytesInFile %d, sum %d",
				h.headerOverhead, additionalSize, h.bytesInFile, h.headerOverhead+additionalSize+h.bytesInFile)
			if h.headerOverhead+additionalSize+h.bytesInFile >= pt.Value {
				split = true
			}
		case splitpoint.Duration:
			if h.firstTimecodeInFile >= 0 && int64(pkt.AssignedTimecode-h.firstTimecodeInFile) >= pt.Value {
				split = true
			}
		case splitpoint.TimecodeWallclock:
			if int64(pkt.AssignedTimecode) >= pt.Value {
				split = true
			}
		}

		if split {
			h.splitFollowsNextRender = true
			if err := h.renderActive(); err != nil {
				return err
			}
			h.numCueElements = 0

			if h.fileBoundary != nil {
				if err := h.fileBoundary.FinishFile(); err != nil {
					return errors.Wrap(err, "finish file")
				}
				w, err := h.fileBoundary.CreateNextOutputFile()
				if err != nil {
					return errors.Wrap(err, "create next output file")
				}
				h.out = w
				h.fileNum++
			}
			h.segmentUID = uuid.New()
			h.log.Infof("splitting output at timecode %d, starting file %d", pkt.AssignedTimecode, h.fileNum)
			if h.cfg.NoLinking {
				h.lastClusterTC = 0
			}
			h.addCluster()

			h.bytesInFile = 0
			h.firstTimecodeInFile = -1

			if h.cfg.NoLinking {
				h.timecodeOffset = pkt.AssignedTimecode
			}

			if pt.UseOnce {
				h.splitPoints.Advance()
			}
		}
	}

	if pkt.Source.TrackType() == packet.TrackVideo {
		h.hasVideoTrack = true
	}

	pkt.PacketNum = h.packetNum
	h.packetNum++

	active := h.active()
	active.packets = append(active.packets, pkt)
	h.clusterContentSize += int64(pkt.Data.Size())

	if h.minTimecodeInCluster == -1 || pkt.AssignedTimecode < h.minTimecodeInCluster {
		h.minTimecodeInCluster = pkt.AssignedTimecode
	}
	if pkt.AssignedTimecode > h.maxTimecodeInCluster {
		h.maxTimecodeInCluster = pkt.AssignedTimecode
	}

	timecode = h.getTimecode()
	if (int64(pkt.AssignedTimecode-timecode) > h.cfg.MaxNsPerCluster ||
		len(active.packets) > int(h.cfg.MaxBlocksPerCluster) ||
		h.clusterContentSize > maxClusterPayloadBytes) &&
		h.allReferencesResolved(active) {
		if err := h.renderActive(); err != nil {
			return err
		}
		h.addCluster()
	}

	return nil
}

func (h *Helper) renderActive() error {
	e := h.active()
	if e == nil {
		return nil
	}
	return h.renderCluster(e)
}

// Render forces a render of the active cluster. flush is accepted for
// interface completeness but does not change this function's behavior.
func (h *Helper) Render(flush bool) (bool, error) {
	if len(h.clusters) == 0 {
		return false, nil
	}
	if err := h.renderCluster(h.clusters[len(h.clusters)-1]); err != nil {
		return false, err
	}
	return true, nil
}

func (h *Helper) renderCluster(e *entry) error {
	if e.rendered {
		panic("cluster: render called on an already-rendered cluster")
	}
	if h.out == nil {
		return ErrWriterNotSet
	}

	if h.headerOverhead == -1 && h.splitting() {
		h.headerOverhead = h.out.Offset() + h.tagsSize
	}

	rgCfg := rendergroup.Config{
		Scale:          h.cfg.Scale,
		UseDurations:   h.cfg.UseDurations,
		UseSimpleBlock: h.cfg.UseSimpleBlock,
		Lacing:         h.cfg.Lacing,
	}

	groups := map[packet.TrackRef]*rendergroup.Group{}
	var groupOrder []*rendergroup.Group
	cueAddedForHandle := map[ebml.BlockHandle]bool{}

	var maxClTimecode packet.Timecode

	for i, pkt := range e.packets {
		if pkt.Source.ContainsGap() {
			e.cluster.SetSilentTrackUsed()
		}

		g, ok := groups[pkt.Source]
		if !ok {
			g = rendergroup.New(pkt.Source)
			groups[pkt.Source] = g
			groupOrder = append(groupOrder, g)
		}

		if i == 0 {
			e.cluster.SetMinTimecode(pkt.AssignedTimecode - h.timecodeOffset)
		}
		maxClTimecode = pkt.AssignedTimecode

		hasCodecState := pkt.CodecState != nil

		handle, isNew := g.Append(e.cluster, pkt, h.timecodeOffset, rgCfg)
		if isNew {
			cueAddedForHandle[handle] = false
		}

		if h.firstTimecodeInFile == -1 {
			h.firstTimecodeInFile = pkt.AssignedTimecode
		}
		if pkt.AssignedTimecode+pkt.Duration > h.maxTimecodeAndDuration {
			h.maxTimecodeAndDuration = pkt.AssignedTimecode + pkt.Duration
		}

		if h.cfg.WriteCues && (!cueAddedForHandle[handle] || hasCodecState) && h.shouldAddCue(pkt, hasCodecState) {
			h.cues.AddBlockBlob(handle)
			h.numCueElements++
			pkt.Source.SetLastCueTimecode(pkt.AssignedTimecode)
			cueAddedForHandle[handle] = true
		}

		pkt.Group = handle
	}

	if len(e.packets) > 0 {
		for _, g := range groupOrder {
			g.Flush(rgCfg)
		}
		e.cluster.SetMaxTimecode(maxClTimecode - h.timecodeOffset)

		size, err := e.cluster.Render(h.out, h.cues)
		if err != nil {
			return errors.Wrap(err, "render cluster")
		}
		h.bytesInFile += int64(size)
		h.lastClusterTC = e.cluster.GlobalTimecode()

		if h.seekHeadForCues != nil {
			h.seekHeadForCues.IndexCluster(e.cluster, h.segment)
		}

		blocks := 0
		for _, g := range groupOrder {
			blocks += len(g.Handles)
		}
		h.lastRender = RenderStats{
			GlobalTimecode: h.lastClusterTC,
			Bytes:          size,
			Blocks:         blocks,
			SplitFollowed:  h.splitFollowsNextRender,
		}
	} else {
		h.lastClusterTC = 0
	}

	for _, pkt := range e.packets {
		pkt.Data = nil
	}

	e.rendered = true
	h.splitFollowsNextRender = false

	if err := h.freeClusters(); err != nil {
		return err
	}

	h.minTimecodeInCluster = -1
	h.maxTimecodeInCluster = -1

	return nil
}

func (h *Helper) shouldAddCue(pkt *packet.Packet, hasCodecState bool) bool {
	strategy := pkt.Source.CueCreation()
	switch {
	case strategy == packet.CueIFrames && !pkt.HasBRef():
		return true
	case hasCodecState:
		return true
	case strategy == packet.CueAll:
		return true
	case strategy == packet.CueSparse && pkt.Source.TrackType() == packet.TrackAudio && !h.hasVideoTrack &&
		(pkt.Source.LastCueTimecode() < 0 || pkt.AssignedTimecode-pkt.Source.LastCueTimecode() >= 2_000_000_000):
		return true
	}
	return false
}

func (h *Helper) allReferencesResolved(e *entry) bool {
	for _, p := range e.packets {
		if p.HasBRef() && h.findPacket(p.BRef, p.Source) == nil {
			return false
		}
		if p.HasFRef() && h.findPacket(p.FRef, p.Source) == nil {
			return false
		}
	}
	return true
}

func (h *Helper) findPacket(refTimecode packet.Timecode, source packet.TrackRef) *packet.Packet {
	tolerance := source.ReferenceTimecodeTolerance()
	if tolerance == 0 {
		tolerance = 10_000
	}
	for _, e := range h.clusters {
		for _, p := range e.packets {
			if p.Source == source && absTimecode(p.Timecode-refTimecode) <= tolerance {
				return p
			}
		}
	}
	return nil
}

func (h *Helper) findPacketCluster(refTimecode packet.Timecode, source packet.TrackRef) *entry {
	tolerance := source.ReferenceTimecodeTolerance()
	if tolerance == 0 {
		tolerance = 10_000
	}
	for _, e := range h.clusters {
		for _, p := range e.packets {
			if p.Source == source && absTimecode(p.Timecode-refTimecode) <= tolerance {
				return e
			}
		}
	}
	return nil
}

// freeClusters is the reference-GC pass run after every render: mark
// superseeded packets, mark referenced clusters, drop rendered clusters
// nothing references anymore, and guarantee at least one cluster remains
// open.
func (h *Helper) freeClusters() error {
	if len(h.clusters) == 0 {
		return nil
	}

	for _, e := range h.clusters {
		e.isReferenced = false
	}

	for _, e := range h.clusters {
		for _, p := range e.packets {
			if p.Source.FreeRefs() > p.Timecode {
				p.Superseeded = true
			}
		}
	}

	for _, e := range h.clusters {
		for _, p := range e.packets {
			if p.Superseeded {
				continue
			}
			e.isReferenced = true
			if !p.HasBRef() {
				continue
			}
			refCluster := h.findPacketCluster(p.BRef, p.Source)
			if refCluster == nil {
				return errors.Wrapf(ErrUnresolvedReference, "timecode=%d bref=%d", p.Timecode, p.BRef)
			}
			refCluster.isReferenced = true
		}
	}

	kept := 0
	var newClusters []*entry
	for _, e := range h.clusters {
		if !e.rendered || e.isReferenced {
			kept++
			newClusters = append(newClusters, e)
		}
	}
	h.log.Verbosef(4, "cluster helper: freed %d of %d clusters", len(h.clusters)-kept, len(h.clusters))

	if kept == 0 {
		h.clusters = nil
		h.addCluster()
	} else {
		h.clusters = newClusters
	}

	return nil
}

// checkClusters verifies that every live back-reference still resolves to a
// retained packet. It is a debugging aid for the reference-retention
// machinery, exercised by tests rather than the ingestion hot path; a
// failure means the retention policy dropped a referent too early.
func (h *Helper) checkClusters() error {
	for _, e := range h.clusters {
		for _, p := range e.packets {
			if e.rendered && p.Superseeded {
				continue
			}
			if !p.HasBRef() {
				continue
			}
			if h.findPacketCluster(p.BRef, p.Source) == nil {
				return errors.Wrapf(ErrUnresolvedReference, "timecode=%d bref=%d", p.Timecode, p.BRef)
			}
		}
	}
	return nil
}

func absTimecode(t packet.Timecode) packet.Timecode {
	if t < 0 {
		return -t
	}
	return t
}
