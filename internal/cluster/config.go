package cluster

import "github.com/andradeandrey/mkvmux/internal/ebml"

// Config is the Cluster Helper's configuration surface.
type Config struct {
	// Scale is the TimecodeScale: nanoseconds per tick.
	Scale uint64
	// MaxNsPerCluster bounds how much wallclock a cluster may span before
	// it is rendered and a new one opened (typically 5_000_000_000).
	MaxNsPerCluster int64
	// MaxBlocksPerCluster is the hard packet-count cap per cluster
	// (typically 65535).
	MaxBlocksPerCluster uint32

	UseDurations   bool
	UseSimpleBlock bool
	Lacing         ebml.LacingType

	WriteCues bool

	NoLinking        bool
	SplitMaxNumFiles uint32
}

// maxClusterPayloadBytes is the hard Matroska cluster payload cap.
const maxClusterPayloadBytes = 1_500_000
