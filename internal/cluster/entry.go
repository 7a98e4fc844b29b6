package cluster

import (
	"github.com/andradeandrey/mkvmux/internal/ebml"
	"github.com/andradeandrey/mkvmux/internal/packet"
)

// entry is one cluster under construction or already rendered, with its
// ingested packets.
type entry struct {
	cluster      *ebml.Cluster
	packets      []*packet.Packet
	rendered     bool
	isReferenced bool
}
