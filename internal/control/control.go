// Package control exposes a thin JSON-RPC 2.0 admin/control plane over the
// Cluster Helper's packetizer-facing entry points: a net/rpc server
// registered over a websocket transport and encoded with jsonrpc2.
//
// This plane is not a replacement for the packetizer contract; it is a thin
// operational window onto it (registering split points, forcing renders,
// reading diagnostics) for operators and test harnesses.
package control

import (
	"net/rpc"
	"sync"

	"github.com/powerman/rpc-codec/jsonrpc2"
	"golang.org/x/net/websocket"

	"github.com/andradeandrey/mkvmux/internal/cluster"
	"github.com/andradeandrey/mkvmux/internal/feed"
	"github.com/andradeandrey/mkvmux/internal/splitpoint"
)

// Server wraps a *cluster.Helper so its entry points can be driven over RPC.
// Helper's methods assume a single caller; the mutex serializes concurrent
// RPC connections. No dedicated goroutine is needed since the Helper has no
// internal background work to coordinate with.
type Server struct {
	mutex sync.Mutex
	core  *cluster.Helper
	feed  *feed.Feed
}

// NewServer binds an admin/control plane to core, publishing one feed.Event
// per rendered cluster to monitors connected through Monitor.
func NewServer(core *cluster.Helper, f *feed.Feed) *Server {
	return &Server{core: core, feed: f}
}

// AddSplitPointArgs mirrors splitpoint.Point's wire-friendly fields.
type AddSplitPointArgs struct {
	Value   int64
	Type    int
	UseOnce bool
}

// AddSplitPoint registers a new split trigger.
func (s *Server) AddSplitPoint(args *AddSplitPointArgs, _ *struct{}) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.core.AddSplitPoint(splitpoint.Point{
		Value:   args.Value,
		Type:    splitpoint.Type(args.Type),
		UseOnce: args.UseOnce,
	})
	return nil
}

// RenderArgs carries Render's single boolean parameter.
type RenderArgs struct {
	Flush bool
}

// RenderReply reports whether a cluster was actually rendered.
type RenderReply struct {
	Rendered bool
}

// Render forces a render of the active cluster. When that render writes a
// non-empty cluster, one feed.Event is published to connected monitors.
func (s *Server) Render(args *RenderArgs, reply *RenderReply) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	pending := s.core.PacketCount()
	rendered, err := s.core.Render(args.Flush)
	if err != nil {
		return err
	}
	reply.Rendered = rendered
	if rendered && pending > 0 && s.feed != nil {
		stats := s.core.LastRenderStats()
		s.feed.Publish(feed.Event{
			GlobalTimecode: int64(stats.GlobalTimecode),
			Bytes:          stats.Bytes,
			Blocks:         stats.Blocks,
			SplitFollowed:  stats.SplitFollowed,
		})
	}
	return nil
}

// GetDuration returns the muxed duration of the current output file.
func (s *Server) GetDuration(_ *struct{}, reply *int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	*reply = int64(s.core.GetDuration())
	return nil
}

// StatusReply is the read-only diagnostic snapshot the admin plane exposes
// alongside the AddSplitPoint, Render and GetDuration entry points.
type StatusReply struct {
	ClusterCount   int
	PendingPackets int
	ViewerCount    int
}

// Status reports cluster count and pending packet count for the active
// cluster, plus the number of feed viewers currently connected.
func (s *Server) Status(_ *struct{}, reply *StatusReply) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	reply.ClusterCount = s.core.ClusterCount()
	reply.PendingPackets = s.core.PacketCount()
	if s.feed != nil {
		reply.ViewerCount = s.feed.ViewerCount()
	}
	return nil
}

// RunRPC serves the admin RPC protocol over ws until the connection closes.
func (s *Server) RunRPC(ws *websocket.Conn) {
	server := rpc.NewServer()
	server.RegisterName("Mux", s)
	server.ServeCodec(jsonrpc2.NewServerCodec(ws, server))
}

// PushClusterEvent forwards one feed.Event to ws as a JSON-RPC notification.
func PushClusterEvent(ws *websocket.Conn, ev feed.Event) error {
	return websocket.JSON.Send(ws, map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "Mux.ClusterRendered",
		"params": []interface{}{
			ev.GlobalTimecode, ev.Bytes, ev.Blocks, ev.SplitFollowed,
		},
	})
}

// Monitor relays every event published on f to ws until the connection or
// the done channel closes.
func Monitor(ws *websocket.Conn, f *feed.Feed, done <-chan struct{}) {
	ch := make(chan feed.Event, 16)
	f.Connect(ch)
	defer f.Disconnect(ch)

	for {
		select {
		case ev := <-ch:
			if err := PushClusterEvent(ws, ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
