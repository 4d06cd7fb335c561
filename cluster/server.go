package cluster

import (
	"net"
	"net/rpc"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/timayz/pikav"
	"github.com/timayz/pikav/topic"
)

// Server is the inbound RPC endpoint: it translates Subscribe/Unsubscribe/
// Publish requests into Publisher calls and re-propagates publishes to
// configured peers when asked to (spec §4.5).
type Server struct {
	pub *pikav.Publisher

	peersMu sync.RWMutex
	peers   []*Peer

	listener net.Listener
}

// NewServer constructs a Server bound to pub.
func NewServer(pub *pikav.Publisher) *Server {
	return &Server{pub: pub}
}

// AddPeer registers a peer to receive one-hop re-propagation of inbound
// publishes whose Propagate flag is set.
func (s *Server) AddPeer(p *Peer) {
	s.peersMu.Lock()
	s.peers = append(s.peers, p)
	s.peersMu.Unlock()
}

// Serve registers the RPC receiver and accepts connections on address
// until the listener is closed. It blocks; call in a goroutine.
func (s *Server) Serve(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.ServeListener(ln)
}

// ServeListener registers the RPC receiver and accepts connections on an
// already-bound listener until it is closed. Exposed separately from Serve
// so callers (and tests) can bind an ephemeral port and learn its address
// before the accept loop starts blocking.
func (s *Server) ServeListener(ln net.Listener) error {
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Cluster", (*receiver)(s)); err != nil {
		return err
	}

	s.listener = ln
	log.Info().Str("address", ln.Addr().String()).Msg("cluster: rpc server listening")
	rpcServer.Accept(ln)
	return nil
}

// Close stops accepting new cluster RPC connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// receiver is the type net/rpc actually registers: its exported methods
// are the three RPC methods from spec §6's table. It is a distinct type
// from Server (rather than exporting these methods on Server directly) so
// that Server's own helper methods are not mistaken for RPC-callable
// methods by net/rpc's reflection-based registration.
type receiver Server

func (r *receiver) Subscribe(req SubscribeRequest, reply *SubscribeReply) error {
	f, err := topic.NewFilter(req.Filter)
	if err != nil {
		return err
	}
	if err := (*Server)(r).pub.Subscribe(f, req.UserID, req.ClientID); err != nil {
		return err
	}
	reply.Success = true
	return nil
}

func (r *receiver) Unsubscribe(req UnsubscribeRequest, reply *UnsubscribeReply) error {
	f, err := topic.NewFilter(req.Filter)
	if err != nil {
		return err
	}
	if err := (*Server)(r).pub.Unsubscribe(f, req.UserID, req.ClientID); err != nil {
		return err
	}
	reply.Success = true
	return nil
}

func (r *receiver) Publish(req PublishRequest, reply *PublishReply) error {
	s := (*Server)(r)

	messages := make([]pikav.Message, 0, len(req.Events))
	for _, e := range req.Events {
		name, err := topic.NewName(e.Topic)
		if err != nil {
			log.Warn().Str("topic", e.Topic).Err(err).Msg("cluster: dropping event with invalid topic")
			continue
		}
		messages = append(messages, pikav.Message{
			UserID: e.UserID,
			Event:  pikav.Event{Topic: name, Name: e.Name, Data: e.Data, Metadata: e.Metadata},
		})
	}
	s.pub.Publish(messages)

	if req.Propagate {
		s.repropagate(req.Events)
	}

	reply.Success = true
	return nil
}

// repropagate forwards events to every configured peer with Propagate set
// to false, the one-hop anti-cycle flag from spec §4.5/§9: a peer that
// receives this forwarded request must not forward it again.
func (s *Server) repropagate(events []EventPayload) {
	s.peersMu.RLock()
	peers := make([]*Peer, len(s.peers))
	copy(peers, s.peers)
	s.peersMu.RUnlock()

	for _, p := range peers {
		if err := p.Publish(events, false); err != nil {
			log.Error().Err(err).Str("peer", p.Address()).Msg("cluster: re-propagation failed")
		}
	}
}
