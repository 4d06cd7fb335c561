package cluster

import (
	"encoding/gob"
	"errors"
	"fmt"
	"net/rpc"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

func init() {
	// Concrete types flowing through EventPayload.Data/Metadata, which are
	// declared `any` to carry arbitrary JSON-compatible values (spec §6).
	// gob requires every concrete type sent through an interface field to
	// be registered once, process-wide.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(float64(0))
	gob.Register("")
	gob.Register(true)
}

// sendInterval is the cluster peer's batching cadence (spec §4.4).
const sendInterval = 300 * time.Millisecond

// maxBatch is the maximum number of events coalesced into one outbound
// Publish RPC (spec §4.4).
const maxBatch = 1000

// retryBackoff is the pause after an RPC failure before the next tick
// retries the same, undropped batch (spec §4.4).
const retryBackoff = time.Second

// Peer is a connection to one remote publisher node, with a background
// batching queue that coalesces publishes into bounded chunks (spec §4.4).
type Peer struct {
	address    string
	namespace  string
	sameRegion bool

	clientMu sync.Mutex
	client   *rpc.Client

	queueMu sync.Mutex
	queue   []EventPayload

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewPeer parses a peer endpoint URL of the form
// "tcp://host:port?same_region=true&namespace=tenant", dialing lazily on
// first use. same_region and namespace are parsed once at construction
// (spec §6 "Peer URL query parameter"; original_source/pikav-client parses
// these from the configured URL rather than per-call).
func NewPeer(rawURL string) (*Peer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("cluster: invalid peer url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("cluster: peer url %q has no host:port", rawURL)
	}

	q := u.Query()
	return &Peer{
		address:    u.Host,
		namespace:  q.Get("namespace"),
		sameRegion: q.Get("same_region") == "true",
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}, nil
}

// SameRegion reports whether this peer should receive synchronous
// subscribe/unsubscribe propagation.
func (p *Peer) SameRegion() bool { return p.sameRegion }

// Address returns the peer's dial address.
func (p *Peer) Address() string { return p.address }

// Start launches the background batching worker.
func (p *Peer) Start() {
	go p.sendLoop()
}

// Stop halts the background batching worker.
func (p *Peer) Stop() {
	p.once.Do(func() { close(p.stop) })
	<-p.stopped
}

// Enqueue appends events to this peer's outbound batching queue, to be
// flushed on the next tick.
func (p *Peer) Enqueue(events []EventPayload) {
	p.queueMu.Lock()
	p.queue = append(p.queue, events...)
	p.queueMu.Unlock()
}

// Subscribe issues a synchronous Cluster.Subscribe RPC call.
func (p *Peer) Subscribe(filter, userID, clientID string) error {
	var reply SubscribeReply
	return p.call("Cluster.Subscribe", SubscribeRequest{Filter: filter, UserID: userID, ClientID: clientID}, &reply)
}

// Unsubscribe issues a synchronous Cluster.Unsubscribe RPC call.
func (p *Peer) Unsubscribe(filter, userID, clientID string) error {
	var reply UnsubscribeReply
	return p.call("Cluster.Unsubscribe", UnsubscribeRequest{Filter: filter, UserID: userID, ClientID: clientID}, &reply)
}

// Publish issues a synchronous Cluster.Publish RPC call, bypassing the
// batching queue. Used by the cluster server's one-hop re-propagation
// (spec §4.5), which must forward with propagate=false exactly once and
// does not want namespace-prefix batching delay.
func (p *Peer) Publish(events []EventPayload, propagate bool) error {
	var reply PublishReply
	return p.call("Cluster.Publish", PublishRequest{Propagate: propagate, Events: events}, &reply)
}

func (p *Peer) sendLoop() {
	defer close(p.stopped)

	ticker := time.NewTicker(sendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.flush()
		}
	}
}

func (p *Peer) flush() {
	p.queueMu.Lock()
	n := len(p.queue)
	if n == 0 {
		p.queueMu.Unlock()
		return
	}
	if n > maxBatch {
		n = maxBatch
	}
	batch := make([]EventPayload, n)
	copy(batch, p.queue[:n])
	p.queueMu.Unlock()

	prefixed := make([]EventPayload, len(batch))
	for i, e := range batch {
		if p.namespace != "" {
			e.Topic = p.namespace + "/" + e.Topic
		}
		prefixed[i] = e
	}

	err := p.Publish(prefixed, p.namespace != "")
	if err != nil {
		log.Error().Err(err).Str("peer", p.address).Msg("cluster: publish failed, retrying same batch")
		time.Sleep(retryBackoff)
		return
	}

	p.queueMu.Lock()
	p.queue = p.queue[n:]
	p.queueMu.Unlock()
}

func (p *Peer) call(method string, args, reply any) error {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()

	if p.client == nil {
		client, err := rpc.Dial("tcp", p.address)
		if err != nil {
			return fmt.Errorf("cluster: dial %s: %w", p.address, err)
		}
		p.client = client
	}

	if err := p.client.Call(method, args, reply); err != nil {
		if errors.Is(err, rpc.ErrShutdown) {
			p.client = nil
		}
		return fmt.Errorf("cluster: call %s to %s: %w", method, p.address, err)
	}
	return nil
}
