package cluster

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timayz/pikav"
)

func startServer(t *testing.T, pub *pikav.Publisher) (*Server, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(pub)
	go srv.ServeListener(ln)
	t.Cleanup(func() { srv.Close() })

	return srv, ln.Addr().String()
}

func TestPeer_SubscribeUnsubscribe_RoundTrip(t *testing.T) {
	pub := pikav.NewPublisher()
	_, addr := startServer(t, pub)

	s, _, err := pub.CreateSession()
	require.NoError(t, err)

	peer, err := NewPeer("tcp://" + addr)
	require.NoError(t, err)

	require.NoError(t, peer.Subscribe("a/b", "alice", s.ID()))
	require.Eventually(t, func() bool {
		return s.FilterCount() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, peer.Unsubscribe("a/b", "alice", s.ID()))
	require.Eventually(t, func() bool {
		return s.FilterCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestPeer_NewPeer_ParsesSameRegionAndNamespace(t *testing.T) {
	p, err := NewPeer("tcp://127.0.0.1:9999?same_region=true&namespace=tenant1")
	require.NoError(t, err)
	assert.True(t, p.SameRegion())
	assert.Equal(t, "127.0.0.1:9999", p.Address())
	assert.Equal(t, "tenant1", p.namespace)

	p2, err := NewPeer("tcp://127.0.0.1:9999")
	require.NoError(t, err)
	assert.False(t, p2.SameRegion())
}

func TestPeer_NewPeer_RejectsMissingHost(t *testing.T) {
	_, err := NewPeer("not-a-url")
	assert.Error(t, err)
}

// Scenario 6: cluster propagate fan-out to peers without re-propagation.
func TestServer_Publish_RepropagatesOneHop(t *testing.T) {
	// Node A is the node under test; B and C are its peers.
	pubB := pikav.NewPublisher()
	_, addrB := startServer(t, pubB)
	pubC := pikav.NewPublisher()
	_, addrC := startServer(t, pubC)

	pubA := pikav.NewPublisher()
	srvA := NewServer(pubA)

	peerB, err := NewPeer("tcp://" + addrB)
	require.NoError(t, err)
	peerC, err := NewPeer("tcp://" + addrC)
	require.NoError(t, err)
	srvA.AddPeer(peerB)
	srvA.AddPeer(peerC)

	sessionB, recvB, err := pubB.CreateSession()
	require.NoError(t, err)
	<-recvB // drain bootstrap
	require.NoError(t, pubB.SubscribeString("a/b", "alice", sessionB.ID()))

	sessionC, recvC, err := pubC.CreateSession()
	require.NoError(t, err)
	<-recvC // drain bootstrap
	require.NoError(t, pubC.SubscribeString("a/b", "alice", sessionC.ID()))

	sessionA, recvA, err := pubA.CreateSession()
	require.NoError(t, err)
	<-recvA // drain bootstrap
	require.NoError(t, pubA.SubscribeString("a/b", "alice", sessionA.ID()))

	receiver := (*receiver)(srvA)
	req := PublishRequest{
		Propagate: true,
		Events: []EventPayload{
			{UserID: "alice", Topic: "a/b", Name: "Created", Data: "hello"},
		},
	}
	var reply PublishReply
	require.NoError(t, receiver.Publish(req, &reply))
	assert.True(t, reply.Success)

	// A delivers locally.
	select {
	case <-recvA:
	case <-time.After(time.Second):
		t.Fatal("expected local delivery on node A")
	}

	// B and C each receive the forwarded publish exactly once, delivered
	// through their own local publisher just as if a producer had called
	// them directly. Neither forwards further, since the request they
	// receive carries Propagate=false.
	select {
	case <-recvB:
	case <-time.After(time.Second):
		t.Fatal("expected node B to receive the repropagated publish")
	}
	select {
	case <-recvC:
	case <-time.After(time.Second):
		t.Fatal("expected node C to receive the repropagated publish")
	}

	assert.Equal(t, 1, sessionB.FilterCount())
	assert.Equal(t, 1, sessionC.FilterCount())
}

func TestServer_Publish_InvalidTopicIsDroppedNotFatal(t *testing.T) {
	pub := pikav.NewPublisher()
	srv := NewServer(pub)
	r := (*receiver)(srv)

	req := PublishRequest{Events: []EventPayload{{UserID: "alice", Topic: "bad+topic", Name: "X"}}}
	var reply PublishReply
	err := r.Publish(req, &reply)
	require.NoError(t, err, "an invalid event topic is dropped, not a fatal RPC error")
	assert.True(t, reply.Success)
}
