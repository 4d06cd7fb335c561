// Package cluster implements pikav's binary RPC for horizontal fan-out
// across peer publisher nodes (spec §4.4, §4.5, §6), using the standard
// library's net/rpc and encoding/gob. See DESIGN.md for why this was
// chosen over grpc/protobuf or a NATS-based bus.
package cluster

// SubscribeRequest is the Cluster.Subscribe RPC request (spec §6).
type SubscribeRequest struct {
	Filter   string
	UserID   string
	ClientID string
}

// SubscribeReply is the Cluster.Subscribe RPC reply.
type SubscribeReply struct {
	Success bool
}

// UnsubscribeRequest is the Cluster.Unsubscribe RPC request; same shape as
// SubscribeRequest per spec §6's table.
type UnsubscribeRequest struct {
	Filter   string
	UserID   string
	ClientID string
}

// UnsubscribeReply is the Cluster.Unsubscribe RPC reply.
type UnsubscribeReply struct {
	Success bool
}

// EventPayload is the wire shape of a single event inside a PublishRequest.
// Data and Metadata are JSON-compatible values (spec §6); gob encodes the
// underlying concrete types directly and carries NaN/Infinity through
// unchanged, so SanitizeValue is applied before values reach here to keep
// the NaN/Infinity-to-null rule on the wire.
type EventPayload struct {
	UserID   string
	Topic    string
	Name     string
	Data     any
	Metadata any
}

// PublishRequest is the Cluster.Publish RPC request. Propagate is the
// one-hop anti-cycle flag described in spec §4.5/§9: a receiving node that
// propagates forwards the same request with Propagate=false to its own
// peers, which must not re-propagate.
type PublishRequest struct {
	Propagate bool
	Events    []EventPayload
}

// PublishReply is the Cluster.Publish RPC reply.
type PublishReply struct {
	Success bool
}
