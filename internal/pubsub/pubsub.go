// Package pubsub defines the topic-addressed broadcast contract that the
// Tracker and Ring Manager are built against, and a local in-process
// implementation for tests and single-node use. It is the external
// collaborator described in the registry's transport contract: subscribe,
// broadcast (cluster-wide), and direct_broadcast (single node).
package pubsub

import "context"

// PubSub is the transport the registry is parameterized by.
type PubSub interface {
	// Subscribe begins delivering messages published on topic to the
	// returned channel. The returned cancel func stops delivery and
	// closes no channel the caller doesn't own; callers must keep
	// draining the channel until they call cancel.
	Subscribe(ctx context.Context, topic string) (msgs <-chan []byte, cancel func(), err error)

	// Broadcast delivers payload to every local subscriber on topic, on
	// every node in the cluster.
	Broadcast(ctx context.Context, topic string, payload []byte) error

	// DirectBroadcast delivers payload to every local subscriber on
	// topic on one node only, without a cluster hop. Node id "" means
	// the local node.
	DirectBroadcast(ctx context.Context, targetNode, topic string, payload []byte) error
}
