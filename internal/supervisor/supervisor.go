// Package supervisor owns Dispatch's startup and shutdown order: transport
// is already live by construction, the Ring Manager is built first since
// the Tracker needs it as a collaborator, then the Tracker's actor loop is
// started last so nothing can race its first heartbeat. Shutdown runs in
// the opposite order. Grounded on the teacher's
// internal/daemon/supervisor.Manager: a constructor that wires
// collaborators and registers a goroutine that tears them down on context
// cancellation.
package supervisor

import (
	"context"
	"fmt"

	"github.com/VoiceLayer/dispatch/internal/logging"
	"github.com/VoiceLayer/dispatch/internal/pubsub"
	"github.com/VoiceLayer/dispatch/internal/ringmgr"
	"github.com/VoiceLayer/dispatch/internal/tracker"
)

// Supervisor owns one Tracker and one Ring Manager for a single node.
type Supervisor struct {
	NodeID    string
	Transport pubsub.PubSub
	Ring      *ringmgr.Manager
	Tracker   *tracker.Tracker

	log interface {
		Info(string, ...any)
	}
}

// Options configures the components the supervisor constructs.
type Options struct {
	NodeID            string
	Transport         pubsub.PubSub
	VnodesPerEndpoint int
	TrackerOpts       []tracker.Option
}

// New builds and starts the Ring Manager and Tracker, in that order, and
// returns a handle a caller can later Close.
func New(ctx context.Context, opts Options) (*Supervisor, error) {
	if opts.NodeID == "" {
		return nil, fmt.Errorf("supervisor: NodeID is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("supervisor: Transport is required")
	}

	log := logging.For("supervisor")
	log.Info("starting", "node_id", opts.NodeID)

	ring := ringmgr.NewManager(opts.Transport, opts.VnodesPerEndpoint)

	trk, err := tracker.New(ctx, opts.NodeID, opts.Transport, ring, opts.TrackerOpts...)
	if err != nil {
		return nil, fmt.Errorf("supervisor: start tracker: %w", err)
	}

	s := &Supervisor{
		NodeID:    opts.NodeID,
		Transport: opts.Transport,
		Ring:      ring,
		Tracker:   trk,
		log:       log,
	}

	go func() {
		<-ctx.Done()
		log.Info("stopping", "node_id", opts.NodeID)
		_ = trk.Close()
	}()

	return s, nil
}

// Close stops the Tracker's actor loop and waits for graceful shutdown
// (leave emission, final heartbeat flush) to finish.
func (s *Supervisor) Close() error {
	return s.Tracker.Close()
}
