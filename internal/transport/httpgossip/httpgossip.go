// Package httpgossip is the cluster-spanning PubSub implementation: every
// node runs a small HTTP server and POSTs JSON envelopes to its peers,
// mirroring the teacher's corrosion.go client (POST a JSON body, decode a
// JSON response, wrap transport errors with context) rather than reaching
// for gRPC — there is no protoc step in this build to keep a hand-written
// wire format honest.
package httpgossip

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/VoiceLayer/dispatch/internal/logging"
	"github.com/VoiceLayer/dispatch/internal/pubsub"
)

// Transport fans broadcasts out to a configured peer list over HTTP and
// delivers received envelopes to local subscribers via an embedded
// pubsub.Local, the same local fan-out primitive DirectBroadcast uses.
type Transport struct {
	selfNode string
	local    *pubsub.Local
	client   *http.Client
	log      interface {
		Warn(string, ...any)
	}

	mu    sync.RWMutex
	peers map[string]string // node_id -> base URL, e.g. "http://10.0.0.2:7946"

	server *http.Server
}

type envelope struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

// New creates a transport for selfNode. peers maps every other cluster
// member's node id to its base HTTP URL.
func New(selfNode string, peers map[string]string) *Transport {
	peerCopy := make(map[string]string, len(peers))
	for k, v := range peers {
		peerCopy[k] = v
	}
	return &Transport{
		selfNode: selfNode,
		local:    pubsub.NewLocal(selfNode),
		client:   &http.Client{Timeout: 5 * time.Second},
		log:      logging.For("httpgossip"),
		peers:    peerCopy,
	}
}

// SetPeers replaces the peer address table, e.g. after membership changes
// discovered through some out-of-band bootstrap mechanism.
func (t *Transport) SetPeers(peers map[string]string) {
	peerCopy := make(map[string]string, len(peers))
	for k, v := range peers {
		peerCopy[k] = v
	}
	t.mu.Lock()
	t.peers = peerCopy
	t.mu.Unlock()
}

// ListenAndServe starts the HTTP server accepting peer envelopes at
// addr, blocking until ctx is cancelled or the server fails.
func (t *Transport) ListenAndServe(ctx context.Context, addr string) error {
	t.server = &http.Server{Addr: addr, Handler: t.mux()}

	errCh := make(chan error, 1)
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// mux builds the handler tree accepting peer envelopes; split out from
// ListenAndServe so tests can drive it with httptest.NewServer without
// binding a real listen address.
func (t *Transport) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/dispatch/envelope", t.handleEnvelope)
	return mux
}

func (t *Transport) handleEnvelope(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "decode envelope", http.StatusBadRequest)
		return
	}
	// Deliver to local subscribers only; never re-broadcast to the
	// cluster, or every peer would loop the message forever.
	_ = t.local.Broadcast(r.Context(), env.Topic, env.Payload)
	w.WriteHeader(http.StatusNoContent)
}

// Subscribe delegates to the embedded local broker.
func (t *Transport) Subscribe(ctx context.Context, topic string) (<-chan []byte, func(), error) {
	return t.local.Subscribe(ctx, topic)
}

// Broadcast delivers payload to local subscribers and POSTs it to every
// known peer.
func (t *Transport) Broadcast(ctx context.Context, topic string, payload []byte) error {
	if err := t.local.Broadcast(ctx, topic, payload); err != nil {
		return err
	}

	t.mu.RLock()
	addrs := make([]string, 0, len(t.peers))
	for _, addr := range t.peers {
		addrs = append(addrs, addr)
	}
	t.mu.RUnlock()

	for _, addr := range addrs {
		if err := t.post(ctx, addr, topic, payload); err != nil {
			// Non-fatal: the caller's next heartbeat tick retries with
			// current full state.
			t.log.Warn("broadcast to peer failed", "addr", addr, "err", err)
		}
	}
	return nil
}

// DirectBroadcast delivers payload to a single node: locally if targetNode
// is "" or selfNode, over HTTP to that one peer otherwise.
func (t *Transport) DirectBroadcast(ctx context.Context, targetNode, topic string, payload []byte) error {
	if targetNode == "" || targetNode == t.selfNode {
		return t.local.Broadcast(ctx, topic, payload)
	}

	t.mu.RLock()
	addr, ok := t.peers[targetNode]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("httpgossip: unknown peer node %q", targetNode)
	}
	return t.post(ctx, addr, topic, payload)
}

func (t *Transport) post(ctx context.Context, addr, topic string, payload []byte) error {
	body, err := json.Marshal(envelope{Topic: topic, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/dispatch/envelope", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create envelope request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post envelope: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("post envelope: status %d: %s", resp.StatusCode, data)
	}
	return nil
}
