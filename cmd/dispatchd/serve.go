package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/VoiceLayer/dispatch"
	"github.com/VoiceLayer/dispatch/internal/transport/httpgossip"
)

func serveCmd() *cobra.Command {
	var configPath string
	var debugAddr string
	var demoType string
	var demoHandle string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a Dispatch node, gossiping presence with its configured peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fc, err := loadFileConfig(configPath)
			if err != nil {
				return err
			}
			log := slog.With("component", "dispatchd", "node_id", fc.NodeID)

			gossip := httpgossip.New(fc.NodeID, fc.Peers)
			reg, err := dispatch.New(ctx, fc.NodeID, gossip, fc.registryConfig())
			if err != nil {
				return fmt.Errorf("start registry: %w", err)
			}
			defer reg.Close()

			if demoType != "" {
				if _, err := reg.AddService(ctx, dispatch.ServiceType(demoType), []byte(demoHandle), nil); err != nil {
					return fmt.Errorf("register demo service: %w", err)
				}
				log.Info("registered demo service", "type", demoType, "handle", demoHandle)
			}

			debugSrv := &http.Server{Addr: debugAddr, Handler: newDebugAPI(reg)}
			go func() {
				log.Info("debug API listening", "addr", debugAddr)
				if err := debugSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("debug API failed", "err", err)
				}
			}()

			log.Info("gossip transport listening", "addr", fc.ListenAddr)
			errCh := make(chan error, 1)
			go func() { errCh <- gossip.ListenAndServe(ctx, fc.ListenAddr) }()

			select {
			case <-ctx.Done():
				log.Info("shutting down")
				_ = debugSrv.Shutdown(context.Background())
				return nil
			case err := <-errCh:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "dispatchd.yaml", "Path to the node's config file")
	cmd.Flags().StringVar(&debugAddr, "debug-addr", ":7947", "Debug HTTP API listen address")
	cmd.Flags().StringVar(&demoType, "demo-type", "", "If set, register a demo service of this type on start")
	cmd.Flags().StringVar(&demoHandle, "demo-handle", "demo", "Local handle for the demo service")
	return cmd
}

// debugEntry is the debug API's JSON shape for a presence entry.
type debugEntry struct {
	NodeID      string `json:"node_id"`
	LocalHandle string `json:"local_handle"`
	State       string `json:"state"`
	PhxRef      uint64 `json:"phx_ref"`
}

func newDebugAPI(reg *dispatch.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/services", func(w http.ResponseWriter, r *http.Request) {
		typ := dispatch.ServiceType(r.URL.Query().Get("type"))
		entries, err := reg.GetServices(r.Context(), typ)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out := make([]debugEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, debugEntry{
				NodeID:      e.Endpoint.NodeID,
				LocalHandle: string(e.Endpoint.LocalHandle),
				State:       e.Meta.State.String(),
				PhxRef:      e.Meta.PhxRef,
			})
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	mux.HandleFunc("/v1/find", func(w http.ResponseWriter, r *http.Request) {
		typ := dispatch.ServiceType(r.URL.Query().Get("type"))
		key := r.URL.Query().Get("key")
		ep, err := reg.FindService(typ, []byte(key))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(debugEntry{NodeID: ep.NodeID, LocalHandle: string(ep.LocalHandle)})
	})

	return mux
}
