package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func findCmd() *cobra.Command {
	var debugAddr string
	var typ string
	var key string

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Resolve a key to an endpoint via a running node's debug API",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(fmt.Sprintf("http://%s/v1/find?type=%s&key=%s", debugAddr, typ, key))
			if err != nil {
				return fmt.Errorf("query debug API: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("no_service_for_key")
			}

			var entry debugEntry
			if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			fmt.Printf("%s/%s\n", entry.NodeID, entry.LocalHandle)
			return nil
		},
	}

	cmd.Flags().StringVar(&debugAddr, "debug-addr", "localhost:7947", "Target node's debug API address")
	cmd.Flags().StringVar(&typ, "type", "", "Service type")
	cmd.Flags().StringVar(&key, "key", "", "Lookup key")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
