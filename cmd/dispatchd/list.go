package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	var debugAddr string
	var typ string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known services of a type from a running node's debug API",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(fmt.Sprintf("http://%s/v1/services?type=%s", debugAddr, typ))
			if err != nil {
				return fmt.Errorf("query debug API: %w", err)
			}
			defer resp.Body.Close()

			var entries []debugEntry
			if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			for _, e := range entries {
				fmt.Printf("%s/%s\tstate=%s\tphx_ref=%d\n", e.NodeID, e.LocalHandle, e.State, e.PhxRef)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&debugAddr, "debug-addr", "localhost:7947", "Target node's debug API address")
	cmd.Flags().StringVar(&typ, "type", "", "Service type to list")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
