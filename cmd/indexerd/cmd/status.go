package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fsgraph/indexer/internal/daemon"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and subscription status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := daemon.NewClient(daemon.DefaultConfig())
			if !client.IsRunning() {
				fmt.Fprintln(cmd.OutOrStdout(), "daemon is not running")
				return nil
			}

			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "running: pid=%d uptime=%s\n", status.PID, status.Uptime)
			for _, s := range status.Subscriptions {
				fmt.Fprintf(out, "  %s %s status=%s files_indexed=%d", s.ID, s.Path, s.Status, s.FilesIndexed)
				if s.Error != "" {
					fmt.Fprintf(out, " error=%q", s.Error)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
