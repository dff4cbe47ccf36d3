package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fsgraph/indexer/internal/daemon"
)

func newSearchCmd() *cobra.Command {
	var (
		types      []string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid search query against the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := daemon.NewClient(daemon.DefaultConfig())
			if !client.IsRunning() {
				return fmt.Errorf("daemon is not running; start it with 'indexerd daemon start'")
			}

			resp, err := client.Search(cmd.Context(), daemon.SearchParams{
				Query: args[0],
				Types: types,
				Limit: limit,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			printSearchResults(cmd, resp)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&types, "type", nil, "Restrict to result types (e.g. file)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func printSearchResults(cmd *cobra.Command, resp *daemon.SearchResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d result(s) via %s", resp.Returned, resp.SearchMethod)
	if resp.FallbackTriggered {
		fmt.Fprint(out, " (fallback triggered)")
	}
	fmt.Fprintln(out)

	for i, r := range resp.Results {
		score := 0.0
		if r.Similarity != nil {
			score = *r.Similarity
		} else if r.Relevance != nil {
			score = *r.Relevance
		}

		preview := strings.ReplaceAll(r.ContentPreview, "\n", " ")
		fmt.Fprintf(out, "%d. [%.3f] %s\n   %s\n", i+1, score, r.Path, preview)
	}
}
