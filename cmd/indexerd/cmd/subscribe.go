package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fsgraph/indexer/internal/daemon"
)

func newSubscribeCmd() *cobra.Command {
	var (
		id                 string
		recursive          bool
		debounceMS         int
		ignorePatterns     []string
		generateEmbeddings bool
	)

	cmd := &cobra.Command{
		Use:   "subscribe <path>",
		Short: "Watch a directory tree and index it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if id == "" {
				id = path
			}

			client := daemon.NewClient(daemon.DefaultConfig())
			if !client.IsRunning() {
				return fmt.Errorf("daemon is not running; start it with 'indexerd daemon start'")
			}

			err := client.Subscribe(cmd.Context(), daemon.SubscribeParams{
				ID:                 id,
				Path:               path,
				Recursive:          recursive,
				DebounceMS:         debounceMS,
				IgnorePatterns:     ignorePatterns,
				GenerateEmbeddings: generateEmbeddings,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "subscribed %s (id=%s)\n", path, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Subscription ID (defaults to the path)")
	cmd.Flags().BoolVar(&recursive, "recursive", true, "Watch subdirectories")
	cmd.Flags().IntVar(&debounceMS, "debounce-ms", 0, "Debounce window in milliseconds (0 uses the daemon default)")
	cmd.Flags().StringSliceVar(&ignorePatterns, "ignore", nil, "Additional ignore glob patterns")
	cmd.Flags().BoolVar(&generateEmbeddings, "embeddings", true, "Generate embeddings while indexing")

	return cmd
}

func newUnsubscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe <id>",
		Short: "Stop watching and remove a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := daemon.NewClient(daemon.DefaultConfig())
			if !client.IsRunning() {
				return fmt.Errorf("daemon is not running")
			}
			if err := client.Unsubscribe(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unsubscribed %s\n", args[0])
			return nil
		},
	}
}
