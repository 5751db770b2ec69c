package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/sommelier/orchestrate/deadletter"
	"github.com/tailored-agentic-units/sommelier/server"
)

var deadLettersServer string

var deadLettersCmd = &cobra.Command{
	Use:     "deadletters",
	Aliases: []string{"dl"},
	Short:   "Inspect and replay the dead-letter queue",
	Long: `Inspect, replay, or clear the configured dead-letter queue.

The memory driver only lives as long as the process, so these commands are
useful with the sqlite, postgres, and redis drivers, or with --server.`,
}

var deadLettersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print queued records as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var records []deadletter.Record
		if deadLettersServer != "" {
			var err error
			if records, err = server.NewClient(nil, deadLettersServer).ListDeadLetters(ctx); err != nil {
				return err
			}
		} else {
			err := withQueue(func(k queueOwner) error {
				var err error
				records, err = k.Queue().All(ctx)
				return err
			})
			if err != nil {
				return err
			}
		}

		if records == nil {
			records = []deadletter.Record{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	},
}

var deadLettersReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Process every queued record again",
	Long: `Drain the queue and run each record through the dead-letter handlers
again. Recoverable records are redelivered to their target agent; records that
fail again are put back on the queue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withQueue(func(k queueOwner) error {
			n, err := k.Replay(ctx)
			if err != nil {
				return err
			}
			remaining, err := k.Queue().All(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d, %d remaining\n", n, len(remaining))
			return nil
		})
	},
}

var deadLettersClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every queued record",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withQueue(func(k queueOwner) error {
			if err := k.Queue().Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "dead-letter queue cleared")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(deadLettersCmd)
	deadLettersCmd.AddCommand(deadLettersListCmd, deadLettersReplayCmd, deadLettersClearCmd)
	deadLettersListCmd.Flags().StringVar(&deadLettersServer, "server", "", "base URL of a running server")
}

type queueOwner interface {
	Queue() deadletter.Queue
	Replay(ctx context.Context) (int, error)
}

func withQueue(fn func(k queueOwner) error) error {
	k, err := newKernel()
	if err != nil {
		return err
	}
	defer k.Close()
	return fn(k)
}
