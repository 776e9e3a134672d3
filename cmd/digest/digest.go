// Package digest implements the subscription digest mail command.
package digest

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/kartevonmorgen/kvmsync/internal/conf"
	"github.com/kartevonmorgen/kvmsync/internal/runtime"
)

var validIntervals = []string{"daily", "weekly", "monthly"}

// Command creates the command sending digests for one interval.
func Command(settings *conf.Settings) *cobra.Command {
	var interval string

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Send subscription digest emails",
		Long: "Mail every active subscription of the chosen interval whose " +
			"bounding box saw entry changes inside the interval's window.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validIntervals, interval) {
				return fmt.Errorf("interval must be one of %v", validIntervals)
			}

			rt, err := runtime.Build(settings)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			sent, err := rt.Orchestrator.SendDigests(cmd.Context(), rt.Sender, interval)
			if err != nil {
				return err
			}
			fmt.Printf("Sent %d %s digest emails\n", sent, interval)
			return nil
		},
	}

	cmd.Flags().StringVarP(&interval, "interval", "i", "daily", "Digest interval: daily, weekly or monthly")
	return cmd
}
