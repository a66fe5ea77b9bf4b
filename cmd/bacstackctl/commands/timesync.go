package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/bactalk/bacstack/pkg/client"
)

var timesyncCmd = &cobra.Command{
	Use:   "timesync <address>",
	Short: "Send a Time-Synchronization with this host's clock",
	Long: `Announce this host's current wall-clock time to one device, or to
the local broadcast domain with "*".

Examples:
  bacstackctl timesync 10.0.0.5
  bacstackctl timesync "*"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			if err := c.TimeSynchronization(ctx, args[0], time.Now()); err != nil {
				return err
			}
			cmd.Println("OK")
			return nil
		})
	},
}
