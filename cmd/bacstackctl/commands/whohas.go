package commands

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/bactalk/bacstack/pkg/client"
)

var (
	whohasName   string
	whohasWindow time.Duration
)

var whohasCmd = &cobra.Command{
	Use:   "whohas [object]",
	Short: "Broadcast Who-Has and list devices holding an object",
	Long: `Broadcast a Who-Has for an object named by identifier or — with
--name — by object name, and list every I-Have reply.

Examples:
  bacstackctl whohas analog-input,3
  bacstackctl whohas --name "Zone 4 Temperature"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWhoHas,
}

func init() {
	whohasCmd.Flags().StringVar(&whohasName, "name", "", "Search by object name instead of identifier")
	whohasCmd.Flags().DurationVar(&whohasWindow, "window", client.DefaultDiscoveryWindow, "How long to collect I-Have replies")
}

func runWhoHas(cmd *cobra.Command, args []string) error {
	objectID := ""
	if len(args) == 1 {
		objectID = args[0]
	}
	if (objectID == "") == (whohasName == "") {
		return cmd.Usage()
	}

	return withClient(func(ctx context.Context, c *client.Client) error {
		c.DiscoveryWindow = whohasWindow

		found, err := c.WhoHas(ctx, objectID, whohasName, nil, nil)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			cmd.Println("No devices responded.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Device", "Address", "Object", "Name"})
		for _, f := range found {
			table.Append([]string{
				strconv.FormatUint(uint64(f.DeviceInstance), 10),
				f.Address,
				client.ObjectTypeName(f.ObjectID.Type) + "," + strconv.FormatUint(uint64(f.ObjectID.Instance), 10),
				f.ObjectName,
			})
		}
		table.Render()
		return nil
	})
}
