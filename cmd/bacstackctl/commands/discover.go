package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/bactalk/bacstack/pkg/client"
)

var (
	discoverLow    int64
	discoverHigh   int64
	discoverWindow time.Duration
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Broadcast Who-Is and list responding devices",
	Long: `Broadcast a Who-Is, optionally bounded to a device-instance range,
and list every device that answers with an I-Am inside the listening
window.

Examples:
  bacstackctl discover
  bacstackctl discover --low 100 --high 200
  bacstackctl discover --window 5s`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().Int64Var(&discoverLow, "low", -1, "Low device-instance limit (-1 for unbounded)")
	discoverCmd.Flags().Int64Var(&discoverHigh, "high", -1, "High device-instance limit (-1 for unbounded)")
	discoverCmd.Flags().DurationVar(&discoverWindow, "window", client.DefaultDiscoveryWindow, "How long to collect I-Am replies")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	return withClient(func(ctx context.Context, c *client.Client) error {
		c.DiscoveryWindow = discoverWindow

		var low, high *uint32
		if discoverLow >= 0 {
			v := uint32(discoverLow)
			low = &v
		}
		if discoverHigh >= 0 {
			v := uint32(discoverHigh)
			high = &v
		}

		devices, err := c.WhoIs(ctx, low, high)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			cmd.Println("No devices responded.")
			return nil
		}

		sort.Slice(devices, func(i, j int) bool { return devices[i].Instance < devices[j].Instance })

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Instance", "Address", "Max APDU", "Segmentation", "Vendor"})
		for _, d := range devices {
			table.Append([]string{
				strconv.FormatUint(uint64(d.Instance), 10),
				d.Address,
				strconv.FormatUint(uint64(d.MaxAPDULengthAccepted), 10),
				segmentationName(d.SegmentationSupported),
				strconv.FormatUint(uint64(d.VendorID), 10),
			})
		}
		table.Render()
		cmd.Printf("%d device(s)\n", len(devices))
		return nil
	})
}

func segmentationName(code uint32) string {
	switch code {
	case 0:
		return "both"
	case 1:
		return "transmit"
	case 2:
		return "receive"
	case 3:
		return "none"
	default:
		return fmt.Sprintf("%d", code)
	}
}
