package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bactalk/bacstack/pkg/client"
)

var readIndex int64

var readCmd = &cobra.Command{
	Use:   "read <address> <object> <property>",
	Short: "Read one property from a device",
	Long: `Read a property and print its decoded value.

Examples:
  bacstackctl read 10.0.0.5 analog-input,1 present-value
  bacstackctl read 2601:10.0.0.5 device,100 object-name
  bacstackctl read 10.0.0.5 device,100 object-list --index 3`,
	Args: cobra.ExactArgs(3),
	RunE: runRead,
}

func init() {
	readCmd.Flags().Int64Var(&readIndex, "index", -1, "Array index (-1 for none)")
}

func runRead(cmd *cobra.Command, args []string) error {
	return withClient(func(ctx context.Context, c *client.Client) error {
		var index *uint32
		if readIndex >= 0 {
			v := uint32(readIndex)
			index = &v
		}
		value, err := c.ReadProperty(ctx, args[0], args[1], args[2], index)
		if err != nil {
			return err
		}
		cmd.Println(formatValue(value))
		return nil
	})
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case []byte:
		return fmt.Sprintf("%x", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
