package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/bactalk/bacstack/pkg/client"
)

var (
	writeIndex    int64
	writePriority int
	writeType     string
	writeYes      bool
)

var writeCmd = &cobra.Command{
	Use:   "write <address> <object> <property> <value>",
	Short: "Write one property on a device",
	Long: `Write a property. The value is parsed per --type (real, double,
unsigned, signed, bool, string, null); "null" with a --priority
relinquishes that slot of a commandable property's priority array.

Priority writes land in the device's 16-slot priority array and stay in
force until relinquished, so they prompt for confirmation unless --yes.

Examples:
  bacstackctl write 10.0.0.5 analog-value,2 present-value 72.5
  bacstackctl write 10.0.0.5 binary-output,1 present-value 1 --type unsigned --priority 8
  bacstackctl write 10.0.0.5 binary-output,1 present-value null --priority 8`,
	Args: cobra.ExactArgs(4),
	RunE: runWrite,
}

func init() {
	writeCmd.Flags().Int64Var(&writeIndex, "index", -1, "Array index (-1 for none)")
	writeCmd.Flags().IntVar(&writePriority, "priority", 0, "Write priority 1..16 (0 for none)")
	writeCmd.Flags().StringVar(&writeType, "type", "real", "Value type: real, double, unsigned, signed, bool, string, null")
	writeCmd.Flags().BoolVarP(&writeYes, "yes", "y", false, "Skip the priority-write confirmation prompt")
}

func runWrite(cmd *cobra.Command, args []string) error {
	value, err := parseTypedValue(writeType, args[3])
	if err != nil {
		return err
	}

	var priority *uint8
	if writePriority != 0 {
		if writePriority < 1 || writePriority > 16 {
			return fmt.Errorf("priority %d out of range 1..16", writePriority)
		}
		p := uint8(writePriority)
		priority = &p

		if !writeYes {
			prompt := promptui.Prompt{
				Label:     fmt.Sprintf("Write %s=%v at priority %d on %s (stays in force until relinquished)", args[2], value, writePriority, args[1]),
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				return fmt.Errorf("aborted")
			}
		}
	}

	var index *uint32
	if writeIndex >= 0 {
		v := uint32(writeIndex)
		index = &v
	}

	return withClient(func(ctx context.Context, c *client.Client) error {
		if err := c.WriteProperty(ctx, args[0], args[1], args[2], value, index, priority); err != nil {
			return err
		}
		cmd.Println("OK")
		return nil
	})
}

func parseTypedValue(typ, raw string) (any, error) {
	switch strings.ToLower(typ) {
	case "real":
		if raw == "null" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return nil, fmt.Errorf("parse real %q: %w", raw, err)
		}
		return float32(f), nil
	case "double":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parse double %q: %w", raw, err)
		}
		return f, nil
	case "unsigned":
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse unsigned %q: %w", raw, err)
		}
		return n, nil
	case "signed":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse signed %q: %w", raw, err)
		}
		return n, nil
	case "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("parse bool %q: %w", raw, err)
		}
		return b, nil
	case "string":
		return raw, nil
	case "null":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown value type %q", typ)
	}
}
