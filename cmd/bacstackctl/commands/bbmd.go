package commands

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/bactalk/bacstack/internal/bbmd"
	"github.com/bactalk/bacstack/internal/bvll"
)

var bbmdCmd = &cobra.Command{
	Use:   "bbmd",
	Short: "Inspect a BBMD's broadcast-distribution state",
}

var bbmdBDTCmd = &cobra.Command{
	Use:   "show-bdt <address>",
	Short: "Read a BBMD's Broadcast Distribution Table",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowBDT,
}

var bbmdFDTCmd = &cobra.Command{
	Use:   "show-fdt <address>",
	Short: "Read a BBMD's Foreign Device Table",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowFDT,
}

func init() {
	bbmdCmd.AddCommand(bbmdBDTCmd)
	bbmdCmd.AddCommand(bbmdFDTCmd)
}

// exchangeBVLL runs one request/reply BVLL exchange with a BBMD over a
// throwaway UDP socket. The station machinery is not involved: these
// are pure link-layer queries.
func exchangeBVLL(target string, request bvll.FunctionCode, wantReply bvll.FunctionCode) ([]byte, error) {
	addr, err := net.ResolveUDPAddr("udp4", withDefaultPort(target))
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", target, err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.Write((bvll.Frame{Function: request}).Encode()); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(flagTimeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("await reply from %s: %w", target, err)
	}

	frame, err := bvll.Decode(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if frame.Function == bvll.FuncResult && len(frame.Body) >= 2 {
		return nil, fmt.Errorf("bbmd %s refused: result code 0x%04x", target, binary.BigEndian.Uint16(frame.Body))
	}
	if frame.Function != wantReply {
		return nil, fmt.Errorf("unexpected reply function %s", frame.Function)
	}
	return frame.Body, nil
}

func withDefaultPort(target string) string {
	if _, _, err := net.SplitHostPort(target); err != nil {
		return net.JoinHostPort(target, "47808")
	}
	return target
}

func runShowBDT(cmd *cobra.Command, args []string) error {
	body, err := exchangeBVLL(args[0], bvll.FuncReadBroadcastDistributionTable, bvll.FuncReadBroadcastDistributionTableAck)
	if err != nil {
		return err
	}
	entries, err := bbmd.DecodeBDT(body)
	if err != nil {
		return fmt.Errorf("decode bdt: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Address", "Mask"})
	for _, e := range entries {
		table.Append([]string{
			e.Address.String(),
			net.IP(e.Mask[:]).String(),
		})
	}
	table.Render()
	cmd.Printf("%d entries\n", len(entries))
	return nil
}

func runShowFDT(cmd *cobra.Command, args []string) error {
	body, err := exchangeBVLL(args[0], bvll.FuncReadForeignDeviceTable, bvll.FuncReadForeignDeviceTableAck)
	if err != nil {
		return err
	}
	if len(body)%10 != 0 {
		return fmt.Errorf("decode fdt: %d bytes is not a whole number of 10-byte entries", len(body))
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Address", "Port", "TTL", "Remaining"})
	for offset := 0; offset < len(body); offset += 10 {
		row := body[offset : offset+10]
		table.Append([]string{
			net.IP(row[0:4]).String(),
			fmt.Sprintf("%d", binary.BigEndian.Uint16(row[4:6])),
			fmt.Sprintf("%ds", binary.BigEndian.Uint16(row[6:8])),
			fmt.Sprintf("%ds", binary.BigEndian.Uint16(row[8:10])),
		})
	}
	table.Render()
	cmd.Printf("%d entries\n", len(body)/10)
	return nil
}
