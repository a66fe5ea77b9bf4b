// Package commands implements the bacstackctl CLI client: ad-hoc
// discovery, reads, writes, and BBMD inspection against live BACnet
// devices, driven by a short-lived station bound to an ephemeral port.
package commands

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bactalk/bacstack/internal/logger"
	"github.com/bactalk/bacstack/pkg/client"
	"github.com/bactalk/bacstack/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	flagInterface string
	flagPort      int
	flagInstance  uint32
	flagTimeout   time.Duration
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "bacstackctl",
	Short: "BACstack CLI client",
	Long: `bacstackctl talks to live BACnet devices: discover them, read and
write properties, and inspect a BBMD's broadcast-distribution state.

Each invocation runs a short-lived client station bound to an ephemeral
UDP port, so it can coexist with a bacstackd serving port 47808 on the
same host.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagInterface, "interface", "0.0.0.0", "Local bind address")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "Local UDP port (0 picks an ephemeral port)")
	rootCmd.PersistentFlags().Uint32Var(&flagInstance, "instance", 4194302, "This client's device instance number")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 10*time.Second, "Overall operation timeout")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(whohasCmd)
	rootCmd.AddCommand(timesyncCmd)
	rootCmd.AddCommand(bbmdCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// withClient builds, starts, and tears down a client around fn.
func withClient(fn func(ctx context.Context, c *client.Client) error) error {
	level := "WARN"
	if flagVerbose {
		level = "DEBUG"
	}
	if err := logger.Init(logger.Config{Level: level, Format: "text", Output: "stderr"}); err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	cfg.Interface = flagInterface
	cfg.Port = flagPort
	cfg.InstanceNumber = flagInstance

	c, err := client.New(cfg, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)
	defer cancel()

	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		_ = c.Stop(stopCtx)
	}()

	return fn(ctx, c)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("bacstackctl %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
