package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/basinlabs/upstairs/internal/rpcserver"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var socketPath string
var dialTimeout time.Duration

var rootCmd = &cobra.Command{
	Use:   "upstairsctl",
	Short: "Guest control-plane CLI for an upstairsd daemon",
	Long: `upstairsctl - Upstairs guest control-plane CLI

A thin client that dials an upstairsd daemon's guest control-plane
socket and issues the same operations a guest library would: reads,
writes, flushes, (de)activation, downstairs replacement, and
introspection of outstanding work.

Examples:
  upstairsctl --socket ./upstairs.sock read 0 8
  upstairsctl write 0 deadbeef
  upstairsctl flush --snapshot nightly-2026-08-01
  upstairsctl show-work`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("upstairsctl version %s\n", Version)
			return
		}
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "./upstairs.sock", "path to the daemon's guest control-plane socket")
	rootCmd.PersistentFlags().DurationVar(&dialTimeout, "timeout", 5*time.Second, "dial and request timeout")
}

func dial() (*rpcserver.Client, error) {
	return rpcserver.Dial(socketPath, dialTimeout)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
