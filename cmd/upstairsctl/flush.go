package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/basinlabs/upstairs/internal/rpcserver"
)

var flushSnapshot string

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Issue a flush, optionally taking a named snapshot",
	Args:  cobra.NoArgs,
	Run:   runFlush,
}

func init() {
	flushCmd.Flags().StringVar(&flushSnapshot, "snapshot", "", "snapshot name to take with this flush")
	rootCmd.AddCommand(flushCmd)
}

func runFlush(cmd *cobra.Command, args []string) {
	c, err := dial()
	if err != nil {
		fail("dial: %v", err)
	}
	defer c.Close()

	if err := c.Call("flush", rpcserver.FlushArgs{SnapshotName: flushSnapshot}, nil); err != nil {
		fail("flush: %v", err)
	}
	fmt.Println("ok")
}
