package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/basinlabs/upstairs/internal/rpcserver"
)

var writeUnwritten bool

var writeCmd = &cobra.Command{
	Use:   "write <offset-blocks> <hex-data>",
	Short: "Write hex-encoded data starting at offset-blocks",
	Args:  cobra.ExactArgs(2),
	Run:   runWrite,
}

func init() {
	writeCmd.Flags().BoolVar(&writeUnwritten, "unwritten", false, "only write blocks that have never been written (write_unwritten)")
	rootCmd.AddCommand(writeCmd)
}

func runWrite(cmd *cobra.Command, args []string) {
	offset, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fail("invalid offset-blocks: %v", err)
	}
	data, err := hex.DecodeString(args[1])
	if err != nil {
		fail("invalid hex data: %v", err)
	}

	c, err := dial()
	if err != nil {
		fail("dial: %v", err)
	}
	defer c.Close()

	if err := c.Call("write", rpcserver.WriteArgs{OffsetBlocks: offset, Data: data, Unwritten: writeUnwritten}, nil); err != nil {
		fail("write: %v", err)
	}
	fmt.Println("ok")
}
