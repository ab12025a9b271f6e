package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/basinlabs/upstairs/internal/rpcserver"
)

var readCmd = &cobra.Command{
	Use:   "read <offset-blocks> <num-blocks>",
	Short: "Read blocks and print them as hex",
	Args:  cobra.ExactArgs(2),
	Run:   runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) {
	offset, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fail("invalid offset-blocks: %v", err)
	}
	n, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fail("invalid num-blocks: %v", err)
	}

	c, err := dial()
	if err != nil {
		fail("dial: %v", err)
	}
	defer c.Close()

	var result struct {
		Blocks [][]byte `json:"Blocks"`
	}
	if err := c.Call("read", rpcserver.ReadArgs{OffsetBlocks: offset, NumBlocks: n}, &result); err != nil {
		fail("read: %v", err)
	}

	for i, block := range result.Blocks {
		fmt.Printf("block %d: %s\n", offset+uint64(i), hex.EncodeToString(block))
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
