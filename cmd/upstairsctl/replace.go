package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/basinlabs/upstairs/internal/rpcserver"
)

var replaceCmd = &cobra.Command{
	Use:   "replace <client-id> <old-addr> <new-addr>",
	Short: "Replace a downstairs target address, faulting that client for reconnect",
	Args:  cobra.ExactArgs(3),
	Run:   runReplace,
}

func init() {
	rootCmd.AddCommand(replaceCmd)
}

func runReplace(cmd *cobra.Command, args []string) {
	clientID, err := strconv.Atoi(args[0])
	if err != nil {
		fail("invalid client-id: %v", err)
	}

	c, err := dial()
	if err != nil {
		fail("dial: %v", err)
	}
	defer c.Close()

	call := rpcserver.ReplaceArgs{ClientID: clientID, OldAddr: args[1], NewAddr: args[2]}
	if err := c.Call("replace", call, nil); err != nil {
		fail("replace: %v", err)
	}
	fmt.Println("replaced")
}
