package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/basinlabs/upstairs/internal/rpcserver"
)

var activateCmd = &cobra.Command{
	Use:   "activate <generation>",
	Short: "Activate the upstairs at the given generation number",
	Args:  cobra.ExactArgs(1),
	Run:   runActivate,
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate, once the last outstanding job is a quiesced flush",
	Args:  cobra.NoArgs,
	Run:   runDeactivate,
}

func init() {
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(deactivateCmd)
}

func runActivate(cmd *cobra.Command, args []string) {
	gen, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fail("invalid generation: %v", err)
	}

	c, err := dial()
	if err != nil {
		fail("dial: %v", err)
	}
	defer c.Close()

	if err := c.Call("activate", rpcserver.ActivateArgs{Generation: gen}, nil); err != nil {
		fail("activate: %v", err)
	}
	fmt.Println("activated")
}

func runDeactivate(cmd *cobra.Command, args []string) {
	c, err := dial()
	if err != nil {
		fail("dial: %v", err)
	}
	defer c.Close()

	if err := c.Call("deactivate", nil, nil); err != nil {
		fail("deactivate: %v", err)
	}
	fmt.Println("deactivated")
}
