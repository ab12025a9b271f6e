package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var uuidCmd = &cobra.Command{
	Use:   "uuid",
	Short: "Print the daemon's upstairs UUID",
	Args:  cobra.NoArgs,
	Run:   runUUID,
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Ask the daemon to shut down",
	Args:  cobra.NoArgs,
	Run:   runShutdown,
}

func init() {
	rootCmd.AddCommand(uuidCmd)
	rootCmd.AddCommand(shutdownCmd)
}

func runUUID(cmd *cobra.Command, args []string) {
	c, err := dial()
	if err != nil {
		fail("dial: %v", err)
	}
	defer c.Close()

	var result struct {
		UpstairsID string `json:"upstairs_id"`
	}
	if err := c.Call("query_upstairs_uuid", nil, &result); err != nil {
		fail("query_upstairs_uuid: %v", err)
	}
	fmt.Println(result.UpstairsID)
}

func runShutdown(cmd *cobra.Command, args []string) {
	c, err := dial()
	if err != nil {
		fail("dial: %v", err)
	}
	defer c.Close()

	var result struct {
		Message string `json:"message"`
	}
	if err := c.Call("shutdown", nil, &result); err != nil {
		fail("shutdown: %v", err)
	}
	fmt.Println(result.Message)
}
