package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/basinlabs/upstairs/internal/upstairs"
)

var showWorkCmd = &cobra.Command{
	Use:   "show-work",
	Short: "List every job currently outstanding on the daemon",
	Args:  cobra.NoArgs,
	Run:   runShowWork,
}

func init() {
	rootCmd.AddCommand(showWorkCmd)
}

func runShowWork(cmd *cobra.Command, args []string) {
	c, err := dial()
	if err != nil {
		fail("dial: %v", err)
	}
	defer c.Close()

	var entries []upstairs.ShowWorkEntry
	if err := c.Call("show_work", nil, &entries); err != nil {
		fail("show_work: %v", err)
	}

	if len(entries) == 0 {
		fmt.Println("no outstanding work")
		return
	}
	fmt.Printf("%-8s %-8s %-10s %-22s %s\n", "DSID", "GUESTID", "KIND", "STATE (ds0/ds1/ds2)", "ACKED")
	for _, e := range entries {
		fmt.Printf("%-8d %-8d %-10s %-22v %v\n", e.DsId, e.GuestId, e.Kind, e.State, e.Acked)
	}
}
