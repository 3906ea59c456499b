package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single reconciliation pass",
	RunE:  runTick,
}

func runTick(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.service.Tick(cmd.Context())
	r := rep.Result
	fmt.Printf("tick %s: runs=%d active=%d timed_out_or_dropped=%d\n",
		rep.TickID, rep.Counts.Total, rep.Counts.Active, rep.Counts.TimedOutOrDrop)
	fmt.Printf("  created=%d reactivated=%d advanced=%d completed=%d dropped=%d timed_out=%d promoted=%d\n",
		r.Created, r.Reactivated, r.Advanced, r.Completed, r.Dropped, r.TimedOut, len(rep.Promoted))
	if len(rep.MissingBriefings) > 0 {
		fmt.Printf("  user action required: missing briefing files for %s\n", strings.Join(rep.MissingBriefings, ", "))
	}
	return err
}
