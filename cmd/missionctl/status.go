package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/missionctl/internal/store"
	"github.com/fentz26/missionctl/internal/tui"
)

var (
	statusTask string
	statusAll  bool
	statusLog  int
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted run records",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusTask, "task", "", "Only show runs of this task")
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "Include completed runs")
	statusCmd.Flags().IntVar(&statusLog, "log", 10, "Number of recent log entries to show")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw snapshot")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.states.Load(cmd.Context())
	if err != nil {
		return err
	}

	if statusJSON {
		data, err := store.EncodeState(state)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	fmt.Print(tui.RenderStatus(state, time.Now(), tui.StatusOptions{
		TaskID:   statusTask,
		ShowAll:  statusAll,
		LogLines: statusLog,
	}))
	return nil
}
