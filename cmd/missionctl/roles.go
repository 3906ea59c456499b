package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/missionctl/internal/models"
)

var rolesInit bool

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Show role definition files and working briefings",
	RunE:  runRoles,
}

func init() {
	rolesCmd.Flags().BoolVar(&rolesInit, "init", false, "Create missing role definition files with default content")
}

func runRoles(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if rolesInit {
		rep, err := a.layout.Check()
		for _, path := range rep.Created {
			fmt.Printf("Created %s\n", path)
		}
		if err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tROLE FILE\tBRIEFING")
	missing := 0
	for _, role := range models.AllRoles {
		roleFile := presence(a.layout.RoleFile(role))
		brief := presence(a.layout.Briefing(role))
		if brief == "missing" {
			missing++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", role, roleFile, brief)
	}
	w.Flush()

	if missing > 0 {
		fmt.Printf("\n%d role(s) lack a working briefing under %s\n", missing, "memory/mc/<role>/WORKING.md")
	}
	return nil
}

func presence(path string) string {
	if _, err := os.Stat(path); err != nil {
		return "missing"
	}
	return "ok"
}
