// Package briefing maintains the per-role definition files and reports roles
// whose working briefing is missing.
package briefing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fentz26/missionctl/internal/models"
)

var roleDefaults = map[models.Role]string{
	models.RolePlanner: `# Role: Planner

## Mission
Turn requests into clear and testable plans.

## Responsibilities
- Clarify scope and dependencies
- Create measurable acceptance criteria
- Keep tasks aligned with the current request

## Output Standard
Clear plan, risks, and next step definition.
`,
	models.RoleDev: `# Role: Developer

## Mission
Implement the active plan with safe, minimal changes.

## Responsibilities
- Deliver working code changes
- Keep context and acceptance criteria in sync
- Avoid unnecessary drift from plan

## Output Standard
Working implementation, tests and concise handoff notes.
`,
	models.RolePM: `# Role: PM (Client Interface)

## Mission
Coordinate planning, development, review, and final closure.

## Responsibilities
- Track active task state
- Keep decision log and ETA current
- Request missing input explicitly

## Status Cadence
- Update with: Done / In Progress / Next / ETA / Questions

## Output Standard
Concise, actionable updates for the requester.
`,
	models.RoleReviewer: `# Role: Reviewer

## Mission
Keep quality and risk under control.

## Responsibilities
- Validate against scope and acceptance criteria
- Check for regressions and test gaps
- Flag risks and required fixes

## Output Standard
Clear, concise PASS / requested changes.
`,
	models.RoleUIUX: `# Role: UI/UX

## Mission
Protect clarity and usability of user-facing workflows.

## Responsibilities
- Validate user flows and interaction quality
- Suggest measurable UX improvements
- Ensure output is usable and coherent

## Output Standard
Actionable UX feedback with rationale.
`,
}

// DefaultText returns the template written for a missing role file.
func DefaultText(role models.Role) string {
	return roleDefaults[role]
}

// Layout locates role files and briefings inside a workspace.
type Layout struct {
	Root string
}

// RoleFile is mission-control/agents/<role>.md.
func (l Layout) RoleFile(role models.Role) string {
	return filepath.Join(l.Root, "mission-control", "agents", string(role)+".md")
}

// Briefing is memory/mc/<role>/WORKING.md.
func (l Layout) Briefing(role models.Role) string {
	return filepath.Join(l.Root, "memory", "mc", string(role), "WORKING.md")
}

// Report is the outcome of Check.
type Report struct {
	// Created lists role files written with default content.
	Created []string
	// Missing lists roles without a working briefing, in role order.
	Missing []string
}

// Check writes any missing role file and lists roles lacking a briefing.
// Failing to create a role file does not stop the check.
func (l Layout) Check() (Report, error) {
	rep := Report{Missing: []string{}}
	var errs []error
	for _, role := range models.AllRoles {
		path := l.RoleFile(role)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := writeRoleFile(path, DefaultText(role)); err != nil {
				errs = append(errs, err)
			} else {
				rep.Created = append(rep.Created, path)
			}
		}
		if _, err := os.Stat(l.Briefing(role)); err != nil {
			rep.Missing = append(rep.Missing, string(role))
		}
	}
	return rep, errors.Join(errs...)
}

func writeRoleFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create agents directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write role file: %w", err)
	}
	return nil
}
