// Package roles decides which roles must be active on a task in a given phase.
package roles

import (
	"sort"

	"github.com/fentz26/missionctl/internal/models"
)

// Defaults returns the role set a phase requires when no assignee filter applies.
func Defaults(phase models.Phase, devPending, reviewPending bool) []models.Role {
	switch phase {
	case models.PhasePlanning:
		if devPending {
			return []models.Role{models.RolePlanner, models.RoleDev, models.RolePM}
		}
		return []models.Role{models.RolePlanner, models.RolePM}
	case models.PhaseDevelopment:
		if reviewPending {
			return []models.Role{models.RoleReviewer, models.RoleUIUX}
		}
		return []models.Role{models.RoleDev}
	case models.PhaseReview:
		return []models.Role{models.RoleReviewer, models.RoleUIUX}
	}
	return nil
}

// Required intersects the phase defaults with the declared assignees. An
// empty intersection falls back to the full default set so a phase is never
// left without its roles. Done always yields no roles.
func Required(phase models.Phase, devPending, reviewPending bool, assignees []models.Role) []models.Role {
	defaults := Defaults(phase, devPending, reviewPending)
	if len(defaults) == 0 || len(assignees) == 0 {
		return defaults
	}

	declared := make(map[models.Role]bool, len(assignees))
	for _, r := range assignees {
		declared[r] = true
	}
	var out []models.Role
	for _, r := range defaults {
		if declared[r] {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}

// Normalize parses raw assignee labels, dropping unknown labels and
// duplicates, and returns them in canonical order.
func Normalize(labels []string) []models.Role {
	seen := make(map[models.Role]bool, len(labels))
	out := make([]models.Role, 0, len(labels))
	for _, label := range labels {
		r, ok := models.ParseRole(label)
		if !ok || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank() < out[j].Rank() })
	return out
}
