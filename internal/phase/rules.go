// Package phase infers a task's lifecycle phase from its free-text status.
package phase

import (
	"strings"

	"github.com/fentz26/missionctl/internal/models"
)

// Pending identifies a feedback-pending sub-state.
type Pending int

const (
	PendingNone Pending = iota
	PendingDevFeedback
	PendingReviewFeedback
)

func (p Pending) String() string {
	switch p {
	case PendingDevFeedback:
		return "dev-feedback-pending"
	case PendingReviewFeedback:
		return "review-feedback-pending"
	}
	return "none"
}

// Rule maps keyword groups to an inferred phase. Every group must match; any
// keyword within a group matches by case-insensitive containment.
type Rule struct {
	Name    string
	Groups  [][]string
	Phase   models.Phase
	Pending Pending
}

// Rules is checked top to bottom; the first match wins.
var Rules = []Rule{
	{
		Name:    "dev-feedback-pending",
		Groups:  [][]string{{"plan"}, {"feedback"}, {"dev", "develop"}},
		Phase:   models.PhasePlanning,
		Pending: PendingDevFeedback,
	},
	{
		Name:    "review-feedback-pending",
		Groups:  [][]string{{"develop"}, {"review"}, {"feedback"}},
		Phase:   models.PhaseDevelopment,
		Pending: PendingReviewFeedback,
	},
	{
		Name:   "done",
		Groups: [][]string{{"done", "complete", "closed"}},
		Phase:  models.PhaseDone,
	},
	{
		Name:   "review",
		Groups: [][]string{{"review", "qa", "approve"}},
		Phase:  models.PhaseReview,
	},
	{
		Name:   "development",
		Groups: [][]string{{"develop", "implement", "wip", "active", "progress", "blocked", "build"}},
		Phase:  models.PhaseDevelopment,
	},
	{
		Name:   "planning",
		Groups: [][]string{{"plan", "todo", "ready", "backlog", "inbox"}},
		Phase:  models.PhasePlanning,
	},
}

// DefaultRule is reported when the status is empty or nothing matches.
const DefaultRule = "default"

// Matches reports whether the lower-cased text satisfies every keyword group.
func (r Rule) Matches(text string) bool {
	if len(r.Groups) == 0 {
		return false
	}
	for _, group := range r.Groups {
		if !containsAny(text, group) {
			return false
		}
	}
	return true
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Classification is the coarse phase inferred from a status string alone.
type Classification struct {
	Phase   models.Phase
	Pending Pending
	Rule    string
}

// DevFeedbackPending reports the dev-feedback-pending sub-state.
func (c Classification) DevFeedbackPending() bool { return c.Pending == PendingDevFeedback }

// ReviewFeedbackPending reports the review-feedback-pending sub-state.
func (c Classification) ReviewFeedbackPending() bool { return c.Pending == PendingReviewFeedback }

// Classify applies Rules to status.
func Classify(status string) Classification {
	text := strings.ToLower(strings.TrimSpace(status))
	if text != "" {
		for _, rule := range Rules {
			if rule.Matches(text) {
				return Classification{Phase: rule.Phase, Pending: rule.Pending, Rule: rule.Name}
			}
		}
	}
	return Classification{Phase: models.PhasePlanning, Rule: DefaultRule}
}
