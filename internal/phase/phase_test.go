package phase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fentz26/missionctl/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status  string
		phase   models.Phase
		pending Pending
		rule    string
	}{
		{"", models.PhasePlanning, PendingNone, DefaultRule},
		{"something else", models.PhasePlanning, PendingNone, DefaultRule},
		{"Planning", models.PhasePlanning, PendingNone, "planning"},
		{"TODO", models.PhasePlanning, PendingNone, "planning"},
		{"Inbox", models.PhasePlanning, PendingNone, "planning"},
		{"Development", models.PhaseDevelopment, PendingNone, "development"},
		{"WIP - blocked on API", models.PhaseDevelopment, PendingNone, "development"},
		{"In Progress", models.PhaseDevelopment, PendingNone, "development"},
		{"Ready for QA", models.PhaseReview, PendingNone, "review"},
		{"approved by lead", models.PhaseReview, PendingNone, "review"},
		{"Done", models.PhaseDone, PendingNone, "done"},
		{"review complete", models.PhaseDone, PendingNone, "done"},
		{"Closed", models.PhaseDone, PendingNone, "done"},
		{"Planning, Dev Feedback Pending", models.PhasePlanning, PendingDevFeedback, "dev-feedback-pending"},
		{"plan feedback from developer", models.PhasePlanning, PendingDevFeedback, "dev-feedback-pending"},
		{"Development, Review Feedback Pending", models.PhaseDevelopment, PendingReviewFeedback, "review-feedback-pending"},
		{"planning feedback", models.PhasePlanning, PendingNone, "planning"},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got := Classify(tt.status)
			assert.Equal(t, tt.phase, got.Phase)
			assert.Equal(t, tt.pending, got.Pending)
			assert.Equal(t, tt.rule, got.Rule)
		})
	}
}

func TestDoneStatusesResolveToDone(t *testing.T) {
	r := testResolver()
	now := time.UnixMilli(10_000_000)
	for _, status := range []string{"done", "Completed", "closed out", "DONE!"} {
		for _, mem := range []*models.PhaseMemory{
			nil,
			{Phase: models.PhaseDevelopment, EnteredAt: models.ToMillis(now)},
			{Phase: models.PhaseDone, EnteredAt: 1},
		} {
			assert.Equal(t, models.PhaseDone, r.Resolve(status, mem, now).Phase, status)
		}
	}
}

func testResolver() *Resolver {
	return &Resolver{
		PhaseAdvance:          time.Hour,
		DevFeedbackTimeout:    10 * time.Minute,
		ReviewFeedbackTimeout: 20 * time.Minute,
	}
}

func TestResolveWithoutMemoryReturnsInferred(t *testing.T) {
	res := testResolver().Resolve("Review", nil, time.Now())
	assert.Equal(t, models.PhaseReview, res.Phase)
	assert.Equal(t, ReasonNoMemory, res.Reason)
}

func TestResolveStatusEditWinsOverMemory(t *testing.T) {
	now := time.UnixMilli(50_000_000)
	mem := &models.PhaseMemory{Phase: models.PhaseReview, EnteredAt: models.ToMillis(now.Add(-time.Minute))}

	res := testResolver().Resolve("Planning", mem, now)
	assert.Equal(t, models.PhasePlanning, res.Phase)
	assert.Equal(t, ReasonStatus, res.Reason)
}

func TestResolveDwellAdvance(t *testing.T) {
	r := testResolver()
	now := time.UnixMilli(50_000_000)

	fresh := &models.PhaseMemory{Phase: models.PhaseDevelopment, EnteredAt: models.ToMillis(now.Add(-30 * time.Minute))}
	assert.Equal(t, models.PhaseDevelopment, r.Resolve("Development", fresh, now).Phase)

	stale := &models.PhaseMemory{Phase: models.PhaseDevelopment, EnteredAt: models.ToMillis(now.Add(-time.Hour))}
	res := r.Resolve("Development", stale, now)
	assert.Equal(t, models.PhaseReview, res.Phase)
	assert.Equal(t, ReasonDwellAdvance, res.Reason)

	done := &models.PhaseMemory{Phase: models.PhaseDone, EnteredAt: 1}
	assert.Equal(t, models.PhaseDone, r.Resolve("Done", done, now).Phase)
}

func TestResolveDevFeedbackHold(t *testing.T) {
	r := testResolver()
	now := time.UnixMilli(50_000_000)
	status := "Planning, Dev Feedback Pending"

	held := &models.PhaseMemory{Phase: models.PhasePlanning, EnteredAt: models.ToMillis(now.Add(-5 * time.Minute))}
	res := r.Resolve(status, held, now)
	assert.Equal(t, models.PhasePlanning, res.Phase)
	assert.True(t, res.DevFeedbackPending)
	assert.Equal(t, ReasonHold, res.Reason)

	expired := &models.PhaseMemory{Phase: models.PhasePlanning, EnteredAt: models.ToMillis(now.Add(-11 * time.Minute))}
	res = r.Resolve(status, expired, now)
	assert.Equal(t, models.PhaseDevelopment, res.Phase)
	assert.Equal(t, ReasonHoldExpired, res.Reason)

	// Once advanced, the task is not pulled back while the status still reads pending.
	advanced := &models.PhaseMemory{Phase: models.PhaseDevelopment, EnteredAt: models.ToMillis(now)}
	assert.Equal(t, models.PhaseDevelopment, r.Resolve(status, advanced, now).Phase)

	// A task remembered elsewhere is pulled to the originating phase.
	elsewhere := &models.PhaseMemory{Phase: models.PhaseReview, EnteredAt: 1}
	assert.Equal(t, models.PhasePlanning, r.Resolve(status, elsewhere, now).Phase)
}

func TestResolveReviewFeedbackUsesReviewTimeout(t *testing.T) {
	r := testResolver()
	now := time.UnixMilli(50_000_000)
	status := "Development - review feedback pending"

	mem := &models.PhaseMemory{Phase: models.PhaseDevelopment, EnteredAt: models.ToMillis(now.Add(-15 * time.Minute))}
	res := r.Resolve(status, mem, now)
	assert.Equal(t, models.PhaseDevelopment, res.Phase, "dev timeout must not apply")
	assert.True(t, res.ReviewFeedbackPending)

	mem.EnteredAt = models.ToMillis(now.Add(-21 * time.Minute))
	assert.Equal(t, models.PhaseReview, r.Resolve(status, mem, now).Phase)
}
