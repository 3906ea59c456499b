package phase

import (
	"time"

	"github.com/fentz26/missionctl/internal/models"
)

// Resolver applies hysteresis on top of Classify.
type Resolver struct {
	// PhaseAdvance is the dwell time after which a task whose status still
	// matches its remembered phase is moved one phase forward.
	PhaseAdvance time.Duration
	// DevFeedbackTimeout bounds the dev-feedback-pending hold in Planning.
	DevFeedbackTimeout time.Duration
	// ReviewFeedbackTimeout bounds the review-feedback-pending hold in Development.
	ReviewFeedbackTimeout time.Duration
}

// Resolution is the resolved phase of one task.
type Resolution struct {
	Phase                 models.Phase
	DevFeedbackPending    bool
	ReviewFeedbackPending bool
	// Inferred is the phase the status text alone maps to.
	Inferred models.Phase
	Rule     string
	Reason   string
}

// Reasons reported in Resolution.Reason.
const (
	ReasonNoMemory     = "no-memory"
	ReasonStatus       = "status"
	ReasonHold         = "feedback-hold"
	ReasonHoldExpired  = "feedback-timeout"
	ReasonDwell        = "dwell"
	ReasonDwellAdvance = "dwell-advance"
)

// Resolve returns the current phase for status given the task's phase memory.
func (r *Resolver) Resolve(status string, mem *models.PhaseMemory, now time.Time) Resolution {
	cls := Classify(status)
	res := Resolution{
		Phase:                 cls.Phase,
		DevFeedbackPending:    cls.DevFeedbackPending(),
		ReviewFeedbackPending: cls.ReviewFeedbackPending(),
		Inferred:              cls.Phase,
		Rule:                  cls.Rule,
		Reason:                ReasonNoMemory,
	}
	if mem == nil || mem.Phase.Index() < 0 {
		return res
	}

	elapsed := mem.EnteredAt.Since(models.ToMillis(now))

	if cls.Pending != PendingNone {
		origin := cls.Phase
		timeout := r.DevFeedbackTimeout
		if cls.Pending == PendingReviewFeedback {
			timeout = r.ReviewFeedbackTimeout
		}
		switch mem.Phase {
		case origin:
			if elapsed > timeout {
				res.Phase = origin.Next()
				res.Reason = ReasonHoldExpired
				return res
			}
			res.Reason = ReasonHold
		case origin.Next():
			res.Phase = mem.Phase
			res.Reason = ReasonHoldExpired
		default:
			res.Reason = ReasonHold
		}
		return res
	}

	if cls.Phase != mem.Phase {
		res.Reason = ReasonStatus
		return res
	}
	if elapsed >= r.PhaseAdvance && mem.Phase != models.PhaseDone {
		res.Phase = mem.Phase.Next()
		res.Reason = ReasonDwellAdvance
		return res
	}
	res.Reason = ReasonDwell
	return res
}
