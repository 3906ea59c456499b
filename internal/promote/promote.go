// Package promote advances tasks that have sat in a feedback-pending status
// for longer than the feedback timeout by rewriting their source status.
package promote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fentz26/missionctl/internal/audit"
	"github.com/fentz26/missionctl/internal/logging"
	"github.com/fentz26/missionctl/internal/models"
	"github.com/fentz26/missionctl/internal/phase"
)

// StatusWriter rewrites the status of the record at sourcePath. Writing the
// current status again must be a no-op.
type StatusWriter interface {
	SetStatus(ctx context.Context, sourcePath, status string) error
}

// Promoter decides on and performs the promotion of one task. On success it
// updates task in place and reports true. A true result may carry an error
// when the status was written but a follow-up step failed.
type Promoter interface {
	Promote(ctx context.Context, task *models.TaskMeta, now time.Time) (bool, error)
}

// FeedbackPromoter promotes tasks stuck in a dev- or review-feedback
// pending status.
type FeedbackPromoter struct {
	writer                StatusWriter
	devFeedbackTimeout    time.Duration
	reviewFeedbackTimeout time.Duration
	audit                 *audit.PDRWriter

	mu       sync.Mutex
	attempts map[string]time.Time
}

// NewFeedbackPromoter creates a promoter. A nil audit writer disables
// decision records.
func NewFeedbackPromoter(writer StatusWriter, devTimeout, reviewTimeout time.Duration, pdr *audit.PDRWriter) *FeedbackPromoter {
	return &FeedbackPromoter{
		writer:                writer,
		devFeedbackTimeout:    devTimeout,
		reviewFeedbackTimeout: reviewTimeout,
		audit:                 pdr,
		attempts:              make(map[string]time.Time),
	}
}

// Promotion describes a status rewrite, as recorded in the audit trail.
type Promotion struct {
	TaskID     string `json:"taskId"`
	SourcePath string `json:"sourcePath"`
	From       string `json:"from"`
	To         string `json:"to"`
	Rule       string `json:"rule"`
	StaleMs    int64  `json:"staleMs"`
}

func (p *FeedbackPromoter) timeoutFor(c phase.Classification) (time.Duration, bool) {
	switch {
	case c.DevFeedbackPending():
		return p.devFeedbackTimeout, true
	case c.ReviewFeedbackPending():
		return p.reviewFeedbackTimeout, true
	}
	return 0, false
}

// Due reports whether task is stale enough to promote at now, ignoring the
// attempt throttle.
func (p *FeedbackPromoter) Due(task models.TaskMeta, now time.Time) bool {
	timeout, ok := p.timeoutFor(phase.Classify(task.Status))
	return ok && now.Sub(task.UpdatedAt) > timeout
}

// Promote rewrites a stale pending status to the next phase's label. At most
// one attempt per task is made within each timeout interval.
func (p *FeedbackPromoter) Promote(ctx context.Context, task *models.TaskMeta, now time.Time) (bool, error) {
	if !p.Due(*task, now) {
		return false, nil
	}
	cls := phase.Classify(task.Status)
	timeout, _ := p.timeoutFor(cls)

	p.mu.Lock()
	last, tried := p.attempts[task.TaskID]
	if tried && now.Sub(last) < timeout {
		p.mu.Unlock()
		return false, nil
	}
	p.attempts[task.TaskID] = now
	p.mu.Unlock()

	promo := Promotion{
		TaskID:     task.TaskID,
		SourcePath: task.SourcePath,
		From:       task.Status,
		To:         cls.Phase.Next().Label(),
		Rule:       cls.Rule,
		StaleMs:    now.Sub(task.UpdatedAt).Milliseconds(),
	}

	err := p.writer.SetStatus(ctx, task.SourcePath, promo.To)
	auditErr := p.record(promo, err)
	if err != nil {
		return false, fmt.Errorf("promote %s: %w", task.TaskID, err)
	}

	task.Status = promo.To
	task.UpdatedAt = now
	if auditErr != nil {
		return true, &AuditError{TaskID: task.TaskID, Err: auditErr}
	}
	return true, nil
}

// AuditError reports a promotion that was written to its source but whose
// decision record could not be stored.
type AuditError struct {
	TaskID string
	Err    error
}

func (e *AuditError) Error() string {
	return fmt.Sprintf("promote %s: audit: %v", e.TaskID, e.Err)
}

func (e *AuditError) Unwrap() error { return e.Err }

func (p *FeedbackPromoter) record(promo Promotion, err error) error {
	if p.audit == nil {
		return nil
	}
	outcome, details := audit.OutcomeSuccess, fmt.Sprintf("%q -> %q", promo.From, promo.To)
	if err != nil {
		outcome, details = audit.OutcomeFailure, err.Error()
	}
	_, auditErr := p.audit.Record(audit.ActionPromote, promo, outcome, promo.TaskID, details)
	return auditErr
}

// Result is the outcome of one sweep.
type Result struct {
	Tasks    []models.TaskMeta
	Promoted []string
	Errors   []error
}

// Sweep runs the promoter over every task. Write and audit failures are
// collected and logged; they never stop the sweep. A promotion whose audit
// record failed still counts as promoted. The returned tasks carry the promoted
// statuses.
func Sweep(ctx context.Context, p Promoter, tasks []models.TaskMeta, now time.Time, logger *logging.Logger) Result {
	if logger == nil {
		logger = logging.Discard()
	}
	res := Result{Tasks: make([]models.TaskMeta, len(tasks))}
	copy(res.Tasks, tasks)
	if p == nil {
		return res
	}
	for i := range res.Tasks {
		task := &res.Tasks[i]
		from := task.Status
		ok, err := p.Promote(ctx, task, now)
		switch {
		case err != nil && !ok:
			logger.WithTask(task.TaskID).Error("promotion failed", "source_path", task.SourcePath, "error", err)
			res.Errors = append(res.Errors, err)
			continue
		case err != nil:
			logger.WithTask(task.TaskID).Error("promotion not audited", "source_path", task.SourcePath, "error", err)
			res.Errors = append(res.Errors, err)
		}
		if ok {
			logger.WithTask(task.TaskID).Info("task promoted", "from", from, "to", task.Status)
			res.Promoted = append(res.Promoted, task.TaskID)
		}
	}
	return res
}
