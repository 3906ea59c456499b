// Package audit records Process Decision Records for every mutation the
// runner makes to an external task record.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/fentz26/missionctl/internal/logging"
	"github.com/fentz26/missionctl/internal/models"
)

// Actions recorded by the runner.
const (
	ActionPromote = "promote"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Sink persists decision records. *store.Store satisfies it.
type Sink interface {
	WritePDR(action, inputsHash, outcome, taskID, details string) (*models.PDREntry, error)
}

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	sink   Sink
	logger *logging.Logger
}

// NewPDRWriter creates a new PDR writer. A nil sink only logs.
func NewPDRWriter(sink Sink, logger *logging.Logger) *PDRWriter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &PDRWriter{sink: sink, logger: logger}
}

// Record writes a PDR entry for a state-mutating action.
func (w *PDRWriter) Record(action string, inputs interface{}, outcome, taskID, details string) (*models.PDREntry, error) {
	inputsHash := hashInputs(inputs)
	w.logger.Info("decision recorded",
		"action", action,
		"outcome", outcome,
		"task_id", taskID,
		"inputs_hash", inputsHash,
		"details", details,
	)
	if w.sink == nil {
		return &models.PDREntry{Action: action, InputsHash: inputsHash, Outcome: outcome, TaskID: taskID, Details: details}, nil
	}
	entry, err := w.sink.WritePDR(action, inputsHash, outcome, taskID, details)
	if err != nil {
		w.logger.Error("decision record not persisted",
			"action", action,
			"task_id", taskID,
			"inputs_hash", inputsHash,
			"error", err,
		)
		return nil, fmt.Errorf("write decision record: %w", err)
	}
	return entry, nil
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
