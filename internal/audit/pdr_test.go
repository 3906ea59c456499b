package audit

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/missionctl/internal/logging"
	"github.com/fentz26/missionctl/internal/models"
	"github.com/fentz26/missionctl/internal/store"
)

func TestRecordWritesToStore(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer s.Close()

	w := NewPDRWriter(s, nil)
	inputs := map[string]string{"from": "Planning, dev feedback pending", "to": "Development"}
	entry, err := w.Record(ActionPromote, inputs, OutcomeSuccess, "proj-001", "planning -> development")
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Len(t, entry.InputsHash, 64)

	entries, err := s.ListPDRs("proj-001", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.InputsHash, entries[0].InputsHash)
}

func TestHashInputsIsStable(t *testing.T) {
	a := hashInputs(map[string]int{"x": 1, "y": 2})
	b := hashInputs(map[string]int{"y": 2, "x": 1})
	assert.Equal(t, a, b)
	assert.Equal(t, "hash_error", hashInputs(func() {}))
}

func TestRecordWithoutSink(t *testing.T) {
	entry, err := NewPDRWriter(nil, nil).Record(ActionPromote, nil, OutcomeFailure, "proj-002", "write failed")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailure, entry.Outcome)
}

type brokenSink struct{}

func (brokenSink) WritePDR(action, inputsHash, outcome, taskID, details string) (*models.PDREntry, error) {
	return nil, errors.New("database is locked")
}

func TestRecordSurfacesSinkFailure(t *testing.T) {
	var buf bytes.Buffer
	w := NewPDRWriter(brokenSink{}, logging.NewWriter(&buf, logging.LevelInfo))

	entry, err := w.Record(ActionPromote, map[string]string{"to": "Development"}, OutcomeSuccess, "proj-003", "promoted")
	require.Error(t, err)
	assert.Nil(t, entry)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Contains(t, buf.String(), "decision record not persisted")
	assert.Contains(t, buf.String(), `"task_id":"proj-003"`)
}
