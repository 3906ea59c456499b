package models

import (
	"encoding/json"
	"sort"
	"strings"
)

// RunSet holds run records keyed by (role, taskId). On the wire it is a JSON
// array sorted by task ID and role order.
type RunSet map[RunKey]*RunRecord

// Put stores run under its key, replacing any previous record for the key.
func (s RunSet) Put(run *RunRecord) {
	s[run.Key()] = run
}

// Get returns the record for key, if any.
func (s RunSet) Get(key RunKey) (*RunRecord, bool) {
	run, ok := s[key]
	return run, ok
}

// Sorted returns the records in deterministic order.
func (s RunSet) Sorted() []*RunRecord {
	out := make([]*RunRecord, 0, len(s))
	for _, run := range s {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().Less(out[j].Key())
	})
	return out
}

// ForTask returns the records of one task in role order.
func (s RunSet) ForTask(taskID string) []*RunRecord {
	var out []*RunRecord
	for _, run := range s.Sorted() {
		if run.TaskID == taskID {
			out = append(out, run)
		}
	}
	return out
}

// Clone returns a deep copy of the set.
func (s RunSet) Clone() RunSet {
	out := make(RunSet, len(s))
	for k, run := range s {
		cp := *run
		out[k] = &cp
	}
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s RunSet) MarshalJSON() ([]byte, error) {
	runs := s.Sorted()
	if runs == nil {
		runs = []*RunRecord{}
	}
	return json.Marshal(runs)
}

// UnmarshalJSON decodes an array of records. Records that fail to decode or
// carry an unknown role or status are skipped; duplicate keys keep the last
// record seen.
func (s *RunSet) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(RunSet, len(raw))
	for _, item := range raw {
		var run RunRecord
		if err := json.Unmarshal(item, &run); err != nil {
			continue
		}
		if !run.normalize() {
			continue
		}
		out.Put(&run)
	}
	*s = out
	return nil
}

// normalize repairs a decoded record in place and reports whether it is usable.
// Task IDs are folded to the lower-cased form the reconciler keys on.
func (r *RunRecord) normalize() bool {
	r.TaskID = strings.ToLower(strings.TrimSpace(r.TaskID))
	role, ok := ParseRole(string(r.Role))
	if !ok || r.TaskID == "" {
		return false
	}
	status, ok := ParseRunStatus(string(r.Status))
	if !ok {
		return false
	}
	r.Role = role
	r.Status = status
	if phase, ok := ParsePhase(string(r.Phase)); ok {
		r.Phase = phase
	} else {
		r.Phase = ""
	}
	if r.PollMode != PollModeRecovery {
		r.PollMode = PollModeNormal
	}
	if r.Attempts < 0 {
		r.Attempts = 0
	}
	return true
}
