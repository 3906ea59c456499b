package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	ErrNotInitialized = errors.New("runner state not initialized")
	ErrTaskNotFound   = errors.New("no runs for task")
)
