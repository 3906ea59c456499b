package scheduler

import "time"

// Config defines the scheduler configuration.
type Config struct {
	// Interval is the fixed tick period.
	Interval time.Duration
	// RunOnStart fires one tick as soon as the scheduler starts.
	RunOnStart bool
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:   10 * time.Second,
		RunOnStart: true,
	}
}
