package domain

import "time"

// SkipReason explains why a drain request did not run a cycle.
type SkipReason string

const (
	SkipNone    SkipReason = ""
	SkipOffline SkipReason = "offline"
	SkipBusy    SkipReason = "busy"
)

// DrainResult summarizes one drain cycle.
type DrainResult struct {
	// Synced counts entries submitted and removed
	Synced int `json:"synced"`

	// Failed is 1 when the cycle stopped on a rejected entry, else 0
	Failed int `json:"failed"`

	// FailedID is the id of the entry that stopped the cycle
	FailedID string `json:"failed_id,omitempty"`

	// Skipped is set when no cycle ran
	Skipped SkipReason `json:"skipped,omitempty"`

	// Duration is the wall time of the cycle
	Duration time.Duration `json:"duration"`
}

// Ran reports whether a cycle actually executed.
func (r DrainResult) Ran() bool {
	return r.Skipped == SkipNone
}
