// Package types defines shared API types for tracked alerts, classification
// rules and SOC feed results served by the tooling HTTP APIs.
package types

import "time"

// SOCEvent is one event forwarded to the MazeRunner SOC API. Keys are the
// SOC's own field names.
type SOCEvent map[string]any

// FeedResult records the outcome of one spooled file or syslog batch.
type FeedResult struct {
	Source      string    `json:"source"`
	Events      int       `json:"events"`
	SubmittedAt time.Time `json:"submitted_at"`
	Error       string    `json:"error,omitempty"`
}

// OK reports whether the batch was accepted.
func (r FeedResult) OK() bool { return r.Error == "" }
