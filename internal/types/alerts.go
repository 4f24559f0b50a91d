package types

import "time"

// Severity levels assigned by the classification rules, lowest first.
const (
	SeverityInfo     = "INFO"
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

var severityRank = map[string]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// SeverityRank orders severities. Unknown values rank below INFO.
func SeverityRank(s string) int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s string) bool {
	_, ok := severityRank[s]
	return ok
}

// TrackedAlert is a MazeRunner alert seen by the tracker, with the
// classification it received.
type TrackedAlert struct {
	ID          int            `json:"id"`
	AlertType   string         `json:"alert_type"`
	DecoyName   string         `json:"decoy_name"`
	Status      string         `json:"status"`
	Timestamp   string         `json:"timestamp,omitempty"`
	TrackedAt   time.Time      `json:"tracked_at"`
	Severity    string         `json:"severity"`
	RuleID      string         `json:"rule_id,omitempty"`
	RuleName    string         `json:"rule_name,omitempty"`
	Description string         `json:"description,omitempty"`
	Actions     []string       `json:"recommended_actions,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// RuleInfo describes a loaded classification rule.
type RuleInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Severity    string   `json:"severity"`
	Expression  string   `json:"expression"`
	Actions     []string `json:"recommended_actions,omitempty"`
}
