package alerts

import "errors"

// Severity levels.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Alert is a generated finding, consumed once by the caller and never
// persisted long-term.
type Alert struct {
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

// Validate checks alert invariants.
func (a Alert) Validate() error {
	switch a.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh:
	default:
		return errors.New("alert: invalid severity")
	}
	if a.Title == "" {
		return errors.New("alert: empty title")
	}
	return nil
}
