package models

// Severity is the ordinal risk level shared by the moderation and fraud
// engines: LOW < MEDIUM < HIGH < CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordinal position of the severity. Unknown values rank
// as LOW so a malformed classifier response can never escalate a decision.
func (s Severity) Rank() int {
	return severityRank[s]
}

// IsValidSeverity reports whether s is one of the four known levels.
func IsValidSeverity(s string) bool {
	_, ok := severityRank[Severity(s)]
	return ok
}

// MaxSeverity returns the higher of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}
