package services

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"trust-engine/internal/models"
)

// Rule-based filter thresholds.
const (
	MaxContentLength    = 5000
	MaxURLCount         = 3
	UppercaseRatioLimit = 0.70
	UppercaseMinLength  = 20

	MediumViolationCount = 3
	HighViolationCount   = 5
)

// blocklist holds lexical matches that always count as a violation.
var blocklist = []string{
	"free crypto giveaway",
	"guaranteed returns",
	"wire me",
	"send nudes",
	"kys",
}

// spamPatterns are the four spam pattern classes the rule filter matches.
var spamPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"promotional urgency language", regexp.MustCompile(`(?i)\b(act now|limited time( offer)?|buy now|order today|don'?t miss( out)?|last chance)\b`)},
	{"free money phrases", regexp.MustCompile(`(?i)\b(free (money|cash|gift ?card)|earn \$\d+|make \$\d+|get rich( quick)?|double your (money|coins))\b`)},
	{"raw URL", regexp.MustCompile(`https?://\S+`)},
	{"bare domain", regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9-]*\.(com|net|org|io|xyz|info|biz)\b`)},
}

var urlPattern = spamPatterns[2].re

// ruleFilterResult is the outcome of the lexical/structural filter stage.
type ruleFilterResult struct {
	Violations []string
	Severity   models.Severity
}

// runRuleFilter applies the rule-based stage: blocklist terms, the spam
// pattern classes, and structural checks. Severity escalates with the
// number of matched rules: 3 violations lift LOW to MEDIUM, 5 to HIGH.
func runRuleFilter(content string) ruleFilterResult {
	var violations []string

	lowered := strings.ToLower(content)
	for _, term := range blocklist {
		if strings.Contains(lowered, term) {
			violations = append(violations, fmt.Sprintf("blocked term: %q", term))
		}
	}

	for _, pattern := range spamPatterns {
		if pattern.re.MatchString(content) {
			violations = append(violations, "spam pattern: "+pattern.name)
		}
	}

	if len(content) > MaxContentLength {
		violations = append(violations, fmt.Sprintf("content exceeds %d characters", MaxContentLength))
	}

	if urls := urlPattern.FindAllString(content, -1); len(urls) > MaxURLCount {
		violations = append(violations, fmt.Sprintf("too many links (%d)", len(urls)))
	}

	if len(content) > UppercaseMinLength && uppercaseRatio(content) > UppercaseRatioLimit {
		violations = append(violations, "excessive uppercase")
	}

	severity := models.SeverityLow
	if len(violations) >= HighViolationCount {
		severity = models.SeverityHigh
	} else if len(violations) >= MediumViolationCount {
		severity = models.SeverityMedium
	}

	return ruleFilterResult{Violations: violations, Severity: severity}
}

// uppercaseRatio returns the share of letters that are uppercase.
func uppercaseRatio(content string) float64 {
	letters := 0
	upper := 0
	for _, r := range content {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}
