package classifier

import (
	"context"

	"trust-engine/internal/models"
)

// Result is the semantic classification of one piece of text.
type Result struct {
	Categories []string        `json:"categories"`
	Severity   models.Severity `json:"severity"`
	Confidence float64         `json:"confidence"`
	Analysis   string          `json:"analysis"`
}

// Classifier classifies submitted text against a fixed category taxonomy.
// Implementations must not block past the caller's context deadline.
type Classifier interface {
	Classify(ctx context.Context, content string, contentType models.ContentType) (Result, error)
}

// FailOpenResult is the degraded default used when the classification
// service is unreachable or returns a malformed response: no categories,
// lowest severity, zero confidence. The rule-based filter still applies.
func FailOpenResult() Result {
	return Result{
		Categories: nil,
		Severity:   models.SeverityLow,
		Confidence: 0,
	}
}

// Noop is the null-object classifier used when no classification service
// is configured. It always returns the fail-open default.
type Noop struct{}

// Classify returns the fail-open default.
func (Noop) Classify(ctx context.Context, content string, contentType models.ContentType) (Result, error) {
	return FailOpenResult(), nil
}
