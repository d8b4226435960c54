package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"trust-engine/internal/models"
)

// Taxonomy is the fixed set of categories the service is instructed to
// classify against. Anything outside this set in a response is dropped.
var Taxonomy = []string{
	"spam",
	"harassment",
	"scam",
	"off-topic",
	"explicit",
	"hate-speech",
	"violence",
	"self-harm",
	"fraud",
}

var taxonomySet = func() map[string]bool {
	set := make(map[string]bool, len(Taxonomy))
	for _, c := range Taxonomy {
		set[c] = true
	}
	return set
}()

// HTTPClassifier calls an external text-classification service.
type HTTPClassifier struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type classifyRequest struct {
	Content     string `json:"content"`
	Instruction string `json:"instruction"`
}

type classifyResponse struct {
	Categories []string `json:"categories"`
	Severity   string   `json:"severity"`
	Confidence float64  `json:"confidence"`
	Analysis   string   `json:"analysis"`
}

// NewHTTPClassifier creates a classifier client. The timeout bounds the
// whole request; callers additionally pass a context deadline.
func NewHTTPClassifier(baseURL, apiKey string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Classify sends the content to the classification service. Any transport
// or parse failure is returned as an error; the caller is expected to
// degrade to FailOpenResult rather than propagate it.
func (c *HTTPClassifier) Classify(ctx context.Context, content string, contentType models.ContentType) (Result, error) {
	reqBody := classifyRequest{
		Content:     content,
		Instruction: instructionFor(contentType),
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/classify", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("classifier API error: %d - %s", resp.StatusCode, string(body))
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}

	return sanitize(parsed), nil
}

// sanitize maps a raw service response onto the fixed taxonomy. Unknown
// categories are dropped and an unknown severity degrades to LOW so a
// malformed response can never escalate a decision.
func sanitize(raw classifyResponse) Result {
	result := Result{
		Severity:   models.SeverityLow,
		Confidence: raw.Confidence,
		Analysis:   raw.Analysis,
	}

	if models.IsValidSeverity(raw.Severity) {
		result.Severity = models.Severity(raw.Severity)
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}

	for _, category := range raw.Categories {
		if taxonomySet[category] {
			result.Categories = append(result.Categories, category)
		}
	}

	return result
}

// instructionFor builds the contentType-derived instruction sent with the
// classification request.
func instructionFor(contentType models.ContentType) string {
	return fmt.Sprintf(
		"Classify this %s submitted to a community platform. Categories: spam, harassment, scam, off-topic, explicit, hate-speech, violence, self-harm, fraud. Respond with categories, severity (LOW, MEDIUM, HIGH, CRITICAL) and confidence (0-1).",
		contentType,
	)
}
