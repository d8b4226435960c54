package classifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trust-engine/internal/models"
)

func TestClassifySanitizesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/classify" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}

		var req classifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Content != "win free money now" {
			t.Errorf("unexpected content %q", req.Content)
		}
		if req.Instruction == "" {
			t.Error("request should carry a classification instruction")
		}

		json.NewEncoder(w).Encode(classifyResponse{
			Categories: []string{"spam", "made-up-category", "scam"},
			Severity:   "HIGH",
			Confidence: 1.4,
			Analysis:   "promotional scam pattern",
		})
	}))
	defer server.Close()

	client := NewHTTPClassifier(server.URL, "test-key", 5*time.Second)
	result, err := client.Classify(context.Background(), "win free money now", models.ContentTypePost)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if len(result.Categories) != 2 || result.Categories[0] != "spam" || result.Categories[1] != "scam" {
		t.Errorf("unknown categories should be dropped, got %v", result.Categories)
	}
	if result.Severity != models.SeverityHigh {
		t.Errorf("expected HIGH severity, got %s", result.Severity)
	}
	if result.Confidence != 1 {
		t.Errorf("confidence should clamp to 1, got %f", result.Confidence)
	}
}

func TestClassifyDegradesUnknownSeverity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(classifyResponse{
			Categories: []string{"harassment"},
			Severity:   "APOCALYPTIC",
			Confidence: -0.3,
		})
	}))
	defer server.Close()

	client := NewHTTPClassifier(server.URL, "test-key", 5*time.Second)
	result, err := client.Classify(context.Background(), "some text", models.ContentTypeChat)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if result.Severity != models.SeverityLow {
		t.Errorf("unknown severity must degrade to LOW, got %s", result.Severity)
	}
	if result.Confidence != 0 {
		t.Errorf("negative confidence should clamp to 0, got %f", result.Confidence)
	}
}

func TestClassifyReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClassifier(server.URL, "test-key", 5*time.Second)
	if _, err := client.Classify(context.Background(), "some text", models.ContentTypePost); err == nil {
		t.Fatal("non-200 response must surface as an error so callers can fail open")
	}
}

func TestClassifyReportsMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	client := NewHTTPClassifier(server.URL, "test-key", 5*time.Second)
	if _, err := client.Classify(context.Background(), "some text", models.ContentTypePost); err == nil {
		t.Fatal("malformed body must surface as an error so callers can fail open")
	}
}

func TestClassifyHonorsContextDeadline(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewHTTPClassifier(server.URL, "test-key", 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.Classify(ctx, "some text", models.ContentTypePost); err == nil {
		t.Fatal("expired context must surface as an error")
	}
	<-started
}

func TestNoopFailsOpen(t *testing.T) {
	result, err := (Noop{}).Classify(context.Background(), "anything", models.ContentTypeChat)
	if err != nil {
		t.Fatalf("Noop must never error: %v", err)
	}
	if result.Severity != models.SeverityLow || len(result.Categories) != 0 || result.Confidence != 0 {
		t.Errorf("Noop must return the fail-open default, got %+v", result)
	}
}
