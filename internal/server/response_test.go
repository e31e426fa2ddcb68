package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pleiades-agents/pleiades/internal/agent"
	"github.com/pleiades-agents/pleiades/internal/dispatch"
	"github.com/pleiades-agents/pleiades/internal/instructions"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"message": "hello"}

	writeJSON(w, http.StatusOK, data)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", contentType)
	}

	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result["message"] != "hello" {
		t.Errorf("Expected message 'hello', got '%s'", result["message"])
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid input")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	var result ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result.Error.Code != ErrCodeInvalidRequest {
		t.Errorf("Expected code %s, got %s", ErrCodeInvalidRequest, result.Error.Code)
	}
	if result.Error.Message != "Invalid input" {
		t.Errorf("Expected message 'Invalid input', got '%s'", result.Error.Message)
	}
	if result.Error.Details != nil {
		t.Errorf("Expected no details, got %v", result.Error.Details)
	}
}

func TestWriteErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	details := map[string]any{
		"name":        "comit-writer",
		"suggestions": []string{"commit-writer"},
	}

	writeErrorWithDetails(w, http.StatusNotFound, ErrCodeNotFound, "agent not found", details)

	var result ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result.Error.Details["name"] != "comit-writer" {
		t.Errorf("Expected details.name 'comit-writer', got '%v'", result.Error.Details["name"])
	}
}

func TestWriteDispatchError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", &agent.NotFoundError{Name: "ghost"}, http.StatusNotFound, ErrCodeNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", &agent.NotFoundError{Name: "ghost"}), http.StatusNotFound, ErrCodeNotFound},
		{"validation", &agent.ValidationError{Violations: []agent.Violation{{Agent: "a", Rule: agent.RuleCycle, Detail: "a → a"}}}, http.StatusUnprocessableEntity, ErrCodeValidationFailed},
		{"missing instructions", fmt.Errorf("AGENT.md for x: %w", instructions.ErrMissing), http.StatusNotFound, ErrCodeNotFound},
		{"invalid request", fmt.Errorf("%w: agent is required", dispatch.ErrInvalidRequest), http.StatusBadRequest, ErrCodeInvalidRequest},
		{"other", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeDispatchError(w, tt.err)

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			var result ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if result.Error.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, result.Error.Code)
			}
		})
	}
}

func TestWriteDispatchError_Details(t *testing.T) {
	w := httptest.NewRecorder()
	writeDispatchError(w, &agent.NotFoundError{Name: "comit-writer", Suggestions: []string{"commit-writer"}})

	var result ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	suggestions, ok := result.Error.Details["suggestions"].([]any)
	if !ok || len(suggestions) != 1 || suggestions[0] != "commit-writer" {
		t.Errorf("Expected suggestions [commit-writer], got %v", result.Error.Details["suggestions"])
	}

	w = httptest.NewRecorder()
	writeDispatchError(w, &agent.ValidationError{Violations: []agent.Violation{{Agent: "a", Rule: agent.RuleDanglingRef, Detail: "b"}}})
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	violations, ok := result.Error.Details["violations"].([]any)
	if !ok || len(violations) != 1 {
		t.Fatalf("Expected one violation, got %v", result.Error.Details["violations"])
	}
	if v := violations[0].(map[string]any); v["rule"] != string(agent.RuleDanglingRef) {
		t.Errorf("Expected rule %s, got %v", agent.RuleDanglingRef, v["rule"])
	}
}
