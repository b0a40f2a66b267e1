package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "truconn/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal_error" {
			t.Fatalf("expected error code internal_error, got %q", body["error"])
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for internal errors")
		}
	})

	t.Run("invalid transition maps to bad request", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInvalidTransition, "invalid status: ARCHIVED"))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "invalid_transition" {
			t.Fatalf("expected error code invalid_transition, got %q", body["error"])
		}
		if body["error_description"] != "invalid status: ARCHIVED" {
			t.Fatalf("expected error_description to be returned, got %q", body["error_description"])
		}
	})

	t.Run("forbidden and not found keep their statuses", func(t *testing.T) {
		cases := map[dErrors.Code]int{
			dErrors.CodeForbidden: http.StatusForbidden,
			dErrors.CodeNotFound:  http.StatusNotFound,
		}
		for code, status := range cases {
			w := httptest.NewRecorder()
			WriteError(w, dErrors.New(code, "x"))
			if w.Code != status {
				t.Fatalf("code %s: expected %d, got %d", code, status, w.Code)
			}
		}
	})
}

func TestWriteFailure(t *testing.T) {
	w := httptest.NewRecorder()
	WriteFailure(w, dErrors.Wrap(errors.New("connection refused"), dErrors.CodeInternal, "failed to read access requests"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error"] != "failed to read access requests: connection refused" {
		t.Fatalf("expected underlying message, got %q", body["error"])
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Status string `json:"status"`
	}

	t.Run("decodes valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"RESOLVED"}`))
		w := httptest.NewRecorder()
		got, ok := DecodeJSON[payload](w, r, nil, "req-1")
		if !ok {
			t.Fatalf("expected decode to succeed")
		}
		if got.Status != "RESOLVED" {
			t.Fatalf("expected RESOLVED, got %q", got.Status)
		}
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"state":"RESOLVED"}`))
		w := httptest.NewRecorder()
		_, ok := DecodeJSON[payload](w, r, nil, "req-1")
		if ok {
			t.Fatalf("expected decode to fail")
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("rejects empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(""))
		w := httptest.NewRecorder()
		_, ok := DecodeJSON[payload](w, r, nil, "req-1")
		if ok {
			t.Fatalf("expected decode to fail")
		}
		var body map[string]string
		_ = json.NewDecoder(w.Body).Decode(&body)
		if body["error_description"] != "request body is required" {
			t.Fatalf("unexpected description %q", body["error_description"])
		}
	})
}
