// Package e2e runs the compliance feature files against a deployed truconn
// server. Set E2E_BASE_URL and E2E_OWNER_TOKEN to enable it.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext carries HTTP state across the steps of one scenario.
type TestContext struct {
	BaseURL    string
	OwnerToken string

	client      *http.Client
	token       string
	lastStatus  int
	lastBody    []byte
	lastHeaders http.Header
	remembered  map[string]any
}

func NewTestContext(baseURL, ownerToken string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		OwnerToken: ownerToken,
		client:     &http.Client{Timeout: 30 * time.Second},
		remembered: make(map[string]any),
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.token = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastHeaders = nil
	tc.remembered = make(map[string]any)
}

func (tc *TestContext) UseToken(token string) { tc.token = token }

func (tc *TestContext) Owner() string { return tc.OwnerToken }

// Do sends a request and records the response.
func (tc *TestContext) Do(ctx context.Context, method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastStatus = resp.StatusCode
	tc.lastHeaders = resp.Header
	return nil
}

func (tc *TestContext) LastStatus() int { return tc.lastStatus }

func (tc *TestContext) LastHeader(key string) string { return tc.lastHeaders.Get(key) }

// Field reads a dotted path such as "statistics.total_audits" from the last
// JSON response.
func (tc *TestContext) Field(path string) (any, error) {
	var cur any
	if err := json.Unmarshal(tc.lastBody, &cur); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", path, part)
		}
		if cur, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %q missing in %s", path, tc.lastBody)
		}
	}
	return cur, nil
}

func (tc *TestContext) Remember(key string, v any) { tc.remembered[key] = v }

func (tc *TestContext) Recall(key string) (any, bool) {
	v, ok := tc.remembered[key]
	return v, ok
}
