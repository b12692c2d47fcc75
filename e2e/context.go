package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const headerAdminToken = "X-Admin-Token"

// TestContext drives a running regwatch server over HTTP and keeps the last
// response plus the ids learned during a scenario.
type TestContext struct {
	baseURL    string
	adminToken string
	runID      string
	client     *http.Client

	lastStatus int
	lastBody   []byte

	domainIDs map[string]string
	flagIDs   map[string]string
}

func NewTestContext(baseURL, adminToken, runID string) *TestContext {
	return &TestContext{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: adminToken,
		runID:      runID,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.domainIDs = make(map[string]string)
	tc.flagIDs = make(map[string]string)
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil, false)
}

func (tc *TestContext) AdminPOST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, true)
}

func (tc *TestContext) AdminPUT(path string, body any) error {
	return tc.do(http.MethodPut, path, body, true)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, false)
}

func (tc *TestContext) StatusCode() int { return tc.lastStatus }

func (tc *TestContext) Body() []byte { return tc.lastBody }

// DecodeResponse unmarshals the last body into v.
func (tc *TestContext) DecodeResponse(v any) error {
	if err := json.Unmarshal(tc.lastBody, v); err != nil {
		return fmt.Errorf("decode response %q: %w", string(tc.lastBody), err)
	}
	return nil
}

// GetResponseField returns a top-level field of the last JSON body.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := tc.DecodeResponse(&body); err != nil {
		return nil, err
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response %s", field, string(tc.lastBody))
	}
	return v, nil
}

// FQDN maps a feature-file alias such as "example.com" to the name used on
// the server for this run, so repeated runs never collide.
func (tc *TestContext) FQDN(alias string) string {
	i := strings.LastIndex(alias, ".")
	if i <= 0 {
		return alias
	}
	return alias[:i] + "-" + tc.runID + alias[i:]
}

// Alias reverses FQDN. Names from other runs are returned unchanged.
func (tc *TestContext) Alias(fqdn string) string {
	return strings.Replace(fqdn, "-"+tc.runID+".", ".", 1)
}

func (tc *TestContext) RememberDomain(alias, domainID string) { tc.domainIDs[alias] = domainID }

func (tc *TestContext) DomainID(alias string) (string, error) {
	v, ok := tc.domainIDs[alias]
	if !ok {
		return "", fmt.Errorf("domain %q was not set up in this scenario", alias)
	}
	return v, nil
}

func (tc *TestContext) RememberFlag(name, flagID string) { tc.flagIDs[name] = flagID }

func (tc *TestContext) FlagID(name string) (string, error) {
	v, ok := tc.flagIDs[name]
	if !ok {
		return "", fmt.Errorf("flag %q is not in the catalog", name)
	}
	return v, nil
}

func (tc *TestContext) do(method, path string, body any, admin bool) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set(headerAdminToken, tc.adminToken)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return nil
}
