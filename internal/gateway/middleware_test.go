package gateway

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
)

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	// A caller-supplied id is echoed back.
	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/api/v1/health", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Request-Id", "trace-me-123")
	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-Id"); got != "trace-me-123" {
		t.Fatalf("X-Request-Id = %q, want trace-me-123", got)
	}

	// Otherwise one is generated.
	resp = env.request(t, http.MethodGet, "/api/v1/health", "", nil)
	resp.Body.Close()
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("no X-Request-Id generated")
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	env := newTestEnv(t)

	huge := `{"email":"a@example.com","password":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	resp, err := env.ts.Client().Post(env.ts.URL+"/api/v1/auth/register", "application/json", bytes.NewReader([]byte(huge)))
	if err != nil {
		t.Fatal(err)
	}
	var body errorBody
	decode(t, resp, http.StatusBadRequest, &body)
	if body.Code != "validation" {
		t.Fatalf("code = %q, want validation", body.Code)
	}
}

func TestMalformedJSONRejected(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.ts.Client().Post(env.ts.URL+"/api/v1/auth/register", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	var body errorBody
	decode(t, resp, http.StatusBadRequest, &body)
	if body.Code != "validation" {
		t.Fatalf("code = %q, want validation", body.Code)
	}

	// An empty body is equally a validation error, not a panic.
	resp, err = env.ts.Client().Post(env.ts.URL+"/api/v1/auth/register", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	decode(t, resp, http.StatusBadRequest, &body)
	if body.Code != "validation" {
		t.Fatalf("code = %q, want validation", body.Code)
	}
}
