package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/quanhua92/buildscale-ai-sub000/internal/tools"
	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

func TestToolInvokeWrite(t *testing.T) {
	env := newTestEnv(t)
	token, ws := env.signup(t, "ada@example.com")

	args, _ := json.Marshal(map[string]string{"path": "/tool.md", "content": "via tool"})
	resp := env.request(t, http.MethodPost, "/api/v1/workspaces/"+ws+"/tools", token, toolInvokeRequest{
		Tool: "write",
		Args: args,
	})
	var out tools.Response
	decode(t, resp, http.StatusOK, &out)
	if !out.Success {
		t.Fatalf("tool response = %+v, want success", out)
	}

	// The write landed in the workspace filesystem.
	resp = env.request(t, http.MethodGet, "/api/v1/workspaces/"+ws+"/files/content?path=/tool.md", token, nil)
	var read fileReadResponse
	decode(t, resp, http.StatusOK, &read)
	if read.Content != "via tool" {
		t.Fatalf("content = %q", read.Content)
	}
}

func TestToolInvokeFailuresAreInBand(t *testing.T) {
	env := newTestEnv(t)
	token, ws := env.signup(t, "ada@example.com")

	// Unknown tool names are a failed execution, not an HTTP error.
	resp := env.request(t, http.MethodPost, "/api/v1/workspaces/"+ws+"/tools", token, toolInvokeRequest{
		Tool: "no-such-tool",
		Args: json.RawMessage(`{}`),
	})
	var out tools.Response
	decode(t, resp, http.StatusOK, &out)
	if out.Success || out.Error == "" {
		t.Fatalf("tool response = %+v, want in-band failure", out)
	}

	// Bad arguments likewise.
	resp = env.request(t, http.MethodPost, "/api/v1/workspaces/"+ws+"/tools", token, toolInvokeRequest{
		Tool: "read",
		Args: json.RawMessage(`{"path": 42}`),
	})
	decode(t, resp, http.StatusOK, &out)
	if out.Success || out.Error == "" {
		t.Fatalf("tool response = %+v, want in-band failure", out)
	}

	// A missing tool name is a request error.
	resp = env.request(t, http.MethodPost, "/api/v1/workspaces/"+ws+"/tools", token, toolInvokeRequest{
		Args: json.RawMessage(`{}`),
	})
	decode(t, resp, http.StatusBadRequest, nil)
}

func TestToolList(t *testing.T) {
	env := newTestEnv(t)
	token, ws := env.signup(t, "ada@example.com")

	resp := env.request(t, http.MethodGet, "/api/v1/workspaces/"+ws+"/tools", token, nil)
	var out struct {
		Tools []toolInfo `json:"tools"`
	}
	decode(t, resp, http.StatusOK, &out)

	names := map[string]bool{}
	for _, info := range out.Tools {
		if info.Description == "" || len(info.Schema) == 0 {
			t.Fatalf("tool %s missing description or schema", info.Name)
		}
		names[info.Name] = true
	}
	for _, want := range []string{"ls", "read", "write", "edit", "grep"} {
		if !names[want] {
			t.Fatalf("tool list missing %s; got %v", want, names)
		}
	}
}

func TestSessionStats(t *testing.T) {
	env := newTestEnv(t)
	token, ws := env.signup(t, "ada@example.com")

	seed := func(status models.SessionStatus) {
		sess, err := env.sessions.GetOrCreate(context.Background(), &models.AgentSession{
			ID:          uuid.NewString(),
			WorkspaceID: ws,
			ChatFileID:  uuid.NewString(),
			UserID:      uuid.NewString(),
			AgentType:   models.AgentAssistant,
			Model:       "test:test-model",
			Mode:        models.ModeChat,
		})
		if err != nil {
			t.Fatalf("seed session: %v", err)
		}
		if status != models.StatusIdle {
			if _, err := env.sessions.UpdateStatus(context.Background(), sess.ID, status, nil); err != nil {
				t.Fatalf("seed status %s: %v", status, err)
			}
		}
	}
	seed(models.StatusIdle)
	seed(models.StatusRunning)
	seed(models.StatusRunning)

	resp := env.request(t, http.MethodGet, "/api/v1/workspaces/"+ws+"/sessions/stats", token, nil)
	var stats sessionStatsResponse
	decode(t, resp, http.StatusOK, &stats)
	if stats.WorkspaceID != ws || stats.Total != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Counts[models.StatusRunning] != 2 || stats.Counts[models.StatusIdle] != 1 {
		t.Fatalf("counts = %v", stats.Counts)
	}

	// A second read within the TTL serves the cached snapshot.
	seed(models.StatusIdle)
	resp = env.request(t, http.MethodGet, "/api/v1/workspaces/"+ws+"/sessions/stats", token, nil)
	var again sessionStatsResponse
	decode(t, resp, http.StatusOK, &again)
	if again.Total != 3 || !again.GeneratedAt.Equal(stats.GeneratedAt) {
		t.Fatalf("cached stats = %+v, want snapshot from %v", again, stats.GeneratedAt)
	}

	// Expiring the cache exposes the new session.
	env.cache.Delete("sessions:stats:" + ws)
	resp = env.request(t, http.MethodGet, "/api/v1/workspaces/"+ws+"/sessions/stats", token, nil)
	var fresh sessionStatsResponse
	decode(t, resp, http.StatusOK, &fresh)
	if fresh.Total != 4 {
		t.Fatalf("fresh stats total = %d, want 4", fresh.Total)
	}
}
