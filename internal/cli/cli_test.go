package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/mindcanvas/internal/domain"
)

// fakeProvider answers streaming requests with reply and plain completions
// with a title.
func fakeProvider(t *testing.T, status int, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		var req struct {
			Stream bool `json:"stream"`
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)

		if !req.Stream {
			w.Write([]byte(`{"choices":[{"message":{"content":"Greeting"},"finish_reason":"stop"}]}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		delta, _ := json.Marshal(reply)
		fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%s}}]}\n\n", delta)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testCLI struct {
	t  *testing.T
	db string
}

func newTestCLI(t *testing.T, providerURL string) *testCLI {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("LLM_BASE_URL", providerURL)
	t.Setenv("BOT_TOKEN", "")
	return &testCLI{t: t, db: "sqlite://" + filepath.Join(t.TempDir(), "cli.db")}
}

func (c *testCLI) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--database", c.db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *testCLI) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

func TestMigrate(t *testing.T) {
	c := newTestCLI(t, "http://127.0.0.1:1")
	assert.Contains(t, c.mustRun("migrate"), "migrations applied")
}

func TestLoginWhoamiLogout(t *testing.T) {
	c := newTestCLI(t, "http://127.0.0.1:1")

	assert.Contains(t, c.mustRun("whoami"), "not signed in")

	assert.Contains(t, c.mustRun("login", "did:nuwa:alice"), "did:nuwa:alice")
	assert.Contains(t, c.mustRun("whoami"), "did:nuwa:alice")

	_, err := c.run("login", "alice")
	assert.ErrorIs(t, err, domain.ErrInvalidDID)
	assert.Contains(t, c.mustRun("whoami"), "did:nuwa:alice", "failed login keeps the identity")

	c.mustRun("logout")
	assert.Contains(t, c.mustRun("whoami"), "not signed in")
}

func TestCommandsRequireLogin(t *testing.T) {
	c := newTestCLI(t, "http://127.0.0.1:1")

	for _, args := range [][]string{{"sessions"}, {"documents"}, {"chat", "hi"}, {"clear"}} {
		_, err := c.run(args...)
		assert.ErrorIs(t, err, domain.ErrNotAuthenticated, args)
	}
}

func TestChatStreamsAnswer(t *testing.T) {
	srv := fakeProvider(t, http.StatusOK, "Hi from the model")
	c := newTestCLI(t, srv.URL)
	c.mustRun("login", "did:nuwa:alice")

	out := c.mustRun("chat", "hello", "there")
	assert.Contains(t, out, "Hi from the model")

	out = c.mustRun("sessions")
	assert.Contains(t, out, "1 chat(s)")

	c.mustRun("chat", "--new", "again")
	assert.Contains(t, c.mustRun("sessions"), "2 chat(s)")

	assert.Contains(t, c.mustRun("documents"), "No documents yet")
}

func TestChatProviderFailure(t *testing.T) {
	srv := fakeProvider(t, http.StatusTooManyRequests, "")
	c := newTestCLI(t, srv.URL)
	c.mustRun("login", "did:nuwa:alice")

	out, err := c.run("chat", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(domain.CategoryRateLimit))
	assert.Contains(t, out, "Too many requests")

	// the failure is kept in the chat history
	assert.Contains(t, c.mustRun("sessions"), "1 chat(s)")
}

func TestChatUnknownChatID(t *testing.T) {
	c := newTestCLI(t, "http://127.0.0.1:1")
	c.mustRun("login", "did:nuwa:alice")

	_, err := c.run("chat", "--chat", "nope", "hi")
	assert.Error(t, err)
}

func TestClear(t *testing.T) {
	srv := fakeProvider(t, http.StatusOK, "ok")
	c := newTestCLI(t, srv.URL)
	c.mustRun("login", "did:nuwa:alice")
	c.mustRun("chat", "hello")

	assert.Contains(t, c.mustRun("clear"), "cleared")
	assert.Contains(t, c.mustRun("sessions"), "No chats yet")

	c.mustRun("clear", "--all")
	assert.Contains(t, c.mustRun("whoami"), "not signed in")
}

func TestModelsCatalog(t *testing.T) {
	c := newTestCLI(t, "http://127.0.0.1:1")
	out := c.mustRun("models")
	assert.Contains(t, out, "chat-model")
	assert.Contains(t, out, "default")
}

func TestModelsRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Write([]byte(`{"data":[{"id":"vendor/free-model","name":"Free","context_length":8192,
			"pricing":{"prompt":"0","completion":"0"}}]}`))
	}))
	defer srv.Close()

	c := newTestCLI(t, srv.URL)
	out := c.mustRun("models", "--remote")
	assert.Contains(t, out, "vendor/free-model")
	assert.Contains(t, out, "free")
}
