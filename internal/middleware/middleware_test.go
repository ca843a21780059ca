package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/repository"
	"github.com/set-night/mindcanvas/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestLimiter(t *testing.T) {
	l := NewLimiter(2)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys have separate buckets")

	assert.Equal(t, 0, l.Prune(time.Hour))
	assert.Equal(t, 2, l.Prune(0))
	assert.True(t, l.Allow("a"), "pruned key starts with a full bucket")
}

func TestLimiterDisabled(t *testing.T) {
	l := NewLimiter(0)
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("a"))
	}
	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow("a"))
}

func TestTelegramDID(t *testing.T) {
	assert.Equal(t, "did:nuwa:tg12345", TelegramDID(12345))
	assert.Equal(t, "did:nuwa:tg_100200", TelegramDID(-100200))
	assert.NoError(t, domain.ValidateDID(TelegramDID(-100200)))
}

func newApp(t *testing.T) *service.App {
	t.Helper()
	store, err := repository.Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	app := service.NewApp(service.AppDeps{Store: store})
	t.Cleanup(func() {
		app.Close()
		store.Close()
	})
	return app
}

func TestIdentity(t *testing.T) {
	app := newApp(t)

	r := gin.New()
	r.Use(Identity(app))
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, Workspace(c).Owner)
	})

	tests := []struct {
		name   string
		did    string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, ""},
		{"invalid", "alice", http.StatusBadRequest, ""},
		{"valid", "did:nuwa:alice", http.StatusOK, "did:nuwa:alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.did != "" {
				req.Header.Set(DIDHeader, tt.did)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRateLimitHTTP(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitHTTP(NewLimiter(1)))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(did string) int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(DIDHeader, did)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, do("did:nuwa:a"))
	assert.Equal(t, http.StatusTooManyRequests, do("did:nuwa:a"))
	assert.Equal(t, http.StatusNoContent, do("did:nuwa:b"))
}

func TestRecoverHTTP(t *testing.T) {
	r := gin.New()
	r.Use(RecoverHTTP())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}
