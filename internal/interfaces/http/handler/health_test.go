package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldvault/backend/internal/infrastructure/scheduler"
)

type staticJobs []scheduler.JobRecord

func (s staticJobs) Status() []scheduler.JobRecord { return s }

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: connection refused") }

	serveHealth := func(h *HealthHandler) (*httptest.ResponseRecorder, HealthResponse) {
		r := gin.New()
		r.GET("/health", h.Health)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return w, resp
	}

	t.Run("all up", func(t *testing.T) {
		h := NewHealthHandler(map[string]HealthCheck{"database": ok, "redis": ok},
			staticJobs{{Name: scheduler.JobReconcile, Status: scheduler.JobStatusSuccess}})
		w, resp := serveHealth(h)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "up", resp.Components["database"].Status)
		require.Len(t, resp.Jobs, 1)
		assert.Equal(t, scheduler.JobReconcile, resp.Jobs[0].Name)
	})

	t.Run("one dependency down", func(t *testing.T) {
		h := NewHealthHandler(map[string]HealthCheck{"database": ok, "redis": down}, nil)
		w, resp := serveHealth(h)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "down", resp.Components["redis"].Status)
		assert.Contains(t, resp.Components["redis"].Error, "connection refused")
		assert.Empty(t, resp.Jobs)
	})
}
