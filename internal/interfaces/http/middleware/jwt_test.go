package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yieldvault/backend/internal/infrastructure/auth"
	"github.com/yieldvault/backend/internal/infrastructure/config"
	"github.com/yieldvault/backend/internal/infrastructure/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:          "test-secret-key-at-least-32-chars",
		Issuer:          "yield-ledger-test",
		TokenExpiration: 15 * time.Minute,
	})
}

func issue(t *testing.T, svc *auth.JWTService, client uuid.UUID, scopes ...auth.Scope) string {
	t.Helper()
	tok, err := svc.Issue(auth.IssueInput{Subject: "partner-api", ClientID: client, Scopes: scopes})
	require.NoError(t, err)
	return tok.Token
}

func serve(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	svc := newTestJWTService()
	client := uuid.New()

	router := gin.New()
	router.Use(logger.GinMiddleware(zap.NewNop()), JWTAuthMiddleware(svc))
	router.GET("/test", func(c *gin.Context) {
		claims := GetJWTClaims(c)
		require.NotNil(t, claims)
		assert.Equal(t, "partner-api", GetJWTSubject(c))
		assert.Equal(t, client.String(), GetJWTClientID(c))
		assert.Equal(t, "partner-api", logger.GetSubject(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	rec := serve(router, http.MethodGet, "/test", issue(t, svc, client, auth.ScopeRead))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	svc := newTestJWTService()
	expired := auth.NewJWTService(config.JWTConfig{
		Secret:          "test-secret-key-at-least-32-chars",
		Issuer:          "yield-ledger-test",
		TokenExpiration: -time.Minute,
	})

	core, logs := observer.New(zap.WarnLevel)
	cfg := DefaultJWTConfig(svc)
	cfg.Logger = zap.New(core)

	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(cfg))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "ERR_UNAUTHORIZED"},
		{"wrong scheme", "Basic abc", "ERR_UNAUTHORIZED"},
		{"empty bearer", "Bearer ", "ERR_UNAUTHORIZED"},
		{"garbage token", "Bearer not.a.jwt", "ERR_TOKEN_INVALID"},
		{"expired token", "Bearer " + issue(t, expired, uuid.New(), auth.ScopeRead), "ERR_TOKEN_EXPIRED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
		})
	}
	assert.Equal(t, len(tests), logs.FilterMessage("JWT authentication failed").Len())
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	router := gin.New()
	router.Use(JWTAuthMiddleware(newTestJWTService()))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health", "").Code)
}

func TestRequireScope(t *testing.T) {
	svc := newTestJWTService()
	client := uuid.New()

	router := gin.New()
	router.Use(JWTAuthMiddleware(svc))
	router.POST("/write", RequireScope(auth.ScopeWrite), func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/admin", RequireScope(auth.ScopeAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	reader := issue(t, svc, client, auth.ScopeRead)
	writer := issue(t, svc, client, auth.ScopeRead, auth.ScopeWrite)
	admin := issue(t, svc, uuid.Nil, auth.ScopeAdmin)

	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodPost, "/write", reader).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/write", writer).Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodPost, "/admin", writer).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/write", admin).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/admin", admin).Code)
}

func TestRequireClientParam(t *testing.T) {
	svc := newTestJWTService()
	mine, other := uuid.New(), uuid.New()

	router := gin.New()
	router.Use(JWTAuthMiddleware(svc))
	router.GET("/clients/:clientId/mrr", RequireClientParam("clientId"), func(c *gin.Context) { c.Status(http.StatusOK) })

	bound := issue(t, svc, mine, auth.ScopeRead)
	unboundReader := issue(t, svc, uuid.Nil, auth.ScopeRead)
	admin := issue(t, svc, uuid.Nil, auth.ScopeAdmin)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/clients/"+mine.String()+"/mrr", bound).Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/clients/"+other.String()+"/mrr", bound).Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/clients/"+mine.String()+"/mrr", unboundReader).Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/clients/"+other.String()+"/mrr", admin).Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/clients/not-a-uuid/mrr", admin).Code)
}
