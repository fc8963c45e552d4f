package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appledger "github.com/yieldvault/backend/internal/application/ledger"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/auth"
	"github.com/yieldvault/backend/internal/infrastructure/logger"
	"github.com/yieldvault/backend/internal/interfaces/http/dto"
	"github.com/yieldvault/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

type MockVaultService struct {
	mock.Mock
}

func (m *MockVaultService) CreateVault(ctx context.Context, req appledger.CreateVaultRequest) (*appledger.VaultResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.VaultResponse), args.Error(1)
}

func (m *MockVaultService) GetVault(ctx context.Context, id uuid.UUID) (*appledger.VaultResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.VaultResponse), args.Error(1)
}

func (m *MockVaultService) ListVaults(ctx context.Context, filter ledger.VaultFilter) (shared.Paginated[*appledger.VaultResponse], error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(shared.Paginated[*appledger.VaultResponse]), args.Error(1)
}

func (m *MockVaultService) ConfirmStake(ctx context.Context, vaultID uuid.UUID, req appledger.AmountRequest) (*appledger.VaultResponse, error) {
	args := m.Called(ctx, vaultID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.VaultResponse), args.Error(1)
}

func (m *MockVaultService) DeactivateVault(ctx context.Context, vaultID uuid.UUID) error {
	return m.Called(ctx, vaultID).Error(0)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) ReconcileAll(ctx context.Context) (*appledger.ReconcileReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.ReconcileReport), args.Error(1)
}

func (m *MockReconciler) ReconcileVault(ctx context.Context, vaultID uuid.UUID) (*appledger.VaultOutcome, error) {
	args := m.Called(ctx, vaultID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.VaultOutcome), args.Error(1)
}

type MockRevenueService struct {
	mock.Mock
}

func (m *MockRevenueService) Distribute(ctx context.Context, vaultID uuid.UUID, req appledger.AmountRequest) (*appledger.DistributionResponse, error) {
	args := m.Called(ctx, vaultID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.DistributionResponse), args.Error(1)
}

func (m *MockRevenueService) ListDistributions(ctx context.Context, vaultID uuid.UUID, filter shared.Filter) (shared.Paginated[*appledger.DistributionResponse], error) {
	args := m.Called(ctx, vaultID, filter)
	return args.Get(0).(shared.Paginated[*appledger.DistributionResponse]), args.Error(1)
}

func (m *MockRevenueService) ProjectClientRevenue(ctx context.Context, clientID uuid.UUID) (*appledger.RevenueProjection, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.RevenueProjection), args.Error(1)
}

func (m *MockRevenueService) BatchCalculateMRR(ctx context.Context) (*appledger.BatchMRRResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.BatchMRRResult), args.Error(1)
}

type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) Deposit(ctx context.Context, req appledger.DepositRequest) (*appledger.PositionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.PositionResponse), args.Error(1)
}

func (m *MockAccountService) Withdraw(ctx context.Context, req appledger.WithdrawRequest) (*appledger.PositionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.PositionResponse), args.Error(1)
}

func (m *MockAccountService) GetPosition(ctx context.Context, clientID uuid.UUID, endUserID string) (*appledger.PositionResponse, error) {
	args := m.Called(ctx, clientID, endUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appledger.PositionResponse), args.Error(1)
}

type MockGrowthIndexReader struct {
	mock.Mock
}

func (m *MockGrowthIndexReader) ComputeClientGrowthIndex(ctx context.Context, clientID uuid.UUID) (*big.Int, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockGrowthIndexReader) ComputeHistoricalAPY(ctx context.Context, clientID uuid.UUID, lookbackDays int) (decimal.Decimal, error) {
	args := m.Called(ctx, clientID, lookbackDays)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// asCaller injects claims the way the JWT middleware would
func asCaller(client uuid.UUID, scopes ...auth.Scope) gin.HandlerFunc {
	claims := &auth.Claims{Scopes: scopes}
	claims.Subject = "test-caller"
	if client != uuid.Nil {
		claims.ClientID = client.String()
	}
	return func(c *gin.Context) {
		c.Set(middleware.JWTClaimsKey, claims)
		c.Set(middleware.JWTSubjectKey, claims.Subject)
		c.Set(middleware.JWTClientIDKey, claims.ClientID)
		c.Next()
	}
}

func newTestEngine(caller gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(logger.GinMiddleware(zap.NewNop()), caller)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decode(t, w)
	require.NotNil(t, resp.Error, w.Body.String())
	return resp.Error.Code
}
