package handler

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appledger "github.com/yieldvault/backend/internal/application/ledger"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/infrastructure/auth"
	"github.com/yieldvault/backend/internal/interfaces/http/dto"
)

type vaultFixture struct {
	vaults     *MockVaultService
	reconciler *MockReconciler
	revenue    *MockRevenueService
	handler    *VaultHandler
}

func newVaultFixture() *vaultFixture {
	f := &vaultFixture{
		vaults:     new(MockVaultService),
		reconciler: new(MockReconciler),
		revenue:    new(MockRevenueService),
	}
	f.handler = NewVaultHandler(f.vaults, f.reconciler, f.revenue)
	return f
}

func (f *vaultFixture) routes(client uuid.UUID, scopes ...auth.Scope) http.Handler {
	r := newTestEngine(asCaller(client, scopes...))
	r.POST("/vaults", f.handler.Create)
	r.GET("/vaults", f.handler.List)
	r.GET("/vaults/:id", f.handler.Get)
	r.POST("/vaults/:id/confirm-stake", f.handler.ConfirmStake)
	r.POST("/vaults/:id/deactivate", f.handler.Deactivate)
	r.POST("/vaults/:id/reconcile", f.handler.Reconcile)
	r.POST("/vaults/:id/distributions", f.handler.Distribute)
	r.GET("/vaults/:id/distributions", f.handler.ListDistributions)
	r.POST("/reconcile", f.handler.ReconcileAll)
	return r
}

func TestVaultHandler_Create(t *testing.T) {
	client := uuid.New()
	body := map[string]any{
		"client_id":     client,
		"chain":         "ethereum",
		"token_address": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"environment":   "sandbox",
		"strategy":      map[string]any{"kind": "sandbox", "apy": "5"},
	}

	t.Run("creates vault", func(t *testing.T) {
		f := newVaultFixture()
		f.vaults.On("CreateVault", mock.Anything, mock.MatchedBy(func(req appledger.CreateVaultRequest) bool {
			return req.ClientID == client && req.Environment == "sandbox" && len(req.Strategy) > 0
		})).Return(&appledger.VaultResponse{ID: uuid.New(), ClientID: client, CurrentIndex: "1000000000000000000"}, nil)

		w := doJSON(t, f.routes(uuid.Nil, auth.ScopeAdmin), http.MethodPost, "/vaults", body)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, decode(t, w).Success)
		f.vaults.AssertExpectations(t)
	})

	t.Run("bound token cannot onboard another client", func(t *testing.T) {
		f := newVaultFixture()
		w := doJSON(t, f.routes(uuid.New(), auth.ScopeAdmin), http.MethodPost, "/vaults", body)

		assert.Equal(t, http.StatusForbidden, w.Code)
		f.vaults.AssertNotCalled(t, "CreateVault", mock.Anything, mock.Anything)
	})

	t.Run("rejects unknown environment", func(t *testing.T) {
		f := newVaultFixture()
		bad := map[string]any{"client_id": client, "chain": "ethereum", "token_address": "0x1", "environment": "staging", "strategy": map[string]any{}}
		w := doJSON(t, f.routes(uuid.Nil, auth.ScopeAdmin), http.MethodPost, "/vaults", bad)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, errorCode(t, w))
	})

	t.Run("duplicate vault is a conflict", func(t *testing.T) {
		f := newVaultFixture()
		f.vaults.On("CreateVault", mock.Anything, mock.Anything).
			Return(nil, shared.NewDomainError(shared.CodeAlreadyExists, "vault already exists"))
		w := doJSON(t, f.routes(uuid.Nil, auth.ScopeAdmin), http.MethodPost, "/vaults", body)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodeAlreadyExists, errorCode(t, w))
	})
}

func TestVaultHandler_Get(t *testing.T) {
	client := uuid.New()
	id := uuid.New()

	t.Run("owner reads vault", func(t *testing.T) {
		f := newVaultFixture()
		f.vaults.On("GetVault", mock.Anything, id).Return(&appledger.VaultResponse{ID: id, ClientID: client}, nil)

		w := doJSON(t, f.routes(client, auth.ScopeRead), http.MethodGet, "/vaults/"+id.String(), nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("other client is forbidden", func(t *testing.T) {
		f := newVaultFixture()
		f.vaults.On("GetVault", mock.Anything, id).Return(&appledger.VaultResponse{ID: id, ClientID: client}, nil)

		w := doJSON(t, f.routes(uuid.New(), auth.ScopeRead), http.MethodGet, "/vaults/"+id.String(), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing vault", func(t *testing.T) {
		f := newVaultFixture()
		f.vaults.On("GetVault", mock.Anything, id).Return(nil, shared.ErrNotFound)

		w := doJSON(t, f.routes(client, auth.ScopeRead), http.MethodGet, "/vaults/"+id.String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, errorCode(t, w))
	})

	t.Run("malformed id", func(t *testing.T) {
		f := newVaultFixture()
		w := doJSON(t, f.routes(client, auth.ScopeRead), http.MethodGet, "/vaults/abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestVaultHandler_List(t *testing.T) {
	client := uuid.New()
	empty := shared.NewPaginated([]*appledger.VaultResponse{}, 0, 1, 20)

	t.Run("bound token is scoped to its client", func(t *testing.T) {
		f := newVaultFixture()
		f.vaults.On("ListVaults", mock.Anything, mock.MatchedBy(func(filter ledger.VaultFilter) bool {
			return filter.ClientID != nil && *filter.ClientID == client &&
				filter.Environment != nil && *filter.Environment == ledger.EnvironmentProduction &&
				filter.ActiveOnly && filter.Page == 2
		})).Return(empty, nil)

		w := doJSON(t, f.routes(client, auth.ScopeRead), http.MethodGet, "/vaults?environment=production&active=true&page=2", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		f.vaults.AssertExpectations(t)
	})

	t.Run("bound token asking for another client", func(t *testing.T) {
		f := newVaultFixture()
		w := doJSON(t, f.routes(client, auth.ScopeRead), http.MethodGet, "/vaults?client_id="+uuid.NewString(), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("bad environment", func(t *testing.T) {
		f := newVaultFixture()
		w := doJSON(t, f.routes(uuid.Nil, auth.ScopeAdmin), http.MethodGet, "/vaults?environment=mainnet", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("page size above limit", func(t *testing.T) {
		f := newVaultFixture()
		w := doJSON(t, f.routes(uuid.Nil, auth.ScopeAdmin), http.MethodGet, "/vaults?page_size=1000", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestVaultHandler_ConfirmStake(t *testing.T) {
	client, id := uuid.New(), uuid.New()
	f := newVaultFixture()
	f.vaults.On("GetVault", mock.Anything, id).Return(&appledger.VaultResponse{ID: id, ClientID: client}, nil)
	f.vaults.On("ConfirmStake", mock.Anything, id, appledger.AmountRequest{Amount: "500"}).
		Return(nil, shared.NewDomainError(shared.CodeInsufficientBalance, "pending balance too low"))

	w := doJSON(t, f.routes(uuid.Nil, auth.ScopeAdmin), http.MethodPost, "/vaults/"+id.String()+"/confirm-stake", `{"amount":"500"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeInsufficientBalance, errorCode(t, w))
}

func TestVaultHandler_Deactivate(t *testing.T) {
	client, id := uuid.New(), uuid.New()
	f := newVaultFixture()
	f.vaults.On("GetVault", mock.Anything, id).Return(&appledger.VaultResponse{ID: id, ClientID: client}, nil)
	f.vaults.On("DeactivateVault", mock.Anything, id).Return(nil)

	w := doJSON(t, f.routes(uuid.Nil, auth.ScopeAdmin), http.MethodPost, "/vaults/"+id.String()+"/deactivate", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestVaultHandler_Reconcile(t *testing.T) {
	client, id := uuid.New(), uuid.New()

	t.Run("advanced", func(t *testing.T) {
		f := newVaultFixture()
		f.vaults.On("GetVault", mock.Anything, id).Return(&appledger.VaultResponse{ID: id, ClientID: client}, nil)
		f.reconciler.On("ReconcileVault", mock.Anything, id).
			Return(&appledger.VaultOutcome{VaultID: id, Outcome: appledger.OutcomeAdvanced, NewIndex: "1010000000000000000"}, nil)

		w := doJSON(t, f.routes(uuid.Nil, auth.ScopeAdmin), http.MethodPost, "/vaults/"+id.String()+"/reconcile", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "1010000000000000000")
	})

	t.Run("chain read failure is a bad gateway", func(t *testing.T) {
		f := newVaultFixture()
		f.vaults.On("GetVault", mock.Anything, id).Return(&appledger.VaultResponse{ID: id, ClientID: client}, nil)
		f.reconciler.On("ReconcileVault", mock.Anything, id).Return(nil, shared.ErrExternalReadFailure)

		w := doJSON(t, f.routes(uuid.Nil, auth.ScopeAdmin), http.MethodPost, "/vaults/"+id.String()+"/reconcile", nil)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, dto.ErrCodeExternalRead, errorCode(t, w))
	})

	t.Run("reconcile all", func(t *testing.T) {
		f := newVaultFixture()
		f.reconciler.On("ReconcileAll", mock.Anything).Return(&appledger.ReconcileReport{
			Vaults: []appledger.VaultOutcome{{VaultID: id, Outcome: appledger.OutcomeSkippedNoChange}},
		}, nil)

		w := doJSON(t, f.routes(uuid.Nil, auth.ScopeAdmin), http.MethodPost, "/reconcile", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestVaultHandler_Distributions(t *testing.T) {
	client, id := uuid.New(), uuid.New()

	t.Run("distribute", func(t *testing.T) {
		f := newVaultFixture()
		f.vaults.On("GetVault", mock.Anything, id).Return(&appledger.VaultResponse{ID: id, ClientID: client}, nil)
		f.revenue.On("Distribute", mock.Anything, id, appledger.AmountRequest{Amount: "1000"}).
			Return(&appledger.DistributionResponse{VaultID: id, RawYield: "1000", PlatformRevenue: "100", ClientRevenue: "180", EnduserRevenue: "720"}, nil)

		w := doJSON(t, f.routes(uuid.Nil, auth.ScopeAdmin), http.MethodPost, "/vaults/"+id.String()+"/distributions", `{"amount":"1000"}`)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("non numeric amount", func(t *testing.T) {
		f := newVaultFixture()
		f.vaults.On("GetVault", mock.Anything, id).Return(&appledger.VaultResponse{ID: id, ClientID: client}, nil)

		w := doJSON(t, f.routes(uuid.Nil, auth.ScopeAdmin), http.MethodPost, "/vaults/"+id.String()+"/distributions", `{"amount":"lots"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.revenue.AssertNotCalled(t, "Distribute", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("list with pagination meta", func(t *testing.T) {
		f := newVaultFixture()
		f.vaults.On("GetVault", mock.Anything, id).Return(&appledger.VaultResponse{ID: id, ClientID: client}, nil)
		page := shared.NewPaginated([]*appledger.DistributionResponse{{VaultID: id}}, 21, 2, 10)
		f.revenue.On("ListDistributions", mock.Anything, id, mock.MatchedBy(func(filter shared.Filter) bool {
			return filter.Page == 2 && filter.PageSize == 10
		})).Return(page, nil)

		w := doJSON(t, f.routes(client, auth.ScopeRead), http.MethodGet, "/vaults/"+id.String()+"/distributions?page=2&page_size=10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, 3, resp.Meta.TotalPages)
	})
}

func TestHandleError_UnknownErrorIsInternal(t *testing.T) {
	f := newVaultFixture()
	id := uuid.New()
	f.vaults.On("GetVault", mock.Anything, id).Return(nil, errors.New("pq: connection reset"))

	w := doJSON(t, f.routes(uuid.Nil, auth.ScopeAdmin), http.MethodGet, "/vaults/"+id.String(), nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
	resp := decode(t, w)
	assert.NotEmpty(t, resp.Error.RequestID)
}
