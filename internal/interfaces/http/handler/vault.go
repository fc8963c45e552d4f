package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appledger "github.com/yieldvault/backend/internal/application/ledger"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
	"github.com/yieldvault/backend/internal/interfaces/http/dto"
	"github.com/yieldvault/backend/internal/interfaces/http/middleware"
)

// VaultService is the vault lifecycle surface used by VaultHandler
type VaultService interface {
	CreateVault(ctx context.Context, req appledger.CreateVaultRequest) (*appledger.VaultResponse, error)
	GetVault(ctx context.Context, id uuid.UUID) (*appledger.VaultResponse, error)
	ListVaults(ctx context.Context, filter ledger.VaultFilter) (shared.Paginated[*appledger.VaultResponse], error)
	ConfirmStake(ctx context.Context, vaultID uuid.UUID, req appledger.AmountRequest) (*appledger.VaultResponse, error)
	DeactivateVault(ctx context.Context, vaultID uuid.UUID) error
}

// Reconciler runs growth index reconciliation on demand
type Reconciler interface {
	ReconcileAll(ctx context.Context) (*appledger.ReconcileReport, error)
	ReconcileVault(ctx context.Context, vaultID uuid.UUID) (*appledger.VaultOutcome, error)
}

// RevenueService splits yield and projects client revenue
type RevenueService interface {
	Distribute(ctx context.Context, vaultID uuid.UUID, req appledger.AmountRequest) (*appledger.DistributionResponse, error)
	ListDistributions(ctx context.Context, vaultID uuid.UUID, filter shared.Filter) (shared.Paginated[*appledger.DistributionResponse], error)
	ProjectClientRevenue(ctx context.Context, clientID uuid.UUID) (*appledger.RevenueProjection, error)
	BatchCalculateMRR(ctx context.Context) (*appledger.BatchMRRResult, error)
}

// VaultHandler serves vault onboarding, staking, reconciliation and yield distribution
type VaultHandler struct {
	BaseHandler
	vaults     VaultService
	reconciler Reconciler
	revenue    RevenueService
}

// NewVaultHandler creates a new VaultHandler
func NewVaultHandler(vaults VaultService, reconciler Reconciler, revenue RevenueService) *VaultHandler {
	return &VaultHandler{
		vaults:     vaults,
		reconciler: reconciler,
		revenue:    revenue,
	}
}

// Create onboards a vault
//
//	POST /api/v1/vaults
func (h *VaultHandler) Create(c *gin.Context) {
	var req appledger.CreateVaultRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if !middleware.AuthorizeClient(c, req.ClientID) {
		return
	}

	vault, err := h.vaults.CreateVault(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, vault)
}

// Get returns one vault
//
//	GET /api/v1/vaults/:id
func (h *VaultHandler) Get(c *gin.Context) {
	vault, ok := h.loadVault(c)
	if !ok {
		return
	}
	h.Success(c, vault)
}

// List returns vaults. Tokens bound to a client only see that client's vaults.
//
//	GET /api/v1/vaults?client_id=&environment=&chain=&active=
func (h *VaultHandler) List(c *gin.Context) {
	base, ok := h.ListFilter(c)
	if !ok {
		return
	}
	filter := ledger.VaultFilter{Filter: base, Chain: c.Query("chain")}

	if raw := c.Query("client_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "Invalid client_id")
			return
		}
		filter.ClientID = &id
	}
	if bound := middleware.GetJWTClaims(c); bound != nil && bound.ClientID != "" {
		id := bound.ClientUUID()
		if filter.ClientID != nil && *filter.ClientID != id {
			middleware.AuthorizeClient(c, *filter.ClientID)
			return
		}
		filter.ClientID = &id
	}
	if raw := c.Query("environment"); raw != "" {
		env := ledger.Environment(raw)
		if !env.IsValid() {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "environment must be sandbox or production")
			return
		}
		filter.Environment = &env
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "active must be a boolean")
			return
		}
		filter.ActiveOnly = active
	}

	page, err := h.vaults.ListVaults(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// ConfirmStake moves pending deposits into the staked balance once funds reach the strategy
//
//	POST /api/v1/vaults/:id/confirm-stake
func (h *VaultHandler) ConfirmStake(c *gin.Context) {
	vault, ok := h.loadVault(c)
	if !ok {
		return
	}
	var req appledger.AmountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	updated, err := h.vaults.ConfirmStake(c.Request.Context(), vault.ID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, updated)
}

// Deactivate stops new deposits into a vault
//
//	POST /api/v1/vaults/:id/deactivate
func (h *VaultHandler) Deactivate(c *gin.Context) {
	vault, ok := h.loadVault(c)
	if !ok {
		return
	}
	if err := h.vaults.DeactivateVault(c.Request.Context(), vault.ID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Reconcile reads the vault's on-chain balance and advances its growth index
//
//	POST /api/v1/vaults/:id/reconcile
func (h *VaultHandler) Reconcile(c *gin.Context) {
	vault, ok := h.loadVault(c)
	if !ok {
		return
	}
	outcome, err := h.reconciler.ReconcileVault(c.Request.Context(), vault.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, outcome)
}

// ReconcileAll runs one reconciliation pass over every active vault
//
//	POST /api/v1/reconcile
func (h *VaultHandler) ReconcileAll(c *gin.Context) {
	report, err := h.reconciler.ReconcileAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// Distribute splits realised yield between platform, client and end users
//
//	POST /api/v1/vaults/:id/distributions
func (h *VaultHandler) Distribute(c *gin.Context) {
	vault, ok := h.loadVault(c)
	if !ok {
		return
	}
	var req appledger.AmountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	dist, err := h.revenue.Distribute(c.Request.Context(), vault.ID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dist)
}

// ListDistributions lists a vault's distributions, newest first
//
//	GET /api/v1/vaults/:id/distributions
func (h *VaultHandler) ListDistributions(c *gin.Context) {
	vault, ok := h.loadVault(c)
	if !ok {
		return
	}
	filter, ok := h.ListFilter(c)
	if !ok {
		return
	}
	page, err := h.revenue.ListDistributions(c.Request.Context(), vault.ID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// BatchMRR projects revenue for every client
//
//	GET /api/v1/revenue/mrr
func (h *VaultHandler) BatchMRR(c *gin.Context) {
	result, err := h.revenue.BatchCalculateMRR(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// loadVault resolves :id and checks the caller may act on the owning client
func (h *VaultHandler) loadVault(c *gin.Context) (*appledger.VaultResponse, bool) {
	id, ok := h.PathUUID(c, "id")
	if !ok {
		return nil, false
	}
	vault, err := h.vaults.GetVault(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return nil, false
	}
	if !middleware.AuthorizeClient(c, vault.ClientID) {
		return nil, false
	}
	return vault, true
}
