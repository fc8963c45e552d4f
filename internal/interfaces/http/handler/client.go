package handler

import (
	"context"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/interfaces/http/dto"
)

// Lookback windows accepted by the APY endpoint
const (
	DefaultAPYLookbackDays = 7
	MaxAPYLookbackDays     = 365
)

// GrowthIndexReader computes client-level index and APY figures
type GrowthIndexReader interface {
	ComputeClientGrowthIndex(ctx context.Context, clientID uuid.UUID) (*big.Int, error)
	ComputeHistoricalAPY(ctx context.Context, clientID uuid.UUID, lookbackDays int) (decimal.Decimal, error)
}

// GrowthIndexResponse is a client's AUM-weighted growth index
type GrowthIndexResponse struct {
	ClientID    uuid.UUID `json:"client_id"`
	GrowthIndex string    `json:"growth_index"`
	Scale       string    `json:"scale"`
}

// APYResponse is a client's historical APY over a lookback window
type APYResponse struct {
	ClientID     uuid.UUID       `json:"client_id"`
	LookbackDays int             `json:"lookback_days"`
	APY          decimal.Decimal `json:"apy"`
}

// ClientHandler serves client-level index, APY and revenue figures
type ClientHandler struct {
	BaseHandler
	index   GrowthIndexReader
	revenue RevenueService
}

// NewClientHandler creates a new ClientHandler
func NewClientHandler(index GrowthIndexReader, revenue RevenueService) *ClientHandler {
	return &ClientHandler{index: index, revenue: revenue}
}

// GrowthIndex returns the AUM-weighted growth index across the client's vaults
//
//	GET /api/v1/clients/:clientId/growth-index
func (h *ClientHandler) GrowthIndex(c *gin.Context) {
	clientID, ok := h.PathUUID(c, "clientId")
	if !ok {
		return
	}
	idx, err := h.index.ComputeClientGrowthIndex(c.Request.Context(), clientID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, GrowthIndexResponse{
		ClientID:    clientID,
		GrowthIndex: idx.String(),
		Scale:       ledger.Scale().String(),
	})
}

// APY returns the AUM-weighted APY over ?days= (default 7)
//
//	GET /api/v1/clients/:clientId/apy?days=7
func (h *ClientHandler) APY(c *gin.Context) {
	clientID, ok := h.PathUUID(c, "clientId")
	if !ok {
		return
	}
	days, err := queryInt(c, "days", DefaultAPYLookbackDays)
	if err != nil || days <= 0 || days > MaxAPYLookbackDays {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "days must be between 1 and 365")
		return
	}

	apy, err := h.index.ComputeHistoricalAPY(c.Request.Context(), clientID, days)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, APYResponse{ClientID: clientID, LookbackDays: days, APY: apy})
}

// MRR projects the client's monthly and annual recurring revenue
//
//	GET /api/v1/clients/:clientId/mrr
func (h *ClientHandler) MRR(c *gin.Context) {
	clientID, ok := h.PathUUID(c, "clientId")
	if !ok {
		return
	}
	projection, err := h.revenue.ProjectClientRevenue(c.Request.Context(), clientID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, projection)
}
