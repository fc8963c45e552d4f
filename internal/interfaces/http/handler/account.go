package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appledger "github.com/yieldvault/backend/internal/application/ledger"
	"github.com/yieldvault/backend/internal/interfaces/http/dto"
	"github.com/yieldvault/backend/internal/interfaces/http/middleware"
)

// IdempotencyKeyHeader deduplicates deposit retries
const IdempotencyKeyHeader = "Idempotency-Key"

// MaxIdempotencyKeyLength bounds the Idempotency-Key header
const MaxIdempotencyKeyLength = 128

// AccountService is the end-user account surface used by AccountHandler
type AccountService interface {
	Deposit(ctx context.Context, req appledger.DepositRequest) (*appledger.PositionResponse, error)
	Withdraw(ctx context.Context, req appledger.WithdrawRequest) (*appledger.PositionResponse, error)
	GetPosition(ctx context.Context, clientID uuid.UUID, endUserID string) (*appledger.PositionResponse, error)
}

// AccountHandler serves deposits, withdrawals and end-user positions
type AccountHandler struct {
	BaseHandler
	accounts AccountService
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(accounts AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Deposit credits an end user. A repeated Idempotency-Key is rejected with 409.
//
//	POST /api/v1/accounts/deposit
func (h *AccountHandler) Deposit(c *gin.Context) {
	var req appledger.DepositRequest
	if !h.BindJSON(c, &req) {
		return
	}
	key := c.GetHeader(IdempotencyKeyHeader)
	if len(key) > MaxIdempotencyKeyLength {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "Idempotency-Key is too long")
		return
	}
	req.IdempotencyKey = key
	if !middleware.AuthorizeClient(c, req.ClientID) {
		return
	}

	position, err := h.accounts.Deposit(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, position)
}

// Withdraw debits an end user's available balance
//
//	POST /api/v1/accounts/withdraw
func (h *AccountHandler) Withdraw(c *gin.Context) {
	var req appledger.WithdrawRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if !middleware.AuthorizeClient(c, req.ClientID) {
		return
	}

	position, err := h.accounts.Withdraw(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, position)
}

// GetPosition returns an end user's position marked at the client's growth index
//
//	GET /api/v1/clients/:clientId/users/:userId/position
func (h *AccountHandler) GetPosition(c *gin.Context) {
	clientID, ok := h.PathUUID(c, "clientId")
	if !ok {
		return
	}
	userID := c.Param("userId")
	if userID == "" || len(userID) > 128 {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "Invalid userId")
		return
	}

	position, err := h.accounts.GetPosition(c.Request.Context(), clientID, userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, position)
}
