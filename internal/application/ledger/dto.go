package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yieldvault/backend/internal/domain/ledger"
)

// CreateVaultRequest onboards a vault for a client
type CreateVaultRequest struct {
	ClientID        uuid.UUID       `json:"client_id" binding:"required"`
	Chain           string          `json:"chain" binding:"required,max=32"`
	TokenAddress    string          `json:"token_address" binding:"required,max=64"`
	Environment     string          `json:"environment" binding:"required,oneof=sandbox production"`
	CustodialWallet string          `json:"custodial_wallet" binding:"max=64"`
	Strategy        json.RawMessage `json:"strategy" binding:"required"`
}

// AmountRequest carries a base-unit amount as a decimal string
type AmountRequest struct {
	Amount string `json:"amount" binding:"required,numeric"`
}

// DepositRequest credits an end user and the pending balance of a vault
type DepositRequest struct {
	ClientID       uuid.UUID `json:"client_id" binding:"required"`
	EndUserID      string    `json:"end_user_id" binding:"required,max=128"`
	VaultID        uuid.UUID `json:"vault_id" binding:"required"`
	Amount         string    `json:"amount" binding:"required,numeric"`
	IdempotencyKey string    `json:"-"`
}

// WithdrawRequest debits an end user and releases funds from a vault
type WithdrawRequest struct {
	ClientID  uuid.UUID `json:"client_id" binding:"required"`
	EndUserID string    `json:"end_user_id" binding:"required,max=128"`
	VaultID   uuid.UUID `json:"vault_id" binding:"required"`
	Amount    string    `json:"amount" binding:"required,numeric"`
}

// VaultResponse represents a vault in API responses
type VaultResponse struct {
	ID                    uuid.UUID       `json:"id"`
	ClientID              uuid.UUID       `json:"client_id"`
	Chain                 string          `json:"chain"`
	TokenAddress          string          `json:"token_address"`
	Environment           string          `json:"environment"`
	CustodialWallet       string          `json:"custodial_wallet,omitempty"`
	Strategy              json.RawMessage `json:"strategy"`
	TotalShares           string          `json:"total_shares"`
	CurrentIndex          string          `json:"current_index"`
	PendingDepositBalance string          `json:"pending_deposit_balance"`
	TotalStakedBalance    string          `json:"total_staked_balance"`
	CumulativeYield       string          `json:"cumulative_yield"`
	DistributedYield      string          `json:"distributed_yield"`
	APY7d                 decimal.Decimal `json:"apy_7d"`
	APY30d                decimal.Decimal `json:"apy_30d"`
	LastIndexUpdate       time.Time       `json:"last_index_update"`
	Active                bool            `json:"active"`
	Version               int             `json:"version"`
}

// PositionResponse is an end user's position marked at the client index
type PositionResponse struct {
	ClientID         uuid.UUID       `json:"client_id"`
	EndUserID        string          `json:"end_user_id"`
	TotalDeposited   string          `json:"total_deposited"`
	TotalWithdrawn   string          `json:"total_withdrawn"`
	EntryIndex       string          `json:"entry_index"`
	CurrentIndex     string          `json:"current_index"`
	EffectiveBalance string          `json:"effective_balance"`
	AvailableBalance string          `json:"available_balance"`
	YieldEarned      string          `json:"yield_earned"`
	EffectiveAPY     decimal.Decimal `json:"effective_apy"`
	Active           bool            `json:"active"`
}

// DistributionResponse represents a revenue distribution
type DistributionResponse struct {
	ID              uuid.UUID       `json:"id"`
	VaultID         uuid.UUID       `json:"vault_id"`
	ClientID        uuid.UUID       `json:"client_id"`
	RawYield        string          `json:"raw_yield"`
	PlatformRevenue string          `json:"platform_revenue"`
	ClientRevenue   string          `json:"client_revenue"`
	EnduserRevenue  string          `json:"enduser_revenue"`
	PlatformPercent decimal.Decimal `json:"platform_percent"`
	ClientPercent   decimal.Decimal `json:"client_percent"`
	EnduserPercent  decimal.Decimal `json:"enduser_percent"`
	DistributedAt   time.Time       `json:"distributed_at"`
}

// RevenueProjection is the projected recurring revenue of a client
type RevenueProjection struct {
	ClientID       uuid.UUID       `json:"client_id"`
	EarningBalance string          `json:"earning_balance"`
	APY            decimal.Decimal `json:"apy"`
	ClientPercent  decimal.Decimal `json:"client_percent"`
	MRR            string          `json:"mrr"`
	ARR            string          `json:"arr"`
}

// ClientError pairs a client with the error that stopped its calculation
type ClientError struct {
	ClientID uuid.UUID `json:"client_id"`
	Error    string    `json:"error"`
}

// BatchMRRResult is the outcome of BatchCalculateMRR
type BatchMRRResult struct {
	Results []RevenueProjection `json:"results"`
	Errors  []ClientError       `json:"errors"`
}

// VaultOutcome is the reconciliation result of one vault
type VaultOutcome struct {
	VaultID  uuid.UUID        `json:"vault_id"`
	ClientID uuid.UUID        `json:"client_id"`
	Outcome  ReconcileOutcome `json:"outcome"`
	NewIndex string           `json:"new_index,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// ReconcileReport summarises one reconciliation run
type ReconcileReport struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Vaults     []VaultOutcome `json:"vaults"`
}

// Count returns how many vaults ended with outcome
func (r *ReconcileReport) Count(outcome ReconcileOutcome) int {
	n := 0
	for _, v := range r.Vaults {
		if v.Outcome == outcome {
			n++
		}
	}
	return n
}

// ToVaultResponse converts a domain vault
func ToVaultResponse(v *ledger.VaultLedger) (*VaultResponse, error) {
	strategy, err := ledger.MarshalStrategy(v.Strategy)
	if err != nil {
		return nil, err
	}
	return &VaultResponse{
		ID:                    v.ID,
		ClientID:              v.ClientID,
		Chain:                 v.Chain,
		TokenAddress:          v.TokenAddress,
		Environment:           string(v.Environment),
		CustodialWallet:       v.CustodialWallet,
		Strategy:              strategy,
		TotalShares:           v.TotalShares.String(),
		CurrentIndex:          v.CurrentIndex.String(),
		PendingDepositBalance: v.PendingDepositBalance.String(),
		TotalStakedBalance:    v.TotalStakedBalance.String(),
		CumulativeYield:       v.CumulativeYield.String(),
		DistributedYield:      v.DistributedYield.String(),
		APY7d:                 v.APY7d,
		APY30d:                v.APY30d,
		LastIndexUpdate:       v.LastIndexUpdate,
		Active:                v.Active,
		Version:               v.Version,
	}, nil
}

// ToDistributionResponse converts a domain distribution
func ToDistributionResponse(d *ledger.RevenueDistribution) *DistributionResponse {
	return &DistributionResponse{
		ID:              d.ID,
		VaultID:         d.VaultID,
		ClientID:        d.ClientID,
		RawYield:        d.RawYield.String(),
		PlatformRevenue: d.PlatformRevenue.String(),
		ClientRevenue:   d.ClientRevenue.String(),
		EnduserRevenue:  d.EnduserRevenue.String(),
		PlatformPercent: d.PlatformPercent,
		ClientPercent:   d.ClientPercent,
		EnduserPercent:  d.EnduserPercent,
		DistributedAt:   d.DistributedAt,
	}
}
