package ledger

import (
	"math/big"
	"time"

	"github.com/yieldvault/backend/internal/domain/shared"
)

// Aggregate type names
const (
	AggregateTypeVaultLedger  = "VaultLedger"
	AggregateTypeShareAccount = "ShareAccount"
)

// Event types
const (
	EventTypeVaultCreated     = "VaultCreated"
	EventTypeStakeConfirmed   = "StakeConfirmed"
	EventTypeIndexAdvanced    = "IndexAdvanced"
	EventTypeYieldDistributed = "YieldDistributed"
	EventTypeAccountDeposited = "AccountDeposited"
	EventTypeAccountWithdrawn = "AccountWithdrawn"
)

// VaultCreatedEvent is raised when a client onboards a vault
type VaultCreatedEvent struct {
	shared.BaseDomainEvent
	Chain        string      `json:"chain"`
	TokenAddress string      `json:"token_address"`
	Environment  Environment `json:"environment"`
	Strategy     string      `json:"strategy"`
}

// NewVaultCreatedEvent creates a VaultCreatedEvent
func NewVaultCreatedEvent(v *VaultLedger, at time.Time) *VaultCreatedEvent {
	return &VaultCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeVaultCreated, AggregateTypeVaultLedger, v.ID, v.ClientID, at),
		Chain:           v.Chain,
		TokenAddress:    v.TokenAddress,
		Environment:     v.Environment,
		Strategy:        string(v.Strategy.Kind()),
	}
}

// StakeConfirmedEvent is raised when pending deposits are deployed
type StakeConfirmedEvent struct {
	shared.BaseDomainEvent
	Amount      string `json:"amount"`
	TotalStaked string `json:"total_staked"`
}

// NewStakeConfirmedEvent creates a StakeConfirmedEvent
func NewStakeConfirmedEvent(v *VaultLedger, amount *big.Int, at time.Time) *StakeConfirmedEvent {
	return &StakeConfirmedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStakeConfirmed, AggregateTypeVaultLedger, v.ID, v.ClientID, at),
		Amount:          amount.String(),
		TotalStaked:     v.TotalStakedBalance.String(),
	}
}

// IndexAdvancedEvent is raised when a vault growth index moves
type IndexAdvancedEvent struct {
	shared.BaseDomainEvent
	PreviousIndex string `json:"previous_index"`
	NewIndex      string `json:"new_index"`
	DailyYield    string `json:"daily_yield"`
	DailyAPY      string `json:"daily_apy"`
}

// NewIndexAdvancedEvent creates an IndexAdvancedEvent
func NewIndexAdvancedEvent(v *VaultLedger, adv *IndexAdvance) *IndexAdvancedEvent {
	return &IndexAdvancedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeIndexAdvanced, AggregateTypeVaultLedger, v.ID, v.ClientID, adv.At),
		PreviousIndex:   adv.PreviousIndex.String(),
		NewIndex:        adv.NewIndex.String(),
		DailyYield:      adv.DailyYield.String(),
		DailyAPY:        adv.DailyAPY.StringFixed(6),
	}
}

// YieldDistributedEvent is raised for every recorded revenue split
type YieldDistributedEvent struct {
	shared.BaseDomainEvent
	DistributionID  string `json:"distribution_id"`
	RawYield        string `json:"raw_yield"`
	PlatformRevenue string `json:"platform_revenue"`
	ClientRevenue   string `json:"client_revenue"`
	EnduserRevenue  string `json:"enduser_revenue"`
}

// NewYieldDistributedEvent creates a YieldDistributedEvent
func NewYieldDistributedEvent(v *VaultLedger, d *RevenueDistribution) *YieldDistributedEvent {
	return &YieldDistributedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeYieldDistributed, AggregateTypeVaultLedger, v.ID, v.ClientID, d.DistributedAt),
		DistributionID:  d.ID.String(),
		RawYield:        d.RawYield.String(),
		PlatformRevenue: d.PlatformRevenue.String(),
		ClientRevenue:   d.ClientRevenue.String(),
		EnduserRevenue:  d.EnduserRevenue.String(),
	}
}

// ShareAccountChangedEvent is raised on deposits and withdrawals
type ShareAccountChangedEvent struct {
	shared.BaseDomainEvent
	EndUserID      string `json:"end_user_id"`
	Amount         string `json:"amount"`
	GrowthIndex    string `json:"growth_index"`
	EntryIndex     string `json:"entry_index"`
	TotalDeposited string `json:"total_deposited"`
	TotalWithdrawn string `json:"total_withdrawn"`
}

// NewShareAccountChangedEvent creates a ShareAccountChangedEvent of eventType
func NewShareAccountChangedEvent(a *ShareAccount, eventType string, amount, curIndex *big.Int, at time.Time) *ShareAccountChangedEvent {
	return &ShareAccountChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeShareAccount, a.ID, a.ClientID, at),
		EndUserID:       a.EndUserID,
		Amount:          amount.String(),
		GrowthIndex:     curIndex.String(),
		EntryIndex:      a.WeightedEntryIndex.String(),
		TotalDeposited:  a.TotalDeposited.String(),
		TotalWithdrawn:  a.TotalWithdrawn.String(),
	}
}
