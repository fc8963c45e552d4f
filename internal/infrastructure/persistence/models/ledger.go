package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yieldvault/backend/internal/domain/ledger"
)

// VaultLedgerModel is the persistence model for the VaultLedger aggregate root.
type VaultLedgerModel struct {
	AggregateModel
	ClientID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_vault_key,priority:1;index"`
	Chain           string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_vault_key,priority:2"`
	TokenAddress    string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_vault_key,priority:3"`
	Environment     string    `gorm:"type:varchar(16);not null;uniqueIndex:idx_vault_key,priority:4;index"`
	CustodialWallet string    `gorm:"type:varchar(128)"`
	StrategyKind    string    `gorm:"type:varchar(32);not null"`
	Strategy        string    `gorm:"type:jsonb;not null"`

	TotalShares           Amount `gorm:"not null"`
	CurrentIndex          Amount `gorm:"not null"`
	PendingDepositBalance Amount `gorm:"not null"`
	TotalStakedBalance    Amount `gorm:"not null"`
	CumulativeYield       Amount `gorm:"not null"`
	DistributedYield      Amount `gorm:"not null"`
	LastObservedBalance   Amount `gorm:"not null"`

	APY7d           decimal.Decimal `gorm:"column:apy_7d;type:decimal(24,10);not null;default:0"`
	APY30d          decimal.Decimal `gorm:"column:apy_30d;type:decimal(24,10);not null;default:0"`
	LastIndexUpdate time.Time       `gorm:"not null"`
	Active          bool            `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (VaultLedgerModel) TableName() string {
	return "vault_ledgers"
}

// ToDomain converts the persistence model to a domain VaultLedger entity.
// The stored strategy document is decoded and validated.
func (m *VaultLedgerModel) ToDomain() (*ledger.VaultLedger, error) {
	strategy, err := ledger.UnmarshalStrategy([]byte(m.Strategy))
	if err != nil {
		return nil, err
	}
	v := &ledger.VaultLedger{
		Chain:                 m.Chain,
		TokenAddress:          m.TokenAddress,
		Environment:           ledger.Environment(m.Environment),
		CustodialWallet:       m.CustodialWallet,
		Strategy:              strategy,
		TotalShares:           m.TotalShares.BigInt(),
		CurrentIndex:          m.CurrentIndex.BigInt(),
		PendingDepositBalance: m.PendingDepositBalance.BigInt(),
		TotalStakedBalance:    m.TotalStakedBalance.BigInt(),
		CumulativeYield:       m.CumulativeYield.BigInt(),
		DistributedYield:      m.DistributedYield.BigInt(),
		LastObservedBalance:   m.LastObservedBalance.BigInt(),
		APY7d:                 m.APY7d,
		APY30d:                m.APY30d,
		LastIndexUpdate:       m.LastIndexUpdate,
		Active:                m.Active,
	}
	m.PopulateAggregateRoot(&v.BaseAggregateRoot)
	v.ClientID = m.ClientID
	return v, nil
}

// FromDomain populates the persistence model from a domain VaultLedger entity
func (m *VaultLedgerModel) FromDomain(v *ledger.VaultLedger) error {
	doc, err := ledger.MarshalStrategy(v.Strategy)
	if err != nil {
		return err
	}
	m.FromDomainAggregateRoot(v.BaseAggregateRoot)
	m.ClientID = v.ClientID
	m.Chain = v.Chain
	m.TokenAddress = v.TokenAddress
	m.Environment = string(v.Environment)
	m.CustodialWallet = v.CustodialWallet
	m.StrategyKind = string(v.Strategy.Kind())
	m.Strategy = string(doc)
	m.TotalShares = NewAmount(v.TotalShares)
	m.CurrentIndex = NewAmount(v.CurrentIndex)
	m.PendingDepositBalance = NewAmount(v.PendingDepositBalance)
	m.TotalStakedBalance = NewAmount(v.TotalStakedBalance)
	m.CumulativeYield = NewAmount(v.CumulativeYield)
	m.DistributedYield = NewAmount(v.DistributedYield)
	m.LastObservedBalance = NewAmount(v.LastObservedBalance)
	m.APY7d = v.APY7d
	m.APY30d = v.APY30d
	m.LastIndexUpdate = v.LastIndexUpdate
	m.Active = v.Active
	return nil
}

// VaultLedgerModelFromDomain creates a new persistence model from a domain VaultLedger entity
func VaultLedgerModelFromDomain(v *ledger.VaultLedger) (*VaultLedgerModel, error) {
	m := &VaultLedgerModel{}
	if err := m.FromDomain(v); err != nil {
		return nil, err
	}
	return m, nil
}

// ShareAccountModel is the persistence model for the ShareAccount aggregate root.
// ClientID and EndUserID form the natural key.
type ShareAccountModel struct {
	AggregateModel
	ClientID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_account_key,priority:1"`
	EndUserID          string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_account_key,priority:2"`
	TotalDeposited     Amount    `gorm:"not null"`
	TotalWithdrawn     Amount    `gorm:"not null"`
	WeightedEntryIndex Amount    `gorm:"not null"`
	Active             bool      `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (ShareAccountModel) TableName() string {
	return "share_accounts"
}

// ToDomain converts the persistence model to a domain ShareAccount entity
func (m *ShareAccountModel) ToDomain() *ledger.ShareAccount {
	a := &ledger.ShareAccount{
		EndUserID:          m.EndUserID,
		TotalDeposited:     m.TotalDeposited.BigInt(),
		TotalWithdrawn:     m.TotalWithdrawn.BigInt(),
		WeightedEntryIndex: m.WeightedEntryIndex.BigInt(),
		Active:             m.Active,
	}
	m.PopulateAggregateRoot(&a.BaseAggregateRoot)
	a.ClientID = m.ClientID
	return a
}

// FromDomain populates the persistence model from a domain ShareAccount entity
func (m *ShareAccountModel) FromDomain(a *ledger.ShareAccount) {
	m.FromDomainAggregateRoot(a.BaseAggregateRoot)
	m.ClientID = a.ClientID
	m.EndUserID = a.EndUserID
	m.TotalDeposited = NewAmount(a.TotalDeposited)
	m.TotalWithdrawn = NewAmount(a.TotalWithdrawn)
	m.WeightedEntryIndex = NewAmount(a.WeightedEntryIndex)
	m.Active = a.Active
}

// ShareAccountModelFromDomain creates a new persistence model from a domain ShareAccount entity
func ShareAccountModelFromDomain(a *ledger.ShareAccount) *ShareAccountModel {
	m := &ShareAccountModel{}
	m.FromDomain(a)
	return m
}

// IndexSnapshotModel is an append-only row of the growth index history
type IndexSnapshotModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key"`
	VaultID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_snapshot_vault_time,priority:1"`
	IndexValue Amount          `gorm:"not null"`
	DailyYield Amount          `gorm:"not null"`
	DailyAPY   decimal.Decimal `gorm:"column:daily_apy;type:decimal(24,10);not null"`
	TakenAt    time.Time       `gorm:"not null;index:idx_snapshot_vault_time,priority:2;index"`
}

// TableName returns the table name for GORM
func (IndexSnapshotModel) TableName() string {
	return "index_snapshots"
}

// ToDomain converts the persistence model to a domain IndexSnapshot
func (m *IndexSnapshotModel) ToDomain() *ledger.IndexSnapshot {
	return &ledger.IndexSnapshot{
		ID:         m.ID,
		VaultID:    m.VaultID,
		IndexValue: m.IndexValue.BigInt(),
		DailyYield: m.DailyYield.BigInt(),
		DailyAPY:   m.DailyAPY,
		Timestamp:  m.TakenAt,
	}
}

// IndexSnapshotModelFromDomain creates a new persistence model from a domain IndexSnapshot
func IndexSnapshotModelFromDomain(s *ledger.IndexSnapshot) *IndexSnapshotModel {
	return &IndexSnapshotModel{
		ID:         s.ID,
		VaultID:    s.VaultID,
		IndexValue: NewAmount(s.IndexValue),
		DailyYield: NewAmount(s.DailyYield),
		DailyAPY:   s.DailyAPY,
		TakenAt:    s.Timestamp,
	}
}

// RevenueDistributionModel is an append-only record of one yield split
type RevenueDistributionModel struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key"`
	VaultID         uuid.UUID       `gorm:"type:uuid;not null;index:idx_distribution_vault_time,priority:1"`
	ClientID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	RawYield        Amount          `gorm:"not null"`
	ClientRevenue   Amount          `gorm:"not null"`
	PlatformRevenue Amount          `gorm:"not null"`
	EnduserRevenue  Amount          `gorm:"not null"`
	ClientPercent   decimal.Decimal `gorm:"type:decimal(7,4);not null"`
	PlatformPercent decimal.Decimal `gorm:"type:decimal(7,4);not null"`
	EnduserPercent  decimal.Decimal `gorm:"type:decimal(7,4);not null"`
	DistributedAt   time.Time       `gorm:"not null;index:idx_distribution_vault_time,priority:2;index"`
}

// TableName returns the table name for GORM
func (RevenueDistributionModel) TableName() string {
	return "revenue_distributions"
}

// ToDomain converts the persistence model to a domain RevenueDistribution
func (m *RevenueDistributionModel) ToDomain() *ledger.RevenueDistribution {
	return &ledger.RevenueDistribution{
		ID:              m.ID,
		VaultID:         m.VaultID,
		ClientID:        m.ClientID,
		RawYield:        m.RawYield.BigInt(),
		ClientRevenue:   m.ClientRevenue.BigInt(),
		PlatformRevenue: m.PlatformRevenue.BigInt(),
		EnduserRevenue:  m.EnduserRevenue.BigInt(),
		ClientPercent:   m.ClientPercent,
		PlatformPercent: m.PlatformPercent,
		EnduserPercent:  m.EnduserPercent,
		DistributedAt:   m.DistributedAt,
	}
}

// RevenueDistributionModelFromDomain creates a new persistence model from a domain RevenueDistribution
func RevenueDistributionModelFromDomain(d *ledger.RevenueDistribution) *RevenueDistributionModel {
	return &RevenueDistributionModel{
		ID:              d.ID,
		VaultID:         d.VaultID,
		ClientID:        d.ClientID,
		RawYield:        NewAmount(d.RawYield),
		ClientRevenue:   NewAmount(d.ClientRevenue),
		PlatformRevenue: NewAmount(d.PlatformRevenue),
		EnduserRevenue:  NewAmount(d.EnduserRevenue),
		ClientPercent:   d.ClientPercent,
		PlatformPercent: d.PlatformPercent,
		EnduserPercent:  d.EnduserPercent,
		DistributedAt:   d.DistributedAt,
	}
}

// ClientFeeConfigModel stores the revenue split of one client
type ClientFeeConfigModel struct {
	ClientID                  uuid.UUID       `gorm:"type:uuid;primary_key"`
	ClientRevenueSharePercent decimal.Decimal `gorm:"type:decimal(7,4);not null"`
	PlatformFeePercent        decimal.Decimal `gorm:"type:decimal(7,4);not null"`
	Active                    bool            `gorm:"not null;default:true;index"`
	UpdatedAt                 time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ClientFeeConfigModel) TableName() string {
	return "client_fee_configs"
}

// ToDomain converts the persistence model to a domain ClientFeeConfig
func (m *ClientFeeConfigModel) ToDomain() *ledger.ClientFeeConfig {
	return &ledger.ClientFeeConfig{
		ClientID:                  m.ClientID,
		ClientRevenueSharePercent: m.ClientRevenueSharePercent,
		PlatformFeePercent:        m.PlatformFeePercent,
		Active:                    m.Active,
		UpdatedAt:                 m.UpdatedAt,
	}
}

// ClientFeeConfigModelFromDomain creates a new persistence model from a domain ClientFeeConfig
func ClientFeeConfigModelFromDomain(c *ledger.ClientFeeConfig) *ClientFeeConfigModel {
	return &ClientFeeConfigModel{
		ClientID:                  c.ClientID,
		ClientRevenueSharePercent: c.ClientRevenueSharePercent,
		PlatformFeePercent:        c.PlatformFeePercent,
		Active:                    c.Active,
		UpdatedAt:                 c.UpdatedAt,
	}
}

// AllLedgerModels lists the models for AutoMigrate in tests
func AllLedgerModels() []any {
	return []any{
		&VaultLedgerModel{},
		&ShareAccountModel{},
		&IndexSnapshotModel{},
		&RevenueDistributionModel{},
		&ClientFeeConfigModel{},
	}
}
