package ledger

import (
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yieldvault/backend/internal/domain/shared"
)

// Environment separates simulated vaults from vaults backed by real capital
type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

// IsValid checks if the environment is known
func (e Environment) IsValid() bool {
	return e == EnvironmentSandbox || e == EnvironmentProduction
}

// VaultLedger is the pool state for one (client, chain, token, environment).
// CurrentIndex never decreases; AdvanceIndex is the only way to move it.
type VaultLedger struct {
	shared.ClientAggregateRoot
	Chain           string
	TokenAddress    string
	Environment     Environment
	CustodialWallet string
	Strategy        StrategyConfig

	TotalShares           *big.Int
	CurrentIndex          *big.Int
	PendingDepositBalance *big.Int
	TotalStakedBalance    *big.Int
	CumulativeYield       *big.Int
	DistributedYield      *big.Int

	// LastObservedBalance is the external balance seen at the last reconciliation,
	// moved by stake confirmations and withdrawals so that the next ratio only
	// reflects yield.
	LastObservedBalance *big.Int

	APY7d           decimal.Decimal
	APY30d          decimal.Decimal
	LastIndexUpdate time.Time
	Active          bool
}

// IndexAdvance describes an accepted growth index update
type IndexAdvance struct {
	PreviousIndex *big.Int
	NewIndex      *big.Int
	DailyYield    *big.Int
	DailyRate     decimal.Decimal
	DailyAPY      decimal.Decimal
	At            time.Time
}

// NewVaultLedgerInput carries the onboarding parameters of a vault
type NewVaultLedgerInput struct {
	ClientID        uuid.UUID
	Chain           string
	TokenAddress    string
	Environment     Environment
	CustodialWallet string
	Strategy        StrategyConfig
}

// NewVaultLedger creates a vault at index 1e18 with empty balances
func NewVaultLedger(in NewVaultLedgerInput, now time.Time) (*VaultLedger, error) {
	if in.ClientID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeValidation, "client ID is required")
	}
	if strings.TrimSpace(in.Chain) == "" {
		return nil, shared.NewDomainError(shared.CodeValidation, "chain is required")
	}
	if strings.TrimSpace(in.TokenAddress) == "" {
		return nil, shared.NewDomainError(shared.CodeValidation, "token address is required")
	}
	if !in.Environment.IsValid() {
		return nil, shared.NewDomainErrorf(shared.CodeValidation, "unknown environment %q", in.Environment)
	}
	if in.Strategy == nil {
		return nil, shared.NewDomainError(shared.CodeValidation, "strategy is required")
	}
	if err := in.Strategy.Validate(); err != nil {
		return nil, err
	}
	isSandbox := in.Strategy.Kind() == StrategySandbox
	if isSandbox != (in.Environment == EnvironmentSandbox) {
		return nil, shared.NewDomainErrorf(shared.CodeValidation,
			"%s vaults cannot use a %s strategy", in.Environment, in.Strategy.Kind())
	}
	if in.Environment == EnvironmentProduction && strings.TrimSpace(in.CustodialWallet) == "" {
		return nil, shared.NewDomainError(shared.CodeValidation, "production vaults need a custodial wallet")
	}

	v := &VaultLedger{
		ClientAggregateRoot:   shared.NewClientAggregateRoot(in.ClientID, now),
		Chain:                 strings.ToLower(in.Chain),
		TokenAddress:          in.TokenAddress,
		Environment:           in.Environment,
		CustodialWallet:       in.CustodialWallet,
		Strategy:              in.Strategy,
		TotalShares:           new(big.Int),
		CurrentIndex:          Scale(),
		PendingDepositBalance: new(big.Int),
		TotalStakedBalance:    new(big.Int),
		CumulativeYield:       new(big.Int),
		DistributedYield:      new(big.Int),
		LastObservedBalance:   new(big.Int),
		APY7d:                 decimal.Zero,
		APY30d:                decimal.Zero,
		LastIndexUpdate:       now,
		Active:                true,
	}
	v.AddDomainEvent(NewVaultCreatedEvent(v, now))
	return v, nil
}

// IsSandbox reports whether growth is simulated
func (v *VaultLedger) IsSandbox() bool {
	return v.Environment == EnvironmentSandbox
}

// AUM is assets under management: staked plus pending
func (v *VaultLedger) AUM() *big.Int {
	return new(big.Int).Add(v.TotalStakedBalance, v.PendingDepositBalance)
}

// RecordPendingDeposit adds a deposit that has not been deployed yet and mints
// the matching vault shares at the current index.
func (v *VaultLedger) RecordPendingDeposit(amount *big.Int, now time.Time) error {
	if err := requirePositive("deposit amount", amount); err != nil {
		return err
	}
	if !v.Active {
		return shared.NewDomainError(shared.CodeInvalidState, "vault is not active")
	}
	minted, err := Shares(amount, v.CurrentIndex)
	if err != nil {
		return err
	}
	v.PendingDepositBalance = new(big.Int).Add(v.PendingDepositBalance, amount)
	v.TotalShares = new(big.Int).Add(v.TotalShares, minted)
	v.touch(now)
	return nil
}

// ConfirmStaked moves amount from pending to staked once it has been deployed
func (v *VaultLedger) ConfirmStaked(amount *big.Int, now time.Time) error {
	if err := requirePositive("stake amount", amount); err != nil {
		return err
	}
	if amount.Cmp(v.PendingDepositBalance) > 0 {
		return shared.NewDomainErrorf(shared.CodeValidation,
			"cannot stake %s, only %s pending", amount, v.PendingDepositBalance)
	}
	v.PendingDepositBalance = new(big.Int).Sub(v.PendingDepositBalance, amount)
	v.TotalStakedBalance = new(big.Int).Add(v.TotalStakedBalance, amount)
	v.LastObservedBalance = new(big.Int).Add(v.LastObservedBalance, amount)
	v.touch(now)
	v.AddDomainEvent(NewStakeConfirmedEvent(v, amount, now))
	return nil
}

// RecordWithdrawal removes amount from the pool, draining pending before staked,
// and burns the matching shares.
func (v *VaultLedger) RecordWithdrawal(amount *big.Int, now time.Time) error {
	if err := requirePositive("withdrawal amount", amount); err != nil {
		return err
	}
	if amount.Cmp(v.AUM()) > 0 {
		return shared.NewDomainErrorf(shared.CodeInsufficientBalance,
			"vault holds %s, cannot release %s", v.AUM(), amount)
	}
	burned, err := Shares(amount, v.CurrentIndex)
	if err != nil {
		return err
	}

	fromPending := minBig(amount, v.PendingDepositBalance)
	fromStaked := new(big.Int).Sub(amount, fromPending)
	v.PendingDepositBalance = new(big.Int).Sub(v.PendingDepositBalance, fromPending)
	v.TotalStakedBalance = new(big.Int).Sub(v.TotalStakedBalance, fromStaked)
	v.LastObservedBalance = new(big.Int).Sub(v.LastObservedBalance, minBig(fromStaked, v.LastObservedBalance))
	v.TotalShares = new(big.Int).Sub(v.TotalShares, minBig(burned, v.TotalShares))
	v.touch(now)
	return nil
}

// CheckIndexCandidate applies the advance gate without mutating the vault:
// the candidate may not be below the current index nor above twice it.
func (v *VaultLedger) CheckIndexCandidate(candidate *big.Int) error {
	if err := requirePositive("index candidate", candidate); err != nil {
		return err
	}
	if candidate.Cmp(v.CurrentIndex) < 0 {
		return shared.NewDomainErrorf(shared.CodeIndexIntegrityViolation,
			"candidate index %s is below current index %s", candidate, v.CurrentIndex)
	}
	ceiling := new(big.Int).Mul(v.CurrentIndex, bigTwo)
	if candidate.Cmp(ceiling) > 0 {
		return shared.NewDomainErrorf(shared.CodeIndexIntegrityViolation,
			"candidate index %s exceeds twice the current index %s", candidate, v.CurrentIndex)
	}
	return nil
}

// AdvanceIndex is the single gate for moving the growth index. Rejected
// candidates leave the vault untouched. On acceptance the yield on the staked
// balance is accrued and credited to the staked pool, so it can be withdrawn
// like principal. The daily rate is derived from the time since the
// previous update (one day is assumed when no time has passed).
func (v *VaultLedger) AdvanceIndex(candidate *big.Int, now time.Time) (*IndexAdvance, error) {
	if err := v.CheckIndexCandidate(candidate); err != nil {
		return nil, err
	}

	previous := clone(v.CurrentIndex)
	delta := new(big.Int).Sub(candidate, previous)

	accrued := new(big.Int).Mul(v.TotalStakedBalance, delta)
	accrued.Quo(accrued, previous)

	periodRate := decimal.NewFromBigInt(delta, 0).DivRound(decimal.NewFromBigInt(previous, 0), apyPrecision)
	dailyRate := periodRate
	if elapsed := now.Sub(v.LastIndexUpdate); elapsed > 0 {
		day := decimal.NewFromInt(int64(24 * time.Hour / time.Second))
		secs := decimal.NewFromInt(int64(elapsed / time.Second))
		if secs.Sign() > 0 {
			dailyRate = periodRate.Mul(day).DivRound(secs, apyPrecision)
		}
	}

	v.CurrentIndex = clone(candidate)
	v.CumulativeYield = new(big.Int).Add(v.CumulativeYield, accrued)
	v.TotalStakedBalance = new(big.Int).Add(v.TotalStakedBalance, accrued)
	v.LastIndexUpdate = now
	v.touch(now)

	adv := &IndexAdvance{
		PreviousIndex: previous,
		NewIndex:      clone(candidate),
		DailyYield:    accrued,
		DailyRate:     dailyRate,
		DailyAPY:      dailyRate.Mul(daysInYear).Mul(hundred),
		At:            now,
	}
	v.AddDomainEvent(NewIndexAdvancedEvent(v, adv))
	return adv, nil
}

// ObserveBalance records the external balance seen by reconciliation
func (v *VaultLedger) ObserveBalance(balance *big.Int) {
	v.LastObservedBalance = clone(balance)
}

// AccrueDistributedYield books harvested yield that was split and paid out
func (v *VaultLedger) AccrueDistributedYield(raw *big.Int, now time.Time) {
	v.CumulativeYield = new(big.Int).Add(v.CumulativeYield, raw)
	v.DistributedYield = new(big.Int).Add(v.DistributedYield, raw)
	v.touch(now)
}

// UpdateRollingAPY stores the compounded 7 and 30 day APY percentages
func (v *VaultLedger) UpdateRollingAPY(apy7d, apy30d decimal.Decimal) {
	v.APY7d = apy7d
	v.APY30d = apy30d
}

// Deactivate stops new deposits into the vault
func (v *VaultLedger) Deactivate(now time.Time) {
	v.Active = false
	v.touch(now)
}

func (v *VaultLedger) touch(now time.Time) {
	v.Touch(now)
	v.IncrementVersion()
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return clone(a)
	}
	return clone(b)
}
