package ledger

import (
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yieldvault/backend/internal/domain/shared"
)

// ShareAccount is one end user's position with a client. It is marked against
// the client's aggregated growth index, so the same account spans every vault
// the client operates.
type ShareAccount struct {
	shared.ClientAggregateRoot
	EndUserID          string
	TotalDeposited     *big.Int
	TotalWithdrawn     *big.Int
	WeightedEntryIndex *big.Int
	Active             bool
}

// NewShareAccount creates an empty account; the entry index is set by the first deposit
func NewShareAccount(clientID uuid.UUID, endUserID string, now time.Time) (*ShareAccount, error) {
	if clientID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeValidation, "client ID is required")
	}
	if strings.TrimSpace(endUserID) == "" {
		return nil, shared.NewDomainError(shared.CodeValidation, "end user ID is required")
	}
	return &ShareAccount{
		ClientAggregateRoot: shared.NewClientAggregateRoot(clientID, now),
		EndUserID:           endUserID,
		TotalDeposited:      new(big.Int),
		TotalWithdrawn:      new(big.Int),
		WeightedEntryIndex:  new(big.Int),
		Active:              true,
	}, nil
}

// Deposit credits amount at curIndex. The first deposit takes curIndex as the
// entry index; later deposits blend it into a deposit-weighted cost basis.
func (a *ShareAccount) Deposit(amount, curIndex *big.Int, now time.Time) error {
	if err := requirePositive("deposit amount", amount); err != nil {
		return err
	}
	if err := requirePositive("growth index", curIndex); err != nil {
		return err
	}
	if !a.Active {
		return shared.NewDomainError(shared.CodeInvalidState, "share account is deactivated")
	}

	if a.TotalDeposited.Sign() == 0 || a.WeightedEntryIndex.Sign() == 0 {
		a.WeightedEntryIndex = clone(curIndex)
	} else {
		a.WeightedEntryIndex = WeightedEntryIndex(a.TotalDeposited, a.WeightedEntryIndex, amount, curIndex)
	}
	a.TotalDeposited = new(big.Int).Add(a.TotalDeposited, amount)
	a.touch(now)
	a.AddDomainEvent(NewShareAccountChangedEvent(a, EventTypeAccountDeposited, amount, curIndex, now))
	return nil
}

// Withdraw debits amount valued at curIndex. The entry index is left as is.
func (a *ShareAccount) Withdraw(amount, curIndex *big.Int, now time.Time) error {
	if err := requirePositive("withdrawal amount", amount); err != nil {
		return err
	}
	if err := requirePositive("growth index", curIndex); err != nil {
		return err
	}
	available := a.AvailableBalance(curIndex)
	if amount.Cmp(available) > 0 {
		return shared.NewDomainErrorf(shared.CodeInsufficientBalance,
			"requested %s exceeds available balance %s", amount, available)
	}
	a.TotalWithdrawn = new(big.Int).Add(a.TotalWithdrawn, amount)
	a.touch(now)
	a.AddDomainEvent(NewShareAccountChangedEvent(a, EventTypeAccountWithdrawn, amount, curIndex, now))
	return nil
}

// CurrentEffectiveBalance is floor(totalDeposited·curIndex/entryIndex), 0 before any deposit
func (a *ShareAccount) CurrentEffectiveBalance(curIndex *big.Int) *big.Int {
	if a.WeightedEntryIndex == nil || a.WeightedEntryIndex.Sign() == 0 {
		return new(big.Int)
	}
	v := new(big.Int).Mul(a.TotalDeposited, curIndex)
	return v.Quo(v, a.WeightedEntryIndex)
}

// AvailableBalance is what can still be withdrawn: effective balance minus
// everything already withdrawn, never negative.
func (a *ShareAccount) AvailableBalance(curIndex *big.Int) *big.Int {
	v := new(big.Int).Sub(a.CurrentEffectiveBalance(curIndex), a.TotalWithdrawn)
	if v.Sign() < 0 {
		return new(big.Int)
	}
	return v
}

// YieldEarned is max(0, effective balance − total deposited)
func (a *ShareAccount) YieldEarned(curIndex *big.Int) *big.Int {
	return YieldEarned(a.TotalDeposited, curIndex, a.WeightedEntryIndex)
}

// NetPrincipal is deposits minus withdrawals, floored at zero
func (a *ShareAccount) NetPrincipal() *big.Int {
	v := new(big.Int).Sub(a.TotalDeposited, a.TotalWithdrawn)
	if v.Sign() < 0 {
		return new(big.Int)
	}
	return v
}

// Deactivate soft-deletes the account; history is kept and deposits are refused
func (a *ShareAccount) Deactivate(now time.Time) {
	a.Active = false
	a.touch(now)
}

func (a *ShareAccount) touch(now time.Time) {
	a.Touch(now)
	a.IncrementVersion()
}
