package ledger

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/domain/shared"
)

// In-memory repositories used by the service tests. Stored aggregates are
// copied on the way in and out so that a failed unit of work leaves the
// stored state untouched, as a rolled back transaction would.

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func copyVault(v *ledger.VaultLedger) *ledger.VaultLedger {
	c := *v
	c.TotalShares = copyInt(v.TotalShares)
	c.CurrentIndex = copyInt(v.CurrentIndex)
	c.PendingDepositBalance = copyInt(v.PendingDepositBalance)
	c.TotalStakedBalance = copyInt(v.TotalStakedBalance)
	c.CumulativeYield = copyInt(v.CumulativeYield)
	c.DistributedYield = copyInt(v.DistributedYield)
	c.LastObservedBalance = copyInt(v.LastObservedBalance)
	c.ClearDomainEvents()
	return &c
}

func copyAccount(a *ledger.ShareAccount) *ledger.ShareAccount {
	c := *a
	c.TotalDeposited = copyInt(a.TotalDeposited)
	c.TotalWithdrawn = copyInt(a.TotalWithdrawn)
	c.WeightedEntryIndex = copyInt(a.WeightedEntryIndex)
	c.ClearDomainEvents()
	return &c
}

type memVaultRepo struct {
	mu      sync.Mutex
	vaults  map[uuid.UUID]*ledger.VaultLedger
	listErr error
}

func newMemVaultRepo() *memVaultRepo {
	return &memVaultRepo{vaults: map[uuid.UUID]*ledger.VaultLedger{}}
}

func (r *memVaultRepo) FindByID(_ context.Context, id uuid.UUID) (*ledger.VaultLedger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vaults[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return copyVault(v), nil
}

func (r *memVaultRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.VaultLedger, error) {
	return r.FindByID(ctx, id)
}

func (r *memVaultRepo) FindByKey(_ context.Context, clientID uuid.UUID, chain, token string, env ledger.Environment) (*ledger.VaultLedger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.vaults {
		if v.ClientID == clientID && v.Chain == chain && v.TokenAddress == token && v.Environment == env {
			return copyVault(v), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memVaultRepo) ListByClient(_ context.Context, clientID uuid.UUID) ([]*ledger.VaultLedger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ledger.VaultLedger
	for _, v := range r.sorted() {
		if v.ClientID == clientID && v.Active {
			out = append(out, copyVault(v))
		}
	}
	return out, nil
}

func (r *memVaultRepo) ListActive(_ context.Context) ([]*ledger.VaultLedger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*ledger.VaultLedger
	for _, v := range r.sorted() {
		if v.Active {
			out = append(out, copyVault(v))
		}
	}
	return out, nil
}

func (r *memVaultRepo) FindAll(_ context.Context, filter ledger.VaultFilter) ([]*ledger.VaultLedger, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ledger.VaultLedger
	for _, v := range r.sorted() {
		if filter.ClientID != nil && v.ClientID != *filter.ClientID {
			continue
		}
		out = append(out, copyVault(v))
	}
	return out, int64(len(out)), nil
}

func (r *memVaultRepo) ListClientIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, v := range r.sorted() {
		if v.Active && !seen[v.ClientID] {
			seen[v.ClientID] = true
			out = append(out, v.ClientID)
		}
	}
	return out, nil
}

func (r *memVaultRepo) Save(_ context.Context, v *ledger.VaultLedger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vaults[v.ID] = copyVault(v)
	return nil
}

func (r *memVaultRepo) sorted() []*ledger.VaultLedger {
	out := make([]*ledger.VaultLedger, 0, len(r.vaults))
	for _, v := range r.vaults {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*ledger.ShareAccount
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: map[string]*ledger.ShareAccount{}}
}

func accountKey(clientID uuid.UUID, endUserID string) string {
	return clientID.String() + "/" + endUserID
}

func (r *memAccountRepo) FindByEndUser(_ context.Context, clientID uuid.UUID, endUserID string) (*ledger.ShareAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountKey(clientID, endUserID)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return copyAccount(a), nil
}

func (r *memAccountRepo) FindByEndUserForUpdate(ctx context.Context, clientID uuid.UUID, endUserID string) (*ledger.ShareAccount, error) {
	return r.FindByEndUser(ctx, clientID, endUserID)
}

func (r *memAccountRepo) ListByClient(_ context.Context, clientID uuid.UUID, _ shared.Filter) ([]*ledger.ShareAccount, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ledger.ShareAccount
	for _, a := range r.accounts {
		if a.ClientID == clientID {
			out = append(out, copyAccount(a))
		}
	}
	return out, int64(len(out)), nil
}

func (r *memAccountRepo) Save(_ context.Context, a *ledger.ShareAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[accountKey(a.ClientID, a.EndUserID)] = copyAccount(a)
	return nil
}

type memSnapshotRepo struct {
	mu        sync.Mutex
	snapshots []*ledger.IndexSnapshot
}

func (r *memSnapshotRepo) Append(_ context.Context, s *ledger.IndexSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
	return nil
}

func (r *memSnapshotRepo) ListSince(_ context.Context, vaultID uuid.UUID, since time.Time) ([]*ledger.IndexSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ledger.IndexSnapshot
	for _, s := range r.snapshots {
		if s.VaultID == vaultID && !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memSnapshotRepo) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.snapshots[:0]
	var n int64
	for _, s := range r.snapshots {
		if s.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, s)
	}
	r.snapshots = kept
	return n, nil
}

func (r *memSnapshotRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

type memDistributionRepo struct {
	mu    sync.Mutex
	items []*ledger.RevenueDistribution
}

func (r *memDistributionRepo) Append(_ context.Context, d *ledger.RevenueDistribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, d)
	return nil
}

func (r *memDistributionRepo) ListByVault(_ context.Context, vaultID uuid.UUID, _ shared.Filter) ([]*ledger.RevenueDistribution, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ledger.RevenueDistribution
	for _, d := range r.items {
		if d.VaultID == vaultID {
			out = append(out, d)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memDistributionRepo) PruneBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type memFeeRepo struct {
	mu      sync.Mutex
	configs map[uuid.UUID]*ledger.ClientFeeConfig
}

func newMemFeeRepo() *memFeeRepo {
	return &memFeeRepo{configs: map[uuid.UUID]*ledger.ClientFeeConfig{}}
}

func (r *memFeeRepo) Get(_ context.Context, clientID uuid.UUID) (*ledger.ClientFeeConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.configs[clientID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memFeeRepo) Save(_ context.Context, c *ledger.ClientFeeConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.configs[c.ClientID] = &cp
	return nil
}

func (r *memFeeRepo) ListActive(context.Context) ([]*ledger.ClientFeeConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ledger.ClientFeeConfig
	for _, c := range r.configs {
		if c.Active {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memIdempotency) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memIdempotency) IsProcessed(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *memIdempotency) Close() error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// ledgerFixture wires every service over in-memory repositories
type ledgerFixture struct {
	vaults        *memVaultRepo
	accounts      *memAccountRepo
	snapshots     *memSnapshotRepo
	distributions *memDistributionRepo
	fees          *memFeeRepo
	scope         *NoOpTransactionScope
	clock         *shared.FixedClock
	publisher     *recordingPublisher
}

func newLedgerFixture() *ledgerFixture {
	f := &ledgerFixture{
		vaults:        newMemVaultRepo(),
		accounts:      newMemAccountRepo(),
		snapshots:     &memSnapshotRepo{},
		distributions: &memDistributionRepo{},
		fees:          newMemFeeRepo(),
		clock:         &shared.FixedClock{T: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		publisher:     &recordingPublisher{},
	}
	f.scope = NewNoOpTransactionScope(f.vaults, f.accounts, f.snapshots, f.distributions, f.fees)
	return f
}
