// Package oracle reads custodial wallet balances from external chains.
//
// Each production StrategyConfig kind maps to one BalanceOracle: ERC-20 and
// ERC-4626 positions go through go-ethereum contract calls, SPL positions
// through the Solana JSON-RPC client, and composite strategies sum their
// positions. Sandbox strategies never reach an oracle.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	appledger "github.com/yieldvault/backend/internal/application/ledger"
	"github.com/yieldvault/backend/internal/domain/ledger"
	"github.com/yieldvault/backend/internal/infrastructure/config"
	"github.com/yieldvault/backend/internal/infrastructure/telemetry"
)

var (
	ErrUnsupportedStrategy = errors.New("oracle: strategy has no balance oracle")
	ErrUnknownChain        = errors.New("oracle: no RPC endpoint for chain")
	ErrSolanaUnavailable   = errors.New("oracle: solana endpoint not configured")
	ErrInvalidAddress      = errors.New("oracle: invalid address")
	ErrMalformedResult     = errors.New("oracle: malformed RPC result")
)

// Registry resolves strategies to oracles over a fixed set of chain clients
type Registry struct {
	evm     map[string]ContractCaller
	solana  TokenBalanceReader
	closers []func()
}

var _ appledger.OracleRegistry = (*Registry)(nil)

// NewRegistry builds a registry from already connected clients. Chain names are case-insensitive.
func NewRegistry(evm map[string]ContractCaller, solana TokenBalanceReader) *Registry {
	callers := make(map[string]ContractCaller, len(evm))
	for chain, c := range evm {
		callers[normalizeChain(chain)] = c
	}
	return &Registry{evm: callers, solana: solana}
}

// Dial connects one ethclient per configured EVM chain and the Solana RPC client
func Dial(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (*Registry, error) {
	evm := make(map[string]ContractCaller, len(cfg.EVMEndpoints))
	var closers []func()
	for chain, endpoint := range cfg.EVMEndpoints {
		client, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, fmt.Errorf("dial %s rpc: %w", chain, err)
		}
		evm[chain] = client
		closers = append(closers, client.Close)
		logger.Info("EVM oracle connected", zap.String("chain", chain))
	}

	var sol TokenBalanceReader
	if cfg.SolanaEndpoint != "" {
		client := rpc.New(cfg.SolanaEndpoint)
		sol = client
		closers = append(closers, func() { _ = client.Close() })
		logger.Info("Solana oracle configured")
	}

	r := NewRegistry(evm, sol)
	r.closers = closers
	return r, nil
}

// Close releases the RPC connections opened by Dial
func (r *Registry) Close() {
	for _, c := range r.closers {
		c()
	}
	r.closers = nil
}

// Resolve implements OracleRegistry
func (r *Registry) Resolve(strategy ledger.StrategyConfig) (appledger.BalanceOracle, error) {
	if strategy == nil {
		return nil, ErrUnsupportedStrategy
	}
	o, err := r.resolve(strategy)
	if err != nil {
		return nil, err
	}
	return &tracedOracle{inner: o, kind: strategy.Kind()}, nil
}

func (r *Registry) resolve(strategy ledger.StrategyConfig) (appledger.BalanceOracle, error) {
	switch s := strategy.(type) {
	case ledger.ERC20BalanceStrategy:
		caller, err := r.caller(s.Chain)
		if err != nil {
			return nil, err
		}
		return NewERC20BalanceOracle(caller, s.Token)
	case ledger.ERC4626Strategy:
		caller, err := r.caller(s.Chain)
		if err != nil {
			return nil, err
		}
		return NewERC4626Oracle(caller, s.Vault)
	case ledger.SPLTokenStrategy:
		if r.solana == nil {
			return nil, ErrSolanaUnavailable
		}
		return NewSPLTokenOracle(r.solana, s.Mint)
	case ledger.CompositeStrategy:
		parts := make([]appledger.BalanceOracle, 0, len(s.Positions))
		for _, p := range s.Positions {
			o, err := r.resolve(p)
			if err != nil {
				return nil, err
			}
			parts = append(parts, o)
		}
		return CompositeOracle(parts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStrategy, strategy.Kind())
	}
}

func (r *Registry) caller(chain string) (ContractCaller, error) {
	c, ok := r.evm[normalizeChain(chain)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, chain)
	}
	return c, nil
}

func normalizeChain(chain string) string {
	return strings.ToLower(strings.TrimSpace(chain))
}

// CompositeOracle sums the balances of its parts. Any failed part fails the read.
type CompositeOracle []appledger.BalanceOracle

// ReadBalance implements BalanceOracle
func (c CompositeOracle) ReadBalance(ctx context.Context, custodialWallet, tokenAddress string) (*big.Int, error) {
	total := new(big.Int)
	for i, o := range c {
		bal, err := o.ReadBalance(ctx, custodialWallet, tokenAddress)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", i, err)
		}
		total.Add(total, bal)
	}
	return total, nil
}

type tracedOracle struct {
	inner appledger.BalanceOracle
	kind  ledger.StrategyKind
}

func (t *tracedOracle) ReadBalance(ctx context.Context, custodialWallet, tokenAddress string) (*big.Int, error) {
	ctx, span := telemetry.StartClientSpan(ctx, "oracle", "read_balance")
	defer span.End()
	telemetry.SetAttributes(span, "strategy.kind", string(t.kind), "wallet", custodialWallet)

	bal, err := t.inner.ReadBalance(ctx, custodialWallet, tokenAddress)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return bal, nil
}
