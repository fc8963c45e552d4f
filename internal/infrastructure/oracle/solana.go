package oracle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// TokenBalanceReader reads an SPL token account balance. *rpc.Client satisfies it.
type TokenBalanceReader interface {
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
}

// SPLTokenOracle reads the balance of the wallet's associated token account for a mint
type SPLTokenOracle struct {
	reader TokenBalanceReader
	mint   solana.PublicKey
}

// NewSPLTokenOracle binds an oracle to one mint
func NewSPLTokenOracle(reader TokenBalanceReader, mint string) (*SPLTokenOracle, error) {
	key, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("%w: mint %q: %v", ErrInvalidAddress, mint, err)
	}
	return &SPLTokenOracle{reader: reader, mint: key}, nil
}

// ReadBalance implements BalanceOracle using finalized commitment
func (o *SPLTokenOracle) ReadBalance(ctx context.Context, custodialWallet, _ string) (*big.Int, error) {
	owner, err := solana.PublicKeyFromBase58(custodialWallet)
	if err != nil {
		return nil, fmt.Errorf("%w: wallet %q: %v", ErrInvalidAddress, custodialWallet, err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, o.mint)
	if err != nil {
		return nil, fmt.Errorf("derive token account: %w", err)
	}

	resp, err := o.reader.GetTokenAccountBalance(ctx, ata, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("get token account %s balance: %w", ata, err)
	}
	if resp == nil || resp.Value == nil {
		return nil, fmt.Errorf("%w: empty balance for %s", ErrMalformedResult, ata)
	}
	amount, ok := new(big.Int).SetString(resp.Value.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount %q", ErrMalformedResult, resp.Value.Amount)
	}
	return amount, nil
}
