// Package wallet reads token balances of the connected account.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"cdpview/multicall"
	"cdpview/units"
)

// ErrNoAccount is returned when no account is connected.
var ErrNoAccount = errors.New("wallet: no account connected")

// Token reads a balance of the connected account.
type Token interface {
	Symbol() string
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// ERC20 reads balanceOf for a fixed account.
type ERC20 struct {
	runner   multicall.Runner
	symbol   string
	token    common.Address
	account  common.Address
	decimals int32
}

// NewERC20 binds a token to an account. A zero account means no wallet is
// connected.
func NewERC20(runner multicall.Runner, symbol string, token, account common.Address) *ERC20 {
	return &ERC20{runner: runner, symbol: symbol, token: token, account: account, decimals: 18}
}

// Symbol returns the token symbol.
func (t *ERC20) Symbol() string { return t.symbol }

// Account returns the bound account and whether one is connected.
func (t *ERC20) Account() (common.Address, bool) {
	return t.account, t.account != (common.Address{})
}

// Balance returns the account balance in whole tokens.
func (t *ERC20) Balance(ctx context.Context) (decimal.Decimal, error) {
	if _, ok := t.Account(); !ok {
		return decimal.Zero, ErrNoAccount
	}
	res, err := t.runner.Run(ctx, []multicall.Call{{
		Target:    t.token,
		Signature: "balanceOf(address)(uint256)",
		Args:      []any{t.account},
		Returns: []multicall.Return{{Key: "balance", Decode: multicall.Big(func(v *big.Int) decimal.Decimal {
			return units.Scale(v, t.decimals)
		})}},
	}})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s balance: %w", t.symbol, err)
	}
	balance, _ := res.Values["balance"].(decimal.Decimal)
	return balance, nil
}
