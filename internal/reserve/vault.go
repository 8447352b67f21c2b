// Package reserve provides in-memory implementations of the external
// collaborators the core depends on: the collateral reserve (vault) and the
// bonded-token supply ledger. A deployment against a real treasury swaps these
// for adapters satisfying the same interfaces.
package reserve

import (
	"github.com/curvebond/curvegate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Vault tracks the pooled reserve balance per collateral plus the external
// holder balances funds move against.
type Vault struct {
	pool    map[common.Address]decimal.Decimal
	holders map[common.Address]map[common.Address]decimal.Decimal // token -> holder -> balance
}

func NewVault() *Vault {
	return &Vault{
		pool:    make(map[common.Address]decimal.Decimal),
		holders: make(map[common.Address]map[common.Address]decimal.Decimal),
	}
}

// BalanceOf returns the pooled reserve balance of a collateral.
func (v *Vault) BalanceOf(token common.Address) decimal.Decimal {
	return v.pool[token]
}

// Transfer moves amount from the pool to a holder.
func (v *Vault) Transfer(token, to common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperrors.New(apperrors.KindInvalidRequest, "transfer amount must not be negative")
	}
	if v.pool[token].LessThan(amount) {
		return apperrors.Newf(apperrors.KindInsufficientFunds, "reserve holds %s, cannot transfer %s", v.pool[token], amount)
	}
	v.pool[token] = v.pool[token].Sub(amount)
	v.credit(token, to, amount)
	return nil
}

// Receive moves amount from a holder into the pool.
func (v *Vault) Receive(token, from common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperrors.New(apperrors.KindInvalidRequest, "receive amount must not be negative")
	}
	balance := v.HolderBalance(token, from)
	if balance.LessThan(amount) {
		return apperrors.Newf(apperrors.KindInsufficientFunds, "holder has %s, cannot deposit %s", balance, amount)
	}
	v.holders[token][from] = balance.Sub(amount)
	v.pool[token] = v.pool[token].Add(amount)
	return nil
}

// HolderBalance returns a holder's external balance of a token.
func (v *Vault) HolderBalance(token, holder common.Address) decimal.Decimal {
	if v.holders[token] == nil {
		v.holders[token] = make(map[common.Address]decimal.Decimal)
	}
	return v.holders[token][holder]
}

// Deposit credits external funds to a holder. Bootstrap and test helper.
func (v *Vault) Deposit(token, holder common.Address, amount decimal.Decimal) {
	v.credit(token, holder, amount)
}

// FundPool credits the pool directly, e.g. a presale transferring proceeds.
func (v *Vault) FundPool(token common.Address, amount decimal.Decimal) {
	v.pool[token] = v.pool[token].Add(amount)
}

func (v *Vault) credit(token, holder common.Address, amount decimal.Decimal) {
	if v.holders[token] == nil {
		v.holders[token] = make(map[common.Address]decimal.Decimal)
	}
	v.holders[token][holder] = v.holders[token][holder].Add(amount)
}
