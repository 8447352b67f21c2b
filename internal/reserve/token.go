package reserve

import (
	"github.com/curvebond/curvegate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// BondedToken is the in-memory mint/burn ledger for the bonded token, the
// token-manager analog.
type BondedToken struct {
	total    decimal.Decimal
	balances map[common.Address]decimal.Decimal
}

func NewBondedToken() *BondedToken {
	return &BondedToken{balances: make(map[common.Address]decimal.Decimal)}
}

func (t *BondedToken) Mint(to common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperrors.New(apperrors.KindInvalidRequest, "mint amount must not be negative")
	}
	t.balances[to] = t.balances[to].Add(amount)
	t.total = t.total.Add(amount)
	return nil
}

func (t *BondedToken) Burn(from common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperrors.New(apperrors.KindInvalidRequest, "burn amount must not be negative")
	}
	if t.balances[from].LessThan(amount) {
		return apperrors.Newf(apperrors.KindInsufficientFunds, "holder has %s bonded tokens, cannot burn %s", t.balances[from], amount)
	}
	t.balances[from] = t.balances[from].Sub(amount)
	t.total = t.total.Sub(amount)
	return nil
}

func (t *BondedToken) TotalSupply() decimal.Decimal {
	return t.total
}

func (t *BondedToken) BalanceOf(addr common.Address) decimal.Decimal {
	return t.balances[addr]
}
