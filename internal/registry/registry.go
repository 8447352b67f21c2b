// Package registry holds the per-collateral curve configuration whitelist.
package registry

import (
	"sort"

	"github.com/curvebond/curvegate/internal/curve"
	"github.com/curvebond/curvegate/internal/model"
	"github.com/curvebond/curvegate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Registry is the keyed store of collateral tokens. It is not internally
// locked: all access goes through the controller's transaction boundary.
type Registry struct {
	tokens map[common.Address]*model.CollateralToken
}

func New() *Registry {
	return &Registry{tokens: make(map[common.Address]*model.CollateralToken)}
}

func (r *Registry) Add(token common.Address, virtualSupply, virtualBalance decimal.Decimal, ratio uint32, slippage decimal.Decimal) (*model.CollateralToken, error) {
	if existing, ok := r.tokens[token]; ok && existing.Exists {
		return nil, apperrors.Newf(apperrors.KindAlreadyExists, "collateral %s already whitelisted", token.Hex())
	}
	if !curve.ValidReserveRatio(ratio) {
		return nil, apperrors.Newf(apperrors.KindInvalidReserveRatio, "reserve ratio %d ppm out of range", ratio)
	}
	if virtualSupply.IsNegative() || virtualBalance.IsNegative() || slippage.IsNegative() {
		return nil, apperrors.New(apperrors.KindInvalidToken, "virtual supply, virtual balance and slippage must be non-negative")
	}

	entry := &model.CollateralToken{
		Token:          token,
		Exists:         true,
		VirtualSupply:  virtualSupply,
		VirtualBalance: virtualBalance,
		ReserveRatio:   ratio,
		Slippage:       slippage,
	}
	r.tokens[token] = entry
	out := *entry
	return &out, nil
}

func (r *Registry) Update(token common.Address, virtualSupply, virtualBalance decimal.Decimal, ratio uint32, slippage decimal.Decimal) (*model.CollateralToken, error) {
	entry, ok := r.tokens[token]
	if !ok || !entry.Exists {
		return nil, apperrors.Newf(apperrors.KindNotFound, "collateral %s not whitelisted", token.Hex())
	}
	if !curve.ValidReserveRatio(ratio) {
		return nil, apperrors.Newf(apperrors.KindInvalidReserveRatio, "reserve ratio %d ppm out of range", ratio)
	}
	if virtualSupply.IsNegative() || virtualBalance.IsNegative() || slippage.IsNegative() {
		return nil, apperrors.New(apperrors.KindInvalidToken, "virtual supply, virtual balance and slippage must be non-negative")
	}

	entry.VirtualSupply = virtualSupply
	entry.VirtualBalance = virtualBalance
	entry.ReserveRatio = ratio
	entry.Slippage = slippage
	out := *entry
	return &out, nil
}

// Remove marks the collateral as de-whitelisted. The entry is kept so batches
// opened before removal stay claimable.
func (r *Registry) Remove(token common.Address) error {
	entry, ok := r.tokens[token]
	if !ok || !entry.Exists {
		return apperrors.Newf(apperrors.KindNotFound, "collateral %s not whitelisted", token.Hex())
	}
	entry.Exists = false
	return nil
}

func (r *Registry) Get(token common.Address) (*model.CollateralToken, error) {
	entry, ok := r.tokens[token]
	if !ok || !entry.Exists {
		return nil, apperrors.Newf(apperrors.KindNotFound, "collateral %s not whitelisted", token.Hex())
	}
	out := *entry
	return &out, nil
}

// All returns the whitelisted collaterals in a stable order.
func (r *Registry) All() []*model.CollateralToken {
	out := make([]*model.CollateralToken, 0, len(r.tokens))
	for _, entry := range r.tokens {
		if !entry.Exists {
			continue
		}
		cp := *entry
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Token.Hex() < out[j].Token.Hex()
	})
	return out
}
