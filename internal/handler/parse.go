package handler

import (
	"github.com/curvebond/curvegate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// parseAddress accepts a 20-byte hex address. The zero address is the ether
// sentinel and is valid wherever a token address is expected.
func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, apperrors.Newf(apperrors.KindInvalidRequest, "invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	out, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apperrors.Newf(apperrors.KindInvalidRequest, "invalid amount %q", s)
	}
	return out, nil
}
