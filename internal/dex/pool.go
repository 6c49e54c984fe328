package dex

import (
	"math/big"

	apperrors "AutoLP-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// CodeBaseNotInPair is returned when neither side of a pair is the base asset.
const CodeBaseNotInPair apperrors.Code = "BASE_NOT_IN_PAIR"

func init() {
	apperrors.Register(CodeBaseNotInPair, apperrors.Attributes{
		Message:   "base asset not in pair",
		Severity:  apperrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
}

// Pool is a fresh read of one pair. It is never cached across operations.
type Pool struct {
	Address     common.Address
	Reserve0    *big.Int
	Reserve1    *big.Int
	TotalSupply *big.Int
	Token0      common.Address
	Token1      common.Address
}

// Split returns the reserves ordered as (token side, base side).
func (p Pool) Split(base common.Address) (tokenReserve, baseReserve *big.Int, err error) {
	switch base {
	case p.Token0:
		return p.Reserve1, p.Reserve0, nil
	case p.Token1:
		return p.Reserve0, p.Reserve1, nil
	default:
		return nil, nil, apperrors.New(CodeBaseNotInPair, "",
			apperrors.WithMetadata("pair", p.Address.Hex()))
	}
}

// Percent returns floor(amount * pct / 100).
func Percent(amount *big.Int, pct int) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(pct)))
	return out.Quo(out, big.NewInt(100))
}

// ProRata returns floor(shares * reserve / totalSupply). A zero supply yields zero.
func ProRata(shares, reserve, totalSupply *big.Int) *big.Int {
	if totalSupply == nil || totalSupply.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(shares, reserve)
	return out.Quo(out, totalSupply)
}
