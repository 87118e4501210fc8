package trader

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotBound        = errors.New("no trading contract bound")
	ErrInvalidPath     = errors.New("invalid trade path")
	ErrEmptyAddress    = errors.New("empty address")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidSlippage = errors.New("slippage percent must be between 0 and 100")
)

// ApprovalMode selects the allowance granted by ApproveToken.
type ApprovalMode string

const (
	// ApprovalUnlimited approves 2^256-1 whatever amount was asked for.
	ApprovalUnlimited ApprovalMode = "unlimited"
	// ApprovalExact approves the requested amount.
	ApprovalExact ApprovalMode = "exact"
)

// Trade is a single swap along Path.
type Trade struct {
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []common.Address
	Deadline     int64 // unix seconds
}

// BatchTrade buys along BuyPath and sells along SellPath in one transaction.
type BatchTrade struct {
	BuyPath            []common.Address
	SellPath           []common.Address
	BuyAmountIn        *big.Int
	SellAmountIn       *big.Int
	MaxSlippagePercent uint64
	Deadline           int64 // unix seconds
}

// Approval describes a submitted approve transaction.
type Approval struct {
	Token   common.Address
	Spender common.Address
	// Decimals is zero when the amount was already in raw units.
	Decimals uint8
	// Amount is the requested amount in the token's smallest unit.
	Amount *big.Int
	// Value is what was actually approved; it differs from Amount in
	// unlimited mode.
	Value *big.Int
	Mode  ApprovalMode
	Hash  common.Hash
}

// BatchResult is the outcome of ExecuteBatchTrade.
type BatchResult struct {
	Approvals []*Approval
	Hash      common.Hash
}

// RouteVia builds a swap path from -> via -> to, dropping via when it is
// one of the ends.
func RouteVia(from, to, via common.Address) []common.Address {
	if via == from || via == to || via == (common.Address{}) {
		return []common.Address{from, to}
	}
	return []common.Address{from, via, to}
}

// DeadlineIn returns the unix deadline minutes after now.
func DeadlineIn(minutes int, now time.Time) int64 {
	return now.Add(time.Duration(minutes) * time.Minute).Unix()
}

// MinOut applies a slippage percentage to an expected output amount.
func MinOut(expected *big.Int, slippagePercent uint64) (*big.Int, error) {
	if slippagePercent > 100 {
		return nil, ErrInvalidSlippage
	}
	out := new(big.Int).Mul(expected, big.NewInt(int64(100-slippagePercent)))
	return out.Div(out, big.NewInt(100)), nil
}

func validatePath(path []common.Address) error {
	if len(path) < 2 {
		return fmt.Errorf("%w: need at least two tokens, got %d", ErrInvalidPath, len(path))
	}
	for i, a := range path {
		if a == (common.Address{}) {
			return fmt.Errorf("%w: hop %d is the zero address", ErrInvalidPath, i)
		}
	}
	return nil
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
