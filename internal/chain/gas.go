package chain

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Fees holds EIP-1559 fee caps for a new transaction.
type Fees struct {
	GasTipCap *big.Int
	GasFeeCap *big.Int
	BaseFee   *big.Int // nil on legacy chains
}

// SuggestFees derives a tip and fee cap from eth_gasPrice and the latest
// block's base fee. The fee cap is 2×baseFee + tip, or 2×gasPrice when the
// chain reports no base fee.
func (c *EVMClient) SuggestFees(ctx context.Context) (*Fees, error) {
	gp, err := c.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	fees := &Fees{
		GasTipCap: gp,
		GasFeeCap: new(big.Int).Mul(gp, big.NewInt(2)),
	}

	raw, err := c.Call(ctx, "eth_getBlockByNumber", "latest", false)
	if err != nil || len(raw) == 0 || string(raw) == "null" {
		return fees, nil
	}
	var head struct {
		BaseFeePerGas *hexutil.Big `json:"baseFeePerGas"`
	}
	if json.Unmarshal(raw, &head) != nil || head.BaseFeePerGas == nil {
		return fees, nil
	}

	base := head.BaseFeePerGas.ToInt()
	fees.BaseFee = base
	if base.Cmp(gp) < 0 {
		fees.GasTipCap = new(big.Int).Sub(gp, base)
	}
	fees.GasFeeCap = new(big.Int).Add(new(big.Int).Mul(base, big.NewInt(2)), fees.GasTipCap)
	return fees, nil
}

// WeiToGwei converts a Wei value to Gwei as float64.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetFloat64(1e9),
	).Float64()
	return f
}
