package contract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Requester sends JSON-RPC requests. provider.Provider satisfies it.
type Requester interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// Caller calls read-only (view/pure) contract functions through eth_call.
type Caller struct {
	r Requester
}

// NewCaller creates a Caller.
func NewCaller(r Requester) *Caller {
	return &Caller{r: r}
}

type callObject struct {
	From string        `json:"from,omitempty"`
	To   string        `json:"to"`
	Data hexutil.Bytes `json:"data"`
}

// Call runs method on the bound contract against the latest block and
// returns the decoded outputs. A zero from is omitted.
func (c *Caller) Call(ctx context.Context, b *Binding, from common.Address, method string, args ...interface{}) ([]interface{}, error) {
	fn, err := b.Function(method)
	if err != nil {
		return nil, err
	}
	if !fn.IsReadFunction() {
		return nil, fmt.Errorf("function %q is not a read function (stateMutability: %s)", method, fn.StateMutability)
	}

	data, err := b.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	obj := callObject{To: b.Address.Hex(), Data: data}
	if from != (common.Address{}) {
		obj.From = from.Hex()
	}

	raw, err := c.r.Request(ctx, "eth_call", obj, "latest")
	if err != nil {
		return nil, err
	}
	var out hexutil.Bytes
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parsing %s result %s: %w", method, raw, err)
	}
	return b.Unpack(method, out)
}
