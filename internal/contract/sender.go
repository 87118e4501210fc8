package contract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Mohsinsiddi/zeroslip/internal/provider"
	"github.com/ethereum/go-ethereum/common"
)

// Sender submits write transactions through eth_sendTransaction. Signing,
// gas and nonce are left to the wallet.
type Sender struct {
	r Requester
}

// NewSender creates a Sender.
func NewSender(r Requester) *Sender {
	return &Sender{r: r}
}

// Send calls a write function from account from and returns the
// transaction hash reported by the wallet.
func (s *Sender) Send(ctx context.Context, b *Binding, from common.Address, method string, args ...interface{}) (common.Hash, error) {
	fn, err := b.Function(method)
	if err != nil {
		return common.Hash{}, err
	}
	if !fn.IsWriteFunction() {
		return common.Hash{}, fmt.Errorf("function %q is not a write function", method)
	}

	data, err := b.Pack(method, args...)
	if err != nil {
		return common.Hash{}, err
	}

	raw, err := s.r.Request(ctx, "eth_sendTransaction", provider.TxArgs{
		From: from.Hex(),
		To:   b.Address.Hex(),
		Data: data,
	})
	if err != nil {
		return common.Hash{}, err
	}
	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("unexpected %s result %s: %w", method, raw, err)
	}
	return common.HexToHash(hash), nil
}
