package contract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownBuiltin  = errors.New("unknown built-in ABI")
	ErrFunctionMissing = errors.New("function not found in ABI")
)

// Binding pairs a contract address with its parsed ABI. It is immutable.
type Binding struct {
	Address common.Address
	entries []ABIEntry
	abi     abi.ABI
}

// NewBinding parses entries and binds them to address.
func NewBinding(address common.Address, entries []ABIEntry) (*Binding, error) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encoding ABI: %w", err)
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI: %w", err)
	}
	return &Binding{Address: address, entries: entries, abi: parsed}, nil
}

// Builtin binds the built-in ABI id to address.
func Builtin(id string, address common.Address) (*Binding, error) {
	b, ok := GetBuiltin(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBuiltin, id)
	}
	return NewBinding(address, b.ABI)
}

// Function returns the ABI entry for name.
func (b *Binding) Function(name string) (ABIEntry, error) {
	for _, e := range b.entries {
		if e.Type == "function" && e.Name == name {
			return e, nil
		}
	}
	return ABIEntry{}, fmt.Errorf("%w: %q", ErrFunctionMissing, name)
}

// Pack encodes a call to method.
func (b *Binding) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}
	return data, nil
}

// Unpack decodes the return data of method.
func (b *Binding) Unpack(method string, data []byte) ([]interface{}, error) {
	out, err := b.abi.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s result: %w", method, err)
	}
	return out, nil
}

// At returns a copy of the binding pointed at another address.
func (b *Binding) At(address common.Address) *Binding {
	cp := *b
	cp.Address = address
	return &cp
}
