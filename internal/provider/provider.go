// Package provider defines the EIP-1193 style wallet provider the session
// manager talks to, plus a headless implementation that signs locally.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Provider is an EIP-1193 style wallet provider.
type Provider interface {
	// Request sends a JSON-RPC method to the wallet and returns the raw result.
	// Wallet-side failures are returned as *Error.
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	// Subscribe registers a listener. Events are delivered in the order the
	// provider emitted them. The returned func unsubscribes and closes the channel.
	Subscribe() (<-chan Event, func())
}

// Provider error codes (EIP-1193, EIP-3326).
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeUnrecognizedChain = 4902
	CodeInvalidParams     = -32602
	CodeInternal          = -32603
)

// Error is a provider RPC error.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// NewError returns an *Error with a formatted message.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Code extracts the provider error code from err.
func Code(err error) (int, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}

// IsCode reports whether err carries one of codes.
func IsCode(err error, codes ...int) bool {
	c, ok := Code(err)
	if !ok {
		return false
	}
	for _, want := range codes {
		if c == want {
			return true
		}
	}
	return false
}

// EventKind identifies a provider event.
type EventKind int

const (
	AccountsChanged EventKind = iota + 1
	ChainChanged
)

func (k EventKind) String() string {
	switch k {
	case AccountsChanged:
		return "accountsChanged"
	case ChainChanged:
		return "chainChanged"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a provider notification. Accounts is set for AccountsChanged
// (empty means the wallet disconnected), ChainID (hex) for ChainChanged.
type Event struct {
	Kind     EventKind
	Accounts []string
	ChainID  string
}

// DecodeResult unmarshals a Request result into T.
func DecodeResult[T any](raw json.RawMessage, err error) (T, error) {
	var out T
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decoding provider result %s: %w", raw, err)
	}
	return out, nil
}
