package session

import (
	"errors"
	"fmt"
)

var (
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
	ErrConnectionRejected  = errors.New("wallet connection rejected")
	ErrChainSwitchFailed   = errors.New("chain switch failed")
	ErrNotConnected        = errors.New("wallet not connected")
	ErrUpstreamCallFailed  = errors.New("upstream call failed")
)

// UpstreamError wraps a failure reported by the provider or the contract.
// Its message is the upstream message unchanged, prefixed with the operation.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUpstreamCallFailed) hold for every UpstreamError.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamCallFailed
}

// Upstream wraps err as an *UpstreamError for op. Nil stays nil and errors
// that already are upstream or session errors pass through.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	for _, sentinel := range []error{ErrProviderUnavailable, ErrConnectionRejected, ErrChainSwitchFailed, ErrNotConnected} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return &UpstreamError{Op: op, Err: err}
}
