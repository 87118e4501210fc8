package config

import "time"

// Timeouts.
const (
	RPCSelectTimeout = 10 * time.Second
	TxConfirmTimeout = 3 * time.Minute
	RequestTimeout   = 2 * time.Minute
)

// GasBufferPercent is added on top of eth_estimateGas results before signing.
const GasBufferPercent = 20
