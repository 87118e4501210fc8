package config

// Config holds all zeroslip configuration.
type Config struct {
	Network           string              `json:"network"`
	NetworkMode       string              `json:"network_mode"`  // "mainnet" | "testnet"
	RPCAlgorithm      string              `json:"rpc_algorithm"` // "fastest" | "round-robin" | "failover"
	DefaultWallet     string              `json:"default_wallet"`
	ContractAddress   string              `json:"contract_address"`
	IntermediateToken string              `json:"intermediate_token"`
	SlippagePercent   uint64              `json:"slippage_percent"`
	DeadlineMinutes   int                 `json:"deadline_minutes"`
	ApprovalMode      string              `json:"approval_mode"` // "unlimited" | "exact"
	LogLevel          string              `json:"log_level"`
	LogEncoding       string              `json:"log_encoding"` // "console" | "json"
	CustomRPCs        map[string][]string `json:"custom_rpcs"`

	// internal: config dir path used for Save()
	configDir string
}
