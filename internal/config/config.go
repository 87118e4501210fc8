package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

const (
	defaultNetwork      = "bsc"
	defaultMode         = "mainnet"
	defaultAlgorithm    = "fastest"
	defaultIntermediate = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c" // WBNB
	defaultSlippage     = 1
	defaultDeadline     = 20
	defaultLogLevel     = "info"
	defaultLogEncoding  = "console"

	configFile  = "config.json"
	walletsFile = "wallets.json"
)

// Approval modes.
const (
	ApprovalUnlimited = "unlimited"
	ApprovalExact     = "exact"
)

// Load reads config from dir (or creates defaults). dir defaults to ~/.zeroslip.
func Load(dir string) (*Config, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".zeroslip")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	cfg := defaults(dir)

	path := filepath.Join(dir, configFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.configDir = dir
	if cfg.CustomRPCs == nil {
		cfg.CustomRPCs = make(map[string][]string)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks fields that the trade flows depend on.
func (c *Config) Validate() error {
	switch c.ApprovalMode {
	case ApprovalUnlimited, ApprovalExact:
	default:
		return fmt.Errorf("invalid approval_mode %q (want %q or %q)", c.ApprovalMode, ApprovalUnlimited, ApprovalExact)
	}
	if c.SlippagePercent > 100 {
		return fmt.Errorf("slippage_percent must be between 0 and 100, got %d", c.SlippagePercent)
	}
	if c.DeadlineMinutes <= 0 {
		return fmt.Errorf("deadline_minutes must be positive, got %d", c.DeadlineMinutes)
	}
	return nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.configDir, configFile), data, 0o600)
}

// AddRPC adds a custom RPC URL for a chain.
func (c *Config) AddRPC(chain, url string) error {
	if c.CustomRPCs == nil {
		c.CustomRPCs = make(map[string][]string)
	}
	if slices.Contains(c.CustomRPCs[chain], url) {
		return fmt.Errorf("RPC %s already exists for chain %s", url, chain)
	}
	c.CustomRPCs[chain] = append(c.CustomRPCs[chain], url)
	return nil
}

// RemoveRPC removes a custom RPC URL for a chain.
func (c *Config) RemoveRPC(chain, url string) error {
	rpcs := c.CustomRPCs[chain]
	idx := slices.Index(rpcs, url)
	if idx == -1 {
		return fmt.Errorf("RPC %s not found for chain %s", url, chain)
	}
	c.CustomRPCs[chain] = slices.Delete(rpcs, idx, idx+1)
	return nil
}

// GetRPCs returns custom RPCs for a chain.
func (c *Config) GetRPCs(chain string) []string {
	return c.CustomRPCs[chain]
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// WalletsPath is the JSON file backing the wallet store.
func (c *Config) WalletsPath() string {
	return filepath.Join(c.configDir, walletsFile)
}

// --- helpers ---

func defaults(dir string) *Config {
	return &Config{
		Network:           defaultNetwork,
		NetworkMode:       defaultMode,
		RPCAlgorithm:      defaultAlgorithm,
		IntermediateToken: defaultIntermediate,
		SlippagePercent:   defaultSlippage,
		DeadlineMinutes:   defaultDeadline,
		ApprovalMode:      ApprovalUnlimited,
		LogLevel:          defaultLogLevel,
		LogEncoding:       defaultLogEncoding,
		CustomRPCs:        make(map[string][]string),
		configDir:         dir,
	}
}
