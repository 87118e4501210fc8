package chain

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrChainNotFound is returned when a chain is not in the registry.
var ErrChainNotFound = errors.New("chain not found")

// Currency describes a chain's native currency.
type Currency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Chain holds all metadata for a single EVM network.
type Chain struct {
	Name           string   `json:"name"`
	DisplayName    string   `json:"display_name"`
	ChainID        int64    `json:"chain_id"`
	NativeCurrency Currency `json:"native_currency"`
	RPCs           []string `json:"rpcs"`
	Explorer       string   `json:"explorer"`
	// Testnet names the registry entry used in testnet mode, if any.
	Testnet string `json:"testnet,omitempty"`
}

// AddChainParams is the wallet_addEthereumChain payload (EIP-3085).
type AddChainParams struct {
	ChainID           string   `json:"chainId"`
	ChainName         string   `json:"chainName"`
	NativeCurrency    Currency `json:"nativeCurrency"`
	RPCURLs           []string `json:"rpcUrls"`
	BlockExplorerURLs []string `json:"blockExplorerUrls,omitempty"`
}

// HexID returns the chain id as a 0x-prefixed hex quantity ("0x38" for 56).
func (c *Chain) HexID() string {
	return hexutil.EncodeUint64(uint64(c.ChainID))
}

// AddParams returns the registration payload for this chain.
func (c *Chain) AddParams() AddChainParams {
	p := AddChainParams{
		ChainID:        c.HexID(),
		ChainName:      c.DisplayName,
		NativeCurrency: c.NativeCurrency,
		RPCURLs:        append([]string(nil), c.RPCs...),
	}
	if c.Explorer != "" {
		p.BlockExplorerURLs = []string{c.Explorer}
	}
	return p
}

// FromAddParams builds a Chain from a registration payload.
func FromAddParams(p AddChainParams) (Chain, error) {
	id, err := ParseChainID(p.ChainID)
	if err != nil {
		return Chain{}, err
	}
	if len(p.RPCURLs) == 0 {
		return Chain{}, fmt.Errorf("chain %s: at least one RPC URL is required", p.ChainID)
	}
	c := Chain{
		Name:           strings.ToLower(strings.ReplaceAll(p.ChainName, " ", "-")),
		DisplayName:    p.ChainName,
		ChainID:        id,
		NativeCurrency: p.NativeCurrency,
		RPCs:           append([]string(nil), p.RPCURLs...),
	}
	if c.Name == "" {
		c.Name = p.ChainID
	}
	if len(p.BlockExplorerURLs) > 0 {
		c.Explorer = p.BlockExplorerURLs[0]
	}
	return c, nil
}

// ParseChainID parses a hex ("0x38") or decimal ("56") chain id.
func ParseChainID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := hexutil.DecodeUint64(strings.ToLower(s))
		if err != nil {
			return 0, fmt.Errorf("invalid chain id %q: %w", s, err)
		}
		return int64(n), nil
	}
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid chain id %q", s)
	}
	return n, nil
}

// Registry is the chain registry. Chains registered at runtime via Add are
// kept alongside the built-in ones.
type Registry struct {
	mu     sync.RWMutex
	chains []*Chain
	byName map[string]*Chain
	byID   map[int64]*Chain
}

// NewRegistry returns a registry seeded with the built-in networks.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]*Chain),
		byID:   make(map[int64]*Chain),
	}
	for _, c := range builtinChains() {
		r.put(c)
	}
	return r
}

// All returns every chain in the registry.
func (r *Registry) All() []Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, *c)
	}
	return out
}

// GetByName finds a chain by its slug name (e.g. "bsc").
func (r *Registry) GetByName(name string) (*Chain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, ErrChainNotFound
	}
	cp := *c
	return &cp, nil
}

// GetByChainID finds a chain by its numeric chain ID.
func (r *Registry) GetByChainID(id int64) (*Chain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, ErrChainNotFound
	}
	cp := *c
	return &cp, nil
}

// Resolve returns the chain named name, following its Testnet link when mode
// is "testnet".
func (r *Registry) Resolve(name, mode string) (*Chain, error) {
	c, err := r.GetByName(name)
	if err != nil {
		return nil, err
	}
	if mode == "testnet" && c.Testnet != "" {
		return r.GetByName(c.Testnet)
	}
	return c, nil
}

// Add registers (or replaces) a chain by id.
func (r *Registry) Add(c Chain) error {
	if c.ChainID <= 0 {
		return fmt.Errorf("chain %q: invalid chain id %d", c.Name, c.ChainID)
	}
	if c.Name == "" {
		c.Name = c.HexID()
	}
	r.put(c)
	return nil
}

func (r *Registry) put(c Chain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := &c
	if old, ok := r.byID[c.ChainID]; ok {
		for i := range r.chains {
			if r.chains[i] == old {
				r.chains[i] = cp
			}
		}
		delete(r.byName, old.Name)
	} else {
		r.chains = append(r.chains, cp)
	}
	r.byName[strings.ToLower(c.Name)] = cp
	r.byID[c.ChainID] = cp
}

// --- chain data ---

var bnb = Currency{Name: "BNB", Symbol: "BNB", Decimals: 18}

func builtinChains() []Chain {
	return []Chain{
		{
			Name: "bsc", DisplayName: "Binance Smart Chain", ChainID: 56,
			NativeCurrency: bnb,
			RPCs:           []string{"https://bsc-dataseed.binance.org/", "https://bsc-rpc.publicnode.com"},
			Explorer:       "https://bscscan.com/",
			Testnet:        "bsc-testnet",
		},
		{
			Name: "bsc-testnet", DisplayName: "BSC Testnet", ChainID: 97,
			NativeCurrency: Currency{Name: "tBNB", Symbol: "tBNB", Decimals: 18},
			RPCs:           []string{"https://data-seed-prebsc-1-s1.binance.org:8545"},
			Explorer:       "https://testnet.bscscan.com/",
		},
		{
			Name: "opbnb", DisplayName: "opBNB", ChainID: 204,
			NativeCurrency: bnb,
			RPCs:           []string{"https://opbnb-mainnet-rpc.bnbchain.org"},
			Explorer:       "https://opbnbscan.com/",
			Testnet:        "opbnb-testnet",
		},
		{
			Name: "opbnb-testnet", DisplayName: "opBNB Testnet", ChainID: 5611,
			NativeCurrency: Currency{Name: "tBNB", Symbol: "tBNB", Decimals: 18},
			RPCs:           []string{"https://opbnb-testnet-rpc.bnbchain.org"},
			Explorer:       "https://testnet.opbnbscan.com/",
		},
		{
			Name: "ethereum", DisplayName: "Ethereum", ChainID: 1,
			NativeCurrency: Currency{Name: "Ether", Symbol: "ETH", Decimals: 18},
			RPCs:           []string{"https://eth.llamarpc.com", "https://ethereum-rpc.publicnode.com"},
			Explorer:       "https://etherscan.io/",
			Testnet:        "sepolia",
		},
		{
			Name: "sepolia", DisplayName: "Sepolia", ChainID: 11155111,
			NativeCurrency: Currency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18},
			RPCs:           []string{"https://ethereum-sepolia-rpc.publicnode.com"},
			Explorer:       "https://sepolia.etherscan.io/",
		},
	}
}
