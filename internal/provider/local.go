package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/Mohsinsiddi/zeroslip/internal/chain"
	"github.com/Mohsinsiddi/zeroslip/internal/rpc"
	"github.com/Mohsinsiddi/zeroslip/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Backend is the node connection a Local provider forwards to.
type Backend interface {
	Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
	PendingNonce(ctx context.Context, address string) (uint64, error)
	EstimateGas(ctx context.Context, msg chain.CallMsg) (uint64, error)
	SuggestFees(ctx context.Context) (*chain.Fees, error)
	SendRawTransaction(ctx context.Context, rawTx []byte) (string, error)
}

// Dialer opens a Backend for a chain.
type Dialer func(ctx context.Context, c chain.Chain) (Backend, error)

// Consent decides whether account may be exposed to the caller. A non-nil
// error is reported as a user rejection.
type Consent func(ctx context.Context, account common.Address) error

// TxArgs is the eth_sendTransaction parameter object.
type TxArgs struct {
	From  string          `json:"from"`
	To    string          `json:"to,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

// Local is a Provider that holds one signing wallet and signs in-process.
// Methods it does not handle itself are forwarded to the active chain's RPC.
type Local struct {
	mu         sync.Mutex
	signer     *wallet.Signer
	authorized bool
	chains     *chain.Registry
	active     chain.Chain
	backends   map[int64]Backend

	dial      Dialer
	consent   Consent
	gasBuffer uint64
	log       *zap.Logger
	feed      Feed
}

// LocalOption configures a Local provider.
type LocalOption func(*Local)

// WithDialer overrides how RPC backends are opened.
func WithDialer(d Dialer) LocalOption {
	return func(l *Local) { l.dial = d }
}

// WithConsent installs the account authorization prompt.
func WithConsent(c Consent) LocalOption {
	return func(l *Local) { l.consent = c }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) LocalOption {
	return func(l *Local) { l.log = log }
}

// WithGasBuffer sets the percentage added to gas estimates.
func WithGasBuffer(percent uint64) LocalOption {
	return func(l *Local) { l.gasBuffer = percent }
}

// NewLocal creates a provider for signer starting on chain start. Chains
// reachable through wallet_switchEthereumChain come from reg.
func NewLocal(signer *wallet.Signer, reg *chain.Registry, start chain.Chain, opts ...LocalOption) *Local {
	l := &Local{
		signer:   signer,
		chains:   reg,
		active:   start,
		backends: make(map[int64]Backend),
		dial:     RPCDialer(rpc.AlgorithmFastest, nil),
		consent:  func(context.Context, common.Address) error { return nil },
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RPCDialer picks an endpoint among the chain's RPCs plus extra(chain name)
// using algo.
func RPCDialer(algo rpc.Algorithm, extra func(name string) []string) Dialer {
	return func(ctx context.Context, c chain.Chain) (Backend, error) {
		var urls []string
		if extra != nil {
			urls = append(urls, extra(c.Name)...)
		}
		urls = append(urls, c.RPCs...)
		url, err := rpc.Select(ctx, urls, algo)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		return chain.NewEVMClient(url), nil
	}
}

// Subscribe implements Provider.
func (l *Local) Subscribe() (<-chan Event, func()) {
	return l.feed.Subscribe()
}

// ActiveChain returns the chain the provider currently points at.
func (l *Local) ActiveChain() chain.Chain {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Disconnect revokes account access and notifies subscribers with an empty
// account list.
func (l *Local) Disconnect() {
	l.mu.Lock()
	l.authorized = false
	l.mu.Unlock()
	l.feed.Send(Event{Kind: AccountsChanged, Accounts: []string{}})
}

// SwitchAccount replaces the signing wallet. Subscribers are told about the
// new account only when access was already granted.
func (l *Local) SwitchAccount(s *wallet.Signer) {
	l.mu.Lock()
	l.signer = s
	notify := l.authorized
	l.mu.Unlock()
	if notify {
		l.feed.Send(Event{Kind: AccountsChanged, Accounts: []string{s.Address().Hex()}})
	}
}

// Request implements Provider.
func (l *Local) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	l.log.Debug("provider request", zap.String("method", method))
	switch method {
	case "eth_requestAccounts":
		return l.requestAccounts(ctx)
	case "eth_accounts":
		return l.accounts()
	case "eth_chainId":
		return json.Marshal(l.ActiveChain().HexID())
	case "wallet_switchEthereumChain":
		return l.switchChain(params)
	case "wallet_addEthereumChain":
		return l.addChain(params)
	case "eth_sendTransaction":
		return l.sendTransaction(ctx, params)
	case "personal_sign":
		return l.personalSign(params)
	case "eth_sign", "eth_signTypedData_v4", "wallet_watchAsset":
		return nil, NewError(CodeUnsupportedMethod, "method %s is not supported", method)
	}

	b, err := l.backend(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := b.Call(ctx, method, params...)
	return raw, fromRPCError(err)
}

func (l *Local) requestAccounts(ctx context.Context) (json.RawMessage, error) {
	l.mu.Lock()
	signer, authorized := l.signer, l.authorized
	l.mu.Unlock()

	if signer == nil {
		return json.Marshal([]string{})
	}
	if !authorized {
		if err := l.consent(ctx, signer.Address()); err != nil {
			l.log.Info("account access denied", zap.Error(err))
			return nil, NewError(CodeUserRejected, "User rejected the request.")
		}
		l.mu.Lock()
		l.authorized = true
		l.mu.Unlock()
	}
	return json.Marshal([]string{signer.Address().Hex()})
}

func (l *Local) accounts() (json.RawMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.authorized || l.signer == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string{l.signer.Address().Hex()})
}

func (l *Local) switchChain(params []any) (json.RawMessage, error) {
	var p struct {
		ChainID string `json:"chainId"`
	}
	if err := decodeParam(params, 0, &p); err != nil {
		return nil, err
	}
	id, err := chain.ParseChainID(p.ChainID)
	if err != nil {
		return nil, NewError(CodeInvalidParams, "%v", err)
	}
	target, err := l.chains.GetByChainID(id)
	if errors.Is(err, chain.ErrChainNotFound) {
		return nil, NewError(CodeUnrecognizedChain, "Unrecognized chain ID %q. Try adding the chain using wallet_addEthereumChain first.", p.ChainID)
	}
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	changed := l.active.ChainID != target.ChainID
	l.active = *target
	l.mu.Unlock()

	if changed {
		l.log.Info("switched chain", zap.String("chain", target.Name), zap.Int64("chain_id", target.ChainID))
		l.feed.Send(Event{Kind: ChainChanged, ChainID: target.HexID()})
	}
	return json.RawMessage("null"), nil
}

func (l *Local) addChain(params []any) (json.RawMessage, error) {
	var p chain.AddChainParams
	if err := decodeParam(params, 0, &p); err != nil {
		return nil, err
	}
	c, err := chain.FromAddParams(p)
	if err != nil {
		return nil, NewError(CodeInvalidParams, "%v", err)
	}
	if existing, err := l.chains.GetByChainID(c.ChainID); err == nil {
		l.log.Debug("chain already registered", zap.String("chain", existing.Name))
		return json.RawMessage("null"), nil
	}
	if err := l.chains.Add(c); err != nil {
		return nil, NewError(CodeInvalidParams, "%v", err)
	}
	l.log.Info("registered chain", zap.String("chain", c.DisplayName), zap.Int64("chain_id", c.ChainID))
	return json.RawMessage("null"), nil
}

func (l *Local) sendTransaction(ctx context.Context, params []any) (json.RawMessage, error) {
	var args TxArgs
	if err := decodeParam(params, 0, &args); err != nil {
		return nil, err
	}
	signer, err := l.authorizedSigner(args.From)
	if err != nil {
		return nil, err
	}
	active := l.ActiveChain()
	b, err := l.backend(ctx)
	if err != nil {
		return nil, err
	}

	from := signer.Address().Hex()
	nonce, err := b.PendingNonce(ctx, from)
	if err != nil {
		return nil, fromRPCError(fmt.Errorf("fetching nonce: %w", err))
	}
	fees, err := b.SuggestFees(ctx)
	if err != nil {
		return nil, fromRPCError(fmt.Errorf("fetching gas price: %w", err))
	}

	value := new(big.Int)
	if args.Value != nil {
		value = args.Value.ToInt()
	}
	var gas uint64
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	} else {
		msg := chain.CallMsg{From: from, To: args.To, Value: args.Value}
		if len(args.Data) > 0 {
			msg.Data = hexutil.Encode(args.Data)
		}
		est, err := b.EstimateGas(ctx, msg)
		if err != nil {
			return nil, fromRPCError(err)
		}
		gas = est + est*l.gasBuffer/100
	}

	txData := &types.DynamicFeeTx{
		ChainID:   big.NewInt(active.ChainID),
		Nonce:     nonce,
		GasTipCap: fees.GasTipCap,
		GasFeeCap: fees.GasFeeCap,
		Gas:       gas,
		Value:     value,
		Data:      args.Data,
	}
	if args.To != "" {
		to := common.HexToAddress(args.To)
		txData.To = &to
	}

	signed, err := signer.SignTx(types.NewTx(txData), txData.ChainID)
	if err != nil {
		return nil, NewError(CodeInternal, "%v", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, NewError(CodeInternal, "encoding transaction: %v", err)
	}
	hash, err := b.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, fromRPCError(err)
	}
	l.log.Info("transaction sent",
		zap.String("hash", hash),
		zap.String("to", args.To),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
	)
	return json.Marshal(hash)
}

func (l *Local) personalSign(params []any) (json.RawMessage, error) {
	var data, addr string
	if err := decodeParam(params, 0, &data); err != nil {
		return nil, err
	}
	if err := decodeParam(params, 1, &addr); err != nil {
		return nil, err
	}
	signer, err := l.authorizedSigner(addr)
	if err != nil {
		return nil, err
	}

	msg := []byte(data)
	if b, err := hexutil.Decode(data); err == nil {
		msg = b
	}
	sig, err := signer.SignMessage(msg)
	if err != nil {
		return nil, NewError(CodeInternal, "%v", err)
	}
	return json.Marshal(hexutil.Encode(sig))
}

// authorizedSigner returns the signer when access was granted and from
// names the signing account (empty from means the active account).
func (l *Local) authorizedSigner(from string) (*wallet.Signer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.authorized || l.signer == nil {
		return nil, NewError(CodeUnauthorized, "The requested account has not been authorized by the user.")
	}
	if from != "" && !strings.EqualFold(from, l.signer.Address().Hex()) {
		return nil, NewError(CodeUnauthorized, "The requested account %s has not been authorized by the user.", from)
	}
	return l.signer, nil
}

func (l *Local) backend(ctx context.Context) (Backend, error) {
	active := l.ActiveChain()

	l.mu.Lock()
	b, ok := l.backends[active.ChainID]
	l.mu.Unlock()
	if ok {
		return b, nil
	}

	b, err := l.dial(ctx, active)
	if err != nil {
		return nil, NewError(CodeDisconnected, "no RPC available for %s: %v", active.Name, err)
	}
	l.mu.Lock()
	l.backends[active.ChainID] = b
	l.mu.Unlock()
	return b, nil
}

func decodeParam(params []any, i int, dst any) error {
	if i >= len(params) {
		return NewError(CodeInvalidParams, "missing parameter %d", i)
	}
	raw, ok := params[i].(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(params[i]); err != nil {
			return NewError(CodeInvalidParams, "parameter %d: %v", i, err)
		}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewError(CodeInvalidParams, "parameter %d: %v", i, err)
	}
	return nil
}

// fromRPCError turns node errors into provider errors, keeping the message.
func fromRPCError(err error) error {
	var re *chain.RPCError
	if errors.As(err, &re) {
		return &Error{Code: re.Code, Message: re.Message, Data: re.Data}
	}
	return err
}
