// Package session keeps a wallet session against an EIP-1193 provider: it
// connects, tracks the active account and chain, and keeps the wallet on the
// target chain.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Mohsinsiddi/zeroslip/internal/chain"
	"github.com/Mohsinsiddi/zeroslip/internal/provider"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Manager is a wallet session.
type Manager struct {
	p      provider.Provider
	target chain.Chain
	log    *zap.Logger
	notify func(provider.Event)

	mu         sync.RWMutex
	state      State
	account    string
	accountGen uint64 // bumped by every accountsChanged
	chainID    int64
	chainStale bool
	chainGen   uint64 // bumped by every chainChanged
	listener   *listener

	// initMu serializes listener replacement.
	initMu sync.Mutex
	// dispatching is the listener whose notify callback is running.
	dispatching atomic.Pointer[listener]

	flight singleflight.Group
}

// listener is one event subscription and its consume goroutine.
type listener struct {
	unsub func()
	stop  chan struct{}
	done  chan struct{}
}

func (l *listener) stopped() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithNotify registers a callback run after each provider event is applied.
// The callback runs on the event goroutine and may call Close or Initialize.
func WithNotify(fn func(provider.Event)) Option {
	return func(m *Manager) { m.notify = fn }
}

// New creates a session for provider p that must run on target. p may be
// nil, in which case every operation fails with ErrProviderUnavailable.
func New(p provider.Provider, target chain.Chain, opts ...Option) *Manager {
	m := &Manager{
		p:      p,
		target: target,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Provider returns the underlying provider.
func (m *Manager) Provider() provider.Provider { return m.p }

// Target returns the chain the session must run on.
func (m *Manager) Target() chain.Chain { return m.target }

// Initialize subscribes to provider events. Calling it again replaces the
// previous subscription, so exactly one listener is active.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.p == nil {
		return ErrProviderUnavailable
	}
	m.initMu.Lock()
	defer m.initMu.Unlock()
	m.subscribe()
	return nil
}

// ensureListening subscribes unless a listener is already active.
func (m *Manager) ensureListening() {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	m.mu.RLock()
	active := m.listener != nil
	m.mu.RUnlock()
	if !active {
		m.subscribe()
	}
}

// subscribe replaces the listener. Callers hold initMu.
func (m *Manager) subscribe() {
	m.stopListener()

	events, unsub := m.p.Subscribe()
	l := &listener{unsub: unsub, stop: make(chan struct{}), done: make(chan struct{})}
	go m.consume(l, events)

	m.mu.Lock()
	m.listener = l
	if m.state == Uninitialized {
		m.state = Initialized
	}
	m.mu.Unlock()

	m.log.Debug("session initialized", zap.String("target", m.target.Name))
}

// Connect requests account access, records the first account and makes sure
// the wallet is on the target chain. Concurrent calls share one attempt.
func (m *Manager) Connect(ctx context.Context) (string, error) {
	v, err, shared := m.flight.Do("connect", func() (interface{}, error) {
		return m.connect(ctx)
	})
	if shared {
		m.log.Debug("joined in-flight connect")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) connect(ctx context.Context) (acct string, err error) {
	if m.p == nil {
		return "", ErrProviderUnavailable
	}
	m.ensureListening()

	m.mu.Lock()
	prev := m.state
	m.state = Connecting
	accountGen := m.accountGen
	m.mu.Unlock()

	defer func() {
		if err == nil {
			return
		}
		m.mu.Lock()
		m.account = ""
		if prev == Connected {
			m.state = Disconnected
		} else {
			m.state = prev
		}
		m.mu.Unlock()
		m.log.Warn("connect failed", zap.Error(err))
	}()

	accounts, err := provider.DecodeResult[[]string](m.p.Request(ctx, "eth_requestAccounts"))
	if provider.IsCode(err, provider.CodeUserRejected, provider.CodeUnauthorized) {
		return "", fmt.Errorf("%w: %w", ErrConnectionRejected, err)
	}
	if err != nil {
		return "", Upstream("eth_requestAccounts", err)
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("%w: no accounts returned", ErrConnectionRejected)
	}

	m.mu.Lock()
	if m.accountGen == accountGen {
		m.account = accounts[0]
	}
	chainGen := m.chainGen
	m.mu.Unlock()

	id, err := m.readChainID(ctx)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	if m.chainGen == chainGen {
		m.chainID = id
	}
	m.mu.Unlock()
	if id != m.target.ChainID {
		m.log.Info("wallet on wrong chain",
			zap.Int64("chain_id", id),
			zap.Int64("target", m.target.ChainID),
		)
		if err := m.ensureChain(ctx); err != nil {
			return "", err
		}
	}

	m.mu.Lock()
	acct = m.account
	if acct == "" {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: wallet dropped its accounts while connecting", ErrConnectionRejected)
	}
	m.state = Connected
	if m.chainGen == chainGen {
		m.chainID = m.target.ChainID
		m.chainStale = false
	}
	m.mu.Unlock()

	m.log.Info("wallet connected", zap.String("account", acct), zap.String("chain", m.target.Name))
	return acct, nil
}

// EnsureChain switches the wallet to the target chain, registering the chain
// first if the wallet does not know it.
func (m *Manager) EnsureChain(ctx context.Context) error {
	_, err, _ := m.flight.Do("ensure-chain", func() (interface{}, error) {
		return nil, m.ensureChain(ctx)
	})
	return err
}

func (m *Manager) ensureChain(ctx context.Context) error {
	if m.p == nil {
		return ErrProviderUnavailable
	}
	m.mu.RLock()
	chainGen := m.chainGen
	m.mu.RUnlock()
	sw := switchChainParams{ChainID: m.target.HexID()}

	_, err := m.p.Request(ctx, "wallet_switchEthereumChain", sw)
	if provider.IsCode(err, provider.CodeUnrecognizedChain) {
		m.log.Info("registering chain with wallet", zap.String("chain", m.target.DisplayName))
		if _, err := m.p.Request(ctx, "wallet_addEthereumChain", m.target.AddParams()); err != nil {
			return fmt.Errorf("%w: adding %s: %w", ErrChainSwitchFailed, m.target.DisplayName, err)
		}
		_, err = m.p.Request(ctx, "wallet_switchEthereumChain", sw)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrChainSwitchFailed, err)
	}

	id, err := m.readChainID(ctx)
	if err != nil {
		return err
	}
	if id != m.target.ChainID {
		return fmt.Errorf("%w: wallet reports chain %d, want %d", ErrChainSwitchFailed, id, m.target.ChainID)
	}

	m.mu.Lock()
	if m.chainGen == chainGen {
		m.chainID = id
		m.chainStale = false
	}
	m.mu.Unlock()
	return nil
}

// Ready returns the active account of a connected session on the target
// chain, connecting or switching chains first when needed.
func (m *Manager) Ready(ctx context.Context) (string, error) {
	m.mu.RLock()
	state, acct := m.state, m.account
	needChain := m.chainStale || m.chainID != m.target.ChainID
	m.mu.RUnlock()

	if state != Connected || acct == "" {
		return m.Connect(ctx)
	}
	if needChain {
		if err := m.EnsureChain(ctx); err != nil {
			return "", err
		}
	}
	if acct = m.Account(); acct == "" {
		return "", ErrNotConnected
	}
	return acct, nil
}

// HandleAccountsChanged applies an accountsChanged notification. An empty
// list disconnects the session; otherwise the active account is replaced,
// including while a connect is in progress.
func (m *Manager) HandleAccountsChanged(accounts []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountGen++
	if len(accounts) == 0 {
		if m.state == Connected {
			m.log.Info("wallet disconnected", zap.String("account", m.account))
			m.state = Disconnected
		}
		m.account = ""
		return
	}
	if m.state == Connected && !strings.EqualFold(m.account, accounts[0]) {
		m.log.Info("account changed", zap.String("from", m.account), zap.String("to", accounts[0]))
	}
	m.account = accounts[0]
}

// HandleChainChanged applies a chainChanged notification. The session stays
// connected; it is marked stale unless the new chain is the target.
func (m *Manager) HandleChainChanged(hexID string) {
	id, err := chain.ParseChainID(hexID)
	if err != nil {
		m.log.Warn("ignoring malformed chainChanged", zap.String("chain_id", hexID), zap.Error(err))
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chainGen++
	m.chainID = id
	m.chainStale = id != m.target.ChainID
	if m.chainStale {
		m.log.Warn("wallet switched away from target chain", zap.Int64("chain_id", id))
	}
}

// Close drops the event subscription. No event is applied after it returns;
// a notify callback already running may still be finishing.
func (m *Manager) Close() {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	m.stopListener()
}

// State returns the connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Account returns the active account, or "" when not connected.
func (m *Manager) Account() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.account
}

// ChainID returns the last chain id observed from the wallet.
func (m *Manager) ChainID() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chainID
}

// ChainStale reports whether the wallet changed chains since the last check.
func (m *Manager) ChainStale() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chainStale
}

// Connected reports whether the session is connected with an account.
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == Connected && m.account != ""
}

// --- internal ---

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

func (m *Manager) readChainID(ctx context.Context) (int64, error) {
	hexID, err := provider.DecodeResult[string](m.p.Request(ctx, "eth_chainId"))
	if err != nil {
		return 0, Upstream("eth_chainId", err)
	}
	id, err := chain.ParseChainID(hexID)
	if err != nil {
		return 0, Upstream("eth_chainId", err)
	}
	return id, nil
}

func (m *Manager) consume(l *listener, events <-chan provider.Event) {
	defer close(l.done)
	for ev := range events {
		if l.stopped() {
			return
		}
		switch ev.Kind {
		case provider.AccountsChanged:
			m.HandleAccountsChanged(ev.Accounts)
		case provider.ChainChanged:
			m.HandleChainChanged(ev.ChainID)
		}
		if m.notify == nil {
			continue
		}
		m.dispatching.Store(l)
		if l.stopped() {
			m.dispatching.CompareAndSwap(l, nil)
			return
		}
		m.notify(ev)
		m.dispatching.CompareAndSwap(l, nil)
	}
}

// stopListener unsubscribes and waits for the consume goroutine, unless the
// caller is that goroutine's notify callback.
func (m *Manager) stopListener() {
	m.mu.Lock()
	l := m.listener
	m.listener = nil
	m.mu.Unlock()
	if l == nil {
		return
	}
	close(l.stop)
	l.unsub()
	if m.dispatching.Load() != l {
		<-l.done
	}
}
