// Package trader submits approvals and trades to the zero-slippage batch
// trading contract over a wallet session.
package trader

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Mohsinsiddi/zeroslip/internal/chain"
	"github.com/Mohsinsiddi/zeroslip/internal/contract"
	"github.com/Mohsinsiddi/zeroslip/internal/provider"
	"github.com/Mohsinsiddi/zeroslip/internal/session"
	"github.com/Mohsinsiddi/zeroslip/internal/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Session is the wallet session the client runs on. *session.Manager
// implements it.
type Session interface {
	Provider() provider.Provider
	Ready(ctx context.Context) (string, error)
	Connected() bool
	Account() string
}

// Client talks to the trading contract and to ERC-20 tokens.
type Client struct {
	sess Session
	log  *zap.Logger
	mode ApprovalMode

	waitApprovals bool
	pollInterval  time.Duration

	token  *contract.Binding // ERC-20 template, rebound per token
	trader *contract.Binding // trading contract template

	mu    sync.RWMutex
	bound *contract.Binding

	flight singleflight.Group
}

// Option configures a Client.
type Option func(*Client) error

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) error {
		c.log = log
		return nil
	}
}

// WithApprovalMode selects unlimited or exact approvals.
func WithApprovalMode(mode ApprovalMode) Option {
	return func(c *Client) error {
		switch mode {
		case ApprovalUnlimited, ApprovalExact:
			c.mode = mode
			return nil
		}
		return fmt.Errorf("unknown approval mode %q", mode)
	}
}

// WithContract binds the trading contract at address.
func WithContract(address string) Option {
	return func(c *Client) error {
		return c.BindContract(address)
	}
}

// WithApprovalWait controls whether ExecuteBatchTrade waits for its
// approvals to be mined before submitting the batch.
func WithApprovalWait(wait bool) Option {
	return func(c *Client) error {
		c.waitApprovals = wait
		return nil
	}
}

// WithPollInterval sets how often receipts are polled.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) error {
		c.pollInterval = d
		return nil
	}
}

// New creates a trade client on sess.
func New(sess Session, opts ...Option) (*Client, error) {
	token, err := contract.Builtin(contract.ERC20, common.Address{})
	if err != nil {
		return nil, err
	}
	tr, err := contract.Builtin(contract.ZeroSlip, common.Address{})
	if err != nil {
		return nil, err
	}
	c := &Client{
		sess:          sess,
		log:           zap.NewNop(),
		mode:          ApprovalUnlimited,
		waitApprovals: true,
		pollInterval:  2 * time.Second,
		token:         token,
		trader:        tr,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// BindContract points the client at the trading contract deployed at
// address, replacing any previous binding.
func (c *Client) BindContract(address string) error {
	addr, err := parseAddress(address)
	if err != nil {
		return fmt.Errorf("binding contract: %w", err)
	}
	b := c.trader.At(addr)
	c.mu.Lock()
	c.bound = b
	c.mu.Unlock()
	c.log.Info("contract bound", zap.String("address", addr.Hex()))
	return nil
}

// Contract returns the bound contract address.
func (c *Client) Contract() (common.Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.bound == nil {
		return common.Address{}, false
	}
	return c.bound.Address, true
}

// CheckAllowance returns how much of token owner has approved to the bound
// contract. An empty owner means the session account.
func (c *Client) CheckAllowance(ctx context.Context, token, owner string) (*big.Int, error) {
	if !c.sess.Connected() {
		return nil, session.ErrNotConnected
	}
	b, err := c.binding()
	if err != nil {
		return nil, err
	}
	tokenAddr, err := parseAddress(token)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	if owner == "" {
		owner = c.sess.Account()
	}
	ownerAddr, err := parseAddress(owner)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	return c.allowance(ctx, tokenAddr, ownerAddr, b.Address)
}

// TokenDecimals reads decimals() from token, falling back to 18 when the
// call fails.
func (c *Client) TokenDecimals(ctx context.Context, token string) uint8 {
	addr, err := parseAddress(token)
	if err != nil {
		c.log.Warn("cannot read token decimals, using default", zap.String("token", token), zap.Error(err))
		return units.DefaultDecimals
	}
	return c.decimals(ctx, addr)
}

// TokenBalance returns owner's balance of token. An empty owner means the
// session account.
func (c *Client) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	tokenAddr, err := parseAddress(token)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	if owner == "" {
		owner = c.sess.Account()
	}
	if owner == "" {
		return nil, session.ErrNotConnected
	}
	ownerAddr, err := parseAddress(owner)
	if err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	out, err := c.read(ctx, c.token.At(tokenAddr), "balanceOf", ownerAddr)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// ApproveToken approves the bound contract to spend amount (a decimal
// string in token units) of token.
func (c *Client) ApproveToken(ctx context.Context, token, amount string) (*Approval, error) {
	b, err := c.binding()
	if err != nil {
		return nil, err
	}
	tokenAddr, err := parseAddress(token)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	acct, err := c.sess.Ready(ctx)
	if err != nil {
		return nil, err
	}

	dec := c.decimals(ctx, tokenAddr)
	raw, err := units.ParseUnits(amount, dec)
	if err != nil {
		return nil, err
	}
	key := "approve:" + tokenAddr.Hex() + ":" + b.Address.Hex() + ":" + raw.String()
	v, err, shared := c.flight.Do(key, func() (interface{}, error) {
		a, err := c.approve(ctx, common.HexToAddress(acct), tokenAddr, b.Address, raw)
		if err != nil {
			return nil, err
		}
		a.Decimals = dec
		return a, nil
	})
	if shared {
		c.log.Debug("joined in-flight approval", zap.String("token", tokenAddr.Hex()))
	}
	if err != nil {
		return nil, err
	}
	return v.(*Approval), nil
}

// ExecuteTrade submits a single swap.
func (c *Client) ExecuteTrade(ctx context.Context, t Trade) (common.Hash, error) {
	b, err := c.binding()
	if err != nil {
		return common.Hash{}, err
	}
	if err := validatePath(t.Path); err != nil {
		return common.Hash{}, err
	}
	return c.submit(ctx, b, "executeTrade",
		orZero(t.AmountIn),
		orZero(t.AmountOutMin),
		t.Path,
		big.NewInt(t.Deadline),
	)
}

// ExecuteBatchTrade makes sure the contract may spend the head token of
// both paths, approving where the allowance is short, then submits one
// executeBatchTrade transaction. A disconnected session is connected first.
func (c *Client) ExecuteBatchTrade(ctx context.Context, bt BatchTrade) (*BatchResult, error) {
	b, err := c.binding()
	if err != nil {
		return nil, err
	}
	if err := validatePath(bt.BuyPath); err != nil {
		return nil, fmt.Errorf("buy path: %w", err)
	}
	if err := validatePath(bt.SellPath); err != nil {
		return nil, fmt.Errorf("sell path: %w", err)
	}
	if bt.MaxSlippagePercent > 100 {
		return nil, ErrInvalidSlippage
	}
	buyIn, sellIn := orZero(bt.BuyAmountIn), orZero(bt.SellAmountIn)
	args := []interface{}{bt.BuyPath, bt.SellPath, buyIn, sellIn, new(big.Int).SetUint64(bt.MaxSlippagePercent), big.NewInt(bt.Deadline)}

	key, err := flightKey(b, "executeBatchTrade", args...)
	if err != nil {
		return nil, err
	}
	v, err, shared := c.flight.Do(key, func() (interface{}, error) {
		acct, err := c.sess.Ready(ctx)
		if err != nil {
			return nil, err
		}
		owner := common.HexToAddress(acct)

		res := &BatchResult{}
		for _, need := range spendNeeds(bt.BuyPath[0], buyIn, bt.SellPath[0], sellIn) {
			have, err := c.allowance(ctx, need.token, owner, b.Address)
			if err != nil {
				return nil, err
			}
			if have.Cmp(need.amount) >= 0 {
				continue
			}
			c.log.Info("allowance short, approving",
				zap.String("token", need.token.Hex()),
				zap.String("have", have.String()),
				zap.String("need", need.amount.String()),
			)
			a, err := c.approve(ctx, owner, need.token, b.Address, need.amount)
			if err != nil {
				return nil, err
			}
			if c.waitApprovals {
				if _, err := c.WaitMined(ctx, a.Hash, 0); err != nil {
					return nil, err
				}
			}
			res.Approvals = append(res.Approvals, a)
		}

		hash, err := c.send(ctx, owner, b, "executeBatchTrade", args...)
		if err != nil {
			return nil, err
		}
		res.Hash = hash
		return res, nil
	})
	if shared {
		c.log.Debug("joined in-flight batch trade")
	}
	if err != nil {
		return nil, err
	}
	return v.(*BatchResult), nil
}

// WithdrawToken withdraws amount (decimal string in token units) of token
// from the contract to the owner.
func (c *Client) WithdrawToken(ctx context.Context, token, amount string) (common.Hash, error) {
	b, err := c.binding()
	if err != nil {
		return common.Hash{}, err
	}
	tokenAddr, err := parseAddress(token)
	if err != nil {
		return common.Hash{}, fmt.Errorf("token: %w", err)
	}
	raw, err := units.ParseUnits(amount, c.decimals(ctx, tokenAddr))
	if err != nil {
		return common.Hash{}, err
	}
	return c.submit(ctx, b, "withdrawToken", tokenAddr, raw)
}

// WithdrawBNB withdraws amount (decimal string in BNB) from the contract.
func (c *Client) WithdrawBNB(ctx context.Context, amount string) (common.Hash, error) {
	b, err := c.binding()
	if err != nil {
		return common.Hash{}, err
	}
	raw, err := units.ParseUnits(amount, units.DefaultDecimals)
	if err != nil {
		return common.Hash{}, err
	}
	return c.submit(ctx, b, "withdrawBNB", raw)
}

// WaitMined polls for the receipt of hash. A zero timeout waits until ctx
// is done. A reverted transaction is reported as an upstream error.
func (c *Client) WaitMined(ctx context.Context, hash common.Hash, timeout time.Duration) (*chain.TxReceipt, error) {
	p := c.sess.Provider()
	if p == nil {
		return nil, session.ErrProviderUnavailable
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		raw, err := p.Request(ctx, "eth_getTransactionReceipt", hash.Hex())
		if err != nil {
			return nil, session.Upstream("eth_getTransactionReceipt", err)
		}
		receipt, err := chain.ParseReceipt(hash.Hex(), raw)
		if err != nil {
			return nil, session.Upstream("eth_getTransactionReceipt", err)
		}
		if receipt != nil {
			if receipt.Status == 0 {
				return receipt, session.Upstream("transaction", fmt.Errorf("reverted in block %d (hash: %s)", receipt.BlockNumber, hash.Hex()))
			}
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transaction %s not mined: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// --- internal ---

func (c *Client) binding() (*contract.Binding, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.bound == nil {
		return nil, ErrNotBound
	}
	return c.bound, nil
}

func (c *Client) decimals(ctx context.Context, token common.Address) uint8 {
	out, err := c.read(ctx, c.token.At(token), "decimals")
	if err != nil {
		c.log.Warn("cannot read token decimals, using default",
			zap.String("token", token.Hex()),
			zap.Uint8("default", units.DefaultDecimals),
			zap.Error(err),
		)
		return units.DefaultDecimals
	}
	return out[0].(uint8)
}

func (c *Client) allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := c.read(ctx, c.token.At(token), "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// approve submits approve(spender, value) on token, where value depends on
// the approval mode.
func (c *Client) approve(ctx context.Context, owner, token, spender common.Address, amount *big.Int) (*Approval, error) {
	value := amount
	if c.mode == ApprovalUnlimited {
		value = units.MaxUint256()
	}
	hash, err := c.send(ctx, owner, c.token.At(token), "approve", spender, value)
	if err != nil {
		return nil, err
	}
	c.log.Info("approval submitted",
		zap.String("token", token.Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("amount", amount.String()),
		zap.String("mode", string(c.mode)),
		zap.String("hash", hash.Hex()),
	)
	return &Approval{
		Token:   token,
		Spender: spender,
		Amount:  amount,
		Value:   value,
		Mode:    c.mode,
		Hash:    hash,
	}, nil
}

// submit runs a contract write on a ready session. Identical calls in
// flight share one submission.
func (c *Client) submit(ctx context.Context, b *contract.Binding, method string, args ...interface{}) (common.Hash, error) {
	key, err := flightKey(b, method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	v, err, shared := c.flight.Do(key, func() (interface{}, error) {
		acct, err := c.sess.Ready(ctx)
		if err != nil {
			return nil, err
		}
		return c.send(ctx, common.HexToAddress(acct), b, method, args...)
	})
	if shared {
		c.log.Debug("joined in-flight submission", zap.String("method", method))
	}
	if err != nil {
		return common.Hash{}, err
	}
	return v.(common.Hash), nil
}

func (c *Client) send(ctx context.Context, from common.Address, b *contract.Binding, method string, args ...interface{}) (common.Hash, error) {
	p := c.sess.Provider()
	if p == nil {
		return common.Hash{}, session.ErrProviderUnavailable
	}
	hash, err := contract.NewSender(p).Send(ctx, b, from, method, args...)
	if err != nil {
		return common.Hash{}, session.Upstream(method, err)
	}
	c.log.Info("transaction submitted", zap.String("method", method), zap.String("hash", hash.Hex()))
	return hash, nil
}

func (c *Client) read(ctx context.Context, b *contract.Binding, method string, args ...interface{}) ([]interface{}, error) {
	p := c.sess.Provider()
	if p == nil {
		return nil, session.ErrProviderUnavailable
	}
	var from common.Address
	if acct := c.sess.Account(); acct != "" {
		from = common.HexToAddress(acct)
	}
	out, err := contract.NewCaller(p).Call(ctx, b, from, method, args...)
	if err != nil {
		return nil, session.Upstream(method, err)
	}
	return out, nil
}

type spendNeed struct {
	token  common.Address
	amount *big.Int
}

// spendNeeds lists the allowance each path head needs. Two legs starting
// at the same token are merged into one need.
func spendNeeds(buyToken common.Address, buyIn *big.Int, sellToken common.Address, sellIn *big.Int) []spendNeed {
	if buyToken == sellToken {
		return []spendNeed{{token: buyToken, amount: new(big.Int).Add(buyIn, sellIn)}}
	}
	return []spendNeed{
		{token: buyToken, amount: buyIn},
		{token: sellToken, amount: sellIn},
	}
}

func flightKey(b *contract.Binding, method string, args ...interface{}) (string, error) {
	data, err := b.Pack(method, args...)
	if err != nil {
		return "", err
	}
	return b.Address.Hex() + ":" + hexutil.Encode(data), nil
}

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, ErrEmptyAddress
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

var _ Session = (*session.Manager)(nil)

// IsUserRejection reports whether err is the wallet declining a request.
func IsUserRejection(err error) bool {
	return provider.IsCode(err, provider.CodeUserRejected) || errors.Is(err, session.ErrConnectionRejected)
}
