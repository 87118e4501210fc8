package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Mohsinsiddi/zeroslip/internal/chain"
	"github.com/Mohsinsiddi/zeroslip/internal/provider"
	"github.com/Mohsinsiddi/zeroslip/internal/provider/providertest"
	"github.com/Mohsinsiddi/zeroslip/internal/session"
	"github.com/Mohsinsiddi/zeroslip/internal/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	account      = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	contractAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
)

var (
	wbnb = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	usdt = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	cake = common.HexToAddress("0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82")
)

func selector(sig string) string {
	return hexutil.Encode(crypto.Keccak256([]byte(sig))[:4])
}

var (
	selAllowance = selector("allowance(address,address)")
	selDecimals  = selector("decimals()")
	selBalanceOf = selector("balanceOf(address)")
	selApprove   = selector("approve(address,uint256)")
	selTrade     = selector("executeTrade(uint256,uint256,address[],uint256)")
	selBatch     = selector("executeBatchTrade(address[],address[],uint256,uint256,uint256,uint256)")
	selWithdraw  = selector("withdrawToken(address,uint256)")
	selWithdrawB = selector("withdrawBNB(uint256)")
)

func word(n *big.Int) string {
	return hexutil.Encode(common.LeftPadBytes(n.Bytes(), 32))
}

// chainState scripts token contracts behind a fake wallet.
type chainState struct {
	mu         sync.Mutex
	allowances map[common.Address]*big.Int
	balances   map[common.Address]*big.Int
	decimals   map[common.Address]uint8
	sent       []provider.TxArgs
}

func (s *chainState) sentData() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, tx := range s.sent {
		out[i] = hexutil.Encode(tx.Data)
	}
	return out
}

// newWallet returns a fake wallet on BSC that grants account and serves
// eth_call / eth_sendTransaction from state.
func newWallet(state *chainState) *providertest.Fake {
	return providertest.New().
		Return("eth_requestAccounts", []string{account}).
		Return("eth_chainId", "0x38").
		Return("wallet_switchEthereumChain", nil).
		Return("eth_getTransactionReceipt", map[string]string{
			"status": "0x1", "blockNumber": "0x10", "gasUsed": "0x5208",
		}).
		Handle("eth_call", func(params []json.RawMessage) (any, error) {
			var call struct {
				To   common.Address `json:"to"`
				Data hexutil.Bytes  `json:"data"`
			}
			if err := json.Unmarshal(params[0], &call); err != nil {
				return nil, err
			}
			state.mu.Lock()
			defer state.mu.Unlock()
			switch hexutil.Encode(call.Data[:4]) {
			case selAllowance:
				if a, ok := state.allowances[call.To]; ok {
					return word(a), nil
				}
				return word(new(big.Int)), nil
			case selBalanceOf:
				if b, ok := state.balances[call.To]; ok {
					return word(b), nil
				}
				return word(new(big.Int)), nil
			case selDecimals:
				if d, ok := state.decimals[call.To]; ok {
					return word(big.NewInt(int64(d))), nil
				}
			}
			return nil, &provider.Error{Code: 3, Message: "execution reverted"}
		}).
		Handle("eth_sendTransaction", func(params []json.RawMessage) (any, error) {
			var tx provider.TxArgs
			if err := json.Unmarshal(params[0], &tx); err != nil {
				return nil, err
			}
			state.mu.Lock()
			defer state.mu.Unlock()
			state.sent = append(state.sent, tx)
			return common.BigToHash(big.NewInt(int64(len(state.sent)))).Hex(), nil
		})
}

func newState() *chainState {
	return &chainState{
		allowances: map[common.Address]*big.Int{},
		balances:   map[common.Address]*big.Int{},
		decimals:   map[common.Address]uint8{usdt: 18, cake: 18},
	}
}

func bscChain(t *testing.T) chain.Chain {
	t.Helper()
	c, err := chain.NewRegistry().GetByName("bsc")
	require.NoError(t, err)
	return *c
}

func newClient(t *testing.T, p provider.Provider, opts ...Option) (*Client, *session.Manager) {
	t.Helper()
	sess := session.New(p, bscChain(t))
	t.Cleanup(sess.Close)
	opts = append([]Option{WithPollInterval(time.Millisecond)}, opts...)
	c, err := New(sess, opts...)
	require.NoError(t, err)
	return c, sess
}

func TestBindContractValidation(t *testing.T) {
	c, _ := newClient(t, newWallet(newState()))

	assert.ErrorIs(t, c.BindContract(""), ErrEmptyAddress)
	assert.ErrorIs(t, c.BindContract("  "), ErrEmptyAddress)
	assert.ErrorIs(t, c.BindContract("0x1234"), ErrInvalidAddress)
	_, ok := c.Contract()
	assert.False(t, ok)

	require.NoError(t, c.BindContract(strings.ToLower(contractAddr)))
	addr, ok := c.Contract()
	assert.True(t, ok)
	assert.Equal(t, common.HexToAddress(contractAddr), addr)

	require.NoError(t, c.BindContract(wbnb.Hex()))
	addr, _ = c.Contract()
	assert.Equal(t, wbnb, addr, "binding is replaced wholesale")
}

func TestNewRejectsUnknownApprovalMode(t *testing.T) {
	_, err := New(session.New(nil, bscChain(t)), WithApprovalMode("sometimes"))
	assert.ErrorContains(t, err, "unknown approval mode")
}

func TestCheckAllowanceRequiresConnection(t *testing.T) {
	c, _ := newClient(t, newWallet(newState()), WithContract(contractAddr))
	_, err := c.CheckAllowance(context.Background(), usdt.Hex(), account)
	assert.ErrorIs(t, err, session.ErrNotConnected)
}

func TestCheckAllowanceRequiresBinding(t *testing.T) {
	c, sess := newClient(t, newWallet(newState()))
	_, err := sess.Connect(context.Background())
	require.NoError(t, err)

	_, err = c.CheckAllowance(context.Background(), usdt.Hex(), account)
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestCheckAllowanceZeroIsValid(t *testing.T) {
	state := newState()
	p := newWallet(state)
	c, sess := newClient(t, p, WithContract(contractAddr))
	_, err := sess.Connect(context.Background())
	require.NoError(t, err)

	got, err := c.CheckAllowance(context.Background(), usdt.Hex(), "")
	require.NoError(t, err)
	assert.Zero(t, got.Sign())

	state.allowances[usdt] = big.NewInt(777)
	got, err = c.CheckAllowance(context.Background(), usdt.Hex(), account)
	require.NoError(t, err)
	assert.Equal(t, int64(777), got.Int64())

	var call struct {
		Data hexutil.Bytes `json:"data"`
	}
	calls := p.Calls()
	require.NoError(t, json.Unmarshal(calls[len(calls)-1].Params[0], &call))
	assert.Equal(t, common.HexToAddress(account), common.BytesToAddress(call.Data[4:36]), "owner")
	assert.Equal(t, common.HexToAddress(contractAddr), common.BytesToAddress(call.Data[36:68]), "spender is the contract")
}

func TestTokenDecimalsFallsBackAndWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c, _ := newClient(t, newWallet(newState()), WithLogger(zap.New(core)))

	assert.Equal(t, uint8(18), c.TokenDecimals(context.Background(), wbnb.Hex()))
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "decimals")
}

func TestTokenDecimalsReadsToken(t *testing.T) {
	state := newState()
	state.decimals[usdt] = 6
	c, _ := newClient(t, newWallet(state))
	assert.Equal(t, uint8(6), c.TokenDecimals(context.Background(), usdt.Hex()))
}

func TestApproveTokenUnlimited(t *testing.T) {
	state := newState()
	state.decimals[usdt] = 6
	p := newWallet(state)
	c, sess := newClient(t, p, WithContract(contractAddr))

	a, err := c.ApproveToken(context.Background(), usdt.Hex(), "1.5")
	require.NoError(t, err)
	assert.True(t, sess.Connected(), "approve connects the session")

	assert.Equal(t, int64(1_500_000), a.Amount.Int64())
	assert.Equal(t, units.MaxUint256(), a.Value)
	assert.Equal(t, ApprovalUnlimited, a.Mode)
	assert.Equal(t, uint8(6), a.Decimals)
	assert.Equal(t, common.HexToAddress(contractAddr), a.Spender)

	require.Len(t, state.sent, 1)
	tx := state.sent[0]
	assert.Equal(t, usdt.Hex(), tx.To)
	assert.Equal(t, account, tx.From)
	assert.Equal(t, selApprove, hexutil.Encode(tx.Data[:4]))
	assert.Equal(t, common.HexToAddress(contractAddr), common.BytesToAddress(tx.Data[4:36]))
	assert.Equal(t, units.MaxUint256(), new(big.Int).SetBytes(tx.Data[36:68]))
}

func TestApproveTokenExact(t *testing.T) {
	state := newState()
	state.decimals[usdt] = 6
	c, _ := newClient(t, newWallet(state), WithContract(contractAddr), WithApprovalMode(ApprovalExact))

	a, err := c.ApproveToken(context.Background(), usdt.Hex(), "1.5")
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), a.Value.Int64())
	assert.Equal(t, int64(1_500_000), new(big.Int).SetBytes(state.sent[0].Data[36:68]).Int64())
}

func TestApproveTokenInvalidAmount(t *testing.T) {
	c, _ := newClient(t, newWallet(newState()), WithContract(contractAddr))
	_, err := c.ApproveToken(context.Background(), usdt.Hex(), "1.2.3")
	assert.ErrorIs(t, err, units.ErrInvalidAmount)
}

func TestMutatingOpsRequireBinding(t *testing.T) {
	c, _ := newClient(t, newWallet(newState()))
	ctx := context.Background()

	_, err := c.ApproveToken(ctx, usdt.Hex(), "1")
	assert.ErrorIs(t, err, ErrNotBound)
	_, err = c.ExecuteTrade(ctx, Trade{Path: []common.Address{wbnb, usdt}})
	assert.ErrorIs(t, err, ErrNotBound)
	_, err = c.ExecuteBatchTrade(ctx, BatchTrade{BuyPath: []common.Address{wbnb, usdt}, SellPath: []common.Address{usdt, wbnb}})
	assert.ErrorIs(t, err, ErrNotBound)
	_, err = c.WithdrawBNB(ctx, "1")
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestMutatingOpsWithoutProvider(t *testing.T) {
	c, err := New(session.New(nil, bscChain(t)), WithContract(contractAddr))
	require.NoError(t, err)
	_, err = c.ExecuteTrade(context.Background(), Trade{Path: []common.Address{wbnb, usdt}})
	assert.ErrorIs(t, err, session.ErrProviderUnavailable)
}

func TestExecuteTrade(t *testing.T) {
	state := newState()
	c, _ := newClient(t, newWallet(state), WithContract(contractAddr))

	deadline := DeadlineIn(20, time.Unix(1_700_000_000, 0))
	hash, err := c.ExecuteTrade(context.Background(), Trade{
		AmountIn:     big.NewInt(1000),
		AmountOutMin: big.NewInt(990),
		Path:         []common.Address{wbnb, usdt},
		Deadline:     deadline,
	})
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)

	require.Len(t, state.sent, 1)
	data := state.sent[0].Data
	assert.Equal(t, contractAddr, state.sent[0].To)
	assert.Equal(t, selTrade, hexutil.Encode(data[:4]))
	assert.Equal(t, int64(1000), new(big.Int).SetBytes(data[4:36]).Int64())
	assert.Equal(t, int64(990), new(big.Int).SetBytes(data[36:68]).Int64())
	assert.Equal(t, deadline, new(big.Int).SetBytes(data[100:132]).Int64())
}

func TestExecuteTradeInvalidPath(t *testing.T) {
	c, _ := newClient(t, newWallet(newState()), WithContract(contractAddr))
	_, err := c.ExecuteTrade(context.Background(), Trade{Path: []common.Address{wbnb}})
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = c.ExecuteTrade(context.Background(), Trade{Path: []common.Address{wbnb, {}}})
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func batch() BatchTrade {
	return BatchTrade{
		BuyPath:            []common.Address{usdt, wbnb, cake},
		SellPath:           []common.Address{cake, wbnb, usdt},
		BuyAmountIn:        big.NewInt(5_000),
		SellAmountIn:       big.NewInt(7_000),
		MaxSlippagePercent: 1,
		Deadline:           1_700_001_200,
	}
}

func TestExecuteBatchTradeFromDisconnected(t *testing.T) {
	state := newState()
	state.allowances[usdt] = big.NewInt(5_000)
	state.allowances[cake] = big.NewInt(1_000_000)
	p := newWallet(state)
	c, sess := newClient(t, p, WithContract(contractAddr))
	require.False(t, sess.Connected())

	res, err := c.ExecuteBatchTrade(context.Background(), batch())
	require.NoError(t, err)
	assert.Empty(t, res.Approvals)
	assert.NotEqual(t, common.Hash{}, res.Hash)

	assert.Equal(t, []string{
		"eth_requestAccounts",
		"eth_chainId",
		"eth_call",
		"eth_call",
		"eth_sendTransaction",
	}, p.Methods())

	sent := state.sentData()
	require.Len(t, sent, 1)
	assert.Equal(t, selBatch, sent[0][:10])
}

func TestExecuteBatchTradeApprovesShortLeg(t *testing.T) {
	state := newState()
	state.allowances[usdt] = big.NewInt(4_999)
	state.allowances[cake] = big.NewInt(7_000)
	p := newWallet(state)
	c, _ := newClient(t, p, WithContract(contractAddr), WithApprovalMode(ApprovalExact))

	res, err := c.ExecuteBatchTrade(context.Background(), batch())
	require.NoError(t, err)
	require.Len(t, res.Approvals, 1)
	assert.Equal(t, usdt, res.Approvals[0].Token)
	assert.Equal(t, int64(5_000), res.Approvals[0].Value.Int64())

	sent := state.sentData()
	require.Len(t, sent, 2)
	assert.Equal(t, selApprove, sent[0][:10])
	assert.Equal(t, selBatch, sent[1][:10])
	assert.Equal(t, usdt.Hex(), state.sent[0].To)
	assert.Equal(t, 1, p.Count("eth_getTransactionReceipt"), "approval is mined before the batch")
}

func TestExecuteBatchTradeSameHeadTokenMerged(t *testing.T) {
	state := newState()
	p := newWallet(state)
	c, _ := newClient(t, p, WithContract(contractAddr), WithApprovalMode(ApprovalExact))

	bt := batch()
	bt.SellPath = []common.Address{usdt, cake}
	res, err := c.ExecuteBatchTrade(context.Background(), bt)
	require.NoError(t, err)
	require.Len(t, res.Approvals, 1)
	assert.Equal(t, int64(12_000), res.Approvals[0].Value.Int64())
	assert.Equal(t, 1, p.Count("eth_call"))
}

func TestExecuteBatchTradeUpstreamFailure(t *testing.T) {
	state := newState()
	state.allowances[usdt] = big.NewInt(1_000_000)
	state.allowances[cake] = big.NewInt(1_000_000)
	p := newWallet(state).Fail("eth_sendTransaction", 3, "execution reverted: slippage too high")
	c, _ := newClient(t, p, WithContract(contractAddr))

	_, err := c.ExecuteBatchTrade(context.Background(), batch())
	assert.ErrorIs(t, err, session.ErrUpstreamCallFailed)
	assert.Contains(t, err.Error(), "execution reverted: slippage too high")
	assert.Equal(t, 1, p.Count("eth_sendTransaction"), "no retries")
}

func TestExecuteBatchTradeValidation(t *testing.T) {
	c, _ := newClient(t, newWallet(newState()), WithContract(contractAddr))

	bt := batch()
	bt.MaxSlippagePercent = 101
	_, err := c.ExecuteBatchTrade(context.Background(), bt)
	assert.ErrorIs(t, err, ErrInvalidSlippage)

	bt = batch()
	bt.SellPath = nil
	_, err = c.ExecuteBatchTrade(context.Background(), bt)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestConcurrentIdenticalTradesShareSubmission(t *testing.T) {
	state := newState()
	release := make(chan struct{})
	p := newWallet(state)
	p.Handle("eth_sendTransaction", func([]json.RawMessage) (any, error) {
		<-release
		state.mu.Lock()
		defer state.mu.Unlock()
		state.sent = append(state.sent, provider.TxArgs{})
		return common.BigToHash(big.NewInt(42)).Hex(), nil
	})
	c, sess := newClient(t, p, WithContract(contractAddr))
	_, err := sess.Connect(context.Background())
	require.NoError(t, err)

	tr := Trade{AmountIn: big.NewInt(1), AmountOutMin: big.NewInt(1), Path: []common.Address{wbnb, usdt}, Deadline: 1}
	var wg sync.WaitGroup
	hashes := make([]common.Hash, 3)
	for i := range hashes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := c.ExecuteTrade(context.Background(), tr)
			assert.NoError(t, err)
			hashes[i] = h
		}()
	}
	require.Eventually(t, func() bool { return p.Count("eth_sendTransaction") == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, p.Count("eth_sendTransaction"))
	for _, h := range hashes {
		assert.Equal(t, common.BigToHash(big.NewInt(42)), h)
	}
}

func TestWithdraw(t *testing.T) {
	state := newState()
	state.decimals[usdt] = 6
	c, _ := newClient(t, newWallet(state), WithContract(contractAddr))
	ctx := context.Background()

	_, err := c.WithdrawToken(ctx, usdt.Hex(), "2.25")
	require.NoError(t, err)
	_, err = c.WithdrawBNB(ctx, "0.5")
	require.NoError(t, err)

	require.Len(t, state.sent, 2)
	w := state.sent[0].Data
	assert.Equal(t, selWithdraw, hexutil.Encode(w[:4]))
	assert.Equal(t, usdt, common.BytesToAddress(w[4:36]))
	assert.Equal(t, int64(2_250_000), new(big.Int).SetBytes(w[36:68]).Int64())

	b := state.sent[1].Data
	assert.Equal(t, selWithdrawB, hexutil.Encode(b[:4]))
	half, _ := new(big.Int).SetString("500000000000000000", 10)
	assert.Equal(t, half, new(big.Int).SetBytes(b[4:36]))
}

func TestTokenBalance(t *testing.T) {
	state := newState()
	state.balances[cake] = big.NewInt(31337)
	c, sess := newClient(t, newWallet(state))

	_, err := c.TokenBalance(context.Background(), cake.Hex(), "")
	assert.ErrorIs(t, err, session.ErrNotConnected)

	bal, err := c.TokenBalance(context.Background(), cake.Hex(), account)
	require.NoError(t, err)
	assert.Equal(t, int64(31337), bal.Int64())

	_, err = sess.Connect(context.Background())
	require.NoError(t, err)
	bal, err = c.TokenBalance(context.Background(), cake.Hex(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(31337), bal.Int64())
}

func TestWaitMined(t *testing.T) {
	pending := func([]json.RawMessage) (any, error) { return nil, nil }
	mined := func([]json.RawMessage) (any, error) {
		return map[string]string{"status": "0x1", "blockNumber": "0x2a", "gasUsed": "0x5208"}, nil
	}
	p := newWallet(newState()).Sequence("eth_getTransactionReceipt", pending, pending, mined)
	c, _ := newClient(t, p)

	r, err := c.WaitMined(context.Background(), common.HexToHash("0x01"), time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), r.BlockNumber)
	assert.Equal(t, 3, p.Count("eth_getTransactionReceipt"))
}

func TestWaitMinedReverted(t *testing.T) {
	p := newWallet(newState()).Return("eth_getTransactionReceipt", map[string]string{
		"status": "0x0", "blockNumber": "0x2a", "gasUsed": "0x5208",
	})
	c, _ := newClient(t, p)

	r, err := c.WaitMined(context.Background(), common.HexToHash("0x01"), time.Second)
	assert.ErrorIs(t, err, session.ErrUpstreamCallFailed)
	require.NotNil(t, r)
	assert.Equal(t, uint64(0), r.Status)
}

func TestWaitMinedTimeout(t *testing.T) {
	p := newWallet(newState()).Return("eth_getTransactionReceipt", nil)
	c, _ := newClient(t, p)

	_, err := c.WaitMined(context.Background(), common.HexToHash("0x01"), 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRouteVia(t *testing.T) {
	assert.Equal(t, []common.Address{usdt, wbnb, cake}, RouteVia(usdt, cake, wbnb))
	assert.Equal(t, []common.Address{wbnb, cake}, RouteVia(wbnb, cake, wbnb))
	assert.Equal(t, []common.Address{usdt, cake}, RouteVia(usdt, cake, common.Address{}))
}

func TestDeadlineIn(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	assert.Equal(t, int64(1_700_001_200), DeadlineIn(20, now))
}

func TestMinOut(t *testing.T) {
	got, err := MinOut(big.NewInt(10_000), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9_900), got.Int64())

	_, err = MinOut(big.NewInt(1), 101)
	assert.ErrorIs(t, err, ErrInvalidSlippage)
}

func TestIsUserRejection(t *testing.T) {
	assert.True(t, IsUserRejection(session.Upstream("approve", provider.NewError(provider.CodeUserRejected, "denied"))))
	assert.True(t, IsUserRejection(fmt.Errorf("wrapped: %w", session.ErrConnectionRejected)))
	assert.False(t, IsUserRejection(assert.AnError))
}
