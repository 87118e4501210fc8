package provider

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Mohsinsiddi/zeroslip/internal/chain"
	"github.com/Mohsinsiddi/zeroslip/internal/rpc"
	"github.com/Mohsinsiddi/zeroslip/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hardhat/Anvil account #0.
const (
	testPrivKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddr       = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

type fakeBackend struct {
	mu          sync.Mutex
	estimate    uint64
	estimateErr error
	sent        []*types.Transaction
	callResult  json.RawMessage
	callErr     error
}

func (f *fakeBackend) Call(_ context.Context, _ string, _ ...interface{}) (json.RawMessage, error) {
	return f.callResult, f.callErr
}

func (f *fakeBackend) PendingNonce(context.Context, string) (uint64, error) { return 7, nil }

func (f *fakeBackend) EstimateGas(context.Context, chain.CallMsg) (uint64, error) {
	return f.estimate, f.estimateErr
}

func (f *fakeBackend) SuggestFees(context.Context) (*chain.Fees, error) {
	return &chain.Fees{GasTipCap: big.NewInt(1_000_000_000), GasFeeCap: big.NewInt(5_000_000_000)}, nil
}

func (f *fakeBackend) SendRawTransaction(_ context.Context, raw []byte) (string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.sent = append(f.sent, tx)
	f.mu.Unlock()
	return tx.Hash().Hex(), nil
}

func testSigner(t *testing.T) *wallet.Signer {
	t.Helper()
	m := wallet.NewManager()
	require.NoError(t, m.AddWithKey("trader", testPrivKeyHex))
	s, err := m.Signer("trader")
	require.NoError(t, err)
	return s
}

func newTestLocal(t *testing.T, b Backend, opts ...LocalOption) *Local {
	t.Helper()
	reg := chain.NewRegistry()
	bsc, err := reg.GetByName("bsc")
	require.NoError(t, err)
	opts = append([]LocalOption{WithDialer(func(context.Context, chain.Chain) (Backend, error) { return b, nil })}, opts...)
	return NewLocal(testSigner(t), reg, *bsc, opts...)
}

func connect(t *testing.T, l *Local) {
	t.Helper()
	_, err := l.Request(context.Background(), "eth_requestAccounts")
	require.NoError(t, err)
}

func TestRequestAccountsGrantsAccess(t *testing.T) {
	l := newTestLocal(t, &fakeBackend{})
	ctx := context.Background()

	accts, err := DecodeResult[[]string](l.Request(ctx, "eth_accounts"))
	require.NoError(t, err)
	assert.Empty(t, accts, "no accounts before authorization")

	accts, err = DecodeResult[[]string](l.Request(ctx, "eth_requestAccounts"))
	require.NoError(t, err)
	assert.Equal(t, []string{testAddr}, accts)

	accts, err = DecodeResult[[]string](l.Request(ctx, "eth_accounts"))
	require.NoError(t, err)
	assert.Equal(t, []string{testAddr}, accts)
}

func TestRequestAccountsRejected(t *testing.T) {
	l := newTestLocal(t, &fakeBackend{}, WithConsent(func(context.Context, common.Address) error {
		return errors.New("no")
	}))
	_, err := l.Request(context.Background(), "eth_requestAccounts")
	assert.True(t, IsCode(err, CodeUserRejected))
}

func TestChainIDIsHex(t *testing.T) {
	l := newTestLocal(t, &fakeBackend{})
	id, err := DecodeResult[string](l.Request(context.Background(), "eth_chainId"))
	require.NoError(t, err)
	assert.Equal(t, "0x38", id)
}

func TestSwitchChainEmitsEvent(t *testing.T) {
	l := newTestLocal(t, &fakeBackend{})
	events, unsub := l.Subscribe()
	defer unsub()

	_, err := l.Request(context.Background(), "wallet_switchEthereumChain", map[string]string{"chainId": "0x61"})
	require.NoError(t, err)
	assert.Equal(t, int64(97), l.ActiveChain().ChainID)

	select {
	case ev := <-events:
		assert.Equal(t, ChainChanged, ev.Kind)
		assert.Equal(t, "0x61", ev.ChainID)
	case <-time.After(time.Second):
		t.Fatal("no chainChanged event")
	}
}

func TestSwitchChainSameChainNoEvent(t *testing.T) {
	l := newTestLocal(t, &fakeBackend{})
	events, unsub := l.Subscribe()
	defer unsub()

	_, err := l.Request(context.Background(), "wallet_switchEthereumChain", map[string]string{"chainId": "0x38"})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSwitchUnknownChainThenAdd(t *testing.T) {
	l := newTestLocal(t, &fakeBackend{})
	ctx := context.Background()

	_, err := l.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": "0x2105"})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeUnrecognizedChain))

	_, err = l.Request(ctx, "wallet_addEthereumChain", chain.AddChainParams{
		ChainID:        "0x2105",
		ChainName:      "Base",
		NativeCurrency: chain.Currency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCURLs:        []string{"https://mainnet.base.org"},
	})
	require.NoError(t, err)

	_, err = l.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": "0x2105"})
	require.NoError(t, err)
	assert.Equal(t, "Base", l.ActiveChain().DisplayName)
}

func TestAddChainRequiresRPC(t *testing.T) {
	l := newTestLocal(t, &fakeBackend{})
	_, err := l.Request(context.Background(), "wallet_addEthereumChain", chain.AddChainParams{ChainID: "0x2105", ChainName: "Base"})
	assert.True(t, IsCode(err, CodeInvalidParams))
}

func TestSendTransactionUnauthorized(t *testing.T) {
	l := newTestLocal(t, &fakeBackend{})
	_, err := l.Request(context.Background(), "eth_sendTransaction", TxArgs{From: testAddr, To: testAddr})
	assert.True(t, IsCode(err, CodeUnauthorized))
}

func TestSendTransactionWrongFrom(t *testing.T) {
	l := newTestLocal(t, &fakeBackend{})
	connect(t, l)
	_, err := l.Request(context.Background(), "eth_sendTransaction", TxArgs{
		From: "0x0000000000000000000000000000000000000001",
		To:   testAddr,
	})
	assert.True(t, IsCode(err, CodeUnauthorized))
}

func TestSendTransactionSignsDynamicFeeTx(t *testing.T) {
	b := &fakeBackend{estimate: 100_000}
	l := newTestLocal(t, b, WithGasBuffer(20))
	connect(t, l)

	to := "0x10ED43C718714eb63d5aA57B78B54704E256024E"
	hash, err := DecodeResult[string](l.Request(context.Background(), "eth_sendTransaction", TxArgs{
		From:  testAddr,
		To:    to,
		Data:  hexutil.Bytes{0xde, 0xad, 0xbe, 0xef},
		Value: (*hexutil.Big)(big.NewInt(5)),
	}))
	require.NoError(t, err)

	require.Len(t, b.sent, 1)
	tx := b.sent[0]
	assert.Equal(t, tx.Hash().Hex(), hash)
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, int64(56), tx.ChainId().Int64())
	assert.Equal(t, common.HexToAddress(to), *tx.To())
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, tx.Data())

	from, err := types.Sender(types.NewLondonSigner(big.NewInt(56)), tx)
	require.NoError(t, err)
	assert.Equal(t, testAddr, from.Hex())
}

func TestSendTransactionRevertKeepsMessage(t *testing.T) {
	b := &fakeBackend{estimateErr: &chain.RPCError{Code: 3, Message: "execution reverted: Insufficient allowance"}}
	l := newTestLocal(t, b)
	connect(t, l)

	_, err := l.Request(context.Background(), "eth_sendTransaction", TxArgs{From: testAddr, To: testAddr})
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, pe.Code)
	assert.Equal(t, "execution reverted: Insufficient allowance", pe.Message)
	assert.Empty(t, b.sent)
}

func TestPersonalSign(t *testing.T) {
	l := newTestLocal(t, &fakeBackend{})
	connect(t, l)

	msg := []byte("hello")
	sigHex, err := DecodeResult[string](l.Request(context.Background(), "personal_sign", hexutil.Encode(msg), testAddr))
	require.NoError(t, err)

	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)
	addr, err := wallet.VerifyMessage(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, testAddr, addr.Hex())
}

func TestUnsupportedMethod(t *testing.T) {
	l := newTestLocal(t, &fakeBackend{})
	_, err := l.Request(context.Background(), "eth_sign")
	assert.True(t, IsCode(err, CodeUnsupportedMethod))
}

func TestPassthroughConvertsRPCError(t *testing.T) {
	b := &fakeBackend{callErr: &chain.RPCError{Code: -32000, Message: "header not found"}}
	l := newTestLocal(t, b)
	_, err := l.Request(context.Background(), "eth_call", map[string]string{"to": testAddr}, "latest")
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, -32000, pe.Code)
	assert.Equal(t, "header not found", pe.Message)
}

func TestPassthroughOverRPCDialer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int    `json:"id"`
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "eth_blockNumber", req.Method)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0x10"}) //nolint:errcheck
	}))
	defer srv.Close()

	reg := chain.NewRegistry()
	local := chain.Chain{Name: "devnet", DisplayName: "Devnet", ChainID: 31337, RPCs: []string{srv.URL}}
	require.NoError(t, reg.Add(local))

	l := NewLocal(testSigner(t), reg, local, WithDialer(RPCDialer(rpc.AlgorithmFastest, nil)))
	n, err := DecodeResult[hexutil.Uint64](l.Request(context.Background(), "eth_blockNumber"))
	require.NoError(t, err)
	assert.Equal(t, hexutil.Uint64(16), n)
}

func TestDisconnectEmitsEmptyAccounts(t *testing.T) {
	l := newTestLocal(t, &fakeBackend{})
	connect(t, l)
	events, unsub := l.Subscribe()
	defer unsub()

	l.Disconnect()

	ev := <-events
	assert.Equal(t, AccountsChanged, ev.Kind)
	assert.Empty(t, ev.Accounts)

	accts, err := DecodeResult[[]string](l.Request(context.Background(), "eth_accounts"))
	require.NoError(t, err)
	assert.Empty(t, accts)
}

func TestSwitchAccountNotifiesWhenAuthorized(t *testing.T) {
	l := newTestLocal(t, &fakeBackend{})
	events, unsub := l.Subscribe()
	defer unsub()

	other := wallet.NewManager()
	require.NoError(t, other.AddWithKey("second", "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"))
	s2, err := other.Signer("second")
	require.NoError(t, err)

	l.SwitchAccount(s2)
	assert.Empty(t, events, "no event before access was granted")

	connect(t, l)
	l.SwitchAccount(testSigner(t))
	ev := <-events
	assert.Equal(t, []string{testAddr}, ev.Accounts)
}
