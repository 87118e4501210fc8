package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Mohsinsiddi/zeroslip/internal/chain"
	"github.com/Mohsinsiddi/zeroslip/internal/config"
	"github.com/Mohsinsiddi/zeroslip/internal/provider"
	"github.com/Mohsinsiddi/zeroslip/internal/rpc"
	"github.com/Mohsinsiddi/zeroslip/internal/session"
	"github.com/Mohsinsiddi/zeroslip/internal/trader"
	"github.com/Mohsinsiddi/zeroslip/internal/ui"
	"github.com/Mohsinsiddi/zeroslip/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// stack is everything a trading command needs: the local wallet provider,
// the session on the target chain and the trade client.
type stack struct {
	chain   chain.Chain
	signer  *wallet.Signer
	local   *provider.Local
	session *session.Manager
	trader  *trader.Client
}

func (s *stack) Close() { s.session.Close() }

func openKeystore() (*wallet.Keystore, error) {
	opts := wallet.KeystoreOptions{
		FileDir:  filepath.Join(cfg.Dir(), "keys"),
		FileOnly: os.Getenv(envKeyringBackend) == "file",
	}
	if pw, ok := os.LookupEnv(envKeyringPassword); ok {
		opts.Password = func(string) (string, error) { return pw, nil }
	}
	return wallet.OpenKeystore(opts)
}

func newWalletManager() (*wallet.Manager, error) {
	ks, err := openKeystore()
	if err != nil {
		return nil, err
	}
	return wallet.NewManager(
		wallet.WithStore(wallet.NewJSONStore(cfg.WalletsPath())),
		wallet.WithKeystore(ks),
	), nil
}

func targetChain(reg *chain.Registry) (*chain.Chain, error) {
	c, err := reg.Resolve(cfg.Network, cfg.NetworkMode)
	if err != nil {
		return nil, fmt.Errorf("network %q: %w", cfg.Network, err)
	}
	return c, nil
}

// loadSigner resolves --wallet, then the configured default, then the only
// wallet, and returns its signer.
func loadSigner() (*wallet.Signer, error) {
	mgr, err := newWalletManager()
	if err != nil {
		return nil, err
	}
	name := walletFlag
	if name == "" {
		name = cfg.DefaultWallet
	}
	if name == "" {
		if w := mgr.Default(); w != nil {
			name = w.Name
		}
	}
	if name == "" {
		return nil, fmt.Errorf("no wallet selected\n  Add one with: zeroslip wallet add <name> --key <private-key>")
	}
	return mgr.Signer(name)
}

func newStack(cmd *cobra.Command) (*stack, error) {
	signer, err := loadSigner()
	if err != nil {
		return nil, err
	}
	reg := chain.NewRegistry()
	target, err := targetChain(reg)
	if err != nil {
		return nil, err
	}

	out := cmd.ErrOrStderr()
	local := provider.NewLocal(signer, reg, *target,
		provider.WithLogger(log.Named("provider")),
		provider.WithDialer(provider.RPCDialer(rpc.ParseAlgorithm(cfg.RPCAlgorithm), cfg.GetRPCs)),
		provider.WithGasBuffer(config.GasBufferPercent),
		provider.WithConsent(consent(cmd.InOrStdin(), out)),
	)
	sess := session.New(local, *target,
		session.WithLogger(log.Named("session")),
		session.WithNotify(func(ev provider.Event) { printEvent(out, ev) }),
	)

	opts := []trader.Option{
		trader.WithLogger(log.Named("trader")),
		trader.WithApprovalMode(trader.ApprovalMode(cfg.ApprovalMode)),
	}
	addr := contractFlag
	if addr == "" {
		addr = cfg.ContractAddress
	}
	if addr != "" {
		opts = append(opts, trader.WithContract(addr))
	}
	tc, err := trader.New(sess, opts...)
	if err != nil {
		return nil, err
	}
	return &stack{chain: *target, signer: signer, local: local, session: sess, trader: tc}, nil
}

func consent(in io.Reader, out io.Writer) provider.Consent {
	return func(_ context.Context, account common.Address) error {
		if assumeYes {
			return nil
		}
		if ui.NewPrompter(in, out).Confirm(fmt.Sprintf("Use account %s with zeroslip?", account.Hex())) {
			return nil
		}
		return errors.New("declined at prompt")
	}
}

func printEvent(w io.Writer, ev provider.Event) {
	switch ev.Kind {
	case provider.AccountsChanged:
		if len(ev.Accounts) == 0 {
			fmt.Fprintln(w, ui.Warn("Wallet disconnected."))
			return
		}
		fmt.Fprintln(w, ui.Info("Account changed to "+ui.Addr(ev.Accounts[0])))
	case provider.ChainChanged:
		fmt.Fprintln(w, ui.Info("Wallet switched to chain "+ev.ChainID))
	}
}

// withSpinner runs fn while a spinner is shown on stderr.
func withSpinner(cmd *cobra.Command, msg string, fn func() error) error {
	sp := ui.NewSpinnerTo(cmd.ErrOrStderr(), msg)
	sp.Start()
	err := fn()
	sp.Stop()
	return err
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), config.RequestTimeout)
}

func errorLine(err error) string {
	switch {
	case trader.IsUserRejection(err):
		return ui.Err("Request rejected in wallet: " + err.Error())
	case errors.Is(err, session.ErrChainSwitchFailed):
		return ui.Err(err.Error()) + "\n" + ui.Hint("Check the network with: zeroslip network")
	case errors.Is(err, trader.ErrNotBound):
		return ui.Err(err.Error()) + "\n" + ui.Hint("Bind the contract with: zeroslip bind <address>")
	default:
		return ui.Err(err.Error())
	}
}

func txLine(c chain.Chain, label string, hash common.Hash) string {
	return ui.Success(label) + " " + ui.Addr(ui.TxLink(c.Explorer, hash.Hex()))
}

func logField(c chain.Chain) zap.Field {
	return zap.String("chain", c.Name)
}
