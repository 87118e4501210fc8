package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	"github.com/Mohsinsiddi/zeroslip/internal/config"
	"github.com/Mohsinsiddi/zeroslip/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/zeroslip/cmd.Version=1.2.3" .
var Version = "0.1.0"

// Environment variables.
const (
	envConfigDir       = "ZEROSLIP_CONFIG_DIR"
	envPrivateKey      = "ZEROSLIP_PRIVATE_KEY"
	envKeyringPassword = "ZEROSLIP_KEYRING_PASSWORD"
	envKeyringBackend  = "ZEROSLIP_KEYRING_BACKEND"
)

var (
	cfgDir       string
	cfg          *config.Config
	log          = zap.NewNop()
	verbose      bool
	testnet      bool
	mainnet      bool
	assumeYes    bool
	walletFlag   string
	contractFlag string
)

var rootCmd = &cobra.Command{
	Use:   "zeroslip",
	Short: "Zero-slippage batch trading client for BNB Smart Chain",
	Long: `zeroslip connects a local wallet to BNB Smart Chain, manages ERC-20
allowances for the zero-slippage trading contract and submits single and
batched buy/sell trades to it.

A .env file in the working directory is loaded before flags are read.
Global flags --testnet and --mainnet override the configured network mode
for a single invocation.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		if !cmd.Flags().Changed("config") {
			if envDir := os.Getenv(envConfigDir); envDir != "" {
				cfgDir = envDir
			}
		}

		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if testnet {
			cfg.NetworkMode = "testnet"
		}
		if mainnet {
			cfg.NetworkMode = "mainnet"
		}

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		log, err = logging.New(level, cfg.LogEncoding)
		if err != nil {
			return err
		}
		log.Debug("config loaded", zap.String("dir", cfg.Dir()), zap.String("network", cfg.Network), zap.String("mode", cfg.NetworkMode))
		return nil
	},
}

// Execute runs the root command. Ctrl-C cancels in-flight requests.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorLine(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", "", "config directory (default: ~/.zeroslip, env "+envConfigDir+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&testnet, "testnet", false, "use testnet instead of mainnet")
	rootCmd.PersistentFlags().BoolVar(&mainnet, "mainnet", false, "use mainnet instead of testnet")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "answer yes to every prompt")
	rootCmd.PersistentFlags().StringVarP(&walletFlag, "wallet", "w", "", "signing wallet (default: the default wallet)")
	rootCmd.PersistentFlags().StringVar(&contractFlag, "contract", "", "trading contract address (default: the bound contract)")
	rootCmd.MarkFlagsMutuallyExclusive("testnet", "mainnet")

	rootCmd.AddCommand(
		walletCmd,
		networkCmd,
		rpcCmd,
		connectCmd,
		bindCmd,
		balanceCmd,
		allowanceCmd,
		approveCmd,
		tradeCmd,
		batchCmd,
		withdrawCmd,
	)
}
