package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mohsinsiddi/zeroslip/internal/trader"
	"github.com/Mohsinsiddi/zeroslip/internal/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var (
	tradeAmountIn string
	tradeMinOut   string
	tradePath     []string
	tradeDeadline int
	tradeWait     bool
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Submit a single swap through the trading contract",
	Long: `Submit executeTrade on the bound contract.

--amount-in is in units of the first token of --path, --min-out in units of
the last. --path is a comma-separated list of token addresses.`,
	Example: `  zeroslip trade --path 0xbb4C...095c,0x0E09...ce82 --amount-in 0.5 --min-out 120`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := parsePath(tradePath)
		if err != nil {
			return err
		}
		deadlineMin := cfg.DeadlineMinutes
		if cmd.Flags().Changed("deadline") {
			deadlineMin = tradeDeadline
		}

		s, err := newStack(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		amountIn, err := units.ParseUnits(tradeAmountIn, s.trader.TokenDecimals(ctx, path[0].Hex()))
		if err != nil {
			return fmt.Errorf("--amount-in: %w", err)
		}
		minOut, err := units.ParseUnits(tradeMinOut, s.trader.TokenDecimals(ctx, path[len(path)-1].Hex()))
		if err != nil {
			return fmt.Errorf("--min-out: %w", err)
		}

		t := trader.Trade{
			AmountIn:     amountIn,
			AmountOutMin: minOut,
			Path:         path,
			Deadline:     trader.DeadlineIn(deadlineMin, time.Now()),
		}
		var hash common.Hash
		err = withSpinner(cmd, "Submitting trade...", func() error {
			hash, err = s.trader.ExecuteTrade(ctx, t)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), txLine(s.chain, "Trade sent", hash))
		if tradeWait {
			return waitMined(cmd, s, hash)
		}
		return nil
	},
}

// parsePath accepts addresses as repeated flags or comma-separated values.
func parsePath(raw []string) ([]common.Address, error) {
	var path []common.Address
	for _, r := range raw {
		for _, p := range strings.Split(r, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if !common.IsHexAddress(p) {
				return nil, fmt.Errorf("%w: %q is not an address", trader.ErrInvalidPath, p)
			}
			path = append(path, common.HexToAddress(p))
		}
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: --path needs at least two tokens", trader.ErrInvalidPath)
	}
	return path, nil
}

func init() {
	tradeCmd.Flags().StringVar(&tradeAmountIn, "amount-in", "", "amount of the first path token to sell")
	tradeCmd.Flags().StringVar(&tradeMinOut, "min-out", "0", "minimum amount of the last path token to receive")
	tradeCmd.Flags().StringSliceVar(&tradePath, "path", nil, "swap path as token addresses")
	tradeCmd.Flags().IntVar(&tradeDeadline, "deadline", 0, "deadline in minutes from now (default from config)")
	tradeCmd.Flags().BoolVar(&tradeWait, "wait", false, "wait for the trade to be mined")
	_ = tradeCmd.MarkFlagRequired("amount-in")
	_ = tradeCmd.MarkFlagRequired("path")
}
