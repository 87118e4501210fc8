package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Mohsinsiddi/zeroslip/internal/trader"
	"github.com/Mohsinsiddi/zeroslip/internal/ui"
	"github.com/Mohsinsiddi/zeroslip/internal/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var (
	batchBuy      string
	batchSell     string
	batchVia      string
	batchSlippage string
	batchDeadline int
	batchWait     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <token>",
	Short: "Buy and sell a token in one zero-slippage batch",
	Long: `Submit executeBatchTrade on the bound contract.

The buy leg swaps --buy of the intermediate token (WBNB by default) into
token; the sell leg swaps --sell of token back. Allowances are checked for
both legs and approved when short, then exactly one batch transaction is
sent.`,
	Example: `  zeroslip batch 0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82 --buy 0.1 --sell 25`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("token: %w", trader.ErrInvalidAddress)
		}
		token := common.HexToAddress(args[0])

		viaHex := cfg.IntermediateToken
		if batchVia != "" {
			viaHex = batchVia
		}
		if !common.IsHexAddress(viaHex) {
			return fmt.Errorf("intermediate token: %w", trader.ErrInvalidAddress)
		}
		via := common.HexToAddress(viaHex)
		if via == token {
			return fmt.Errorf("%w: token is the intermediate token", trader.ErrInvalidPath)
		}

		slippage := cfg.SlippagePercent
		if batchSlippage != "" {
			v, err := strconv.ParseUint(batchSlippage, 10, 64)
			if err != nil || v > 100 {
				return fmt.Errorf("%w: %q", trader.ErrInvalidSlippage, batchSlippage)
			}
			slippage = v
		}
		deadlineMin := cfg.DeadlineMinutes
		if cmd.Flags().Changed("deadline") {
			deadlineMin = batchDeadline
		}

		s, err := newStack(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		buyIn, err := units.ParseUnits(batchBuy, s.trader.TokenDecimals(ctx, via.Hex()))
		if err != nil {
			return fmt.Errorf("--buy: %w", err)
		}
		sellIn, err := units.ParseUnits(batchSell, s.trader.TokenDecimals(ctx, token.Hex()))
		if err != nil {
			return fmt.Errorf("--sell: %w", err)
		}

		bt := trader.BatchTrade{
			BuyPath:            trader.RouteVia(via, token, via),
			SellPath:           trader.RouteVia(token, via, via),
			BuyAmountIn:        buyIn,
			SellAmountIn:       sellIn,
			MaxSlippagePercent: slippage,
			Deadline:           trader.DeadlineIn(deadlineMin, time.Now()),
		}
		out := cmd.OutOrStdout()
		if !assumeYes && !ui.NewPrompter(cmd.InOrStdin(), out).Confirm(
			fmt.Sprintf("Batch buy %s / sell %s of %s (slippage %d%%)?", batchBuy, batchSell, ui.TruncateAddr(token.Hex()), slippage)) {
			fmt.Fprintln(out, ui.Meta("Cancelled."))
			return nil
		}

		var res *trader.BatchResult
		err = withSpinner(cmd, "Submitting batch trade...", func() error {
			res, err = s.trader.ExecuteBatchTrade(ctx, bt)
			return err
		})
		if err != nil {
			return err
		}
		for _, a := range res.Approvals {
			fmt.Fprintln(out, txLine(s.chain, "Approved "+ui.TruncateAddr(a.Token.Hex()), a.Hash))
		}
		fmt.Fprintln(out, txLine(s.chain, "Batch trade sent", res.Hash))
		if batchWait {
			return waitMined(cmd, s, res.Hash)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchBuy, "buy", "", "amount of the intermediate token to spend on the buy leg")
	batchCmd.Flags().StringVar(&batchSell, "sell", "", "amount of token to sell on the sell leg")
	batchCmd.Flags().StringVar(&batchVia, "via", "", "intermediate token (default from config, WBNB)")
	batchCmd.Flags().StringVar(&batchSlippage, "slippage", "", "max slippage percent, 0-100 (default from config)")
	batchCmd.Flags().IntVar(&batchDeadline, "deadline", 0, "deadline in minutes from now (default from config)")
	batchCmd.Flags().BoolVar(&batchWait, "wait", false, "wait for the batch to be mined")
	_ = batchCmd.MarkFlagRequired("buy")
	_ = batchCmd.MarkFlagRequired("sell")
}
