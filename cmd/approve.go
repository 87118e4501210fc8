package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/zeroslip/internal/config"
	"github.com/Mohsinsiddi/zeroslip/internal/trader"
	"github.com/Mohsinsiddi/zeroslip/internal/ui"
	"github.com/Mohsinsiddi/zeroslip/internal/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var (
	approveMode string
	approveWait bool
)

var approveCmd = &cobra.Command{
	Use:   "approve <token> <amount>",
	Short: "Approve the trading contract to spend a token",
	Long: `Approve the bound trading contract to spend amount of token.

amount is in token units ("1.5"). In unlimited mode (the default) the
contract is approved for 2^256-1 regardless of amount; --mode exact
approves the amount itself.

An amount without a decimal point is still whole tokens and is scaled by
the token's decimals: "100" on an 18-decimal token approves 100 tokens
(100 * 10^18 raw units), not 100 raw units. Pass raw amounts as a
fraction, e.g. "0.000000000000000100".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if approveMode != "" {
			cfg.ApprovalMode = approveMode
		}
		s, err := newStack(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		var a *trader.Approval
		err = withSpinner(cmd, "Submitting approval...", func() error {
			a, err = s.trader.ApproveToken(ctx, args[0], args[1])
			return err
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		value := units.FormatUnits(a.Value, a.Decimals)
		if a.Mode == trader.ApprovalUnlimited {
			value = "unlimited"
		}
		fmt.Fprintln(out, ui.KeyValueBlock("Approval", [][2]string{
			{"Token", a.Token.Hex()},
			{"Spender", a.Spender.Hex()},
			{"Requested", units.FormatUnits(a.Amount, a.Decimals)},
			{"Approved", value},
			{"Mode", string(a.Mode)},
		}))
		fmt.Fprintln(out, txLine(s.chain, "Approval sent", a.Hash))

		if approveWait {
			return waitMined(cmd, s, a.Hash)
		}
		return nil
	},
}

func waitMined(cmd *cobra.Command, s *stack, hash common.Hash) error {
	var blk uint64
	err := withSpinner(cmd, "Waiting for confirmation...", func() error {
		r, err := s.trader.WaitMined(cmd.Context(), hash, config.TxConfirmTimeout)
		if err != nil {
			return err
		}
		blk = r.BlockNumber
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("Confirmed in block %d", blk)))
	return nil
}

func init() {
	approveCmd.Flags().StringVar(&approveMode, "mode", "", "approval mode: unlimited or exact (default from config); amounts are whole tokens, never raw units")
	approveCmd.Flags().BoolVar(&approveWait, "wait", false, "wait for the approval to be mined")
}
