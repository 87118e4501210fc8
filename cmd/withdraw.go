package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/zeroslip/internal/ui"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw funds held by the trading contract",
}

var withdrawTokenCmd = &cobra.Command{
	Use:   "token <token> <amount>",
	Short: "Withdraw an ERC-20 token from the contract",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithdraw(cmd, args[1]+" of "+args[0], func(s *stack) (common.Hash, error) {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			return s.trader.WithdrawToken(ctx, args[0], args[1])
		})
	},
}

var withdrawBNBCmd = &cobra.Command{
	Use:   "bnb <amount>",
	Short: "Withdraw BNB from the contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithdraw(cmd, args[0]+" BNB", func(s *stack) (common.Hash, error) {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			return s.trader.WithdrawBNB(ctx, args[0])
		})
	},
}

func runWithdraw(cmd *cobra.Command, what string, fn func(*stack) (common.Hash, error)) error {
	s, err := newStack(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	if !assumeYes && !ui.NewPrompter(cmd.InOrStdin(), out).Confirm("Withdraw "+what+" from the contract?") {
		fmt.Fprintln(out, ui.Meta("Cancelled."))
		return nil
	}
	var hash common.Hash
	err = withSpinner(cmd, "Withdrawing "+what+"...", func() error {
		hash, err = fn(s)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, txLine(s.chain, "Withdrawal sent", hash))
	return nil
}

func init() {
	withdrawCmd.AddCommand(withdrawTokenCmd, withdrawBNBCmd)
}
