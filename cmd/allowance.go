package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/zeroslip/internal/ui"
	"github.com/Mohsinsiddi/zeroslip/internal/units"
	"github.com/spf13/cobra"
)

var allowanceCmd = &cobra.Command{
	Use:   "allowance <token> [owner]",
	Short: "Show how much of a token the trading contract may spend",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStack(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		account, err := s.session.Connect(ctx)
		if err != nil {
			return err
		}
		owner := account
		if len(args) == 2 {
			owner = args[1]
		}
		allowed, err := s.trader.CheckAllowance(ctx, args[0], owner)
		if err != nil {
			return err
		}
		spender, _ := s.trader.Contract()

		human := units.FormatUnits(allowed, s.trader.TokenDecimals(ctx, args[0]))
		if allowed.Cmp(units.MaxUint256()) == 0 {
			human = "unlimited"
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Allowance", [][2]string{
			{"Token", args[0]},
			{"Owner", owner},
			{"Spender", spender.Hex()},
			{"Allowance", human},
			{"Raw", allowed.String()},
		}))
		return nil
	},
}
