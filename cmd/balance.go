package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/zeroslip/internal/ui"
	"github.com/Mohsinsiddi/zeroslip/internal/units"
	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance <token> [owner]",
	Short: "Show an ERC-20 token balance",
	Long:  `Show owner's balance of token. owner defaults to the selected wallet.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStack(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		owner := s.signer.Address().Hex()
		if len(args) == 2 {
			owner = args[1]
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		bal, err := s.trader.TokenBalance(ctx, args[0], owner)
		if err != nil {
			return err
		}
		dec := s.trader.TokenDecimals(ctx, args[0])
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Balance", [][2]string{
			{"Token", args[0]},
			{"Owner", owner},
			{"Balance", units.FormatUnits(bal, dec)},
			{"Raw", bal.String()},
		}))
		return nil
	},
}
