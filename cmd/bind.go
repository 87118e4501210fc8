package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/zeroslip/internal/trader"
	"github.com/Mohsinsiddi/zeroslip/internal/ui"
	"github.com/spf13/cobra"
)

var bindCmd = &cobra.Command{
	Use:   "bind <address>",
	Short: "Bind the zero-slippage trading contract",
	Long: `Validate a contract address and store it as the default trading contract.
--contract overrides it for a single command.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := trader.New(nil, trader.WithLogger(log.Named("trader")))
		if err != nil {
			return err
		}
		if err := tc.BindContract(args[0]); err != nil {
			return err
		}
		addr, _ := tc.Contract()
		cfg.ContractAddress = addr.Hex()
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Contract bound: "+ui.Addr(addr.Hex())))
		return nil
	},
}
