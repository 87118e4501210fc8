package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/zeroslip/internal/ui"
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect the wallet and switch it to the target network",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newStack(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		var account string
		err = withSpinner(cmd, "Connecting to "+s.chain.DisplayName+"...", func() error {
			account, err = s.session.Connect(ctx)
			return err
		})
		if err != nil {
			return err
		}
		log.Info("wallet connected", logField(s.chain))

		contract := "not bound"
		if addr, ok := s.trader.Contract(); ok {
			contract = addr.Hex()
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Session", [][2]string{
			{"Account", account},
			{"Chain", fmt.Sprintf("%s (%d)", s.chain.DisplayName, s.session.ChainID())},
			{"State", s.session.State().String()},
			{"Contract", contract},
		}))
		return nil
	},
}
