package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/zeroslip/internal/chain"
	"github.com/Mohsinsiddi/zeroslip/internal/ui"
	"github.com/spf13/cobra"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Show or change the target network",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := targetChain(chain.NewRegistry())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Network", [][2]string{
			{"Chain", ui.ChainName(c.Name)},
			{"Display name", c.DisplayName},
			{"Chain ID", fmt.Sprintf("%d (%s)", c.ChainID, c.HexID())},
			{"Mode", cfg.NetworkMode},
			{"Currency", c.NativeCurrency.Symbol},
			{"Explorer", c.Explorer},
			{"RPC algorithm", cfg.RPCAlgorithm},
		}))
		return nil
	},
}

var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported chains",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := chain.NewRegistry()
		t := ui.NewTable([]ui.Column{
			{Title: "Name", Width: 16},
			{Title: "Display", Width: 22},
			{Title: "Chain ID", Width: 10},
			{Title: "Currency", Width: 8},
			{Title: "Testnet", Width: 16},
		})
		for i, c := range reg.All() {
			if c.Name == cfg.Network {
				t.Mark = i
			}
			t.AddRow(ui.Row{
				ui.ChainName(c.Name),
				c.DisplayName,
				fmt.Sprintf("%d", c.ChainID),
				c.NativeCurrency.Symbol,
				c.Testnet,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

var networkUseCmd = &cobra.Command{
	Use:   "use <chain>",
	Short: "Set the target network",
	Long: `Set the target chain and persist it to config.

When combined with --testnet or --mainnet the network mode is also persisted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if _, err := chain.NewRegistry().GetByName(name); err != nil {
			return fmt.Errorf("unknown chain %q, run `zeroslip network list` to see all chains", name)
		}
		cfg.Network = name
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("Network set to %s (%s)", ui.ChainName(name), cfg.NetworkMode)))
		return nil
	},
}

func init() {
	networkCmd.AddCommand(networkListCmd, networkUseCmd)
}
