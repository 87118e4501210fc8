package cmd

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/Mohsinsiddi/zeroslip/internal/chain"
	"github.com/Mohsinsiddi/zeroslip/internal/rpc"
	"github.com/Mohsinsiddi/zeroslip/internal/ui"
	"github.com/spf13/cobra"
)

var rpcCmd = &cobra.Command{
	Use:   "rpc",
	Short: "Manage RPC endpoints",
}

var rpcAddCmd = &cobra.Command{
	Use:   "add <chain> <url>",
	Short: "Add a custom RPC endpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, raw := args[0], args[1]
		if _, err := chain.NewRegistry().GetByName(name); err != nil {
			return fmt.Errorf("unknown chain %q", name)
		}
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid RPC URL %q", raw)
		}
		if err := cfg.AddRPC(name, raw); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("RPC added for %s: %s", ui.ChainName(name), raw)))
		return nil
	},
}

var rpcRemoveCmd = &cobra.Command{
	Use:   "remove <chain> <url>",
	Short: "Remove a custom RPC endpoint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RemoveRPC(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("RPC removed for %s: %s", ui.ChainName(args[0]), args[1])))
		return nil
	},
}

var rpcListCmd = &cobra.Command{
	Use:   "list [chain]",
	Short: "List RPC endpoints for a chain",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := rpcChain(args)
		if err != nil {
			return err
		}
		t := ui.NewTable([]ui.Column{
			{Title: "Source", Width: 8},
			{Title: "URL", Width: 60},
		})
		for _, u := range cfg.GetRPCs(c.Name) {
			t.AddRow(ui.Row{ui.Val("custom"), u})
		}
		for _, u := range c.RPCs {
			t.AddRow(ui.Row{ui.Meta("builtin"), u})
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.ChainName(c.Name))
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

var rpcBenchCmd = &cobra.Command{
	Use:   "bench [chain]",
	Short: "Ping every RPC endpoint and show which one would be selected",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := rpcChain(args)
		if err != nil {
			return err
		}
		urls := slices.Concat(cfg.GetRPCs(c.Name), c.RPCs)
		ctx, cancel := requestContext(cmd)
		defer cancel()

		var results []rpc.Endpoint
		_ = withSpinner(cmd, fmt.Sprintf("Pinging %d endpoint(s)...", len(urls)), func() error {
			results = rpc.Benchmark(ctx, urls)
			return nil
		})

		winner, pickErr := rpc.NewPicker(rpc.ParseAlgorithm(cfg.RPCAlgorithm)).Pick(results)
		t := ui.NewTable([]ui.Column{
			{Title: "URL", Width: 48},
			{Title: "Latency", Width: 10},
			{Title: "Block", Width: 12},
			{Title: "Status", Width: 8},
		})
		for i, e := range results {
			status, latency, block := ui.Err("down"), "-", "-"
			if e.Healthy {
				status = ui.Success("ok")
				latency = e.Latency.Round(1e6).String()
				block = fmt.Sprintf("%d", e.BlockNumber)
			}
			if pickErr == nil && e.URL == winner.URL {
				t.Mark = i
			}
			t.AddRow(ui.Row{e.URL, latency, block, status})
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, t.Render())
		if pickErr != nil {
			return pickErr
		}
		fmt.Fprintln(out, ui.Info(fmt.Sprintf("%s picks %s", cfg.RPCAlgorithm, winner.URL)))
		return nil
	},
}

func rpcChain(args []string) (*chain.Chain, error) {
	reg := chain.NewRegistry()
	if len(args) == 1 {
		return reg.GetByName(args[0])
	}
	return targetChain(reg)
}

func init() {
	rpcCmd.AddCommand(rpcAddCmd, rpcRemoveCmd, rpcListCmd, rpcBenchCmd)
}
