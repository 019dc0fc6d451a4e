package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/rpc"
	"github.com/Mohsinsiddi/w3link/internal/tx"
	"github.com/Mohsinsiddi/w3link/internal/ui"
	"github.com/spf13/cobra"
)

var rpcCmd = &cobra.Command{
	Use:   "rpc",
	Short: "Call and manage RPC endpoints",
}

var rpcCallCmd = &cobra.Command{
	Use:   "call <method> [params-json]",
	Short: "Call a JSON-RPC method through the chain's pool",
	Long: `Call a JSON-RPC method through the endpoint pool of the selected chain.
Params are a JSON array.

Examples:
  w3link rpc call eth_blockNumber
  w3link rpc call eth_getBalance '["0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045","latest"]' --chain bnb`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var params []any
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
				return fmt.Errorf("params must be a JSON array: %w", err)
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), config.RPCCallTimeout)
		defer cancel()
		net, pool, _, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer net.Close()

		var result json.RawMessage
		if err := pool.CallContext(ctx, &result, args[0], params...); err != nil {
			return err
		}
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var rpcBenchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark the endpoints of a chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), config.BenchTimeout)
		defer cancel()
		net, pool, c, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer net.Close()

		var results []rpc.ProbeResult
		_ = ui.Wait(os.Stdout, fmt.Sprintf("Probing %d endpoints on %s...", len(pool.Endpoints()), c.Name), func() error {
			results = rpc.Benchmark(ctx, pool)
			return nil
		})

		fastest := ""
		if ranked := rpc.Fastest(results); len(ranked) > 0 {
			fastest = ranked[0].URL
		}
		t := ui.NewTable(
			ui.Column{Title: "Endpoint"},
			ui.Column{Title: "Latency", Width: 8},
			ui.Column{Title: "Block"},
			ui.Column{Title: "Status"},
		)
		for _, r := range results {
			url := r.URL
			if url == fastest {
				url = ui.StyleSelected.Render(url)
			}
			status := ui.Success("ok")
			switch {
			case r.Err != nil:
				status = ui.Err(ui.TrimErr(r.Err.Error()))
			case !r.Healthy:
				status = ui.Warn("stale")
			}
			t.AddRow(url, ui.FormatLatency(r.Latency), strconv.FormatUint(r.BlockNumber, 10), status)
		}
		fmt.Printf("%s\n\n", ui.StyleTitle.Render("RPC benchmark · "+c.Name))
		fmt.Print(t.Render())
		return nil
	},
}

var (
	estimateTo    string
	estimateFrom  string
	estimateValue string
	estimateData  string
)

var rpcEstimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate gas for a transaction",
	RunE: func(cmd *cobra.Command, args []string) error {
		draft, err := buildRequest(estimateTo, estimateValue, estimateData)
		if err != nil {
			return err
		}
		if estimateFrom != "" {
			from, err := parseAddress(estimateFrom)
			if err != nil {
				return err
			}
			draft.From = &from
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), config.RPCCallTimeout)
		defer cancel()
		net, pool, c, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer net.Close()

		estimate, err := pool.EstimateGas(ctx, draft.CallMsg())
		if err != nil {
			return fmt.Errorf("estimating gas: %w", err)
		}
		limit, err := tx.ApplyMultiplier(estimate, cfg.GasMultiplier)
		if err != nil {
			return err
		}
		pairs := [][2]string{
			{"Chain", ui.ChainName(c.Name)},
			{"Estimate", ui.Val(strconv.FormatUint(estimate, 10))},
			{"Gas limit", ui.Val(strconv.FormatUint(limit, 10)) + ui.Meta(fmt.Sprintf(" (×%.3f)", float64(cfg.GasMultiplier)/1000))},
		}
		if info, err := pool.GasInfo(ctx); err == nil {
			price, eip1559 := info.Display()
			label := "Gas price"
			if eip1559 {
				label = "Base fee"
			}
			pairs = append(pairs, [2]string{label, ui.Val(ui.FormatGwei(tx.WeiToGwei(price)) + " gwei")})
		}
		fmt.Println(ui.KeyValueBlock("Gas estimate", pairs))
		return nil
	},
}

var rpcAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add a custom RPC URL for the selected chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry()
		if err != nil {
			return err
		}
		c, err := selectedChain(reg)
		if err != nil {
			return err
		}
		if err := cfg.AddRPC(c.ID, args[0]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Added RPC for %s: %s", ui.ChainName(c.Name), args[0])))
		return nil
	},
}

var rpcRemoveCmd = &cobra.Command{
	Use:   "remove <url>",
	Short: "Remove a custom RPC URL from the selected chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry()
		if err != nil {
			return err
		}
		c, err := selectedChain(reg)
		if err != nil {
			return err
		}
		if err := cfg.RemoveRPC(c.ID, args[0]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("Removed RPC for %s: %s", ui.ChainName(c.Name), args[0])))
		return nil
	},
}

var rpcListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the RPC URLs of the selected chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry()
		if err != nil {
			return err
		}
		c, err := selectedChain(reg)
		if err != nil {
			return err
		}
		custom := cfg.GetRPCs(c.ID)
		fmt.Printf("%s\n\n", ui.StyleTitle.Render("RPC endpoints · "+c.Name))
		for i, url := range c.RPCURLs {
			fmt.Printf("  %d. %s\n", i+1, url)
		}
		if len(custom) == 0 {
			fmt.Println(ui.Meta("\n  Built-in endpoints. Add your own with: w3link rpc add <url>"))
		}
		return nil
	},
}

func init() {
	rpcEstimateCmd.Flags().StringVar(&estimateTo, "to", "", "recipient address")
	rpcEstimateCmd.Flags().StringVar(&estimateFrom, "from", "", "sender address")
	rpcEstimateCmd.Flags().StringVar(&estimateValue, "value", "", "amount in ether, e.g. 0.01")
	rpcEstimateCmd.Flags().StringVar(&estimateData, "data", "", "hex call data")

	rpcCmd.AddCommand(rpcCallCmd, rpcBenchCmd, rpcEstimateCmd, rpcAddCmd, rpcRemoveCmd, rpcListCmd)
}
