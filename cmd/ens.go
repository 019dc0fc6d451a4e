package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/ens"
	"github.com/Mohsinsiddi/w3link/internal/ui"
	"github.com/spf13/cobra"
)

var ensCmd = &cobra.Command{
	Use:   "ens <name-or-address>",
	Short: "Resolve ENS names to addresses and vice versa",
	Long: `Resolve ENS names to Ethereum addresses or perform reverse lookups.

Auto-detects direction: if the input starts with 0x, it does a reverse
lookup. Otherwise, it resolves the name to an address.

ENS resolution uses the pool of the selected chain, which defaults to
Ethereum mainnet where the ENS registry lives.

Examples:
  w3link ens vitalik.eth
  w3link ens 0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := args[0]
		if chainFlag == "" {
			chainFlag = "ethereum"
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), config.RPCCallTimeout)
		defer cancel()
		net, pool, _, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer net.Close()

		if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
			addr, err := parseAddress(input)
			if err != nil {
				return err
			}
			name, err := ens.ReverseLookup(ctx, pool, addr)
			if err != nil {
				return fmt.Errorf("reverse lookup failed: %w", err)
			}

			pairs := [][2]string{
				{"Address", ui.Addr(addr.Hex())},
				{"ENS Name", ui.Val(name)},
			}
			// Also verify forward resolution matches.
			if fwd, err := pool.ResolveName(ctx, name); err == nil {
				if fwd == addr {
					pairs = append(pairs, [2]string{"Forward Check", ui.Success("matches")})
				} else {
					pairs = append(pairs, [2]string{"Forward Check", ui.Warn("forward resolves to " + fwd.Hex())})
				}
			}
			fmt.Println(ui.KeyValueBlock("ENS Reverse Lookup", pairs))
			return nil
		}

		addr, err := pool.ResolveName(ctx, input)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", input, err)
		}
		fmt.Println(ui.KeyValueBlock("ENS Resolution", [][2]string{
			{"Name", ui.Val(input)},
			{"Address", ui.Addr(addr.Hex())},
			{"Namehash", ui.Meta(ens.Namehash(input).Hex())},
		}))
		return nil
	},
}
