package cmd

import (
	"fmt"
	"strconv"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/ui"
	"github.com/spf13/cobra"
)

var (
	chainsTestnet bool
	chainsMainnet bool
)

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List the configured chains",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry()
		if err != nil {
			return err
		}
		list := reg.All()
		switch {
		case chainsTestnet:
			list = reg.Testnets()
		case chainsMainnet:
			list = reg.Mainnets()
		}

		t := ui.NewTable(
			ui.Column{Title: "ID", Width: 8},
			ui.Column{Title: "Slug", Width: 14},
			ui.Column{Title: "Name"},
			ui.Column{Title: "Hex"},
			ui.Column{Title: "Currency"},
			ui.Column{Title: "RPCs"},
		)
		for _, c := range list {
			name := ui.ChainName(c.Name)
			if c.ID == cfg.DefaultChain {
				name += ui.Meta(" (default)")
			}
			t.AddRow(
				strconv.FormatUint(c.ID, 10),
				c.Slug,
				name,
				ui.Meta(chain.HexID(c.ID)),
				c.Currency.Symbol,
				strconv.Itoa(len(c.RPCURLs)),
			)
		}
		fmt.Print(t.Render())
		return nil
	},
}

func init() {
	chainsCmd.Flags().BoolVar(&chainsTestnet, "testnet", false, "only testnets")
	chainsCmd.Flags().BoolVar(&chainsMainnet, "mainnet", false, "only mainnets")
	chainsCmd.MarkFlagsMutuallyExclusive("testnet", "mainnet")
}
