package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/connector"
	"github.com/Mohsinsiddi/w3link/internal/ui"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var keyFlag string

// keyName is the key used by the local connector.
func keyName() string {
	if keyFlag != "" {
		return keyFlag
	}
	return cfg.DefaultKey
}

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Connect and manage the wallet session",
}

var walletConnectCmd = &cobra.Command{
	Use:   "connect [connector]",
	Short: "Connect a wallet",
	Long: `Connect a wallet through one of the connectors:

  browserConnector   any wallet behind the wallet bridge
  metamask, trustwallet, coinbase, bitgetwallet, safepalwallet, binancewallet
                     a specific vendor behind the wallet bridge
  walletConnect      a mobile wallet paired through the relay
  local              a key imported with "w3link key import"

Without an argument a picker lists them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), config.ConnectTimeout)
		defer cancel()
		app, err := openWallet(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		id := ""
		if len(args) == 1 {
			id = args[0]
		} else if id, err = pickConnector(app); err != nil {
			return err
		}

		err = withHandlers(func(h wallet.Handlers) error {
			if id == connector.IDRelay {
				// The relay prints its own pairing hint and waits for approval.
				return app.ctrl.Connect(ctx, id, h)
			}
			return ui.Wait(os.Stdout, "Waiting for the wallet...", func() error {
				return app.ctrl.Connect(ctx, id, h)
			})
		})
		if err != nil {
			return err
		}
		fmt.Println(ui.Success("Wallet connected"))
		printSession(app.ctrl.Session(), app.net.Chains())
		return nil
	},
}

// pickConnector asks for a connector. The one in the stored session is
// listed first.
func pickConnector(app *walletApp) (string, error) {
	var current, address string
	if s := app.ctrl.Session(); s != nil {
		current, address = s.ConnectorID(), s.Address()
	}
	var items []ui.PickerItem
	for _, c := range app.connectors.All() {
		item := ui.PickerItem{Label: c.Name(), SubLabel: c.ID(), Value: c.ID()}
		if c.ID() == connector.IDLocal && keyName() == "" {
			item.SubLabel = "no key configured"
			item.Disabled = true
		}
		if c.ID() == current {
			if address != "" {
				item.SubLabel = "last used · " + ui.TruncateAddr(address)
			}
			items = append([]ui.PickerItem{item}, items...)
			continue
		}
		items = append(items, item)
	}
	return ui.Pick("Choose a wallet", items)
}

var walletStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the wallet session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), config.RPCCallTimeout)
		defer cancel()
		app, err := openWallet(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		s := app.ctrl.Session()
		if s == nil {
			fmt.Println(ui.Warn("No wallet session"))
			fmt.Println(ui.Hint("Connect one with: w3link wallet connect"))
			return nil
		}
		printSession(s, app.net.Chains())
		return nil
	},
}

var walletSwitchCmd = &cobra.Command{
	Use:   "switch <chain>",
	Short: "Ask the wallet to switch chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeChain(cmd, args[0], false)
	},
}

var walletAddChainCmd = &cobra.Command{
	Use:   "add-chain <chain>",
	Short: "Ask the wallet to add a chain and switch to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeChain(cmd, args[0], true)
	},
}

func changeChain(cmd *cobra.Command, target string, add bool) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), config.ConnectTimeout)
	defer cancel()
	app, err := openWallet(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	c, err := app.net.Chains().Lookup(target)
	if err != nil {
		return err
	}
	err = withHandlers(func(h wallet.Handlers) error {
		return ui.Wait(os.Stdout, "Confirm the chain change in your wallet...", func() error {
			if add {
				return app.ctrl.AddChain(ctx, c.ID, h)
			}
			return app.ctrl.SetChain(ctx, c.ID, h)
		})
	})
	if err != nil {
		return err
	}
	fmt.Println(ui.Success("Wallet on " + ui.ChainName(c.Name)))
	return nil
}

var walletDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the wallet and forget the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), config.RPCCallTimeout)
		defer cancel()
		app, err := openWallet(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.ctrl.Disconnect(ctx); err != nil {
			return err
		}
		fmt.Println(ui.Success("Wallet disconnected"))
		return nil
	},
}

var walletSignCmd = &cobra.Command{
	Use:   "sign <message>",
	Short: "Sign a message with the connected wallet (personal_sign)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), config.ConnectTimeout)
		defer cancel()
		app, err := openWallet(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		signer, err := app.ctrl.Signer(ctx)
		if err != nil {
			return err
		}
		addr, err := signer.Address(ctx)
		if err != nil {
			return err
		}
		var sig []byte
		err = ui.Wait(os.Stdout, "Confirm the signature in your wallet...", func() error {
			sig, err = signer.SignMessage(ctx, []byte(args[0]))
			return err
		})
		if err != nil {
			return err
		}
		fmt.Println(ui.KeyValueBlock("Signature", [][2]string{
			{"Signer", ui.Addr(addr.Hex())},
			{"Message", ui.Val(args[0])},
			{"Signature", ui.Val(hexutil.Encode(sig))},
		}))
		return nil
	},
}

func printSession(s *wallet.Session, reg *chain.Registry) {
	chainName := ui.Warn("unsupported chain")
	if c, err := reg.Get(s.ChainID()); err == nil {
		chainName = ui.ChainName(c.Name) + ui.Meta(" ("+strconv.FormatUint(c.ID, 10)+")")
	}
	fmt.Println(ui.KeyValueBlock("Wallet", [][2]string{
		{"Connector", ui.Val(s.ConnectorID())},
		{"Address", ui.Addr(s.Address())},
		{"Chain", chainName},
		{"Status", ui.Connection(s.Connected())},
	}))
}

func init() {
	walletCmd.PersistentFlags().StringVar(&keyFlag, "key", "", "key name for the local connector (default: config default_key)")
	walletCmd.AddCommand(walletConnectCmd, walletStatusCmd, walletSwitchCmd, walletAddChainCmd, walletDisconnectCmd, walletSignCmd)
}
