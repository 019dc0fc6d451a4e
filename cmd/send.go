package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/network"
	"github.com/Mohsinsiddi/w3link/internal/tx"
	"github.com/Mohsinsiddi/w3link/internal/ui"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"
)

var (
	sendTo            string
	sendValue         string
	sendData          string
	sendMultiplier    uint64
	sendConfirmations int
	sendYes           bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a transaction from the connected wallet",
	Long: `Send a transaction from the connected wallet on its current chain.

Gas is estimated through the chain's RPC pool and scaled by the gas
multiplier (thousandths, default 2000 = 2x). The command waits for the
configured number of confirmations unless --confirmations 0 is given.

Examples:
  w3link send --to 0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045 --value 0.01
  w3link send --to 0xContract --data 0xa9059cbb... --confirmations 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendTo == "" && sendData == "" {
			return errors.New("--to or --data is required")
		}
		draft, err := buildRequest(sendTo, sendValue, sendData)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), config.TxConfirmTimeout)
		defer cancel()
		app, err := openWallet(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		s := app.ctrl.Session()
		if s == nil || !s.Connected() {
			return wallet.ErrWalletNotConnected
		}
		c, err := app.net.Chains().Get(s.ChainID())
		if err != nil {
			return err
		}

		pairs := [][2]string{
			{"From", ui.Addr(s.Address())},
			{"Chain", ui.ChainName(c.Name)},
		}
		if draft.To != nil {
			pairs = append(pairs, [2]string{"To", ui.Addr(draft.To.Hex())})
		}
		if sendValue != "" {
			pairs = append(pairs, [2]string{"Value", ui.Val(sendValue + " " + c.Currency.Symbol)})
		}
		pairs = append(pairs, [2]string{"Method", ui.Val(tx.MethodName(draft.Data))})
		if len(draft.Data) > 0 {
			pairs = append(pairs, [2]string{"Data", ui.Meta(fmt.Sprintf("%d bytes", len(draft.Data)))})
		}
		fmt.Println(ui.KeyValueBlock("Transaction", pairs))
		if !sendYes && !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Send this transaction?") {
			fmt.Println(ui.Warn("Cancelled"))
			return nil
		}

		opts := network.SendOptions{
			GasMultiplier: sendMultiplier,
			OnSend: func(hash common.Hash) {
				fmt.Println(ui.Success("Sent " + ui.Val(hash.Hex())))
				if c.Explorer != "" {
					fmt.Println(ui.Meta("  " + c.Explorer + "/tx/" + hash.Hex()))
				}
			},
			OnConfirm: func(r *types.Receipt) {
				if r.Status == types.ReceiptStatusSuccessful {
					fmt.Println(ui.Success(fmt.Sprintf("Confirmed in block %s (gas used %d)", r.BlockNumber, r.GasUsed)))
				} else {
					fmt.Println(ui.Err(fmt.Sprintf("Reverted in block %s", r.BlockNumber)))
				}
			},
		}
		if sendConfirmations >= 0 {
			n := uint64(sendConfirmations)
			opts.Confirmations = &n
		}

		receipt, err := app.net.SendTransaction(ctx, draft, opts)
		if err != nil {
			return err
		}
		if receipt != nil && receipt.Status != types.ReceiptStatusSuccessful {
			return errors.New("transaction reverted")
		}
		return nil
	},
}

// buildRequest turns the command line fields into a transaction draft.
// Empty fields stay unset.
func buildRequest(to, value, data string) (tx.Request, error) {
	var req tx.Request
	if to != "" {
		addr, err := parseAddress(to)
		if err != nil {
			return tx.Request{}, err
		}
		req.To = &addr
	}
	if value != "" {
		wei, err := tx.ParseEther(value)
		if err != nil {
			return tx.Request{}, err
		}
		req.Value = (*hexutil.Big)(wei)
	}
	if data != "" {
		b, err := hexutil.Decode(data)
		if err != nil {
			return tx.Request{}, fmt.Errorf("data: %w", err)
		}
		req.Data = b
	}
	return req, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "recipient address")
	sendCmd.Flags().StringVar(&sendValue, "value", "", "amount in ether, e.g. 0.01")
	sendCmd.Flags().StringVar(&sendData, "data", "", "hex call data")
	sendCmd.Flags().Uint64Var(&sendMultiplier, "gas-multiplier", 0, "gas multiplier in thousandths (default: config gas_multiplier)")
	sendCmd.Flags().IntVar(&sendConfirmations, "confirmations", -1, "blocks to wait for, 0 to skip (default: config confirmations)")
	sendCmd.Flags().BoolVarP(&sendYes, "yes", "y", false, "skip the confirmation prompt")
	sendCmd.Flags().StringVar(&keyFlag, "key", "", "key name for the local connector (default: config default_key)")
}
