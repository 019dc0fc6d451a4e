package cmd

import (
	"errors"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/eip1193"
	"github.com/Mohsinsiddi/w3link/internal/keys"
	"github.com/Mohsinsiddi/w3link/internal/rpc"
	"github.com/Mohsinsiddi/w3link/internal/ui"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

// explain renders a command error with a hint for the known failure kinds.
func explain(err error) string {
	msg := ui.Err(err.Error())
	if hint := hintFor(err); hint != "" {
		msg += "\n" + ui.Hint(hint)
	}
	return msg
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, wallet.ErrWalletNotConnected), errors.Is(err, wallet.ErrSignerUnavailable):
		return "Connect a wallet first: w3link wallet connect"
	case errors.Is(err, chain.ErrUnsupportedChain):
		return "List the configured chains with: w3link chains"
	case errors.Is(err, eip1193.ErrUserRejected):
		return "The request was rejected in the wallet."
	case errors.Is(err, eip1193.ErrRequestAlreadyPending):
		return "A request is already waiting in the wallet. Resolve it first."
	case errors.Is(err, eip1193.ErrProviderUnavailable):
		return "No wallet found. Start the wallet bridge or pick another connector."
	case errors.Is(err, keys.ErrKeyNotFound):
		return "Import one with: w3link key import <name>"
	case errors.Is(err, rpc.ErrInvalidLimit):
		return "Set limiter.requests_per_interval and limiter.interval_ms first."
	}
	return ""
}
