package tx

import "github.com/ethereum/go-ethereum/common/hexutil"

// knownMethods maps 4-byte selectors to human-readable names.
var knownMethods = map[string]string{
	"0xa9059cbb": "transfer",
	"0x095ea7b3": "approve",
	"0x23b872dd": "transferFrom",
	"0x39509351": "increaseAllowance",
	"0xa457c2d7": "decreaseAllowance",
	"0x7ff36ab5": "swapExactETHForTokens",
	"0x18cbafe5": "swapExactTokensForETH",
	"0x38ed1739": "swapExactTokensForTokens",
	"0x414bf389": "exactInputSingle",
	"0xac9650d8": "multicall",
	"0xe8e33700": "addLiquidity",
	"0xf305d719": "addLiquidityETH",
	"0x6a627842": "mint",
	"0x42966c68": "burn",
	"0x4e71d92d": "claim",
	"0xa694fc3a": "stake",
	"0x2e1a7d4d": "withdraw",
	"0xd0e30db0": "deposit",
	"0x70a08231": "balanceOf",
}

// MethodName names the call encoded in data. Plain transfers give
// "transfer (native)" and unknown selectors give the selector itself.
func MethodName(data []byte) string {
	if len(data) == 0 {
		return "transfer (native)"
	}
	if len(data) < 4 {
		return hexutil.Encode(data)
	}
	sel := hexutil.Encode(data[:4])
	if name, ok := knownMethods[sel]; ok {
		return name
	}
	return sel
}
