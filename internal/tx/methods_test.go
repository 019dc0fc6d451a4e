package tx_test

import (
	"testing"

	"github.com/Mohsinsiddi/w3link/internal/tx"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
)

func TestMethodName(t *testing.T) {
	cases := map[string]string{
		"0x":             "transfer (native)",
		"0xa9059cbb0000": "transfer",
		"0x095ea7b3":     "approve",
		"0xdeadbeef00":   "0xdeadbeef",
		"0x01":           "0x01",
	}
	for data, want := range cases {
		assert.Equal(t, want, tx.MethodName(hexutil.MustDecode(data)), data)
	}
}
