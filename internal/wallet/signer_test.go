package wallet_test

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/Mohsinsiddi/w3link/internal/eip1193"
	"github.com/Mohsinsiddi/w3link/internal/tx"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerPreparesThroughWallet(t *testing.T) {
	var sent json.RawMessage
	p := eip1193.NewFake().
		Reply("eth_estimateGas", "0x5208").
		Reply("eth_call", "0x2a").
		Handle("eth_sendTransaction", func(params json.RawMessage) (any, error) {
			sent = params
			return common.HexToHash("0x01"), nil
		})
	signer := wallet.NewSigner(p, common.HexToAddress(account))

	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	prepared, err := tx.Initialize(context.Background(), tx.Request{
		To:    &to,
		Value: (*hexutil.Big)(big.NewInt(1)),
	}, signer, tx.DefaultGasMultiplier, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(42000), prepared.Gas())
	assert.Equal(t, common.HexToAddress(account), prepared.From())

	out, err := prepared.Call(context.Background(), tx.Request{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2a}, out)

	hash, err := prepared.Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x01"), hash)

	var reqs []map[string]string
	require.NoError(t, json.Unmarshal(sent, &reqs))
	require.Len(t, reqs, 1)
	assert.Equal(t, "0xa410", reqs[0]["gas"])
	assert.Equal(t, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", reqs[0]["from"])
}

func TestSignerSignMessage(t *testing.T) {
	var params []string
	p := eip1193.NewFake().Handle("personal_sign", func(raw json.RawMessage) (any, error) {
		require.NoError(t, json.Unmarshal(raw, &params))
		return "0xdeadbeef", nil
	})
	sig, err := wallet.NewSigner(p, common.HexToAddress(account)).SignMessage(context.Background(), []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, sig)
	assert.Equal(t, []string{"0x6869", "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"}, params)
}
