package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type fakeNode struct {
	mu      sync.Mutex
	calls   []rpcRequest
	results map[string]any
	errs    map[string]string
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls = append(n.calls, req)
	result, hasResult := n.results[req.Method]
	msg, hasErr := n.errs[req.Method]
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch {
	case hasErr:
		resp["error"] = map[string]any{"code": -32000, "message": msg}
	case hasResult:
		resp["result"] = result
	default:
		resp["result"] = nil
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) lastCall(method string) (rpcRequest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.calls) - 1; i >= 0; i-- {
		if n.calls[i].Method == method {
			return n.calls[i], true
		}
	}
	return rpcRequest{}, false
}

func newTestClient(t *testing.T, node *fakeNode) *Client {
	t.Helper()
	if node.results == nil {
		node.results = map[string]any{}
	}
	node.results["eth_chainId"] = "0x38"

	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	c, err := Dial(context.Background(), Config{URL: srv.URL})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestClient_CurrentHeight(t *testing.T) {
	node := &fakeNode{results: map[string]any{"eth_blockNumber": "0x3e8"}}
	c := newTestClient(t, node)

	h, err := c.CurrentHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), h)

	id, err := c.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(56), id.Int64())
}

func TestClient_CurrentHeight_RPCError(t *testing.T) {
	node := &fakeNode{errs: map[string]string{"eth_blockNumber": "upstream unavailable"}}
	c := newTestClient(t, node)

	_, err := c.CurrentHeight(context.Background())
	require.Error(t, err)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "eth_blockNumber", rpcErr.Method)
	assert.False(t, IsNotFound(err))
}

func TestClient_Logs_ScansHalfOpenRange(t *testing.T) {
	contract := common.HexToAddress("0x2119de8f257d27662991198389E15Bf8d1F4aB24")
	txHash := common.HexToHash("0x" + repeat("ab", 32))

	node := &fakeNode{results: map[string]any{
		"eth_getLogs": []map[string]any{
			{
				"address":          contract.Hex(),
				"topics":           []string{},
				"data":             "0x",
				"blockNumber":      "0x3e7",
				"transactionHash":  txHash.Hex(),
				"transactionIndex": "0x1",
				"blockHash":        "0x" + repeat("cd", 32),
				"logIndex":         "0x0",
				"removed":          false,
			},
			{
				"address":          contract.Hex(),
				"topics":           []string{},
				"data":             "0x",
				"blockNumber":      "0x3e8",
				"transactionHash":  "0x" + repeat("ef", 32),
				"transactionIndex": "0x0",
				"blockHash":        "0x" + repeat("01", 32),
				"logIndex":         "0x0",
				"removed":          true,
			},
		},
	}}
	c := newTestClient(t, node)

	logs, err := c.Logs(context.Background(), BlockRange{From: 900, To: 1000}, LogQuery{Contract: contract})
	require.NoError(t, err)
	require.Len(t, logs, 1, "removed logs must be skipped")
	assert.Equal(t, txHash, logs[0].TxHash)
	assert.Equal(t, uint64(999), logs[0].BlockNumber)

	call, ok := node.lastCall("eth_getLogs")
	require.True(t, ok)
	require.Len(t, call.Params, 1)

	var filter struct {
		FromBlock string   `json:"fromBlock"`
		ToBlock   string   `json:"toBlock"`
		Address   []string `json:"address"`
	}
	require.NoError(t, json.Unmarshal(call.Params[0], &filter))
	assert.Equal(t, "0x385", filter.FromBlock) // 901
	assert.Equal(t, "0x3e8", filter.ToBlock)   // 1000
}

func TestClient_Logs_EmptyRangeSkipsCall(t *testing.T) {
	node := &fakeNode{}
	c := newTestClient(t, node)

	logs, err := c.Logs(context.Background(), BlockRange{From: 500, To: 500}, LogQuery{})
	require.NoError(t, err)
	assert.Empty(t, logs)

	_, called := node.lastCall("eth_getLogs")
	assert.False(t, called)
}

func TestClient_Transaction_UnknownHashIsNotFound(t *testing.T) {
	node := &fakeNode{}
	c := newTestClient(t, node)

	_, err := c.Transaction(context.Background(), TxRef{Hash: common.HexToHash("0x01")})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestClient_Transaction_RecoversSenderFromSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	to := common.HexToAddress("0x2119de8f257d27662991198389E15Bf8d1F4aB24")
	value := big.NewInt(30_000_000_000_000_000)

	signer := types.LatestSignerForChainID(big.NewInt(56))
	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    7,
		To:       &to,
		Value:    value,
		Gas:      21000,
		GasPrice: big.NewInt(1_000_000_000),
	}), signer, key)
	require.NoError(t, err)

	raw, err := json.Marshal(tx)
	require.NoError(t, err)
	var rpcTx map[string]any
	require.NoError(t, json.Unmarshal(raw, &rpcTx))
	rpcTx["blockNumber"] = "0x3e8"
	rpcTx["blockHash"] = "0x" + repeat("cd", 32)
	rpcTx["transactionIndex"] = "0x0"

	// no "from" in the payload and no index lookup: the signature is all we have
	node := &fakeNode{results: map[string]any{"eth_getTransactionByHash": rpcTx}}
	c := newTestClient(t, node)

	got, err := c.Transaction(context.Background(), TxRef{
		Hash:        tx.Hash(),
		BlockHash:   common.HexToHash("0x" + repeat("cd", 32)),
		BlockNumber: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), got.Hash)
	assert.Equal(t, from, got.From)
	require.NotNil(t, got.To)
	assert.Equal(t, to, *got.To)
	assert.Equal(t, 0, value.Cmp(got.Value))
	assert.Equal(t, uint64(1000), got.BlockNumber)
}

func TestErrors_Classification(t *testing.T) {
	connErr := errors.Wrap(&ConnectionError{Err: errors.New("ws closed")}, "subscribe")
	assert.True(t, IsConnection(connErr))
	assert.False(t, IsNotFound(connErr))

	nf := errors.Wrap(ErrNotFound, "eth_getTransactionByHash")
	assert.True(t, IsNotFound(nf))
	assert.False(t, IsConnection(nf))
}

func TestBlockRange(t *testing.T) {
	r := BlockRange{From: 900, To: 1000}
	assert.False(t, r.Empty())
	assert.Equal(t, uint64(100), r.Blocks())
	assert.Equal(t, "(900..1000]", r.String())

	assert.True(t, BlockRange{From: 5, To: 5}.Empty())
	assert.Equal(t, uint64(0), BlockRange{From: 5, To: 5}.Blocks())
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
