package rpc_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// ---------------------------------------------------------------------------
// rpcServer: httptest JSON-RPC node supporting single and batch requests
// ---------------------------------------------------------------------------

type rpcReq struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResp struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcErr         `json:"error,omitempty"`
}

type handlerFunc func(method string, params []json.RawMessage) (any, *rpcErr)

type rpcServer struct {
	*httptest.Server
	posts atomic.Int64
}

func newRPCServer(t *testing.T, h handlerFunc) *rpcServer {
	t.Helper()
	s := &rpcServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.posts.Add(1)
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")

		answer := func(req rpcReq) rpcResp {
			result, e := h(req.Method, req.Params)
			return rpcResp{JSONRPC: "2.0", ID: req.ID, Result: result, Error: e}
		}

		if len(body) > 0 && body[0] == '[' {
			var reqs []rpcReq
			_ = json.Unmarshal(body, &reqs)
			resps := make([]rpcResp, len(reqs))
			for i, req := range reqs {
				resps[i] = answer(req)
			}
			_ = json.NewEncoder(w).Encode(resps)
			return
		}
		var req rpcReq
		_ = json.Unmarshal(body, &req)
		_ = json.NewEncoder(w).Encode(answer(req))
	}))
	t.Cleanup(s.Close)
	return s
}

// hitLog records which named server answered, in order.
type hitLog struct {
	mu   sync.Mutex
	hits []string
}

func (l *hitLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits = append(l.hits, name)
}

func (l *hitLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.hits...)
}

// blockServer answers eth_blockNumber with block and logs its name.
func blockServer(t *testing.T, name string, block string, log *hitLog) *rpcServer {
	return newRPCServer(t, func(method string, _ []json.RawMessage) (any, *rpcErr) {
		if log != nil {
			log.add(name)
		}
		return block, nil
	})
}
