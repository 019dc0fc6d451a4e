// Package relaytest provides an in-process relay server for tests.
package relaytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/Mohsinsiddi/w3link/internal/relay"
	"github.com/gorilla/websocket"
)

// PairFunc decides a pairing proposal.
type PairFunc func(p relay.PairParams) (*relay.Session, *relay.Error)

// RequestFunc answers a forwarded wallet request.
type RequestFunc func(r relay.RequestParams) (any, *relay.Error)

// Server is a websocket relay backed by scripted handlers.
type Server struct {
	URL string

	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu            sync.Mutex
	conns         []*websocket.Conn
	writeMu       sync.Mutex
	onPair        PairFunc
	onRequest     RequestFunc
	disconnectErr *relay.Error
	pairs         []relay.PairParams
	requests      []relay.RequestParams
	disconnects   []string
}

// NewServer starts a relay that approves every pairing with the proposed
// chains and methods under topic "topic-1".
func NewServer() *Server {
	s := &Server{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	s.onPair = Approve("topic-1", "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	s.onRequest = func(relay.RequestParams) (any, *relay.Error) {
		return nil, &relay.Error{Code: 4200, Message: "unsupported"}
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	s.URL = "ws" + strings.TrimPrefix(s.srv.URL, "http")
	return s
}

// Approve returns a PairFunc approving every proposed chain for address.
func Approve(topic, address string) PairFunc {
	return func(p relay.PairParams) (*relay.Session, *relay.Error) {
		ns := relay.Namespace{}
		for _, group := range []map[string]relay.Namespace{p.RequiredNamespaces, p.OptionalNamespaces} {
			proposed := group[relay.EIP155]
			ns.Chains = append(ns.Chains, proposed.Chains...)
			ns.Methods = append(ns.Methods, proposed.Methods...)
			ns.Events = append(ns.Events, proposed.Events...)
		}
		for _, c := range ns.Chains {
			ns.Accounts = append(ns.Accounts, c+":"+address)
		}
		return &relay.Session{Topic: topic, Namespaces: map[string]relay.Namespace{relay.EIP155: ns}}, nil
	}
}

// OnPair replaces the pairing handler.
func (s *Server) OnPair(fn PairFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPair = fn
}

// OnRequest replaces the request handler.
func (s *Server) OnRequest(fn RequestFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRequest = fn
}

// FailDisconnect makes relay_disconnect return err.
func (s *Server) FailDisconnect(err *relay.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectErr = err
}

// Pairs returns every pairing proposal received.
func (s *Server) Pairs() []relay.PairParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relay.PairParams(nil), s.pairs...)
}

// Requests returns every forwarded request received.
func (s *Server) Requests() []relay.RequestParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relay.RequestParams(nil), s.requests...)
}

// Disconnects returns the topics of every relay_disconnect received.
func (s *Server) Disconnects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.disconnects...)
}

// Push sends an event to every connected client.
func (s *Server) Push(ev relay.Event) {
	params, _ := json.Marshal(ev)
	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		s.send(c, map[string]any{"jsonrpc": "2.0", "method": relay.MethodEvent, "params": json.RawMessage(params)})
	}
}

// Close shuts the server down.
func (s *Server) Close() {
	s.mu.Lock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.srv.Close()
}

type inbound struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	for {
		var in inbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		result, rerr := s.handle(in)
		resp := map[string]any{"jsonrpc": "2.0", "id": in.ID}
		if rerr != nil {
			resp["error"] = rerr
		} else {
			resp["result"] = result
		}
		s.send(conn, resp)
	}
}

func (s *Server) handle(in inbound) (any, *relay.Error) {
	s.mu.Lock()
	onPair, onRequest, disconnectErr := s.onPair, s.onRequest, s.disconnectErr
	s.mu.Unlock()

	switch in.Method {
	case relay.MethodPair:
		var p relay.PairParams
		if err := json.Unmarshal(in.Params, &p); err != nil {
			return nil, &relay.Error{Code: -32602, Message: err.Error()}
		}
		s.mu.Lock()
		s.pairs = append(s.pairs, p)
		s.mu.Unlock()
		session, rerr := onPair(p)
		if rerr != nil {
			return nil, rerr
		}
		return session, nil
	case relay.MethodRequest:
		var p relay.RequestParams
		if err := json.Unmarshal(in.Params, &p); err != nil {
			return nil, &relay.Error{Code: -32602, Message: err.Error()}
		}
		s.mu.Lock()
		s.requests = append(s.requests, p)
		s.mu.Unlock()
		return onRequest(p)
	case relay.MethodDisconnect:
		var p struct {
			Topic string `json:"topic"`
		}
		_ = json.Unmarshal(in.Params, &p)
		s.mu.Lock()
		s.disconnects = append(s.disconnects, p.Topic)
		s.mu.Unlock()
		if disconnectErr != nil {
			return nil, disconnectErr
		}
		return true, nil
	default:
		return nil, &relay.Error{Code: -32601, Message: "method not found"}
	}
}

func (s *Server) send(c *websocket.Conn, v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = c.WriteJSON(v)
}
