package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClosed is returned for calls on a closed client.
var ErrClosed = errors.New("relay connection closed")

const writeTimeout = 10 * time.Second

// Client is a connection to a relay server. It is safe for concurrent use.
type Client struct {
	conn     *websocket.Conn
	clientID string
	log      *zap.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]chan message
	listeners map[int]func(Event)
	nextID    int
	err       error
	done      chan struct{}
}

// Option configures Dial.
type Option func(*options)

type options struct {
	projectID string
	header    http.Header
	log       *zap.Logger
	dialer    *websocket.Dialer
}

// WithProjectID sends the project id as a query parameter.
func WithProjectID(id string) Option {
	return func(o *options) { o.projectID = id }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithHeader adds handshake headers.
func WithHeader(h http.Header) Option {
	return func(o *options) { o.header = h }
}

// Dial connects to the relay at rawURL.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Client, error) {
	o := options{log: zap.NewNop(), dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing relay url: %w", err)
	}
	if o.projectID != "" {
		q := u.Query()
		q.Set("projectId", o.projectID)
		u.RawQuery = q.Encode()
	}

	conn, _, err := o.dialer.DialContext(ctx, u.String(), o.header)
	if err != nil {
		return nil, fmt.Errorf("dialing relay %s: %w", u.Redacted(), err)
	}

	c := &Client{
		conn:      conn,
		clientID:  uuid.NewString(),
		log:       o.log.Named("relay"),
		pending:   make(map[string]chan message),
		listeners: make(map[int]func(Event)),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// ClientID is the id this client pairs with.
func (c *Client) ClientID() string { return c.clientID }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Pair proposes a session and blocks until the remote wallet approves or
// rejects it.
func (c *Client) Pair(ctx context.Context, p PairParams) (*Session, error) {
	if p.ClientID == "" {
		p.ClientID = c.clientID
	}
	var s Session
	if err := c.call(ctx, MethodPair, p, &s); err != nil {
		return nil, err
	}
	if s.Topic == "" {
		return nil, errors.New("relay returned a session without topic")
	}
	return &s, nil
}

// Request forwards a wallet request within a session.
func (c *Client) Request(ctx context.Context, topic, chainID, method string, params any) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, MethodRequest, RequestParams{
		Topic:   topic,
		ChainID: chainID,
		Request: InnerRequest{Method: method, Params: params},
	}, &out)
	return out, err
}

// Disconnect ends a session.
func (c *Client) Disconnect(ctx context.Context, topic string) error {
	return c.call(ctx, MethodDisconnect, map[string]string{"topic": topic}, nil)
}

// OnEvent registers fn for pushed events. The returned function removes it.
// fn runs on the read loop and must not wait on calls to this client.
func (c *Client) OnEvent(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Close closes the connection and fails pending calls.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding %s params: %w", method, err)
	}
	id := uuid.NewString()
	ch := make(chan message, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return c.err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(message{JSONRPC: "2.0", ID: id, Method: method, Params: raw}); err != nil {
		return err
	}
	c.log.Debug("relay call", zap.String("method", method), zap.String("id", id))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.closeErr()
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
		return nil
	}
}

func (c *Client) write(m message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(m); err != nil {
		return fmt.Errorf("writing to relay: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var m message
		if err := c.conn.ReadJSON(&m); err != nil {
			c.mu.Lock()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.err = ErrClosed
			} else {
				c.err = fmt.Errorf("%w: %w", ErrClosed, err)
			}
			c.mu.Unlock()
			return
		}

		switch {
		case m.ID != "":
			c.mu.Lock()
			ch := c.pending[m.ID]
			c.mu.Unlock()
			if ch == nil {
				c.log.Debug("response for unknown request", zap.String("id", m.ID))
				continue
			}
			select {
			case ch <- m:
			default:
			}
		case m.Method == MethodEvent:
			var ev Event
			if err := json.Unmarshal(m.Params, &ev); err != nil {
				c.log.Warn("malformed relay event", zap.Error(err))
				continue
			}
			c.dispatch(ev)
		default:
			c.log.Debug("ignoring relay message", zap.String("method", m.Method))
		}
	}
}

func (c *Client) dispatch(ev Event) {
	c.mu.Lock()
	fns := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}
