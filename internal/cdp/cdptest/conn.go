// Package cdptest provides an in-memory cdp.Conn that plays the browser side
// of the protocol for tests.
package cdptest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/coder/websocket"

	"github.com/grantcarthew/stealthfetch/internal/cdp"
)

// ErrNoReply makes a Handler swallow the request so the caller times out.
var ErrNoReply = errors.New("cdptest: no reply")

// errConnClosed mirrors what a real socket returns after close.
var errConnClosed = errors.New("cdptest: connection closed")

// Handler produces the result for one command. Returning a *cdp.Error sends
// a protocol error; ErrNoReply sends nothing.
type Handler func(params json.RawMessage) (any, error)

// Call is a command received from the client.
type Call struct {
	ID     int64
	Method string
	Params json.RawMessage
}

// Conn answers commands from registered handlers. Methods without a handler
// get an empty object result.
type Conn struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
	closed   bool

	incoming chan []byte
	closeCh  chan struct{}
	dropOnce sync.Once
	dropCh   chan struct{}
}

// NewConn returns a Conn with no handlers.
func NewConn() *Conn {
	return &Conn{
		handlers: make(map[string]Handler),
		incoming: make(chan []byte, 1024),
		closeCh:  make(chan struct{}),
		dropCh:   make(chan struct{}),
	}
}

// Handle registers h for method, replacing any earlier handler.
func (c *Conn) Handle(method string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = h
}

// HandleResult always answers method with result.
func (c *Conn) HandleResult(method string, result any) {
	c.Handle(method, func(json.RawMessage) (any, error) { return result, nil })
}

// HandleError always answers method with a protocol error.
func (c *Conn) HandleError(method string, code int, message string) {
	c.Handle(method, func(json.RawMessage) (any, error) {
		return nil, &cdp.Error{Code: code, Message: message}
	})
}

// Emit queues an event for the client.
func (c *Conn) Emit(method string, params any) {
	raw, _ := json.Marshal(params)
	data, _ := json.Marshal(cdp.Event{Method: method, Params: raw})
	c.incoming <- data
}

// Drop simulates the browser going away without a close handshake.
func (c *Conn) Drop() {
	c.dropOnce.Do(func() { close(c.dropCh) })
}

// Calls returns every command received so far, in order.
func (c *Conn) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Methods returns the method names of Calls.
func (c *Conn) Methods() []string {
	calls := c.Calls()
	out := make([]string, len(calls))
	for i, call := range calls {
		out[i] = call.Method
	}
	return out
}

// Find returns the first received call for method.
func (c *Conn) Find(method string) (Call, bool) {
	for _, call := range c.Calls() {
		if call.Method == method {
			return call, true
		}
	}
	return Call{}, false
}

// Closed reports whether the client closed the connection.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case data := <-c.incoming:
		return websocket.MessageText, data, nil
	case <-c.closeCh:
		return 0, nil, errConnClosed
	case <-c.dropCh:
		return 0, nil, errConnClosed
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *Conn) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	var req struct {
		ID     int64           `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(p, &req); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errConnClosed
	}
	c.calls = append(c.calls, Call{ID: req.ID, Method: req.Method, Params: req.Params})
	h := c.handlers[req.Method]
	c.mu.Unlock()

	var result any = struct{}{}
	var err error
	if h != nil {
		result, err = h(req.Params)
	}
	if errors.Is(err, ErrNoReply) {
		return nil
	}

	resp := cdp.Response{ID: req.ID}
	var cdpErr *cdp.Error
	switch {
	case errors.As(err, &cdpErr):
		resp.Error = cdpErr
	case err != nil:
		resp.Error = &cdp.Error{Code: -32000, Message: err.Error()}
	default:
		raw, mErr := json.Marshal(result)
		if mErr != nil {
			return mErr
		}
		resp.Result = raw
	}

	data, _ := json.Marshal(resp)
	c.incoming <- data
	return nil
}

func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
	return nil
}
