package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// MaxMessageSize is the largest single CDP message accepted from the browser.
const MaxMessageSize = 256 << 20

// DefaultTimeout bounds a single CDP command when the caller's context
// carries no deadline.
const DefaultTimeout = 30 * time.Second

// ErrClientClosed is returned for commands issued after the connection went away.
var ErrClientClosed = errors.New("cdp client is closed")

// Client speaks CDP over a single WebSocket connection. Commands are
// correlated with responses by ID; events fan out to subscribers.
type Client struct {
	conn    Conn
	timeout time.Duration
	writeMu sync.Mutex
	msgID   atomic.Int64

	pending   sync.Map // map[int64]chan *Response
	listeners sync.Map // map[string]*eventHandlers
	handlerID atomic.Int64

	closed   atomic.Bool
	closedCh chan struct{}
	closeErr error
	closeMu  sync.Mutex

	// done is closed when readLoop returns
	done chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout replaces DefaultTimeout for commands issued without a
// deadline. Zero or less disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient wraps conn and starts reading from it.
func NewClient(conn Conn, opts ...Option) *Client {
	c := &Client{
		conn:     conn,
		timeout:  DefaultTimeout,
		closedCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// Dial opens a WebSocket to a target's debugger URL.
// Screenshots and full documents exceed the websocket default read limit
// of 32KiB, so the limit is raised to MaxMessageSize.
func Dial(ctx context.Context, wsURL string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to CDP endpoint: %w", err)
	}
	conn.SetReadLimit(MaxMessageSize)
	return NewClient(conn), nil
}

// SendContext issues a command and blocks until its response, ctx expiry,
// or connection loss. A ctx without a deadline is bounded by the client
// timeout.
func (c *Client) SendContext(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id := c.msgID.Add(1)
	data, err := json.Marshal(Request{
		ID:     id,
		Method: method,
		Params: params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", method, err)
	}

	// Register before writing so a fast response is never dropped.
	respCh := make(chan *Response, 1)
	c.pending.Store(id, respCh)
	defer c.pending.Delete(id)

	c.writeMu.Lock()
	err = c.conn.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s timed out: %w", method, ctx.Err())
	case <-c.closedCh:
		return nil, fmt.Errorf("%s: %w", method, ErrClientClosed)
	}
}

// Call is SendContext followed by decoding the result into out.
// A nil out discards the result.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	raw, err := c.SendContext(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Subscribe registers handler for events named method and returns a
// function that removes it. Handlers run on the read goroutine and must
// not block on further commands; spawn a goroutine for that.
func (c *Client) Subscribe(method string, handler func(Event)) (unsubscribe func()) {
	actual, _ := c.listeners.LoadOrStore(method, &eventHandlers{})
	handlers := actual.(*eventHandlers)
	id := c.handlerID.Add(1)
	handlers.add(id, handler)
	return func() { handlers.remove(id) }
}

// WaitFor blocks until the next event named method arrives. The
// subscription starts on entry; events dispatched earlier are missed.
func (c *Client) WaitFor(ctx context.Context, method string) (Event, error) {
	ch := make(chan Event, 1)
	unsubscribe := c.Subscribe(method, func(e Event) {
		select {
		case ch <- e:
		default:
		}
	})
	defer unsubscribe()

	select {
	case e := <-ch:
		return e, nil
	case <-ctx.Done():
		return Event{}, fmt.Errorf("waiting for %s: %w", method, ctx.Err())
	case <-c.closedCh:
		return Event{}, fmt.Errorf("waiting for %s: %w", method, ErrClientClosed)
	}
}

// Close shuts the connection and waits for the read loop to exit.
// Calling Close more than once is safe.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		<-c.done
		return nil
	}

	close(c.closedCh)

	c.closeMu.Lock()
	err := c.conn.Close(websocket.StatusNormalClosure, "client closing")
	c.closeMu.Unlock()

	<-c.done

	return err
}

// Done is closed once the connection is gone, whether closed locally or by
// the browser.
func (c *Client) Done() <-chan struct{} {
	return c.closedCh
}

// Err reports the read error that terminated the connection, if any.
func (c *Client) Err() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeErr
}

func (c *Client) readLoop() {
	defer close(c.done)

	ctx := context.Background()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if !c.closed.Swap(true) {
				c.closeMu.Lock()
				c.closeErr = err
				c.closeMu.Unlock()
				close(c.closedCh)
			}
			return
		}

		resp, evt, err := parseMessage(data)
		if err != nil {
			continue
		}

		if resp != nil {
			c.dispatchResponse(resp)
		} else if evt != nil {
			c.dispatchEvent(evt)
		}
	}
}

func (c *Client) dispatchResponse(resp *Response) {
	ch, ok := c.pending.Load(resp.ID)
	if !ok {
		return
	}
	select {
	case ch.(chan *Response) <- resp:
	default:
	}
}

func (c *Client) dispatchEvent(evt *Event) {
	if actual, ok := c.listeners.Load(evt.Method); ok {
		actual.(*eventHandlers).call(*evt)
	}
}

type eventHandler struct {
	id int64
	fn func(Event)
}

// eventHandlers is a copy-on-write handler list for one event method.
type eventHandlers struct {
	mu       sync.RWMutex
	handlers []eventHandler
}

func (h *eventHandlers) add(id int64, fn func(Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	next := make([]eventHandler, len(h.handlers), len(h.handlers)+1)
	copy(next, h.handlers)
	h.handlers = append(next, eventHandler{id: id, fn: fn})
}

func (h *eventHandlers) remove(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	next := make([]eventHandler, 0, len(h.handlers))
	for _, eh := range h.handlers {
		if eh.id != id {
			next = append(next, eh)
		}
	}
	h.handlers = next
}

func (h *eventHandlers) call(evt Event) {
	h.mu.RLock()
	handlers := h.handlers
	h.mu.RUnlock()

	for _, eh := range handlers {
		eh.fn(evt)
	}
}
