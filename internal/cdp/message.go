package cdp

import (
	"encoding/json"
	"fmt"
)

// Request is an outgoing CDP command.
type Request struct {
	ID        int64  `json:"id"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Event is an unsolicited notification such as Page.loadEventFired.
type Event struct {
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	SessionID string          `json:"sessionId,omitempty"`
}

// Decode unmarshals the event parameters into v.
func (e Event) Decode(v any) error {
	if len(e.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Params, v); err != nil {
		return fmt.Errorf("decode %s params: %w", e.Method, err)
	}
	return nil
}

// Error is a protocol-level failure reported by the browser.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("cdp error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// envelope holds the union of response and event fields.
type envelope struct {
	ID        int64           `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Error          `json:"error,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// parseMessage classifies a frame: a non-zero id is a response, otherwise
// a method makes it an event. Anything else is an error.
func parseMessage(data []byte) (*Response, *Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("parse CDP message: %w", err)
	}

	switch {
	case env.ID != 0:
		return &Response{ID: env.ID, Result: env.Result, Error: env.Error}, nil, nil
	case env.Method != "":
		return nil, &Event{Method: env.Method, Params: env.Params, SessionID: env.SessionID}, nil
	default:
		return nil, nil, fmt.Errorf("unknown CDP message format: %s", string(data))
	}
}
