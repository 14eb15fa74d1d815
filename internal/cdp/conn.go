// Package cdp is a small Chrome DevTools Protocol client: JSON commands
// correlated by ID, plus event subscriptions, over one WebSocket.
package cdp

import (
	"context"

	"github.com/coder/websocket"
)

// Conn is the subset of *websocket.Conn the client uses. Tests substitute
// in-memory implementations.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}
