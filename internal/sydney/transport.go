// ABOUTME: Transport abstraction over the backend's chat websocket.
// ABOUTME: Production dials via coder/websocket; tests substitute an in-memory fake.

package sydney

import (
	"context"

	"github.com/coder/websocket"
)

// Transport is a persistent bidirectional message socket. Read blocks until
// a payload arrives or ctx is done; one payload may contain several frames.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// DialFunc opens a Transport to the given chat endpoint.
type DialFunc func(ctx context.Context, url string) (Transport, error)

// maxFramePayload bounds a single inbound websocket message. Completion
// frames carry the full message list and can run to several megabytes.
const maxFramePayload = 1 << 24

// dialWebSocket is the production DialFunc.
func dialWebSocket(ctx context.Context, url string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxFramePayload)
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}
