package vcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the connection to the CSMS. Implementations must support one
// concurrent reader and one concurrent writer; the engine serializes writes
// itself.
type Transport interface {
	Connect(ctx context.Context, endpoint string, header http.Header, subprotocol string) error
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

const defaultHandshakeTimeout = 30 * time.Second

// WebSocketTransport carries OCPP-J frames over a gorilla/websocket client
// connection.
type WebSocketTransport struct {
	conn *websocket.Conn
}

func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{}
}

func (t *WebSocketTransport) Connect(ctx context.Context, endpoint string, header http.Header, subprotocol string) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: defaultHandshakeTimeout,
		Subprotocols:     []string{subprotocol},
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("vcp: websocket handshake with %v failed (%v): %w", endpoint, resp.Status, err)
		}
		return fmt.Errorf("vcp: websocket dial %v failed: %w", endpoint, err)
	}
	t.conn = conn
	return nil
}

func (t *WebSocketTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *WebSocketTransport) WriteMessage(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WebSocketTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return t.conn.Close()
}
