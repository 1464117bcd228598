package bybit

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the slice of a websocket connection the session needs. The gorilla
// *websocket.Conn satisfies it; tests substitute scripted connections.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens one connection to the realtime endpoint.
type Dialer func(ctx context.Context, endpoint string) (Conn, error)

const dialHandshakeTimeout = 10 * time.Second

func dialWebsocket(ctx context.Context, endpoint string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
