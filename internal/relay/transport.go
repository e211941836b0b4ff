package relay

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

// Transport is one live bidirectional connection to the relay endpoint.
// The manager owns exactly one at a time.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a transport to the given address. Injected so the
// connection state machine can be exercised without a network.
type Dialer func(ctx context.Context, addr string) (Transport, error)

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
	return t.conn.Close(websocket.StatusNormalClosure, "client disconnect")
}

// DialWebsocket is the production dialer.
func DialWebsocket(ctx context.Context, addr string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return &wsTransport{conn: conn}, nil
}

// connectAddr converts the configured relay base URL to a ws(s) URL and
// attaches the identity as query parameters.
func connectAddr(base, userID, token string) string {
	addr := strings.Replace(base, "https://", "wss://", 1)
	addr = strings.Replace(addr, "http://", "ws://", 1)

	params := url.Values{}
	params.Set("userId", userID)
	if token != "" {
		params.Set("token", token)
	}
	sep := "?"
	if strings.Contains(addr, "?") {
		sep = "&"
	}
	return addr + sep + params.Encode()
}
