package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var dialer = websocket.Dialer{
	HandshakeTimeout: 10 * time.Second,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSConn is a Conn backed by a gorilla/websocket connection, framing each
// Envelope as one text message. It extends the read deadline whenever a
// pong arrives; pings are sent only when the caller calls Ping.
type WSConn struct {
	ws *websocket.Conn
}

// DialDownstairs opens a websocket connection to a Downstairs's repair/
// data port.
func DialDownstairs(ctx context.Context, url string) (*WSConn, error) {
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial downstairs %s: %w", url, err)
	}
	c := &WSConn{ws: ws}
	c.armKeepalive()
	return c, nil
}

// AcceptDownstairs upgrades an inbound HTTP connection from a Downstairs.
func AcceptDownstairs(w http.ResponseWriter, r *http.Request) (*WSConn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade connection: %w", err)
	}
	c := &WSConn{ws: ws}
	c.armKeepalive()
	return c, nil
}

func (c *WSConn) armKeepalive() {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// Send marshals env as JSON and writes it as one websocket text message.
func (c *WSConn) Send(ctx context.Context, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Recv blocks for the next Envelope.
func (c *WSConn) Recv(ctx context.Context) (*Envelope, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(deadline)
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &env, nil
}

// Close closes the underlying websocket connection.
func (c *WSConn) Close() error {
	return c.ws.Close()
}

// Ping sends a ping frame; the caller is expected to invoke this on a
// pingPeriod ticker for as long as the connection is idle.
func (c *WSConn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}
