package rpcserver

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client is a thin synchronous client for the guest control-plane socket,
// used by upstairsctl.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to the daemon's control socket.
func Dial(socketPath string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", socketPath, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Call sends verb with args (marshaled to JSON) and decodes the response's
// Data into out, if out is non-nil.
func (c *Client) Call(verb string, args, out any) error {
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshal args: %w", err)
		}
		raw = b
	}

	line, err := json.Marshal(Request{Verb: verb, Args: raw})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	line = append(line, '\n')

	if _, err := c.conn.Write(line); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	respLine, err := c.reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return nil
}
