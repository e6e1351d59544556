package signaling

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one peer's registration on the relay. Incoming messages are
// delivered on Messages until the connection drops, then the channel closes.
type Client struct {
	id       string
	conn     *websocket.Conn
	mu       sync.Mutex
	messages chan Message
	done     chan struct{}
	once     sync.Once
}

// Dial registers id on the relay at baseURL (http or ws scheme) and waits for
// the open acknowledgement.
func Dial(ctx context.Context, baseURL, id string) (*Client, error) {
	endpoint, err := signalURL(baseURL, id)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling relay: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	var open Message
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	if err := conn.ReadJSON(&open); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read signaling open: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if open.Type != TypeOpen {
		_ = conn.Close()
		return nil, fmt.Errorf("signaling registration refused: %s", open.Error)
	}

	c := &Client{
		id:       open.To,
		conn:     conn,
		messages: make(chan Message, 64),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func signalURL(baseURL, id string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse signaling url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path += "/signal"
	q := u.Query()
	if id != "" {
		q.Set("id", id)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ID is the peer id the relay registered, which may have been generated.
func (c *Client) ID() string { return c.id }

func (c *Client) Messages() <-chan Message { return c.messages }

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Send(msg Message) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	msg.From = c.id
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *Client) readLoop() {
	defer close(c.messages)
	defer c.shutdown()
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) Close() error {
	c.shutdown()
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}
