package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrNotConfigured = errors.New("realtime: no transport configured")
	ErrNotConnected  = errors.New("realtime: not connected")
	ErrUnauthorized  = errors.New("realtime: channel authorization refused")
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// Handler receives events published on a subscribed channel. data is the
// event payload with any string-encoding removed.
type Handler func(event string, data []byte)

// Connector is a live connection to the pub/sub service.
type Connector interface {
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Unsubscribe(channel string) error
	SetToken(token string)
	Close() error
}

// Liveness is implemented by connectors that can report a dropped connection.
type Liveness interface {
	Done() <-chan struct{}
}

// Dropped reports whether conn is known to have lost its connection.
func Dropped(conn Connector) bool {
	l, ok := conn.(Liveness)
	if !ok {
		return false
	}
	select {
	case <-l.Done():
		return true
	default:
		return false
	}
}

type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type subscribeData struct {
	Channel     string `json:"channel"`
	Auth        string `json:"auth,omitempty"`
	ChannelData string `json:"channel_data,omitempty"`
}

type establishedData struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

// PusherClient is a Pusher protocol client over a websocket.
type PusherClient struct {
	auth     *Authorizer
	socketID string

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu       sync.RWMutex
	handlers map[string]Handler

	done      chan struct{}
	closeOnce sync.Once
}

// DialPusher connects to url and waits for the connection_established frame.
func DialPusher(ctx context.Context, url string, auth *Authorizer) (*PusherClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", redactURL(url), err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var first frame
	if err := conn.ReadJSON(&first); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	if first.Event != "pusher:connection_established" {
		conn.Close()
		return nil, fmt.Errorf("unexpected handshake event %q: %s", first.Event, unwrapData(first.Data))
	}
	var established establishedData
	if err := json.Unmarshal(unwrapData(first.Data), &established); err != nil || established.SocketID == "" {
		conn.Close()
		return nil, fmt.Errorf("handshake without socket id")
	}
	_ = conn.SetReadDeadline(time.Time{})

	c := &PusherClient{
		auth:     auth,
		socketID: established.SocketID,
		conn:     conn,
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	log.Printf("realtime connected socket_id=%s", c.socketID)
	return c, nil
}

func (c *PusherClient) SocketID() string {
	return c.socketID
}

// Done is closed when the read loop exits.
func (c *PusherClient) Done() <-chan struct{} {
	return c.done
}

func (c *PusherClient) SetToken(token string) {
	if c.auth != nil {
		c.auth.SetToken(token)
	}
}

// Subscribe joins channel. Private and presence channels are authorized first.
func (c *PusherClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	data := subscribeData{Channel: channel}
	if strings.HasPrefix(channel, "private-") || strings.HasPrefix(channel, "presence-") {
		if c.auth == nil {
			return fmt.Errorf("subscribe %s: %w", channel, ErrUnauthorized)
		}
		signed, err := c.auth.Authorize(ctx, c.socketID, channel)
		if err != nil {
			return err
		}
		data.Auth, data.ChannelData = signed.Auth, signed.ChannelData
	}

	c.mu.Lock()
	c.handlers[channel] = handler
	c.mu.Unlock()

	if err := c.send("pusher:subscribe", data); err != nil {
		c.mu.Lock()
		delete(c.handlers, channel)
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *PusherClient) Unsubscribe(channel string) error {
	c.mu.Lock()
	delete(c.handlers, channel)
	c.mu.Unlock()
	return c.send("pusher:unsubscribe", subscribeData{Channel: channel})
}

// Close ends the connection and waits for the read loop.
func (c *PusherClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	<-c.done
	return err
}

func (c *PusherClient) send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(frame{Event: event, Data: raw})
}

func (c *PusherClient) readLoop() {
	defer close(c.done)
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrCloseSent) {
				log.Printf("realtime read loop stopped socket_id=%s err=%v", c.socketID, err)
			}
			return
		}
		c.dispatch(f)
	}
}

func (c *PusherClient) dispatch(f frame) {
	switch f.Event {
	case "pusher:ping":
		if err := c.send("pusher:pong", struct{}{}); err != nil {
			log.Printf("realtime pong failed socket_id=%s err=%v", c.socketID, err)
		}
	case "pusher_internal:subscription_succeeded":
		log.Printf("realtime subscribed channel=%s", f.Channel)
	case "pusher:subscription_error":
		log.Printf("realtime subscription refused channel=%s data=%s", f.Channel, unwrapData(f.Data))
		c.mu.Lock()
		delete(c.handlers, f.Channel)
		c.mu.Unlock()
	case "pusher:error":
		log.Printf("realtime server error data=%s", unwrapData(f.Data))
	default:
		if f.Channel == "" {
			return
		}
		c.mu.RLock()
		handler := c.handlers[f.Channel]
		c.mu.RUnlock()
		if handler != nil {
			handler(f.Event, unwrapData(f.Data))
		}
	}
}

// unwrapData removes the string encoding Pusher servers apply to payloads.
func unwrapData(raw json.RawMessage) []byte {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []byte(s)
		}
	}
	return raw
}

func redactURL(u string) string {
	if i := strings.Index(u, "?"); i >= 0 {
		return u[:i]
	}
	return u
}
