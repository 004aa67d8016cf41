// Package ws implements transport.Transport over a WebSocket chat bridge.
//
// The bridge holds the upstream user session and speaks a small JSON protocol:
//
//	-> {"type":"req","id":"r-1","method":"auth","params":{"token":"..."}}
//	<- {"type":"res","id":"r-1","ok":true,"payload":{"authorized":true}}
//	-> {"type":"req","id":"r-2","method":"message.send","params":{"peer":"@bot","text":"/dni 12345678"}}
//	<- {"type":"event","event":"message","payload":{"sender":"@bot","text":"...","attachments":[...],"date":"..."}}
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/infra/transport"
)

// Error codes the bridge uses for peers that refuse our messages.
var unreachableCodes = map[string]bool{
	"peer_blocked":      true,
	"user_blocked":      true,
	"peer_not_found":    true,
	"bot_unavailable":   true,
	"input_user_banned": true,
}

type wireMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type messagePayload struct {
	Sender      string              `json:"sender"`
	Text        string              `json:"text"`
	Attachments []domain.Attachment `json:"attachments"`
	Date        time.Time           `json:"date"`
}

// Config holds bridge connection settings.
type Config struct {
	URL              string
	Token            string
	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration
}

// Client is a single bridge session.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *slog.Logger

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	nextID  atomic.Int64

	pending   map[string]chan wireMessage
	pendingMu sync.Mutex

	messages  chan domain.IncomingMessage
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates an unconnected client.
func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		log:      log,
		pending:  make(map[string]chan wireMessage),
		messages: make(chan domain.IncomingMessage, 64),
		done:     make(chan struct{}),
	}
}

// NewFactory returns a transport.Factory producing one Client per query.
func NewFactory(cfg Config, log *slog.Logger) transport.Factory {
	return func() transport.Transport {
		return NewClient(cfg, log)
	}
}

// Connect dials the bridge and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	url := c.cfg.URL
	if strings.HasPrefix(url, "https://") {
		url = "wss://" + strings.TrimPrefix(url, "https://")
	} else if strings.HasPrefix(url, "http://") {
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, _, err := c.dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	c.log.Debug("Bridge connected", "url", url)
	return nil
}

// IsAuthorized authenticates the session with the configured token.
func (c *Client) IsAuthorized(ctx context.Context) (bool, error) {
	resp, err := c.request(ctx, "auth", map[string]any{"token": c.cfg.Token})
	if err != nil {
		return false, err
	}
	if !resp.OK {
		return false, nil
	}

	var payload struct {
		Authorized bool `json:"authorized"`
	}
	if len(resp.Payload) > 0 {
		if err := json.Unmarshal(resp.Payload, &payload); err != nil {
			return false, fmt.Errorf("decode auth payload: %w", err)
		}
	}
	return payload.Authorized, nil
}

// Send delivers text to the actor exactly once; it never retries.
func (c *Client) Send(ctx context.Context, actor domain.ActorID, text string) error {
	resp, err := c.request(ctx, "message.send", map[string]any{
		"peer": string(actor),
		"text": text,
	})
	if err != nil {
		return err
	}
	if resp.OK {
		return nil
	}

	if resp.Error != nil {
		if unreachableCodes[resp.Error.Code] {
			return fmt.Errorf("send to %s: %s: %w", actor, resp.Error.Message, domain.ErrActorUnreachable)
		}
		return fmt.Errorf("send to %s rejected: %s: %s", actor, resp.Error.Code, resp.Error.Message)
	}
	return fmt.Errorf("send to %s rejected", actor)
}

// Messages returns the incoming message stream.
func (c *Client) Messages() <-chan domain.IncomingMessage {
	return c.messages
}

// Disconnect closes the connection. The read loop closes the message stream.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		c.shutdown()
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	err := conn.Close()
	<-c.done
	return err
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		close(c.messages)
	})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.shutdown()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug("Bridge read loop ended", "error", err)
			return
		}

		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("Dropping malformed bridge frame", "error", err)
			continue
		}

		switch msg.Type {
		case "res":
			c.pendingMu.Lock()
			ch, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.pendingMu.Unlock()
			if ok {
				ch <- msg
			}

		case "event":
			if msg.Event != "message" {
				continue
			}
			var p messagePayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				c.log.Warn("Dropping malformed message event", "error", err)
				continue
			}
			if p.Date.IsZero() {
				p.Date = time.Now()
			}
			in := domain.IncomingMessage{
				Sender:      domain.ActorID(p.Sender),
				RawText:     p.Text,
				Attachments: p.Attachments,
				ReceivedAt:  p.Date,
			}
			select {
			case c.messages <- in:
			default:
				c.log.Warn("Message buffer full, dropping message", "sender", p.Sender)
			}
		}
	}
}

func (c *Client) request(ctx context.Context, method string, params any) (wireMessage, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return wireMessage{}, transport.ErrNotConnected
	}

	id := fmt.Sprintf("r-%d", c.nextID.Add(1))
	ch := make(chan wireMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}

	data, err := json.Marshal(wireMessage{Type: "req", ID: id, Method: method, Params: params})
	if err != nil {
		forget()
		return wireMessage{}, fmt.Errorf("encode %s: %w", method, err)
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		forget()
		return wireMessage{}, fmt.Errorf("write %s: %w", method, err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		forget()
		return wireMessage{}, fmt.Errorf("timeout waiting for %s response", method)
	case <-ctx.Done():
		forget()
		return wireMessage{}, ctx.Err()
	case <-c.done:
		return wireMessage{}, fmt.Errorf("%s: connection closed", method)
	}
}
