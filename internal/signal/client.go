package signal

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"vox_chat/native/internal/domain"

	"github.com/gorilla/websocket"
)

const pingInterval = 25 * time.Second

// frame is the generic relay frame. Outbound frames carry action
// "subscribe" or "publish"; inbound signal deliveries carry action "message".
type frame struct {
	Action  string                `json:"action"`
	Channel string                `json:"channel,omitempty"`
	Data    *domain.SignalMessage `json:"data,omitempty"`
}

// Client manages the WebSocket connection to the signaling relay. The relay
// is a dumb pipe: it fans a published frame out to every other subscriber of
// the channel and guarantees nothing about ordering or delivery.
type Client struct {
	url     string
	token   string
	handler domain.SignalHandler

	mu     sync.Mutex
	conn   *websocket.Conn
	subs   map[string]bool
	closed chan struct{}
}

// NewClient creates a relay client that dispatches inbound signals to handler.
func NewClient(relayURL, token string, handler domain.SignalHandler) *Client {
	return &Client{
		url:     relayURL,
		token:   token,
		handler: handler,
		subs:    make(map[string]bool),
		closed:  make(chan struct{}),
	}
}

// Connect dials the relay and starts the read loop.
func (c *Client) Connect() error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	log.Printf("[signal] connecting to %s", c.url)

	conn, _, err := websocket.DefaultDialer.Dial(c.url, header)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()
	go c.pingLoop()

	return nil
}

// Close shuts down the WebSocket connection. Safe to call multiple times.
func (c *Client) Close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
	}
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
}

// Subscribe registers this client on a channel so inbound signals published
// there are delivered to the handler.
func (c *Client) Subscribe(channel string) error {
	c.mu.Lock()
	already := c.subs[channel]
	c.subs[channel] = true
	c.mu.Unlock()
	if already {
		return nil
	}
	return c.writeFrame(frame{Action: "subscribe", Channel: channel})
}

// Send publishes one signaling message on channel. No retry: the error is
// surfaced to the caller, who decides whether to abort the call.
func (c *Client) Send(channel string, msg domain.SignalMessage) error {
	if err := c.Subscribe(channel); err != nil {
		return err
	}
	return c.writeFrame(frame{Action: "publish", Channel: channel, Data: &msg})
}

func (c *Client) writeFrame(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("relay not connected")
	}
	log.Printf("[signal] >>> %s", string(data))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("relay write: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.Close()

	for {
		select {
		case <-c.closed:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				log.Printf("[signal] read error: %v", err)
			}
			return
		}

		log.Printf("[signal] <<< %s", string(data))

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("[signal] unmarshal error: %v", err)
			continue
		}

		c.dispatch(f)
	}
}

func (c *Client) dispatch(f frame) {
	switch f.Action {
	case "message":
		if f.Data == nil {
			log.Printf("[signal] message frame without data on %s", f.Channel)
			return
		}
		c.handler.HandleSignal(*f.Data)

	case "subscribed", "published":
		// relay acks, no-op

	default:
		log.Printf("[signal] unhandled action: %s", f.Action)
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(
				websocket.PingMessage,
				[]byte{},
				time.Now().Add(5*time.Second),
			)
			c.mu.Unlock()
			if err != nil {
				select {
				case <-c.closed:
				default:
					log.Printf("[signal] ping error: %v", err)
				}
				return
			}
		}
	}
}
