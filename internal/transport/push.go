package transport

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/LosAICode/neurogen-client/internal/shared"
	"github.com/LosAICode/neurogen-client/internal/track"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// frame is the wire format for push events in both directions.
type frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Channel maintains a persistent WebSocket event connection with automatic
// reconnection. One handler fires per event emission; completion logic
// belongs to the engine, not here.
type Channel struct {
	url    string
	logger *log.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	handlers     map[string]func(map[string]any)
	onConnect    func()
	onDisconnect func(err error)

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

var _ track.PushConn = (*Channel)(nil)

// NewChannel creates an unconnected channel for the given WebSocket URL.
func NewChannel(url string, logger *log.Logger) *Channel {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Channel{
		url:      url,
		logger:   logger,
		handlers: map[string]func(map[string]any){},
		done:     make(chan struct{}),
	}
}

// On registers the handler for a named event, replacing any previous one.
func (c *Channel) On(event string, fn func(payload map[string]any)) {
	c.mu.Lock()
	c.handlers[event] = fn
	c.mu.Unlock()
}

// OnConnect registers a callback invoked after every successful connect,
// including reconnects.
func (c *Channel) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// OnDisconnect registers a callback invoked when the connection drops.
func (c *Channel) OnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// Connect establishes the connection, reusing a live one.
func (c *Channel) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	header := http.Header{"X-Client-ID": []string{shared.ClientID()}}
	conn, _, err := websocket.DefaultDialer.Dial(c.url, header)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPushDisconnected, err)
	}

	c.mu.Lock()
	if c.connected {
		// Lost a race with a concurrent Connect; the established
		// connection stays, this dial is discarded.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.connected = true
	onConnect := c.onConnect
	c.mu.Unlock()

	go c.readLoop(conn)
	c.logger.Debug("push channel connected", "url", c.url)
	if onConnect != nil {
		onConnect()
	}
	return nil
}

// Connected reports whether the channel currently holds a live connection.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send emits a named event to the server.
func (c *Channel) Send(event string, payload map[string]any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return shared.ErrPushDisconnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(frame{Event: event, Data: payload}); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPushDisconnected, err)
	}
	return nil
}

// Close tears the connection down and stops reconnecting. Idempotent.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			c.handleDisconnect(err)
			return
		}

		c.mu.Lock()
		fn := c.handlers[f.Event]
		c.mu.Unlock()
		if fn != nil {
			fn(f.Data)
		} else {
			c.logger.Debug("unhandled push event", "event", f.Event)
		}
	}
}

func (c *Channel) handleDisconnect(err error) {
	select {
	case <-c.done:
		return
	default:
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	onDisconnect := c.onDisconnect
	c.mu.Unlock()

	c.logger.Warn("push channel disconnected", "err", err)
	if onDisconnect != nil {
		onDisconnect(err)
	}
	go c.reconnectLoop()
}

func (c *Channel) reconnectLoop() {
	backoff := reconnectMin
	for {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		if err := c.Connect(); err == nil {
			return
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}
