// ABOUTME: WebSocket client for the seqplay protocol
// ABOUTME: Producer side: handshake, unit submission and event delivery
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// HandshakeTimeout bounds the wait for server/hello
const HandshakeTimeout = 5 * time.Second

// Config holds client configuration
type Config struct {
	ServerAddr string
	ClientID   string
	Name       string
	DeviceInfo DeviceInfo
	Logger     *log.Logger
}

// Client is a producer connection to a seqplay host
type Client struct {
	config  Config
	logger  *log.Logger
	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex

	// Events carries player/event messages once subscribed
	Events chan Event
	// Errors carries server/error replies
	Errors chan ServerError

	hello     ServerHello
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewClient creates a new producer client
func NewClient(config Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	logger := config.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("protocol")
	}

	return &Client{
		config: config,
		logger: logger,
		Events: make(chan Event, 256),
		Errors: make(chan ServerError, 16),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Connect dials the host and performs the handshake
func (c *Client) Connect() error {
	return c.ConnectContext(context.Background())
}

// ConnectContext is Connect with a dial context
func (c *Client) ConnectContext(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: Path}
	c.logger.Info("Connecting", "url", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

func (c *Client) handshake() error {
	hello := ClientHello{
		ClientID:   c.config.ClientID,
		Name:       c.config.Name,
		Version:    Version,
		DeviceInfo: &c.config.DeviceInfo,
	}

	if err := c.send(TypeClientHello, hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}
	if env.Type != TypeServerHello {
		return fmt.Errorf("expected %s, got %s", TypeServerHello, env.Type)
	}

	var sh ServerHello
	if err := env.Decode(&sh); err != nil {
		return err
	}

	c.mu.Lock()
	c.hello = sh
	c.mu.Unlock()

	c.logger.Info("Handshake complete", "server", sh.Name, "next", sh.ExpectedNextID, "mode", sh.OutputMode)
	return nil
}

// ServerHello returns the host's handshake reply
func (c *Client) ServerHello() ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hello
}

func (c *Client) send(msgType string, payload interface{}) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()

	if !connected {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(Message{Type: msgType, Payload: payload})
}

func (c *Client) readMessages() {
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				c.logger.Warn("Read error", "err", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Debug("Ignoring non-text frame", "type", messageType)
			continue
		}
		c.handleJSONMessage(data)
	}
}

func (c *Client) handleJSONMessage(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("Failed to parse message", "err", err)
		return
	}

	switch env.Type {
	case TypeEvent:
		var ev Event
		if err := env.Decode(&ev); err != nil {
			c.logger.Warn("Bad event", "err", err)
			return
		}
		select {
		case c.Events <- ev:
		case <-c.ctx.Done():
		}

	case TypeServerError:
		var se ServerError
		if err := env.Decode(&se); err != nil {
			c.logger.Warn("Bad server/error", "err", err)
			return
		}
		c.logger.Debug("Server error", "error", se.Error, "message", se.Message)
		select {
		case c.Errors <- se:
		default:
			c.logger.Warn("Error channel full, dropping", "error", se.Error)
		}

	default:
		c.logger.Debug("Unknown message type", "type", env.Type)
	}
}

// Configure sets the host's start id
func (c *Client) Configure(startPlayID int64) error {
	return c.send(TypeConfigure, Configure{StartPlayID: startPlayID})
}

// Enqueue submits a unit as base64 text
func (c *Client) Enqueue(id UnitID, payload string) error {
	return c.send(TypeEnqueue, Enqueue{ID: id, Payload: payload})
}

// EnqueueBinary submits a unit as a binary frame
func (c *Client) EnqueueBinary(id int64, payload []byte) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()

	if !connected {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, EncodeUnitFrame(id, payload))
}

// Clear discards the host's buffer and stops playback
func (c *Client) Clear() error {
	return c.send(TypeClear, struct{}{})
}

// SetOutputMode switches the host's audio route
func (c *Client) SetOutputMode(mode string) error {
	return c.send(TypeOutputMode, OutputMode{Mode: mode})
}

// Release shuts the host's scheduler down
func (c *Client) Release() error {
	return c.send(TypeRelease, struct{}{})
}

// Subscribe makes this connection the host's event observer
func (c *Client) Subscribe() error {
	return c.send(TypeSubscribe, struct{}{})
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close sends a goodbye and closes the connection
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.RLock()
		connected := c.connected
		c.mu.RUnlock()

		if connected {
			_ = c.send(TypeClientGoodbye, ClientGoodbye{Reason: "shutdown"})
		}

		c.cancel()

		c.mu.Lock()
		c.connected = false
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
	return nil
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
