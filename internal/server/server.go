// ABOUTME: WebSocket bridge exposing the scheduler to remote producers
// ABOUTME: Manages connections, message dispatch and the remote event subscriber
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/harperreed/seqplay/internal/discovery"
	"github.com/harperreed/seqplay/internal/version"
	"github.com/harperreed/seqplay/pkg/payload"
	"github.com/harperreed/seqplay/pkg/protocol"
	"github.com/harperreed/seqplay/pkg/sequencer"
)

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendBuffer    = 256
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	Scheduler  *sequencer.Scheduler

	// Handlers are mounted next to the WebSocket endpoint, e.g. /metrics
	Handlers map[string]http.Handler

	Logger *log.Logger
}

// Server bridges WebSocket producers to a Scheduler. It is also the
// sequencer.Observer that forwards events to the subscribed connection.
type Server struct {
	config   Config
	serverID string
	logger   *log.Logger
	sched    *sequencer.Scheduler

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux
	addr       net.Addr
	ready      chan struct{}

	clients    map[string]*Client
	subscriber *Client
	clientsMu  sync.RWMutex

	mdnsManager *discovery.Manager

	released     chan struct{}
	releasedOnce sync.Once

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client represents a connected producer
type Client struct {
	ID   string
	Name string
	Conn *websocket.Conn

	sendChan   chan interface{}
	closeOnce  sync.Once
	done       chan struct{}
	writerDone chan struct{}
}

// New creates a new server instance
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("server")
	}
	if config.Name == "" {
		config.Name = version.Product
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		logger:   logger,
		sched:    config.Scheduler,
		mux:      http.NewServeMux(),
		ready:    make(chan struct{}),
		clients:  make(map[string]*Client),
		released: make(chan struct{}),
		stopChan: make(chan struct{}),
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// trusted local network only
			if origin := r.Header.Get("Origin"); origin != "" {
				s.logger.Debug("Accepting WebSocket origin", "origin", origin)
			}
			return true
		},
	}

	s.mux.HandleFunc(protocol.Path, s.handleWebSocket)
	for pattern, h := range config.Handlers {
		s.mux.Handle(pattern, h)
	}

	return s
}

// ID returns the server's identity sent in server/hello
func (s *Server) ID() string {
	return s.serverID
}

// Handler returns the HTTP handler serving the bridge and extra routes
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Ready is closed once the listener is bound
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Released is closed once a producer's release has been announced to the
// subscriber
func (s *Server) Released() <-chan struct{} {
	return s.released
}

// Addr returns the bound address, valid after Ready
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Start listens and serves until Stop is called or the listener fails
func (s *Server) Start() error {
	if s.sched == nil {
		return fmt.Errorf("server requires a scheduler")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.addr = ln.Addr()
	close(s.ready)

	s.logger.Info("Server starting", "name", s.config.Name, "id", s.serverID, "addr", s.addr.String())

	if s.config.EnableMDNS {
		port := s.config.Port
		if tcp, ok := s.addr.(*net.TCPAddr); ok {
			port = tcp.Port
		}
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        port,
			Path:        protocol.Path,
			Logger:      s.logger.WithPrefix("mdns"),
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.logger.Warn("Failed to start mDNS advertisement", "err", err)
		}
	}

	s.httpServer = &http.Server{Handler: s.mux}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		s.logger.Info("Server shutting down")
	case err := <-errChan:
		s.logger.Error("HTTP server error", "err", err)
		serverErr = err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown error", "err", err)
	}

	// hijacked websocket connections are not closed by Shutdown;
	// let writers flush before closing them
	s.clientsMu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	flushDeadline := time.After(writeDeadline)
	for _, c := range clients {
		c.close()
		select {
		case <-c.writerDone:
		case <-flushDeadline:
		}
		c.Conn.Close()
	}

	s.wg.Wait()
	s.logger.Info("Server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// OnEvent forwards a scheduler event to the subscribed connection, if any
func (s *Server) OnEvent(e sequencer.Event) {
	s.publish(string(e.Type), e.Data())
}

func (s *Server) publish(eventType string, data map[string]interface{}) {
	s.clientsMu.RLock()
	sub := s.subscriber
	s.clientsMu.RUnlock()

	if sub == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	if err := s.sendMessage(sub, protocol.TypeEvent, protocol.Event{Type: eventType, Data: data}); err != nil {
		s.logger.Warn("Dropping event for subscriber", "client", sub.Name, "type", eventType, "err", err)
	}
}

// Clients returns the names of connected producers
func (s *Server) Clients() []string {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	names := make([]string, 0, len(s.clients))
	for _, c := range s.clients {
		names = append(names, c.Name)
	}
	return names
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	shutdown := s.isShutdown
	s.shutdownMu.RUnlock()
	if shutdown {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade error", "err", err)
		return
	}

	s.logger.Debug("New WebSocket connection", "remote", r.RemoteAddr)
	s.wg.Add(1)
	defer s.wg.Done()
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(protocol.HandshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		s.logger.Warn("Error reading hello", "err", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != protocol.TypeClientHello {
		s.logger.Warn("Expected client/hello", "got", env.Type, "err", err)
		writeDirect(conn, "handshake_required", "first message must be client/hello")
		return
	}

	var hello protocol.ClientHello
	if err := env.Decode(&hello); err != nil {
		writeDirect(conn, "invalid_message", err.Error())
		return
	}
	if hello.ClientID == "" {
		hello.ClientID = uuid.New().String()
	}
	if hello.Name == "" {
		hello.Name = hello.ClientID
	}

	client := &Client{
		ID:         hello.ClientID,
		Name:       hello.Name,
		Conn:       conn,
		sendChan:   make(chan interface{}, sendBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	s.clientsMu.Lock()
	if existing, exists := s.clients[client.ID]; exists {
		s.clientsMu.Unlock()
		s.logger.Warn("Rejecting duplicate client id", "id", client.ID, "name", existing.Name)
		writeDirect(conn, "duplicate_client_id", "Client ID already connected")
		return
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	s.logger.Info("Client connected", "name", client.Name, "id", client.ID)

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		if s.subscriber == client {
			s.subscriber = nil
		}
		s.clientsMu.Unlock()
		client.close()
		s.logger.Info("Client disconnected", "name", client.Name)
	}()

	st := s.sched.Status()
	serverHello := protocol.ServerHello{
		ServerID:       s.serverID,
		Name:           s.config.Name,
		Version:        protocol.Version,
		StartPlayID:    st.StartPlayID,
		ExpectedNextID: st.ExpectedNextID,
		OutputMode:     string(st.Mode),
	}
	if err := s.sendMessage(client, protocol.TypeServerHello, serverHello); err != nil {
		s.logger.Warn("Error sending server hello", "err", err)
		close(client.writerDone)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(client)
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket read error", "client", client.Name, "err", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleBinaryMessage(client, data)
		case websocket.TextMessage:
			if !s.handleClientMessage(client, data) {
				return
			}
		}
	}
}

// clientWriter owns all writes to the connection
func (s *Server) clientWriter(client *Client) {
	defer close(client.writerDone)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-client.sendChan:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("Error marshaling message", "err", err)
				continue
			}
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("Error writing message", "client", client.Name, "err", err)
				client.Conn.Close()
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}

		case <-client.done:
			s.drain(client)
			return
		}
	}
}

// drain flushes messages queued before the connection closed
func (s *Server) drain(client *Client) {
	for {
		select {
		case msg := <-client.sendChan:
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := client.Conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Server) handleBinaryMessage(client *Client, data []byte) {
	id, body, err := protocol.DecodeUnitFrame(data)
	if err != nil {
		s.sendError(client, "invalid_frame", err)
		return
	}
	s.enqueue(client, id, body)
}

// handleClientMessage processes one text frame; false ends the connection
func (s *Server) handleClientMessage(client *Client, data []byte) bool {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.sendError(client, "invalid_message", err)
		return true
	}

	switch env.Type {
	case protocol.TypeConfigure:
		var msg protocol.Configure
		if err := env.Decode(&msg); err != nil {
			s.sendError(client, "invalid_message", err)
			return true
		}
		s.check(client, s.sched.ConfigureStart(msg.StartPlayID))

	case protocol.TypeEnqueue:
		var msg protocol.Enqueue
		if err := env.Decode(&msg); err != nil {
			s.sendError(client, "invalid_message", err)
			return true
		}
		s.handleEnqueue(client, msg)

	case protocol.TypeClear:
		s.check(client, s.sched.Clear())

	case protocol.TypeOutputMode:
		var msg protocol.OutputMode
		if len(env.Payload) > 0 {
			if err := env.Decode(&msg); err != nil {
				s.sendError(client, "invalid_message", err)
				return true
			}
		}
		_, err := s.sched.SetOutputMode(msg.Mode)
		s.check(client, err)

	case protocol.TypeRelease:
		if err := s.sched.Release(); err != nil {
			s.check(client, err)
			return true
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			// released follows every event emitted before the release
			<-s.sched.Done()
			s.publish(protocol.EventReleased, nil)
			s.releasedOnce.Do(func() { close(s.released) })
		}()

	case protocol.TypeSubscribe:
		s.clientsMu.Lock()
		prev := s.subscriber
		s.subscriber = client
		s.clientsMu.Unlock()
		if prev != nil && prev != client {
			s.logger.Info("Subscriber replaced", "old", prev.Name, "new", client.Name)
		}
		s.publish(protocol.EventReady, nil)

	case protocol.TypeClientGoodbye:
		var msg protocol.ClientGoodbye
		_ = env.Decode(&msg)
		s.logger.Info("Client goodbye", "name", client.Name, "reason", msg.Reason)
		return false

	default:
		s.sendError(client, "unknown_type", fmt.Errorf("unknown message type %q", env.Type))
	}
	return true
}

func (s *Server) handleEnqueue(client *Client, msg protocol.Enqueue) {
	raw := string(msg.ID)
	id, err := sequencer.ParseID(raw)
	if err != nil {
		// reported to the subscriber as an error event
		s.check(client, s.sched.EnqueueRaw(raw, nil))
		return
	}

	data, err := payload.Decode(msg.Payload)
	switch {
	case errors.Is(err, sequencer.ErrEmptyPayload):
		s.enqueue(client, id, nil)
	case err != nil:
		s.sendError(client, "decode_failure", err)
		s.check(client, s.sched.EnqueueFailed(id, err))
	default:
		s.enqueue(client, id, data)
	}
}

func (s *Server) enqueue(client *Client, id int64, data []byte) {
	s.check(client, s.sched.Enqueue(id, data))
}

// check answers scheduler errors that the producer needs to hear about.
// Stale ids are dropped silently.
func (s *Server) check(client *Client, err error) {
	switch {
	case err == nil, errors.Is(err, sequencer.ErrStaleID):
	case errors.Is(err, sequencer.ErrInvalidID):
		s.sendError(client, "invalid_id", err)
	case errors.Is(err, sequencer.ErrReleased):
		s.sendError(client, "released", err)
	default:
		s.sendError(client, "rejected", err)
	}
}

func (s *Server) sendError(client *Client, code string, err error) {
	s.logger.Debug("Rejecting message", "client", client.Name, "code", code, "err", err)
	if sendErr := s.sendMessage(client, protocol.TypeServerError, protocol.ServerError{Error: code, Message: err.Error()}); sendErr != nil {
		s.logger.Warn("Error sending server/error", "err", sendErr)
	}
}

func (s *Server) sendMessage(client *Client, msgType string, payload interface{}) error {
	msg := protocol.Message{Type: msgType, Payload: payload}

	select {
	case <-client.done:
		return fmt.Errorf("client closed")
	default:
	}

	select {
	case client.sendChan <- msg:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writeDirect answers before a writer goroutine exists
func writeDirect(conn *websocket.Conn, code, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_ = conn.WriteJSON(protocol.Message{
		Type:    protocol.TypeServerError,
		Payload: protocol.ServerError{Error: code, Message: message},
	})
}
