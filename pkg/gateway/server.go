package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/ranya-voice/internal/observability"
	"github.com/harun/ranya-voice/pkg/transport"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Server is a websocket endpoint frontends connect to for data messages. It
// implements transport.Publisher and transport.Subscriber.
type Server struct {
	host           string
	port           int
	perMinute      int
	server         *http.Server
	listener       net.Listener
	upgrader       websocket.Upgrader
	clients        *ClientRegistry
	authHandler    *AuthHandler
	logger         zerolog.Logger
	seq            uint64
	handlersMu     sync.RWMutex
	handlers       []transport.DataHandler
	isShuttingDown bool
	shutdownMu     sync.RWMutex
}

// Config holds server configuration
type Config struct {
	Host              string
	Port              int
	SharedSecret      string
	MessagesPerMinute int
	Logger            zerolog.Logger
}

// NewServer creates a new gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}

	observability.EnsureRegistered()

	return &Server{
		host:        cfg.Host,
		port:        cfg.Port,
		perMinute:   cfg.MessagesPerMinute,
		clients:     NewClientRegistry(),
		authHandler: NewAuthHandler(cfg.SharedSecret),
		logger:      cfg.Logger.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Name implements transport.Named.
func (s *Server) Name() string { return "gateway" }

// Handler returns the HTTP handler serving /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.host, s.port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes every client and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	for _, client := range s.clients.Recipients(nil) {
		_ = client.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
	}
	for _, client := range s.clients.All() {
		client.Conn.Close()
	}

	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// OnData implements transport.Subscriber.
func (s *Server) OnData(handler transport.DataHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Publish sends payload to the addressed clients, or to every authenticated
// client when no destinations are given. Broadcasting with nobody connected
// is not an error; addressing a participant that is not connected is.
func (s *Server) Publish(ctx context.Context, payload []byte, opts transport.PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	clients := s.clients.Recipients(opts.Destinations)
	if len(clients) == 0 {
		if opts.Broadcast() {
			s.logger.Debug().Str("topic", opts.Topic).Msg("No authenticated clients to broadcast to")
			return nil
		}
		return fmt.Errorf("%w: no client for %v", transport.ErrNotConnected, opts.Destinations)
	}

	if opts.Topic == transport.TopicAudio {
		return s.deliver(ctx, clients, websocket.BinaryMessage, payload, opts.Topic)
	}

	frame := DataFrame{
		Type:      FrameData,
		Topic:     opts.Topic,
		Seq:       int64(atomic.AddUint64(&s.seq, 1)),
		Timestamp: time.Now().UnixMilli(),
	}
	if isJSONDocument(payload) {
		frame.JSON = json.RawMessage(payload)
	} else {
		frame.Text = string(payload)
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	return s.deliver(ctx, clients, websocket.TextMessage, data, opts.Topic)
}

// deliver writes one message to each client concurrently. It fails only when
// no client received it. A client whose write fails or times out is dropped,
// since its connection can no longer be written to.
func (s *Server) deliver(ctx context.Context, clients []*Client, messageType int, data []byte, topic string) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, client := range clients {
		wg.Add(1)
		go func(client *Client) {
			defer wg.Done()
			err := client.WriteMessage(ctx, messageType, data)
			if err == nil {
				return
			}
			s.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("topic", topic).
				Msg("Failed to send to client")
			if !errors.Is(err, errWriteBusy) {
				s.dropClient(client)
			}
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(client)
	}
	wg.Wait()

	if len(errs) == len(clients) {
		return fmt.Errorf("failed to deliver to any client: %w", errors.Join(errs...))
	}
	return nil
}

// GetConnectedClients returns information about all connected clients
func (s *Server) GetConnectedClients() []ClientInfo {
	return s.clients.Snapshot()
}

func isJSONDocument(b []byte) bool {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '{', '[':
			return json.Valid(b)
		default:
			return false
		}
	}
	return false
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	clientID, err := gonanoid.New()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate client id")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	identity := r.URL.Query().Get("identity")
	if identity == "" {
		identity = clientID
	}

	client := &Client{
		ID:           clientID,
		Identity:     identity,
		Conn:         conn,
		ConnectedAt:  time.Now(),
		LastActivity: time.Now(),
		IPAddress:    r.RemoteAddr,
		Limiter:      NewInboundLimiter(s.perMinute),
		State:        StateConnecting,
	}

	if !s.authHandler.Required() {
		client.Authenticated = true
		client.State = StateAuthenticated
	}

	s.clients.Add(client)
	observability.SetGatewayClients(s.clients.Count())

	s.logger.Info().
		Str("clientId", clientID).
		Str("identity", identity).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	if s.authHandler.Required() {
		if err := s.sendAuthChallenge(client); err != nil {
			s.logger.Error().Err(err).Str("clientId", clientID).Msg("Failed to send auth challenge")
			s.dropClient(client)
			return
		}
	} else if err := client.WriteJSON(context.Background(), AuthResult{Type: FrameAuthSuccess, Success: true}); err != nil {
		s.dropClient(client)
		return
	}

	go s.handleClient(client)
}

func (s *Server) dropClient(client *Client) {
	client.Conn.Close()
	s.clients.Remove(client.ID)
	observability.SetGatewayClients(s.clients.Count())
}

// sendAuthChallenge sends an authentication challenge to a client
func (s *Server) sendAuthChallenge(client *Client) error {
	challenge, err := s.authHandler.GenerateChallenge()
	if err != nil {
		return err
	}

	client.stateMu.Lock()
	client.Challenge = challenge
	client.State = StateAuthenticating
	client.stateMu.Unlock()

	return client.WriteJSON(context.Background(), AuthChallenge{
		Type:      FrameAuthChallenge,
		Challenge: challenge,
		Identity:  client.Identity,
	})
}

// handleClient reads frames from a client until it disconnects
func (s *Server) handleClient(client *Client) {
	defer func() {
		s.dropClient(client)
		s.logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		messageType, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("clientId", client.ID).Msg("WebSocket error")
			}
			return
		}

		s.clients.Touch(client.ID)

		if messageType == websocket.BinaryMessage {
			s.handleAudio(client, message)
			continue
		}

		if !s.handleMessage(client, message) {
			return
		}
	}
}

// handleMessage handles one frame. It returns false when the connection
// should be closed.
func (s *Server) handleMessage(client *Client, message []byte) bool {
	var frame struct {
		Type      string          `json:"type"`
		Signature string          `json:"signature"`
		Topic     string          `json:"topic"`
		Text      string          `json:"text"`
		JSON      json.RawMessage `json:"json"`
	}
	if err := json.Unmarshal(message, &frame); err != nil {
		s.sendError(client, "invalid frame")
		return true
	}

	if frame.Type == FrameAuthResponse {
		return s.handleAuthMessage(client, frame.Signature)
	}

	if !client.IsAuthenticated() {
		s.sendError(client, "authentication required")
		return true
	}

	if frame.Type != FrameData {
		s.sendError(client, "unknown frame type: "+frame.Type)
		return true
	}

	if !client.Limiter.Allow() {
		s.sendError(client, "rate limit exceeded")
		return true
	}

	s.dispatch(transport.DataMessage{
		From:    client.Identity,
		Topic:   frame.Topic,
		Payload: DataFrame{Text: frame.Text, JSON: frame.JSON}.Payload(),
	})
	return true
}

// handleAudio forwards a binary frame as microphone PCM. Audio is not rate
// limited; unauthenticated audio is dropped.
func (s *Server) handleAudio(client *Client, pcm []byte) {
	if !client.IsAuthenticated() {
		s.sendError(client, "authentication required")
		return
	}
	s.dispatch(transport.DataMessage{
		From:    client.Identity,
		Topic:   transport.TopicAudio,
		Payload: pcm,
	})
}

func (s *Server) dispatch(msg transport.DataMessage) {
	s.handlersMu.RLock()
	handlers := append([]transport.DataHandler(nil), s.handlers...)
	s.handlersMu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}

// handleAuthMessage handles authentication messages
func (s *Server) handleAuthMessage(client *Client, signature string) bool {
	result := s.authHandler.HandleAuthResponse(client, signature)

	if err := client.WriteJSON(context.Background(), result); err != nil {
		s.logger.Error().Err(err).Str("clientId", client.ID).Msg("Failed to send auth result")
		return false
	}

	if result.Success {
		s.logger.Info().Str("clientId", client.ID).Msg("Client authenticated")
		return true
	}

	s.logger.Warn().
		Str("clientId", client.ID).
		Str("reason", result.Message).
		Msg("Authentication failed")

	client.stateMu.Lock()
	attempts := client.AuthAttempts
	client.stateMu.Unlock()

	return attempts < maxAuthAttempts
}

// sendError reports a rejected frame to a client
func (s *Server) sendError(client *Client, message string) {
	if err := client.WriteJSON(context.Background(), ErrorFrame{Type: FrameError, Message: message}); err != nil {
		s.logger.Error().
			Err(err).
			Str("clientId", client.ID).
			Msg("Failed to send error frame")
	}
}
