package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame types exchanged with frontend clients.
const (
	FrameData          = "data"
	FrameAuthChallenge = "auth.challenge"
	FrameAuthResponse  = "auth.response"
	FrameAuthSuccess   = "auth.success"
	FrameAuthFailure   = "auth.failure"
	FrameError         = "error"
)

// DataFrame carries one data message in either direction. JSON payloads are
// embedded as-is; anything else is sent as text.
type DataFrame struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Seq       int64           `json:"seq,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Text      string          `json:"text,omitempty"`
	JSON      json.RawMessage `json:"json,omitempty"`
}

// Payload returns the frame's bytes.
func (f DataFrame) Payload() []byte {
	if len(f.JSON) > 0 {
		return []byte(f.JSON)
	}
	return []byte(f.Text)
}

// AuthChallenge asks the client to sign Challenge together with Identity.
type AuthChallenge struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Identity  string `json:"identity"`
}

// AuthResponse represents a client's authentication response
type AuthResponse struct {
	Type      string `json:"type"`
	Signature string `json:"signature"`
}

// AuthResult represents the result of authentication
type AuthResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorFrame reports a rejected client frame.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientInfo represents information about a connected client
type ClientInfo struct {
	ID            string    `json:"id"`
	Identity      string    `json:"identity"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastActivity  time.Time `json:"lastActivity"`
	IPAddress     string    `json:"ipAddress"`
	Idle          bool      `json:"idle"`
}

// ClientState represents the state of a client connection
type ClientState int

const (
	StateConnecting ClientState = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

// Client represents a connected frontend
type Client struct {
	ID            string
	Identity      string // participant identity used for addressed messages
	Conn          *websocket.Conn
	Authenticated bool
	Challenge     string
	ConnectedAt   time.Time
	LastActivity  time.Time
	IPAddress     string
	AuthAttempts  int
	Limiter       *InboundLimiter
	State         ClientState

	// stateMu guards the authentication fields once the client is registered.
	stateMu sync.Mutex
	// writeSem admits one writer at a time; waiting for it honours ctx.
	writeOnce sync.Once
	writeSem  chan struct{}
}

// IsAuthenticated reports whether the client has passed authentication.
func (c *Client) IsAuthenticated() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.Authenticated
}

// writeWait bounds a single write when the caller's context sets no earlier deadline.
const writeWait = 10 * time.Second

// errWriteBusy means the write never started because another write held the
// connection past the caller's deadline.
var errWriteBusy = errors.New("client busy")

func (c *Client) acquireWrite(ctx context.Context) error {
	c.writeOnce.Do(func() { c.writeSem = make(chan struct{}, 1) })
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errWriteBusy, err)
	}
	select {
	case c.writeSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errWriteBusy, ctx.Err())
	}
}

func (c *Client) releaseWrite() { <-c.writeSem }

func writeDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

// write runs fn with the connection's write deadline taken from ctx.
// Cancelling ctx mid-write expires the deadline at once.
func (c *Client) write(ctx context.Context, fn func() error) error {
	if err := c.acquireWrite(ctx); err != nil {
		return err
	}
	defer c.releaseWrite()

	if err := c.Conn.SetWriteDeadline(writeDeadline(ctx)); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.Conn.NetConn().SetWriteDeadline(time.Now())
	})
	defer stop()

	return fn()
}

func (c *Client) WriteJSON(ctx context.Context, v interface{}) error {
	return c.write(ctx, func() error { return c.Conn.WriteJSON(v) })
}

func (c *Client) WriteMessage(ctx context.Context, messageType int, data []byte) error {
	return c.write(ctx, func() error { return c.Conn.WriteMessage(messageType, data) })
}
