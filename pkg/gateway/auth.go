package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const maxAuthAttempts = 3

// AuthHandler runs the challenge-response handshake. The signature covers the
// participant identity as well as the challenge, so a client holding the
// secret cannot claim another participant's addressed messages with a
// replayed answer. An empty secret accepts every client.
type AuthHandler struct {
	secret []byte
}

func NewAuthHandler(sharedSecret string) *AuthHandler {
	return &AuthHandler{secret: []byte(sharedSecret)}
}

// Required reports whether clients must answer a challenge.
func (a *AuthHandler) Required() bool {
	return len(a.secret) > 0
}

// GenerateChallenge returns 32 random bytes, hex encoded.
func (a *AuthHandler) GenerateChallenge() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate challenge: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Sign is what a frontend sends back: hex(HMAC-SHA256(secret, challenge "\n" identity)).
func Sign(secret, challenge, identity string) string {
	return hex.EncodeToString(mac([]byte(secret), challenge, identity))
}

func mac(secret []byte, challenge, identity string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(challenge))
	h.Write([]byte{'\n'})
	h.Write([]byte(identity))
	return h.Sum(nil)
}

// VerifySignature checks signature against challenge and identity in constant time.
func (a *AuthHandler) VerifySignature(challenge, identity, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(mac(a.secret, challenge, identity), got) == 1
}

// HandleAuthResponse settles the client's pending challenge.
func (a *AuthHandler) HandleAuthResponse(client *Client, signature string) AuthResult {
	client.stateMu.Lock()
	defer client.stateMu.Unlock()

	if client.Challenge == "" {
		return AuthResult{Type: FrameAuthFailure, Message: "No challenge found"}
	}

	if !a.VerifySignature(client.Challenge, client.Identity, signature) {
		client.AuthAttempts++
		if client.AuthAttempts >= maxAuthAttempts {
			return AuthResult{Type: FrameAuthFailure, Message: "Too many failed attempts"}
		}
		return AuthResult{Type: FrameAuthFailure, Message: "Invalid signature"}
	}

	client.Authenticated = true
	client.State = StateAuthenticated
	client.AuthAttempts = 0
	client.Challenge = ""

	return AuthResult{Type: FrameAuthSuccess, Success: true}
}
