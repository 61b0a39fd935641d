// Package gateway serves a websocket endpoint that frontends connect to
// instead of (or alongside) a LiveKit room. Clients authenticate with an
// HMAC challenge when a shared secret is configured, signing the challenge
// together with their participant identity, then exchange data frames tagged
// with a topic. Binary frames carry raw microphone audio.
package gateway
