// Package livekit joins a LiveKit room as the agent participant and uses its
// data channel as a transport.Publisher.
package livekit
