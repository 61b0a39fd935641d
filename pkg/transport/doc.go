// Package transport defines how data messages reach the frontend.
//
// A Publisher is the non-owning handle the assistant holds. Concrete
// transports live in pkg/livekit, pkg/gateway and pkg/relay; FanOut
// combines them.
package transport
