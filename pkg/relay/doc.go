// Package relay publishes frontend messages over Redis pub/sub. Each room has
// a broadcast channel, one channel per participant and an inbound channel.
package relay
