// Package client is the consumer-side library for the realtime event feed.
//
// A Client presents one stable logical connection per endpoint URL and hides
// the messy parts: reconnection with exponential backoff and jitter,
// heartbeat-based detection of half-open sockets, transparent channel
// resubscription, and FIFO queueing of outbound messages across outages.
// Consumers observe connection health only through OnConnectionChange and
// receive events through OnMessage handlers.
package client
