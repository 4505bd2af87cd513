// Package realtime distributes live festival events to connected dashboard
// clients over WebSocket.
//
// The Hub owns the festival→sessions mapping using the actor pattern: one
// goroutine drains a command channel, so map mutations need no locking. Each
// Session runs a read loop and a write loop per connection; broadcasts are
// serialized once and fanned out with non-blocking enqueues, evicting slow
// sessions so one dead client never stalls the rest.
package realtime
