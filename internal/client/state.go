package client

// ConnState describes the client's logical connection state. It tracks the
// logical connection, not any single physical socket: the client passes
// through reconnecting without the caller ever losing its handle.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateError        ConnState = "error"
)
