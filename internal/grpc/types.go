package grpc

import (
	"quicksocket/internal/engine"
	"quicksocket/internal/wire"
)

// Controller is the synchronous control surface the bridge forwards to.
type Controller interface {
	Start(port int) bool
	IsRunning() bool
	RequestShutdown()
	LastError() (string, bool)
	SendMessages(msgs []wire.Message) bool
	DrainClientMessages() []wire.Message
	DrainNewConnectionEvents() []string
	Stats() engine.Stats
}
