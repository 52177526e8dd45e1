package main

import (
	"context"
	"time"

	"quicksocket"
	"quicksocket/internal/logging"
)

// host is the slice of the control surface the polling loop drives.
type host interface {
	SendMessages(msgs []quicksocket.Message) bool
	DrainClientMessages() []quicksocket.Message
	DrainNewConnectionEvents() []string
}

// hostLoop polls the engine on a fixed interval the way an embedding
// application would from its own frame loop.
type hostLoop struct {
	host     host
	interval time.Duration
	relay    bool
	logger   *logging.Logger
}

func newHostLoop(h host, interval time.Duration, relay bool, logger *logging.Logger) *hostLoop {
	if logger == nil {
		logger = logging.L()
	}
	return &hostLoop{host: h, interval: interval, relay: relay, logger: logger.With(logging.String("component", "host_loop"))}
}

// Run polls until ctx ends.
func (l *hostLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.step()
		}
	}
}

// step performs one drain cycle and reports what it handled.
func (l *hostLoop) step() (events int, relayed int) {
	//1.- Announce newly accepted peers.
	for _, peer := range l.host.DrainNewConnectionEvents() {
		l.logger.Info("client connected", logging.String("peer", peer))
		events++
	}

	//2.- Pull client messages and optionally echo them to every client.
	msgs := l.host.DrainClientMessages()
	if len(msgs) == 0 {
		return events, 0
	}
	for _, msg := range msgs {
		l.logger.Debug("client message", logging.String("kind", msg.Kind.String()), logging.Int("bytes", len(msg.Data)))
	}
	if !l.relay {
		return events, 0
	}
	if !l.host.SendMessages(msgs) {
		l.logger.Warn("relay failed", logging.Int("messages", len(msgs)))
		return events, 0
	}
	return events, len(msgs)
}
