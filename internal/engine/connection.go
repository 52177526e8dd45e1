package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"quicksocket/internal/broadcast"
	"quicksocket/internal/logging"
	"quicksocket/internal/wire"
)

// connection is one accepted peer. The forwarder and the collector share it;
// closeRequested is their local handshake.
type connection struct {
	engine *Engine
	id     string
	peer   string
	ws     *websocket.Conn
	sub    *broadcast.Subscription[wire.Batch]
	logger *logging.Logger
	span   trace.Span

	closeRequested chan struct{}
	closeOnce      sync.Once
	readDone       chan struct{}
}

func newConnection(e *Engine, ws *websocket.Conn, sub *broadcast.Subscription[wire.Batch], peer string) *connection {
	id := uuid.NewString()
	_, span := e.tracer.Start(e.signal.Context(), "quicksocket.connection",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("quicksocket.connection_id", id),
			attribute.String("net.peer.addr", peer),
		),
	)
	c := &connection{
		engine:         e,
		id:             id,
		peer:           peer,
		ws:             ws,
		sub:            sub,
		logger:         e.logger.With(logging.String("connection_id", id), logging.String("remote_addr", peer)),
		span:           span,
		closeRequested: make(chan struct{}),
		readDone:       make(chan struct{}),
	}
	c.logger.Info("websocket client connected")
	return c
}

// requestClose tells the forwarder the peer is gone or closing.
func (c *connection) requestClose() {
	c.closeOnce.Do(func() { close(c.closeRequested) })
}

// collect reads data messages into the inbound queue until the peer goes
// away or shutdown is requested.
func (c *connection) collect() {
	e := c.engine
	defer close(c.readDone)

	pongWait := 2 * e.opts.PingInterval
	c.ws.SetReadLimit(e.opts.MaxPayloadBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		frameType, data, err := c.ws.ReadMessage()
		if err != nil {
			if e.signal.Requested() {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				e.metrics.ReadError()
				c.logger.Debug("websocket read ended", logging.Error(err))
			}
			c.requestClose()
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		msg, ok := wire.FromFrame(frameType, data)
		if !ok {
			continue
		}
		//1.- Waiting for queue space is bounded by the shutdown signal. The
		// peer is not read meanwhile, so its deadline restarts afterwards.
		if err := e.inbound.Push(e.signal.Context(), msg); err != nil {
			if !errors.Is(err, context.Canceled) {
				e.errs.WeaklyRecordf("dropping inbound message from %s: %v", c.peer, err)
			}
			c.requestClose()
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		e.metrics.MessageReceived(len(data))
	}
}

// forward writes published batches to the peer, answers the local close
// handshake and stops on shutdown.
func (c *connection) forward() {
	e := c.engine
	ticker := time.NewTicker(e.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.finish()
	}()

	for {
		if e.signal.Requested() {
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		}

		batch, ok, wait, err := c.sub.Poll()
		var lagged *broadcast.LaggedError
		switch {
		case errors.As(err, &lagged):
			e.metrics.BatchesLagged(lagged.Missed)
			e.errs.WeaklyRecordf("connection %s lagged behind by %d batches", c.peer, lagged.Missed)
			if e.opts.DropLaggingClients {
				c.logger.Warn("dropping lagging client", logging.Uint64("missed", lagged.Missed))
				c.closeWith(websocket.ClosePolicyViolation, "client lagging")
				return
			}
			c.logger.Debug("client lagged, skipping ahead", logging.Uint64("missed", lagged.Missed))
			continue
		case err != nil:
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
			return
		case ok:
			if err := c.writeBatch(batch); err != nil {
				e.metrics.WriteError()
				c.logger.Debug("websocket write failed", logging.Error(err))
				c.span.RecordError(err)
				return
			}
			continue
		}

		select {
		case <-wait:
		case <-c.closeRequested:
			c.closeWith(websocket.CloseNormalClosure, "")
			return
		case <-e.signal.Done():
		case <-ticker.C:
			deadline := time.Now().Add(e.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				e.metrics.WriteError()
				c.logger.Debug("websocket ping failed", logging.Error(err))
				return
			}
		}
	}
}

// writeBatch writes every message of the batch in order under one shared
// write deadline. gorilla flushes each frame as it is written.
func (c *connection) writeBatch(batch wire.Batch) error {
	if len(batch) == 0 {
		return nil
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.engine.opts.WriteTimeout)); err != nil {
		return err
	}
	for _, msg := range batch {
		if err := c.ws.WriteMessage(msg.FrameType(), msg.Data); err != nil {
			return err
		}
	}
	c.engine.metrics.MessagesSent(len(batch), batch.Bytes())
	return nil
}

// closeWith sends a close frame and gives the peer a moment to answer before
// the socket is torn down by finish.
func (c *connection) closeWith(code int, text string) {
	deadline := time.Now().Add(c.engine.opts.WriteTimeout)
	if err := c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline); err != nil {
		return
	}
	timer := time.NewTimer(closeGrace)
	defer timer.Stop()
	select {
	case <-c.readDone:
	case <-timer.C:
	}
}

// finish releases everything the pair held. It runs once, on the forwarder.
func (c *connection) finish() {
	e := c.engine
	_ = c.ws.Close()
	<-c.readDone
	c.sub.Close()
	e.metrics.ConnectionClosed()
	if e.signal.Requested() {
		c.span.SetStatus(codes.Ok, "server shutdown")
	} else {
		c.span.SetStatus(codes.Ok, "peer closed")
	}
	c.span.End()
	c.logger.Info("websocket client disconnected")
	e.untrack()
}
