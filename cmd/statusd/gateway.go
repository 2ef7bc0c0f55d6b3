package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ex-hibiki/internal/statusfeed"
	"ex-hibiki/pkg/hibiki"
)

const (
	clientSendBuffer = 64
	pingInterval     = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// gateway streams readings to websocket clients. Every connection holds its
// own subscription on the live emitter, cancelled when the client goes away.
type gateway struct {
	logger  *slog.Logger
	emitter *hibiki.SharedEmitter[statusfeed.Reading]
}

func newGateway(logger *slog.Logger, registry *hibiki.Registry) (*gateway, error) {
	emitter, err := hibiki.ResolveEmitter[*hibiki.SharedEmitter[statusfeed.Reading]](registry, emitterLive)
	if err != nil {
		return nil, fmt.Errorf("resolve live emitter: %w", err)
	}

	return &gateway{logger: logger, emitter: emitter}, nil
}

// handleWebsocket returns the /ws handler. The context bounds every client
// connection to the daemon lifetime.
func (g *gateway) handleWebsocket(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		defer conn.Close()

		// A slow client drops readings instead of stalling dispatch for
		// every other subscriber.
		sendQueue := make(chan statusfeed.Reading, clientSendBuffer)
		subscription := g.emitter.Subscribe(func(reading statusfeed.Reading) {
			select {
			case sendQueue <- reading:
			default:
			}
		})
		defer subscription.Cancel()

		g.logger.Info("websocket client connected", "remote", r.RemoteAddr)

		stop := make(chan struct{})
		writerDone := make(chan struct{})
		go g.writeLoop(ctx, conn, sendQueue, stop, writerDone)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		close(stop)
		<-writerDone

		g.logger.Info("websocket client disconnected", "remote", r.RemoteAddr)
	}
}

// writeLoop forwards queued readings and keepalive pings until the reader
// exits, the daemon stops, or a write fails.
func (g *gateway) writeLoop(ctx context.Context, conn *websocket.Conn, sendQueue <-chan statusfeed.Reading, stop <-chan struct{}, writerDone chan<- struct{}) {
	defer close(writerDone)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case reading := <-sendQueue:
			payload, err := json.Marshal(reading)
			if err != nil {
				g.logger.Warn("encode reading", "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			deadline := time.Now().Add(writeTimeout)
			message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, message, deadline)
			// Closing the connection unblocks the read loop so the handler
			// can cancel its subscription.
			_ = conn.Close()
			return
		case <-stop:
			return
		}
	}
}
