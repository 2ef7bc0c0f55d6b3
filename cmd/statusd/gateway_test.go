package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ex-hibiki/internal/statusfeed"
	"ex-hibiki/pkg/hibiki"
)

func newTestGateway(t *testing.T) (*gateway, *hibiki.SharedEmitter[statusfeed.Reading]) {
	t.Helper()

	registry := hibiki.NewRegistry()
	live := hibiki.NewSharedEmitter[statusfeed.Reading]()
	if err := registry.Register(emitterLive, live); err != nil {
		t.Fatalf("register live emitter: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gateway, err := newGateway(logger, registry)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	return gateway, live
}

func dialWebsocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, response, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	if response != nil && response.Body != nil {
		response.Body.Close()
	}

	return conn
}

func TestGatewayStreamsReadingsToClient(t *testing.T) {
	gateway, live := newTestGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httptest.NewServer(gateway.handleWebsocket(ctx))
	defer server.Close()

	conn := dialWebsocket(t, server)
	defer conn.Close()

	eventually(t, 2*time.Second, func() bool { return live.Len() == 1 })

	want := statusfeed.Reading{ID: "id-1", Device: "pump-1", Status: "online", At: time.Now().UTC()}
	live.Emit(want)

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	var got statusfeed.Reading
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("decode reading: %v", err)
	}
	if got.ID != want.ID || got.Device != want.Device || got.Status != want.Status {
		t.Fatalf("reading = %+v, want %+v", got, want)
	}

	conn.Close()
	eventually(t, 2*time.Second, func() bool { return live.Len() == 0 })
}

func TestGatewayCancelsSubscriptionOnDisconnect(t *testing.T) {
	gateway, live := newTestGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httptest.NewServer(gateway.handleWebsocket(ctx))
	defer server.Close()

	conn := dialWebsocket(t, server)
	eventually(t, 2*time.Second, func() bool { return live.Len() == 1 })

	conn.Close()

	eventually(t, 2*time.Second, func() bool { return live.Len() == 0 })
}

func TestGatewayShutdownClosesClients(t *testing.T) {
	gateway, live := newTestGateway(t)

	ctx, cancel := context.WithCancel(context.Background())

	server := httptest.NewServer(gateway.handleWebsocket(ctx))
	defer server.Close()

	conn := dialWebsocket(t, server)
	defer conn.Close()

	eventually(t, 2*time.Second, func() bool { return live.Len() == 1 })

	cancel()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected read to fail after shutdown")
	}
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("read error = %v, want going-away close", err)
	}

	eventually(t, 2*time.Second, func() bool { return live.Len() == 0 })
}
