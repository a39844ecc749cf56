package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestStreamSkipsMalformedFrames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		ctx := r.Context()
		_ = conn.Write(ctx, websocket.MessageText, []byte("not json"))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"tweet_create_events": []}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte(sampleEnvelope))
		// Hold the connection open until the client goes away.
		_, _, _ = conn.Read(ctx)
	}))
	defer server.Close()

	src := NewStreamSource(wsURL(server), zerolog.Nop())
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	batch, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(batch) != 2 || batch[0].ID != "t1" {
		t.Fatalf("malformed and empty frames must be skipped, got %+v", batch)
	}
}

func TestStreamReconnectsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	conns := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()
		if n == 1 {
			_ = conn.Close(websocket.StatusInternalError, "going away")
			return
		}
		ctx := r.Context()
		_ = conn.Write(ctx, websocket.MessageText, []byte(sampleEnvelope))
		_, _, _ = conn.Read(ctx)
	}))
	defer server.Close()

	src := NewStreamSource(wsURL(server), zerolog.Nop())
	src.backoff = time.Millisecond
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	batch, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected batch after reconnect, got %+v", batch)
	}
	mu.Lock()
	defer mu.Unlock()
	if conns < 2 {
		t.Fatalf("expected a reconnect, saw %d connections", conns)
	}
}

func TestStreamNextStopsOnCancel(t *testing.T) {
	src := NewStreamSource("ws://127.0.0.1:1/nowhere", zerolog.Nop())
	src.backoff = time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := src.Next(ctx); err == nil {
		t.Fatalf("expected context error when the endpoint is unreachable")
	}
}
