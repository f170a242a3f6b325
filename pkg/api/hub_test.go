package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ngoyal88/auditrelay/pkg/storage"
)

func TestHub_BroadcastsToEveryClient(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	var conns []*websocket.Conn
	for i := 0; i < 2; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("Dial() failed: %v", err)
		}
		defer conn.Close()
		conns = append(conns, conn)
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Clients() = %d, want 2", hub.Clients())
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish(&storage.CaptureRecord{ID: "rec-1", Method: "POST", Status: 200})

	for i, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d: ReadMessage() failed: %v", i, err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("client %d: bad frame: %v", i, err)
		}
		if msg.Type != "record" || msg.Data == nil || msg.Data.ID != "rec-1" {
			t.Errorf("client %d: got %+v", i, msg)
		}
	}
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}

	waitFor := func(want int) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for hub.Clients() != want {
			if time.Now().After(deadline) {
				t.Fatalf("Clients() = %d, want %d", hub.Clients(), want)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	waitFor(1)
	conn.Close()
	waitFor(0)
}
