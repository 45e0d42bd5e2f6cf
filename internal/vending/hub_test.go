package vending_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vendmx/vending-engine/internal/vending"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcast(t *testing.T) {
	hub := vending.NewHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn := dialHub(t, srv)

	// Let the hub finish registering before broadcasting.
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(vending.Event{
		Type:           vending.EventPurchase,
		ProductID:      "p1",
		ProductName:    "cola",
		Quantity:       1,
		RemainingStock: 9,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var ev vending.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != vending.EventPurchase || ev.ProductName != "cola" || ev.RemainingStock != 9 {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestHubBroadcast_SurvivesClosedClients(t *testing.T) {
	hub := vending.NewHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	live := dialHub(t, srv)
	dead := dialHub(t, srv)
	time.Sleep(50 * time.Millisecond)

	// Closing one client must not disturb delivery to the others; the
	// hub drops it once a write fails.
	dead.Close()
	for i := 0; i < 5; i++ {
		hub.Broadcast(vending.Event{Type: vending.EventStockUpdate, ProductID: "p1", RemainingStock: int64(i)})
		time.Sleep(10 * time.Millisecond)
	}

	live.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := live.ReadMessage(); err != nil {
		t.Fatalf("live client should keep receiving events: %v", err)
	}
}
