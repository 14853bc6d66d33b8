package services

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"soarify/internal/models"
)

func TestEventHub_ClientRegistration(t *testing.T) {
	hub := NewEventHub(quietLogger())
	go hub.Run()

	c1 := &EventClient{ID: "client-1", Send: make(chan ExecutionEvent, 16), Hub: hub}
	c2 := &EventClient{ID: "client-2", Send: make(chan ExecutionEvent, 16), Hub: hub}

	hub.register <- c1
	hub.register <- c2
	waitForClients(t, hub, 2)

	hub.unregister <- c1
	waitForClients(t, hub, 1)
	if _, open := <-c1.Send; open {
		t.Fatalf("expected send channel closed on unregister")
	}

	hub.unregister <- c2
	waitForClients(t, hub, 0)
}

func TestEventHub_BroadcastReachesSubscribers(t *testing.T) {
	hub := NewEventHub(quietLogger())
	go hub.Run()

	client := &EventClient{ID: "client-1", Send: make(chan ExecutionEvent, 16), Hub: hub}
	hub.register <- client
	waitForClients(t, hub, 1)

	hub.Broadcast(ExecutionEvent{
		Type:      "execution_completed",
		Execution: &models.PlaybookExecution{ID: 7, Status: "COMPLETED"},
		Timestamp: time.Now(),
	})

	select {
	case event := <-client.Send:
		if event.Type != "execution_completed" || event.Execution.ID != 7 {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event never delivered")
	}
}

func TestEventHub_WebSocketRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewEventHub(quietLogger())
	go hub.Run()

	r := gin.New()
	r.GET("/ws/executions", hub.HandleWebSocket)
	server := httptest.NewServer(r)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/executions"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Broadcast(ExecutionEvent{
		Type:      "execution_running",
		Execution: &models.PlaybookExecution{ID: 3, Status: "RUNNING"},
		Timestamp: time.Now(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event ExecutionEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != "execution_running" || event.Execution.Status != "RUNNING" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func waitForClients(t *testing.T, hub *EventHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d (have %d)", want, hub.ClientCount())
}

// Dialing an HTTP endpoint that is not the websocket route should not panic
// the upgrader path.
func TestEventHub_UpgradeRejectsPlainRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewEventHub(quietLogger())
	go hub.Run()

	r := gin.New()
	r.GET("/ws/executions", hub.HandleWebSocket)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ws/executions", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for plain request, got %d", w.Code)
	}
}
