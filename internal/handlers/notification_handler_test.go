package handlers

import (
	"net/http"
	"testing"
	"time"

	"soarify/internal/models"
)

func (f *handlerFixture) createEmailChannelViaAPI(t *testing.T, name string) models.NotificationChannel {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/notifications/channels", map[string]interface{}{
		"name":   name,
		"type":   "EMAIL",
		"config": map[string]interface{}{"email": "soc@example.com"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create channel: status %d body %s", w.Code, w.Body.String())
	}
	var channel models.NotificationChannel
	decodeBody(t, w, &channel)
	return channel
}

func TestNotificationRoutes_SendAndHistory(t *testing.T) {
	f := newHandlerFixture(t)
	channel := f.createEmailChannelViaAPI(t, "soc-email")

	w := f.do(t, http.MethodPost, "/api/v1/notifications", map[string]interface{}{
		"channel_ids": []uint{channel.ID},
		"title":       "Disk filling up",
		"message":     "db-prod-1 at 93%",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("send: status %d body %s", w.Code, w.Body.String())
	}
	var sent models.Notification
	decodeBody(t, w, &sent)
	if sent.ID == 0 {
		t.Fatalf("expected assigned id")
	}

	// Delivery runs on a background goroutine; the aggregate status flips
	// after every per-channel outcome is recorded.
	deadline := time.Now().Add(5 * time.Second)
	for {
		var current models.Notification
		if err := f.db.First(&current, sent.ID).Error; err != nil {
			t.Fatalf("load notification: %v", err)
		}
		if current.Status != "pending" {
			if current.Status != "sent" {
				t.Fatalf("expected sent aggregate, got %q (%s)", current.Status, current.ErrorMsg)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("notification never left pending")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var delivery models.NotificationDelivery
	if err := f.db.Where("notification_id = ?", sent.ID).First(&delivery).Error; err != nil {
		t.Fatalf("load delivery: %v", err)
	}
	if delivery.Status != "SENT" {
		t.Fatalf("expected SENT delivery, got %q (%s)", delivery.Status, delivery.ErrorMessage)
	}

	w = f.do(t, http.MethodGet, "/api/v1/notifications?status=sent", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: status %d", w.Code)
	}
	var history []models.Notification
	decodeBody(t, w, &history)
	if len(history) != 1 || len(history[0].Deliveries) != 1 {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestNotificationRoutes_SendRequiresChannels(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/notifications", map[string]interface{}{
		"title": "orphan",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body %s", w.Code, w.Body.String())
	}
}

func TestNotificationRoutes_HistoryRejectsBadFilters(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/notifications?channel_id=bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestChannelRoutes_CRUD(t *testing.T) {
	f := newHandlerFixture(t)
	channel := f.createEmailChannelViaAPI(t, "soc-email")
	if channel.Status != "active" {
		t.Fatalf("expected active default, got %q", channel.Status)
	}

	w := f.do(t, http.MethodPost, "/api/v1/notifications/channels", map[string]interface{}{
		"name":   "bad",
		"type":   "CARRIER_PIGEON",
		"config": map[string]interface{}{},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", w.Code)
	}

	w = f.do(t, http.MethodPatch, "/api/v1/notifications/channels/1", map[string]interface{}{
		"status": "disabled",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", w.Code, w.Body.String())
	}
	decodeBody(t, w, &channel)
	if channel.Status != "disabled" {
		t.Fatalf("expected disabled, got %q", channel.Status)
	}

	w = f.do(t, http.MethodGet, "/api/v1/notifications/channels", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var list []models.NotificationChannel
	decodeBody(t, w, &list)
	if len(list) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(list))
	}

	w = f.do(t, http.MethodDelete, "/api/v1/notifications/channels/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status %d", w.Code)
	}
	w = f.do(t, http.MethodDelete, "/api/v1/notifications/channels/1", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", w.Code)
	}
}

func TestNotificationTemplateRoutes(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/notifications/templates", map[string]interface{}{
		"name":         "alert-email",
		"type":         "alert",
		"subject":      "Alert: {{severity}}",
		"body":         "Host {{host}} raised a {{severity}} alert",
		"channel_type": "EMAIL",
		"variables":    []string{"severity", "host"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create template: status %d body %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/v1/notifications/templates", map[string]interface{}{
		"name":         "bad",
		"body":         "x",
		"channel_type": "SMOKE_SIGNAL",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown channel type, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/v1/notifications/templates?type=alert", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var templates []models.NotificationTemplate
	decodeBody(t, w, &templates)
	if len(templates) != 1 || templates[0].Name != "alert-email" {
		t.Fatalf("unexpected templates: %+v", templates)
	}
}
