package handlers

import (
	"net/http"
	"testing"

	"soarify/internal/models"
)

func TestExecutionRoutes_RequestReturnsImmediately(t *testing.T) {
	f := newHandlerFixture(t)
	pb := f.createPlaybookViaAPI(t, "Phishing Response")

	w := f.do(t, http.MethodPost, "/api/v1/executions", map[string]interface{}{
		"playbook_id":     pb.ID,
		"trigger_context": map[string]interface{}{"severity": "HIGH"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("request execution: status %d body %s", w.Code, w.Body.String())
	}
	var exec models.PlaybookExecution
	decodeBody(t, w, &exec)
	if exec.PlaybookName != "Phishing Response" {
		t.Fatalf("expected name snapshot, got %q", exec.PlaybookName)
	}
	if exec.Status != "PENDING" && exec.Status != "RUNNING" && exec.Status != "COMPLETED" {
		t.Fatalf("unexpected status %q", exec.Status)
	}

	final := waitForTerminalExecution(t, f.db, exec.ID)
	if final.Status != "COMPLETED" {
		t.Fatalf("expected COMPLETED, got %q (%s)", final.Status, final.ErrorMessage)
	}

	w = f.do(t, http.MethodGet, "/api/v1/executions/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get execution: status %d", w.Code)
	}
}

func TestExecutionRoutes_MissingPlaybookReturns404(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/executions", map[string]interface{}{
		"playbook_id": 404,
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body %s", w.Code, w.Body.String())
	}
}

func TestExecutionRoutes_ListFilters(t *testing.T) {
	f := newHandlerFixture(t)
	pb := f.createPlaybookViaAPI(t, "Phishing Response")

	w := f.do(t, http.MethodPost, "/api/v1/executions", map[string]interface{}{"playbook_id": pb.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("request execution: status %d", w.Code)
	}
	var exec models.PlaybookExecution
	decodeBody(t, w, &exec)
	waitForTerminalExecution(t, f.db, exec.ID)

	w = f.do(t, http.MethodGet, "/api/v1/executions?status=COMPLETED", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var completed []models.PlaybookExecution
	decodeBody(t, w, &completed)
	if len(completed) != 1 {
		t.Fatalf("expected 1 completed execution, got %d", len(completed))
	}

	w = f.do(t, http.MethodGet, "/api/v1/executions?playbook_id=bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad playbook_id, got %d", w.Code)
	}
}

func TestEventRoute_StartsMatchingExecutions(t *testing.T) {
	f := newHandlerFixture(t)
	pb := f.createPlaybookViaAPI(t, "Phishing Response")

	w := f.do(t, http.MethodPost, "/api/v1/triggers", map[string]interface{}{
		"name":         "high severity alerts",
		"playbook_id":  pb.ID,
		"trigger_type": "alert_created",
		"conditions": []map[string]interface{}{
			{"field": "severity", "op": "eq", "value": "HIGH"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create trigger: status %d body %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"type":       "alert_created",
		"attributes": map[string]interface{}{"severity": "HIGH", "host": "db-prod-1"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("event: status %d body %s", w.Code, w.Body.String())
	}
	var body struct {
		Matched    int                        `json:"matched"`
		Executions []models.PlaybookExecution `json:"executions"`
	}
	decodeBody(t, w, &body)
	if body.Matched != 1 || len(body.Executions) != 1 {
		t.Fatalf("expected one matched execution, got %+v", body)
	}
	if body.Executions[0].TriggeredBy != "EVENT" {
		t.Fatalf("expected EVENT trigger source, got %q", body.Executions[0].TriggeredBy)
	}

	// A non-matching event starts nothing.
	w = f.do(t, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"type":       "alert_created",
		"attributes": map[string]interface{}{"severity": "LOW"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("event: status %d", w.Code)
	}
	decodeBody(t, w, &body)
	if body.Matched != 0 {
		t.Fatalf("expected no matches, got %d", body.Matched)
	}
}

func TestEventRoute_RequiresType(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"attributes": map[string]interface{}{"severity": "HIGH"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body %s", w.Code, w.Body.String())
	}
}
