package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"soarify/internal/models"
	"soarify/internal/services"
)

type handlerFixture struct {
	router *gin.Engine
	db     *gorm.DB
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:handlers_" + name + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&models.Playbook{},
		&models.PlaybookStep{},
		&models.PlaybookExecution{},
		&models.WorkflowTrigger{},
		&models.PlaybookTemplate{},
		&models.NotificationChannel{},
		&models.NotificationTemplate{},
		&models.Notification{},
		&models.NotificationDelivery{},
		&models.SecurityAlert{},
		&models.Incident{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	registry := services.NewActionRegistry(db, logger)
	pool := services.NewWorkerPool(2, 16, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})
	executions := services.NewExecutionService(db, logger, registry, pool)
	playbooks := services.NewPlaybookService(db, logger, registry)
	triggers := services.NewTriggerService(db, logger, executions)
	adapters := services.NewAdapterSet(logger, 2*time.Second)
	notifications := services.NewNotificationService(db, logger, adapters)
	channels := services.NewChannelService(db, logger, adapters)
	library := services.NewLibraryService(db, logger, playbooks)

	r := gin.New()
	api := r.Group("/api/v1")
	RegisterPlaybookRoutes(api, NewPlaybookHandler(playbooks))
	RegisterExecutionRoutes(api, NewExecutionHandler(executions, triggers))
	RegisterTriggerRoutes(api, NewTriggerHandler(triggers))
	RegisterNotificationRoutes(api, NewNotificationHandler(notifications, channels))
	RegisterLibraryRoutes(api, NewLibraryHandler(library))

	return &handlerFixture{router: r, db: db}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

// createPlaybookViaAPI drives the HTTP surface so route tests exercise the
// same path a client would.
func (f *handlerFixture) createPlaybookViaAPI(t *testing.T, name string) models.Playbook {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/playbooks", map[string]interface{}{
		"name":     name,
		"category": "phishing",
		"steps": []map[string]interface{}{
			{"name": "Enrich sender", "action_type": "ENRICH_DATA"},
			{"name": "Notify analysts", "action_type": "SEND_NOTIFICATION"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create playbook: status %d body %s", w.Code, w.Body.String())
	}
	var pb models.Playbook
	decodeBody(t, w, &pb)
	return pb
}

func waitForTerminalExecution(t *testing.T, db *gorm.DB, id uint) models.PlaybookExecution {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var exec models.PlaybookExecution
		if err := db.First(&exec, id).Error; err != nil {
			t.Fatalf("load execution %d: %v", id, err)
		}
		if exec.Status == "COMPLETED" || exec.Status == "FAILED" {
			return exec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("execution %d did not reach a terminal status", id)
	return models.PlaybookExecution{}
}
