package services

import (
	"context"
	"testing"
	"time"

	"soarify/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
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
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newExecutionService(t *testing.T, db *gorm.DB) *ExecutionService {
	t.Helper()
	logger := quietLogger()
	registry := NewActionRegistry(db, logger)
	pool := NewWorkerPool(2, 16, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})
	return NewExecutionService(db, logger, registry, pool)
}

func createTestPlaybook(t *testing.T, svc *PlaybookService, name string, steps []PlaybookStepRequest) *models.Playbook {
	t.Helper()
	playbook, err := svc.CreatePlaybook(context.Background(), &PlaybookRequest{
		Name:  name,
		Steps: steps,
	})
	if err != nil {
		t.Fatalf("create playbook: %v", err)
	}
	return playbook
}

// waitForTerminal polls until the execution leaves PENDING/RUNNING.
func waitForTerminal(t *testing.T, db *gorm.DB, execID uint) models.PlaybookExecution {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var execution models.PlaybookExecution
		if err := db.First(&execution, execID).Error; err != nil {
			t.Fatalf("load execution %d: %v", execID, err)
		}
		if execution.Status == ExecutionCompleted || execution.Status == ExecutionFailed {
			return execution
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("execution %d never reached a terminal status", execID)
	return models.PlaybookExecution{}
}
