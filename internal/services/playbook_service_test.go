package services

import (
	"context"
	"errors"
	"testing"

	"soarify/internal/models"
)

func newPlaybookFixture(t *testing.T) (*PlaybookService, *ActionRegistry, *TriggerService) {
	t.Helper()
	db := newServiceTestDB(t)
	logger := quietLogger()
	registry := NewActionRegistry(db, logger)
	playbooks := NewPlaybookService(db, logger, registry)
	triggers := NewTriggerService(db, logger, newExecutionService(t, db))
	return playbooks, registry, triggers
}

func TestCreatePlaybook_AssignsStepNumbers(t *testing.T) {
	playbooks, _, _ := newPlaybookFixture(t)

	playbook, err := playbooks.CreatePlaybook(context.Background(), &PlaybookRequest{
		Name: "Ransomware Containment",
		Steps: []PlaybookStepRequest{
			{Name: "Isolate", ActionType: ActionIsolateEndpoint},
			{Name: "Block", ActionType: ActionBlockIP, Timeout: 60},
			{Name: "Notify", ActionType: ActionSendNotification},
		},
	})
	if err != nil {
		t.Fatalf("create playbook: %v", err)
	}
	if len(playbook.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(playbook.Steps))
	}
	for i, step := range playbook.Steps {
		if step.StepNumber != i+1 {
			t.Fatalf("step %d: expected number %d, got %d", i, i+1, step.StepNumber)
		}
	}
	if playbook.Steps[0].Timeout != 300 {
		t.Fatalf("expected default timeout 300, got %d", playbook.Steps[0].Timeout)
	}
	if playbook.Steps[1].Timeout != 60 {
		t.Fatalf("expected explicit timeout kept, got %d", playbook.Steps[1].Timeout)
	}
	if playbook.TriggerType != "MANUAL" {
		t.Fatalf("expected default MANUAL trigger type, got %s", playbook.TriggerType)
	}
	if !playbook.IsActive {
		t.Fatal("expected playbook active by default")
	}
}

func TestCreatePlaybook_RejectsUnknownAction(t *testing.T) {
	playbooks, _, _ := newPlaybookFixture(t)

	_, err := playbooks.CreatePlaybook(context.Background(), &PlaybookRequest{
		Name:  "Broken",
		Steps: []PlaybookStepRequest{{Name: "Boom", ActionType: "FORMAT_DISK"}},
	})
	var unknown *UnknownActionError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownActionError, got %v", err)
	}
}

func TestCreatePlaybook_RejectsUnknownTriggerType(t *testing.T) {
	playbooks, _, _ := newPlaybookFixture(t)
	_, err := playbooks.CreatePlaybook(context.Background(), &PlaybookRequest{
		Name:        "Weird",
		TriggerType: "CRON",
	})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdatePlaybook_ReplacesAndRenumbersSteps(t *testing.T) {
	playbooks, _, _ := newPlaybookFixture(t)
	ctx := context.Background()

	playbook := createTestPlaybook(t, playbooks, "Mutable", []PlaybookStepRequest{
		{Name: "One", ActionType: ActionEnrichData},
		{Name: "Two", ActionType: ActionCreateTicket},
	})

	updated, err := playbooks.UpdatePlaybook(ctx, playbook.ID, &PlaybookUpdateRequest{
		Steps: &[]PlaybookStepRequest{
			{Name: "Replacement", ActionType: ActionCollectEvidence},
		},
	})
	if err != nil {
		t.Fatalf("update playbook: %v", err)
	}
	if len(updated.Steps) != 1 {
		t.Fatalf("expected steps wholesale replaced, got %d", len(updated.Steps))
	}
	if updated.Steps[0].StepNumber != 1 || updated.Steps[0].Name != "Replacement" {
		t.Fatalf("unexpected replacement step: %+v", updated.Steps[0])
	}
}

func TestUpdatePlaybook_PartialFields(t *testing.T) {
	playbooks, _, _ := newPlaybookFixture(t)
	ctx := context.Background()

	playbook := createTestPlaybook(t, playbooks, "Before", nil)

	name := "After"
	inactive := false
	updated, err := playbooks.UpdatePlaybook(ctx, playbook.ID, &PlaybookUpdateRequest{
		Name:     &name,
		IsActive: &inactive,
	})
	if err != nil {
		t.Fatalf("update playbook: %v", err)
	}
	if updated.Name != "After" || updated.IsActive {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	empty := " "
	if _, err := playbooks.UpdatePlaybook(ctx, playbook.ID, &PlaybookUpdateRequest{Name: &empty}); !IsValidation(err) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
}

func TestDeletePlaybook_CascadesButKeepsExecutions(t *testing.T) {
	playbooks, _, triggers := newPlaybookFixture(t)
	ctx := context.Background()

	playbook := createTestPlaybook(t, playbooks, "Doomed", []PlaybookStepRequest{
		{Name: "S1", ActionType: ActionEnrichData},
	})
	if _, err := triggers.CreateTrigger(ctx, &TriggerRequest{
		Name: "T", PlaybookID: playbook.ID, TriggerType: "alert_created",
	}); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	db := playbooks.db
	execution := models.PlaybookExecution{PlaybookID: playbook.ID, PlaybookName: playbook.Name, Status: ExecutionCompleted}
	if err := db.Create(&execution).Error; err != nil {
		t.Fatalf("seed execution: %v", err)
	}

	if err := playbooks.DeletePlaybook(ctx, playbook.ID); err != nil {
		t.Fatalf("delete playbook: %v", err)
	}

	var stepCount, triggerCount, execCount int64
	db.Model(&models.PlaybookStep{}).Where("playbook_id = ?", playbook.ID).Count(&stepCount)
	db.Model(&models.WorkflowTrigger{}).Where("playbook_id = ?", playbook.ID).Count(&triggerCount)
	db.Model(&models.PlaybookExecution{}).Where("playbook_id = ?", playbook.ID).Count(&execCount)
	if stepCount != 0 || triggerCount != 0 {
		t.Fatalf("expected steps and triggers removed, got %d / %d", stepCount, triggerCount)
	}
	if execCount != 1 {
		t.Fatalf("expected execution history retained, got %d", execCount)
	}

	var retained models.PlaybookExecution
	db.First(&retained, execution.ID)
	if retained.PlaybookName != "Doomed" {
		t.Fatalf("expected playbook name snapshot retained, got %q", retained.PlaybookName)
	}

	if err := playbooks.DeletePlaybook(ctx, playbook.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListPlaybooks_Filters(t *testing.T) {
	playbooks, _, _ := newPlaybookFixture(t)
	ctx := context.Background()

	inactive := false
	if _, err := playbooks.CreatePlaybook(ctx, &PlaybookRequest{Name: "A", Category: "phishing"}); err != nil {
		t.Fatalf("create A: %v", err)
	}
	if _, err := playbooks.CreatePlaybook(ctx, &PlaybookRequest{Name: "B", Category: "ransomware", IsActive: &inactive}); err != nil {
		t.Fatalf("create B: %v", err)
	}

	all, err := playbooks.ListPlaybooks(ctx, "", nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 playbooks, got %d", len(all))
	}

	phishing, err := playbooks.ListPlaybooks(ctx, "phishing", nil)
	if err != nil {
		t.Fatalf("list phishing: %v", err)
	}
	if len(phishing) != 1 || phishing[0].Name != "A" {
		t.Fatalf("unexpected category filter result: %+v", phishing)
	}

	active := true
	activeOnly, err := playbooks.ListPlaybooks(ctx, "", &active)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(activeOnly) != 1 || activeOnly[0].Name != "A" {
		t.Fatalf("unexpected active filter result: %+v", activeOnly)
	}
}

func TestCreatePlaybook_InactiveIsPersisted(t *testing.T) {
	db := newServiceTestDB(t)
	logger := quietLogger()
	playbooks := NewPlaybookService(db, logger, NewActionRegistry(db, logger))

	inactive := false
	playbook, err := playbooks.CreatePlaybook(context.Background(), &PlaybookRequest{
		Name:     "Draft Containment",
		IsActive: &inactive,
		Steps: []PlaybookStepRequest{
			{Name: "Isolate", ActionType: ActionIsolateEndpoint},
		},
	})
	if err != nil {
		t.Fatalf("create playbook: %v", err)
	}

	// Re-read from storage: an inactive playbook must not come back active.
	var stored models.Playbook
	if err := db.First(&stored, playbook.ID).Error; err != nil {
		t.Fatalf("load playbook: %v", err)
	}
	if stored.IsActive {
		t.Fatal("playbook created with is_active=false was stored active")
	}
}
