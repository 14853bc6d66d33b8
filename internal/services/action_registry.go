package services

import (
	"context"
	"fmt"
	"strings"

	"soarify/internal/models"
	"soarify/pkg/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Step action types form a closed set; anything else is rejected at playbook
// creation time and fails with UnknownActionError at execution time.
const (
	ActionSendNotification = "SEND_NOTIFICATION"
	ActionEnrichData       = "ENRICH_DATA"
	ActionRunQuery         = "RUN_QUERY"
	ActionCreateTicket     = "CREATE_TICKET"
	ActionIsolateEndpoint  = "ISOLATE_ENDPOINT"
	ActionBlockIP          = "BLOCK_IP"
	ActionCollectEvidence  = "COLLECT_EVIDENCE"
	ActionExecuteScript    = "EXECUTE_SCRIPT"
	ActionUpdateAlert      = "UPDATE_ALERT"
	ActionEscalateIncident = "ESCALATE_INCIDENT"
)

// ActionInput carries everything a handler may consume: its own step config,
// the trigger context of the execution, and the results of prior steps for
// cross-step data passing.
type ActionInput struct {
	Config         map[string]interface{}
	TriggerContext map[string]interface{}
	PriorResults   []models.StepResult
}

// ActionHandler executes one action type. Implementations must be safe for
// concurrent use; a handler is invoked from many executions at once.
type ActionHandler interface {
	Execute(ctx context.Context, in ActionInput) (map[string]interface{}, error)
}

// ActionRegistry dispatches step execution by action type tag.
type ActionRegistry struct {
	db       *gorm.DB
	logger   *logrus.Logger
	handlers map[string]ActionHandler
}

func NewActionRegistry(db *gorm.DB, logger *logrus.Logger) *ActionRegistry {
	if logger == nil {
		logger = logrus.New()
	}
	r := &ActionRegistry{db: db, logger: logger, handlers: make(map[string]ActionHandler)}
	r.handlers[ActionSendNotification] = sendNotificationAction{}
	r.handlers[ActionEnrichData] = enrichDataAction{}
	r.handlers[ActionRunQuery] = runQueryAction{}
	r.handlers[ActionCreateTicket] = createTicketAction{}
	r.handlers[ActionIsolateEndpoint] = isolateEndpointAction{}
	r.handlers[ActionBlockIP] = blockIPAction{}
	r.handlers[ActionCollectEvidence] = collectEvidenceAction{}
	r.handlers[ActionExecuteScript] = executeScriptAction{}
	r.handlers[ActionUpdateAlert] = updateAlertAction{db: db}
	r.handlers[ActionEscalateIncident] = escalateIncidentAction{db: db}
	return r
}

// Known reports whether actionType belongs to the closed set.
func (r *ActionRegistry) Known(actionType string) bool {
	_, ok := r.handlers[actionType]
	return ok
}

// Execute dispatches to the handler registered for actionType.
func (r *ActionRegistry) Execute(ctx context.Context, actionType string, in ActionInput) (map[string]interface{}, error) {
	handler, ok := r.handlers[actionType]
	if !ok {
		return nil, &UnknownActionError{ActionType: actionType}
	}
	return handler.Execute(ctx, in)
}

// skippedResult marks a no-op success for handlers whose context identifier
// is absent (spec'd contract: do not fail the whole run over a missing id).
func skippedResult(reason string) map[string]interface{} {
	return map[string]interface{}{"skipped": true, "reason": reason}
}

type sendNotificationAction struct{}

func (sendNotificationAction) Execute(ctx context.Context, in ActionInput) (map[string]interface{}, error) {
	channels, _ := in.Config["channels"].([]interface{})
	return map[string]interface{}{"sent": true, "channels": channels}, nil
}

type enrichDataAction struct{}

func (enrichDataAction) Execute(ctx context.Context, in ActionInput) (map[string]interface{}, error) {
	sources, _ := in.Config["sources"].([]interface{})
	return map[string]interface{}{
		"enriched": true,
		"sources":  sources,
		"data":     map[string]interface{}{"ioc_reputation": "malicious"},
	}, nil
}

type runQueryAction struct{}

func (runQueryAction) Execute(ctx context.Context, in ActionInput) (map[string]interface{}, error) {
	query, _ := in.Config["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query config required")
	}
	return map[string]interface{}{"executed": true, "results": 42}, nil
}

type createTicketAction struct{}

func (createTicketAction) Execute(ctx context.Context, in ActionInput) (map[string]interface{}, error) {
	return map[string]interface{}{"ticket_id": utils.GenerateTicketID()}, nil
}

type isolateEndpointAction struct{}

func (isolateEndpointAction) Execute(ctx context.Context, in ActionInput) (map[string]interface{}, error) {
	device, _ := in.TriggerContext["device_id"].(string)
	if device == "" {
		return skippedResult("no device_id in trigger context"), nil
	}
	return map[string]interface{}{"isolated": true, "endpoint": device}, nil
}

type blockIPAction struct{}

func (blockIPAction) Execute(ctx context.Context, in ActionInput) (map[string]interface{}, error) {
	ips := []interface{}{}
	if indicators, ok := in.TriggerContext["indicators"].(map[string]interface{}); ok {
		if list, ok := indicators["ips"].([]interface{}); ok {
			ips = list
		}
	}
	return map[string]interface{}{"blocked": true, "ips": ips}, nil
}

type collectEvidenceAction struct{}

func (collectEvidenceAction) Execute(ctx context.Context, in ActionInput) (map[string]interface{}, error) {
	artifacts, _ := in.Config["artifacts"].([]interface{})
	return map[string]interface{}{"collected": true, "artifacts": artifacts, "evidence_id": utils.GenerateID()}, nil
}

type executeScriptAction struct{}

func (executeScriptAction) Execute(ctx context.Context, in ActionInput) (map[string]interface{}, error) {
	script, _ := in.Config["script"].(string)
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("script config required")
	}
	return map[string]interface{}{"executed": true, "script": script}, nil
}

// updateAlertAction resolves the alert referenced by the trigger context.
// The mutation is not transactional with the execution's own state.
type updateAlertAction struct {
	db *gorm.DB
}

func (a updateAlertAction) Execute(ctx context.Context, in ActionInput) (map[string]interface{}, error) {
	alertID, ok := contextID(in.TriggerContext, "alert_id")
	if !ok {
		return skippedResult("no alert_id in trigger context"), nil
	}
	res := a.db.WithContext(ctx).Model(&models.SecurityAlert{}).
		Where("id = ?", alertID).
		Update("status", "RESOLVED")
	if res.Error != nil {
		return nil, fmt.Errorf("update alert %d: %w", alertID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("alert %d not found", alertID)
	}
	return map[string]interface{}{"updated": true, "alert_id": alertID}, nil
}

// escalateIncidentAction raises the referenced incident to CRITICAL.
type escalateIncidentAction struct {
	db *gorm.DB
}

func (a escalateIncidentAction) Execute(ctx context.Context, in ActionInput) (map[string]interface{}, error) {
	incidentID, ok := contextID(in.TriggerContext, "incident_id")
	if !ok {
		return skippedResult("no incident_id in trigger context"), nil
	}
	res := a.db.WithContext(ctx).Model(&models.Incident{}).
		Where("id = ?", incidentID).
		Update("severity", "CRITICAL")
	if res.Error != nil {
		return nil, fmt.Errorf("escalate incident %d: %w", incidentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("incident %d not found", incidentID)
	}
	return map[string]interface{}{"escalated": true, "incident_id": incidentID}, nil
}

// contextID reads a numeric identifier from a decoded JSON context, where
// numbers arrive as float64.
func contextID(ctx map[string]interface{}, key string) (uint, bool) {
	switch v := ctx[key].(type) {
	case float64:
		if v <= 0 {
			return 0, false
		}
		return uint(v), true
	case int:
		if v <= 0 {
			return 0, false
		}
		return uint(v), true
	case uint:
		return v, v > 0
	default:
		return 0, false
	}
}
