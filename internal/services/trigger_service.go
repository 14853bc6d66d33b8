package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"soarify/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TriggerService evaluates inbound security events against stored triggers
// and requests playbook executions for every match.
type TriggerService struct {
	db         *gorm.DB
	logger     *logrus.Logger
	executions *ExecutionService
}

func NewTriggerService(db *gorm.DB, logger *logrus.Logger, executions *ExecutionService) *TriggerService {
	if logger == nil {
		logger = logrus.New()
	}
	return &TriggerService{db: db, logger: logger, executions: executions}
}

// TriggerCondition is a single predicate over event attributes.
type TriggerCondition struct {
	Field string      `json:"field"`
	Op    string      `json:"op"` // eq, neq, contains, gt, lt
	Value interface{} `json:"value"`
}

type TriggerRequest struct {
	Name        string             `json:"name" binding:"required"`
	PlaybookID  uint               `json:"playbook_id" binding:"required"`
	TriggerType string             `json:"trigger_type" binding:"required"` // alert_created, incident_created, ioc_detected, ...
	Conditions  []TriggerCondition `json:"conditions"`
	Enabled     *bool              `json:"enabled"`
	Priority    *int               `json:"priority"`
}

type TriggerUpdateRequest struct {
	Name       *string             `json:"name"`
	Conditions *[]TriggerCondition `json:"conditions"`
	Enabled    *bool               `json:"enabled"`
	Priority   *int                `json:"priority"`
}

// SecurityEvent is an inbound event offered to the trigger matcher. Its
// attributes double as the trigger context handed to matched executions.
type SecurityEvent struct {
	Type       string                 `json:"type" binding:"required"`
	Attributes map[string]interface{} `json:"attributes"`
}

func (s *TriggerService) CreateTrigger(ctx context.Context, req *TriggerRequest) (*models.WorkflowTrigger, error) {
	if req == nil {
		return nil, validationErrorf("request required")
	}

	var playbook models.Playbook
	err := s.db.WithContext(ctx).First(&playbook, req.PlaybookID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("playbook %d: %w", req.PlaybookID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	condJSON, err := json.Marshal(req.Conditions)
	if err != nil {
		return nil, validationErrorf("invalid conditions: %v", err)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	priority := 50
	if req.Priority != nil {
		priority = *req.Priority
	}

	trigger := &models.WorkflowTrigger{
		Name:        req.Name,
		PlaybookID:  req.PlaybookID,
		TriggerType: req.TriggerType,
		Conditions:  string(condJSON),
		Enabled:     enabled,
		Priority:    priority,
	}
	if err := s.db.WithContext(ctx).Create(trigger).Error; err != nil {
		return nil, fmt.Errorf("create trigger: %w", err)
	}
	return trigger, nil
}

// ListTriggers returns triggers ordered by priority descending, then newest.
func (s *TriggerService) ListTriggers(ctx context.Context, enabled *bool) ([]models.WorkflowTrigger, error) {
	q := s.db.WithContext(ctx).Order("priority DESC, created_at DESC")
	if enabled != nil {
		q = q.Where("enabled = ?", *enabled)
	}
	var triggers []models.WorkflowTrigger
	if err := q.Find(&triggers).Error; err != nil {
		return nil, err
	}
	return triggers, nil
}

func (s *TriggerService) UpdateTrigger(ctx context.Context, id uint, req *TriggerUpdateRequest) (*models.WorkflowTrigger, error) {
	if req == nil {
		return nil, validationErrorf("request required")
	}
	var trigger models.WorkflowTrigger
	err := s.db.WithContext(ctx).First(&trigger, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("trigger %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Conditions != nil {
		raw, err := json.Marshal(*req.Conditions)
		if err != nil {
			return nil, validationErrorf("invalid conditions: %v", err)
		}
		updates["conditions"] = string(raw)
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&trigger).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return &trigger, nil
}

func (s *TriggerService) DeleteTrigger(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.WorkflowTrigger{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("trigger %d: %w", id, ErrNotFound)
	}
	return nil
}

// HandleEvent matches evt against all enabled triggers of its type and
// requests one execution per match, higher priority first. Matching performs
// no deduplication: two matching triggers on the same playbook fire two
// independent executions.
func (s *TriggerService) HandleEvent(ctx context.Context, evt *SecurityEvent) ([]models.PlaybookExecution, error) {
	if evt == nil || strings.TrimSpace(evt.Type) == "" {
		return nil, validationErrorf("event type required")
	}

	var triggers []models.WorkflowTrigger
	err := s.db.WithContext(ctx).
		Where("trigger_type = ? AND enabled = ?", evt.Type, true).
		Find(&triggers).Error
	if err != nil {
		return nil, fmt.Errorf("load triggers: %w", err)
	}

	var matched []models.WorkflowTrigger
	for _, trigger := range triggers {
		ok, err := s.matches(trigger, evt)
		if err != nil {
			s.logger.Warnf("trigger %q: %v", trigger.Name, err)
			continue
		}
		if ok {
			matched = append(matched, trigger)
		}
	}

	// Priority descending, creation order as the stable tie-break.
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].ID < matched[j].ID
	})

	var executions []models.PlaybookExecution
	for _, trigger := range matched {
		execution, err := s.executions.Execute(ctx, &ExecutionRequest{
			PlaybookID:     trigger.PlaybookID,
			TriggeredBy:    TriggeredEvent,
			TriggerContext: evt.Attributes,
		})
		if err != nil {
			s.logger.Warnf("trigger %q: execute playbook %d: %v", trigger.Name, trigger.PlaybookID, err)
			continue
		}
		s.logger.Infof("trigger %q matched event %s, execution %d created", trigger.Name, evt.Type, execution.ID)
		executions = append(executions, *execution)
	}
	return executions, nil
}

func (s *TriggerService) matches(trigger models.WorkflowTrigger, evt *SecurityEvent) (bool, error) {
	var conds []TriggerCondition
	if trigger.Conditions != "" {
		if err := json.Unmarshal([]byte(trigger.Conditions), &conds); err != nil {
			return false, fmt.Errorf("invalid conditions: %w", err)
		}
	}
	for _, cond := range conds {
		if !evaluateCondition(cond, evt.Attributes) {
			return false, nil
		}
	}
	return true, nil
}

func evaluateCondition(cond TriggerCondition, attrs map[string]interface{}) bool {
	val, ok := lookupAttr(attrs, cond.Field)
	if !ok {
		return false
	}
	actual := fmt.Sprintf("%v", val)
	expected := fmt.Sprintf("%v", cond.Value)

	switch cond.Op {
	case "eq":
		return actual == expected
	case "neq":
		return actual != expected
	case "contains":
		return strings.Contains(actual, expected)
	case "gt":
		a, aerr := strconv.ParseFloat(actual, 64)
		e, eerr := strconv.ParseFloat(expected, 64)
		return aerr == nil && eerr == nil && a > e
	case "lt":
		a, aerr := strconv.ParseFloat(actual, 64)
		e, eerr := strconv.ParseFloat(expected, 64)
		return aerr == nil && eerr == nil && a < e
	default:
		return false
	}
}

// lookupAttr resolves a dotted field path into nested event attributes.
func lookupAttr(attrs map[string]interface{}, field string) (interface{}, bool) {
	parts := strings.Split(field, ".")
	var current interface{} = attrs
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
