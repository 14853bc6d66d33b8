package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"soarify/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PlaybookService manages playbook definitions and their ordered steps.
type PlaybookService struct {
	db       *gorm.DB
	logger   *logrus.Logger
	registry *ActionRegistry
}

func NewPlaybookService(db *gorm.DB, logger *logrus.Logger, registry *ActionRegistry) *PlaybookService {
	if logger == nil {
		logger = logrus.New()
	}
	return &PlaybookService{db: db, logger: logger, registry: registry}
}

// PlaybookStepRequest describes one step in a create/update request. Sequence
// numbers are assigned server-side from list position.
type PlaybookStepRequest struct {
	Name           string                 `json:"name" binding:"required"`
	ActionType     string                 `json:"action_type" binding:"required"`
	Config         map[string]interface{} `json:"config"`
	Timeout        int                    `json:"timeout"`
	RetryCount     int                    `json:"retry_count"`
	ContinueOnFail bool                   `json:"continue_on_fail"`
}

type PlaybookRequest struct {
	Name              string                `json:"name" binding:"required"`
	Description       string                `json:"description"`
	Category          string                `json:"category"`
	TriggerType       string                `json:"trigger_type"`
	TriggerConditions []TriggerCondition    `json:"trigger_conditions"`
	IsActive          *bool                 `json:"is_active"`
	MitreMapping      []string              `json:"mitre_mapping"`
	Steps             []PlaybookStepRequest `json:"steps"`
	CreatedBy         string                `json:"created_by"`
}

type PlaybookUpdateRequest struct {
	Name         *string                `json:"name"`
	Description  *string                `json:"description"`
	Category     *string                `json:"category"`
	TriggerType  *string                `json:"trigger_type"`
	IsActive     *bool                  `json:"is_active"`
	MitreMapping *[]string              `json:"mitre_mapping"`
	Steps        *[]PlaybookStepRequest `json:"steps"`
}

// CreatePlaybook validates the definition and stores the playbook with steps
// numbered 1..len(steps).
func (s *PlaybookService) CreatePlaybook(ctx context.Context, req *PlaybookRequest) (*models.Playbook, error) {
	if req == nil || strings.TrimSpace(req.Name) == "" {
		return nil, validationErrorf("name required")
	}

	triggerType := req.TriggerType
	switch triggerType {
	case "":
		triggerType = "MANUAL"
	case "MANUAL", "EVENT":
	default:
		return nil, validationErrorf("unknown trigger type: %s", triggerType)
	}

	steps, err := s.buildSteps(req.Steps)
	if err != nil {
		return nil, err
	}

	condJSON, err := json.Marshal(req.TriggerConditions)
	if err != nil {
		return nil, validationErrorf("invalid trigger conditions: %v", err)
	}
	mitreJSON, err := json.Marshal(req.MitreMapping)
	if err != nil {
		return nil, validationErrorf("invalid mitre mapping: %v", err)
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	playbook := &models.Playbook{
		Name:              req.Name,
		Description:       req.Description,
		Category:          req.Category,
		TriggerType:       triggerType,
		TriggerConditions: string(condJSON),
		IsActive:          active,
		MitreMapping:      string(mitreJSON),
		CreatedBy:         req.CreatedBy,
		Steps:             steps,
	}
	if err := s.db.WithContext(ctx).Create(playbook).Error; err != nil {
		return nil, fmt.Errorf("create playbook: %w", err)
	}
	s.logger.Infof("playbook %q created with %d steps", playbook.Name, len(steps))
	return playbook, nil
}

// buildSteps converts step requests into models, assigning dense 1-based
// sequence numbers and rejecting unknown action types up front.
func (s *PlaybookService) buildSteps(reqs []PlaybookStepRequest) ([]models.PlaybookStep, error) {
	steps := make([]models.PlaybookStep, 0, len(reqs))
	for i, sr := range reqs {
		if strings.TrimSpace(sr.Name) == "" {
			return nil, validationErrorf("step %d: name required", i+1)
		}
		if !s.registry.Known(sr.ActionType) {
			return nil, &UnknownActionError{ActionType: sr.ActionType}
		}
		cfgJSON := "{}"
		if sr.Config != nil {
			raw, err := json.Marshal(sr.Config)
			if err != nil {
				return nil, validationErrorf("step %d: invalid config: %v", i+1, err)
			}
			cfgJSON = string(raw)
		}
		timeout := sr.Timeout
		if timeout <= 0 {
			timeout = 300
		}
		steps = append(steps, models.PlaybookStep{
			StepNumber:     i + 1,
			Name:           sr.Name,
			ActionType:     sr.ActionType,
			Config:         cfgJSON,
			Timeout:        timeout,
			RetryCount:     sr.RetryCount,
			ContinueOnFail: sr.ContinueOnFail,
		})
	}
	return steps, nil
}

// ListPlaybooks returns playbooks with steps preloaded, newest first.
func (s *PlaybookService) ListPlaybooks(ctx context.Context, category string, active *bool) ([]models.Playbook, error) {
	q := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_number ASC") }).
		Order("created_at DESC")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if active != nil {
		q = q.Where("is_active = ?", *active)
	}
	var playbooks []models.Playbook
	if err := q.Find(&playbooks).Error; err != nil {
		return nil, err
	}
	return playbooks, nil
}

func (s *PlaybookService) GetPlaybook(ctx context.Context, id uint) (*models.Playbook, error) {
	var playbook models.Playbook
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_number ASC") }).
		First(&playbook, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("playbook %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &playbook, nil
}

// UpdatePlaybook applies a partial field update. When a steps list is
// supplied, existing steps are replaced wholesale and renumbered from 1.
func (s *PlaybookService) UpdatePlaybook(ctx context.Context, id uint, req *PlaybookUpdateRequest) (*models.Playbook, error) {
	if req == nil {
		return nil, validationErrorf("request required")
	}
	if _, err := s.GetPlaybook(ctx, id); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, validationErrorf("name must not be empty")
		}
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if req.TriggerType != nil {
		if *req.TriggerType != "MANUAL" && *req.TriggerType != "EVENT" {
			return nil, validationErrorf("unknown trigger type: %s", *req.TriggerType)
		}
		updates["trigger_type"] = *req.TriggerType
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.MitreMapping != nil {
		raw, err := json.Marshal(*req.MitreMapping)
		if err != nil {
			return nil, validationErrorf("invalid mitre mapping: %v", err)
		}
		updates["mitre_mapping"] = string(raw)
	}

	var newSteps []models.PlaybookStep
	if req.Steps != nil {
		built, err := s.buildSteps(*req.Steps)
		if err != nil {
			return nil, err
		}
		newSteps = built
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&models.Playbook{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return err
			}
		}
		if req.Steps != nil {
			if err := tx.Where("playbook_id = ?", id).Delete(&models.PlaybookStep{}).Error; err != nil {
				return err
			}
			for i := range newSteps {
				newSteps[i].PlaybookID = id
			}
			if len(newSteps) > 0 {
				if err := tx.Create(&newSteps).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update playbook: %w", err)
	}

	return s.GetPlaybook(ctx, id)
}

// DeletePlaybook hard-deletes the playbook and its steps. Execution history
// keeps its weak reference and is retained.
func (s *PlaybookService) DeletePlaybook(ctx context.Context, id uint) error {
	if _, err := s.GetPlaybook(ctx, id); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("playbook_id = ?", id).Delete(&models.PlaybookStep{}).Error; err != nil {
			return err
		}
		if err := tx.Where("playbook_id = ?", id).Delete(&models.WorkflowTrigger{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Playbook{}, id).Error
	})
}
