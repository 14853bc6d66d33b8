package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"soarify/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LibraryService manages the playbook template library and the install flow
// that clones a template into an owned playbook.
type LibraryService struct {
	db        *gorm.DB
	logger    *logrus.Logger
	playbooks *PlaybookService
}

func NewLibraryService(db *gorm.DB, logger *logrus.Logger, playbooks *PlaybookService) *LibraryService {
	if logger == nil {
		logger = logrus.New()
	}
	return &LibraryService{db: db, logger: logger, playbooks: playbooks}
}

type PlaybookTemplateRequest struct {
	Name          string                `json:"name" binding:"required"`
	Description   string                `json:"description"`
	Category      string                `json:"category"`
	UseCase       string                `json:"use_case"`
	MitreAttack   []string              `json:"mitre_attack"`
	Steps         []PlaybookStepRequest `json:"steps" binding:"required"`
	Tags          []string              `json:"tags"`
	Complexity    string                `json:"complexity"`
	EstimatedTime string                `json:"estimated_time"`
	Author        string                `json:"author"`
	IsPublic      *bool                 `json:"is_public"`
}

// InstallRequest optionally renames the playbook created from a template.
type InstallRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InstalledBy string `json:"installed_by"`
}

func (s *LibraryService) CreateTemplate(ctx context.Context, req *PlaybookTemplateRequest) (*models.PlaybookTemplate, error) {
	if req == nil {
		return nil, validationErrorf("request required")
	}
	if len(req.Steps) == 0 {
		return nil, validationErrorf("at least one step required")
	}
	// Reuse step validation so broken templates are rejected before install time.
	if _, err := s.playbooks.buildSteps(req.Steps); err != nil {
		return nil, err
	}

	stepsJSON, err := json.Marshal(req.Steps)
	if err != nil {
		return nil, validationErrorf("invalid steps: %v", err)
	}
	mitreJSON, err := json.Marshal(req.MitreAttack)
	if err != nil {
		return nil, validationErrorf("invalid mitre mapping: %v", err)
	}
	tagsJSON, err := json.Marshal(req.Tags)
	if err != nil {
		return nil, validationErrorf("invalid tags: %v", err)
	}

	complexity := req.Complexity
	if complexity == "" {
		complexity = "medium"
	}
	public := true
	if req.IsPublic != nil {
		public = *req.IsPublic
	}

	template := &models.PlaybookTemplate{
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		UseCase:       req.UseCase,
		MitreAttack:   string(mitreJSON),
		Steps:         string(stepsJSON),
		Tags:          string(tagsJSON),
		Complexity:    complexity,
		EstimatedTime: req.EstimatedTime,
		Author:        req.Author,
		IsPublic:      public,
	}
	if err := s.db.WithContext(ctx).Create(template).Error; err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return template, nil
}

// ListTemplates returns public templates filtered by category/search, sorted
// by downloads (default) or recency.
func (s *LibraryService) ListTemplates(ctx context.Context, category, search, sortBy string) ([]models.PlaybookTemplate, error) {
	q := s.db.WithContext(ctx).Where("is_public = ?", true)
	if category != "" && category != "all" {
		q = q.Where("category = ?", category)
	}
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("name LIKE ? OR description LIKE ? OR use_case LIKE ?", like, like, like)
	}
	switch sortBy {
	case "recent":
		q = q.Order("created_at DESC")
	default:
		q = q.Order("downloads DESC")
	}
	var templates []models.PlaybookTemplate
	if err := q.Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

// InstallTemplate clones the template's steps into a new owned playbook
// (steps renumbered from 1) and increments the template's download counter.
func (s *LibraryService) InstallTemplate(ctx context.Context, templateID uint, req *InstallRequest) (*models.Playbook, error) {
	var template models.PlaybookTemplate
	err := s.db.WithContext(ctx).First(&template, templateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("template %d: %w", templateID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var steps []PlaybookStepRequest
	if err := json.Unmarshal([]byte(template.Steps), &steps); err != nil {
		return nil, fmt.Errorf("template %d: corrupt steps: %w", templateID, err)
	}

	var mitre []string
	if template.MitreAttack != "" {
		_ = json.Unmarshal([]byte(template.MitreAttack), &mitre)
	}

	name := template.Name
	description := template.Description
	if req != nil && req.Name != "" {
		name = req.Name
	}
	if req != nil && req.Description != "" {
		description = req.Description
	}
	createdBy := ""
	if req != nil {
		createdBy = req.InstalledBy
	}

	playbook, err := s.playbooks.CreatePlaybook(ctx, &PlaybookRequest{
		Name:         name,
		Description:  description,
		Category:     template.Category,
		TriggerType:  "MANUAL",
		MitreMapping: mitre,
		Steps:        steps,
		CreatedBy:    createdBy,
	})
	if err != nil {
		return nil, fmt.Errorf("install template %d: %w", templateID, err)
	}

	if err := s.db.WithContext(ctx).Model(&template).
		Update("downloads", gorm.Expr("downloads + 1")).Error; err != nil {
		s.logger.Warnf("template %d: download counter: %v", templateID, err)
	}

	s.logger.Infof("template %q installed as playbook %d", template.Name, playbook.ID)
	return playbook, nil
}
