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

// ChannelService manages notification channels and notification templates.
type ChannelService struct {
	db       *gorm.DB
	logger   *logrus.Logger
	adapters *AdapterSet
}

func NewChannelService(db *gorm.DB, logger *logrus.Logger, adapters *AdapterSet) *ChannelService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ChannelService{db: db, logger: logger, adapters: adapters}
}

type ChannelRequest struct {
	Name    string                 `json:"name" binding:"required"`
	Type    string                 `json:"type" binding:"required"`
	Config  map[string]interface{} `json:"config" binding:"required"`
	Filters map[string]interface{} `json:"filters"`
}

type ChannelUpdateRequest struct {
	Name   *string                 `json:"name"`
	Config *map[string]interface{} `json:"config"`
	Status *string                 `json:"status"`
}

func (s *ChannelService) CreateChannel(ctx context.Context, req *ChannelRequest) (*models.NotificationChannel, error) {
	if req == nil {
		return nil, validationErrorf("request required")
	}
	if !s.adapters.Known(req.Type) {
		return nil, validationErrorf("unsupported channel type: %s", req.Type)
	}

	cfgJSON, err := json.Marshal(req.Config)
	if err != nil {
		return nil, validationErrorf("invalid config: %v", err)
	}
	filters := "{}"
	if req.Filters != nil {
		raw, err := json.Marshal(req.Filters)
		if err != nil {
			return nil, validationErrorf("invalid filters: %v", err)
		}
		filters = string(raw)
	}

	channel := &models.NotificationChannel{
		Name:    req.Name,
		Type:    req.Type,
		Config:  string(cfgJSON),
		Filters: filters,
		Status:  "active",
	}
	if err := s.db.WithContext(ctx).Create(channel).Error; err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	return channel, nil
}

func (s *ChannelService) ListChannels(ctx context.Context) ([]models.NotificationChannel, error) {
	var channels []models.NotificationChannel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

func (s *ChannelService) UpdateChannel(ctx context.Context, id uint, req *ChannelUpdateRequest) (*models.NotificationChannel, error) {
	if req == nil {
		return nil, validationErrorf("request required")
	}
	var channel models.NotificationChannel
	err := s.db.WithContext(ctx).First(&channel, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("channel %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Config != nil {
		raw, err := json.Marshal(*req.Config)
		if err != nil {
			return nil, validationErrorf("invalid config: %v", err)
		}
		updates["config"] = string(raw)
	}
	if req.Status != nil {
		status := strings.ToLower(*req.Status)
		if status != "active" && status != "disabled" {
			return nil, validationErrorf("unknown channel status: %s", *req.Status)
		}
		updates["status"] = status
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&channel).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return &channel, nil
}

func (s *ChannelService) DeleteChannel(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.NotificationChannel{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("channel %d: %w", id, ErrNotFound)
	}
	return nil
}

type NotificationTemplateRequest struct {
	Name        string   `json:"name" binding:"required"`
	Type        string   `json:"type"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body" binding:"required"`
	ChannelType string   `json:"channel_type"`
	Variables   []string `json:"variables"`
}

func (s *ChannelService) CreateTemplate(ctx context.Context, req *NotificationTemplateRequest) (*models.NotificationTemplate, error) {
	if req == nil {
		return nil, validationErrorf("request required")
	}
	if req.ChannelType != "" && !s.adapters.Known(req.ChannelType) {
		return nil, validationErrorf("unsupported channel type: %s", req.ChannelType)
	}
	varsJSON, err := json.Marshal(req.Variables)
	if err != nil {
		return nil, validationErrorf("invalid variables: %v", err)
	}

	template := &models.NotificationTemplate{
		Name:        req.Name,
		Type:        req.Type,
		Subject:     req.Subject,
		Body:        req.Body,
		ChannelType: req.ChannelType,
		Variables:   string(varsJSON),
	}
	if err := s.db.WithContext(ctx).Create(template).Error; err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return template, nil
}

func (s *ChannelService) ListTemplates(ctx context.Context, notificationType, channelType string) ([]models.NotificationTemplate, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if notificationType != "" {
		q = q.Where("type = ?", notificationType)
	}
	if channelType != "" {
		q = q.Where("channel_type = ?", channelType)
	}
	var templates []models.NotificationTemplate
	if err := q.Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}
