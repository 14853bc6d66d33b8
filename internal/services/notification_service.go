package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"soarify/internal/metrics"
	"soarify/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Delivery states.
const (
	DeliveryPending = "PENDING"
	DeliverySent    = "SENT"
	DeliveryFailed  = "FAILED"
)

// NotificationService fans one logical notification out to its channels,
// tracking a delivery record per channel.
type NotificationService struct {
	db       *gorm.DB
	logger   *logrus.Logger
	adapters *AdapterSet

	// async is disabled in tests so Send delivers before returning.
	async bool
}

func NewNotificationService(db *gorm.DB, logger *logrus.Logger, adapters *AdapterSet) *NotificationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &NotificationService{db: db, logger: logger, adapters: adapters, async: true}
}

type SendNotificationRequest struct {
	ChannelIDs []uint                 `json:"channel_ids" binding:"required"`
	Type       string                 `json:"type"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	TemplateID *uint                  `json:"template_id"`
	Variables  map[string]interface{} `json:"variables"`
	AlertID    *uint                  `json:"alert_id"`
	IncidentID *uint                  `json:"incident_id"`
}

// RenderTemplate substitutes {{key}} placeholders with the supplied variable
// values. Placeholders without a matching variable pass through unchanged.
func RenderTemplate(template string, variables map[string]interface{}) string {
	rendered := template
	for key, value := range variables {
		rendered = strings.ReplaceAll(rendered, "{{"+key+"}}", fmt.Sprintf("%v", value))
	}
	return rendered
}

// Send creates the notification in pending state with one PENDING delivery
// stub per channel and returns it; delivery proceeds asynchronously.
func (s *NotificationService) Send(ctx context.Context, req *SendNotificationRequest) (*models.Notification, error) {
	if req == nil || len(req.ChannelIDs) == 0 {
		return nil, validationErrorf("at least one channel required")
	}
	// Deliveries are keyed by channel below; a duplicate id would collapse
	// two deliveries onto one record.
	seen := make(map[uint]struct{}, len(req.ChannelIDs))
	for _, id := range req.ChannelIDs {
		if _, dup := seen[id]; dup {
			return nil, validationErrorf("duplicate channel id %d", id)
		}
		seen[id] = struct{}{}
	}

	title := req.Title
	message := req.Message
	if req.TemplateID != nil {
		var template models.NotificationTemplate
		err := s.db.WithContext(ctx).First(&template, *req.TemplateID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("template %d: %w", *req.TemplateID, ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		title = RenderTemplate(template.Subject, req.Variables)
		message = RenderTemplate(template.Body, req.Variables)
	}
	if title == "" {
		title = "Notification"
	}

	idsJSON, err := json.Marshal(req.ChannelIDs)
	if err != nil {
		return nil, validationErrorf("invalid channel ids: %v", err)
	}

	notification := &models.Notification{
		ChannelIDs: string(idsJSON),
		Type:       req.Type,
		Title:      title,
		Message:    message,
		AlertID:    req.AlertID,
		IncidentID: req.IncidentID,
		Status:     "pending",
	}
	for _, channelID := range req.ChannelIDs {
		notification.Deliveries = append(notification.Deliveries, models.NotificationDelivery{
			ChannelID: channelID,
			Status:    DeliveryPending,
		})
	}
	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	if s.async {
		go s.deliver(notification.ID)
	} else {
		s.deliver(notification.ID)
	}
	return notification, nil
}

// deliver fans out to every channel concurrently. Failures are isolated per
// channel; the parent's aggregate status follows the primary (first) channel.
func (s *NotificationService) deliver(notificationID uint) {
	ctx := context.Background()

	var notification models.Notification
	if err := s.db.Preload("Deliveries").First(&notification, notificationID).Error; err != nil {
		s.logger.Errorf("notification %d: load for delivery: %v", notificationID, err)
		return
	}

	var channelIDs []uint
	if err := json.Unmarshal([]byte(notification.ChannelIDs), &channelIDs); err != nil || len(channelIDs) == 0 {
		s.logger.Errorf("notification %d: invalid channel list", notificationID)
		return
	}

	deliveryByChannel := make(map[uint]models.NotificationDelivery, len(notification.Deliveries))
	for _, delivery := range notification.Deliveries {
		deliveryByChannel[delivery.ChannelID] = delivery
	}

	outcomes := make([]error, len(channelIDs))
	var wg sync.WaitGroup
	for i, channelID := range channelIDs {
		delivery, ok := deliveryByChannel[channelID]
		if !ok {
			outcomes[i] = fmt.Errorf("no delivery record for channel %d", channelID)
			continue
		}
		wg.Add(1)
		go func(i int, channelID uint, deliveryID uint) {
			defer wg.Done()
			outcomes[i] = s.deliverToChannel(ctx, deliveryID, channelID, notification.Title, notification.Message)
		}(i, channelID, delivery.ID)
	}
	wg.Wait()

	// Aggregate status reflects the primary channel only; sibling outcomes
	// stay on their delivery records.
	updates := map[string]interface{}{}
	if outcomes[0] == nil {
		now := time.Now()
		updates["status"] = "sent"
		updates["sent_at"] = &now
	} else {
		updates["status"] = "failed"
		updates["error_msg"] = outcomes[0].Error()
	}
	if err := s.db.Model(&models.Notification{}).Where("id = ?", notificationID).Updates(updates).Error; err != nil {
		s.logger.Errorf("notification %d: aggregate update: %v", notificationID, err)
	}
}

// deliverToChannel runs one channel's delivery lifecycle and records the
// outcome. Inactive channels fail immediately without touching the adapter.
func (s *NotificationService) deliverToChannel(ctx context.Context, deliveryID, channelID uint, title, message string) error {
	sendErr := s.attemptSend(ctx, channelID, title, message)

	updates := map[string]interface{}{}
	if sendErr == nil {
		now := time.Now()
		updates["status"] = DeliverySent
		updates["delivered_at"] = &now
		metrics.IncDelivery(DeliverySent)
	} else {
		updates["status"] = DeliveryFailed
		updates["error_message"] = sendErr.Error()
		metrics.IncDelivery(DeliveryFailed)
	}
	if err := s.db.Model(&models.NotificationDelivery{}).Where("id = ?", deliveryID).Updates(updates).Error; err != nil {
		s.logger.Errorf("delivery %d: update: %v", deliveryID, err)
	}
	return sendErr
}

func (s *NotificationService) attemptSend(ctx context.Context, channelID uint, title, message string) error {
	var channel models.NotificationChannel
	err := s.db.WithContext(ctx).First(&channel, channelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("channel %d not found", channelID)
	}
	if err != nil {
		return err
	}
	if channel.Status != "active" {
		return fmt.Errorf("channel not active")
	}
	return s.adapters.Send(ctx, channel.Type, channel.Config, title, message)
}

// ListHistory returns notifications newest-first, optionally filtered by
// aggregate status and/or target channel.
func (s *NotificationService) ListHistory(ctx context.Context, status string, channelID uint, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&models.Notification{}).Preload("Deliveries")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if channelID != 0 {
		q = q.Joins("JOIN notification_deliveries nd ON nd.notification_id = notifications.id").
			Where("nd.channel_id = ?", channelID).
			Distinct("notifications.*")
	}
	var notifications []models.Notification
	if err := q.Order("notifications.created_at DESC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}
