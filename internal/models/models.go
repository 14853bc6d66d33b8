package models

import "time"

// NotificationChannel is a configured destination for notifications.
type NotificationChannel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Type      string    `gorm:"not null" json:"type"`           // EMAIL, SLACK, WEBHOOK, TEAMS, PAGERDUTY
	Config    string    `gorm:"type:text" json:"config"`        // JSON, adapter specific
	Filters   string    `gorm:"type:text" json:"filters"`       // JSON
	Status    string    `gorm:"default:'active'" json:"status"` // active, disabled
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NotificationTemplate holds a reusable subject/body pair with {{variable}}
// placeholders.
type NotificationTemplate struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Type        string    `json:"type"` // alert, incident, report, system
	Subject     string    `json:"subject"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	ChannelType string    `json:"channel_type"`               // optional restriction to one channel type
	Variables   string    `gorm:"type:text" json:"variables"` // JSON: ["severity", "host", ...]
	IsDefault   bool      `gorm:"default:false" json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Notification is one logical alert fanned out to one or more channels. The
// aggregate status follows the primary (first) channel's outcome; per-channel
// outcomes live on the owned deliveries.
type Notification struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ChannelIDs string     `gorm:"type:text" json:"channel_ids"` // JSON: [1,2,3]
	Type       string     `json:"type"`
	Title      string     `json:"title"`
	Message    string     `gorm:"type:text" json:"message"`
	AlertID    *uint      `gorm:"index" json:"alert_id"`
	IncidentID *uint      `gorm:"index" json:"incident_id"`
	Status     string     `gorm:"index;default:'pending'" json:"status"` // pending, sent, failed
	SentAt     *time.Time `json:"sent_at"`
	ErrorMsg   string     `gorm:"type:text" json:"error_msg"`
	CreatedAt  time.Time  `json:"created_at"`

	Deliveries []NotificationDelivery `gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE" json:"deliveries,omitempty"`
}

// NotificationDelivery is the per-channel outcome of a notification. Each
// delivery has an independent lifecycle; one channel failing does not touch
// its siblings.
type NotificationDelivery struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	NotificationID uint       `gorm:"index;not null" json:"notification_id"`
	ChannelID      uint       `gorm:"index;not null" json:"channel_id"`
	Status         string     `gorm:"default:'PENDING'" json:"status"` // PENDING, SENT, FAILED
	DeliveredAt    *time.Time `json:"delivered_at"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SecurityAlert is the external alert record mutated by UPDATE_ALERT steps.
type SecurityAlert struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Severity  string    `gorm:"default:'MEDIUM'" json:"severity"`   // LOW, MEDIUM, HIGH, CRITICAL
	Status    string    `gorm:"index;default:'OPEN'" json:"status"` // OPEN, INVESTIGATING, RESOLVED
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Incident is the external incident record mutated by ESCALATE_INCIDENT steps.
type Incident struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Severity  string    `gorm:"default:'MEDIUM'" json:"severity"`   // LOW, MEDIUM, HIGH, CRITICAL
	Status    string    `gorm:"index;default:'OPEN'" json:"status"` // OPEN, CONTAINED, CLOSED
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
