package models

import "time"

// Playbook is a named automation definition made of ordered steps.
type Playbook struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Name              string    `gorm:"not null" json:"name"`
	Description       string    `gorm:"type:text" json:"description"`
	Category          string    `gorm:"index" json:"category"`                // phishing, ransomware, data_exfil, ...
	TriggerType       string    `gorm:"default:'MANUAL'" json:"trigger_type"` // MANUAL, EVENT
	TriggerConditions string    `gorm:"type:text" json:"trigger_conditions"`  // JSON: [{field,op,value}]
	IsActive          bool      `json:"is_active"`
	IsDefault         bool      `gorm:"default:false" json:"is_default"`
	MitreMapping      string    `gorm:"type:text" json:"mitre_mapping"` // JSON: ["T1566", ...]
	ExecutionCount    int       `gorm:"default:0" json:"execution_count"`
	SuccessRate       float64   `gorm:"default:0" json:"success_rate"` // 0-100
	AvgDuration       int       `gorm:"default:0" json:"avg_duration"` // seconds, 0 until first run
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	Steps []PlaybookStep `gorm:"foreignKey:PlaybookID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`
}

// PlaybookStep is one action within a playbook. Step numbers are 1-based and
// contiguous; steps run strictly in ascending order.
type PlaybookStep struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PlaybookID     uint      `gorm:"index;not null" json:"playbook_id"`
	StepNumber     int       `gorm:"not null" json:"step_number"`
	Name           string    `gorm:"not null" json:"name"`
	ActionType     string    `gorm:"not null" json:"action_type"` // see services.ActionTypes
	Config         string    `gorm:"type:text" json:"config"`     // JSON, interpreted by the action handler
	Timeout        int       `gorm:"default:300" json:"timeout"`  // seconds
	RetryCount     int       `gorm:"default:0" json:"retry_count"`
	ContinueOnFail bool      `gorm:"default:false" json:"continue_on_fail"`
	CreatedAt      time.Time `json:"created_at"`
}

// PlaybookExecution is one run of a playbook. PlaybookID is a weak reference:
// executions outlive playbook deletion, so the playbook name is snapshotted.
type PlaybookExecution struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	PlaybookID     uint       `gorm:"index" json:"playbook_id"`
	PlaybookName   string     `json:"playbook_name"`
	Status         string     `gorm:"index;default:'PENDING'" json:"status"` // PENDING, RUNNING, COMPLETED, FAILED
	TriggeredBy    string     `gorm:"default:'MANUAL'" json:"triggered_by"`  // MANUAL, EVENT, SCHEDULED
	TriggerContext string     `gorm:"type:text" json:"trigger_context"`      // JSON, passed to every step
	StepResults    string     `gorm:"type:text" json:"step_results"`         // JSON: []StepResult
	Duration       int        `json:"duration"`                              // seconds, set on terminal transition
	ErrorMessage   string     `gorm:"type:text" json:"error_message"`        // set only on FAILED
	StartedAt      time.Time  `gorm:"index" json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// StepResult is the outcome of one step within an execution, serialized into
// PlaybookExecution.StepResults.
type StepResult struct {
	StepNumber int                    `json:"step_number"`
	Name       string                 `json:"name"`
	Status     string                 `json:"status"` // COMPLETED, FAILED
	Duration   int64                  `json:"duration_ms"`
	Result     map[string]interface{} `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// WorkflowTrigger binds a playbook to an activation rule. Higher priority
// triggers are evaluated first.
type WorkflowTrigger struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"unique;not null" json:"name"`
	PlaybookID  uint      `gorm:"index;not null" json:"playbook_id"`
	TriggerType string    `gorm:"not null" json:"trigger_type"` // alert_created, incident_created, ioc_detected, ...
	Conditions  string    `gorm:"type:text" json:"conditions"`  // JSON: [{field,op,value}]
	Enabled     bool      `json:"enabled"`
	Priority    int       `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PlaybookTemplate is a library entry that can be installed as a playbook.
type PlaybookTemplate struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"not null" json:"name"`
	Description   string    `gorm:"type:text" json:"description"`
	Category      string    `gorm:"index" json:"category"`
	UseCase       string    `json:"use_case"`
	MitreAttack   string    `gorm:"type:text" json:"mitre_attack"`      // JSON: ["T1566", ...]
	Steps         string    `gorm:"type:text" json:"steps"`             // JSON: []TemplateStep
	Tags          string    `gorm:"type:text" json:"tags"`              // JSON: ["containment", ...]
	Complexity    string    `gorm:"default:'medium'" json:"complexity"` // low, medium, high
	EstimatedTime string    `json:"estimated_time"`
	Author        string    `json:"author"`
	IsPublic      bool      `json:"is_public"`
	Downloads     int       `gorm:"default:0" json:"downloads"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
