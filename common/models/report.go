package models

import (
	"time"

	"github.com/google/uuid"
)

// Report bounds
const (
	DefaultReportTimeoutSeconds = 60
	MaxReportTimeoutSeconds     = 600
	DefaultCacheDurationMinutes = 15
	MaxCacheDurationMinutes     = 1440
)

// Report is a saved report definition
type Report struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	OwnerID       string         `db:"owner_id" json:"ownerId"`
	Name          string         `db:"name" json:"name"`
	Description   string         `db:"description" json:"description,omitempty"`
	ReportType    string         `db:"report_type" json:"reportType"`
	Config        map[string]any `db:"config" json:"config"`
	Visualization map[string]any `db:"visualization" json:"visualization,omitempty"`

	// Admin-gated SQL; when set it is the report's data source
	CustomQuery *string `db:"custom_query" json:"customQuery,omitempty"`

	TimeoutSeconds       int        `db:"timeout_seconds" json:"timeoutSeconds"`
	CacheDurationMinutes int        `db:"cache_duration_minutes" json:"cacheDurationMinutes"`
	ExecutionCount       int        `db:"execution_count" json:"executionCount"`
	LastExecutedAt       *time.Time `db:"last_executed_at" json:"lastExecutedAt,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updatedAt"`
}

// Frequency of a report schedule
type Frequency string

const (
	FrequencyOnce      Frequency = "once"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
	FrequencyCustom    Frequency = "custom"
)

// Delivery methods
const (
	DeliveryEmail    = "email"
	DeliveryStorage  = "storage"
	DeliveryWebhook  = "webhook"
	DeliveryDownload = "download"
)

// Export formats
const (
	ExportCSV  = "csv"
	ExportJSON = "json"
)

// ReportSchedule fires a report on a cron-like cadence
type ReportSchedule struct {
	ID       uuid.UUID `db:"id" json:"id"`
	ReportID uuid.UUID `db:"report_id" json:"reportId"`
	OwnerID  string    `db:"owner_id" json:"ownerId"`
	Name     string    `db:"name" json:"name"`

	Frequency      Frequency `db:"frequency" json:"frequency"`
	CronExpression *string   `db:"cron_expression" json:"cronExpression,omitempty"`
	RunAt          string    `db:"run_at" json:"runAt,omitempty"` // HH:MM:SS
	DayOfWeek      *int      `db:"day_of_week" json:"dayOfWeek,omitempty"`
	DayOfMonth     *int      `db:"day_of_month" json:"dayOfMonth,omitempty"`
	Timezone       string    `db:"timezone" json:"timezone"`

	StartDate *time.Time `db:"start_date" json:"startDate,omitempty"`
	EndDate   *time.Time `db:"end_date" json:"endDate,omitempty"`

	Parameters     map[string]any `db:"parameters" json:"parameters,omitempty"`
	ExportFormat   string         `db:"export_format" json:"exportFormat"`
	DeliveryMethod string         `db:"delivery_method" json:"deliveryMethod"`
	DeliveryConfig DeliveryConfig `db:"delivery_config" json:"deliveryConfig"`

	Active         bool       `db:"active" json:"active"`
	ExecutionCount int        `db:"execution_count" json:"executionCount"`
	FailureCount   int        `db:"failure_count" json:"failureCount"`
	LastRunAt      *time.Time `db:"last_run_at" json:"lastRunAt,omitempty"`
	NextRunAt      *time.Time `db:"next_run_at" json:"nextRunAt,omitempty"`
	LastError      *string    `db:"last_error" json:"lastError,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

// DeliveryConfig holds the sink settings of a schedule
type DeliveryConfig struct {
	Recipients []string `json:"recipients,omitempty"`
	Subject    string   `json:"subject,omitempty"`
	WebhookURL string   `json:"webhookUrl,omitempty"`
}

// ExecutionStatus of a report run
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
	ExecutionTimeout   ExecutionStatus = "timeout"
)

// Delivery statuses
const (
	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
)

// ReportExecution records one run of a report
type ReportExecution struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	ReportID   uuid.UUID       `db:"report_id" json:"reportId"`
	ScheduleID *uuid.UUID      `db:"schedule_id" json:"scheduleId,omitempty"`
	UserID     string          `db:"user_id" json:"userId"`
	Status     ExecutionStatus `db:"status" json:"status"`
	Parameters map[string]any  `db:"parameters" json:"parameters,omitempty"`

	StartedAt   time.Time  `db:"started_at" json:"startedAt"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	DurationMs  int64      `db:"duration_ms" json:"durationMs"`
	RowCount    int        `db:"row_count" json:"rowCount"`
	ResultSize  int64      `db:"result_size" json:"resultSize"`

	ExportPath      *string    `db:"export_path" json:"exportPath,omitempty"`
	ExportURL       *string    `db:"export_url" json:"exportUrl,omitempty"`
	ExportFormat    *string    `db:"export_format" json:"exportFormat,omitempty"`
	ExportExpiresAt *time.Time `db:"export_expires_at" json:"exportExpiresAt,omitempty"`

	CacheKey *string `db:"cache_key" json:"cacheKey,omitempty"`
	CacheHit bool    `db:"cache_hit" json:"cacheHit"`

	DeliveryMethod *string    `db:"delivery_method" json:"deliveryMethod,omitempty"`
	DeliveryStatus *string    `db:"delivery_status" json:"deliveryStatus,omitempty"`
	DeliveredAt    *time.Time `db:"delivered_at" json:"deliveredAt,omitempty"`
	DeliveryError  *string    `db:"delivery_error" json:"deliveryError,omitempty"`

	ErrorMessage *string `db:"error_message" json:"errorMessage,omitempty"`
}
