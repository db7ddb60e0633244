package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

type ManagementType string

const (
	ManagementMerchant ManagementType = "merchant"
	ManagementGateway  ManagementType = "gateway"
)

type ScheduleState string

const (
	ScheduleStateDraft     ScheduleState = "draft"
	ScheduleStateActive    ScheduleState = "active"
	ScheduleStatePaused    ScheduleState = "paused"
	ScheduleStateCancelled ScheduleState = "cancelled"
	ScheduleStateCompleted ScheduleState = "completed"
)

func (s ScheduleState) Terminal() bool {
	return s == ScheduleStateCancelled || s == ScheduleStateCompleted
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Schedule is a merchant-initiated recurring charge agreement.
type Schedule struct {
	ID                 snowflake.ID      `json:"id" gorm:"primaryKey"`
	Reference          string            `json:"reference" gorm:"type:text;not null;uniqueIndex"`
	CustomerID         snowflake.ID      `json:"customer_id" gorm:"not null;index"`
	TokenID            string            `json:"token_id" gorm:"type:text;not null"`
	Amount             int64             `json:"amount" gorm:"not null"`
	Currency           string            `json:"currency" gorm:"type:text;not null"`
	Frequency          Frequency         `json:"frequency" gorm:"type:text;not null"`
	ManagementType     ManagementType    `json:"management_type" gorm:"type:text;not null"`
	State              ScheduleState     `json:"state" gorm:"type:text;not null;index"`
	StartDate          time.Time         `json:"start_date" gorm:"not null"`
	EndDate            *time.Time        `json:"end_date"`
	NextPaymentDate    time.Time         `json:"next_payment_date" gorm:"not null;index"`
	RetryCount         int               `json:"retry_count" gorm:"not null;default:0"`
	MaxRetryCount      int               `json:"max_retry_count" gorm:"not null;default:3"`
	LastRetryDate      *time.Time        `json:"last_retry_date"`
	LastPaymentStatus  PaymentStatus     `json:"last_payment_status" gorm:"type:text;not null"`
	MissedPaymentCount int               `json:"missed_payment_count" gorm:"not null;default:0"`
	GatewayRecurringID *string           `json:"gateway_recurring_id" gorm:"type:text;index"`
	Metadata           datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt          time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time         `json:"updated_at" gorm:"not null"`
}

func (Schedule) TableName() string { return "recurring_schedules" }

// Transaction is one charge attempt produced by a schedule.
type Transaction struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	ScheduleID  snowflake.ID  `json:"schedule_id" gorm:"not null;index"`
	Reference   string        `json:"reference" gorm:"type:text;not null;uniqueIndex"`
	GatewayTxID *string       `json:"gateway_tx_id" gorm:"type:text"`
	Amount      int64         `json:"amount" gorm:"not null"`
	Currency    string        `json:"currency" gorm:"type:text;not null"`
	Status      PaymentStatus `json:"status" gorm:"type:text;not null"`
	OccurredAt  time.Time     `json:"occurred_at" gorm:"not null"`
	CreatedAt   time.Time     `json:"created_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "recurring_transactions" }

var (
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrInvalidFrequency   = errors.New("invalid_frequency")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrScheduleNotFound   = errors.New("schedule_not_found")
	ErrInvalidTransition  = errors.New("invalid_state_transition")
	ErrScheduleNotDue     = errors.New("schedule_not_due")
	ErrDuplicateReference = errors.New("duplicate_reference")
)
