package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventRecord is the durable copy of an inbound gateway notification.
// (provider, transaction_identifier) is the idempotency key.
type EventRecord struct {
	ID                    snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider              string         `json:"provider" gorm:"type:text;not null;uniqueIndex:idx_payment_events_provider_tx"`
	RecurringIdentifier   string         `json:"recurring_identifier" gorm:"type:text;not null;index"`
	TransactionIdentifier string         `json:"transaction_identifier" gorm:"type:text;not null;uniqueIndex:idx_payment_events_provider_tx"`
	Status                string         `json:"status" gorm:"type:text;not null"`
	Amount                int64          `json:"amount" gorm:"not null"`
	Currency              string         `json:"currency" gorm:"type:text;not null"`
	PaymentDate           time.Time      `json:"payment_date" gorm:"not null"`
	Payload               datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt            time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt           *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventStatusSuccess = "success"
	EventStatusFailed  = "failed"
)

// WebhookEvent is the canonical notification parsed by adapters.
type WebhookEvent struct {
	Provider              string
	RecurringIdentifier   string
	TransactionIdentifier string
	Status                string
	Amount                int64
	Currency              string
	PaymentDate           time.Time
	RawPayload            []byte
}

// ChargeRequest is a merchant-initiated charge against a stored token.
type ChargeRequest struct {
	Reference string
	TokenRef  string
	Amount    int64
	Currency  string
}

type ChargeResult struct {
	Approved     bool
	GatewayTxID  string
	ResponseCode string
	Message      string
}

// Adapter is a single configured gateway connection.
type Adapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*WebhookEvent, error)
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// AdapterConfig carries provider credentials resolved from configuration.
type AdapterConfig struct {
	Config map[string]any
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider, transactionIdentifier string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

// Service is the inbound webhook pipeline.
type Service interface {
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

var (
	ErrInvalidProvider            = errors.New("invalid_provider")
	ErrProviderNotFound           = errors.New("provider_not_found")
	ErrInvalidConfig              = errors.New("invalid_provider_config")
	ErrInvalidPayload             = errors.New("invalid_payload")
	ErrAuthenticationFailed       = errors.New("authentication_failed")
	ErrUnknownRecurringIdentifier = errors.New("unknown_recurring_identifier")
	ErrEventAlreadyProcessed      = errors.New("event_already_processed")
	ErrExternalCallFailed         = errors.New("external_call_failed")
	ErrInvalidEvent               = errors.New("invalid_event")
)
