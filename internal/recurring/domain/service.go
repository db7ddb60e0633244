package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/saasfoundry/tenantops/internal/payment/domain"
)

type CreateScheduleRequest struct {
	CustomerID     snowflake.ID
	TokenID        string
	Amount         int64
	Currency       string
	Frequency      Frequency
	ManagementType ManagementType
	StartDate      time.Time
	EndDate        *time.Time
	Metadata       map[string]any
}

type ListSchedulesRequest struct {
	CustomerID snowflake.ID
	State      ScheduleState
	Limit      int
	Offset     int
}

// Attempt is the outcome of one sweep charge against one schedule.
type Attempt struct {
	ScheduleReference    string        `json:"schedule_reference"`
	TransactionReference string        `json:"transaction_reference"`
	Status               PaymentStatus `json:"status"`
	GatewayTxID          *string       `json:"gateway_tx_id,omitempty"`
	Message              string        `json:"message,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateScheduleRequest) (Schedule, error)
	Get(ctx context.Context, reference string) (*Schedule, error)
	List(ctx context.Context, req ListSchedulesRequest) ([]Schedule, error)
	ListTransactions(ctx context.Context, reference string) ([]Transaction, error)

	ProcessDue(ctx context.Context) ([]Attempt, error)
	PayNow(ctx context.Context, reference string) (*Attempt, error)

	Pause(ctx context.Context, reference string) error
	Resume(ctx context.Context, reference string) error
	Cancel(ctx context.Context, reference string) error

	// ApplyGatewayEvent folds a verified webhook notification into the
	// schedule it references.
	ApplyGatewayEvent(ctx context.Context, event *paymentdomain.WebhookEvent) error
}
