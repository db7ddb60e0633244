package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, schedule *Schedule) error
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Schedule, error)
	FindByGatewayRecurringID(ctx context.Context, db *gorm.DB, gatewayRecurringID string) (*Schedule, error)
	List(ctx context.Context, db *gorm.DB, req ListSchedulesRequest) ([]Schedule, error)

	// FetchDueForWork selects active merchant-managed schedules that are
	// either due or retry-due at now. The two predicates are disjoint on
	// last_payment_status, so a schedule matches at most one of them.
	FetchDueForWork(ctx context.Context, db *gorm.DB, now time.Time, retryCutoff time.Time, limit int) ([]Schedule, error)

	// UpdateAfterAttempt persists the payment bookkeeping fields, guarded
	// on the schedule still being active.
	UpdateAfterAttempt(ctx context.Context, db *gorm.DB, schedule *Schedule) (bool, error)

	// TransitionState flips state only when the current state is one of
	// the allowed sources. Returns false when the guard lost.
	TransitionState(ctx context.Context, db *gorm.DB, reference string, from []ScheduleState, to ScheduleState, now time.Time) (bool, error)

	// SetGatewayRecurringID records the gateway's identifier once. A
	// second write with a different value is a no-op.
	SetGatewayRecurringID(ctx context.Context, db *gorm.DB, reference, gatewayRecurringID string, now time.Time) error

	InsertTransaction(ctx context.Context, db *gorm.DB, tx *Transaction) (bool, error)
	ListTransactions(ctx context.Context, db *gorm.DB, scheduleID snowflake.ID) ([]Transaction, error)
}
