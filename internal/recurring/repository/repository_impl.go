package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/saasfoundry/tenantops/internal/recurring/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, schedule *domain.Schedule) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO recurring_schedules (
			id, reference, customer_id, token_id, amount, currency, frequency,
			management_type, state, start_date, end_date, next_payment_date,
			retry_count, max_retry_count, last_retry_date, last_payment_status,
			missed_payment_count, gateway_recurring_id, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID,
		schedule.Reference,
		schedule.CustomerID,
		schedule.TokenID,
		schedule.Amount,
		schedule.Currency,
		schedule.Frequency,
		schedule.ManagementType,
		schedule.State,
		schedule.StartDate,
		schedule.EndDate,
		schedule.NextPaymentDate,
		schedule.RetryCount,
		schedule.MaxRetryCount,
		schedule.LastRetryDate,
		schedule.LastPaymentStatus,
		schedule.MissedPaymentCount,
		schedule.GatewayRecurringID,
		schedule.Metadata,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	).Error
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Schedule, error) {
	var item domain.Schedule
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM recurring_schedules WHERE reference = ? LIMIT 1`,
		reference,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByGatewayRecurringID(ctx context.Context, db *gorm.DB, gatewayRecurringID string) (*domain.Schedule, error) {
	var item domain.Schedule
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM recurring_schedules WHERE gateway_recurring_id = ? LIMIT 1`,
		gatewayRecurringID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListSchedulesRequest) ([]domain.Schedule, error) {
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT * FROM recurring_schedules WHERE 1 = 1`
	args := make([]any, 0, 4)
	if req.CustomerID != 0 {
		query += ` AND customer_id = ?`
		args = append(args, req.CustomerID)
	}
	if req.State != "" {
		query += ` AND state = ?`
		args = append(args, req.State)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var items []domain.Schedule
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FetchDueForWork(ctx context.Context, db *gorm.DB, now, retryCutoff time.Time, limit int) ([]domain.Schedule, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(
		`SELECT * FROM recurring_schedules
		 WHERE state = ? AND management_type = ?
		   AND (
			(next_payment_date <= ? AND last_payment_status <> ?)
			OR (last_payment_status = ? AND last_retry_date IS NOT NULL AND last_retry_date <= ?)
		   )
		 ORDER BY next_payment_date ASC, id ASC%s
		 LIMIT ?`,
		lockingClause(db),
	)
	var items []domain.Schedule
	err := db.WithContext(ctx).Raw(
		query,
		domain.ScheduleStateActive,
		domain.ManagementMerchant,
		now,
		domain.PaymentStatusFailed,
		domain.PaymentStatusFailed,
		retryCutoff,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateAfterAttempt(ctx context.Context, db *gorm.DB, schedule *domain.Schedule) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE recurring_schedules
		 SET next_payment_date = ?, retry_count = ?, last_retry_date = ?,
			last_payment_status = ?, missed_payment_count = ?, state = ?, updated_at = ?
		 WHERE reference = ? AND state = ?`,
		schedule.NextPaymentDate,
		schedule.RetryCount,
		schedule.LastRetryDate,
		schedule.LastPaymentStatus,
		schedule.MissedPaymentCount,
		schedule.State,
		schedule.UpdatedAt,
		schedule.Reference,
		domain.ScheduleStateActive,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) TransitionState(ctx context.Context, db *gorm.DB, reference string, from []domain.ScheduleState, to domain.ScheduleState, now time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE recurring_schedules
		 SET state = ?, updated_at = ?
		 WHERE reference = ? AND state IN ?`,
		to,
		now,
		reference,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetGatewayRecurringID(ctx context.Context, db *gorm.DB, reference, gatewayRecurringID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE recurring_schedules
		 SET gateway_recurring_id = ?, updated_at = ?
		 WHERE reference = ? AND gateway_recurring_id IS NULL`,
		gatewayRecurringID,
		now,
		reference,
	).Error
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, tx *domain.Transaction) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO recurring_transactions (
			id, schedule_id, reference, gateway_tx_id, amount, currency, status, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (reference) DO NOTHING`,
		tx.ID,
		tx.ScheduleID,
		tx.Reference,
		tx.GatewayTxID,
		tx.Amount,
		tx.Currency,
		tx.Status,
		tx.OccurredAt,
		tx.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, scheduleID snowflake.ID) ([]domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM recurring_transactions
		 WHERE schedule_id = ?
		 ORDER BY occurred_at DESC, id DESC`,
		scheduleID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// lockingClause returns the row-claiming suffix for dialects that support it.
// SQLite serializes writers already, so the clause is omitted there.
func lockingClause(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "\n\t\t FOR UPDATE SKIP LOCKED"
	}
	return ""
}
