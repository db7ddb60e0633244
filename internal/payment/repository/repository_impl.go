package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/saasfoundry/tenantops/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, transactionIdentifier string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, recurring_identifier, transaction_identifier, status,
			amount, currency, payment_date, payload, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND transaction_identifier = ?
		 LIMIT 1`,
		provider,
		transactionIdentifier,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, recurring_identifier, transaction_identifier, status,
			amount, currency, payment_date, payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, transaction_identifier) DO NOTHING`,
		event.ID,
		event.Provider,
		event.RecurringIdentifier,
		event.TransactionIdentifier,
		event.Status,
		event.Amount,
		event.Currency,
		event.PaymentDate,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}
