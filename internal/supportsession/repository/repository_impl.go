package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	sessiondomain "github.com/saasfoundry/tenantops/internal/supportsession/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() sessiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, session *sessiondomain.Session) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO support_sessions (
			id, session_id, user_id, user_login, master_uid, start_time, expiry_time,
			end_time, state, callback_url, callback_sent, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.SessionID,
		session.UserID,
		session.UserLogin,
		session.MasterUID,
		session.StartTime,
		session.ExpiryTime,
		session.EndTime,
		session.State,
		session.CallbackURL,
		session.CallbackSent,
		session.CreatedAt,
		session.UpdatedAt,
	).Error
}

func (r *repo) FindBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*sessiondomain.Session, error) {
	var session sessiondomain.Session
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("start_time DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repo) FindActiveBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*sessiondomain.Session, error) {
	var session sessiondomain.Session
	err := db.WithContext(ctx).
		Where("session_id = ? AND state = ?", sessionID, sessiondomain.SessionStateActive).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repo) MarkEnded(ctx context.Context, db *gorm.DB, sessionID string, state sessiondomain.SessionState, endTime time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE support_sessions
		 SET state = ?, end_time = ?, updated_at = ?
		 WHERE session_id = ? AND state = ?`,
		state,
		endTime,
		endTime,
		sessionID,
		sessiondomain.SessionStateActive,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkCallbackSent(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE support_sessions
		 SET callback_sent = ?, updated_at = ?
		 WHERE id = ? AND callback_sent = ?`,
		true,
		time.Now().UTC(),
		id,
		false,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FetchExpiredForWork(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]sessiondomain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	var sessions []sessiondomain.Session
	query := fmt.Sprintf(
		`SELECT * FROM support_sessions
		 WHERE state = ? AND expiry_time < ?
		 ORDER BY expiry_time ASC, id ASC%s
		 LIMIT ?`,
		lockingClause(db),
	)
	err := db.WithContext(ctx).Raw(query, sessiondomain.SessionStateActive, now, limit).Scan(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req sessiondomain.ListSessionsRequest) ([]sessiondomain.Session, error) {
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := db.WithContext(ctx).Model(&sessiondomain.Session{})
	if req.State != "" {
		query = query.Where("state = ?", req.State)
	}
	if req.UserID != 0 {
		query = query.Where("user_id = ?", req.UserID)
	}

	var sessions []sessiondomain.Session
	err := query.Order("start_time DESC").Limit(limit).Find(&sessions).Error
	return sessions, err
}

// lockingClause returns the row-claiming suffix for dialects that support it.
// SQLite serializes writers already, so the clause is omitted there.
func lockingClause(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "\n\t\t FOR UPDATE SKIP LOCKED"
	default:
		return ""
	}
}
