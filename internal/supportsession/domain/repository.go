package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, session *Session) error
	FindBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*Session, error)
	FindActiveBySessionID(ctx context.Context, db *gorm.DB, sessionID string) (*Session, error)
	// MarkEnded applies the state-guarded terminal transition. It reports
	// false when the session was no longer active.
	MarkEnded(ctx context.Context, db *gorm.DB, sessionID string, state SessionState, endTime time.Time) (bool, error)
	// MarkCallbackSent flips the monotonic callback flag. It reports false
	// when the flag was already set.
	MarkCallbackSent(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	FetchExpiredForWork(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Session, error)
	List(ctx context.Context, db *gorm.DB, req ListSessionsRequest) ([]Session, error)
}
