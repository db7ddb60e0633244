// Package domain contains persistence models for time-boxed support access
// sessions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SessionState represents lifecycle states for a support session.
type SessionState string

const (
	SessionStateActive  SessionState = "active"
	SessionStateExpired SessionState = "expired"
	SessionStateEnded   SessionState = "ended"
)

// SessionDuration is the fixed time box granted to support staff. The expiry
// is stamped at creation and never moves.
const SessionDuration = 60 * time.Minute

// Session is one support access grant on a tenant instance.
type Session struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	SessionID    string       `gorm:"type:text;not null;index;uniqueIndex:idx_support_sessions_active_session_id,where:state = 'active'"`
	UserID       int64        `gorm:"not null;index"`
	UserLogin    string       `gorm:"type:text;not null"`
	MasterUID    int64        `gorm:"not null"`
	StartTime    time.Time    `gorm:"not null"`
	ExpiryTime   time.Time    `gorm:"not null;index"`
	EndTime      *time.Time   `gorm:""`
	State        SessionState `gorm:"type:text;not null;index"`
	CallbackURL  *string      `gorm:"type:text"`
	CallbackSent bool         `gorm:"not null;default:false"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "support_sessions" }

// IsExpired reports whether the time box has elapsed.
func (s Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiryTime)
}

// DurationMinutes is the elapsed session time, capped at the end time once
// the session is over.
func (s Session) DurationMinutes(now time.Time) int {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	if end.Before(s.StartTime) {
		return 0
	}
	return int(end.Sub(s.StartTime).Minutes())
}

// TimeRemaining is the time left on an active session, floored at zero.
func (s Session) TimeRemaining(now time.Time) time.Duration {
	if s.State != SessionStateActive {
		return 0
	}
	remaining := s.ExpiryTime.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
