package domain

import (
	"context"
	"errors"
	"time"
)

type CreateSessionRequest struct {
	UserID      int64   `json:"user_id"`
	UserLogin   string  `json:"user_login"`
	MasterUID   int64   `json:"master_uid"`
	SessionID   string  `json:"session_id,omitempty"`
	CallbackURL *string `json:"callback_url,omitempty"`
}

type ListSessionsRequest struct {
	State  string
	UserID int64
	Limit  int
}

// CheckResult reports session validity. Reason is set only when Valid is
// false.
type CheckResult struct {
	Valid   bool     `json:"valid"`
	Session *Session `json:"session,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

const (
	CheckReasonNotFound = "not_found"
	CheckReasonExpired  = "expired"
)

type Service interface {
	Create(ctx context.Context, req CreateSessionRequest) (Session, error)
	CheckValid(ctx context.Context, sessionID string) (CheckResult, error)
	// End closes an active session. It returns false when the session was
	// already terminal, which callers treat as a benign no-op.
	End(ctx context.Context, sessionID string, reason SessionState) (bool, error)
	SweepExpired(ctx context.Context) (int, error)
	List(ctx context.Context, req ListSessionsRequest) ([]Session, error)
}

// Notifier delivers the end-of-session callback to the master server.
// Implementations make exactly one attempt.
type Notifier interface {
	NotifySessionEnded(ctx context.Context, session Session) error
}

var (
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidReason    = errors.New("invalid_reason")
	ErrDuplicateSession = errors.New("duplicate_session")
	ErrSessionNotFound  = errors.New("session_not_found")
	ErrCallbackFailed   = errors.New("callback_failed")
)

// EndCallback is the JSON body POSTed to the master callback URL when a
// session ends.
type EndCallback struct {
	SessionID       string  `json:"session_id"`
	MasterUID       int64   `json:"master_uid"`
	UserID          int64   `json:"user_id"`
	UserLogin       string  `json:"user_login"`
	StartTime       string  `json:"start_time"`
	EndTime         *string `json:"end_time"`
	DurationMinutes int     `json:"duration_minutes"`
	State           string  `json:"state"`
}

// NewEndCallback flattens a session into the callback wire format.
func NewEndCallback(session Session) EndCallback {
	var endTime *string
	if session.EndTime != nil {
		formatted := session.EndTime.UTC().Format(time.RFC3339)
		endTime = &formatted
	}
	end := time.Now().UTC()
	if session.EndTime != nil {
		end = *session.EndTime
	}
	return EndCallback{
		SessionID:       session.SessionID,
		MasterUID:       session.MasterUID,
		UserID:          session.UserID,
		UserLogin:       session.UserLogin,
		StartTime:       session.StartTime.UTC().Format(time.RFC3339),
		EndTime:         endTime,
		DurationMinutes: session.DurationMinutes(end),
		State:           string(session.State),
	}
}
