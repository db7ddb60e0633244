package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/saasfoundry/tenantops/internal/audit/domain"
	"github.com/saasfoundry/tenantops/internal/clock"
	sessiondomain "github.com/saasfoundry/tenantops/internal/supportsession/domain"
	"github.com/saasfoundry/tenantops/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepBatchSize = 50

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     sessiondomain.Repository
	Notifier sessiondomain.Notifier
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     sessiondomain.Repository
	notifier sessiondomain.Notifier
	auditSvc auditdomain.Service
}

func NewService(p Params) sessiondomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("supportsession.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		notifier: p.Notifier,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req sessiondomain.CreateSessionRequest) (sessiondomain.Session, error) {
	if req.UserID == 0 {
		return sessiondomain.Session{}, sessiondomain.ErrInvalidUser
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	existing, err := s.repo.FindActiveBySessionID(ctx, s.db, sessionID)
	if err != nil {
		return sessiondomain.Session{}, err
	}
	if existing != nil {
		return sessiondomain.Session{}, sessiondomain.ErrDuplicateSession
	}

	now := s.clock.Now()
	session := sessiondomain.Session{
		ID:          s.genID.Generate(),
		SessionID:   sessionID,
		UserID:      req.UserID,
		UserLogin:   strings.TrimSpace(req.UserLogin),
		MasterUID:   req.MasterUID,
		StartTime:   now,
		ExpiryTime:  now.Add(sessiondomain.SessionDuration),
		State:       sessiondomain.SessionStateActive,
		CallbackURL: req.CallbackURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, &session); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return sessiondomain.Session{}, sessiondomain.ErrDuplicateSession
		}
		return sessiondomain.Session{}, err
	}

	s.log.Info("support session created",
		zap.String("session_id", session.SessionID),
		zap.Int64("user_id", session.UserID),
		zap.Int64("master_uid", session.MasterUID),
		zap.Time("expiry_time", session.ExpiryTime),
	)
	s.audit(ctx, "support_session.created", session.SessionID, map[string]any{
		"user_id":     session.UserID,
		"master_uid":  session.MasterUID,
		"expiry_time": session.ExpiryTime,
	})
	return session, nil
}

func (s *Service) CheckValid(ctx context.Context, sessionID string) (sessiondomain.CheckResult, error) {
	session, err := s.repo.FindActiveBySessionID(ctx, s.db, sessionID)
	if err != nil {
		return sessiondomain.CheckResult{}, err
	}
	if session == nil {
		return sessiondomain.CheckResult{Reason: sessiondomain.CheckReasonNotFound}, nil
	}

	now := s.clock.Now()
	if session.IsExpired(now) {
		// Transition-on-read: the sweep has not caught this one yet.
		if _, err := s.End(ctx, sessionID, sessiondomain.SessionStateExpired); err != nil {
			return sessiondomain.CheckResult{}, err
		}
		session.State = sessiondomain.SessionStateExpired
		return sessiondomain.CheckResult{Session: session, Reason: sessiondomain.CheckReasonExpired}, nil
	}

	return sessiondomain.CheckResult{Valid: true, Session: session}, nil
}

func (s *Service) End(ctx context.Context, sessionID string, reason sessiondomain.SessionState) (bool, error) {
	if reason != sessiondomain.SessionStateEnded && reason != sessiondomain.SessionStateExpired {
		return false, sessiondomain.ErrInvalidReason
	}

	session, err := s.repo.FindActiveBySessionID(ctx, s.db, sessionID)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, nil
	}

	now := s.clock.Now()
	transitioned, err := s.repo.MarkEnded(ctx, s.db, sessionID, reason, now)
	if err != nil {
		return false, err
	}
	if !transitioned {
		// Lost the race against another worker: already terminal.
		return false, nil
	}

	session.State = reason
	session.EndTime = &now

	s.log.Info("support session ended",
		zap.String("session_id", sessionID),
		zap.String("reason", string(reason)),
		zap.Int("duration_minutes", session.DurationMinutes(now)),
	)
	s.audit(ctx, "support_session."+string(reason), sessionID, map[string]any{
		"user_id":          session.UserID,
		"duration_minutes": session.DurationMinutes(now),
	})

	s.sendCallback(ctx, *session)
	return true, nil
}

// sendCallback makes the single delivery attempt. callback_sent only flips
// on a confirmed 200, so a crashed or failed delivery can be reconciled
// later without ever double-posting.
func (s *Service) sendCallback(ctx context.Context, session sessiondomain.Session) {
	if session.CallbackURL == nil || *session.CallbackURL == "" || session.CallbackSent {
		return
	}

	if err := s.notifier.NotifySessionEnded(ctx, session); err != nil {
		s.log.Warn("end-of-session callback not delivered",
			zap.String("session_id", session.SessionID),
			zap.Error(err),
		)
		return
	}

	if _, err := s.repo.MarkCallbackSent(ctx, s.db, session.ID); err != nil {
		s.log.Warn("callback flag update failed",
			zap.String("session_id", session.SessionID),
			zap.Error(err),
		)
	}
}

func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	ended := 0
	for {
		if ctx.Err() != nil {
			return ended, ctx.Err()
		}

		now := s.clock.Now()
		sessions, err := s.repo.FetchExpiredForWork(ctx, s.db, now, sweepBatchSize)
		if err != nil {
			return ended, err
		}
		if len(sessions) == 0 {
			return ended, nil
		}

		progressed := false
		for _, session := range sessions {
			transitioned, err := s.End(ctx, session.SessionID, sessiondomain.SessionStateExpired)
			if err != nil {
				return ended, err
			}
			if transitioned {
				ended++
				progressed = true
			}
		}
		if !progressed {
			return ended, nil
		}
	}
}

func (s *Service) List(ctx context.Context, req sessiondomain.ListSessionsRequest) ([]sessiondomain.Session, error) {
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) audit(ctx context.Context, action, sessionID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeSystem, nil, action, "support_session", &sessionID, metadata)
}
