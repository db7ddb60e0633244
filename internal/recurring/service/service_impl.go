package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/saasfoundry/tenantops/internal/audit/domain"
	"github.com/saasfoundry/tenantops/internal/clock"
	"github.com/saasfoundry/tenantops/internal/config"
	paymentdomain "github.com/saasfoundry/tenantops/internal/payment/domain"
	"github.com/saasfoundry/tenantops/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	recurringdomain "github.com/saasfoundry/tenantops/internal/recurring/domain"
)

const processBatchSize = 50

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     recurringdomain.Repository
	Policy   *config.RetryPolicyHolder
	Adapter  paymentdomain.Adapter
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     recurringdomain.Repository
	policy   *config.RetryPolicyHolder
	adapter  paymentdomain.Adapter
	auditSvc auditdomain.Service
}

func NewService(p Params) recurringdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("recurring.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		policy:   p.Policy,
		adapter:  p.Adapter,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req recurringdomain.CreateScheduleRequest) (recurringdomain.Schedule, error) {
	if req.Amount <= 0 {
		return recurringdomain.Schedule{}, recurringdomain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return recurringdomain.Schedule{}, recurringdomain.ErrInvalidCurrency
	}
	if !req.Frequency.Valid() {
		return recurringdomain.Schedule{}, recurringdomain.ErrInvalidFrequency
	}
	if strings.TrimSpace(req.TokenID) == "" {
		return recurringdomain.Schedule{}, recurringdomain.ErrInvalidToken
	}

	managementType := req.ManagementType
	if managementType == "" {
		managementType = recurringdomain.ManagementMerchant
	}

	now := s.clock.Now()
	startDate := req.StartDate
	if startDate.IsZero() {
		startDate = now
	}

	id := s.genID.Generate()
	schedule := recurringdomain.Schedule{
		ID:                id,
		Reference:         fmt.Sprintf("REC-%d", id),
		CustomerID:        req.CustomerID,
		TokenID:           strings.TrimSpace(req.TokenID),
		Amount:            req.Amount,
		Currency:          currency,
		Frequency:         req.Frequency,
		ManagementType:    managementType,
		State:             recurringdomain.ScheduleStateActive,
		StartDate:         startDate,
		EndDate:           req.EndDate,
		NextPaymentDate:   startDate,
		MaxRetryCount:     s.policy.Current().MaxRetryCount,
		LastPaymentStatus: recurringdomain.PaymentStatusPending,
		Metadata:          datatypes.JSONMap(req.Metadata),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Insert(ctx, s.db, &schedule); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return recurringdomain.Schedule{}, recurringdomain.ErrDuplicateReference
		}
		return recurringdomain.Schedule{}, err
	}

	s.log.Info("recurring schedule created",
		zap.String("reference", schedule.Reference),
		zap.Int64("amount", schedule.Amount),
		zap.String("currency", schedule.Currency),
		zap.String("frequency", string(schedule.Frequency)),
	)
	s.audit(ctx, "recurring.created", schedule.Reference, map[string]any{
		"amount":    schedule.Amount,
		"currency":  schedule.Currency,
		"frequency": schedule.Frequency,
	})
	return schedule, nil
}

func (s *Service) Get(ctx context.Context, reference string) (*recurringdomain.Schedule, error) {
	schedule, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, recurringdomain.ErrScheduleNotFound
	}
	return schedule, nil
}

func (s *Service) List(ctx context.Context, req recurringdomain.ListSchedulesRequest) ([]recurringdomain.Schedule, error) {
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) ListTransactions(ctx context.Context, reference string) ([]recurringdomain.Transaction, error) {
	schedule, err := s.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, s.db, schedule.ID)
}

// ProcessDue charges every due or retry-due schedule once. Failures on
// one schedule do not stop the sweep.
func (s *Service) ProcessDue(ctx context.Context) ([]recurringdomain.Attempt, error) {
	now := s.clock.Now()
	policy := s.policy.Current()
	retryCutoff := now.AddDate(0, 0, -policy.RetryIntervalDays)

	var attempts []recurringdomain.Attempt
	// A schedule advanced one period can still be due when it was
	// backlogged, so later batches may return rows already charged in
	// this sweep. The seen set caps every schedule at one attempt.
	seen := make(map[snowflake.ID]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}

		schedules, err := s.repo.FetchDueForWork(ctx, s.db, now, retryCutoff, processBatchSize)
		if err != nil {
			return attempts, err
		}
		if len(schedules) == 0 {
			return attempts, nil
		}

		progressed := false
		for i := range schedules {
			if _, done := seen[schedules[i].ID]; done {
				continue
			}
			seen[schedules[i].ID] = struct{}{}
			progressed = true

			attempt, err := s.attemptCharge(ctx, &schedules[i], now)
			if err != nil {
				s.log.Error("recurring charge attempt errored",
					zap.String("reference", schedules[i].Reference),
					zap.Error(err),
				)
				continue
			}
			attempts = append(attempts, *attempt)
		}
		if !progressed || len(schedules) < processBatchSize {
			return attempts, nil
		}
	}
}

func (s *Service) PayNow(ctx context.Context, reference string) (*recurringdomain.Attempt, error) {
	schedule, err := s.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	if schedule.State != recurringdomain.ScheduleStateActive {
		return nil, recurringdomain.ErrInvalidTransition
	}
	return s.attemptCharge(ctx, schedule, s.clock.Now())
}

// attemptCharge runs one charge and folds the outcome into the
// schedule. The schedule row is only written after the gateway call
// returns, so an aborted call leaves no partial state.
func (s *Service) attemptCharge(ctx context.Context, schedule *recurringdomain.Schedule, now time.Time) (*recurringdomain.Attempt, error) {
	txID := s.genID.Generate()
	txRef := fmt.Sprintf("%s-%d", schedule.Reference, txID)

	result, chargeErr := s.adapter.Charge(ctx, paymentdomain.ChargeRequest{
		Reference: txRef,
		TokenRef:  schedule.TokenID,
		Amount:    schedule.Amount,
		Currency:  schedule.Currency,
	})

	approved := chargeErr == nil && result != nil && result.Approved

	attempt := recurringdomain.Attempt{
		ScheduleReference:    schedule.Reference,
		TransactionReference: txRef,
	}
	tx := recurringdomain.Transaction{
		ID:         txID,
		ScheduleID: schedule.ID,
		Reference:  txRef,
		Amount:     schedule.Amount,
		Currency:   schedule.Currency,
		OccurredAt: now,
		CreatedAt:  now,
	}

	if approved {
		tx.Status = recurringdomain.PaymentStatusSuccess
		if result.GatewayTxID != "" {
			gatewayTxID := result.GatewayTxID
			tx.GatewayTxID = &gatewayTxID
			attempt.GatewayTxID = &gatewayTxID
		}
		attempt.Status = recurringdomain.PaymentStatusSuccess

		schedule.RetryCount = 0
		schedule.MissedPaymentCount = 0
		schedule.LastPaymentStatus = recurringdomain.PaymentStatusSuccess
		schedule.NextPaymentDate = recurringdomain.AdvancePaymentDate(schedule.NextPaymentDate, schedule.Frequency)
		if schedule.EndDate != nil && schedule.NextPaymentDate.After(*schedule.EndDate) {
			schedule.State = recurringdomain.ScheduleStateCompleted
		}
	} else {
		tx.Status = recurringdomain.PaymentStatusFailed
		attempt.Status = recurringdomain.PaymentStatusFailed
		if chargeErr != nil {
			attempt.Message = chargeErr.Error()
		} else if result != nil {
			attempt.Message = result.Message
		}

		schedule.RetryCount++
		schedule.MissedPaymentCount++
		schedule.LastRetryDate = &now
		schedule.LastPaymentStatus = recurringdomain.PaymentStatusFailed
		if max := schedule.MaxRetryCount; max > 0 && schedule.RetryCount >= max {
			schedule.State = recurringdomain.ScheduleStatePaused
		}
	}
	schedule.UpdatedAt = now

	if _, err := s.repo.InsertTransaction(ctx, s.db, &tx); err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateAfterAttempt(ctx, s.db, schedule)
	if err != nil {
		return nil, err
	}
	if !updated {
		// The schedule moved out of active underneath us. The attempt
		// record stands; the bookkeeping write is dropped.
		s.log.Warn("recurring schedule changed state during attempt",
			zap.String("reference", schedule.Reference),
		)
	}

	if attempt.Status == recurringdomain.PaymentStatusSuccess {
		s.audit(ctx, "recurring.charge_succeeded", schedule.Reference, map[string]any{
			"transaction_reference": txRef,
			"amount":                schedule.Amount,
		})
	} else {
		s.audit(ctx, "recurring.charge_failed", schedule.Reference, map[string]any{
			"transaction_reference": txRef,
			"retry_count":           schedule.RetryCount,
			"message":               attempt.Message,
		})
		if schedule.State == recurringdomain.ScheduleStatePaused {
			s.log.Warn("recurring schedule paused after exhausting retries",
				zap.String("reference", schedule.Reference),
				zap.Int("retry_count", schedule.RetryCount),
			)
			s.audit(ctx, "recurring.retries_exhausted", schedule.Reference, map[string]any{
				"retry_count": schedule.RetryCount,
			})
		}
	}

	return &attempt, nil
}

func (s *Service) Pause(ctx context.Context, reference string) error {
	return s.transition(ctx, reference,
		[]recurringdomain.ScheduleState{recurringdomain.ScheduleStateActive},
		recurringdomain.ScheduleStatePaused,
		"recurring.paused",
	)
}

func (s *Service) Resume(ctx context.Context, reference string) error {
	return s.transition(ctx, reference,
		[]recurringdomain.ScheduleState{recurringdomain.ScheduleStatePaused},
		recurringdomain.ScheduleStateActive,
		"recurring.resumed",
	)
}

func (s *Service) Cancel(ctx context.Context, reference string) error {
	return s.transition(ctx, reference,
		[]recurringdomain.ScheduleState{
			recurringdomain.ScheduleStateActive,
			recurringdomain.ScheduleStatePaused,
		},
		recurringdomain.ScheduleStateCancelled,
		"recurring.cancelled",
	)
}

func (s *Service) transition(ctx context.Context, reference string, from []recurringdomain.ScheduleState, to recurringdomain.ScheduleState, action string) error {
	schedule, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return err
	}
	if schedule == nil {
		return recurringdomain.ErrScheduleNotFound
	}

	ok, err := s.repo.TransitionState(ctx, s.db, reference, from, to, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return recurringdomain.ErrInvalidTransition
	}

	s.log.Info("recurring schedule transitioned",
		zap.String("reference", reference),
		zap.String("state", string(to)),
	)
	s.audit(ctx, action, reference, nil)
	return nil
}

func (s *Service) ApplyGatewayEvent(ctx context.Context, event *paymentdomain.WebhookEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}

	schedule, err := s.repo.FindByGatewayRecurringID(ctx, s.db, event.RecurringIdentifier)
	if err != nil {
		return err
	}
	if schedule == nil {
		return paymentdomain.ErrUnknownRecurringIdentifier
	}

	now := s.clock.Now()
	gatewayTxID := event.TransactionIdentifier
	tx := recurringdomain.Transaction{
		ID:          s.genID.Generate(),
		ScheduleID:  schedule.ID,
		Reference:   event.TransactionIdentifier,
		GatewayTxID: &gatewayTxID,
		Amount:      event.Amount,
		Currency:    event.Currency,
		OccurredAt:  event.PaymentDate,
		CreatedAt:   now,
	}
	switch event.Status {
	case paymentdomain.EventStatusSuccess:
		tx.Status = recurringdomain.PaymentStatusSuccess
	case paymentdomain.EventStatusFailed:
		tx.Status = recurringdomain.PaymentStatusFailed
	default:
		return paymentdomain.ErrInvalidEvent
	}

	inserted, err := s.repo.InsertTransaction(ctx, s.db, &tx)
	if err != nil {
		return err
	}
	if !inserted {
		// Redelivery of a transaction already folded in.
		return nil
	}

	if tx.Status == recurringdomain.PaymentStatusSuccess {
		schedule.RetryCount = 0
		schedule.MissedPaymentCount = 0
		schedule.LastPaymentStatus = recurringdomain.PaymentStatusSuccess
	} else {
		schedule.LastPaymentStatus = recurringdomain.PaymentStatusFailed
		schedule.MissedPaymentCount++
		// The retry sweep only picks up failed schedules with a retry
		// date on record, so the failure must stamp one here too.
		schedule.LastRetryDate = &now
	}
	schedule.UpdatedAt = now
	if _, err := s.repo.UpdateAfterAttempt(ctx, s.db, schedule); err != nil {
		return err
	}

	s.audit(ctx, "recurring.gateway_event", schedule.Reference, map[string]any{
		"transaction_identifier": event.TransactionIdentifier,
		"status":                 string(tx.Status),
	})
	return nil
}

func (s *Service) audit(ctx context.Context, action, reference string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeSystem, nil, action, "recurring_schedule", &reference, metadata); err != nil {
		s.log.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}
