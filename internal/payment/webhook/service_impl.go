package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/saasfoundry/tenantops/internal/clock"
	"github.com/saasfoundry/tenantops/internal/config"
	"github.com/saasfoundry/tenantops/internal/payment/adapters"
	paymentdomain "github.com/saasfoundry/tenantops/internal/payment/domain"
	recurringdomain "github.com/saasfoundry/tenantops/internal/recurring/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         paymentdomain.Repository
	Adapters     *adapters.Registry
	RecurringSvc recurringdomain.Service
	Cfg          config.Config
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         paymentdomain.Repository
	adapters     *adapters.Registry
	recurringSvc recurringdomain.Service
	adapterCfg   paymentdomain.AdapterConfig
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.webhook"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		adapters:     p.Adapters,
		recurringSvc: p.RecurringSvc,
		adapterCfg:   AdapterConfigFromEnv(p.Cfg),
	}
}

// AdapterConfigFromEnv maps gateway credentials onto the adapter
// config shape shared by all providers.
func AdapterConfigFromEnv(cfg config.Config) paymentdomain.AdapterConfig {
	return paymentdomain.AdapterConfig{Config: map[string]any{
		"webhook_secret":   cfg.GatewayWebhookSecret,
		"base_url":         cfg.GatewayBaseURL,
		"gateway_id":       cfg.GatewayID,
		"gateway_password": cfg.GatewayPassword,
	}}
}

// Ingest verifies, parses, and applies one inbound gateway
// notification. A redelivered transaction identifier converges to the
// already-recorded state.
func (s *Service) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.NewAdapter(provider, s.adapterCfg)
	if err != nil {
		return err
	}

	// Nothing is written before the signature checks out.
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("webhook signature rejected", zap.String("provider", provider))
		return paymentdomain.ErrAuthenticationFailed
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		return err
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:                    s.genID.Generate(),
		Provider:              provider,
		RecurringIdentifier:   event.RecurringIdentifier,
		TransactionIdentifier: event.TransactionIdentifier,
		Status:                event.Status,
		Amount:                event.Amount,
		Currency:              event.Currency,
		PaymentDate:           event.PaymentDate,
		Payload:               datatypes.JSON(event.RawPayload),
		ReceivedAt:            now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, provider, event.TransactionIdentifier)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	if err := s.recurringSvc.ApplyGatewayEvent(ctx, event); err != nil {
		if errors.Is(err, paymentdomain.ErrUnknownRecurringIdentifier) {
			s.log.Warn("webhook references unknown recurring schedule",
				zap.String("provider", provider),
				zap.String("recurring_identifier", event.RecurringIdentifier),
			)
		}
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, now); err != nil {
		return err
	}

	s.log.Info("webhook processed",
		zap.String("provider", provider),
		zap.String("transaction_identifier", event.TransactionIdentifier),
		zap.String("status", event.Status),
	)
	return nil
}
