package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/saasfoundry/tenantops/internal/payment/domain"
	"github.com/saasfoundry/tenantops/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	webhookOutcomeAccepted    = "accepted"
	webhookOutcomeDuplicate   = "duplicate"
	webhookOutcomeRejected    = "rejected"
	webhookOutcomeRateLimited = "rate_limited"
)

// WebhookRateLimit throttles the public webhook endpoint per provider and
// per source address. Without redis the limiter is nil and everything
// passes.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.webhookLimiter == nil {
			c.Next()
			return
		}

		provider := strings.TrimSpace(c.Param("provider"))
		result, err := s.webhookLimiter.Allow(c.Request.Context(), provider, c.ClientIP())
		if err != nil {
			s.log.Warn("webhook rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			s.metrics.IncWebhookEvent(provider, webhookOutcomeRateLimited)
			c.Header("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(result.RetryAfter)))
			AbortWithError(c, ErrTooManyRequests)
			return
		}

		c.Next()
	}
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.paymentSvc.Ingest(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		// Redelivered events already converged; acknowledge so the
		// gateway stops retrying.
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			s.metrics.IncWebhookEvent(provider, webhookOutcomeDuplicate)
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		s.metrics.IncWebhookEvent(provider, webhookOutcomeRejected)
		AbortWithError(c, err)
		return
	}

	s.metrics.IncWebhookEvent(provider, webhookOutcomeAccepted)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func isPaymentValidationError(err error) bool {
	switch err {
	case paymentdomain.ErrInvalidProvider,
		paymentdomain.ErrProviderNotFound,
		paymentdomain.ErrInvalidPayload,
		paymentdomain.ErrInvalidEvent:
		return true
	default:
		return false
	}
}
