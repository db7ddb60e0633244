// Package secretstore holds short-lived payment card payloads between the
// capture step and the charge call. Entries are keyed by transaction
// reference, guarded by a one-time token, and evicted on read-expiry or by
// the scheduler sweep. Payloads never reach logs or the database.
package secretstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/saasfoundry/tenantops/internal/cache"
	"go.uber.org/zap"
)

const defaultTTL = 15 * time.Minute

type record struct {
	token   string
	payload map[string]string
}

// Store is an ephemeral keyed secret store. One instance is owned by the
// payment wiring and passed to callers explicitly.
type Store struct {
	log     *zap.Logger
	entries cache.Cache[string, record]
	ttl     time.Duration
}

func New(log *zap.Logger) *Store {
	return &Store{
		log:     log.Named("secretstore"),
		entries: cache.NewTTLCache[string, record](),
		ttl:     defaultTTL,
	}
}

// Put stores a payload under the transaction reference and returns the token
// required to read it back.
func (s *Store) Put(reference string, payload map[string]string) string {
	token := uuid.NewString()
	copied := make(map[string]string, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	s.entries.Set(reference, record{token: token, payload: copied}, s.ttl)
	s.log.Debug("secret stored", zap.String("reference", reference))
	return token
}

// Get returns the payload for reference when the token matches. A mismatched
// token behaves exactly like a miss.
func (s *Store) Get(reference, token string) (map[string]string, bool) {
	item, ok := s.entries.Get(reference)
	if !ok {
		return nil, false
	}
	if token != "" && item.token != token {
		s.log.Warn("secret token mismatch", zap.String("reference", reference))
		return nil, false
	}
	return item.payload, true
}

// Forget drops the payload for reference, typically right after a charge.
func (s *Store) Forget(reference string) {
	s.entries.Delete(reference)
}

// Sweep evicts expired entries and reports how many were removed.
func (s *Store) Sweep(now time.Time) int {
	removed := s.entries.Sweep(now)
	if removed > 0 {
		s.log.Info("expired secrets removed", zap.Int("count", removed))
	}
	return removed
}
