// Package notifier delivers the end-of-session callback to the master
// server. One POST, fixed timeout, no retry queue: a failed delivery leaves
// callback_sent unset and is reconciled manually.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	sessiondomain "github.com/saasfoundry/tenantops/internal/supportsession/domain"
	"go.uber.org/zap"
)

const callbackTimeout = 10 * time.Second

type HTTPNotifier struct {
	log    *zap.Logger
	client *http.Client
}

func New(log *zap.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		log:    log.Named("session.notifier"),
		client: &http.Client{Timeout: callbackTimeout},
	}
}

func (n *HTTPNotifier) NotifySessionEnded(ctx context.Context, session sessiondomain.Session) error {
	if session.CallbackURL == nil || *session.CallbackURL == "" {
		return nil
	}

	body, err := json.Marshal(sessiondomain.NewEndCallback(session))
	if err != nil {
		return fmt.Errorf("encode callback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *session.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("session end callback failed",
			zap.String("session_id", session.SessionID),
			zap.Error(err),
		)
		return sessiondomain.ErrCallbackFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		n.log.Warn("session end callback rejected",
			zap.String("session_id", session.SessionID),
			zap.Int("status", resp.StatusCode),
		)
		return sessiondomain.ErrCallbackFailed
	}

	n.log.Info("session end callback delivered",
		zap.String("session_id", session.SessionID),
	)
	return nil
}
