package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub008/internal/application/dispatcher"
	"github.com/steiner385/MachShop-sub008/internal/domain/event"
)

// WebhookConfig holds configuration for the webhook notifier
type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// WebhookNotifier forwards committed domain events to a notification endpoint
// as signed JSON POSTs. Delivery is best-effort: the orchestrator's own state
// never depends on a webhook landing, so failures are logged and dropped.
type WebhookNotifier struct {
	config WebhookConfig
	client *http.Client
	logger *zap.Logger
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(config WebhookConfig, logger *zap.Logger) *WebhookNotifier {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		config: config,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Register subscribes the notifier to the event types worth telling users
// about. Internal bookkeeping events (stage completion, instance start) stay
// off the wire.
func (n *WebhookNotifier) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{
		event.TypeNotifyRequested,
		event.TypeAssignmentCreated,
		event.TypeStageEscalated,
		event.TypeInstanceCompleted,
		event.TypeInstanceRejected,
	} {
		d.SubscribeNamed(t, "webhook-notifier", n.Handle)
	}
}

// Handle delivers a single event. It satisfies dispatcher.Handler.
func (n *WebhookNotifier) Handle(ctx context.Context, evt *event.Event) error {
	if n.config.URL == "" {
		return nil
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", evt.Type.String())
	req.Header.Set("X-Event-ID", evt.ID)
	if n.config.Secret != "" {
		req.Header.Set("X-Signature", n.sign(body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Error("Webhook delivery failed",
			zap.String("event_type", evt.Type.String()),
			zap.String("event_id", evt.ID),
			zap.Error(err))
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		n.logger.Error("Webhook endpoint returned error",
			zap.String("event_type", evt.Type.String()),
			zap.String("event_id", evt.ID),
			zap.Int("status_code", resp.StatusCode))
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	n.logger.Debug("Webhook delivered",
		zap.String("event_type", evt.Type.String()),
		zap.String("event_id", evt.ID))
	return nil
}

// sign computes the HMAC-SHA256 signature the receiver verifies.
func (n *WebhookNotifier) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(n.config.Secret))
	mac.Write(body)
	return fmt.Sprintf("%x", mac.Sum(nil))
}
