package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/omnik/internal/infrastructure/config"
	"github.com/GriffinCanCode/omnik/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/omnik/internal/shared/utils"
)

const (
	userAgent = "omnik-notify/1.0"
	// SignatureHeader carries the keyed BLAKE2b digest of the body.
	SignatureHeader = "X-Omnik-Signature"
)

// ErrDelivery is returned when the webhook rejects an event.
var ErrDelivery = errors.New("webhook delivery failed")

// Event describes a reply that waits on the session owner.
type Event struct {
	SessionID string    `json:"session_id"`
	OwnerID   int64     `json:"owner_id"`
	Category  string    `json:"category"`
	Summary   string    `json:"summary"`
	Prompt    string    `json:"prompt,omitempty"`
	Options   []string  `json:"options,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers events to a single webhook.
type Notifier struct {
	url     string
	secret  []byte
	hasher  *utils.Hasher
	client  *resty.Client
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// New builds a notifier from cfg. Metrics may be nil.
func New(cfg config.NotifyConfig, metrics *monitoring.Metrics, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = max(cfg.MaxRetries, 0)
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Content-Type", "application/json").
		SetTransport(retryClient.StandardClient().Transport)

	return &Notifier{
		url:     cfg.WebhookURL,
		secret:  []byte(cfg.Secret),
		hasher:  utils.DefaultHasher(),
		client:  client,
		metrics: metrics,
		logger:  logger,
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Notify posts ev to the webhook. It returns nil without sending when the
// notifier is disabled.
func (n *Notifier) Notify(ctx context.Context, ev Event) error {
	if !n.Enabled() {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	body, err := sonic.Marshal(ev)
	if err != nil {
		n.metrics.RecordNotification("error")
		return fmt.Errorf("encode event: %w", err)
	}

	req := n.client.R().SetContext(ctx).SetBody(body)
	if len(n.secret) > 0 {
		sig, err := n.hasher.Sign(n.secret, body)
		if err != nil {
			n.metrics.RecordNotification("error")
			return fmt.Errorf("sign event: %w", err)
		}
		req.SetHeader(SignatureHeader, string(n.hasher.Algorithm())+"="+sig)
	}

	resp, err := req.Post(n.url)
	if err != nil {
		n.metrics.RecordNotification("error")
		n.logger.Warn("Webhook request failed",
			zap.String("session_id", ev.SessionID),
			zap.Error(err))
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	if resp.IsError() {
		n.metrics.RecordNotification("rejected")
		n.logger.Warn("Webhook rejected event",
			zap.String("session_id", ev.SessionID),
			zap.Int("status", resp.StatusCode()))
		return fmt.Errorf("%w: status %d", ErrDelivery, resp.StatusCode())
	}

	n.metrics.RecordNotification("sent")
	n.logger.Debug("Webhook delivered",
		zap.String("session_id", ev.SessionID),
		zap.String("category", ev.Category))
	return nil
}

// NotifyAsync delivers ev in the background with its own timeout-bound
// context. Failures are logged only.
func (n *Notifier) NotifyAsync(ev Event) {
	if !n.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.client.GetClient().Timeout+time.Second)
		defer cancel()
		_ = n.Notify(ctx, ev)
	}()
}
