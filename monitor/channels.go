package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LogChannel writes alerts to the structured log.
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel creates a log-backed alert channel.
func NewLogChannel(logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger.With(zap.String("component", "alert_log"))}
}

func (c *LogChannel) Send(_ context.Context, alert Alert) {
	c.logger.Warn("metric alert",
		zap.String("alert_id", alert.ID),
		zap.String("run_id", alert.RunID),
		zap.String("node_id", alert.NodeID),
		zap.String("metric", alert.Metric),
		zap.Float64("value", alert.Value),
		zap.String("threshold", alert.Threshold),
		zap.String("action", string(alert.Action)),
	)
}

// WebhookChannel POSTs alerts as JSON to an HTTP endpoint. Delivery runs in
// its own goroutine with its own timeout; a failed delivery is logged and
// dropped.
type WebhookChannel struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewWebhookChannel creates a webhook alert channel.
func NewWebhookChannel(endpoint string, logger *zap.Logger) *WebhookChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookChannel{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.With(zap.String("component", "alert_webhook")),
	}
}

func (c *WebhookChannel) Send(_ context.Context, alert Alert) {
	go func() {
		body, err := json.Marshal(alert)
		if err != nil {
			c.logger.Error("alert not serializable", zap.Error(err))
			return
		}
		// Deliberately detached from the run's context: an alert about a
		// stopping run must still go out.
		ctx, cancel := context.WithTimeout(context.Background(), c.client.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			c.logger.Error("webhook request failed", zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			c.logger.Warn("webhook delivery failed", zap.String("alert_id", alert.ID), zap.Error(err))
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			c.logger.Warn("webhook rejected alert",
				zap.String("alert_id", alert.ID),
				zap.Int("status", resp.StatusCode),
			)
		}
	}()
}
