// Package notify delivers finished batch reports to external sinks. Delivery
// is best effort: a sink failure is logged, never propagated into the batch
// outcome.
package notify

import (
	"context"
	"encoding/json"

	"fleetops/internal/core/domain"
	"fleetops/internal/core/ports"
	"fleetops/internal/platform/errors"
	"fleetops/internal/platform/logx"
)

// Webhook POSTs the report envelope to an HTTP endpoint.
type Webhook struct {
	url    string
	doer   ports.HTTPDoer
	logger logx.Logger
}

// NewWebhook creates a webhook sink.
func NewWebhook(url string, doer ports.HTTPDoer, logger logx.Logger) (*Webhook, error) {
	if url == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "webhook url is empty")
	}
	if doer == nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "webhook needs an HTTP transport")
	}
	if logger == nil {
		logger = logx.New()
	}
	return &Webhook{
		url:    url,
		doer:   doer,
		logger: logger.With("component", "webhook-notifier"),
	}, nil
}

// Name implements ports.Notifier.
func (w *Webhook) Name() string { return "webhook" }

// Notify implements ports.Notifier. The payload is the same envelope the JSON
// output writer emits, so receivers share one schema.
func (w *Webhook) Notify(ctx context.Context, report domain.BatchReport) error {
	body, err := json.Marshal(report.Envelope())
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "encode report: %v", err)
	}

	resp, err := w.doer.Do(ctx, ports.Request{
		Method: "POST",
		URL:    w.url,
		Header: map[string]string{"Content-Type": "application/json"},
		Body:   body,
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return errors.Wrapf(errors.ErrInvalidResponse, "webhook returned HTTP %d", resp.StatusCode)
	}

	w.logger.Debug("report delivered", "url", w.url, "batch", report.ID)
	return nil
}

// Close implements ports.Notifier.
func (w *Webhook) Close() error { return nil }
