// Package export pushes yield-curve snapshots to a webhook on a fixed interval.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/oracle-yield-curve/internal/metrics"
	"github.com/yourorg/oracle-yield-curve/internal/model"
	"github.com/yourorg/oracle-yield-curve/internal/yieldcurve"
)

// CurveSource computes the curve to export
type CurveSource interface {
	GetYieldPoints(ctx context.Context, outputDecimals int) ([]model.YieldPoint, error)
}

// Config holds configuration for curve exporting
type Config struct {
	WebhookURL     string
	WebhookAPIKey  string
	Interval       time.Duration
	OutputDecimals int
	Timeout        time.Duration
	RetryMax       int
}

// Snapshot is the webhook payload
type Snapshot struct {
	Points         []yieldcurve.PointView `json:"points"`
	OutputDecimals int                    `json:"output_decimals"`
	ExportTime     string                 `json:"export_time"`
	Count          int                    `json:"count"`
}

// Exporter periodically computes the curve and posts it to the webhook
type Exporter struct {
	cfg     Config
	source  CurveSource
	client  *retryablehttp.Client
	metrics *metrics.Metrics

	mutex      sync.RWMutex
	lastExport time.Time
	lastErr    error

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an exporter. Call Start to begin the periodic loop.
func New(cfg Config, source CurveSource, m *metrics.Metrics) (*Exporter, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("webhook URL not configured")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 3
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 3 * time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil

	return &Exporter{
		cfg:     cfg,
		source:  source,
		client:  client,
		metrics: m,
	}, nil
}

// Start runs the export loop until ctx is cancelled or Stop is called
func (e *Exporter) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	go e.periodicExport(ctx)
	logrus.WithFields(logrus.Fields{
		"url":      e.cfg.WebhookURL,
		"interval": e.cfg.Interval.String(),
	}).Info("Curve exporter started")
}

func (e *Exporter) periodicExport(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.ExportNow(ctx); err != nil {
				logrus.WithError(err).Error("Failed to export curve")
			}
		case <-ctx.Done():
			return
		}
	}
}

// ExportNow computes the curve and posts one snapshot
func (e *Exporter) ExportNow(ctx context.Context) error {
	err := e.export(ctx)

	e.mutex.Lock()
	e.lastErr = err
	if err == nil {
		e.lastExport = time.Now()
	}
	e.mutex.Unlock()

	if err != nil {
		e.metrics.CurveExport("error")
		return err
	}
	e.metrics.CurveExport("success")
	return nil
}

func (e *Exporter) export(ctx context.Context) error {
	points, err := e.source.GetYieldPoints(ctx, e.cfg.OutputDecimals)
	if err != nil {
		return fmt.Errorf("failed to compute curve: %w", err)
	}

	snapshot := Snapshot{
		Points:         yieldcurve.RenderPoints(points, e.cfg.OutputDecimals),
		OutputDecimals: e.cfg.OutputDecimals,
		ExportTime:     time.Now().UTC().Format(time.RFC3339),
		Count:          len(points),
	}

	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.cfg.WebhookURL, body)
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.WebhookAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.WebhookAPIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}

	logrus.WithField("points", len(points)).Debug("Exported curve snapshot")
	return nil
}

// Stop ends the loop and sends a final snapshot
func (e *Exporter) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
	defer cancel()
	if err := e.ExportNow(ctx); err != nil {
		logrus.WithError(err).Warn("Final curve export failed")
	}
}

// Status returns the current state of the exporter
func (e *Exporter) Status() map[string]interface{} {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	status := map[string]interface{}{
		"webhook_url":     e.cfg.WebhookURL,
		"export_interval": e.cfg.Interval.String(),
	}
	if !e.lastExport.IsZero() {
		status["last_export"] = e.lastExport.UTC().Format(time.RFC3339)
	}
	if e.lastErr != nil {
		status["last_error"] = e.lastErr.Error()
	}
	return status
}
