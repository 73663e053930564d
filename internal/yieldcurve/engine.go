// Package yieldcurve builds the ordered yield curve from registered keys and the latest
// oracle entries. Entries are read fresh on every computation.
package yieldcurve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/oracle-yield-curve/internal/metrics"
	"github.com/yourorg/oracle-yield-curve/internal/model"
	"github.com/yourorg/oracle-yield-curve/internal/otel"
	"github.com/yourorg/oracle-yield-curve/internal/yieldmath"
)

// ErrInvalidOutputDecimals is returned for a negative or oversized output scale
var ErrInvalidOutputDecimals = errors.New("invalid output decimals")

// EntrySource provides the latest aggregated entry and the decimals of a key
type EntrySource interface {
	LatestEntry(ctx context.Context, key string) (model.Entry, error)
	Decimals(ctx context.Context, key string) (int, error)
}

// KeySource provides the current key registrations
type KeySource interface {
	RegisteredKeys(ctx context.Context) (model.RegisteredKeys, error)
}

// Skip reasons reported to metrics
const (
	reasonEntryError  = "entry_error"
	reasonDecimals    = "decimals_error"
	reasonExpired     = "expired"
	reasonSkew        = "spot_future_skew"
	reasonCalculation = "calculation_error"
)

// Options configures an Engine
type Options struct {
	// Clock supplies the current time for future/spot points, defaults to time.Now
	Clock func() time.Time

	// MaxSpotFutureSkew excludes a future point when its entry and the spot entry are
	// further apart in time than this, 0 disables
	MaxSpotFutureSkew time.Duration

	Metrics *metrics.Metrics
}

// Engine computes yield curves
type Engine struct {
	entries EntrySource
	keys    KeySource
	opts    Options
}

// NewEngine creates an engine over the given sources
func NewEngine(entries EntrySource, keys KeySource, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{entries: entries, keys: keys, opts: opts}
}

// GetYieldPoints returns overnight points in ON key registration order, followed by
// future/spot points grouped by spot key and ordered by future registration.
// Keys without entries are skipped; points that fail to compute are logged and excluded.
func (e *Engine) GetYieldPoints(ctx context.Context, outputDecimals int) ([]model.YieldPoint, error) {
	ctx, span := otel.StartSpan(ctx, "yieldcurve.GetYieldPoints", attribute.Int("output_decimals", outputDecimals))
	defer span.End()

	if outputDecimals < 0 || outputDecimals > yieldmath.MaxDecimals {
		err := fmt.Errorf("%w: %d", ErrInvalidOutputDecimals, outputDecimals)
		otel.RecordError(ctx, err)
		return nil, err
	}

	keys, err := e.keys.RegisteredKeys(ctx)
	if err != nil {
		err = fmt.Errorf("failed to load registered keys: %w", err)
		otel.RecordError(ctx, err)
		return nil, err
	}

	points := make([]model.YieldPoint, 0)

	for _, key := range keys.ActiveOnKeys() {
		point, ok := e.onPoint(ctx, key, outputDecimals)
		if ok {
			points = append(points, point)
		}
	}

	now := e.opts.Clock().Unix()
	for _, spotKey := range keys.ActiveSpotKeys() {
		spot, spotDecimals, ok := e.lookup(ctx, spotKey)
		if !ok {
			continue
		}

		for _, fk := range keys.ActiveFutureKeys(spotKey) {
			point, ok := e.futurePoint(ctx, fk, spot, spotDecimals, outputDecimals, now)
			if ok {
				points = append(points, point)
			}
		}
	}

	span.SetAttributes(attribute.Int("points", len(points)))
	return points, nil
}

func (e *Engine) onPoint(ctx context.Context, key string, outputDecimals int) (model.YieldPoint, bool) {
	entry, decimals, ok := e.lookup(ctx, key)
	if !ok {
		return model.YieldPoint{}, false
	}

	point, err := yieldmath.CalculateONYieldPoint(entry.Value, entry.Timestamp, decimals, outputDecimals)
	if err != nil {
		e.skip(key, reasonCalculation, err)
		return model.YieldPoint{}, false
	}

	e.opts.Metrics.YieldPoint(string(point.Source))
	return point, true
}

func (e *Engine) futurePoint(
	ctx context.Context,
	fk model.FutureKey,
	spot model.Entry,
	spotDecimals int,
	outputDecimals int,
	now int64,
) (model.YieldPoint, bool) {
	future, futureDecimals, ok := e.lookup(ctx, fk.Key)
	if !ok {
		return model.YieldPoint{}, false
	}

	if skew := e.opts.MaxSpotFutureSkew; skew > 0 {
		gap := time.Duration(abs(future.Timestamp-spot.Timestamp)) * time.Second
		if gap > skew {
			e.skip(fk.Key, reasonSkew, fmt.Errorf("spot %s and future entries %s apart", spot.Key, gap))
			return model.YieldPoint{}, false
		}
	}

	point, err := yieldmath.CalculateFutureSpotYieldPoint(
		future.Value,
		future.Timestamp,
		fk.ExpiryTimestamp,
		spot.Value,
		spot.Timestamp,
		futureDecimals,
		spotDecimals,
		outputDecimals,
		now,
	)
	if err != nil {
		reason := reasonCalculation
		if errors.Is(err, yieldmath.ErrInvalidExpiry) {
			reason = reasonExpired
		}
		e.skip(fk.Key, reason, err)
		return model.YieldPoint{}, false
	}

	e.opts.Metrics.YieldPoint(string(point.Source))
	return point, true
}

// lookup fetches the latest entry and decimals of a key. A key without entries is
// skipped silently; any other failure is logged.
func (e *Engine) lookup(ctx context.Context, key string) (model.Entry, int, bool) {
	entry, err := e.entries.LatestEntry(ctx, key)
	if err != nil {
		if !errors.Is(err, model.ErrEntryNotFound) {
			e.skip(key, reasonEntryError, err)
		}
		return model.Entry{}, 0, false
	}
	if entry.IsZero() || entry.Value.IsNil() {
		return model.Entry{}, 0, false
	}

	decimals, err := e.entries.Decimals(ctx, key)
	if err != nil {
		e.skip(key, reasonDecimals, err)
		return model.Entry{}, 0, false
	}
	return entry, decimals, true
}

func (e *Engine) skip(key, reason string, err error) {
	e.opts.Metrics.SkippedPoint(reason)
	logrus.WithFields(logrus.Fields{
		"key":    key,
		"reason": reason,
	}).WithError(err).Warn("Excluded yield point")
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
