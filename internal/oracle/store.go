// Package oracle is the in-process oracle controller: it accepts publisher entries, keeps the
// newest entry per key and publisher, and serves median-aggregated values with per-key decimals.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/oracle-yield-curve/internal/aggregate"
	"github.com/yourorg/oracle-yield-curve/internal/metrics"
	"github.com/yourorg/oracle-yield-curve/internal/model"
	"github.com/yourorg/oracle-yield-curve/internal/security"
	"github.com/yourorg/oracle-yield-curve/internal/validation"
	"github.com/yourorg/oracle-yield-curve/internal/yieldmath"
)

// DefaultDecimals is the scale of keys that never had decimals set
const DefaultDecimals = 18

// ErrStaleEntry is returned when a submission is not newer than the stored entry
var ErrStaleEntry = errors.New("entry is not newer than stored entry")

// Options configures a Store
type Options struct {
	// DefaultDecimals applies to keys without an explicit SetDecimals
	DefaultDecimals int

	// MaxEntryAge excludes old publisher entries from aggregation, 0 disables
	MaxEntryAge time.Duration

	// Validation bounds applied to every submission
	Validation validation.ValidationOptions

	// RequireSignatures rejects unsigned submissions
	RequireSignatures bool

	// Mode selects the aggregation across publishers
	Mode aggregate.Mode

	// Clock returns the current time, defaults to time.Now
	Clock func() time.Time

	Metrics *metrics.Metrics
}

// DefaultOptions returns options matching the oracle defaults
func DefaultOptions() Options {
	return Options{
		DefaultDecimals: DefaultDecimals,
		Validation:      validation.DefaultValidationOptions(),
		Mode:            aggregate.ModeMedian,
		Clock:           time.Now,
	}
}

// Store holds the newest entry of every publisher for every key
type Store struct {
	mu sync.RWMutex

	// key -> publisher -> entry
	entries  map[string]map[string]model.Entry
	decimals map[string]int

	publishers *Publishers
	opts       Options
}

// NewStore creates a store backed by the given publisher registry
func NewStore(publishers *Publishers, opts Options) (*Store, error) {
	if publishers == nil {
		publishers = NewPublishers()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.DefaultDecimals < 0 || opts.DefaultDecimals > yieldmath.MaxDecimals {
		return nil, fmt.Errorf("%w: default decimals %d", yieldmath.ErrInvalidDecimals, opts.DefaultDecimals)
	}
	if _, err := aggregate.ParseMode(int(opts.Mode)); err != nil {
		return nil, err
	}

	return &Store{
		entries:    make(map[string]map[string]model.Entry),
		decimals:   make(map[string]int),
		publishers: publishers,
		opts:       opts,
	}, nil
}

// Publishers returns the publisher registry used for submissions
func (s *Store) Publishers() *Publishers {
	return s.publishers
}

// RegisterPublisher registers a publisher and its signing address
func (s *Store) RegisterPublisher(name string, addr common.Address) error {
	if err := s.publishers.Register(name, addr); err != nil {
		return err
	}
	s.opts.Metrics.SetPublishers(s.publishers.Len())
	return nil
}

// SubmitEntry validates and stores a publisher entry. A signature is verified against the
// publisher address whenever one is given, and is mandatory when RequireSignatures is set.
func (s *Store) SubmitEntry(_ context.Context, e model.Entry, signature []byte) error {
	err := s.submit(e, signature)
	switch {
	case err == nil:
		s.opts.Metrics.EntrySubmitted("accepted")
	case errors.Is(err, ErrStaleEntry):
		s.opts.Metrics.EntrySubmitted("stale")
	default:
		s.opts.Metrics.EntrySubmitted("rejected")
	}

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"key":       e.Key,
			"publisher": e.Publisher,
			"timestamp": e.Timestamp,
		}).WithError(err).Warn("Rejected entry")
	}
	return err
}

func (s *Store) submit(e model.Entry, signature []byte) error {
	if err := validation.ValidateEntry(e, s.opts.Validation, s.opts.Clock()); err != nil {
		return err
	}

	addr, err := s.publishers.Address(e.Publisher)
	if err != nil {
		return err
	}

	if len(signature) == 0 {
		if s.opts.RequireSignatures {
			return fmt.Errorf("%w: signature required", security.ErrInvalidSignature)
		}
	} else if err := security.VerifyEntry(e, signature, addr); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byPublisher, ok := s.entries[e.Key]
	if !ok {
		byPublisher = make(map[string]model.Entry)
		s.entries[e.Key] = byPublisher
	}

	if existing, ok := byPublisher[e.Publisher]; ok && e.Timestamp <= existing.Timestamp {
		return fmt.Errorf("%w: %s/%s has %d, got %d", ErrStaleEntry, e.Key, e.Publisher, existing.Timestamp, e.Timestamp)
	}
	byPublisher[e.Publisher] = e
	return nil
}

// SubmitEntries submits a batch without signatures. Every entry is attempted; the
// returned error joins the individual failures.
func (s *Store) SubmitEntries(ctx context.Context, entries []model.Entry) error {
	var errs []error
	for _, e := range entries {
		if err := s.SubmitEntry(ctx, e, nil); err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", e.Key, e.Publisher, err))
		}
	}
	return errors.Join(errs...)
}

// GetEntry returns the stored entry of one publisher for a key
func (s *Store) GetEntry(_ context.Context, key, publisher string) (model.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key][publisher]
	if !ok {
		return model.Entry{}, fmt.Errorf("%w: %s/%s", model.ErrEntryNotFound, key, publisher)
	}
	return e, nil
}

// GetEntries returns the non-stale entries for a key sorted by publisher
func (s *Store) GetEntries(_ context.Context, key string) []model.Entry {
	s.mu.RLock()
	entries := make([]model.Entry, 0, len(s.entries[key]))
	for _, e := range s.entries[key] {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Publisher < entries[j].Publisher })
	return validation.FilterStale(entries, s.opts.MaxEntryAge, s.opts.Clock())
}

// GetValue returns the aggregated value of a key, the newest contributing timestamp and
// the number of publishers that contributed
func (s *Store) GetValue(ctx context.Context, key string) (sdkmath.Int, int64, int, error) {
	entries := s.GetEntries(ctx, key)
	if len(entries) == 0 {
		return sdkmath.Int{}, 0, 0, fmt.Errorf("%w: %s", model.ErrEntryNotFound, key)
	}

	agg, err := aggregate.Entries(entries, s.opts.Mode)
	if err != nil {
		return sdkmath.Int{}, 0, 0, err
	}
	return agg.Value, agg.Timestamp, len(entries), nil
}

// LatestEntry returns the aggregated entry for a key
func (s *Store) LatestEntry(ctx context.Context, key string) (model.Entry, error) {
	entries := s.GetEntries(ctx, key)
	if len(entries) == 0 {
		return model.Entry{}, fmt.Errorf("%w: %s", model.ErrEntryNotFound, key)
	}
	return aggregate.Entries(entries, s.opts.Mode)
}

// SetDecimals sets the scale of a key's values
func (s *Store) SetDecimals(key string, decimals int) error {
	if decimals < 0 || decimals > yieldmath.MaxDecimals {
		return fmt.Errorf("%w: %d for %s", yieldmath.ErrInvalidDecimals, decimals, key)
	}
	if err := validation.ValidateShortString("key", key, true); err != nil {
		return err
	}

	s.mu.Lock()
	s.decimals[key] = decimals
	s.mu.Unlock()
	return nil
}

// Decimals returns the scale of a key's values
func (s *Store) Decimals(_ context.Context, key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.decimals[key]; ok {
		return d, nil
	}
	return s.opts.DefaultDecimals, nil
}
