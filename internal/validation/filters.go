// Package validation provides boundary validation and staleness filtering for oracle entries.
package validation

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/oracle-yield-curve/internal/model"
)

// ErrInvalidEntry is wrapped by every validation failure
var ErrInvalidEntry = errors.New("invalid entry")

// ValidationOptions holds configuration for the validation process
type ValidationOptions struct {
	// MaxAge defines how recent entries must be to be accepted, 0 disables the check
	MaxAge time.Duration

	// MaxFutureSkew bounds how far ahead of the local clock a timestamp may be
	MaxFutureSkew time.Duration
}

// DefaultValidationOptions returns sensible defaults for validation
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		MaxAge:        0,
		MaxFutureSkew: 2 * time.Minute,
	}
}

// ValidateEntry checks a single entry as it enters the core
func ValidateEntry(e model.Entry, opts ValidationOptions, now time.Time) error {
	if err := ValidateShortString("key", e.Key, true); err != nil {
		return err
	}
	if err := ValidateShortString("publisher", e.Publisher, true); err != nil {
		return err
	}
	if err := ValidateShortString("source", e.Source, false); err != nil {
		return err
	}

	if e.Value.IsNil() {
		return fmt.Errorf("%w: missing value", ErrInvalidEntry)
	}
	if e.Value.IsNegative() {
		return fmt.Errorf("%w: negative value %s", ErrInvalidEntry, e.Value)
	}

	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: invalid timestamp %d", ErrInvalidEntry, e.Timestamp)
	}

	ts := time.Unix(e.Timestamp, 0)
	if opts.MaxFutureSkew > 0 && ts.After(now.Add(opts.MaxFutureSkew)) {
		return fmt.Errorf("%w: timestamp %d is ahead of local clock", ErrInvalidEntry, e.Timestamp)
	}
	if IsStale(e, opts.MaxAge, now) {
		return fmt.Errorf("%w: entry too old: %d", ErrInvalidEntry, e.Timestamp)
	}

	return nil
}

// ValidateShortString checks that an identifier fits a felt: printable ASCII, at most 31 bytes
func ValidateShortString(field, s string, required bool) error {
	if s == "" {
		if required {
			return fmt.Errorf("%w: empty %s", ErrInvalidEntry, field)
		}
		return nil
	}
	if len(s) > model.MaxShortStringLength {
		return fmt.Errorf("%w: %s longer than %d bytes", ErrInvalidEntry, field, model.MaxShortStringLength)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return fmt.Errorf("%w: %s contains non-printable or non-ASCII byte", ErrInvalidEntry, field)
		}
	}
	return nil
}

// IsStale reports whether an entry is older than maxAge. A zero maxAge never marks entries stale.
func IsStale(e model.Entry, maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(time.Unix(e.Timestamp, 0)) > maxAge
}

// FilterStale removes entries older than maxAge
func FilterStale(entries []model.Entry, maxAge time.Duration, now time.Time) []model.Entry {
	fresh := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		if IsStale(e, maxAge, now) {
			logrus.WithFields(logrus.Fields{
				"key":       e.Key,
				"publisher": e.Publisher,
				"timestamp": e.Timestamp,
			}).Debug("Filtered stale entry")
			continue
		}
		fresh = append(fresh, e)
	}
	return fresh
}
