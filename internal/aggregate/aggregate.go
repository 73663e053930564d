package aggregate

import (
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/yourorg/oracle-yield-curve/internal/model"
	"github.com/yourorg/oracle-yield-curve/internal/yieldmath"
)

// AggregatedPublisher is the publisher name carried by aggregated entries
const AggregatedPublisher = "aggregated"

// Mode selects how publisher entries for one key are combined
type Mode int

const (
	// ModeMedian is the default oracle aggregation mode
	ModeMedian Mode = iota

	// ModeMean averages all entries
	ModeMean
)

// ErrNoEntries is returned when there is nothing to aggregate
var ErrNoEntries = errors.New("no entries to aggregate")

// ParseMode maps the numeric aggregation mode used by the oracle to a Mode
func ParseMode(m int) (Mode, error) {
	switch Mode(m) {
	case ModeMedian, ModeMean:
		return Mode(m), nil
	default:
		return 0, fmt.Errorf("unsupported aggregation mode: %d", m)
	}
}

// Median returns the median of the values. For an even count the two middle
// values are averaged and the result floored.
func Median(values []sdkmath.Int) (sdkmath.Int, error) {
	if len(values) == 0 {
		return sdkmath.Int{}, ErrNoEntries
	}

	sorted := make([]sdkmath.Int, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LT(sorted[j])
	})

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2], nil
	}

	sum, err := sorted[n/2-1].SafeAdd(sorted[n/2])
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %v", yieldmath.ErrOverflow, err)
	}
	return floorHalf(sum), nil
}

// Mean returns the floored arithmetic mean of the values
func Mean(values []sdkmath.Int) (sdkmath.Int, error) {
	if len(values) == 0 {
		return sdkmath.Int{}, ErrNoEntries
	}

	sum := sdkmath.ZeroInt()
	for _, v := range values {
		next, err := sum.SafeAdd(v)
		if err != nil {
			return sdkmath.Int{}, fmt.Errorf("%w: %v", yieldmath.ErrOverflow, err)
		}
		sum = next
	}

	count := sdkmath.NewInt(int64(len(values)))
	q := sum.Quo(count)
	if sum.IsNegative() && !q.Mul(count).Equal(sum) {
		q = q.SubRaw(1)
	}
	return q, nil
}

// Entries combines several publishers' entries for the same key into one entry.
// The aggregated timestamp is the newest contributing timestamp.
func Entries(entries []model.Entry, mode Mode) (model.Entry, error) {
	if len(entries) == 0 {
		return model.Entry{}, ErrNoEntries
	}

	values := make([]sdkmath.Int, 0, len(entries))
	latestTimestamp := int64(0)
	for _, e := range entries {
		values = append(values, e.Value)
		if e.Timestamp > latestTimestamp {
			latestTimestamp = e.Timestamp
		}
	}

	var (
		value sdkmath.Int
		err   error
	)
	switch mode {
	case ModeMedian:
		value, err = Median(values)
	case ModeMean:
		value, err = Mean(values)
	default:
		return model.Entry{}, fmt.Errorf("unsupported aggregation mode: %d", mode)
	}
	if err != nil {
		return model.Entry{}, fmt.Errorf("aggregate %s: %w", entries[0].Key, err)
	}

	return model.Entry{
		Key:       entries[0].Key,
		Value:     value,
		Timestamp: latestTimestamp,
		Publisher: AggregatedPublisher,
	}, nil
}

// floorHalf halves v rounding toward negative infinity. q*2 never exceeds |v|
// so the check cannot overflow.
func floorHalf(v sdkmath.Int) sdkmath.Int {
	two := sdkmath.NewInt(2)
	q := v.Quo(two)
	if v.IsNegative() && !q.Mul(two).Equal(v) {
		q = q.SubRaw(1)
	}
	return q
}
