// Package yieldmath converts raw entry values into annualized yield rates at a target
// decimal precision. All arithmetic is exact integer math; the only rounding step is a
// floor (toward negative infinity) applied once to the final quotient.
package yieldmath

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/yourorg/oracle-yield-curve/internal/model"
)

// SecondsPerYear is the annualization basis (365 days)
const SecondsPerYear int64 = 365 * 24 * 60 * 60

// MaxDecimals bounds every decimal scale accepted by this package
const MaxDecimals = 36

var (
	// ErrInvalidExpiry is returned when a future expires at or before the current time
	ErrInvalidExpiry = errors.New("future expiry is not after current timestamp")

	// ErrDivisionByZero is returned for a zero spot price
	ErrDivisionByZero = errors.New("division by zero")

	// ErrInvalidDecimals is returned for negative or oversized decimal scales
	ErrInvalidDecimals = errors.New("invalid decimals")

	// ErrNegativeValue is returned when an entry value is negative
	ErrNegativeValue = errors.New("negative value")

	// ErrOverflow is returned when an intermediate exceeds the integer bound
	ErrOverflow = errors.New("integer overflow")
)

// CalculateONYieldPoint rescales an already annualized overnight rate from inputDecimals
// to outputDecimals. No time extrapolation is applied.
func CalculateONYieldPoint(rate sdkmath.Int, rateTimestamp int64, inputDecimals, outputDecimals int) (model.YieldPoint, error) {
	if err := checkValue(rate); err != nil {
		return model.YieldPoint{}, err
	}

	scaled, err := Rescale(rate, inputDecimals, outputDecimals)
	if err != nil {
		return model.YieldPoint{}, err
	}

	return model.YieldPoint{
		ExpiryTimestamp:  0,
		CaptureTimestamp: rateTimestamp,
		Rate:             scaled,
		Source:           model.SourceOvernight,
	}, nil
}

// CalculateFutureSpotYieldPoint computes the annualized yield implied by a future trading
// against its spot:
//
//	yield = (future/spot - 1) * SecondsPerYear / (expiry - now)
//
// Both prices are brought to the common scale 10^(futureDecimals+spotDecimals) before the
// ratio is taken, and the whole expression is evaluated as one fraction.
func CalculateFutureSpotYieldPoint(
	futureValue sdkmath.Int,
	futureTimestamp int64,
	futureExpiryTimestamp int64,
	spotValue sdkmath.Int,
	spotTimestamp int64,
	futureDecimals int,
	spotDecimals int,
	outputDecimals int,
	currentTimestamp int64,
) (model.YieldPoint, error) {
	for _, d := range []int{futureDecimals, spotDecimals, outputDecimals} {
		if err := checkDecimals(d); err != nil {
			return model.YieldPoint{}, err
		}
	}
	if err := checkValue(futureValue); err != nil {
		return model.YieldPoint{}, fmt.Errorf("future value: %w", err)
	}
	if err := checkValue(spotValue); err != nil {
		return model.YieldPoint{}, fmt.Errorf("spot value: %w", err)
	}

	if futureExpiryTimestamp <= currentTimestamp {
		return model.YieldPoint{}, fmt.Errorf("%w: expiry %d, now %d", ErrInvalidExpiry, futureExpiryTimestamp, currentTimestamp)
	}
	if spotValue.IsZero() {
		return model.YieldPoint{}, fmt.Errorf("%w: spot value is zero", ErrDivisionByZero)
	}

	// future * 10^spotDecimals and spot * 10^futureDecimals share the scale 10^(f+s)
	normFuture, err := mulPow10(futureValue, spotDecimals)
	if err != nil {
		return model.YieldPoint{}, err
	}
	normSpot, err := mulPow10(spotValue, futureDecimals)
	if err != nil {
		return model.YieldPoint{}, err
	}

	premium, err := normFuture.SafeSub(normSpot)
	if err != nil {
		return model.YieldPoint{}, fmt.Errorf("%w: %v", ErrOverflow, err)
	}

	numerator, err := mulPow10(premium, outputDecimals)
	if err != nil {
		return model.YieldPoint{}, err
	}
	numerator, err = numerator.SafeMul(sdkmath.NewInt(SecondsPerYear))
	if err != nil {
		return model.YieldPoint{}, fmt.Errorf("%w: %v", ErrOverflow, err)
	}

	denominator, err := normSpot.SafeMul(sdkmath.NewInt(futureExpiryTimestamp - currentTimestamp))
	if err != nil {
		return model.YieldPoint{}, fmt.Errorf("%w: %v", ErrOverflow, err)
	}

	rate, err := floorDiv(numerator, denominator)
	if err != nil {
		return model.YieldPoint{}, err
	}

	return model.YieldPoint{
		ExpiryTimestamp:  futureExpiryTimestamp,
		CaptureTimestamp: futureTimestamp,
		Rate:             rate,
		Source:           model.SourceFutureSpot,
	}, nil
}

// Rescale converts value from fromDecimals to toDecimals. Scaling up is exact; scaling
// down floors.
func Rescale(value sdkmath.Int, fromDecimals, toDecimals int) (sdkmath.Int, error) {
	if value.IsNil() {
		return sdkmath.Int{}, fmt.Errorf("%w: nil value", ErrNegativeValue)
	}
	if err := checkDecimals(fromDecimals); err != nil {
		return sdkmath.Int{}, err
	}
	if err := checkDecimals(toDecimals); err != nil {
		return sdkmath.Int{}, err
	}

	switch {
	case toDecimals == fromDecimals:
		return value, nil
	case toDecimals > fromDecimals:
		return mulPow10(value, toDecimals-fromDecimals)
	default:
		divisor, err := pow10(fromDecimals - toDecimals)
		if err != nil {
			return sdkmath.Int{}, err
		}
		return floorDiv(value, divisor)
	}
}

// pow10 returns 10^n for 0 <= n
func pow10(n int) (sdkmath.Int, error) {
	result := sdkmath.OneInt()
	ten := sdkmath.NewInt(10)
	for i := 0; i < n; i++ {
		var err error
		result, err = result.SafeMul(ten)
		if err != nil {
			return sdkmath.Int{}, fmt.Errorf("%w: 10^%d", ErrOverflow, n)
		}
	}
	return result, nil
}

func mulPow10(value sdkmath.Int, n int) (sdkmath.Int, error) {
	p, err := pow10(n)
	if err != nil {
		return sdkmath.Int{}, err
	}
	res, err := value.SafeMul(p)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %v", ErrOverflow, err)
	}
	return res, nil
}

// floorDiv divides rounding toward negative infinity. Quo truncates toward zero, so a
// negative inexact quotient is stepped down by one.
func floorDiv(numerator, denominator sdkmath.Int) (sdkmath.Int, error) {
	if denominator.IsZero() {
		return sdkmath.Int{}, ErrDivisionByZero
	}

	q, err := numerator.SafeQuo(denominator)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%w: %v", ErrOverflow, err)
	}

	if !q.Mul(denominator).Equal(numerator) && (numerator.IsNegative() != denominator.IsNegative()) {
		q = q.SubRaw(1)
	}
	return q, nil
}

func checkDecimals(d int) error {
	if d < 0 || d > MaxDecimals {
		return fmt.Errorf("%w: %d (allowed 0..%d)", ErrInvalidDecimals, d, MaxDecimals)
	}
	return nil
}

func checkValue(v sdkmath.Int) error {
	if v.IsNil() {
		return fmt.Errorf("%w: nil value", ErrNegativeValue)
	}
	if v.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeValue, v)
	}
	return nil
}
