package yieldcurve

import (
	"github.com/shopspring/decimal"

	"github.com/yourorg/oracle-yield-curve/internal/model"
)

// PointView is the wire form of a yield point with a human-readable rate
type PointView struct {
	ExpiryTimestamp  int64  `json:"expiry_timestamp"`
	CaptureTimestamp int64  `json:"capture_timestamp"`
	Rate             string `json:"rate"`
	RateDecimal      string `json:"rate_decimal"`
	Source           string `json:"source"`
}

// RenderPoints converts points scaled by 10^outputDecimals to their wire form
func RenderPoints(points []model.YieldPoint, outputDecimals int) []PointView {
	views := make([]PointView, 0, len(points))
	for _, p := range points {
		views = append(views, PointView{
			ExpiryTimestamp:  p.ExpiryTimestamp,
			CaptureTimestamp: p.CaptureTimestamp,
			Rate:             p.Rate.String(),
			RateDecimal:      RateDecimal(p, outputDecimals).String(),
			Source:           string(p.Source),
		})
	}
	return views
}

// RateDecimal returns the rate of a point as an unscaled decimal
func RateDecimal(p model.YieldPoint, outputDecimals int) decimal.Decimal {
	if p.Rate.IsNil() {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(p.Rate.BigInt(), -int32(outputDecimals))
}
