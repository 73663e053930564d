package yieldcurve

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/oracle-yield-curve/internal/model"
)

func TestRenderPoints(t *testing.T) {
	points := []model.YieldPoint{
		{ExpiryTimestamp: 0, CaptureTimestamp: startTimestamp, Rate: sdkmath.NewInt(10000000), Source: model.SourceOvernight},
		{ExpiryTimestamp: futureExpiry1, CaptureTimestamp: startTimestamp, Rate: sdkmath.NewInt(5783896206), Source: model.SourceFutureSpot},
		{ExpiryTimestamp: futureExpiry1, CaptureTimestamp: startTimestamp, Rate: sdkmath.NewInt(-5783896207), Source: model.SourceFutureSpot},
	}

	views := RenderPoints(points, 10)
	require.Len(t, views, 3)

	assert.Equal(t, "10000000", views[0].Rate)
	assert.Equal(t, "0.001", views[0].RateDecimal)
	assert.Equal(t, "on", views[0].Source)

	assert.Equal(t, "0.5783896206", views[1].RateDecimal)
	assert.Equal(t, "future/spot", views[1].Source)

	assert.Equal(t, "-0.5783896207", views[2].RateDecimal)
}

func TestRateDecimal_NilRate(t *testing.T) {
	assert.True(t, RateDecimal(model.YieldPoint{}, 10).IsZero())
}
