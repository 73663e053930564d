package validation

import (
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/oracle-yield-curve/internal/model"
)

func TestValidateEntry(t *testing.T) {
	now := time.Unix(1650590820, 0)
	valid := model.Entry{
		Key:       "btc/usd",
		Value:     sdkmath.NewInt(100),
		Timestamp: now.Unix(),
		Publisher: "pontis-gemini",
		Source:    "gemini",
	}

	tests := []struct {
		name    string
		mutate  func(e *model.Entry)
		opts    ValidationOptions
		wantErr bool
	}{
		{name: "valid entry", mutate: func(e *model.Entry) {}, opts: DefaultValidationOptions()},
		{name: "empty source allowed", mutate: func(e *model.Entry) { e.Source = "" }, opts: DefaultValidationOptions()},
		{name: "zero value allowed", mutate: func(e *model.Entry) { e.Value = sdkmath.ZeroInt() }, opts: DefaultValidationOptions()},
		{name: "empty key", mutate: func(e *model.Entry) { e.Key = "" }, opts: DefaultValidationOptions(), wantErr: true},
		{name: "empty publisher", mutate: func(e *model.Entry) { e.Publisher = "" }, opts: DefaultValidationOptions(), wantErr: true},
		{name: "key too long", mutate: func(e *model.Entry) { e.Key = strings.Repeat("k", 32) }, opts: DefaultValidationOptions(), wantErr: true},
		{name: "non ascii key", mutate: func(e *model.Entry) { e.Key = "btc/€" }, opts: DefaultValidationOptions(), wantErr: true},
		{name: "missing value", mutate: func(e *model.Entry) { e.Value = sdkmath.Int{} }, opts: DefaultValidationOptions(), wantErr: true},
		{name: "negative value", mutate: func(e *model.Entry) { e.Value = sdkmath.NewInt(-1) }, opts: DefaultValidationOptions(), wantErr: true},
		{name: "zero timestamp", mutate: func(e *model.Entry) { e.Timestamp = 0 }, opts: DefaultValidationOptions(), wantErr: true},
		{name: "far future timestamp", mutate: func(e *model.Entry) { e.Timestamp = now.Add(time.Hour).Unix() }, opts: DefaultValidationOptions(), wantErr: true},
		{
			name:    "too old",
			mutate:  func(e *model.Entry) { e.Timestamp = now.Add(-2 * time.Hour).Unix() },
			opts:    ValidationOptions{MaxAge: time.Hour},
			wantErr: true,
		},
		{
			name:   "old entry accepted without max age",
			mutate: func(e *model.Entry) { e.Timestamp = now.Add(-48 * time.Hour).Unix() },
			opts:   DefaultValidationOptions(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			err := ValidateEntry(e, tt.opts, now)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEntry)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilterStale(t *testing.T) {
	now := time.Unix(1650590820, 0)
	entries := []model.Entry{
		{Key: "btc/usd", Publisher: "p1", Timestamp: now.Unix()},
		{Key: "btc/usd", Publisher: "p2", Timestamp: now.Add(-10 * time.Minute).Unix()},
		{Key: "btc/usd", Publisher: "p3", Timestamp: now.Add(-2 * time.Minute).Unix()},
	}

	fresh := FilterStale(entries, 5*time.Minute, now)
	require.Len(t, fresh, 2)
	assert.Equal(t, "p1", fresh[0].Publisher)
	assert.Equal(t, "p3", fresh[1].Publisher)

	assert.Len(t, FilterStale(entries, 0, now), 3, "zero max age keeps everything")
}
