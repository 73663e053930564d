package oracle

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/oracle-yield-curve/internal/aggregate"
	"github.com/yourorg/oracle-yield-curve/internal/metrics"
	"github.com/yourorg/oracle-yield-curve/internal/model"
	"github.com/yourorg/oracle-yield-curve/internal/security"
	"github.com/yourorg/oracle-yield-curve/internal/validation"
	"github.com/yourorg/oracle-yield-curve/internal/yieldmath"
)

const startTimestamp = 1650590820

func fixedClock() time.Time {
	return time.Unix(startTimestamp, 0)
}

func newTestStore(t *testing.T, mutate func(*Options)) *Store {
	t.Helper()
	opts := DefaultOptions()
	opts.Clock = fixedClock
	opts.Metrics = metrics.New(prometheus.NewRegistry())
	if mutate != nil {
		mutate(&opts)
	}
	s, err := NewStore(nil, opts)
	require.NoError(t, err)
	for _, p := range []string{"pub-a", "pub-b", "pub-c"} {
		require.NoError(t, s.RegisterPublisher(p, common.Address{}))
	}
	return s
}

func entry(key, publisher string, value, ts int64) model.Entry {
	return model.Entry{Key: key, Value: sdkmath.NewInt(value), Timestamp: ts, Publisher: publisher}
}

func TestStore_SubmitAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	require.NoError(t, s.SubmitEntry(ctx, entry("btc/usd", "pub-a", 100, startTimestamp), nil))

	got, err := s.GetEntry(ctx, "btc/usd", "pub-a")
	require.NoError(t, err)
	assert.True(t, got.Value.Equal(sdkmath.NewInt(100)))

	_, err = s.GetEntry(ctx, "btc/usd", "pub-b")
	assert.ErrorIs(t, err, model.ErrEntryNotFound)
}

func TestStore_NewestEntryWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	require.NoError(t, s.SubmitEntry(ctx, entry("btc/usd", "pub-a", 100, startTimestamp-10), nil))
	require.NoError(t, s.SubmitEntry(ctx, entry("btc/usd", "pub-a", 105, startTimestamp), nil))

	err := s.SubmitEntry(ctx, entry("btc/usd", "pub-a", 1, startTimestamp-5), nil)
	assert.ErrorIs(t, err, ErrStaleEntry)
	err = s.SubmitEntry(ctx, entry("btc/usd", "pub-a", 1, startTimestamp), nil)
	assert.ErrorIs(t, err, ErrStaleEntry, "equal timestamp is not newer")

	got, err := s.GetEntry(ctx, "btc/usd", "pub-a")
	require.NoError(t, err)
	assert.True(t, got.Value.Equal(sdkmath.NewInt(105)))
	assert.Equal(t, int64(startTimestamp), got.Timestamp)
}

func TestStore_SubmitRejections(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	tests := []struct {
		name  string
		entry model.Entry
		want  error
	}{
		{"unknown publisher", entry("btc/usd", "stranger", 100, startTimestamp), ErrUnknownPublisher},
		{"negative value", entry("btc/usd", "pub-a", -1, startTimestamp), validation.ErrInvalidEntry},
		{"future timestamp", entry("btc/usd", "pub-a", 1, startTimestamp+3600), validation.ErrInvalidEntry},
		{"long key", entry("this-key-is-definitely-longer-than-31", "pub-a", 1, startTimestamp), validation.ErrInvalidEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.SubmitEntry(ctx, tt.entry, nil), tt.want)
		})
	}
}

func TestStore_Signatures(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(nil, Options{
		DefaultDecimals:   DefaultDecimals,
		Validation:        validation.DefaultValidationOptions(),
		RequireSignatures: true,
		Clock:             fixedClock,
	})
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, s.RegisterPublisher("pub-a", crypto.PubkeyToAddress(key.PublicKey)))

	e := entry("btc/usd", "pub-a", 100, startTimestamp)
	assert.ErrorIs(t, s.SubmitEntry(ctx, e, nil), security.ErrInvalidSignature)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	badSig, err := security.SignEntry(other, e)
	require.NoError(t, err)
	assert.ErrorIs(t, s.SubmitEntry(ctx, e, badSig), security.ErrInvalidSignature)

	sig, err := security.SignEntry(key, e)
	require.NoError(t, err)
	require.NoError(t, s.SubmitEntry(ctx, e, sig))

	// rotate the publisher key; old signatures stop verifying
	rotated, err := crypto.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, s.Publishers().UpdateAddress("pub-a", crypto.PubkeyToAddress(rotated.PublicKey)))

	next := entry("btc/usd", "pub-a", 101, startTimestamp+1)
	oldSig, err := security.SignEntry(key, next)
	require.NoError(t, err)
	assert.ErrorIs(t, s.SubmitEntry(ctx, next, oldSig), security.ErrInvalidSignature)

	newSig, err := security.SignEntry(rotated, next)
	require.NoError(t, err)
	assert.NoError(t, s.SubmitEntry(ctx, next, newSig))
}

func TestStore_LatestEntryMedian(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	_, err := s.LatestEntry(ctx, "btc/usd")
	assert.ErrorIs(t, err, model.ErrEntryNotFound)

	require.NoError(t, s.SubmitEntries(ctx, []model.Entry{
		entry("btc/usd", "pub-a", 100, startTimestamp-30),
		entry("btc/usd", "pub-b", 300, startTimestamp-10),
		entry("btc/usd", "pub-c", 110, startTimestamp-20),
	}))

	agg, err := s.LatestEntry(ctx, "btc/usd")
	require.NoError(t, err)
	assert.True(t, agg.Value.Equal(sdkmath.NewInt(110)), "got %s", agg.Value)
	assert.Equal(t, int64(startTimestamp-10), agg.Timestamp)
	assert.Equal(t, aggregate.AggregatedPublisher, agg.Publisher)

	value, lastUpdated, sources, err := s.GetValue(ctx, "btc/usd")
	require.NoError(t, err)
	assert.True(t, value.Equal(sdkmath.NewInt(110)))
	assert.Equal(t, int64(startTimestamp-10), lastUpdated)
	assert.Equal(t, 3, sources)
}

func TestStore_LatestEntryMeanMode(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, func(o *Options) { o.Mode = aggregate.ModeMean })

	require.NoError(t, s.SubmitEntries(ctx, []model.Entry{
		entry("btc/usd", "pub-a", 100, startTimestamp-30),
		entry("btc/usd", "pub-b", 300, startTimestamp-10),
		entry("btc/usd", "pub-c", 110, startTimestamp-20),
	}))

	agg, err := s.LatestEntry(ctx, "btc/usd")
	require.NoError(t, err)
	assert.True(t, agg.Value.Equal(sdkmath.NewInt(170)), "got %s", agg.Value)
}

func TestStore_StaleEntriesExcludedFromAggregation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, func(o *Options) { o.MaxEntryAge = time.Minute })

	require.NoError(t, s.SubmitEntries(ctx, []model.Entry{
		entry("btc/usd", "pub-a", 100, startTimestamp-30),
		entry("btc/usd", "pub-b", 500, startTimestamp-10),
	}))

	// validation does not reject old entries when MaxAge is 0, aggregation still drops them
	require.NoError(t, s.SubmitEntry(ctx, entry("btc/usd", "pub-c", 9000, startTimestamp-600), nil))

	value, _, sources, err := s.GetValue(ctx, "btc/usd")
	require.NoError(t, err)
	assert.Equal(t, 2, sources)
	assert.True(t, value.Equal(sdkmath.NewInt(300)), "got %s", value)

	require.NoError(t, s.SubmitEntry(ctx, entry("eth/usd", "pub-a", 1, startTimestamp-600), nil))
	_, err = s.LatestEntry(ctx, "eth/usd")
	assert.ErrorIs(t, err, model.ErrEntryNotFound)
}

func TestStore_SubmitEntriesJoinsErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	err := s.SubmitEntries(ctx, []model.Entry{
		entry("btc/usd", "pub-a", 100, startTimestamp),
		entry("btc/usd", "nobody", 100, startTimestamp),
	})
	assert.ErrorIs(t, err, ErrUnknownPublisher)
	assert.Len(t, s.GetEntries(ctx, "btc/usd"), 1)
}

func TestStore_Decimals(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	d, err := s.Decimals(ctx, "btc/usd")
	require.NoError(t, err)
	assert.Equal(t, DefaultDecimals, d)

	require.NoError(t, s.SetDecimals("btc/usd", 8))
	d, err = s.Decimals(ctx, "btc/usd")
	require.NoError(t, err)
	assert.Equal(t, 8, d)

	assert.ErrorIs(t, s.SetDecimals("btc/usd", -1), yieldmath.ErrInvalidDecimals)
	assert.ErrorIs(t, s.SetDecimals("btc/usd", yieldmath.MaxDecimals+1), yieldmath.ErrInvalidDecimals)
}

func TestPublishers(t *testing.T) {
	p := NewPublishers()
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	require.NoError(t, p.Register("pontis", addr))
	assert.ErrorIs(t, p.Register("pontis", common.Address{}), ErrPublisherExists)

	got, err := p.Address("pontis")
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	assert.ErrorIs(t, p.UpdateAddress("unknown", addr), ErrUnknownPublisher)
	_, err = p.Address("unknown")
	assert.ErrorIs(t, err, ErrUnknownPublisher)

	require.NoError(t, p.Register("alpha", addr))
	list := p.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, 2, p.Len())
}

func TestNewStore_InvalidOptions(t *testing.T) {
	_, err := NewStore(nil, Options{DefaultDecimals: 40})
	assert.ErrorIs(t, err, yieldmath.ErrInvalidDecimals)

	_, err = NewStore(nil, Options{Mode: aggregate.Mode(7)})
	assert.Error(t, err)
}
