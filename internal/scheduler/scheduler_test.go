package scheduler

import (
	"context"
	"testing"
	"time"

	"cryptoprinter/internal/market"

	"github.com/stretchr/testify/assert"
)

func TestNextWait(t *testing.T) {
	assert.Equal(t, 10*time.Minute, NextWait(15*time.Minute, 5*time.Minute))
	assert.Equal(t, time.Duration(0), NextWait(15*time.Minute, 20*time.Minute))
	assert.Equal(t, time.Duration(0), NextWait(15*time.Minute, 15*time.Minute))
	assert.Equal(t, time.Duration(0), NextWait(0, time.Second))
}

func TestSleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.False(t, Sleep(ctx, time.Hour))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, Sleep(ctx, 0))
	assert.True(t, Sleep(context.Background(), time.Millisecond))
}

func TestParseIntervalDuration(t *testing.T) {
	d, ok := ParseIntervalDuration("15m")
	assert.True(t, ok)
	assert.Equal(t, 15*time.Minute, d)
	d, ok = ParseIntervalDuration("1D")
	assert.True(t, ok)
	assert.Equal(t, 24*time.Hour, d)
	_, ok = ParseIntervalDuration("h")
	assert.False(t, ok)
	_, ok = ParseIntervalDuration("3x")
	assert.False(t, ok)
	d, ok = ParseIntervalDuration("1M")
	assert.True(t, ok)
	assert.Equal(t, 30*24*time.Hour, d)
	d, ok = ParseIntervalDuration("1m")
	assert.True(t, ok)
	assert.Equal(t, time.Minute, d)
}

func TestDropUnclosedKline(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 20, 0, 0, time.UTC)
	klines := []market.Candle{
		{OpenTime: now.Add(-35 * time.Minute).UnixMilli()},
		{OpenTime: now.Add(-20 * time.Minute).UnixMilli()},
		{OpenTime: now.Add(-5 * time.Minute).UnixMilli()},
	}
	out := dropUnclosedAt(klines, 15*time.Minute, now, KlineGrace)
	assert.Len(t, out, 2)

	closed := dropUnclosedAt(klines[:2], 15*time.Minute, now, KlineGrace)
	assert.Len(t, closed, 2)
}

func TestDropUnclosedPrefersCloseTime(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 20, 0, 0, time.UTC)
	forming := []market.Candle{{OpenTime: now.Add(-time.Hour).UnixMilli(), CloseTime: now.Add(time.Minute).UnixMilli()}}
	assert.Empty(t, dropUnclosedAt(forming, time.Minute, now, KlineGrace))

	done := []market.Candle{{OpenTime: now.Add(-time.Hour).UnixMilli(), CloseTime: now.Add(-time.Minute).UnixMilli()}}
	assert.Len(t, dropUnclosedAt(done, 0, now, KlineGrace), 1)
}
