package scheduler

import (
	"strconv"
	"strings"
	"time"

	"cryptoprinter/internal/market"
)

// KlineGrace is how long after its close a candle is still treated as forming.
const KlineGrace = 10 * time.Second

var intervalUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
	'M': 30 * 24 * time.Hour,
}

// ParseIntervalDuration parses exchange interval names such as "15m", "4h",
// "1d", "1w" or "1M" (month). Only the month unit is case sensitive.
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	interval = strings.TrimSpace(interval)
	if len(interval) < 2 {
		return 0, false
	}
	unit := interval[len(interval)-1]
	if unit != 'M' {
		unit = strings.ToLower(string(unit))[0]
	}
	step, ok := intervalUnits[unit]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * step, true
}

// DropUnclosedBinanceKline removes the trailing candle while it is still
// forming. Binance always returns the current candle last.
func DropUnclosedBinanceKline(klines []market.Candle, interval time.Duration) []market.Candle {
	return dropUnclosedAt(klines, interval, time.Now().UTC(), KlineGrace)
}

func dropUnclosedAt(klines []market.Candle, interval time.Duration, now time.Time, grace time.Duration) []market.Candle {
	if len(klines) == 0 {
		return klines
	}
	last := klines[len(klines)-1]
	closeMs := last.CloseTime
	if closeMs <= 0 {
		if last.OpenTime <= 0 || interval <= 0 {
			return klines
		}
		closeMs = last.OpenTime + interval.Milliseconds()
	}
	if grace < 0 {
		grace = 0
	}
	if now.UnixMilli() < closeMs+grace.Milliseconds() {
		return klines[:len(klines)-1]
	}
	return klines
}
