package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBase(t *testing.T) {
	cases := map[string]string{
		"btc":       "BTC",
		" ETH ":     "ETH",
		"BTC/USD":   "BTC",
		"sol-usdt":  "SOL",
		"DOGEUSDT":  "DOGE",
		"$XRP":      "XRP",
		"":          "",
		"SHIB_USDC": "SHIB",
	}
	for in, want := range cases {
		assert.Equal(t, want, Base(in), in)
	}
}

func TestBaseList(t *testing.T) {
	assert.Equal(t, []string{"BTC", "ETH"}, BaseList([]string{"btc", "ETH", "BTCUSDT", ""}))
	assert.Nil(t, BaseList(nil))
}

func TestBinanceConverter(t *testing.T) {
	c := NewBinanceConverter("")
	assert.Equal(t, "BTCUSDT", c.ToExchange("BTC"))
	assert.Equal(t, "ETHUSDT", c.ToExchange("eth/usd"))
	assert.Equal(t, "BTC", c.FromExchange("BTCUSDT"))
	assert.Equal(t, "", c.ToExchange(" "))
}

func TestIsTicker(t *testing.T) {
	assert.True(t, IsTicker("BTC"))
	assert.True(t, IsTicker("1INCH"))
	assert.False(t, IsTicker("BT C"))
	assert.False(t, IsTicker(""))
}
