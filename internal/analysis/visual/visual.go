package visual

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"

	"cryptoprinter/internal/ledger"
	"cryptoprinter/internal/market"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorEMA           = "#3b82f6"
	colorSMA           = "#fbbf24"
	colorDIF           = "#22d3ee"
	colorDEA           = "#fb7185"

	chartWidthPx   = 1200
	klineHeightPx  = 520
	volumeHeightPx = 220
	macdHeightPx   = 220
	tradeHeightPx  = 360
)

// CandleChartInput is one symbol's recent candles.
type CandleChartInput struct {
	Symbol   string
	Interval string
	Candles  []market.Candle
}

// PortfolioChartInput is what the trades page draws.
type PortfolioChartInput struct {
	Balance   float64
	Positions []ledger.Position
	Trades    []ledger.TradeRecord
}

// RenderCandles writes an HTML page with price, volume and MACD panels.
func RenderCandles(w io.Writer, in CandleChartInput) error {
	if in.Symbol == "" {
		return fmt.Errorf("symbol required for candle render")
	}
	if len(in.Candles) == 0 {
		return fmt.Errorf("no candles for %s", in.Symbol)
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	xAxis := buildXAxis(in.Candles)
	minPrice, maxPrice := priceBounds(in.Candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(klineHeightPx)),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("%s %s", strings.ToUpper(in.Symbol), in.Interval),
			Left:       "left",
			Top:        "10",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", buildKlineSeries(in.Candles))

	closes := closesOf(in.Candles)
	avg := charts.NewLine()
	avg.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	avg.SetXAxis(xAxis)
	if len(closes) >= 20 {
		avg.AddSeries("EMA20", toLineData(talib.Ema(closes, 20), len(closes)), charts.WithLineStyleOpts(opts.LineStyle{Color: colorEMA, Width: 2}))
		avg.AddSeries("SMA20", toLineData(talib.Sma(closes, 20), len(closes)), charts.WithLineStyleOpts(opts.LineStyle{Color: colorSMA, Width: 2}))
	}
	kline.Overlap(avg)

	page.AddCharts(kline, buildVolumeChart(in.Interval, xAxis, in.Candles), buildMACDChart(in.Interval, xAxis, closes))
	return page.Render(w)
}

// RenderPortfolio writes an HTML page with executed trades and the current
// allocation at cost.
func RenderPortfolio(w io.Writer, in PortfolioChartInput) error {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(buildTradeChart(in.Trades), buildAllocationChart(in.Balance, in.Positions))
	return page.Render(w)
}

// RenderPortfolioHTML is RenderPortfolio into a byte slice.
func RenderPortfolioHTML(in PortfolioChartInput) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderPortfolio(&buf, in); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func initOpts(height int) opts.Initialization {
	return opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", chartWidthPx),
		Height:          fmt.Sprintf("%dpx", height),
		BackgroundColor: colorBackground,
	}
}

func buildTradeChart(trades []ledger.TradeRecord) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(tradeHeightPx)),
		charts.WithTitleOpts(opts.Title{Title: "Executed trades (USD)", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	xAxis := make([]string, 0, len(trades))
	data := make([]opts.BarData, 0, len(trades))
	for _, tr := range trades {
		if !tr.Success {
			continue
		}
		amount, _ := tr.Amount.Float64()
		color := colorBull
		if tr.Side == ledger.SideSell {
			amount = -amount
			color = colorBear
		}
		xAxis = append(xAxis, fmt.Sprintf("%s %s", tr.Timestamp.UTC().Format("01-02 15:04"), tr.Symbol))
		data = append(data, opts.BarData{
			Name:      tr.Symbol,
			Value:     round(amount, 2),
			ItemStyle: &opts.ItemStyle{Color: color},
		})
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Trades", data)
	return bar
}

func buildAllocationChart(balance float64, positions []ledger.Position) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(tradeHeightPx)),
		charts.WithTitleOpts(opts.Title{Title: "Allocation at cost", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10", TextStyle: &opts.TextStyle{Color: colorTextSecondary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
	)
	data := []opts.PieData{{Name: "Cash", Value: round(balance, 2)}}
	for _, p := range positions {
		cost, _ := p.CostBasis().Float64()
		data = append(data, opts.PieData{Name: p.Symbol, Value: round(cost, 2)})
	}
	pie.AddSeries("Allocation", data)
	return pie
}

func buildXAxis(candles []market.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = time.UnixMilli(c.CloseTime).UTC().Format("01-02 15:04")
	}
	return x
}

func buildKlineSeries(candles []market.Candle) []opts.KlineData {
	data := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	return data
}

func buildVolumeChart(interval string, xAxis []string, candles []market.Candle) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(volumeHeightPx)),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Volume %s", interval), Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			SplitNumber: 6,
			AxisLabel:   &opts.AxisLabel{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	vols := make([]opts.BarData, len(candles))
	for i, c := range candles {
		color := colorBear
		if c.Close >= c.Open {
			color = colorBull
		}
		vols[i] = opts.BarData{
			Value: c.Volume,
			ItemStyle: &opts.ItemStyle{
				Color:   color,
				Opacity: opts.Float(0.6),
			},
		}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Volume", vols)
	return bar
}

func buildMACDChart(interval string, xAxis []string, closes []float64) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts(macdHeightPx)),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("MACD %s", interval), Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextSecondary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	bar.SetXAxis(xAxis)
	if len(closes) < 26 {
		bar.AddSeries("MACD Hist", make([]opts.BarData, len(closes)))
		return bar
	}
	dif, dea, hist := talib.Macd(closes, 12, 26, 9)
	histData := make([]opts.BarData, len(hist))
	for i, v := range hist {
		if math.IsNaN(v) || i < 33 {
			histData[i] = opts.BarData{Value: nil}
			continue
		}
		color := colorBear
		if v >= 0 {
			color = colorBull
		}
		histData[i] = opts.BarData{Value: round(v, 4), ItemStyle: &opts.ItemStyle{Color: color}}
	}
	bar.AddSeries("MACD Hist", histData)

	line := charts.NewLine()
	line.SetSeriesOptions(
		charts.WithLineStyleOpts(opts.LineStyle{Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("DIF", toLineData(dif, len(closes)), charts.WithLineStyleOpts(opts.LineStyle{Color: colorDIF, Width: 2}))
	line.AddSeries("DEA", toLineData(dea, len(closes)), charts.WithLineStyleOpts(opts.LineStyle{Color: colorDEA, Width: 2}))
	bar.Overlap(line)
	return bar
}

// toLineData right-aligns series to length; talib pads warm-up slots with 0.
func toLineData(series []float64, length int) []opts.LineData {
	line := make([]opts.LineData, length)
	offset := length - len(series)
	if offset < 0 {
		offset = 0
	}
	for i := 0; i < offset; i++ {
		line[i] = opts.LineData{Value: nil}
	}
	for i := 0; i < len(series) && offset+i < length; i++ {
		val := series[i]
		if math.IsNaN(val) || val == 0 {
			line[offset+i] = opts.LineData{Value: nil}
		} else {
			line[offset+i] = opts.LineData{Value: round(val, 4)}
		}
	}
	return line
}

func closesOf(candles []market.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func priceBounds(candles []market.Candle) (minVal, maxVal float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	minVal = candles[0].Low
	maxVal = candles[0].High
	for _, c := range candles {
		if c.Low < minVal {
			minVal = c.Low
		}
		if c.High > maxVal {
			maxVal = c.High
		}
	}
	return minVal, maxVal
}
