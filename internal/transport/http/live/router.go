package livehttp

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"cryptoprinter/internal/analysis/visual"
	"cryptoprinter/internal/ledger"
	"cryptoprinter/internal/logger"
	"cryptoprinter/internal/market"
	"cryptoprinter/internal/store/decisionlog"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// PortfolioReader is the read side of the ledger.
type PortfolioReader interface {
	Snapshot() ledger.Snapshot
	Available() decimal.Decimal
	Positions() []ledger.Position
	OpenOrders() []ledger.OpenOrder
	RecentTrades(n int) []ledger.TradeRecord
}

// DecisionLogReader lists recorded cycles.
type DecisionLogReader interface {
	ListCycles(ctx context.Context, q decisionlog.Query) ([]decisionlog.CycleRecord, error)
	CountCycles(ctx context.Context, q decisionlog.Query) (int, error)
	GetByTraceID(ctx context.Context, traceID string) (decisionlog.CycleRecord, error)
}

// MarketView exposes the engine's latest market snapshot.
type MarketView interface {
	LastSnapshot() (market.Snapshot, bool)
	CandleInterval() string
}

// Router 暴露组合与决策的查询接口。
type Router struct {
	ledger   PortfolioReader
	logs     DecisionLogReader
	market   MarketView
	logPaths map[string]string
	logNames []string
}

func NewRouter(l PortfolioReader, logs DecisionLogReader, mv MarketView, logPaths map[string]string) *Router {
	names := make([]string, 0, len(logPaths))
	for name, path := range logPaths {
		if strings.TrimSpace(path) == "" || strings.TrimSpace(name) == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return &Router{ledger: l, logs: logs, market: mv, logPaths: logPaths, logNames: names}
}

func (r *Router) Register(router gin.IRoutes) {
	router.GET("/api/portfolio", r.handlePortfolio)
	router.GET("/api/orders", r.handleOrders)
	router.GET("/api/trades", r.handleTrades)
	router.GET("/api/decisions", r.handleDecisions)
	router.GET("/api/decisions/:trace", r.handleDecisionByTrace)
	router.GET("/api/logs", r.handleLogs)
	router.GET("/charts/trades", r.handleTradesChart)
	router.GET("/charts/candles/:symbol", r.handleCandleChart)
}

type positionView struct {
	ledger.Position
	CostBasis   decimal.Decimal  `json:"cost_basis"`
	MarketPrice *decimal.Decimal `json:"market_price,omitempty"`
	MarketValue *decimal.Decimal `json:"market_value,omitempty"`
}

func (r *Router) handlePortfolio(c *gin.Context) {
	snap := r.ledger.Snapshot()
	marks := r.marks()
	positions := make([]positionView, 0, len(snap.Positions))
	equity := snap.Balance
	for _, p := range r.ledger.Positions() {
		v := positionView{Position: p, CostBasis: p.CostBasis()}
		if bid, ok := marks[p.Symbol]; ok {
			mv := p.Quantity.Mul(bid)
			v.MarketPrice, v.MarketValue = &bid, &mv
			equity = equity.Add(mv)
		} else {
			equity = equity.Add(v.CostBasis)
		}
		positions = append(positions, v)
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":      snap.Balance,
		"reserved":     snap.Reserved,
		"available":    r.ledger.Available(),
		"equity":       equity,
		"positions":    positions,
		"open_orders":  len(r.ledger.OpenOrders()),
		"trades":       len(snap.TradeHistory),
		"last_updated": snap.LastUpdated,
	})
}

// marks returns the latest bid per symbol, empty before the first cycle.
func (r *Router) marks() map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	if r.market == nil {
		return out
	}
	snap, ok := r.market.LastSnapshot()
	if !ok {
		return out
	}
	for _, d := range snap.Available() {
		out[d.Symbol] = d.Ticker.Bid
	}
	return out
}

func (r *Router) handleOrders(c *gin.Context) {
	orders := r.ledger.OpenOrders()
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (r *Router) handleTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	trades := r.ledger.RecentTrades(limit)
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (r *Router) handleDecisions(c *gin.Context) {
	if r.logs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision log disabled"})
		return
	}
	page, _ := strconv.Atoi(strings.TrimSpace(c.Query("page")))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))
	if pageSize <= 0 {
		pageSize, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 500 {
		pageSize = 500
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	if page > 0 {
		offset = (page - 1) * pageSize
	} else {
		page = offset/pageSize + 1
	}
	q := decisionlog.Query{
		Symbol:     c.Query("symbol"),
		OnlyErrors: c.Query("errors") == "1" || strings.EqualFold(c.Query("errors"), "true"),
		Limit:      pageSize,
		Offset:     offset,
	}

	reqCtx := c.Request.Context()
	listCtx, cancelList := context.WithTimeout(reqCtx, 2*time.Second)
	cycles, err := r.logs.ListCycles(listCtx, q)
	cancelList()
	if err != nil {
		logger.Errorf("[api] decisions list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total := -1
	countCtx, cancelCount := context.WithTimeout(reqCtx, 800*time.Millisecond)
	count, err := r.logs.CountCycles(countCtx, q)
	cancelCount()
	if err != nil {
		// list already succeeded; total stays -1
		logger.Warnf("[api] decisions count failed ip=%s err=%v", c.ClientIP(), err)
	} else {
		total = count
	}
	if cycles == nil {
		cycles = []decisionlog.CycleRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"cycles":      cycles,
		"total_count": total,
		"page":        page,
		"page_size":   pageSize,
	})
}

func (r *Router) handleDecisionByTrace(c *gin.Context) {
	if r.logs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision log disabled"})
		return
	}
	rec, err := r.logs.GetByTraceID(c.Request.Context(), c.Param("trace"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "cycle not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (r *Router) handleLogs(c *gin.Context) {
	if len(r.logNames) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no log files configured"})
		return
	}
	name := strings.TrimSpace(c.DefaultQuery("name", ""))
	path := ""
	if name != "" {
		path = strings.TrimSpace(r.logPaths[name])
	}
	if path == "" {
		name = r.logNames[0]
		path = r.logPaths[name]
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if limit <= 0 {
		limit = 200
	}
	lines, err := readLastLines(path, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "path": path})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":      name,
		"lines":     lines,
		"available": r.logNames,
	})
}

func (r *Router) handleTradesChart(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	snap := r.ledger.Snapshot()
	html, err := visual.RenderPortfolioHTML(visual.PortfolioChartInput{
		Balance:   snap.Balance.InexactFloat64(),
		Positions: r.ledger.Positions(),
		Trades:    r.ledger.RecentTrades(limit),
	})
	if err != nil {
		logger.Errorf("[api] trades chart failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (r *Router) handleCandleChart(c *gin.Context) {
	if r.market == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market view disabled"})
		return
	}
	symbol := ledger.NormalizeSymbol(c.Param("symbol"))
	snap, ok := r.market.LastSnapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no market snapshot yet"})
		return
	}
	for _, d := range snap.Symbols {
		if d.Symbol != symbol {
			continue
		}
		var buf bytes.Buffer
		err := visual.RenderCandles(&buf, visual.CandleChartInput{Symbol: symbol, Interval: r.market.CandleInterval(), Candles: d.Candles})
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol " + symbol})
}

const maxLogLineSize = 4 * 1024 * 1024

func readLastLines(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineSize)
	lines := make([]string, 0, limit)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
