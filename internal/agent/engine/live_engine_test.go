package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"cryptoprinter/internal/advisor"
	"cryptoprinter/internal/agent/interfaces"
	"cryptoprinter/internal/decision"
	"cryptoprinter/internal/executor"
	"cryptoprinter/internal/gateway/newsapi"
	"cryptoprinter/internal/ledger"
	"cryptoprinter/internal/market"
	"cryptoprinter/internal/pkg/circuit"
	"cryptoprinter/internal/store/decisionlog"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMarket struct {
	mock.Mock
}

func (m *MockMarket) Symbols() []string { return []string{"BTC", "ETH"} }

func (m *MockMarket) Collect(ctx context.Context) (market.Snapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(market.Snapshot), args.Error(1)
}

type MockNews struct {
	mock.Mock
}

func (m *MockNews) Headlines(ctx context.Context, symbols []string) map[string][]newsapi.Headline {
	args := m.Called(ctx, symbols)
	out, _ := args.Get(0).(map[string][]newsapi.Headline)
	return out
}

type MockAdvisor struct {
	mock.Mock
}

func (m *MockAdvisor) ProviderID() string { return "mock" }
func (m *MockAdvisor) Model() string      { return "mock-model" }
func (m *MockAdvisor) RecentTrades() int  { return 10 }

func (m *MockAdvisor) Build(in advisor.Input) (advisor.Prompt, error) {
	args := m.Called(in)
	return args.Get(0).(advisor.Prompt), args.Error(1)
}

func (m *MockAdvisor) Ask(ctx context.Context, traceID string, attempt int, p advisor.Prompt) (string, error) {
	args := m.Called(ctx, traceID, attempt, p)
	return args.String(0), args.Error(1)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) ResolveOpenOrders(ctx context.Context) executor.ResolveReport {
	return m.Called(ctx).Get(0).(executor.ResolveReport)
}

func (m *MockDispatcher) Dispatch(ctx context.Context, cmds []decision.Command) executor.Report {
	return m.Called(ctx, cmds).Get(0).(executor.Report)
}

type MockCycleLog struct {
	mock.Mock
}

func (m *MockCycleLog) Insert(ctx context.Context, rec decisionlog.CycleRecord) (int64, error) {
	args := m.Called(ctx, rec)
	return int64(args.Int(0)), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendText(text string) error {
	return m.Called(text).Error(0)
}

type harness struct {
	engine   *LiveEngine
	market   *MockMarket
	news     *MockNews
	advisor  *MockAdvisor
	dispatch *MockDispatcher
	log      *MockCycleLog
	sleeps   []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	l, err := ledger.Open(context.Background(), ledger.NewMemoryStore(), ledger.Options{InitialBalance: decimal.NewFromInt(10000)})
	require.NoError(t, err)
	h := &harness{
		market:   new(MockMarket),
		news:     new(MockNews),
		advisor:  new(MockAdvisor),
		dispatch: new(MockDispatcher),
		log:      new(MockCycleLog),
	}
	e, err := NewLiveEngine(EngineParams{
		Market:      h.market,
		News:        h.news,
		Advisor:     h.advisor,
		Portfolio:   l,
		Dispatcher:  h.dispatch,
		DecisionLog: h.log,
		Options: Options{
			Interval:       time.Minute,
			Backoff:        10 * time.Second,
			RunImmediately: true,
			CandleInterval: "1h",
			MaxAttempts:    3,
			RetryDelay:     2 * time.Second,
		},
	})
	require.NoError(t, err)
	e.sleep = func(ctx context.Context, d time.Duration) bool {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err() == nil
	}
	h.engine = e
	return h
}

func candles(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = market.Candle{OpenTime: int64(i) * 3600_000, Open: p, High: p + 2, Low: p - 2, Close: p + 1, Volume: 10}
	}
	return out
}

func snapshot() market.Snapshot {
	return market.Snapshot{
		At: time.Now(),
		Symbols: []market.SymbolData{
			{Symbol: "BTC", Ticker: market.Ticker{Symbol: "BTC", Bid: decimal.NewFromInt(140), Ask: decimal.NewFromInt(141)}, Candles: candles(60)},
			{Symbol: "ETH", Err: errors.New("timeout")},
		},
	}
}

var prompt = advisor.Prompt{System: "sys", User: "user"}

func TestRunCycleDispatchesParsedCommands(t *testing.T) {
	h := newHarness(t)
	h.market.On("Collect", mock.Anything).Return(snapshot(), nil)
	h.news.On("Headlines", mock.Anything, []string{"BTC"}).Return(map[string][]newsapi.Headline{"BTC": {{Title: "ETF inflows"}}})
	h.advisor.On("Build", mock.MatchedBy(func(in advisor.Input) bool {
		_, ok := in.Indicators["BTC"]
		return ok && len(in.News["BTC"]) == 1 && in.Portfolio.Balance.Equal(decimal.NewFromInt(10000))
	})).Return(prompt, nil)
	h.advisor.On("Ask", mock.Anything, mock.Anything, 1, prompt).
		Return("Momentum looks good.\nbuy_crypto_price(\"BTC\", 500, \"breakout\")\nbuy_crypto_price(\"ETH\", 100, \"no quote\")", nil)
	h.dispatch.On("ResolveOpenOrders", mock.Anything).Return(executor.ResolveReport{}).Once()
	h.dispatch.On("Dispatch", mock.Anything, mock.MatchedBy(func(cmds []decision.Command) bool {
		return len(cmds) == 2 && cmds[0].Order.Symbol == "BTC"
	})).Return(executor.Report{Attempted: 2, Succeeded: 1, Failed: 1}).Once()
	h.log.On("Insert", mock.Anything, mock.MatchedBy(func(rec decisionlog.CycleRecord) bool {
		return rec.Attempts == 1 && rec.Succeeded == 1 && rec.Failed == 1 &&
			len(rec.Commands) == 2 && rec.Error == "" && rec.Balance == "10000.00" &&
			assert.ObjectsAreEqual([]string{"BTC"}, rec.Symbols)
	})).Return(1, nil).Once()

	res, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.TraceID)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, h.sleeps)

	snap, ok := h.engine.LastSnapshot()
	require.True(t, ok)
	assert.Len(t, snap.Symbols, 2)
	last, ok := h.engine.LastCycle()
	require.True(t, ok)
	assert.Equal(t, res.TraceID, last.TraceID)

	h.advisor.AssertExpectations(t)
	h.dispatch.AssertExpectations(t)
	h.log.AssertExpectations(t)
}

func TestRunCycleReasksUntilCommandFound(t *testing.T) {
	h := newHarness(t)
	h.market.On("Collect", mock.Anything).Return(snapshot(), nil)
	h.news.On("Headlines", mock.Anything, mock.Anything).Return(nil)
	h.advisor.On("Build", mock.Anything).Return(prompt, nil)
	h.advisor.On("Ask", mock.Anything, mock.Anything, 1, prompt).Return("I am not sure yet.", nil).Once()
	h.advisor.On("Ask", mock.Anything, mock.Anything, 2, prompt).Return("", errors.New("502")).Once()
	h.advisor.On("Ask", mock.Anything, mock.Anything, 3, prompt).Return("do_nothing()", nil).Once()
	h.dispatch.On("ResolveOpenOrders", mock.Anything).Return(executor.ResolveReport{})
	h.dispatch.On("Dispatch", mock.Anything, mock.Anything).Return(executor.Report{})
	h.log.On("Insert", mock.Anything, mock.MatchedBy(func(rec decisionlog.CycleRecord) bool {
		return rec.Attempts == 3 && rec.Note == "do_nothing"
	})).Return(1, nil)

	res, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	require.Len(t, res.Parsed.Commands, 1)
	assert.Equal(t, decision.KindDoNothing, res.Parsed.Commands[0].Kind)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, h.sleeps)
	h.advisor.AssertExpectations(t)
	h.log.AssertExpectations(t)
}

func TestRunCycleWithoutCommandsTradesNothing(t *testing.T) {
	h := newHarness(t)
	h.market.On("Collect", mock.Anything).Return(snapshot(), nil)
	h.news.On("Headlines", mock.Anything, mock.Anything).Return(nil)
	h.advisor.On("Build", mock.Anything).Return(prompt, nil)
	h.advisor.On("Ask", mock.Anything, mock.Anything, mock.Anything, prompt).Return("no idea", nil).Times(3)
	h.dispatch.On("ResolveOpenOrders", mock.Anything).Return(executor.ResolveReport{Checked: 1})
	h.dispatch.On("Dispatch", mock.Anything, mock.MatchedBy(func(cmds []decision.Command) bool { return len(cmds) == 0 })).
		Return(executor.Report{})
	h.log.On("Insert", mock.Anything, mock.Anything).Return(1, nil)

	res, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "no idea", res.Raw)
	h.advisor.AssertExpectations(t)
	h.dispatch.AssertExpectations(t)
}

func TestRunCycleAdvisorUnavailable(t *testing.T) {
	h := newHarness(t)
	h.market.On("Collect", mock.Anything).Return(snapshot(), nil)
	h.news.On("Headlines", mock.Anything, mock.Anything).Return(nil)
	h.advisor.On("Build", mock.Anything).Return(prompt, nil)
	h.advisor.On("Ask", mock.Anything, mock.Anything, mock.Anything, prompt).Return("", errors.New("connection refused"))
	h.log.On("Insert", mock.Anything, mock.MatchedBy(func(rec decisionlog.CycleRecord) bool {
		return rec.Error != "" && rec.Attempts == 3
	})).Return(1, nil)

	_, err := h.engine.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrCollaboratorUnavailable)
	h.advisor.AssertNumberOfCalls(t, "Ask", 3)
	h.dispatch.AssertNotCalled(t, "ResolveOpenOrders", mock.Anything)
	h.dispatch.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	h.log.AssertExpectations(t)
}

func TestRunCycleMarketUnavailable(t *testing.T) {
	h := newHarness(t)
	h.market.On("Collect", mock.Anything).Return(market.Snapshot{}, market.ErrNoMarketData)
	h.log.On("Insert", mock.Anything, mock.Anything).Return(0, errors.New("disk full"))

	_, err := h.engine.RunCycle(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrCollaboratorUnavailable)
	h.advisor.AssertNotCalled(t, "Build", mock.Anything)
	_, ok := h.engine.LastSnapshot()
	assert.False(t, ok)
}

func TestRunBacksOffAfterFailureAndStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.market.On("Collect", mock.Anything).Return(market.Snapshot{}, market.ErrNoMarketData).Once()
	h.market.On("Collect", mock.Anything).Return(snapshot(), nil).Once()
	h.news.On("Headlines", mock.Anything, mock.Anything).Return(nil)
	h.advisor.On("Build", mock.Anything).Return(prompt, nil)
	h.advisor.On("Ask", mock.Anything, mock.Anything, 1, prompt).Return("do_nothing()", nil)
	h.dispatch.On("ResolveOpenOrders", mock.Anything).Return(executor.ResolveReport{})
	h.dispatch.On("Dispatch", mock.Anything, mock.Anything).Return(executor.Report{}).Run(func(mock.Arguments) { cancel() })
	h.log.On("Insert", mock.Anything, mock.Anything).Return(1, nil)

	n := new(MockNotifier)
	n.On("SendText", mock.Anything).Return(nil)
	h.engine.notifier = n

	err := h.engine.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, h.sleeps, 1)
	assert.Equal(t, 10*time.Second, h.sleeps[0])
	h.market.AssertNumberOfCalls(t, "Collect", 2)
	n.AssertNumberOfCalls(t, "SendText", 1)
}

func TestRunSkipsCyclesWhileCircuitOpen(t *testing.T) {
	h := newHarness(t)
	h.engine.CircuitBreaker.RecordFailure()
	h.engine.CircuitBreaker.RecordFailure()
	h.engine.CircuitBreaker.RecordFailure()
	h.engine.CircuitBreaker.RecordFailure()
	h.engine.CircuitBreaker.RecordFailure()

	wait := h.engine.tick(context.Background())
	assert.GreaterOrEqual(t, wait, 10*time.Second)
	h.market.AssertNotCalled(t, "Collect", mock.Anything)
}

func TestFailedTicksOpenCircuit(t *testing.T) {
	h := newHarness(t)
	h.engine.CircuitBreaker = circuit.NewCircuitBreaker("LiveEngine", 2, time.Minute)
	h.market.On("Collect", mock.Anything).Return(market.Snapshot{}, market.ErrNoMarketData)
	h.log.On("Insert", mock.Anything, mock.Anything).Return(1, nil)
	ctx := context.Background()

	assert.Equal(t, 10*time.Second, h.engine.tick(ctx))
	assert.Equal(t, circuit.StateClosed, h.engine.CircuitBreaker.State())
	assert.Equal(t, 10*time.Second, h.engine.tick(ctx))
	assert.Equal(t, circuit.StateOpen, h.engine.CircuitBreaker.State())

	wait := h.engine.tick(ctx)
	assert.Greater(t, wait, 50*time.Second)
	assert.LessOrEqual(t, wait, time.Minute)
	h.market.AssertNumberOfCalls(t, "Collect", 2)
}

func TestNewLiveEngineRequiresCollaborators(t *testing.T) {
	_, err := NewLiveEngine(EngineParams{})
	assert.Error(t, err)
}
