package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"mabot/internal/config"
	"mabot/internal/execution"
	"mabot/internal/indicator"
	"mabot/internal/md"
	"mabot/internal/state"
	"mabot/internal/strategy"

	"github.com/shopspring/decimal"
)

// Results recorded for cycles that end before the executor runs.
const (
	ResultDataUnavailable  = "data_unavailable"
	ResultInsufficientData = "insufficient_data"
	ResultPositionError    = "position_error"
	ResultDegradedData     = "degraded_data"
	ResultCancelled        = "cancelled"
	ResultPanic            = "panic"
)

type CandleSource interface {
	FetchRecent(ctx context.Context, product string, window time.Duration) (md.Series, error)
}

type PositionTracker interface {
	Current(ctx context.Context) (state.Position, error)
	MarkLong(amount decimal.Decimal)
	MarkFlat()
}

type OrderExecutor interface {
	Execute(ctx context.Context, intent strategy.TradeIntent, price decimal.Decimal, position state.Position) execution.Result
}

// Observer receives every recorded decision, e.g. the status board.
type Observer interface {
	Observe(decision Decision)
}

type Engine struct {
	cfg       config.Config
	source    CandleSource
	strategy  strategy.Strategy
	tracker   PositionTracker
	executor  OrderExecutor
	decisions *DecisionLogger
	observers []Observer
	runID     string
	cycles    uint64
	now       func() time.Time
}

func New(cfg config.Config, source CandleSource, strategy strategy.Strategy, tracker PositionTracker, executor OrderExecutor, decisions *DecisionLogger) *Engine {
	return &Engine{
		cfg:       cfg,
		source:    source,
		strategy:  strategy,
		tracker:   tracker,
		executor:  executor,
		decisions: decisions,
		runID:     decisions.RunID(),
		now:       time.Now,
	}
}

func (e *Engine) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

func (e *Engine) Cycles() uint64 {
	return atomic.LoadUint64(&e.cycles)
}

// Run drives one cycle per poll interval until ctx is cancelled or the
// configured number of cycles has run.
func (e *Engine) Run(ctx context.Context) error {
	log.Printf("engine started run_id=%s product=%s mode=%s fast=%d slow=%d interval=%s", e.runID, e.cfg.Product, e.cfg.Mode, e.cfg.FastWindow, e.cfg.SlowWindow, e.cfg.PollInterval)
	for n := 1; ctx.Err() == nil; n++ {
		e.Cycle(ctx)
		if e.cfg.MaxCycles > 0 && n >= e.cfg.MaxCycles {
			log.Printf("max cycles reached cycles=%d", n)
			break
		}
		if err := waitForContext(ctx, e.cfg.PollInterval); err != nil {
			break
		}
	}
	log.Printf("engine stopped run_id=%s cycles=%d", e.runID, e.Cycles())
	return nil
}

// Cycle runs fetch, indicators, position, decide and execute once. Errors
// and panics end the cycle and are recorded; they never escape.
func (e *Engine) Cycle(ctx context.Context) (decision Decision) {
	decision = Decision{
		RunID:     e.runID,
		Cycle:     atomic.AddUint64(&e.cycles, 1),
		Timestamp: e.now().UTC(),
		Product:   e.cfg.Product,
		Mode:      string(e.cfg.Mode),
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("cycle panic", "cycle", decision.Cycle, "panic", r, "stack", string(debug.Stack()))
			decision.Result = ResultPanic
			decision.Error = fmt.Sprint(r)
		}
		e.record(decision)
	}()

	series, err := e.source.FetchRecent(ctx, e.cfg.Product, e.cfg.Window)
	if err != nil {
		decision.Result = ResultDataUnavailable
		if ctx.Err() != nil {
			decision.Result = ResultCancelled
		}
		decision.Error = err.Error()
		log.Printf("cycle=%d fetch failed: %v", decision.Cycle, err)
		return decision
	}
	decision.Tier = series.Tier
	decision.Candles = series.Len()

	ind, err := indicator.Compute(series, e.cfg.FastWindow, e.cfg.SlowWindow)
	if err != nil {
		decision.Result = ResultInsufficientData
		decision.Error = err.Error()
		if !errors.Is(err, indicator.ErrInsufficientData) {
			slog.Error("indicator computation failed", "cycle", decision.Cycle, "error", err)
		}
		log.Printf("cycle=%d tier=%s candles=%d skipped: %v", decision.Cycle, series.Tier, series.Len(), err)
		return decision
	}
	decision.CandleTime = ind.At
	decision.Close = ind.Close
	decision.FastMA = ind.Fast
	decision.SlowMA = ind.Slow

	position, err := e.tracker.Current(ctx)
	if err != nil {
		decision.Result = ResultPositionError
		decision.Error = err.Error()
		log.Printf("cycle=%d position unavailable: %v", decision.Cycle, err)
		return decision
	}
	decision.Position = position.State
	decision.PositionAmount = position.Amount
	decision.PositionSource = position.Source

	intent := e.strategy.Decide(strategy.MarketSnapshot{
		Timestamp: ind.At,
		Close:     ind.Close,
		FastMA:    ind.Fast,
		SlowMA:    ind.Slow,
		Position:  position,
	})
	decision.Intent = intent.Action
	decision.Reason = intent.Reason

	if intent.Action != strategy.Hold && series.Degraded() && e.cfg.Mode == config.ModeLive {
		decision.Result = ResultDegradedData
		slog.Warn("live order suppressed on degraded data", "cycle", decision.Cycle, "tier", series.Tier, "intent", intent.Action)
		log.Printf("cycle=%d close=%s fast=%s slow=%s position=%s intent=%s degraded_data tier=%s", decision.Cycle, ind.Close, ind.Fast.StringFixed(4), ind.Slow.StringFixed(4), position.State, intent.Action, series.Tier)
		return decision
	}

	result := e.executor.Execute(ctx, intent, ind.Close, position)
	decision.Result = string(result.Outcome)
	decision.OrderID = result.OrderID
	decision.IdempotencyKey = result.Order.IdempotencyKey
	if result.Err != nil {
		decision.Error = result.Err.Error()
	}
	if result.Accepted() {
		switch intent.Action {
		case strategy.Buy:
			e.tracker.MarkLong(result.BaseAmount)
		case strategy.Sell:
			e.tracker.MarkFlat()
		}
	}

	log.Printf("cycle=%d tier=%s close=%s fast=%s slow=%s position=%s intent=%s reason=%s result=%s", decision.Cycle, series.Tier, ind.Close, ind.Fast.StringFixed(4), ind.Slow.StringFixed(4), position.State, intent.Action, intent.Reason, decision.Result)
	return decision
}

func (e *Engine) record(decision Decision) {
	e.decisions.Append(decision)
	for _, o := range e.observers {
		o.Observe(decision)
	}
}

func waitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
