package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"mabot/internal/exchange"
	"mabot/internal/risk"
	"mabot/internal/state"
	"mabot/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) SubmitMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderAck, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(exchange.OrderAck), args.Error(1)
}

type balances map[string]string

func (b balances) fn(calls *int) state.BalanceFunc {
	return func(ctx context.Context, asset string) (decimal.Decimal, error) {
		if calls != nil {
			*calls++
		}
		value, ok := b[asset]
		if !ok {
			return decimal.Zero, errors.New("unknown asset " + asset)
		}
		return decimal.RequireFromString(value), nil
	}
}

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func testConfig(mode Mode) Config {
	return Config{
		Product:    "SOL-EUR",
		BaseAsset:  "SOL",
		QuoteAsset: "EUR",
		Mode:       mode,
		KeyPrefix:  "mabot",
		Sizing: Sizing{
			Buy:          BuyQuote,
			Sell:         SellAll,
			TradeSize:    d("0.1"),
			QuoteAmount:  d("20"),
			MinTradeSize: d("0.006"),
		},
	}
}

func fixedClock(executor *Executor, at time.Time) {
	executor.now = func() time.Time { return at }
}

func TestExecutePaperNeverSubmits(t *testing.T) {
	submitter := new(MockSubmitter)
	executor := New(testConfig(ModePaper), submitter, nil)
	long := state.Position{State: state.Long, Amount: d("0.5")}

	for _, action := range []strategy.Action{strategy.Buy, strategy.Sell, strategy.Hold} {
		result := executor.Execute(context.Background(), strategy.TradeIntent{Action: action}, d("150"), long)
		if action == strategy.Hold {
			assert.Equal(t, OutcomeHold, result.Outcome)
			continue
		}
		assert.Equal(t, OutcomePaper, result.Outcome, action)
		assert.Equal(t, PaperOrderID, result.OrderID)
		assert.True(t, result.Accepted())
		assert.Equal(t, ModePaper, result.Order.Mode)
	}
	submitter.AssertNotCalled(t, "SubmitMarketOrder", mock.Anything, mock.Anything)
}

func TestExecuteLiveBuyQuoteSizing(t *testing.T) {
	submitter := new(MockSubmitter)
	submitter.On("SubmitMarketOrder", mock.Anything, mock.MatchedBy(func(req exchange.OrderRequest) bool {
		return req.Side == exchange.SideBuy && req.QuoteSize.Equal(d("20")) && req.BaseSize.IsZero() && req.ClientOrderID == "mabot-1714564800"
	})).Return(exchange.OrderAck{OrderID: "abc", Accepted: true, Status: "pending"}, nil).Once()

	executor := New(testConfig(ModeLive), submitter, balances{"EUR": "100", "SOL": "0"}.fn(nil))
	fixedClock(executor, time.Unix(1714564800, 0))

	result := executor.Execute(context.Background(), strategy.TradeIntent{Action: strategy.Buy}, d("160"), state.Position{State: state.Flat})
	require.NoError(t, result.Err)
	assert.Equal(t, OutcomeSubmitted, result.Outcome)
	assert.Equal(t, "abc", result.OrderID)
	assert.True(t, result.BaseAmount.Equal(d("0.125")), result.BaseAmount.String())
	submitter.AssertExpectations(t)
}

func TestExecuteBuyInsufficientFunds(t *testing.T) {
	submitter := new(MockSubmitter)
	executor := New(testConfig(ModeLive), submitter, balances{"EUR": "19.99"}.fn(nil))

	result := executor.Execute(context.Background(), strategy.TradeIntent{Action: strategy.Buy}, d("160"), state.Position{State: state.Flat})
	assert.Equal(t, OutcomeInsufficientFunds, result.Outcome)
	assert.False(t, result.Accepted())
	submitter.AssertNotCalled(t, "SubmitMarketOrder", mock.Anything, mock.Anything)
}

func TestExecuteBuyBaseSizingChecksSpend(t *testing.T) {
	cfg := testConfig(ModeLive)
	cfg.Sizing.Buy = BuyBase
	submitter := new(MockSubmitter)
	executor := New(cfg, submitter, balances{"EUR": "15"}.fn(nil))

	// 0.1 SOL at 160 needs 16 EUR
	result := executor.Execute(context.Background(), strategy.TradeIntent{Action: strategy.Buy}, d("160"), state.Position{State: state.Flat})
	assert.Equal(t, OutcomeInsufficientFunds, result.Outcome)
	submitter.AssertNotCalled(t, "SubmitMarketOrder", mock.Anything, mock.Anything)
}

func TestExecuteSellLiquidatesLiveBalance(t *testing.T) {
	submitter := new(MockSubmitter)
	submitter.On("SubmitMarketOrder", mock.Anything, mock.MatchedBy(func(req exchange.OrderRequest) bool {
		return req.Side == exchange.SideSell && req.BaseSize.Equal(d("0.42"))
	})).Return(exchange.OrderAck{OrderID: "sell-1", Accepted: true}, nil).Once()

	calls := 0
	executor := New(testConfig(ModeLive), submitter, balances{"SOL": "0.42"}.fn(&calls))
	stale := state.Position{State: state.Long, Amount: d("1.5")}

	result := executor.Execute(context.Background(), strategy.TradeIntent{Action: strategy.Sell}, d("150"), stale)
	require.NoError(t, result.Err)
	assert.Equal(t, OutcomeSubmitted, result.Outcome)
	assert.True(t, result.Order.BaseSize.Equal(d("0.42")))
	assert.Equal(t, 1, calls)
	submitter.AssertExpectations(t)
}

func TestExecuteSellBelowMinimum(t *testing.T) {
	submitter := new(MockSubmitter)
	executor := New(testConfig(ModeLive), submitter, balances{"SOL": "0.001"}.fn(nil))

	result := executor.Execute(context.Background(), strategy.TradeIntent{Action: strategy.Sell}, d("150"), state.Position{State: state.Long, Amount: d("1")})
	assert.Equal(t, OutcomeBelowMinimum, result.Outcome)
	submitter.AssertNotCalled(t, "SubmitMarketOrder", mock.Anything, mock.Anything)

	// balance drained to zero after the position was read
	drained := New(testConfig(ModeLive), submitter, balances{"SOL": "0"}.fn(nil))
	result = drained.Execute(context.Background(), strategy.TradeIntent{Action: strategy.Sell}, d("150"), state.Position{State: state.Long, Amount: d("1")})
	assert.Equal(t, OutcomeBelowMinimum, result.Outcome)
	assert.ErrorIs(t, result.Err, risk.ErrBelowMinimumSize)
	submitter.AssertNotCalled(t, "SubmitMarketOrder", mock.Anything, mock.Anything)
}

func TestExecuteFixedSellCappedAtHeldBalance(t *testing.T) {
	cfg := testConfig(ModeLive)
	cfg.Sizing.Sell = SellFixed
	cfg.Sizing.TradeSize = d("0.5")
	submitter := new(MockSubmitter)
	submitter.On("SubmitMarketOrder", mock.Anything, mock.MatchedBy(func(req exchange.OrderRequest) bool {
		return req.Side == exchange.SideSell && req.BaseSize.Equal(d("0.2"))
	})).Return(exchange.OrderAck{OrderID: "sell-2", Accepted: true}, nil).Once()
	executor := New(cfg, submitter, balances{"SOL": "0.2"}.fn(nil))

	result := executor.Execute(context.Background(), strategy.TradeIntent{Action: strategy.Sell}, d("150"), state.Position{State: state.Long, Amount: d("0.2")})
	require.NoError(t, result.Err)
	assert.Equal(t, OutcomeSubmitted, result.Outcome)
	assert.True(t, result.BaseAmount.Equal(d("0.2")))
	submitter.AssertExpectations(t)
}

func TestExecuteFixedSellUsesTradeSizeWhenHeldIsLarger(t *testing.T) {
	cfg := testConfig(ModeLive)
	cfg.Sizing.Sell = SellFixed
	submitter := new(MockSubmitter)
	submitter.On("SubmitMarketOrder", mock.Anything, mock.MatchedBy(func(req exchange.OrderRequest) bool {
		return req.BaseSize.Equal(d("0.1"))
	})).Return(exchange.OrderAck{OrderID: "sell-3", Accepted: true}, nil).Once()
	executor := New(cfg, submitter, balances{"SOL": "3"}.fn(nil))

	result := executor.Execute(context.Background(), strategy.TradeIntent{Action: strategy.Sell}, d("150"), state.Position{State: state.Long, Amount: d("3")})
	assert.Equal(t, OutcomeSubmitted, result.Outcome)
	submitter.AssertExpectations(t)
}

func TestExecuteRejectedOrder(t *testing.T) {
	submitter := new(MockSubmitter)
	submitter.On("SubmitMarketOrder", mock.Anything, mock.Anything).
		Return(exchange.OrderAck{Accepted: false, Reason: "INSUFFICIENT_FUND"}, nil).Once()
	executor := New(testConfig(ModeLive), submitter, balances{"SOL": "1"}.fn(nil))

	result := executor.Execute(context.Background(), strategy.TradeIntent{Action: strategy.Sell}, d("150"), state.Position{State: state.Long})
	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrOrderRejected)
	assert.False(t, result.Accepted())
}

func TestExecuteTransportFailure(t *testing.T) {
	submitter := new(MockSubmitter)
	submitter.On("SubmitMarketOrder", mock.Anything, mock.Anything).
		Return(exchange.OrderAck{}, exchange.ErrTransport).Once()
	executor := New(testConfig(ModeLive), submitter, balances{"SOL": "1"}.fn(nil))

	result := executor.Execute(context.Background(), strategy.TradeIntent{Action: strategy.Sell}, d("150"), state.Position{State: state.Long})
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.ErrorIs(t, result.Err, exchange.ErrTransport)
}

func TestExecuteKillSwitchBlocks(t *testing.T) {
	cfg := testConfig(ModeLive)
	cfg.KillSwitch = true
	submitter := new(MockSubmitter)
	executor := New(cfg, submitter, balances{"EUR": "100"}.fn(nil))

	result := executor.Execute(context.Background(), strategy.TradeIntent{Action: strategy.Buy}, d("150"), state.Position{State: state.Flat})
	assert.Equal(t, OutcomeBlocked, result.Outcome)
	submitter.AssertNotCalled(t, "SubmitMarketOrder", mock.Anything, mock.Anything)
}

func TestIdempotencyKeySameSecond(t *testing.T) {
	executor := New(testConfig(ModeLive), nil, nil)
	base := time.Unix(1714564800, 0)
	calls := []time.Time{base.Add(100 * time.Millisecond), base.Add(900 * time.Millisecond), base.Add(time.Second)}
	i := 0
	executor.now = func() time.Time {
		t := calls[i]
		i++
		return t
	}

	first := executor.IdempotencyKey()
	second := executor.IdempotencyKey()
	third := executor.IdempotencyKey()
	assert.Equal(t, first, second)
	assert.NotEqual(t, second, third)
	assert.Equal(t, "mabot-1714564800", first)
}
