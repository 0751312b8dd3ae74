package exchange

import (
	"context"
	"time"

	"mabot/internal/md"

	"github.com/shopspring/decimal"
)

type timeoutClient struct {
	next    Client
	timeout time.Duration
}

// WithTimeout bounds every call to next by timeout.
func WithTimeout(next Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return next
	}
	return &timeoutClient{next: next, timeout: timeout}
}

func (c *timeoutClient) GetCandles(ctx context.Context, product string, start, end time.Time, granularity md.Granularity) ([]md.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.GetCandles(ctx, product, start, end, granularity)
}

func (c *timeoutClient) GetSpotPrice(ctx context.Context, product string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.GetSpotPrice(ctx, product)
}

func (c *timeoutClient) GetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.GetBalance(ctx, asset)
}

func (c *timeoutClient) SubmitMarketOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.SubmitMarketOrder(ctx, req)
}

// Await runs call and returns early with ctx.Err() when ctx ends first.
// It adapts SDK calls that take no context.
func Await[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := call()
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case out := <-done:
		return out.value, out.err
	}
}
