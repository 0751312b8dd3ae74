package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"mabot/internal/broker"
	"mabot/internal/coinbase"
	"mabot/internal/config"
	"mabot/internal/engine"
	"mabot/internal/exchange"
	"mabot/internal/execution"
	"mabot/internal/logging"
	"mabot/internal/md"
	"mabot/internal/state"
	"mabot/internal/status"
	"mabot/internal/strategy"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logCloser, err := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("logging error: %v", err)
	}
	defer logCloser.Close()

	base, quote, err := cfg.Assets()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	runID := time.Now().UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
	decisions, err := engine.NewDecisionLogger(cfg.DecisionsPath, runID)
	if err != nil {
		log.Fatalf("decision logger error: %v", err)
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			log.Printf("failed to close decision logger: %v", err)
		}
	}()

	client, closeClient := newExchangeClient(cfg, quote)
	defer closeClient()
	client = exchange.WithTimeout(client, cfg.RequestTimeout)

	source := md.NewSource(client, md.SourceConfig{
		MinPoints:       cfg.SlowWindow,
		SyntheticPoints: cfg.SyntheticPoints,
		FailClosed:      cfg.FailClosed,
	})

	// Live runs trust the exchange balance; paper runs track simulated fills.
	var balance state.BalanceFunc
	if cfg.Mode == config.ModeLive {
		balance = client.GetBalance
	}
	tracker := state.NewTracker(base, cfg.MinTradeSize, balance)

	executor := execution.New(execution.Config{
		Product:    cfg.Product,
		BaseAsset:  base,
		QuoteAsset: quote,
		Mode:       execution.Mode(cfg.Mode),
		Sizing: execution.Sizing{
			Buy:          execution.BuySizing(cfg.BuySizing),
			Sell:         execution.SellSizing(cfg.SellSizing),
			TradeSize:    cfg.TradeSize,
			QuoteAmount:  cfg.QuoteAmount,
			MinTradeSize: cfg.MinTradeSize,
			MaxNotional:  cfg.MaxNotional,
		},
		KillSwitch: cfg.KillSwitch,
		KeyPrefix:  cfg.OrderPrefix,
	}, client, balance)

	engineImpl := engine.New(cfg, source, strategy.Crossover{}, tracker, executor, decisions)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	preflight(ctx, client, cfg, base, quote)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.StatusAddr != "" {
		board := status.NewBoard(tracker.Snapshot)
		engineImpl.AddObserver(board)
		server := status.NewServer(cfg.StatusAddr, board)
		g.Go(func() error {
			return server.Run(gctx)
		})
	}
	g.Go(func() error {
		// a bounded run ends the whole process, status server included
		defer stop()
		return engineImpl.Run(gctx)
	})

	log.Printf("starting bot run_id=%s exchange=%s mode=%s product=%s", runID, cfg.Exchange, cfg.Mode, cfg.Product)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("bot stopped with error: %v", err)
	}
	log.Printf("bot shutdown complete")
}

func newExchangeClient(cfg config.Config, quote string) (exchange.Client, func()) {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	switch cfg.Exchange {
	case config.ExchangeAlpaca:
		return broker.New(broker.Options{
			APIKey:     cfg.APIKey,
			APISecret:  cfg.APISecret,
			BaseURL:    cfg.AlpacaBaseURL,
			DataURL:    cfg.AlpacaDataURL,
			Quote:      quote,
			HTTPClient: httpClient,
		}), func() {}
	default:
		signer := coinbase.NewSigner(cfg.APIKey, cfg.APISecret, cfg.Passphrase)
		return coinbase.New(cfg.CoinbaseBaseURL, signer, httpClient), signer.Wipe
	}
}

// preflight logs balances and the spot price before the first cycle. Failures
// are reported but do not stop the bot.
func preflight(ctx context.Context, client exchange.Client, cfg config.Config, base, quote string) {
	if price, err := client.GetSpotPrice(ctx, cfg.Product); err != nil {
		slog.Warn("preflight spot price unavailable", "product", cfg.Product, "error", err)
	} else {
		slog.Info("preflight spot price", "product", cfg.Product, "price", price.String())
	}
	if cfg.Mode != config.ModeLive {
		return
	}
	for _, asset := range []string{base, quote} {
		amount, err := client.GetBalance(ctx, asset)
		if err != nil {
			slog.Warn("preflight balance unavailable", "asset", asset, "error", err)
			continue
		}
		slog.Info("preflight balance", "asset", asset, "available", amount.String())
	}
	if cfg.KillSwitch {
		slog.Warn("kill switch enabled, orders will be blocked")
	}
}
