package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"riskpilot/src/connectors"
	"riskpilot/src/cooldown"
	"riskpilot/src/database"
	"riskpilot/src/decider"
	"riskpilot/src/engine"
	"riskpilot/src/feed"
	"riskpilot/src/risk"
	"riskpilot/src/server"
	"riskpilot/src/trailing"
)

// Runner boots the full engine runtime. Paper mode swaps the live execution
// adapter for the feed-driven simulator; everything else is identical.
type Runner struct {
	Paper bool
}

func (r *Runner) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	limits := risk.GetLimits()
	if err := limits.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid risk limits")
		return err
	}

	source := feed.NewMemorySource()
	ws := feed.NewWebsocketFeed(feed.GetWebsocketConfig(), source)
	go ws.Run(ctx)

	var adapter connectors.ExecutionAdapter
	if r.Paper {
		logrus.Info("Paper mode, using simulated execution")
		adapter = connectors.NewSimulatedAdapter(source,
			decimal.NewFromFloat(5), decimal.NewFromFloat(2))
	} else {
		adapter = connectors.NewHTTPAdapter(connectors.GetHTTPAdapterConfig())
	}

	provider := decider.NewHTTPProvider(decider.GetHTTPProviderConfig())

	eng, err := engine.New(
		ctx,
		engine.GetConfig(),
		limits,
		cooldown.GetConfig(),
		trailing.GetConfig(),
		provider,
		source,
		adapter,
	)
	if err != nil {
		logrus.WithError(err).Error("Failed to restore engine state")
		return err
	}

	go server.StartServer(ctx, server.GetConfig().Port, eng)

	eng.Run(ctx)
	return nil
}
