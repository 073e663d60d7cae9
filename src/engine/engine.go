// Package engine wires the ledger, cooldown machine, admission controller and
// trailing monitor into the two-loop runtime: a slow decision loop and a fast
// position monitor, sharing one ledger.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"riskpilot/src/admission"
	"riskpilot/src/connectors"
	"riskpilot/src/cooldown"
	"riskpilot/src/decider"
	"riskpilot/src/events"
	"riskpilot/src/feed"
	"riskpilot/src/ledger"
	"riskpilot/src/model"
	"riskpilot/src/repository"
	"riskpilot/src/risk"
	"riskpilot/src/stats"
	"riskpilot/src/trailing"
)

// Engine owns the full trade lifecycle. Construction restores durable state;
// Run drives both loops until the context ends.
type Engine struct {
	config     Config
	limits     risk.Limits
	ledger     *ledger.Ledger
	cooldowns  *cooldown.Machine
	controller *admission.Controller
	monitor    *trailing.Monitor
	provider   decider.Provider
	source     feed.Source
	adapter    connectors.ExecutionAdapter
	ledgerRepo *repository.LedgerRepository
}

// New restores the engine from the durable store, creating a fresh account on
// first boot.
func New(
	ctx context.Context,
	config Config,
	limits risk.Limits,
	cooldownConfig cooldown.Config,
	trailingConfig trailing.Config,
	provider decider.Provider,
	source feed.Source,
	adapter connectors.ExecutionAdapter,
) (*Engine, error) {
	ledgerRepo := repository.NewLedgerRepository()
	cooldownRepo := repository.NewCooldownRepository()

	account, err := ledgerRepo.LoadAccount(ctx)
	if err != nil {
		return nil, err
	}
	if account == nil {
		initial := decimal.NewFromFloat(config.InitialBalanceUSD)
		account = &model.AccountState{
			CashBalance:      initial,
			InitialBalance:   initial,
			RealizedPnLTotal: decimal.Zero,
		}
		if err := ledgerRepo.SaveAccount(ctx, account); err != nil {
			return nil, err
		}
		logger.WithField("initial_balance", initial).Info("Created fresh account state")
	}

	openPositions, err := ledgerRepo.OpenPositions(ctx)
	if err != nil {
		return nil, err
	}
	l := ledger.Restore(account, openPositions, limits.CashProtectionFloor, ledgerRepo)

	cooldowns := cooldown.New(cooldownConfig, cooldownRepo)
	records, err := cooldownRepo.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	cooldowns.Restore(records)

	// The cooldown machine consumes closes inside the ledger lock so its
	// streak counting follows close order exactly.
	l.OnClose(func(ctx context.Context, trade *model.ClosedTrade) {
		if err := cooldowns.ObserveClose(ctx, trade); err != nil {
			logger.WithError(err).Error("Failed to persist cooldown state")
		}
	})

	e := &Engine{
		config:     config,
		limits:     limits,
		ledger:     l,
		cooldowns:  cooldowns,
		controller: admission.NewController(l, cooldowns, limits, adapter, config.ExecutionTimeout),
		monitor:    trailing.NewMonitor(l, source, adapter, trailingConfig),
		provider:   provider,
		source:     source,
		adapter:    adapter,
		ledgerRepo: ledgerRepo,
	}
	return e, nil
}

// Ledger exposes the account state owner for the status server.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Cooldowns exposes the breaker state for the status server.
func (e *Engine) Cooldowns() *cooldown.Machine { return e.cooldowns }

// TradeHistory returns the full closed-trade log.
func (e *Engine) TradeHistory(ctx context.Context) ([]model.ClosedTrade, error) {
	return e.ledgerRepo.AllTrades(ctx)
}

// Run starts the decision and monitor loops and blocks until ctx ends.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		e.monitor.StartLoop(ctx, e.config.MonitorPeriod)
	}()
	go func() {
		defer wg.Done()
		e.decisionLoop(ctx)
	}()

	wg.Wait()
	logger.Info("Engine stopped")
}

func (e *Engine) decisionLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.DecisionPeriod)
	defer ticker.Stop()

	logger.WithField("period", e.config.DecisionPeriod).Info("Starting decision loop")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Decision loop stopped")
			return
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle executes one full decision cycle. Exported so the simulated runner
// and tests can drive cycles without the ticker.
func (e *Engine) RunCycle(ctx context.Context) {
	// Timed-out submissions from earlier cycles are settled before any new
	// capital is proposed.
	e.controller.Reconcile(ctx)

	decisionCtx, err := e.buildContext(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to build decision context")
		return
	}

	decisions, err := e.provider.Decide(ctx, decisionCtx)
	if err != nil {
		logger.WithError(err).Error("Decision provider failed, holding all positions")
	} else {
		for _, decision := range decisions {
			e.dispatch(ctx, decision)
		}
	}

	// Every decision cycle costs active cooldowns one cycle, whether or not
	// the provider produced anything.
	if err := e.cooldowns.Tick(ctx); err != nil {
		logger.WithError(err).Error("Failed to persist cooldown decay")
	}
	e.publishEquity()
}

func (e *Engine) buildContext(ctx context.Context) (decider.Context, error) {
	trades, err := e.ledgerRepo.RecentTrades(ctx, e.config.RecentTradeCount)
	if err != nil {
		return decider.Context{}, err
	}
	allTrades, err := e.ledgerRepo.AllTrades(ctx)
	if err != nil {
		return decider.Context{}, err
	}

	snapshot := e.ledger.Snapshot()
	indicators := make([]model.IndicatorSnapshot, 0, len(snapshot.Positions))
	seen := make(map[string]bool, len(snapshot.Positions))
	for i := range snapshot.Positions {
		instrument := snapshot.Positions[i].Instrument
		if ind, ok := e.source.Indicators(instrument); ok {
			indicators = append(indicators, ind)
			seen[instrument] = true
		}
	}
	if lister, ok := e.source.(interface{ Instruments() []string }); ok {
		for _, instrument := range lister.Instruments() {
			if seen[instrument] {
				continue
			}
			if ind, ok := e.source.Indicators(instrument); ok {
				indicators = append(indicators, ind)
			}
		}
	}

	return decider.Context{
		Account:      snapshot,
		Cooldowns:    e.cooldowns.Snapshots(),
		Indicators:   indicators,
		RecentTrades: trades,
		Performance:  stats.Compute(allTrades),
	}, nil
}

func (e *Engine) dispatch(ctx context.Context, decision decider.Decision) {
	log := logger.WithFields(map[string]interface{}{
		"action":     decision.Action,
		"instrument": decision.Instrument,
	})

	if err := decider.Validate(decision); err != nil {
		log.WithError(err).Warn("Rejecting malformed decision")
		events.AdmissionDecided(decision.Instrument, decision.Direction, false,
			string(admission.ReasonMalformedInput))
		return
	}

	switch decision.Action {
	case decider.ActionHold:
		return

	case decider.ActionClose:
		e.closeOnSignal(ctx, decision.Instrument, log)

	case decider.ActionEnter:
		proposal := admission.Proposal{
			Instrument:   decision.Instrument,
			Direction:    decision.Direction,
			Confidence:   decision.Confidence,
			Leverage:     decision.Leverage,
			NotionalUSD:  decision.NotionalUSD,
			StopLoss:     decision.StopLoss,
			ProfitTarget: decision.ProfitTarget,
		}
		if _, err := e.controller.Admit(ctx, proposal); err != nil {
			log.WithError(err).Error("Admitted entry failed to execute")
		}
	}
}

func (e *Engine) closeOnSignal(ctx context.Context, instrument string, log *logger.Entry) {
	position, ok := e.ledger.Position(instrument)
	if !ok {
		log.Warn("Close decision for unknown position")
		return
	}
	fill, err := e.adapter.SubmitExit(ctx, instrument, position.Quantity, model.CloseReasonSignal)
	if err != nil {
		log.WithError(err).Error("Failed to submit signal exit")
		return
	}
	if _, err := e.ledger.Close(ctx, instrument, fill.Price, fill.Fee, model.CloseReasonSignal); err != nil {
		log.WithError(err).Error("Failed to book signal exit")
	}
}

func (e *Engine) publishEquity() {
	prices := make(map[string]decimal.Decimal)
	snapshot := e.ledger.Snapshot()
	for i := range snapshot.Positions {
		if quote, ok := e.source.Quote(snapshot.Positions[i].Instrument); ok {
			prices[snapshot.Positions[i].Instrument] = quote.Price
		}
	}
	events.EquityUpdated(e.ledger.TotalEquity(prices))
}
