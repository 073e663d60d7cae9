// Package cooldown implements the directional circuit breaker: after a losing
// streak on one side, new entries on that side are blocked for a fixed number
// of decision cycles.
//
// Counters are deliberately unexported and the Snapshot methods are the only
// read path. Admission and context building must go through them; nothing else
// may observe or mutate cooldown state.
package cooldown

import (
	"context"
	"fmt"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"riskpilot/src/events"
	"riskpilot/src/model"
)

const (
	TriggerLossStreak = "loss_streak"
	TriggerLossUSD    = "loss_usd"
)

type Config struct {
	// LossStreakThreshold trips the breaker after this many consecutive losses.
	LossStreakThreshold int `envconfig:"COOLDOWN_LOSS_STREAK" default:"3"`
	// LossUSDThreshold trips the breaker once the streak's cumulative loss
	// reaches this many dollars.
	LossUSDThreshold float64 `envconfig:"COOLDOWN_LOSS_USD" default:"5"`
	// Cycles is how many decision cycles an activation lasts.
	Cycles int `envconfig:"COOLDOWN_CYCLES" default:"3"`
	// PerInstrument additionally tracks a breaker per instrument.
	PerInstrument bool `envconfig:"COOLDOWN_PER_INSTRUMENT" default:"false"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Snapshot is the read-only view of one tracker handed to the admission
// controller and the decision-maker context.
type Snapshot struct {
	Active            bool            `json:"active"`
	CyclesRemaining   int             `json:"cycles_remaining"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
	LossStreakUSD     decimal.Decimal `json:"loss_streak_usd"`
	TriggerReason     string          `json:"trigger_reason,omitempty"`
}

type tracker struct {
	scope             string
	key               string
	cyclesRemaining   int
	consecutiveLosses int
	lossStreakUSD     decimal.Decimal
	triggerReason     string
}

func (t *tracker) snapshot() Snapshot {
	return Snapshot{
		Active:            t.cyclesRemaining > 0,
		CyclesRemaining:   t.cyclesRemaining,
		ConsecutiveLosses: t.consecutiveLosses,
		LossStreakUSD:     t.lossStreakUSD,
		TriggerReason:     t.triggerReason,
	}
}

func (t *tracker) record() *model.CooldownRecord {
	return &model.CooldownRecord{
		Scope:             t.scope,
		Key:               t.key,
		CyclesRemaining:   t.cyclesRemaining,
		ConsecutiveLosses: t.consecutiveLosses,
		LossStreakUSD:     t.lossStreakUSD,
		TriggerReason:     t.triggerReason,
	}
}

// Store persists tracker changes; satisfied by *repository.CooldownRepository.
type Store interface {
	Save(ctx context.Context, record *model.CooldownRecord) error
}

// Machine owns every cooldown tracker. ClosedTrade events must be fed to
// ObserveClose strictly in close order so consecutive-loss counting follows
// real trade chronology; the ledger guarantees that ordering by emitting the
// event inside its own lock.
type Machine struct {
	mu          sync.Mutex
	config      Config
	directions  map[model.Direction]*tracker
	instruments map[string]*tracker
	store       Store
}

func New(config Config, store Store) *Machine {
	m := &Machine{
		config:      config,
		directions:  make(map[model.Direction]*tracker, 2),
		instruments: make(map[string]*tracker),
		store:       store,
	}
	for _, d := range []model.Direction{model.DirectionLong, model.DirectionShort} {
		m.directions[d] = &tracker{
			scope:         model.CooldownScopeDirection,
			key:           string(d),
			lossStreakUSD: decimal.Zero,
		}
	}
	return m
}

// Restore loads persisted counters, typically on process restart.
func (m *Machine) Restore(records []model.CooldownRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		t := &tracker{
			scope:             r.Scope,
			key:               r.Key,
			cyclesRemaining:   r.CyclesRemaining,
			consecutiveLosses: r.ConsecutiveLosses,
			lossStreakUSD:     r.LossStreakUSD,
			triggerReason:     r.TriggerReason,
		}
		switch r.Scope {
		case model.CooldownScopeDirection:
			m.directions[model.Direction(r.Key)] = t
		case model.CooldownScopeInstrument:
			m.instruments[r.Key] = t
		}
	}
}

// ObserveClose feeds one finished trade into the breaker. Losses advance the
// streak counters and may trip an activation; wins reset the counters but a
// cooldown already running keeps its remaining cycles. Cycle decay is the only
// deactivation path.
func (m *Machine) ObserveClose(ctx context.Context, trade *model.ClosedTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.observe(ctx, m.directions[trade.Direction], trade); err != nil {
		return err
	}
	if m.config.PerInstrument {
		return m.observe(ctx, m.instrumentTracker(trade.Instrument), trade)
	}
	return nil
}

func (m *Machine) observe(ctx context.Context, t *tracker, trade *model.ClosedTrade) error {
	if trade.IsLoss() {
		t.consecutiveLosses++
		t.lossStreakUSD = t.lossStreakUSD.Add(trade.RealizedPnL.Abs())

		streakHit := t.consecutiveLosses >= m.config.LossStreakThreshold
		usdHit := t.lossStreakUSD.GreaterThanOrEqual(decimal.NewFromFloat(m.config.LossUSDThreshold))
		if streakHit || usdHit {
			// Both conditions firing at once is a single activation; the
			// streak condition wins the reason label.
			reason := TriggerLossUSD
			if streakHit {
				reason = TriggerLossStreak
			}
			t.cyclesRemaining = m.config.Cycles
			t.triggerReason = reason
			t.consecutiveLosses = 0
			t.lossStreakUSD = decimal.Zero
			events.CooldownActivated(t.scope, t.key, reason, m.config.Cycles)
		}
	} else {
		t.consecutiveLosses = 0
		t.lossStreakUSD = decimal.Zero
		// A win during an active cooldown does not cancel it; only cycle
		// decay deactivates.
	}

	return m.store.Save(ctx, t.record())
}

// Tick decays every active tracker by one decision cycle.
func (m *Machine) Tick(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.directions {
		if err := m.tickTracker(ctx, t); err != nil {
			return err
		}
	}
	for _, t := range m.instruments {
		if err := m.tickTracker(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) tickTracker(ctx context.Context, t *tracker) error {
	if t.cyclesRemaining == 0 {
		return nil
	}
	t.cyclesRemaining--
	if t.cyclesRemaining == 0 {
		t.triggerReason = ""
		events.CooldownDeactivated(t.scope, t.key)
	}
	return m.store.Save(ctx, t.record())
}

// DirectionSnapshot is the canonical read path for directional cooldown state.
func (m *Machine) DirectionSnapshot(direction model.Direction) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.directions[direction].snapshot()
}

// InstrumentSnapshot is the canonical read path for per-instrument cooldown
// state. Always inactive when per-instrument tracking is disabled.
func (m *Machine) InstrumentSnapshot(instrument string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.config.PerInstrument {
		return Snapshot{LossStreakUSD: decimal.Zero}
	}
	return m.instrumentTracker(instrument).snapshot()
}

// Snapshots returns every tracker keyed by "scope/key", for the status server
// and the decision-maker context.
func (m *Machine) Snapshots() map[string]Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Snapshot, len(m.directions)+len(m.instruments))
	for d, t := range m.directions {
		out[model.CooldownScopeDirection+"/"+string(d)] = t.snapshot()
	}
	for k, t := range m.instruments {
		out[model.CooldownScopeInstrument+"/"+k] = t.snapshot()
	}
	return out
}

// instrumentTracker lazily creates a tracker; callers must hold m.mu.
func (m *Machine) instrumentTracker(instrument string) *tracker {
	t, ok := m.instruments[instrument]
	if !ok {
		t = &tracker{
			scope:         model.CooldownScopeInstrument,
			key:           instrument,
			lossStreakUSD: decimal.Zero,
		}
		m.instruments[instrument] = t
	}
	return t
}
