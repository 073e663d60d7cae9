package cooldown

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"riskpilot/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type memStore struct {
	saves []model.CooldownRecord
}

func (s *memStore) Save(_ context.Context, record *model.CooldownRecord) error {
	s.saves = append(s.saves, *record)
	return nil
}

func trade(direction model.Direction, pnl string) *model.ClosedTrade {
	return &model.ClosedTrade{
		Instrument:  "BTC-USD",
		Direction:   direction,
		RealizedPnL: d(pnl),
		Reason:      model.CloseReasonStopLoss,
	}
}

func testConfig() Config {
	return Config{
		LossStreakThreshold: 3,
		LossUSDThreshold:    5,
		Cycles:              3,
	}
}

func TestThreeConsecutiveLossesActivate(t *testing.T) {
	m := New(testConfig(), &memStore{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := m.ObserveClose(ctx, trade(model.DirectionLong, "-1")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.DirectionSnapshot(model.DirectionLong).Active {
			t.Fatalf("cooldown must not trip after %d losses", i+1)
		}
	}

	if err := m.ObserveClose(ctx, trade(model.DirectionLong, "-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := m.DirectionSnapshot(model.DirectionLong)
	if !snap.Active {
		t.Fatalf("expected active cooldown after 3 losses")
	}
	if snap.CyclesRemaining != 3 {
		t.Fatalf("expected 3 cycles remaining, got %d", snap.CyclesRemaining)
	}
	if snap.TriggerReason != TriggerLossStreak {
		t.Fatalf("expected loss_streak trigger, got %s", snap.TriggerReason)
	}
	if snap.ConsecutiveLosses != 0 {
		t.Fatalf("activation must reset the streak counter, got %d", snap.ConsecutiveLosses)
	}

	// the short side is unaffected
	if m.DirectionSnapshot(model.DirectionShort).Active {
		t.Fatalf("short cooldown must stay inactive")
	}
}

func TestCumulativeLossUSDActivates(t *testing.T) {
	m := New(testConfig(), &memStore{})
	ctx := context.Background()

	// two losses summing past $5 before the streak threshold
	if err := m.ObserveClose(ctx, trade(model.DirectionShort, "-2.60")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.DirectionSnapshot(model.DirectionShort).Active {
		t.Fatalf("cooldown must not trip at $2.60")
	}
	if err := m.ObserveClose(ctx, trade(model.DirectionShort, "-2.50")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := m.DirectionSnapshot(model.DirectionShort)
	if !snap.Active {
		t.Fatalf("expected active cooldown past $5 streak loss")
	}
	if snap.TriggerReason != TriggerLossUSD {
		t.Fatalf("expected loss_usd trigger, got %s", snap.TriggerReason)
	}
}

func TestWinResetsCountersButNotActiveCooldown(t *testing.T) {
	m := New(testConfig(), &memStore{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.ObserveClose(ctx, trade(model.DirectionLong, "-2")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if !m.DirectionSnapshot(model.DirectionLong).Active {
		t.Fatalf("expected active cooldown")
	}

	// a win while cooling down does not cancel remaining cycles
	if err := m.ObserveClose(ctx, trade(model.DirectionLong, "4")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := m.DirectionSnapshot(model.DirectionLong)
	if !snap.Active || snap.CyclesRemaining != 3 {
		t.Fatalf("win must not touch remaining cycles, got %+v", snap)
	}
	if snap.ConsecutiveLosses != 0 || !snap.LossStreakUSD.IsZero() {
		t.Fatalf("win must reset streak counters, got %+v", snap)
	}
}

func TestWinBreaksAccumulation(t *testing.T) {
	m := New(testConfig(), &memStore{})
	ctx := context.Background()

	if err := m.ObserveClose(ctx, trade(model.DirectionLong, "-2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.ObserveClose(ctx, trade(model.DirectionLong, "-2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.ObserveClose(ctx, trade(model.DirectionLong, "1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// two fresh losses: neither threshold reached
	if err := m.ObserveClose(ctx, trade(model.DirectionLong, "-2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.ObserveClose(ctx, trade(model.DirectionLong, "-2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.DirectionSnapshot(model.DirectionLong).Active {
		t.Fatalf("cooldown must not trip after a win broke the streak")
	}
}

func TestTickDecaysToDeactivation(t *testing.T) {
	m := New(testConfig(), &memStore{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.ObserveClose(ctx, trade(model.DirectionLong, "-2")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	for cycle := 3; cycle > 0; cycle-- {
		snap := m.DirectionSnapshot(model.DirectionLong)
		if !snap.Active || snap.CyclesRemaining != cycle {
			t.Fatalf("expected %d cycles remaining, got %+v", cycle, snap)
		}
		if err := m.Tick(ctx); err != nil {
			t.Fatalf("unexpected error ticking: %v", err)
		}
	}

	snap := m.DirectionSnapshot(model.DirectionLong)
	if snap.Active {
		t.Fatalf("cooldown must deactivate after 3 ticks, got %+v", snap)
	}
	if snap.TriggerReason != "" {
		t.Fatalf("trigger reason must clear on deactivation, got %s", snap.TriggerReason)
	}
}

func TestTickIgnoresInactiveTrackers(t *testing.T) {
	store := &memStore{}
	m := New(testConfig(), store)

	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.saves) != 0 {
		t.Fatalf("inactive trackers must not be persisted on tick, got %d saves", len(store.saves))
	}
}

func TestPerInstrumentTracking(t *testing.T) {
	config := testConfig()
	config.PerInstrument = true
	m := New(config, &memStore{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.ObserveClose(ctx, trade(model.DirectionLong, "-1")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if !m.InstrumentSnapshot("BTC-USD").Active {
		t.Fatalf("expected instrument cooldown for BTC-USD")
	}
	if m.InstrumentSnapshot("ETH-USD").Active {
		t.Fatalf("ETH-USD must be unaffected")
	}
}

func TestInstrumentSnapshotInactiveWhenDisabled(t *testing.T) {
	m := New(testConfig(), &memStore{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.ObserveClose(ctx, trade(model.DirectionLong, "-1")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if m.InstrumentSnapshot("BTC-USD").Active {
		t.Fatalf("instrument cooldown must stay inactive when disabled")
	}
}

func TestRestoreResumesCounters(t *testing.T) {
	m := New(testConfig(), &memStore{})
	m.Restore([]model.CooldownRecord{
		{
			Scope:             model.CooldownScopeDirection,
			Key:               string(model.DirectionShort),
			CyclesRemaining:   2,
			ConsecutiveLosses: 0,
			LossStreakUSD:     decimal.Zero,
			TriggerReason:     TriggerLossStreak,
		},
	})

	snap := m.DirectionSnapshot(model.DirectionShort)
	if !snap.Active || snap.CyclesRemaining != 2 {
		t.Fatalf("expected restored active cooldown with 2 cycles, got %+v", snap)
	}
}
