package trailing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"riskpilot/src/connectors"
	"riskpilot/src/feed"
	"riskpilot/src/ledger"
	"riskpilot/src/model"
)

type noopStore struct{}

func (noopStore) PersistOpen(_ context.Context, account *model.AccountState, _ *model.Position) error {
	account.ID = 1
	return nil
}
func (noopStore) PersistUpdate(context.Context, *model.Position) error { return nil }
func (noopStore) PersistClose(context.Context, *model.AccountState, *model.Position, *model.ClosedTrade) error {
	return nil
}

type fakeAdapter struct {
	exits []model.CloseReason
}

func (a *fakeAdapter) SubmitEntry(context.Context, connectors.EntryOrder) (*connectors.Fill, error) {
	return nil, nil
}

func (a *fakeAdapter) SubmitExit(_ context.Context, _ string, quantity decimal.Decimal, reason model.CloseReason) (*connectors.Fill, error) {
	a.exits = append(a.exits, reason)
	return &connectors.Fill{Price: d("138"), Quantity: quantity, Fee: decimal.Zero, Timestamp: time.Now().UTC()}, nil
}

func (a *fakeAdapter) LookupEntry(context.Context, string) (*connectors.Fill, bool, error) {
	return nil, false, nil
}

func newMonitorFixture(t *testing.T) (*Monitor, *ledger.Ledger, *feed.MemorySource, *fakeAdapter) {
	t.Helper()

	l := ledger.New(d("1000"), d("0"), noopStore{})
	source := feed.NewMemorySource()
	adapter := &fakeAdapter{}
	monitor := NewMonitor(l, source, adapter, testConfig())
	return monitor, l, source, adapter
}

func openLong(t *testing.T, l *ledger.Ledger, entry, stop, target string) {
	t.Helper()

	_, err := l.Open(context.Background(), ledger.OpenParams{
		Instrument:     "BTC-USD",
		Direction:      model.DirectionLong,
		EntryPrice:     d(entry),
		Notional:       d(entry),
		Leverage:       5,
		StopLoss:       d(stop),
		ProfitTarget:   d(target),
		Confidence:     0.7,
		EntryFee:       decimal.Zero,
		IdempotencyKey: "btc-key",
		EntryTime:      time.Now().UTC().Add(-5 * time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error opening: %v", err)
	}
}

func TestSweepClosesOnStopHit(t *testing.T) {
	monitor, l, source, adapter := newMonitorFixture(t)
	openLong(t, l, "140", "138", "145")
	source.SetQuote("BTC-USD", d("137.5"), time.Now().UTC())

	monitor.Sweep(context.Background())

	if len(adapter.exits) != 1 || adapter.exits[0] != model.CloseReasonStopLoss {
		t.Fatalf("expected one stop-loss exit, got %v", adapter.exits)
	}
	if l.Snapshot().OpenCount() != 0 {
		t.Fatalf("position must be closed after the sweep")
	}
}

func TestSweepSkipsStaleQuote(t *testing.T) {
	monitor, l, source, adapter := newMonitorFixture(t)
	openLong(t, l, "140", "138", "145")
	source.SetQuote("BTC-USD", d("137.5"), time.Now().UTC().Add(-5*time.Minute))

	monitor.Sweep(context.Background())

	if len(adapter.exits) != 0 {
		t.Fatalf("stale quote must not trigger an exit, got %v", adapter.exits)
	}
	if l.Snapshot().OpenCount() != 1 {
		t.Fatalf("position must survive a stale-quote tick")
	}
}

func TestSweepSkipsMissingQuote(t *testing.T) {
	monitor, l, _, adapter := newMonitorFixture(t)
	openLong(t, l, "140", "138", "145")

	monitor.Sweep(context.Background())

	if len(adapter.exits) != 0 {
		t.Fatalf("missing quote must not trigger an exit")
	}
	if l.Snapshot().OpenCount() != 1 {
		t.Fatalf("position must survive a missing-quote tick")
	}
}

func TestSweepTightensTrailingStop(t *testing.T) {
	monitor, l, source, adapter := newMonitorFixture(t)
	openLong(t, l, "140", "138", "145")
	now := time.Now().UTC()
	source.SetQuote("BTC-USD", d("144"), now)
	source.SetIndicators(model.IndicatorSnapshot{Instrument: "BTC-USD", ATR: d("0.5"), At: now})

	monitor.Sweep(context.Background())

	if len(adapter.exits) != 0 {
		t.Fatalf("trailing tick must not exit, got %v", adapter.exits)
	}
	position, ok := l.Position("BTC-USD")
	if !ok {
		t.Fatalf("position must still be open")
	}
	if !position.StopLoss.Equal(d("143.4")) {
		t.Fatalf("expected tightened stop 143.4, got %s", position.StopLoss)
	}
	if !position.TrailingActive {
		t.Fatalf("expected trailing flag set")
	}

	// next sweep at the same price leaves the stop alone
	monitor.Sweep(context.Background())
	position, _ = l.Position("BTC-USD")
	if !position.StopLoss.Equal(d("143.4")) {
		t.Fatalf("stop must not creep at an unchanged price, got %s", position.StopLoss)
	}
}

func TestSweepMarginCutsDeepLoss(t *testing.T) {
	monitor, l, source, adapter := newMonitorFixture(t)
	// wide stop so the dollar cut fires first: qty 1, entry 140, price 110
	openLong(t, l, "140", "100", "145")
	source.SetQuote("BTC-USD", d("110"), time.Now().UTC())

	monitor.Sweep(context.Background())

	if len(adapter.exits) != 1 || adapter.exits[0] != model.CloseReasonMarginCut {
		t.Fatalf("expected margin cut exit, got %v", adapter.exits)
	}
}
