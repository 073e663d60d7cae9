package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"riskpilot/src/cooldown"
	"riskpilot/src/ledger"
	"riskpilot/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeLedger struct {
	snapshot ledger.Snapshot
}

func (f *fakeLedger) Snapshot() ledger.Snapshot { return f.snapshot }

type fakeCooldowns struct {
	snapshots map[string]cooldown.Snapshot
}

func (f *fakeCooldowns) Snapshots() map[string]cooldown.Snapshot { return f.snapshots }

type fakeTrades struct {
	trades []model.ClosedTrade
	err    error
}

func (f *fakeTrades) RecentTrades(_ context.Context, limit int) ([]model.ClosedTrade, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.trades) {
		return f.trades[:limit], nil
	}
	return f.trades, nil
}

func (f *fakeTrades) AllTrades(context.Context) ([]model.ClosedTrade, error) {
	return f.trades, f.err
}

func TestAccountHandler(t *testing.T) {
	l := &fakeLedger{snapshot: ledger.Snapshot{
		CashBalance:      d("850"),
		InitialBalance:   d("1000"),
		RealizedPnLTotal: d("-50"),
		ReservedMargin:   d("25"),
		Positions:        []model.Position{{Instrument: "BTC-USD"}},
	}}

	rec := httptest.NewRecorder()
	AccountHandler(l)(rec, httptest.NewRequest(http.MethodGet, "/account", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["cash_balance"] != "850" {
		t.Fatalf("expected cash 850, got %v", body["cash_balance"])
	}
	if body["open_positions"] != float64(1) {
		t.Fatalf("expected 1 open position, got %v", body["open_positions"])
	}
}

func TestPositionsHandler(t *testing.T) {
	l := &fakeLedger{snapshot: ledger.Snapshot{
		Positions: []model.Position{
			{Instrument: "BTC-USD", Direction: model.DirectionLong},
			{Instrument: "ETH-USD", Direction: model.DirectionShort},
		},
	}}

	rec := httptest.NewRecorder()
	PositionsHandler(l)(rec, httptest.NewRequest(http.MethodGet, "/positions", nil))

	var positions []model.Position
	if err := json.Unmarshal(rec.Body.Bytes(), &positions); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(positions) != 2 || positions[0].Instrument != "BTC-USD" {
		t.Fatalf("unexpected positions payload: %+v", positions)
	}
}

func TestCooldownsHandler(t *testing.T) {
	m := &fakeCooldowns{snapshots: map[string]cooldown.Snapshot{
		"direction/long": {Active: true, CyclesRemaining: 2, LossStreakUSD: decimal.Zero},
	}}

	rec := httptest.NewRecorder()
	CooldownsHandler(m)(rec, httptest.NewRequest(http.MethodGet, "/cooldowns", nil))

	var body map[string]cooldown.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !body["direction/long"].Active || body["direction/long"].CyclesRemaining != 2 {
		t.Fatalf("unexpected cooldown payload: %+v", body)
	}
}

func TestTradesHandlerLimits(t *testing.T) {
	repo := &fakeTrades{trades: []model.ClosedTrade{
		{ID: 3, Instrument: "BTC-USD"},
		{ID: 2, Instrument: "ETH-USD"},
		{ID: 1, Instrument: "SOL-USD"},
	}}

	rec := httptest.NewRecorder()
	TradesHandler(repo)(rec, httptest.NewRequest(http.MethodGet, "/trades?limit=2", nil))

	var trades []model.ClosedTrade
	if err := json.Unmarshal(rec.Body.Bytes(), &trades); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
}

func TestTradesHandlerRejectsBadLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	TradesHandler(&fakeTrades{})(rec, httptest.NewRequest(http.MethodGet, "/trades?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTradesHandlerStoreFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	TradesHandler(&fakeTrades{err: errors.New("db down")})(rec, httptest.NewRequest(http.MethodGet, "/trades", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	repo := &fakeTrades{trades: []model.ClosedTrade{
		{ID: 1, RealizedPnL: d("10")},
		{ID: 2, RealizedPnL: d("-4")},
	}}

	rec := httptest.NewRecorder()
	StatsHandler(repo)(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["total_trades"] != float64(2) || body["wins"] != float64(1) {
		t.Fatalf("unexpected stats payload: %+v", body)
	}
}
