package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestUnrealizedPnL(t *testing.T) {
	tests := []struct {
		name      string
		direction Direction
		entry     string
		quantity  string
		price     string
		want      string
	}{
		{"long gain", DirectionLong, "50000", "0.01", "51000", "10"},
		{"long loss", DirectionLong, "50000", "0.01", "49500", "-5"},
		{"short gain", DirectionShort, "100", "3", "96", "12"},
		{"short loss", DirectionShort, "100", "3", "102", "-6"},
		{"flat", DirectionLong, "100", "5", "100", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Position{Direction: tt.direction, EntryPrice: d(tt.entry), Quantity: d(tt.quantity)}
			got := p.UnrealizedPnL(d(tt.price))
			if !got.Equal(d(tt.want)) {
				t.Fatalf("pnl=%s, want %s", got, tt.want)
			}
		})
	}
}

func TestTargetProgress(t *testing.T) {
	long := &Position{Direction: DirectionLong, EntryPrice: d("140"), ProfitTarget: d("145")}
	if !long.TargetProgress(d("144")).Equal(d("0.8")) {
		t.Fatalf("expected progress 0.8, got %s", long.TargetProgress(d("144")))
	}
	if !long.TargetProgress(d("139")).Equal(d("-0.2")) {
		t.Fatalf("expected negative progress below entry, got %s", long.TargetProgress(d("139")))
	}

	short := &Position{Direction: DirectionShort, EntryPrice: d("140"), ProfitTarget: d("135")}
	if !short.TargetProgress(d("136")).Equal(d("0.8")) {
		t.Fatalf("expected short progress 0.8, got %s", short.TargetProgress(d("136")))
	}

	degenerate := &Position{Direction: DirectionLong, EntryPrice: d("140"), ProfitTarget: d("140")}
	if !degenerate.TargetProgress(d("150")).IsZero() {
		t.Fatalf("zero span must yield zero progress")
	}
}

func TestAge(t *testing.T) {
	opened := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := &Position{EntryTime: opened}
	if p.Age(opened.Add(25*time.Minute)) != 25*time.Minute {
		t.Fatalf("unexpected age")
	}
}

func TestDirection(t *testing.T) {
	if !DirectionLong.Valid() || !DirectionShort.Valid() || Direction("sideways").Valid() {
		t.Fatalf("direction validity broken")
	}
	if !DirectionLong.Sign().Equal(decimal.NewFromInt(1)) {
		t.Fatalf("long sign must be +1")
	}
	if !DirectionShort.Sign().Equal(decimal.NewFromInt(-1)) {
		t.Fatalf("short sign must be -1")
	}
}
