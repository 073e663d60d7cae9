package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"riskpilot/src/model"
)

func TestCooldownLoadAll(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &CooldownRepository{db: mockDB}

	rows := sqlmock.NewRows([]string{"id", "scope", "key", "cycles_remaining", "consecutive_losses", "loss_streak_usd", "trigger_reason"}).
		AddRow(1, "direction", "long", 2, 0, 0.0, "loss_streak").
		AddRow(2, "direction", "short", 0, 1, 2.5, "")
	mock.ExpectQuery(`SELECT \* FROM "cooldowns"`).WillReturnRows(rows)

	records, err := repo.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Scope != model.CooldownScopeDirection || records[0].CyclesRemaining != 2 {
		t.Fatalf("rows mapped incorrectly: %+v", records[0])
	}
	if !records[1].LossStreakUSD.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("expected streak 2.5, got %s", records[1].LossStreakUSD)
	}
}

func TestCooldownSaveUpserts(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &CooldownRepository{db: mockDB}

	record := &model.CooldownRecord{
		Scope:           model.CooldownScopeDirection,
		Key:             "long",
		CyclesRemaining: 3,
		LossStreakUSD:   decimal.Zero,
		TriggerReason:   "loss_streak",
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "cooldowns" .* ON CONFLICT \("scope","key"\) DO UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	if err := repo.Save(context.Background(), record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
