package connectors

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"riskpilot/src/model"
)

var (
	// ErrExecutionFailed wraps adapter-side rejections; the caller rolls back
	// its reservation and may retry on a later cycle.
	ErrExecutionFailed = errors.New("order execution failed")
	// ErrExecutionTimeout marks a submission whose outcome is unknown; the
	// caller must reconcile against the exchange's authoritative state.
	ErrExecutionTimeout = errors.New("order execution timed out")
)

// Fill is the adapter's report of an executed order.
type Fill struct {
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Fee       decimal.Decimal `json:"fee"`
	Timestamp time.Time       `json:"timestamp"`
}

// EntryOrder is an admitted entry handed to the adapter. The idempotency key
// is generated per admission, so a retried or reconciled submission can never
// double-fill.
type EntryOrder struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Instrument     string          `json:"instrument"`
	Direction      model.Direction `json:"direction"`
	NotionalUSD    decimal.Decimal `json:"notional_usd"`
	Leverage       int             `json:"leverage"`
}

// ExecutionAdapter turns admitted entries and exits into fills, either against
// a live exchange or instantaneously in simulation.
type ExecutionAdapter interface {
	SubmitEntry(ctx context.Context, order EntryOrder) (*Fill, error)
	SubmitExit(ctx context.Context, instrument string, quantity decimal.Decimal, reason model.CloseReason) (*Fill, error)
	// LookupEntry returns the fill for a previously submitted entry, if the
	// exchange executed it. Used to reconcile timed-out submissions.
	LookupEntry(ctx context.Context, idempotencyKey string) (*Fill, bool, error)
}
