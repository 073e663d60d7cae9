// Package ledger owns the authoritative account state: cash balance, open
// positions and realized P&L. All mutation goes through the Ledger's lock and
// is persisted synchronously before the call returns, so a crash between a
// decision and persistence never leaves memory ahead of the durable store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"riskpilot/src/events"
	"riskpilot/src/model"
)

var (
	ErrInsufficientMargin = errors.New("insufficient margin for entry")
	ErrDuplicatePosition  = errors.New("position already open for instrument")
	ErrPositionNotFound   = errors.New("position not found")
)

// Store is the durable side of the ledger; satisfied by *repository.LedgerRepository.
type Store interface {
	PersistOpen(ctx context.Context, account *model.AccountState, position *model.Position) error
	PersistUpdate(ctx context.Context, position *model.Position) error
	PersistClose(ctx context.Context, account *model.AccountState, position *model.Position, trade *model.ClosedTrade) error
}

// CloseObserver consumes ClosedTrade events. Observers run inside the ledger
// lock, in close order, so downstream consumers (the cooldown machine, trade
// statistics) see trades in real-world chronology.
type CloseObserver func(ctx context.Context, trade *model.ClosedTrade)

// OpenParams carries everything needed to book an admitted, filled entry.
type OpenParams struct {
	Instrument     string
	Direction      model.Direction
	EntryPrice     decimal.Decimal
	Notional       decimal.Decimal
	Leverage       int
	StopLoss       decimal.Decimal
	ProfitTarget   decimal.Decimal
	Confidence     float64
	EntryFee       decimal.Decimal
	IdempotencyKey string
	EntryTime      time.Time
}

// Ledger is the single-writer owner of account state. The decision cycle and
// the trailing monitor both mutate it only through these methods.
type Ledger struct {
	mu             sync.Mutex
	cashBalance    decimal.Decimal
	initialBalance decimal.Decimal
	realizedTotal  decimal.Decimal
	cashFloor      decimal.Decimal
	reserved       decimal.Decimal
	positions      map[string]*model.Position
	accountID      uint
	store          Store
	observers      []CloseObserver
}

// New creates a fresh ledger with the given starting balance and cash
// protection floor.
func New(initialBalance, cashFloor decimal.Decimal, store Store) *Ledger {
	return &Ledger{
		cashBalance:    initialBalance,
		initialBalance: initialBalance,
		realizedTotal:  decimal.Zero,
		cashFloor:      cashFloor,
		reserved:       decimal.Zero,
		positions:      make(map[string]*model.Position),
		store:          store,
	}
}

// Restore rebuilds the ledger from persisted state after a restart.
func Restore(account *model.AccountState, openPositions []model.Position, cashFloor decimal.Decimal, store Store) *Ledger {
	l := &Ledger{
		cashBalance:    account.CashBalance,
		initialBalance: account.InitialBalance,
		realizedTotal:  account.RealizedPnLTotal,
		cashFloor:      cashFloor,
		reserved:       decimal.Zero,
		positions:      make(map[string]*model.Position, len(openPositions)),
		accountID:      account.ID,
		store:          store,
	}
	for i := range openPositions {
		p := openPositions[i]
		l.positions[p.Instrument] = &p
	}

	logger.WithFields(map[string]interface{}{
		"cash_balance":   account.CashBalance,
		"open_positions": len(openPositions),
		"realized_total": account.RealizedPnLTotal,
	}).Info("Ledger restored from durable state")

	return l
}

// OnClose registers an observer for ClosedTrade events. Registration order is
// notification order.
func (l *Ledger) OnClose(observer CloseObserver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, observer)
}

// Reserve pessimistically holds margin capacity for an in-flight order
// submission so a slow exchange call cannot be raced into over-commitment.
// The caller must either book the entry via Open or give the hold back via
// Release.
func (l *Ledger) Reserve(margin decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cashBalance.Sub(l.reserved).Sub(margin).LessThan(l.cashFloor) {
		return fmt.Errorf("%w: margin %s would breach cash floor %s (cash %s, reserved %s)",
			ErrInsufficientMargin, margin, l.cashFloor, l.cashBalance, l.reserved)
	}
	l.reserved = l.reserved.Add(margin)
	return nil
}

// Release rolls back a reservation after a failed or timed-out submission.
func (l *Ledger) Release(margin decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reserved = l.reserved.Sub(margin)
	if l.reserved.IsNegative() {
		logger.WithField("reserved", l.reserved).Error("Reservation balance went negative; clamping to zero")
		l.reserved = decimal.Zero
	}
}

// Open books a filled entry, converting the caller's reservation into booked
// margin. The mutation is atomic: either the position exists, cash is debited
// and the store has it, or nothing changed.
func (l *Ledger) Open(ctx context.Context, params OpenParams) (*model.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.positions[params.Instrument]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePosition, params.Instrument)
	}
	if params.Leverage < 1 {
		return nil, fmt.Errorf("leverage must be at least 1, got %d", params.Leverage)
	}

	margin := params.Notional.Div(decimal.NewFromInt(int64(params.Leverage)))
	if l.cashBalance.Sub(margin).LessThan(l.cashFloor) {
		return nil, fmt.Errorf("%w: margin %s would breach cash floor %s (cash %s)",
			ErrInsufficientMargin, margin, l.cashFloor, l.cashBalance)
	}

	quantity := params.Notional.Div(params.EntryPrice)
	position := &model.Position{
		Instrument:     params.Instrument,
		Direction:      params.Direction,
		EntryPrice:     params.EntryPrice,
		Quantity:       quantity,
		Leverage:       params.Leverage,
		MarginUsed:     margin,
		Notional:       params.Notional,
		StopLoss:       params.StopLoss,
		ProfitTarget:   params.ProfitTarget,
		Confidence:     params.Confidence,
		EntryFee:       params.EntryFee,
		IdempotencyKey: params.IdempotencyKey,
		EntryTime:      params.EntryTime,
		Status:         model.PositionStatusOpen,
	}

	account := l.accountStateLocked()
	account.CashBalance = l.cashBalance.Sub(margin)

	if err := l.store.PersistOpen(ctx, account, position); err != nil {
		return nil, fmt.Errorf("failed to persist opened position: %w", err)
	}

	// Durable first, then memory: the reservation becomes booked margin.
	l.accountID = account.ID
	l.cashBalance = account.CashBalance
	l.reserved = l.reserved.Sub(margin)
	if l.reserved.IsNegative() {
		l.reserved = decimal.Zero
	}
	l.positions[params.Instrument] = position

	events.PositionOpened(position)
	return position, nil
}

// Close removes the position, realizes its P&L net of fees (the exit fee
// passed in plus the entry fee remembered on the position) and credits margin
// plus P&L back to cash. Emits the ClosedTrade event to all observers before
// releasing the lock so event order matches close order.
func (l *Ledger) Close(ctx context.Context, instrument string, exitPrice, exitFee decimal.Decimal, reason model.CloseReason) (*model.ClosedTrade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	position, exists := l.positions[instrument]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, instrument)
	}

	fees := exitFee.Add(position.EntryFee)
	realized := position.UnrealizedPnL(exitPrice).Sub(fees)
	now := time.Now().UTC()

	trade := &model.ClosedTrade{
		Instrument:  position.Instrument,
		Direction:   position.Direction,
		EntryPrice:  position.EntryPrice,
		ExitPrice:   exitPrice,
		Quantity:    position.Quantity,
		Leverage:    position.Leverage,
		MarginUsed:  position.MarginUsed,
		Notional:    position.Notional,
		RealizedPnL: realized,
		Fees:        fees,
		Reason:      reason,
		OpenedAt:    position.EntryTime,
		ClosedAt:    now,
	}

	account := l.accountStateLocked()
	account.CashBalance = l.cashBalance.Add(position.MarginUsed).Add(realized)
	account.RealizedPnLTotal = l.realizedTotal.Add(realized)
	position.Status = model.PositionStatusClosed

	if err := l.store.PersistClose(ctx, account, position, trade); err != nil {
		position.Status = model.PositionStatusOpen
		return nil, fmt.Errorf("failed to persist closed position: %w", err)
	}

	l.cashBalance = account.CashBalance
	l.realizedTotal = account.RealizedPnLTotal
	delete(l.positions, instrument)

	events.PositionClosed(trade)
	events.EquityUpdated(l.cashBalance)
	for _, observer := range l.observers {
		observer(ctx, trade)
	}

	return trade, nil
}

// Mark computes the unrealized P&L of one position at the current price. Its
// only side effect is the loss-cycle counter: incremented while underwater,
// reset once the position recovers.
func (l *Ledger) Mark(ctx context.Context, instrument string, price decimal.Decimal) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	position, exists := l.positions[instrument]
	if !exists {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrPositionNotFound, instrument)
	}

	unrealized := position.UnrealizedPnL(price)
	before := position.LossCycleCount
	if unrealized.IsNegative() {
		position.LossCycleCount++
	} else {
		position.LossCycleCount = 0
	}

	if position.LossCycleCount != before {
		if err := l.store.PersistUpdate(ctx, position); err != nil {
			return unrealized, fmt.Errorf("failed to persist loss cycle count: %w", err)
		}
	}
	return unrealized, nil
}

// TightenStop applies a trailing stop revision. The guard here is the final
// word on monotonicity: a long's stop may only rise and a short's only fall,
// whatever the caller computed.
func (l *Ledger) TightenStop(ctx context.Context, instrument string, newStop decimal.Decimal) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	position, exists := l.positions[instrument]
	if !exists {
		return false, fmt.Errorf("%w: %s", ErrPositionNotFound, instrument)
	}

	switch position.Direction {
	case model.DirectionLong:
		if !newStop.GreaterThan(position.StopLoss) {
			return false, nil
		}
	case model.DirectionShort:
		if !newStop.LessThan(position.StopLoss) {
			return false, nil
		}
	}

	position.StopLoss = newStop
	position.TrailingActive = true
	if err := l.store.PersistUpdate(ctx, position); err != nil {
		return false, fmt.Errorf("failed to persist stop revision: %w", err)
	}

	events.TrailingStopUpdated(position, newStop)
	return true, nil
}

// Snapshot is a consistent copy of the account and open positions for
// admission checks, context building and the status server.
type Snapshot struct {
	CashBalance      decimal.Decimal  `json:"cash_balance"`
	InitialBalance   decimal.Decimal  `json:"initial_balance"`
	RealizedPnLTotal decimal.Decimal  `json:"realized_pnl_total"`
	ReservedMargin   decimal.Decimal  `json:"reserved_margin"`
	Positions        []model.Position `json:"positions"`
}

// OpenCount returns the number of open positions in the snapshot.
func (s Snapshot) OpenCount() int {
	return len(s.Positions)
}

// DirectionCount returns the number of open positions on the given side.
func (s Snapshot) DirectionCount(direction model.Direction) int {
	n := 0
	for i := range s.Positions {
		if s.Positions[i].Direction == direction {
			n++
		}
	}
	return n
}

// Has reports whether an open position exists for the instrument.
func (s Snapshot) Has(instrument string) bool {
	for i := range s.Positions {
		if s.Positions[i].Instrument == instrument {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the current state; the internal map never leaks.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := make([]model.Position, 0, len(l.positions))
	for _, p := range l.positions {
		positions = append(positions, *p)
	}
	return Snapshot{
		CashBalance:      l.cashBalance,
		InitialBalance:   l.initialBalance,
		RealizedPnLTotal: l.realizedTotal,
		ReservedMargin:   l.reserved,
		Positions:        positions,
	}
}

// Position returns a copy of one open position.
func (l *Ledger) Position(instrument string) (model.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[instrument]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// TotalEquity computes cash + booked margin + unrealized P&L at the given
// prices. Instruments missing a price contribute margin but no unrealized P&L.
func (l *Ledger) TotalEquity(prices map[string]decimal.Decimal) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	equity := l.cashBalance
	for _, p := range l.positions {
		equity = equity.Add(p.MarginUsed)
		if price, ok := prices[p.Instrument]; ok {
			equity = equity.Add(p.UnrealizedPnL(price))
		}
	}
	return equity
}

func (l *Ledger) accountStateLocked() *model.AccountState {
	return &model.AccountState{
		ID:               l.accountID,
		CashBalance:      l.cashBalance,
		InitialBalance:   l.initialBalance,
		RealizedPnLTotal: l.realizedTotal,
	}
}
