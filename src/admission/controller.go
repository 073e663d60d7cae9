package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"riskpilot/src/connectors"
	"riskpilot/src/cooldown"
	"riskpilot/src/events"
	"riskpilot/src/ledger"
	"riskpilot/src/risk"
)

// Controller drives an admitted proposal through reservation, execution and
// ledger booking. The execution call runs without any ledger lock held; margin
// for the in-flight order is protected by a pessimistic reservation that is
// rolled back if the order does not fill.
type Controller struct {
	ledger    *ledger.Ledger
	cooldowns *cooldown.Machine
	limits    risk.Limits
	adapter   connectors.ExecutionAdapter
	timeout   time.Duration

	mu      sync.Mutex
	pending map[string]connectors.EntryOrder // timed-out submissions awaiting reconciliation
}

func NewController(
	l *ledger.Ledger,
	cooldowns *cooldown.Machine,
	limits risk.Limits,
	adapter connectors.ExecutionAdapter,
	timeout time.Duration,
) *Controller {
	return &Controller{
		ledger:    l,
		cooldowns: cooldowns,
		limits:    limits,
		adapter:   adapter,
		timeout:   timeout,
		pending:   make(map[string]connectors.EntryOrder),
	}
}

// Admit validates the proposal against fresh snapshots and, if admitted,
// executes and books it. The returned Verdict is meaningful in every case;
// err is non-nil only for execution or persistence failures.
func (c *Controller) Admit(ctx context.Context, proposal Proposal) (Verdict, error) {
	verdict := Check(
		proposal,
		c.ledger.Snapshot(),
		c.cooldowns.DirectionSnapshot(proposal.Direction),
		c.cooldowns.InstrumentSnapshot(proposal.Instrument),
		c.limits,
	)
	events.AdmissionDecided(proposal.Instrument, proposal.Direction, verdict.Admitted, string(verdict.Reason))
	if !verdict.Admitted {
		return verdict, nil
	}

	margin := proposal.Margin()
	if err := c.ledger.Reserve(margin); err != nil {
		// Lost a race against another admission since the snapshot was taken.
		verdict = Verdict{Reason: ReasonInsufficientCapacity}
		events.AdmissionDecided(proposal.Instrument, proposal.Direction, false, string(verdict.Reason))
		return verdict, nil
	}

	order := connectors.EntryOrder{
		IdempotencyKey: uuid.NewString(),
		Instrument:     proposal.Instrument,
		Direction:      proposal.Direction,
		NotionalUSD:    proposal.NotionalUSD,
		Leverage:       proposal.Leverage,
	}

	execCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fill, err := c.adapter.SubmitEntry(execCtx, order)
	if err != nil {
		c.ledger.Release(margin)
		if errors.Is(err, connectors.ErrExecutionTimeout) {
			// Outcome unknown: the exchange may still have filled it. Park
			// the order for reconciliation instead of forgetting it.
			c.enqueueReconcile(order)
			return verdict, fmt.Errorf("entry submission timed out, queued for reconciliation: %w", err)
		}
		return verdict, fmt.Errorf("entry execution failed: %w", err)
	}

	_, err = c.ledger.Open(ctx, ledger.OpenParams{
		Instrument:     proposal.Instrument,
		Direction:      proposal.Direction,
		EntryPrice:     fill.Price,
		Notional:       proposal.NotionalUSD,
		Leverage:       proposal.Leverage,
		StopLoss:       proposal.StopLoss,
		ProfitTarget:   proposal.ProfitTarget,
		Confidence:     proposal.Confidence,
		EntryFee:       fill.Fee,
		IdempotencyKey: order.IdempotencyKey,
		EntryTime:      fill.Timestamp,
	})
	if err != nil {
		c.ledger.Release(margin)
		return verdict, fmt.Errorf("failed to book admitted entry: %w", err)
	}
	return verdict, nil
}

func (c *Controller) enqueueReconcile(order connectors.EntryOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[order.IdempotencyKey] = order

	logger.WithFields(map[string]interface{}{
		"instrument":      order.Instrument,
		"idempotency_key": order.IdempotencyKey,
	}).Warn("Entry outcome unknown, queued for reconciliation")
}

// Reconcile asks the adapter about every timed-out submission. A fill found
// on the exchange is booked into the ledger exactly once, the idempotency key
// guarding against double-booking; a confirmed miss is dropped.
func (c *Controller) Reconcile(ctx context.Context) {
	c.mu.Lock()
	orders := make([]connectors.EntryOrder, 0, len(c.pending))
	for _, o := range c.pending {
		orders = append(orders, o)
	}
	c.mu.Unlock()

	for _, order := range orders {
		fill, found, err := c.adapter.LookupEntry(ctx, order.IdempotencyKey)
		if err != nil {
			logger.WithError(err).WithField("idempotency_key", order.IdempotencyKey).
				Warn("Reconciliation lookup failed, will retry next cycle")
			continue
		}

		if found {
			_, err := c.ledger.Open(ctx, ledger.OpenParams{
				Instrument:     order.Instrument,
				Direction:      order.Direction,
				EntryPrice:     fill.Price,
				Notional:       order.NotionalUSD,
				Leverage:       order.Leverage,
				EntryFee:       fill.Fee,
				IdempotencyKey: order.IdempotencyKey,
				EntryTime:      fill.Timestamp,
			})
			if err != nil && !errors.Is(err, ledger.ErrDuplicatePosition) {
				logger.WithError(err).WithField("idempotency_key", order.IdempotencyKey).
					Error("Failed to book reconciled fill")
				continue
			}
			logger.WithFields(map[string]interface{}{
				"instrument":      order.Instrument,
				"idempotency_key": order.IdempotencyKey,
			}).Info("Reconciled timed-out entry as filled")
		}

		c.mu.Lock()
		delete(c.pending, order.IdempotencyKey)
		c.mu.Unlock()
	}
}

// PendingReconciliations reports how many submissions are awaiting an answer.
func (c *Controller) PendingReconciliations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
