package push

import (
	"context"
	"log/slog"

	"github.com/albapepper/hifz-notify/internal/metrics"
)

// Sender is the batched gateway send. Implementations return one ticket per
// message in input order.
type Sender interface {
	Send(ctx context.Context, msgs []Message) ([]Ticket, error)
}

// Delivery summarizes one dispatch.
type Delivery struct {
	Tickets     []Ticket
	Accepted    int
	Failed      int
	Deactivated int
}

// Dispatcher sends a batch, deactivates tokens from the immediate tickets
// and schedules the delayed receipt pass.
type Dispatcher struct {
	sender   Sender
	tokens   *TokenManager
	receipts *ReceiptChecker
	metrics  *metrics.PushMetrics
	logger   *slog.Logger
}

// NewDispatcher wires a Dispatcher. receipts and m may be nil.
func NewDispatcher(sender Sender, tokens *TokenManager, receipts *ReceiptChecker, m *metrics.PushMetrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: sender, tokens: tokens, receipts: receipts, metrics: m, logger: logger}
}

// Deliver sends msgs and reconciles tokens. Gateway errors are logged, not
// returned: the affected messages carry error tickets.
func (d *Dispatcher) Deliver(ctx context.Context, msgs []Message) Delivery {
	if len(msgs) == 0 {
		return Delivery{}
	}

	tickets, err := d.sender.Send(ctx, msgs)
	if err != nil {
		d.logger.Warn("push send incomplete", "messages", len(msgs), "error", err)
	}

	out := Delivery{Tickets: tickets}
	for _, t := range tickets {
		if t.OK() {
			out.Accepted++
		} else {
			out.Failed++
		}
	}
	d.metrics.AddTickets(StatusOK, out.Accepted)
	d.metrics.AddTickets(StatusError, out.Failed)

	tokens := make([]string, len(msgs))
	for i, m := range msgs {
		tokens[i] = m.To
	}
	if d.tokens != nil {
		out.Deactivated = d.tokens.DeactivateInvalid(ctx, tokens, tickets)
	}
	if d.receipts != nil {
		d.receipts.Schedule(ctx, TicketTokens(tokens, tickets))
	}

	d.logger.Info("push dispatched",
		"messages", len(msgs), "accepted", out.Accepted,
		"failed", out.Failed, "deactivated", out.Deactivated)
	return out
}

// Wait drains pending receipt checks.
func (d *Dispatcher) Wait(ctx context.Context) error {
	if d.receipts == nil {
		return nil
	}
	return d.receipts.Wait(ctx)
}
