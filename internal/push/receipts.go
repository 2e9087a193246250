package push

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultReceiptDelay is how long the background check waits after a send.
// Receipts usually settle minutes later; this is a short best-effort pass.
const DefaultReceiptDelay = 5 * time.Second

// ReceiptFetcher is the gateway call the checker needs.
type ReceiptFetcher interface {
	CheckReceipts(ctx context.Context, ids []string) (map[string]Receipt, error)
}

// ReceiptChecker runs delayed receipt checks in the background and feeds
// DeviceNotRegistered receipts to the TokenManager.
type ReceiptChecker struct {
	fetcher ReceiptFetcher
	tokens  *TokenManager
	delay   time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewReceiptChecker creates a checker. A negative delay uses
// DefaultReceiptDelay; zero checks immediately.
func NewReceiptChecker(fetcher ReceiptFetcher, tokens *TokenManager, delay time.Duration, logger *slog.Logger) *ReceiptChecker {
	if logger == nil {
		logger = slog.Default()
	}
	if delay < 0 {
		delay = DefaultReceiptDelay
	}
	return &ReceiptChecker{fetcher: fetcher, tokens: tokens, delay: delay, logger: logger}
}

// Schedule starts a background check for ticketTokens after the configured
// delay. It returns immediately. The check is detached from ctx
// cancellation so it outlives the request that triggered it; use Wait to
// drain pending checks on shutdown.
func (r *ReceiptChecker) Schedule(ctx context.Context, ticketTokens map[string]string) {
	if len(ticketTokens) == 0 {
		return
	}
	bg := context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if r.delay > 0 {
			timer := time.NewTimer(r.delay)
			<-timer.C
		}
		n, err := r.Check(bg, ticketTokens)
		if err != nil {
			r.logger.Warn("receipt check failed", "tickets", len(ticketTokens), "error", err)
			return
		}
		r.logger.Debug("receipt check done", "tickets", len(ticketTokens), "deactivated", n)
	}()
}

// Check fetches receipts for ticketTokens now and deactivates invalid
// tokens. Receipts that did arrive are processed even when some chunks
// failed; the error is still returned.
func (r *ReceiptChecker) Check(ctx context.Context, ticketTokens map[string]string) (int, error) {
	if len(ticketTokens) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(ticketTokens))
	for id := range ticketTokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	receipts, err := r.fetcher.CheckReceipts(ctx, ids)
	n := r.tokens.DeactivateFromReceipts(ctx, receipts, ticketTokens)
	if err != nil {
		return n, fmt.Errorf("check receipts: %w", err)
	}
	return n, nil
}

// Wait blocks until every scheduled check has finished or ctx is done.
func (r *ReceiptChecker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
