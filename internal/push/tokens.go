package push

import (
	"context"
	"log/slog"

	"github.com/albapepper/hifz-notify/internal/metrics"
)

// TokenStore persists token deactivation. DeactivateToken must be an
// idempotent single-row write.
type TokenStore interface {
	DeactivateToken(ctx context.Context, token string) error
}

// TokenManager deactivates tokens the gateway reports as
// DeviceNotRegistered. It never reactivates a token.
type TokenManager struct {
	store   TokenStore
	metrics *metrics.PushMetrics
	logger  *slog.Logger
}

// NewTokenManager creates a TokenManager. m may be nil.
func NewTokenManager(store TokenStore, m *metrics.PushMetrics, logger *slog.Logger) *TokenManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenManager{store: store, metrics: m, logger: logger}
}

// DeactivateInvalid zips tokens with tickets by index and deactivates every
// token whose ticket is a DeviceNotRegistered error. Other errors are
// transient and ignored. It returns the number of tokens deactivated.
func (m *TokenManager) DeactivateInvalid(ctx context.Context, tokens []string, tickets []Ticket) int {
	var invalid []string
	for i, t := range tickets {
		if i >= len(tokens) {
			break
		}
		if t.DeviceNotRegistered() {
			invalid = append(invalid, tokens[i])
		}
	}
	n := m.deactivate(ctx, invalid, metrics.SourceTicket)
	m.metrics.AddDeactivated(metrics.SourceTicket, n)
	return n
}

// DeactivateFromReceipts deactivates the tokens behind receipts that report
// DeviceNotRegistered. ticketTokens maps ticket id to token.
func (m *TokenManager) DeactivateFromReceipts(ctx context.Context, receipts map[string]Receipt, ticketTokens map[string]string) int {
	var invalid []string
	for id, r := range receipts {
		if !r.DeviceNotRegistered() {
			continue
		}
		token, ok := ticketTokens[id]
		if !ok {
			m.logger.Warn("receipt for unknown ticket", "ticket_id", id)
			continue
		}
		invalid = append(invalid, token)
	}
	n := m.deactivate(ctx, invalid, metrics.SourceReceipt)
	m.metrics.AddDeactivated(metrics.SourceReceipt, n)
	return n
}

func (m *TokenManager) deactivate(ctx context.Context, tokens []string, source string) int {
	seen := make(map[string]struct{}, len(tokens))
	n := 0
	for _, token := range tokens {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}

		if err := m.store.DeactivateToken(ctx, token); err != nil {
			m.logger.Warn("deactivate token failed", "source", source, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		m.logger.Info("deactivated push tokens", "source", source, "count", n)
	}
	return n
}

// TicketTokens maps the id of every accepted ticket to the token it was
// sent to, for the receipt pass.
func TicketTokens(tokens []string, tickets []Ticket) map[string]string {
	out := make(map[string]string)
	for i, t := range tickets {
		if i >= len(tokens) {
			break
		}
		if t.OK() && t.ID != "" {
			out[t.ID] = tokens[i]
		}
	}
	return out
}
