package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client is the rate-limited HTTP client for the push gateway.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates a gateway client. accessToken is optional; when set it
// is sent as a bearer token. requestsPerSecond <= 0 disables the limiter.
func NewClient(baseURL, accessToken string, requestsPerSecond float64, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURL,
		accessToken: accessToken,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

// sendResponse is the /send envelope. A request-level failure can come back
// as 200 with errors and no data.
type sendResponse struct {
	Data   []Ticket       `json:"data"`
	Errors []gatewayError `json:"errors"`
}

type receiptsResponse struct {
	Data   map[string]Receipt `json:"data"`
	Errors []gatewayError     `json:"errors"`
}

type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Send posts msgs in chunks of MaxMessagesPerRequest and returns exactly one
// ticket per message, in input order. A chunk whose request fails is padded
// with GatewayUnavailable tickets; the chunk errors are joined and returned
// alongside the full ticket slice.
func (c *Client) Send(ctx context.Context, msgs []Message) ([]Ticket, error) {
	tickets := make([]Ticket, 0, len(msgs))
	var errs []error

	for start := 0; start < len(msgs); start += MaxMessagesPerRequest {
		end := min(start+MaxMessagesPerRequest, len(msgs))
		chunk := msgs[start:end]

		got, err := c.sendChunk(ctx, chunk)
		if err != nil {
			c.logger.Warn("push chunk failed", "offset", start, "size", len(chunk), "error", err)
			errs = append(errs, fmt.Errorf("chunk %d-%d: %w", start, end, err))
			for range chunk {
				tickets = append(tickets, unavailableTicket(err.Error()))
			}
			continue
		}
		tickets = append(tickets, got...)
	}

	return tickets, errors.Join(errs...)
}

// sendChunk returns exactly len(chunk) tickets or an error. A short ticket
// array is padded and a long one truncated so alignment holds.
func (c *Client) sendChunk(ctx context.Context, chunk []Message) ([]Ticket, error) {
	var resp sendResponse
	if err := c.post(ctx, "/send", chunk, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 && len(resp.Errors) > 0 {
		return nil, fmt.Errorf("gateway error %s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
	}
	if len(resp.Data) != len(chunk) {
		c.logger.Warn("push ticket count mismatch", "want", len(chunk), "got", len(resp.Data))
	}

	tickets := make([]Ticket, len(chunk))
	for i := range tickets {
		if i < len(resp.Data) {
			tickets[i] = resp.Data[i]
		} else {
			tickets[i] = unavailableTicket("missing ticket")
		}
	}
	return tickets, nil
}

// CheckReceipts fetches receipts for ids in chunks of
// MaxReceiptIDsPerRequest. Receipts from successful chunks are returned even
// when another chunk fails.
func (c *Client) CheckReceipts(ctx context.Context, ids []string) (map[string]Receipt, error) {
	receipts := make(map[string]Receipt, len(ids))
	var errs []error

	for start := 0; start < len(ids); start += MaxReceiptIDsPerRequest {
		end := min(start+MaxReceiptIDsPerRequest, len(ids))

		var resp receiptsResponse
		payload := struct {
			IDs []string `json:"ids"`
		}{IDs: ids[start:end]}
		if err := c.post(ctx, "/getReceipts", payload, &resp); err != nil {
			c.logger.Warn("receipt chunk failed", "offset", start, "size", end-start, "error", err)
			errs = append(errs, fmt.Errorf("receipts %d-%d: %w", start, end, err))
			continue
		}
		for id, r := range resp.Data {
			receipts[id] = r
		}
	}

	return receipts, errors.Join(errs...)
}

// post performs a rate-limited JSON POST to a gateway endpoint.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway %s returned %d: %s", path, resp.StatusCode, truncate(body, 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
