// Package push talks to the Expo-style push gateway: it batches messages,
// reads delivery tickets and receipts, and deactivates device tokens the
// gateway reports as permanently unregistered.
package push

import "github.com/albapepper/hifz-notify/internal/notifications"

// DefaultBaseURL is the push gateway root. It is fixed; only the access
// token is configurable.
const DefaultBaseURL = "https://exp.host/--/api/v2/push"

// Gateway limits.
const (
	MaxMessagesPerRequest   = 100
	MaxReceiptIDsPerRequest = 1000
)

// Ticket and receipt statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Error codes carried in details.error.
const (
	// ErrorDeviceNotRegistered is the only permanent failure; it deactivates
	// the token.
	ErrorDeviceNotRegistered = "DeviceNotRegistered"
	// ErrorGatewayUnavailable marks tickets synthesized for a chunk whose
	// request failed.
	ErrorGatewayUnavailable = "GatewayUnavailable"
)

// Message is one push addressed to one device token.
type Message struct {
	To        string            `json:"to"`
	Title     string            `json:"title,omitempty"`
	Body      string            `json:"body,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Sound     string            `json:"sound,omitempty"`
	Priority  string            `json:"priority,omitempty"`
	ChannelID string            `json:"channelId,omitempty"`
}

// NewMessage addresses rendered content to token.
func NewMessage(token string, c notifications.Content) Message {
	return Message{
		To:        token,
		Title:     c.Title,
		Body:      c.Body,
		Data:      c.Data,
		Sound:     "default",
		Priority:  "high",
		ChannelID: "default",
	}
}

// ErrorDetails is the gateway's machine-readable error.
type ErrorDetails struct {
	Error string `json:"error,omitempty"`
}

// Ticket is the send-time result for one message.
type Ticket struct {
	Status  string        `json:"status"`
	ID      string        `json:"id,omitempty"`
	Message string        `json:"message,omitempty"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// OK reports whether the gateway accepted the message.
func (t Ticket) OK() bool { return t.Status == StatusOK }

// DeviceNotRegistered reports a permanent token failure.
func (t Ticket) DeviceNotRegistered() bool {
	return t.Status == StatusError && t.Details != nil && t.Details.Error == ErrorDeviceNotRegistered
}

// Receipt is the delayed delivery result for one ticket id.
type Receipt struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// DeviceNotRegistered reports a permanent token failure.
func (r Receipt) DeviceNotRegistered() bool {
	return r.Status == StatusError && r.Details != nil && r.Details.Error == ErrorDeviceNotRegistered
}

func unavailableTicket(msg string) Ticket {
	return Ticket{
		Status:  StatusError,
		Message: msg,
		Details: &ErrorDetails{Error: ErrorGatewayUnavailable},
	}
}
