package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/albapepper/hifz-notify/internal/notifications"
	"github.com/albapepper/hifz-notify/internal/push"
	"github.com/albapepper/hifz-notify/internal/store"
)

// ErrUnknownTable is returned for a payload from a table with no category.
var ErrUnknownTable = errors.New("unknown table")

// EventPayload is a database-change webhook body. The LISTEN trigger sends
// the same shape.
type EventPayload struct {
	Type      string               `json:"type"`
	Table     string               `json:"table"`
	Schema    string               `json:"schema,omitempty"`
	Record    notifications.Record `json:"record"`
	OldRecord notifications.Record `json:"old_record,omitempty"`
}

// EventResult is the driver's response body.
type EventResult struct {
	Success bool `json:"success"`
	Sent    int  `json:"sent"`
	Skipped int  `json:"skipped"`
	Errors  int  `json:"errors"`
}

// EventNotifier fans one inserted row out to the student and parent.
type EventNotifier struct {
	deps Deps
}

// NewEventNotifier creates the driver.
func NewEventNotifier(deps Deps) *EventNotifier {
	deps.defaults()
	return &EventNotifier{deps: deps}
}

// Name identifies the driver in logs.
func (j *EventNotifier) Name() string { return NameEventNotification }

// Handle processes one payload. Non-INSERT payloads are acknowledged with
// zero counts. An unmapped table returns ErrUnknownTable. Per-recipient
// failures are counted in Errors, never returned.
func (j *EventNotifier) Handle(ctx context.Context, p EventPayload) (EventResult, error) {
	d := &j.deps

	if !strings.EqualFold(p.Type, "INSERT") {
		return EventResult{Success: true}, nil
	}
	category, ok := notifications.CategoryForTable(p.Table)
	if !ok {
		return EventResult{}, fmt.Errorf("%w: %q", ErrUnknownTable, p.Table)
	}
	log := d.Logger.With("table", p.Table, "category", category)

	res := EventResult{Success: true}
	studentID := p.Record.StudentID()
	if studentID == "" {
		log.Warn("event without student_id")
		res.Skipped++
		return res, nil
	}

	st, err := d.Store.Student(ctx, studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("event for unknown student", "student_id", studentID)
			res.Skipped++
		} else {
			log.Warn("student lookup failed", "student_id", studentID, "error", err)
			res.Errors++
		}
		return res, nil
	}

	now := d.Now()
	var msgs []push.Message
	for _, r := range notifications.ResolveRecipients(category, st) {
		dup, err := d.Guard.IsDuplicate(ctx, r.UserID, category, now)
		if err != nil {
			log.Warn("dedup check failed", "user_id", r.UserID, "error", err)
		}
		if dup {
			res.Skipped++
			continue
		}

		prefs, err := d.Store.Preferences(ctx, r.UserID)
		if err != nil {
			log.Warn("preferences lookup failed", "user_id", r.UserID, "error", err)
			res.Errors++
			continue
		}
		if !notifications.ShouldSend(prefs, category, now, st.Timezone) {
			res.Skipped++
			continue
		}

		tokens, err := d.Store.ActiveTokens(ctx, r.UserID)
		if err != nil {
			log.Warn("token lookup failed", "user_id", r.UserID, "error", err)
			res.Errors++
			continue
		}
		if len(tokens) == 0 {
			res.Skipped++
			continue
		}

		c := d.Builder.Build(ctx, notifications.EventInput{
			Category: category,
			Record:   p.Record,
			Language: r.Language,
			IsParent: r.IsParent,
		})
		if c == nil {
			res.Skipped++
			continue
		}
		msgs = append(msgs, tokenMessages(tokens, *c)...)
	}

	if len(msgs) > 0 {
		d.Push.Deliver(ctx, msgs)
	}
	res.Sent = len(msgs)

	log.Info("event notifications done", "student_id", studentID,
		"sent", res.Sent, "skipped", res.Skipped, "errors", res.Errors)
	return res, nil
}
