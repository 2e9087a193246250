package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/albapepper/hifz-notify/internal/notifications"
	"github.com/albapepper/hifz-notify/internal/push"
)

// HomeworkReminderResult is the driver's response body.
type HomeworkReminderResult struct {
	Success          bool `json:"success"`
	SchoolsProcessed int  `json:"schools_processed"`
	RemindersSent    int  `json:"reminders_sent"`
}

// HomeworkReminder reminds students, and their parents, of incomplete
// homework due tomorrow. It fires per school inside the 18:00 local window.
type HomeworkReminder struct {
	deps   Deps
	window notifications.Window
}

// NewHomeworkReminder creates the driver.
func NewHomeworkReminder(deps Deps) *HomeworkReminder {
	deps.defaults()
	return &HomeworkReminder{deps: deps, window: notifications.HomeworkReminderWindow}
}

// Name implements the scheduler job contract.
func (j *HomeworkReminder) Name() string { return NameHomeworkReminders }

// Run makes one pass over all active schools. Only failing to list schools
// is returned as an error.
func (j *HomeworkReminder) Run(ctx context.Context) (HomeworkReminderResult, error) {
	d := &j.deps
	now := d.Now()

	schools, err := d.Store.ActiveSchools(ctx)
	if err != nil {
		return HomeworkReminderResult{}, fmt.Errorf("list schools: %w", err)
	}

	var (
		res  HomeworkReminderResult
		msgs []push.Message
	)
	for _, school := range schools {
		if !j.window.Contains(school.Timezone, now) {
			continue
		}
		batch, ok := j.school(ctx, school, now)
		if !ok {
			continue
		}
		res.SchoolsProcessed++
		msgs = append(msgs, batch...)
	}

	if len(msgs) > 0 {
		d.Push.Deliver(ctx, msgs)
	}
	res.RemindersSent = len(msgs)
	res.Success = true

	d.Logger.Info("homework reminders done",
		"schools_processed", res.SchoolsProcessed, "reminders_sent", res.RemindersSent)
	return res, nil
}

// school builds the reminders for one school. It reports false when the
// school was skipped: the homework lookup failed, or another run already
// claimed it today. A failed lookup leaves the school unclaimed so the next
// tick inside the window retries it.
func (j *HomeworkReminder) school(ctx context.Context, school notifications.School, now time.Time) ([]push.Message, bool) {
	d := &j.deps
	due := notifications.TomorrowLocalDate(school.Timezone, now)

	items, err := d.Store.HomeworkDue(ctx, school.ID, due)
	if err != nil {
		d.Logger.Warn("homework lookup failed", "school_id", school.ID, "due", due, "error", err)
		return nil, false
	}
	if !claimSchool(ctx, d, NameHomeworkReminders, school, now) {
		d.Logger.Info("school already reminded today", "school_id", school.ID)
		return nil, false
	}

	// Group descriptions by student, keeping first-seen order.
	var order []string
	byStudent := make(map[string][]string)
	for _, h := range items {
		if _, seen := byStudent[h.StudentID]; !seen {
			order = append(order, h.StudentID)
		}
		byStudent[h.StudentID] = append(byStudent[h.StudentID], h.Description)
	}

	var msgs []push.Message
	for _, studentID := range order {
		st, err := d.Store.Student(ctx, studentID)
		if err != nil {
			d.Logger.Warn("student lookup failed", "student_id", studentID, "error", err)
			continue
		}
		descriptions := byStudent[studentID]

		if st.ProfileID != "" {
			c := d.Builder.HomeworkReminder(st.Language, st.ID, descriptions, "")
			msgs = append(msgs, j.recipient(ctx, st.ProfileID, school, now, c)...)
		}
		if st.Parent != nil && st.Parent.ID != "" {
			lang := st.Parent.Language
			c := d.Builder.HomeworkReminder(lang, st.ID, descriptions, notifications.ChildName(st.Name, lang))
			msgs = append(msgs, j.recipient(ctx, st.Parent.ID, school, now, c)...)
		}
	}
	return msgs, true
}

// recipient gates one user on preferences and addresses c to their tokens.
func (j *HomeworkReminder) recipient(ctx context.Context, userID string, school notifications.School, now time.Time, c notifications.Content) []push.Message {
	d := &j.deps

	prefs, err := d.Store.Preferences(ctx, userID)
	if err != nil {
		d.Logger.Warn("preferences lookup failed", "user_id", userID, "error", err)
		return nil
	}
	if !notifications.ShouldSend(prefs, notifications.CategoryHomeworkReminder, now, school.Timezone) {
		return nil
	}

	tokens, err := d.Store.ActiveTokens(ctx, userID)
	if err != nil {
		d.Logger.Warn("token lookup failed", "user_id", userID, "error", err)
		return nil
	}
	return tokenMessages(tokens, c)
}
