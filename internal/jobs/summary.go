package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/albapepper/hifz-notify/internal/notifications"
	"github.com/albapepper/hifz-notify/internal/push"
)

// TeacherSummaryResult is the driver's response body. AlertsSent counts
// summary pushes that carried the needs-attention clause.
type TeacherSummaryResult struct {
	Success          bool `json:"success"`
	SchoolsProcessed int  `json:"schools_processed"`
	SummariesSent    int  `json:"summaries_sent"`
	AlertsSent       int  `json:"alerts_sent"`
}

// TeacherSummary sends each teacher a morning count of their students and
// of those with too much incomplete homework. It fires per school inside
// the 07:00 local window.
type TeacherSummary struct {
	deps   Deps
	window notifications.Window
}

// NewTeacherSummary creates the driver.
func NewTeacherSummary(deps Deps) *TeacherSummary {
	deps.defaults()
	return &TeacherSummary{deps: deps, window: notifications.TeacherSummaryWindow}
}

// Name implements the scheduler job contract.
func (j *TeacherSummary) Name() string { return NameTeacherSummaries }

// Run makes one pass over all active schools.
func (j *TeacherSummary) Run(ctx context.Context) (TeacherSummaryResult, error) {
	d := &j.deps
	now := d.Now()

	schools, err := d.Store.ActiveSchools(ctx)
	if err != nil {
		return TeacherSummaryResult{}, fmt.Errorf("list schools: %w", err)
	}

	var (
		res  TeacherSummaryResult
		msgs []push.Message
	)
	for _, school := range schools {
		if !j.window.Contains(school.Timezone, now) {
			continue
		}
		batch, ok := j.school(ctx, school, now, &res)
		if !ok {
			continue
		}
		res.SchoolsProcessed++
		msgs = append(msgs, batch...)
	}

	if len(msgs) > 0 {
		d.Push.Deliver(ctx, msgs)
	}
	res.Success = true

	d.Logger.Info("teacher summaries done",
		"schools_processed", res.SchoolsProcessed,
		"summaries_sent", res.SummariesSent, "alerts_sent", res.AlertsSent)
	return res, nil
}

// school builds the summaries for one school, reporting false when the
// teacher lookup failed or the school was already summarized today.
func (j *TeacherSummary) school(ctx context.Context, school notifications.School, now time.Time, res *TeacherSummaryResult) ([]push.Message, bool) {
	d := &j.deps

	teachers, err := d.Store.Teachers(ctx, school.ID)
	if err != nil {
		d.Logger.Warn("teacher lookup failed", "school_id", school.ID, "error", err)
		return nil, false
	}
	if !claimSchool(ctx, d, NameTeacherSummaries, school, now) {
		d.Logger.Info("school already summarized today", "school_id", school.ID)
		return nil, false
	}
	if len(teachers) == 0 {
		return nil, true
	}

	attention := make(map[string]struct{})
	flagged, err := d.Store.StudentsNeedingAttention(ctx, school.ID, notifications.AttentionThreshold)
	if err != nil {
		d.Logger.Warn("attention lookup failed", "school_id", school.ID, "error", err)
	}
	for _, id := range flagged {
		attention[id] = struct{}{}
	}

	var msgs []push.Message
	for _, teacher := range teachers {
		students, err := d.Store.TeacherStudents(ctx, teacher.ID)
		if err != nil {
			d.Logger.Warn("roster lookup failed", "teacher_id", teacher.ID, "error", err)
			continue
		}
		if len(students) == 0 {
			continue
		}
		needAttention := 0
		for _, id := range students {
			if _, ok := attention[id]; ok {
				needAttention++
			}
		}

		prefs, err := d.Store.Preferences(ctx, teacher.ID)
		if err != nil {
			d.Logger.Warn("preferences lookup failed", "user_id", teacher.ID, "error", err)
			continue
		}
		if !notifications.ShouldSend(prefs, notifications.CategoryDailySummary, now, school.Timezone) {
			continue
		}
		includeAttention := notifications.ShouldSend(prefs, notifications.CategoryStudentAlert, now, school.Timezone)

		tokens, err := d.Store.ActiveTokens(ctx, teacher.ID)
		if err != nil {
			d.Logger.Warn("token lookup failed", "user_id", teacher.ID, "error", err)
			continue
		}
		if len(tokens) == 0 {
			continue
		}

		c := d.Builder.TeacherSummary(teacher.Language, len(students), needAttention, includeAttention)
		msgs = append(msgs, tokenMessages(tokens, c)...)
		res.SummariesSent += len(tokens)
		if includeAttention && needAttention > 0 {
			res.AlertsSent += len(tokens)
		}
	}
	return msgs, true
}
