// Package jobs contains the three notification drivers: the evening
// homework reminder, the teacher morning summary and the per-insert event
// notifier. Each driver iterates sequentially, logs and skips entities whose
// lookups fail, and hands every queued message to one batched dispatch.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/albapepper/hifz-notify/internal/notifications"
	"github.com/albapepper/hifz-notify/internal/push"
)

// Job names, used for logs, metrics and run markers.
const (
	NameHomeworkReminders = "homework-reminders"
	NameTeacherSummaries  = "teacher-summaries"
	NameEventNotification = "event-notification"
)

// runMarkerTTL outlives one local day in every timezone.
const runMarkerTTL = 48 * time.Hour

// Store is every read and write the drivers need. *store.Store satisfies it.
type Store interface {
	ActiveSchools(ctx context.Context) ([]notifications.School, error)
	HomeworkDue(ctx context.Context, schoolID, date string) ([]notifications.Homework, error)
	Student(ctx context.Context, studentID string) (*notifications.Student, error)
	Preferences(ctx context.Context, userID string) (*notifications.Preferences, error)
	ActiveTokens(ctx context.Context, userID string) ([]string, error)
	Teachers(ctx context.Context, schoolID string) ([]notifications.Profile, error)
	TeacherStudents(ctx context.Context, teacherID string) ([]string, error)
	StudentsNeedingAttention(ctx context.Context, schoolID string, minIncomplete int) ([]string, error)
}

// Deliverer sends a batch and reconciles tokens. *push.Dispatcher
// satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, msgs []push.Message) push.Delivery
}

// Deps are shared by all drivers.
type Deps struct {
	Store   Store
	Builder *notifications.Builder
	Push    Deliverer

	// Marker, when set, claims a once-per-local-day run marker per school
	// for the periodic drivers.
	Marker notifications.KeyStore
	// Guard suppresses repeat event sends. Defaults to an in-memory guard.
	Guard notifications.Guard

	Now    func() time.Time
	Logger *slog.Logger
}

func (d *Deps) defaults() {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Builder == nil {
		d.Builder = notifications.NewBuilder(nil)
	}
	if d.Guard == nil {
		d.Guard = notifications.NewMemoryGuard(notifications.DefaultDedupWindow)
	}
}

// claimSchool reports whether this run owns schoolID for today. Without a
// marker every call wins. A marker error is logged and treated as a win so
// a Redis outage does not silence reminders.
func claimSchool(ctx context.Context, d *Deps, job string, school notifications.School, now time.Time) bool {
	if d.Marker == nil {
		return true
	}
	key := "job:" + job + ":" + school.ID + ":" + notifications.LocalDate(school.Timezone, now)
	claimed, err := d.Marker.SetNX(ctx, key, now.Unix(), runMarkerTTL)
	if err != nil {
		d.Logger.Warn("run marker unavailable", "job", job, "school_id", school.ID, "error", err)
		return true
	}
	return claimed
}

// tokenMessages addresses c to every token.
func tokenMessages(tokens []string, c notifications.Content) []push.Message {
	msgs := make([]push.Message, 0, len(tokens))
	for _, t := range tokens {
		msgs = append(msgs, push.NewMessage(t, c))
	}
	return msgs
}
