// Package notifications is the domain core of the school notifier: which
// categories exist, when a school is inside its daily trigger window, whether
// a recipient accepts a category right now, what a localized push says, and
// which sends are repeats.
//
// Nothing in this package performs I/O except through the interfaces it
// declares (Lookups for content, KeyStore for the Redis dedup guard).
package notifications

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// DefaultDedupWindow suppresses repeat (recipient, category) sends.
	DefaultDedupWindow = 30 * time.Second
	// dedupSweepThreshold triggers a sweep of stale dedup entries.
	dedupSweepThreshold = 1000

	// AttentionThreshold is the number of incomplete homework items at which
	// a student is counted as needing attention in the teacher summary.
	AttentionThreshold = 3

	// maxListedHomework is how many descriptions a reminder spells out.
	maxListedHomework = 3
)

// --------------------------------------------------------------------------
// Categories
// --------------------------------------------------------------------------

// Category identifies a kind of notification. Event categories map 1:1 to a
// watched table; the remaining ones are produced by the periodic jobs.
type Category string

const (
	CategoryStickerAwarded      Category = "sticker_awarded"
	CategoryTrophyEarned        Category = "trophy_earned"
	CategoryAchievementUnlocked Category = "achievement_unlocked"
	CategoryHomeworkAssigned    Category = "homework_assigned"
	CategoryAttendanceMarked    Category = "attendance_marked"
	CategorySessionCompleted    Category = "session_completed"

	CategoryHomeworkReminder Category = "homework_reminder"
	CategoryDailySummary     Category = "daily_summary"
	CategoryStudentAlert     Category = "student_alert"
)

var tableCategories = map[string]Category{
	"student_stickers":     CategoryStickerAwarded,
	"student_trophies":     CategoryTrophyEarned,
	"student_achievements": CategoryAchievementUnlocked,
	"homework":             CategoryHomeworkAssigned,
	"attendance":           CategoryAttendanceMarked,
	"sessions":             CategorySessionCompleted,
}

// CategoryForTable maps a watched table to its event category.
func CategoryForTable(table string) (Category, bool) {
	c, ok := tableCategories[table]
	return c, ok
}

// AllCategories lists every category that may appear as a preference column.
func AllCategories() []Category {
	return []Category{
		CategoryStickerAwarded,
		CategoryTrophyEarned,
		CategoryAchievementUnlocked,
		CategoryHomeworkAssigned,
		CategoryAttendanceMarked,
		CategorySessionCompleted,
		CategoryHomeworkReminder,
		CategoryDailySummary,
		CategoryStudentAlert,
	}
}

// --------------------------------------------------------------------------
// Language
// --------------------------------------------------------------------------

// Language is a recipient's preferred content language.
type Language string

const (
	English Language = "en"
	Arabic  Language = "ar"
)

// ParseLanguage normalizes a stored language code, defaulting to English.
func ParseLanguage(s string) Language {
	if Language(s) == Arabic {
		return Arabic
	}
	return English
}

// --------------------------------------------------------------------------
// Entities
// --------------------------------------------------------------------------

// School is a tenant with its own local clock.
type School struct {
	ID       string
	Timezone string
}

// Profile is a user account that can own push tokens.
type Profile struct {
	ID       string
	FullName string
	Language Language
}

// Student is a student joined with its profile, parent and school timezone.
type Student struct {
	ID        string
	ProfileID string
	SchoolID  string
	Name      string
	Language  Language
	Timezone  string
	Parent    *Profile
}

// Homework is an incomplete homework item.
type Homework struct {
	ID          string
	StudentID   string
	Description string
	DueDate     string
}

// Preferences is a user's notification_preferences row. A category missing
// from Categories is enabled.
type Preferences struct {
	UserID            string
	Categories        map[Category]bool
	QuietHoursEnabled bool
	QuietHoursStart   string
	QuietHoursEnd     string
}

// Recipient is one user an event notification is addressed to.
type Recipient struct {
	UserID   string
	Language Language
	IsParent bool
}

// ResolveRecipients returns who should hear about an event for student:
// the student (except for attendance) followed by the parent, if any.
func ResolveRecipients(category Category, student *Student) []Recipient {
	var out []Recipient
	if category != CategoryAttendanceMarked && student.ProfileID != "" {
		out = append(out, Recipient{UserID: student.ProfileID, Language: student.Language})
	}
	if student.Parent != nil && student.Parent.ID != "" {
		out = append(out, Recipient{UserID: student.Parent.ID, Language: student.Parent.Language, IsParent: true})
	}
	return out
}

// --------------------------------------------------------------------------
// Event records
// --------------------------------------------------------------------------

// Record is one inserted row from a watched table, as decoded from JSON.
type Record map[string]any

// String returns the field as a string. Numbers are formatted without a
// trailing fraction when integral.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Float returns the field as a number, or nil when absent, null or not numeric.
func (r Record) Float(key string) *float64 {
	var f float64
	switch v := r[key].(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

// StudentID returns the student_id foreign key every watched table carries.
func (r Record) StudentID() string {
	return r.String("student_id")
}
