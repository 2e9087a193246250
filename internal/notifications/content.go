package notifications

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Content is a localized push payload.
type Content struct {
	Title    string
	Body     string
	DeepLink string
	Data     map[string]string
}

// Lookups resolves display text referenced by event rows. Implementations
// hit the store on every call.
type Lookups interface {
	StickerName(ctx context.Context, id string, lang Language) (string, error)
	TrophyName(ctx context.Context, id string, lang Language) (string, error)
	AchievementName(ctx context.Context, id string, lang Language) (string, error)
	ProfileName(ctx context.Context, profileID string) (string, error)
	StudentName(ctx context.Context, studentID string) (string, error)
}

// EventInput is everything Build needs for one (recipient, event) pair.
type EventInput struct {
	Category Category
	Record   Record
	Language Language
	IsParent bool
}

// Builder renders event, reminder and summary content.
type Builder struct {
	lookups Lookups
}

// NewBuilder creates a Builder. lookups may be nil for the reminder and
// summary templates, which need no store access.
func NewBuilder(lookups Lookups) *Builder {
	return &Builder{lookups: lookups}
}

// Build renders content for an inserted event row. It returns nil for an
// unknown category and for attendance addressed to the student, and the
// caller must skip that recipient.
func (b *Builder) Build(ctx context.Context, in EventInput) *Content {
	lang := in.Language
	rec := in.Record
	studentID := rec.StudentID()

	var child string
	if in.IsParent {
		child = b.studentName(ctx, studentID, lang)
	}

	var c *Content
	switch in.Category {
	case CategoryStickerAwarded:
		name := b.lookup(ctx, b.stickerName, rec.String("sticker_id"), lang)
		actor := b.profileName(ctx, rec.String("awarded_by"))
		c = &Content{
			Title: pick(lang, "New sticker! ⭐", "ملصق جديد! ⭐"),
			Body: subject(lang, in.IsParent, child,
				"You earned a new sticker", "%s earned a new sticker",
				"حصلت على ملصق جديد", "حصل %s على ملصق جديد") +
				suffix(": ", name) + fromActor(lang, actor),
			DeepLink: "/student/stickers",
		}
	case CategoryTrophyEarned:
		name := b.lookup(ctx, b.trophyName, rec.String("trophy_id"), lang)
		actor := b.profileName(ctx, rec.String("awarded_by"))
		c = &Content{
			Title: pick(lang, "Trophy earned! 🏆", "كأس جديد! 🏆"),
			Body: subject(lang, in.IsParent, child,
				"You earned a trophy", "%s earned a trophy",
				"حصلت على كأس", "حصل %s على كأس") +
				suffix(": ", name) + fromActor(lang, actor),
			DeepLink: "/student/trophies",
		}
	case CategoryAchievementUnlocked:
		name := b.lookup(ctx, b.achievementName, rec.String("achievement_id"), lang)
		c = &Content{
			Title: pick(lang, "Achievement unlocked! 🎖️", "إنجاز جديد! 🎖️"),
			Body: subject(lang, in.IsParent, child,
				"You unlocked an achievement", "%s unlocked an achievement",
				"لقد حققت إنجازاً", "حقق %s إنجازاً") +
				suffix(": ", name),
			DeepLink: "/student/achievements",
		}
	case CategoryHomeworkAssigned:
		desc := rec.String("description")
		if desc == "" {
			desc = rec.String("title")
		}
		body := subject(lang, in.IsParent, child,
			"You have new homework", "%s has new homework",
			"لديك واجب جديد", "لدى %s واجب جديد") + suffix(": ", desc)
		if due := rec.String("due_date"); due != "" {
			body += fmt.Sprintf(pick(lang, " (due %s)", " (موعد التسليم %s)"), due)
		}
		c = &Content{
			Title:    pick(lang, "New homework 📖", "واجب جديد 📖"),
			Body:     body,
			DeepLink: "/student/homework",
		}
	case CategoryAttendanceMarked:
		if !in.IsParent {
			return nil
		}
		status := attendanceStatus(lang, rec.String("status"))
		var body string
		date := rec.String("date")
		switch {
		case date != "" && lang == Arabic:
			body = fmt.Sprintf("حالة حضور %s بتاريخ %s: %s", child, date, status)
		case date != "":
			body = fmt.Sprintf("%s was marked %s on %s", child, status, date)
		default:
			body = fmt.Sprintf(pick(lang, "%s was marked %s today", "حالة حضور %s اليوم: %s"), child, status)
		}
		c = &Content{
			Title:    pick(lang, "Attendance update", "تحديث الحضور"),
			Body:     body,
			DeepLink: "/parent/attendance",
		}
	case CategorySessionCompleted:
		actor := b.profileName(ctx, rec.String("teacher_id"))
		body := subject(lang, in.IsParent, child,
			"You completed a memorization session", "%s completed a memorization session",
			"أكملت جلسة تحفيظ", "أكمل %s جلسة تحفيظ") + withActor(lang, actor)
		if avg, ok := SessionAverage(rec); ok {
			body += fmt.Sprintf(pick(lang, " (avg: %s/10)", " (المعدل: %s/10)"), avg)
		}
		c = &Content{
			Title:    pick(lang, "Session completed ✅", "اكتملت الجلسة ✅"),
			Body:     body,
			DeepLink: "/student/sessions",
		}
	default:
		return nil
	}

	if in.IsParent {
		c.DeepLink = "/parent/children/" + studentID
	}
	c.Data = map[string]string{
		"type":       string(in.Category),
		"screen":     c.DeepLink,
		"student_id": studentID,
	}
	return c
}

// sessionScoreFields are averaged when present.
var sessionScoreFields = []string{"memorization_score", "tajweed_score", "recitation_quality"}

// SessionAverage averages the non-null session scores and rounds to the
// nearest integer. ok is false when no score is present.
func SessionAverage(rec Record) (avg string, ok bool) {
	var sum float64
	var n int
	for _, field := range sessionScoreFields {
		if v := rec.Float(field); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return "", false
	}
	return strconv.Itoa(int(math.Round(sum / float64(n)))), true
}

// HomeworkReminder renders the due-tomorrow reminder. childName is empty
// when the student is the recipient.
func (b *Builder) HomeworkReminder(lang Language, studentID string, descriptions []string, childName string) Content {
	count := len(descriptions)
	listed := descriptions
	if count > maxListedHomework {
		listed = descriptions[:maxListedHomework]
	}
	list := strings.Join(listed, pick(lang, ", ", "، "))

	var body string
	switch {
	case childName == "" && lang == Arabic:
		body = fmt.Sprintf("لديك %d من الواجبات مستحقة غداً: %s", count, list)
	case childName == "":
		body = fmt.Sprintf("You have %d %s due tomorrow: %s", count, plural(count, "homework item", "homework items"), list)
	case lang == Arabic:
		body = fmt.Sprintf("لدى %s %d من الواجبات مستحقة غداً: %s", childName, count, list)
	default:
		body = fmt.Sprintf("%s has %d %s due tomorrow: %s", childName, count, plural(count, "homework item", "homework items"), list)
	}
	if more := count - maxListedHomework; more > 0 {
		body += fmt.Sprintf(pick(lang, " and %d more", " و%d أخرى"), more)
	}

	link := "/student/homework"
	if childName != "" {
		link = "/parent/children/" + studentID
	}
	return Content{
		Title:    pick(lang, "Homework reminder 📚", "تذكير بالواجبات 📚"),
		Body:     body,
		DeepLink: link,
		Data: map[string]string{
			"type":       string(CategoryHomeworkReminder),
			"screen":     link,
			"student_id": studentID,
		},
	}
}

// TeacherSummary renders the morning summary. The attention clause is only
// added when includeAttention is set and needAttention is positive.
func (b *Builder) TeacherSummary(lang Language, students, needAttention int, includeAttention bool) Content {
	attention := includeAttention && needAttention > 0

	var body string
	if lang == Arabic {
		body = fmt.Sprintf("صباح الخير! لديك %d طالباً اليوم.", students)
		if attention {
			body += fmt.Sprintf(" %d بحاجة إلى متابعة.", needAttention)
		}
	} else {
		body = fmt.Sprintf("Good morning! You have %d %s today.", students, plural(students, "student", "students"))
		if attention {
			body += fmt.Sprintf(" %d %s attention.", needAttention, plural(needAttention, "needs", "need"))
		}
	}
	return Content{
		Title:    pick(lang, "Daily summary ☀️", "الملخص اليومي ☀️"),
		Body:     body,
		DeepLink: "/teacher/dashboard",
		Data: map[string]string{
			"type":   string(CategoryDailySummary),
			"screen": "/teacher/dashboard",
		},
	}
}

// --------------------------------------------------------------------------
// Lookup helpers
// --------------------------------------------------------------------------

func (b *Builder) stickerName(ctx context.Context, id string, lang Language) (string, error) {
	return b.lookups.StickerName(ctx, id, lang)
}

func (b *Builder) trophyName(ctx context.Context, id string, lang Language) (string, error) {
	return b.lookups.TrophyName(ctx, id, lang)
}

func (b *Builder) achievementName(ctx context.Context, id string, lang Language) (string, error) {
	return b.lookups.AchievementName(ctx, id, lang)
}

// lookup returns "" when there is no id, no store or the lookup fails; the
// templates then drop the name.
func (b *Builder) lookup(ctx context.Context, fn func(context.Context, string, Language) (string, error), id string, lang Language) string {
	if id == "" || b.lookups == nil {
		return ""
	}
	name, err := fn(ctx, id, lang)
	if err != nil {
		return ""
	}
	return name
}

func (b *Builder) profileName(ctx context.Context, id string) string {
	if id == "" || b.lookups == nil {
		return ""
	}
	name, err := b.lookups.ProfileName(ctx, id)
	if err != nil {
		return ""
	}
	return name
}

func (b *Builder) studentName(ctx context.Context, studentID string, lang Language) string {
	if studentID == "" || b.lookups == nil {
		return ChildName("", lang)
	}
	name, err := b.lookups.StudentName(ctx, studentID)
	if err != nil {
		return ChildName("", lang)
	}
	return ChildName(name, lang)
}

// ChildName is how parent-facing text refers to a student: by name, or a
// localized "your child" when the name is unknown.
func ChildName(name string, lang Language) string {
	if name == "" {
		return pick(lang, "Your child", "طفلك")
	}
	return name
}

// --------------------------------------------------------------------------
// Text helpers
// --------------------------------------------------------------------------

func pick(lang Language, en, ar string) string {
	if lang == Arabic {
		return ar
	}
	return en
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// subject picks the student or parent phrasing; parent formats take the
// child's name.
func subject(lang Language, isParent bool, child, enSelf, enParent, arSelf, arParent string) string {
	if isParent {
		return fmt.Sprintf(pick(lang, enParent, arParent), child)
	}
	return pick(lang, enSelf, arSelf)
}

func suffix(sep, s string) string {
	if s == "" {
		return ""
	}
	return sep + s
}

func fromActor(lang Language, actor string) string {
	return suffix(pick(lang, " from ", " من "), actor)
}

func withActor(lang Language, actor string) string {
	return suffix(pick(lang, " with ", " مع "), actor)
}

var attendanceStatuses = map[string][2]string{
	"present": {"present", "حاضر"},
	"absent":  {"absent", "غائب"},
	"late":    {"late", "متأخر"},
	"excused": {"excused", "معذور"},
}

func attendanceStatus(lang Language, status string) string {
	names, ok := attendanceStatuses[strings.ToLower(status)]
	if !ok {
		return status
	}
	if lang == Arabic {
		return names[1]
	}
	return names[0]
}
