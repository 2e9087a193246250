// Package store is the Postgres implementation of every data interface the
// notification drivers and the content builder consume. All queries run as
// prepared statements registered by package db.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/albapepper/hifz-notify/internal/db"
	"github.com/albapepper/hifz-notify/internal/notifications"
)

// ErrNotFound is returned when a single-row lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Querier is the subset of pgxpool.Pool the store uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store reads schools, students, homework, preferences and tokens.
type Store struct {
	db Querier
}

// New creates a Store over q, usually a *db.Pool.
func New(q Querier) *Store {
	return &Store{db: q}
}

// --------------------------------------------------------------------------
// Schools and homework
// --------------------------------------------------------------------------

// ActiveSchools lists every active school with its timezone.
func (s *Store) ActiveSchools(ctx context.Context) ([]notifications.School, error) {
	rows, err := s.db.Query(ctx, db.StmtActiveSchools)
	if err != nil {
		return nil, fmt.Errorf("query active schools: %w", err)
	}
	defer rows.Close()

	var schools []notifications.School
	for rows.Next() {
		var sc notifications.School
		if err := rows.Scan(&sc.ID, &sc.Timezone); err != nil {
			return nil, fmt.Errorf("scan school: %w", err)
		}
		schools = append(schools, sc)
	}
	return schools, rows.Err()
}

// HomeworkDue lists incomplete homework in schoolID due on date
// (YYYY-MM-DD), ordered by student.
func (s *Store) HomeworkDue(ctx context.Context, schoolID, date string) ([]notifications.Homework, error) {
	rows, err := s.db.Query(ctx, db.StmtHomeworkDue, schoolID, date)
	if err != nil {
		return nil, fmt.Errorf("query homework due: %w", err)
	}
	defer rows.Close()

	var items []notifications.Homework
	for rows.Next() {
		var h notifications.Homework
		if err := rows.Scan(&h.ID, &h.StudentID, &h.Description, &h.DueDate); err != nil {
			return nil, fmt.Errorf("scan homework: %w", err)
		}
		items = append(items, h)
	}
	return items, rows.Err()
}

// --------------------------------------------------------------------------
// Recipients
// --------------------------------------------------------------------------

// Student loads a student with its profile, school timezone and parent.
func (s *Store) Student(ctx context.Context, studentID string) (*notifications.Student, error) {
	var (
		st                     notifications.Student
		lang                   string
		parentID               *string
		parentName, parentLang string
	)
	err := s.db.QueryRow(ctx, db.StmtStudent, studentID).Scan(
		&st.ID, &st.ProfileID, &st.SchoolID, &st.Name, &lang,
		&st.Timezone, &parentID, &parentName, &parentLang,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("student %s: %w", studentID, ErrNotFound)
		}
		return nil, fmt.Errorf("query student %s: %w", studentID, err)
	}
	st.Language = notifications.ParseLanguage(lang)
	if parentID != nil && *parentID != "" {
		st.Parent = &notifications.Profile{
			ID:       *parentID,
			FullName: parentName,
			Language: notifications.ParseLanguage(parentLang),
		}
	}
	return &st, nil
}

// Preferences loads userID's preference row. It returns nil, nil when the
// user has none, which means everything is enabled.
func (s *Store) Preferences(ctx context.Context, userID string) (*notifications.Preferences, error) {
	categories := notifications.AllCategories()
	flags := make([]*bool, len(categories))

	prefs := &notifications.Preferences{}
	dest := []any{&prefs.UserID}
	for i := range flags {
		dest = append(dest, &flags[i])
	}
	dest = append(dest, &prefs.QuietHoursEnabled, &prefs.QuietHoursStart, &prefs.QuietHoursEnd)

	if err := s.db.QueryRow(ctx, db.StmtPreferences, userID).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query preferences %s: %w", userID, err)
	}

	prefs.Categories = make(map[notifications.Category]bool, len(categories))
	for i, c := range categories {
		if flags[i] != nil {
			prefs.Categories[c] = *flags[i]
		}
	}
	return prefs, nil
}

// Teachers lists the teacher profiles of schoolID.
func (s *Store) Teachers(ctx context.Context, schoolID string) ([]notifications.Profile, error) {
	rows, err := s.db.Query(ctx, db.StmtSchoolTeachers, schoolID)
	if err != nil {
		return nil, fmt.Errorf("query teachers: %w", err)
	}
	defer rows.Close()

	var teachers []notifications.Profile
	for rows.Next() {
		var (
			p    notifications.Profile
			lang string
		)
		if err := rows.Scan(&p.ID, &p.FullName, &lang); err != nil {
			return nil, fmt.Errorf("scan teacher: %w", err)
		}
		p.Language = notifications.ParseLanguage(lang)
		teachers = append(teachers, p)
	}
	return teachers, rows.Err()
}

// TeacherStudents returns the distinct active students enrolled in the
// teacher's active classes.
func (s *Store) TeacherStudents(ctx context.Context, teacherID string) ([]string, error) {
	rows, err := s.db.Query(ctx, db.StmtTeacherStudents, teacherID)
	if err != nil {
		return nil, fmt.Errorf("query teacher students: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect teacher students: %w", err)
	}
	return ids, nil
}

// StudentsNeedingAttention returns students of schoolID with at least
// minIncomplete incomplete homework items.
func (s *Store) StudentsNeedingAttention(ctx context.Context, schoolID string, minIncomplete int) ([]string, error) {
	rows, err := s.db.Query(ctx, db.StmtNeedingAttention, schoolID, minIncomplete)
	if err != nil {
		return nil, fmt.Errorf("query students needing attention: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect students needing attention: %w", err)
	}
	return ids, nil
}

// --------------------------------------------------------------------------
// Push tokens
// --------------------------------------------------------------------------

// ActiveTokens lists userID's active push tokens.
func (s *Store) ActiveTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Query(ctx, db.StmtActiveTokens, userID)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	tokens, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect tokens: %w", err)
	}
	return tokens, nil
}

// DeactivateToken marks token inactive. Already inactive or unknown tokens
// are a no-op.
func (s *Store) DeactivateToken(ctx context.Context, token string) error {
	if _, err := s.db.Exec(ctx, db.StmtDeactivateToken, token); err != nil {
		return fmt.Errorf("deactivate token: %w", err)
	}
	return nil
}
