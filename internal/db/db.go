// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/hifz-notify/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, StmtHealthCheck).Scan(&n)
}

// Prepared statement names.
const (
	StmtHealthCheck = "health_check"

	StmtActiveSchools    = "active_schools"
	StmtHomeworkDue      = "homework_due"
	StmtStudent          = "student_with_parent"
	StmtPreferences      = "notification_preferences"
	StmtActiveTokens     = "active_push_tokens"
	StmtDeactivateToken  = "deactivate_push_token"
	StmtSchoolTeachers   = "school_teachers"
	StmtTeacherStudents  = "teacher_class_students"
	StmtNeedingAttention = "students_needing_attention"
	StmtStickerName      = "sticker_name"
	StmtTrophyName       = "trophy_name"
	StmtAchievementName  = "achievement_name"
	StmtProfileName      = "profile_name"
	StmtStudentName      = "student_name"
)

// Statements maps every prepared statement name to its SQL.
var Statements = map[string]string{
	// Health
	StmtHealthCheck: "SELECT 1",

	// Schedule: schools and their clocks
	StmtActiveSchools: "SELECT id, COALESCE(timezone, 'UTC') FROM schools WHERE is_active = true ORDER BY id",

	// Homework reminder
	StmtHomeworkDue: `SELECT h.id, h.student_id, COALESCE(h.description, ''), h.due_date::text
		FROM homework h JOIN students s ON s.id = h.student_id
		WHERE s.school_id = $1 AND h.due_date = $2::date AND h.is_completed = false
		ORDER BY h.student_id, h.due_date, h.id`,

	// Recipients
	StmtStudent: `SELECT s.id, s.profile_id, s.school_id, COALESCE(p.full_name, ''), COALESCE(p.preferred_language, 'en'),
			COALESCE(sc.timezone, 'UTC'), pp.id, COALESCE(pp.full_name, ''), COALESCE(pp.preferred_language, 'en')
		FROM students s
		JOIN profiles p ON p.id = s.profile_id
		JOIN schools sc ON sc.id = s.school_id
		LEFT JOIN profiles pp ON pp.id = s.parent_id
		WHERE s.id = $1`,
	StmtPreferences: `SELECT user_id, sticker_awarded, trophy_earned, achievement_unlocked, homework_assigned,
			attendance_marked, session_completed, homework_reminder, daily_summary, student_alert,
			COALESCE(quiet_hours_enabled, false), COALESCE(quiet_hours_start::text, ''), COALESCE(quiet_hours_end::text, '')
		FROM notification_preferences WHERE user_id = $1`,

	// Tokens
	StmtActiveTokens:    "SELECT token FROM push_tokens WHERE user_id = $1 AND is_active = true ORDER BY token",
	StmtDeactivateToken: "UPDATE push_tokens SET is_active = false, updated_at = now() WHERE token = $1 AND is_active = true",

	// Teacher summary
	StmtSchoolTeachers: `SELECT id, COALESCE(full_name, ''), COALESCE(preferred_language, 'en')
		FROM profiles WHERE school_id = $1 AND role = 'teacher' ORDER BY id`,
	StmtTeacherStudents: `SELECT DISTINCT s.id FROM classes c
		JOIN students s ON s.class_id = c.id
		WHERE c.teacher_id = $1 AND c.is_active = true AND s.is_active = true`,
	StmtNeedingAttention: `SELECT h.student_id FROM homework h JOIN students s ON s.id = h.student_id
		WHERE s.school_id = $1 AND h.is_completed = false
		GROUP BY h.student_id HAVING count(*) >= $2`,

	// Content lookups
	StmtStickerName:     "SELECT COALESCE(name, ''), COALESCE(name_ar, '') FROM stickers WHERE id = $1",
	StmtTrophyName:      "SELECT COALESCE(name, ''), COALESCE(name_ar, '') FROM trophies WHERE id = $1",
	StmtAchievementName: "SELECT COALESCE(name, ''), COALESCE(name_ar, '') FROM achievements WHERE id = $1",
	StmtProfileName:     "SELECT COALESCE(full_name, '') FROM profiles WHERE id = $1",
	StmtStudentName: `SELECT COALESCE(p.full_name, '') FROM students s
		JOIN profiles p ON p.id = s.profile_id WHERE s.id = $1`,
}

// registerPreparedStatements registers every statement the drivers and the
// content lookups use.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range Statements {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
