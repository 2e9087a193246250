package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/hifz-notify/internal/db"
	"github.com/albapepper/hifz-notify/internal/notifications"
)

// StickerName implements notifications.Lookups.
func (s *Store) StickerName(ctx context.Context, id string, lang notifications.Language) (string, error) {
	return s.localizedName(ctx, db.StmtStickerName, id, lang)
}

// TrophyName implements notifications.Lookups.
func (s *Store) TrophyName(ctx context.Context, id string, lang notifications.Language) (string, error) {
	return s.localizedName(ctx, db.StmtTrophyName, id, lang)
}

// AchievementName implements notifications.Lookups.
func (s *Store) AchievementName(ctx context.Context, id string, lang notifications.Language) (string, error) {
	return s.localizedName(ctx, db.StmtAchievementName, id, lang)
}

// ProfileName implements notifications.Lookups.
func (s *Store) ProfileName(ctx context.Context, profileID string) (string, error) {
	return s.name(ctx, db.StmtProfileName, profileID)
}

// StudentName implements notifications.Lookups.
func (s *Store) StudentName(ctx context.Context, studentID string) (string, error) {
	return s.name(ctx, db.StmtStudentName, studentID)
}

func (s *Store) localizedName(ctx context.Context, stmt, id string, lang notifications.Language) (string, error) {
	var en, ar string
	if err := s.db.QueryRow(ctx, stmt, id).Scan(&en, &ar); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%s %s: %w", stmt, id, ErrNotFound)
		}
		return "", fmt.Errorf("%s %s: %w", stmt, id, err)
	}
	if lang == notifications.Arabic && ar != "" {
		return ar, nil
	}
	return en, nil
}

func (s *Store) name(ctx context.Context, stmt, id string) (string, error) {
	var name string
	if err := s.db.QueryRow(ctx, stmt, id).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%s %s: %w", stmt, id, ErrNotFound)
		}
		return "", fmt.Errorf("%s %s: %w", stmt, id, err)
	}
	return name, nil
}

var _ notifications.Lookups = (*Store)(nil)
