package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/hifz-notify/internal/db"
	"github.com/albapepper/hifz-notify/internal/notifications"
)

// fakeRow assigns values to Scan destinations positionally.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: want %d destinations, got %d", len(r.values), len(dest))
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case **string:
			if v == nil {
				*d = nil
			} else {
				s := v.(string)
				*d = &s
			}
		case *bool:
			*d = v.(bool)
		case **bool:
			if v == nil {
				*d = nil
			} else {
				b := v.(bool)
				*d = &b
			}
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type fakeQuerier struct {
	rows  map[string]fakeRow
	execs []execCall
	err   error
}

func (q *fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported by fake")
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	if row, ok := q.rows[sql]; ok {
		return row
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func (q *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.execs = append(q.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("UPDATE 1"), q.err
}

func TestStudentWithParent(t *testing.T) {
	q := &fakeQuerier{rows: map[string]fakeRow{
		db.StmtStudent: {values: []any{"s1", "p-s1", "school-1", "Yusuf", "ar", "Asia/Riyadh", "p-parent", "Fatima", "en"}},
	}}
	st, err := New(q).Student(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, "p-s1", st.ProfileID)
	assert.Equal(t, notifications.Arabic, st.Language)
	assert.Equal(t, "Asia/Riyadh", st.Timezone)
	require.NotNil(t, st.Parent)
	assert.Equal(t, "p-parent", st.Parent.ID)
	assert.Equal(t, notifications.English, st.Parent.Language)
}

func TestStudentWithoutParent(t *testing.T) {
	q := &fakeQuerier{rows: map[string]fakeRow{
		db.StmtStudent: {values: []any{"s1", "p-s1", "school-1", "Yusuf", "en", "UTC", nil, "", "en"}},
	}}
	st, err := New(q).Student(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, st.Parent)
}

func TestStudentNotFound(t *testing.T) {
	_, err := New(&fakeQuerier{}).Student(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPreferences(t *testing.T) {
	values := []any{"u1", false, nil, true, nil, nil, nil, nil, nil, false, true, "22:00:00", "07:00:00"}
	q := &fakeQuerier{rows: map[string]fakeRow{db.StmtPreferences: {values: values}}}

	prefs, err := New(q).Preferences(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, prefs)

	assert.Equal(t, map[notifications.Category]bool{
		notifications.CategoryStickerAwarded:      false,
		notifications.CategoryAchievementUnlocked: true,
		notifications.CategoryStudentAlert:        false,
	}, prefs.Categories)
	assert.True(t, prefs.QuietHoursEnabled)
	assert.Equal(t, "22:00:00", prefs.QuietHoursStart)
	assert.Equal(t, "07:00:00", prefs.QuietHoursEnd)
}

func TestPreferencesMissingRow(t *testing.T) {
	prefs, err := New(&fakeQuerier{}).Preferences(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, prefs)
}

func TestPreferencesQueryError(t *testing.T) {
	q := &fakeQuerier{rows: map[string]fakeRow{db.StmtPreferences: {err: errors.New("conn reset")}}}
	_, err := New(q).Preferences(context.Background(), "u1")
	assert.Error(t, err)
}

func TestDeactivateToken(t *testing.T) {
	q := &fakeQuerier{}
	require.NoError(t, New(q).DeactivateToken(context.Background(), "ExponentPushToken[x]"))
	require.Len(t, q.execs, 1)
	assert.Equal(t, db.StmtDeactivateToken, q.execs[0].sql)
	assert.Equal(t, []any{"ExponentPushToken[x]"}, q.execs[0].args)

	q.err = errors.New("boom")
	assert.Error(t, New(q).DeactivateToken(context.Background(), "t"))
}

func TestLocalizedLookups(t *testing.T) {
	q := &fakeQuerier{rows: map[string]fakeRow{
		db.StmtStickerName: {values: []any{"Star Reciter", "القارئ النجم"}},
		db.StmtTrophyName:  {values: []any{"Golden Juz", ""}},
		db.StmtProfileName: {values: []any{"Ustadh Ali"}},
	}}
	s := New(q)
	ctx := context.Background()

	name, err := s.StickerName(ctx, "st1", notifications.Arabic)
	require.NoError(t, err)
	assert.Equal(t, "القارئ النجم", name)

	name, err = s.StickerName(ctx, "st1", notifications.English)
	require.NoError(t, err)
	assert.Equal(t, "Star Reciter", name)

	name, err = s.TrophyName(ctx, "tr1", notifications.Arabic)
	require.NoError(t, err)
	assert.Equal(t, "Golden Juz", name)

	name, err = s.ProfileName(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Ustadh Ali", name)

	_, err = s.AchievementName(ctx, "a1", notifications.English)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryErrorsAreWrapped(t *testing.T) {
	s := New(&fakeQuerier{})
	_, err := s.ActiveSchools(context.Background())
	assert.ErrorContains(t, err, "query active schools")
	_, err = s.ActiveTokens(context.Background(), "u1")
	assert.ErrorContains(t, err, "query tokens")
}
