package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/albapepper/hifz-notify/internal/notifications"
	"github.com/albapepper/hifz-notify/internal/push"
	"github.com/albapepper/hifz-notify/internal/store"
)

type fakeStore struct {
	schools     []notifications.School
	schoolsErr  error
	homework    map[string][]notifications.Homework // schoolID|date
	homeworkErr error
	students    map[string]*notifications.Student
	studentErr  map[string]error
	prefs       map[string]*notifications.Preferences
	tokens      map[string][]string
	teachers    map[string][]notifications.Profile
	teachersErr error
	rosters     map[string][]string
	attention   map[string][]string

	prefCalls []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		homework:   map[string][]notifications.Homework{},
		students:   map[string]*notifications.Student{},
		studentErr: map[string]error{},
		prefs:      map[string]*notifications.Preferences{},
		tokens:     map[string][]string{},
		teachers:   map[string][]notifications.Profile{},
		rosters:    map[string][]string{},
		attention:  map[string][]string{},
	}
}

func (s *fakeStore) ActiveSchools(context.Context) ([]notifications.School, error) {
	return s.schools, s.schoolsErr
}

func (s *fakeStore) HomeworkDue(_ context.Context, schoolID, date string) ([]notifications.Homework, error) {
	if s.homeworkErr != nil {
		return nil, s.homeworkErr
	}
	return s.homework[schoolID+"|"+date], nil
}

func (s *fakeStore) Student(_ context.Context, id string) (*notifications.Student, error) {
	if err := s.studentErr[id]; err != nil {
		return nil, err
	}
	st, ok := s.students[id]
	if !ok {
		return nil, fmt.Errorf("student %s: %w", id, store.ErrNotFound)
	}
	return st, nil
}

func (s *fakeStore) Preferences(_ context.Context, userID string) (*notifications.Preferences, error) {
	s.prefCalls = append(s.prefCalls, userID)
	return s.prefs[userID], nil
}

func (s *fakeStore) ActiveTokens(_ context.Context, userID string) ([]string, error) {
	return s.tokens[userID], nil
}

func (s *fakeStore) Teachers(_ context.Context, schoolID string) ([]notifications.Profile, error) {
	if s.teachersErr != nil {
		return nil, s.teachersErr
	}
	return s.teachers[schoolID], nil
}

func (s *fakeStore) TeacherStudents(_ context.Context, teacherID string) ([]string, error) {
	return s.rosters[teacherID], nil
}

func (s *fakeStore) StudentsNeedingAttention(_ context.Context, schoolID string, minIncomplete int) ([]string, error) {
	if minIncomplete != notifications.AttentionThreshold {
		return nil, errors.New("unexpected threshold")
	}
	return s.attention[schoolID], nil
}

type fakeDeliverer struct {
	batches [][]push.Message
}

func (f *fakeDeliverer) Deliver(_ context.Context, msgs []push.Message) push.Delivery {
	f.batches = append(f.batches, msgs)
	return push.Delivery{Accepted: len(msgs)}
}

func (f *fakeDeliverer) all() []push.Message {
	var out []push.Message
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

type fakeMarker struct {
	keys map[string]bool
	err  error
}

func (m *fakeMarker) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testDeps(s *fakeStore, d *fakeDeliverer, now time.Time) Deps {
	return Deps{
		Store:   s,
		Builder: notifications.NewBuilder(nil),
		Push:    d,
		Now:     fixedNow(now),
	}
}
