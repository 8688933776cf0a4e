package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/job-harvester/internal/posting"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "jobs.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s, path
}

func TestRecordedPostingIsProcessed(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	p := &posting.Posting{ID: "hc-1", Company: "Acme Corp", Title: "Staff Engineer", ApplyURL: "https://acme.io/1"}

	seen, err := s.IsProcessed(ctx, p)
	require.NoError(t, err)
	assert.False(t, seen)

	inserted, err := s.Record(ctx, p, 81, StatusEscalated, "run-1")
	require.NoError(t, err)
	assert.True(t, inserted)

	seen, err = s.IsProcessed(ctx, p)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestFuzzyCompanyTitleMatch(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	first := &posting.Posting{ID: "111", Company: "Acme Corp", Title: "Staff Engineer"}
	_, err := s.Record(ctx, first, 40, StatusScored, "run-1")
	require.NoError(t, err)

	churned := &posting.Posting{ID: "222", Company: "  acme corp ", Title: "STAFF ENGINEER"}
	seen, err := s.IsProcessed(ctx, churned)
	require.NoError(t, err)
	assert.True(t, seen, "same company and title under a new id must count as processed")

	other := &posting.Posting{ID: "333", Company: "Acme Corp", Title: "Principal Engineer"}
	seen, err = s.IsProcessed(ctx, other)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestBlankCompanyAndTitleDoNotMatch(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	_, err := s.Record(ctx, &posting.Posting{ID: "1"}, 30, StatusScored, "run-1")
	require.NoError(t, err)
	_, err = s.Record(ctx, &posting.Posting{ID: "2", Company: "Acme"}, 30, StatusScored, "run-1")
	require.NoError(t, err)

	cases := []*posting.Posting{
		{ID: "3"},
		{ID: "4", Company: "  "},
		{ID: "5", Company: "Acme"},
		{ID: "6", Title: "Engineer"},
	}
	for _, p := range cases {
		seen, err := s.IsProcessed(ctx, p)
		require.NoError(t, err)
		assert.False(t, seen, "posting %q must not match on empty fields", p.ID)
	}

	seen, err := s.IsProcessed(ctx, &posting.Posting{ID: "1"})
	require.NoError(t, err)
	assert.True(t, seen, "exact id still matches")
}

func TestExactIDMatchWithChangedTitle(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	_, err := s.Record(ctx, &posting.Posting{ID: "abc", Company: "Initech", Title: "SRE"}, 10, StatusScored, "")
	require.NoError(t, err)

	seen, err := s.IsProcessed(ctx, &posting.Posting{ID: "abc", Company: "Initech", Title: "Site Reliability Engineer"})
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRecordNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	original := now
	now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	defer func() { now = original }()

	p := &posting.Posting{ID: "x1", Company: "Globex", Title: "Go Developer"}

	inserted, err := s.Record(ctx, p, 90, StatusEscalated, "run-1")
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = s.Record(ctx, p, 5, StatusScored, "run-2")
	require.NoError(t, err)
	assert.False(t, inserted)

	rec, err := s.Get(ctx, "x1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 90, rec.Score)
	assert.Equal(t, StatusEscalated, rec.Status)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, 2026, rec.CreatedAt.Year())

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)

	p := &posting.Posting{Company: "Hooli", Title: "Platform Engineer"}
	_, err := s.Record(ctx, p, 70, StatusScored, "run-1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	seen, err := reopened.IsProcessed(ctx, &posting.Posting{Company: "HOOLI", Title: "platform engineer "})
	require.NoError(t, err)
	assert.True(t, seen)

	missing, err := reopened.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReadErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.IsProcessed(ctx, &posting.Posting{ID: "1"})
	assert.Error(t, err)

	_, err = s.Record(ctx, &posting.Posting{ID: "1"}, 1, StatusScored, "")
	assert.Error(t, err)
}

func TestAcquireLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")

	lock, err := AcquireLock(path)
	require.NoError(t, err)

	_, err = AcquireLock(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))

	require.NoError(t, lock.Release())

	again, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}
