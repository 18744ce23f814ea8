package ratings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/script2video/internal/errs"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "meta.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesTables(t *testing.T) {
	s := openTestStore(t)
	for _, table := range []string{"videos", "ratings", "_migrations"} {
		var name string
		err := s.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}

	var journalMode string
	require.NoError(t, s.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")

	s1, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer s2.Close()

	var count int
	require.NoError(t, s2.conn.QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestAverageDefaultsToNeutral(t *testing.T) {
	s := openTestStore(t)
	avg, err := s.Average(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 3.0, avg)
}

func TestRecordAndAverage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, r := range []int{1, 2, 2} {
		require.NoError(t, s.Record(ctx, "v1", r, ""))
	}
	require.NoError(t, s.Record(ctx, "v2", 5, "great"))

	avg, err := s.Average(ctx, "v1")
	require.NoError(t, err)
	assert.InDelta(t, 5.0/3.0, avg, 1e-9)

	avg, err = s.Average(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, 5.0, avg)
}

func TestRecordRejectsOutOfRange(t *testing.T) {
	s := openTestStore(t)
	for _, r := range []int{0, 6, -1} {
		err := s.Record(context.Background(), "v1", r, "")
		assert.True(t, errs.IsKind(err, errs.KindInput), "rating %d", r)
	}
	assert.True(t, errs.IsKind(s.Record(context.Background(), "", 3, ""), errs.KindInput))
}

func TestRegisterAndLookupVideo(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	v := &Video{ID: "abc12345", Title: "Caching 101", StoryboardPath: "data/abc_storyboard.json"}
	require.NoError(t, s.RegisterVideo(ctx, v))

	got, err := s.Video(ctx, "abc12345")
	require.NoError(t, err)
	assert.Equal(t, "Caching 101", got.Title)
	assert.Empty(t, got.VideoPath)
	assert.False(t, got.CreatedAt.IsZero())

	v.VideoPath = "data/videos/abc12345.mp4"
	require.NoError(t, s.RegisterVideo(ctx, v))

	got, err = s.Video(ctx, "abc12345")
	require.NoError(t, err)
	assert.Equal(t, "data/videos/abc12345.mp4", got.VideoPath)

	_, err = s.Video(ctx, "missing")
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.RegisterVideo(ctx, &Video{ID: "a", Title: "A", StoryboardPath: "a.json"}))
	require.NoError(t, s.RegisterVideo(ctx, &Video{ID: "b", Title: "B", StoryboardPath: "b.json"}))
	require.NoError(t, s.Record(ctx, "a", 4, ""))
	require.NoError(t, s.Record(ctx, "a", 2, ""))

	summary, err := s.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	byID := map[string]VideoSummary{}
	for _, vs := range summary {
		byID[vs.VideoID] = vs
	}
	assert.Equal(t, 2, byID["a"].Count)
	assert.Equal(t, 3.0, byID["a"].AverageRating)
	assert.Equal(t, 0, byID["b"].Count)
	assert.Equal(t, 0.0, byID["b"].AverageRating)
}
