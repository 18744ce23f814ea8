package ratings

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ivlev/script2video/internal/errs"
	"github.com/ivlev/script2video/internal/feedback"
)

var _ feedback.SignalSource = (*Store)(nil)

// Video is one row of the video registry.
type Video struct {
	ID             string
	Title          string
	StoryboardPath string
	VideoPath      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// VideoSummary aggregates the ratings of one video.
type VideoSummary struct {
	VideoID       string
	Title         string
	Count         int
	AverageRating float64
}

// Record stores one rating. Ratings outside 1..5 are rejected.
func (s *Store) Record(ctx context.Context, videoID string, rating int, comment string) error {
	const op = "ratings.record"
	if videoID == "" {
		return errs.E(errs.KindInput, op, "empty video id")
	}
	if rating < 1 || rating > 5 {
		return errs.E(errs.KindInput, op, "rating must be 1..5, got %d", rating)
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO ratings (video_id, rating, comment) VALUES (?, ?, ?)`,
		videoID, rating, comment)
	return errs.Wrap(errs.KindStorage, op, err)
}

// Average returns the mean rating of videoID, or the neutral rating when
// the video has none.
func (s *Store) Average(ctx context.Context, videoID string) (float64, error) {
	var avg sql.NullFloat64
	err := s.conn.QueryRowContext(ctx,
		`SELECT AVG(rating) FROM ratings WHERE video_id = ?`, videoID).Scan(&avg)
	if err != nil {
		return 0, errs.Wrap(errs.KindStorage, "ratings.average", err)
	}
	if !avg.Valid {
		return feedback.NeutralRating, nil
	}
	return avg.Float64, nil
}

// Summary lists rating count and mean per registered video, newest first.
// Videos without ratings report a zero average.
func (s *Store) Summary(ctx context.Context) ([]VideoSummary, error) {
	const op = "ratings.summary"
	rows, err := s.conn.QueryContext(ctx, `
		SELECT v.id, v.title, COUNT(r.id), COALESCE(AVG(r.rating), 0)
		FROM videos v
		LEFT JOIN ratings r ON r.video_id = v.id
		GROUP BY v.id, v.title
		ORDER BY v.created_at DESC, v.id
	`)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, op, err)
	}
	defer rows.Close()

	var out []VideoSummary
	for rows.Next() {
		var vs VideoSummary
		if err := rows.Scan(&vs.VideoID, &vs.Title, &vs.Count, &vs.AverageRating); err != nil {
			return nil, errs.Wrap(errs.KindStorage, op, err)
		}
		out = append(out, vs)
	}
	return out, errs.Wrap(errs.KindStorage, op, rows.Err())
}

// RegisterVideo inserts or updates the registry row of v.
func (s *Store) RegisterVideo(ctx context.Context, v *Video) error {
	const op = "ratings.register"
	if v.ID == "" {
		return errs.E(errs.KindInput, op, "empty video id")
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO videos (id, title, storyboard_path, video_path)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			storyboard_path = excluded.storyboard_path,
			video_path = excluded.video_path,
			updated_at = datetime('now')
	`, v.ID, v.Title, v.StoryboardPath, v.VideoPath)
	return errs.Wrap(errs.KindStorage, op, err)
}

// Video returns the registry row of id, or a NotFound error.
func (s *Store) Video(ctx context.Context, id string) (*Video, error) {
	const op = "ratings.video"
	var (
		v                    Video
		createdAt, updatedAt string
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, title, storyboard_path, video_path, created_at, updated_at
		FROM videos WHERE id = ?
	`, id).Scan(&v.ID, &v.Title, &v.StoryboardPath, &v.VideoPath, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.E(errs.KindNotFound, op, "video %s", id)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, op, err)
	}
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.DateTime, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
