// Package engine runs the generate, adapt and regenerate flows for a video
// identifier on top of the storyboard, feedback, ratings and renderer
// packages.
package engine

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ivlev/script2video/internal/config"
	"github.com/ivlev/script2video/internal/errs"
	"github.com/ivlev/script2video/internal/feedback"
	"github.com/ivlev/script2video/internal/ratings"
	"github.com/ivlev/script2video/internal/renderer"
	"github.com/ivlev/script2video/internal/source"
	"github.com/ivlev/script2video/internal/storyboard"
)

// Store is the part of the rating store the engine needs.
type Store interface {
	feedback.SignalSource
	Record(ctx context.Context, videoID string, rating int, comment string) error
	Summary(ctx context.Context) ([]ratings.VideoSummary, error)
	RegisterVideo(ctx context.Context, v *ratings.Video) error
	Video(ctx context.Context, id string) (*ratings.Video, error)
}

type Engine struct {
	Config   *config.Config
	Source   source.Source
	Store    Store
	Adapter  *feedback.Adapter
	Renderer renderer.Renderer
	Logger   zerolog.Logger

	locks *keyedMutex
}

func New(cfg *config.Config, src source.Source, store Store, adapter *feedback.Adapter, r renderer.Renderer, logger zerolog.Logger) *Engine {
	return &Engine{
		Config:   cfg,
		Source:   src,
		Store:    store,
		Adapter:  adapter,
		Renderer: r,
		Logger:   logger,
		locks:    newKeyedMutex(),
	}
}

// Result describes the state of a video after an engine operation.
type Result struct {
	VideoID        string
	Storyboard     *storyboard.Storyboard
	StoryboardPath string
	VideoPath      string
	// Signal is the rating signal used by an adaptation, 0 otherwise.
	Signal float64
}

// NewVideoID returns a short random identifier.
func NewVideoID() string {
	return uuid.NewString()[:8]
}

// Generate builds a storyboard from the script at scriptPath, persists it
// under a fresh video id and registers the video. With render set the
// storyboard is rendered as well; a render failure still returns the
// persisted Result so the render can be retried.
func (e *Engine) Generate(ctx context.Context, scriptPath string, render bool) (*Result, error) {
	const op = "engine.generate"

	text, err := e.Source.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}

	sb := storyboard.BuildWith(text, e.Config.MaxSentences)
	if len(sb.Scenes) == 0 {
		return nil, errs.E(errs.KindInput, op, "script %s produced no scenes", scriptPath)
	}

	id := NewVideoID()
	unlock := e.locks.Lock(id)
	defer unlock()

	res := &Result{
		VideoID:        id,
		Storyboard:     sb,
		StoryboardPath: storyboard.Path(e.Config.StoryboardDir, id),
	}
	if err := e.persist(ctx, res, sb.Title); err != nil {
		return nil, err
	}

	e.Logger.Info().
		Str("video", id).
		Str("title", sb.Title).
		Int("scenes", len(sb.Scenes)).
		Float64("duration", sb.TotalDuration()).
		Msg("storyboard generated")

	if !render {
		return res, nil
	}
	return res, e.render(ctx, res)
}

// Adapt applies the current rating signal to the stored storyboard of id
// and persists the result.
func (e *Engine) Adapt(ctx context.Context, id string) (*Result, error) {
	unlock := e.locks.Lock(id)
	defer unlock()
	return e.adapt(ctx, id)
}

// Regenerate adapts the storyboard of id and renders the adapted version.
func (e *Engine) Regenerate(ctx context.Context, id string) (*Result, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	res, err := e.adapt(ctx, id)
	if err != nil {
		return nil, err
	}
	return res, e.render(ctx, res)
}

// Render renders the stored storyboard of id unchanged.
func (e *Engine) Render(ctx context.Context, id string) (*Result, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	res, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return res, e.render(ctx, res)
}

// Rate records a rating for a registered video.
func (e *Engine) Rate(ctx context.Context, id string, rating int, comment string) error {
	if _, err := e.Store.Video(ctx, id); err != nil {
		return err
	}
	if err := e.Store.Record(ctx, id, rating, comment); err != nil {
		return err
	}
	e.Logger.Info().Str("video", id).Int("rating", rating).Msg("rating recorded")
	return nil
}

// Ratings lists the rating summary of every registered video.
func (e *Engine) Ratings(ctx context.Context) ([]ratings.VideoSummary, error) {
	return e.Store.Summary(ctx)
}

// Status is what Show reports about one video.
type Status struct {
	Video      *ratings.Video
	Storyboard *storyboard.Storyboard
	Signal     float64
}

func (e *Engine) Show(ctx context.Context, id string) (*Status, error) {
	res, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := e.Store.Video(ctx, id)
	if err != nil {
		return nil, err
	}
	signal, err := e.Store.Average(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Status{Video: v, Storyboard: res.Storyboard, Signal: feedback.ClampRating(signal)}, nil
}

func (e *Engine) adapt(ctx context.Context, id string) (*Result, error) {
	res, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}

	adapted, signal, err := e.Adapter.AdaptFor(ctx, res.Storyboard, id)
	if err != nil {
		return nil, err
	}
	res.Storyboard = adapted
	res.Signal = signal

	if err := e.persist(ctx, res, adapted.Title); err != nil {
		return nil, err
	}
	return res, nil
}

// load resolves the storyboard of id through the registry, falling back to
// the default layout for storyboards written outside the engine.
func (e *Engine) load(ctx context.Context, id string) (*Result, error) {
	if id == "" {
		return nil, errs.E(errs.KindInput, "engine.load", "empty video id")
	}
	res := &Result{VideoID: id, StoryboardPath: storyboard.Path(e.Config.StoryboardDir, id)}

	v, err := e.Store.Video(ctx, id)
	switch {
	case err == nil:
		if v.StoryboardPath != "" {
			res.StoryboardPath = v.StoryboardPath
		}
		res.VideoPath = v.VideoPath
	case !errs.IsKind(err, errs.KindNotFound):
		return nil, err
	}

	sb, err := storyboard.ReadStoryboard(res.StoryboardPath)
	if err != nil {
		return nil, err
	}
	res.Storyboard = sb
	return res, nil
}

func (e *Engine) persist(ctx context.Context, res *Result, title string) error {
	if err := storyboard.WriteStoryboard(res.Storyboard, res.StoryboardPath); err != nil {
		return err
	}
	return e.Store.RegisterVideo(ctx, &ratings.Video{
		ID:             res.VideoID,
		Title:          title,
		StoryboardPath: res.StoryboardPath,
		VideoPath:      res.VideoPath,
	})
}

func (e *Engine) render(ctx context.Context, res *Result) error {
	const op = "engine.render"
	if e.Renderer == nil {
		return errs.E(errs.KindRender, op, "no renderer configured")
	}

	start := time.Now()
	out := filepath.Join(e.Config.VideoDir, res.VideoID+".mp4")
	path, err := e.Renderer.Render(ctx, res.Storyboard, out)
	if err != nil {
		var ee *errs.Error
		if !errors.As(err, &ee) {
			err = errs.Wrap(errs.KindRender, op, err)
		}
		e.Logger.Error().Err(err).Str("video", res.VideoID).Msg("render failed")
		return err
	}
	res.VideoPath = path

	err = e.Store.RegisterVideo(ctx, &ratings.Video{
		ID:             res.VideoID,
		Title:          res.Storyboard.Title,
		StoryboardPath: res.StoryboardPath,
		VideoPath:      path,
	})
	if err != nil {
		return err
	}
	e.Logger.Info().
		Str("video", res.VideoID).
		Str("path", path).
		Dur("took", time.Since(start)).
		Msg("video rendered")
	return nil
}
