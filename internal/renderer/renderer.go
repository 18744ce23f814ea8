// Package renderer turns a storyboard into a video file.
package renderer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/script2video/internal/config"
	"github.com/ivlev/script2video/internal/effects"
	"github.com/ivlev/script2video/internal/errs"
	"github.com/ivlev/script2video/internal/storyboard"
	"github.com/ivlev/script2video/internal/system"
	"github.com/ivlev/script2video/internal/video"
)

// Renderer produces a video at outPath and returns its path.
type Renderer interface {
	Render(ctx context.Context, sb *storyboard.Storyboard, outPath string) (string, error)
}

// Stats times the phases of the last Render call.
type Stats struct {
	Scenes      int
	Segments    time.Duration
	Concatenate time.Duration
	Total       time.Duration
	Host        system.HostReport
}

type FFmpegRenderer struct {
	Config  config.RenderConfig
	Drawer  *FrameDrawer
	Encoder video.VideoEncoder
	Effect  effects.Effect
	Logger  zerolog.Logger

	LastStats Stats
}

func NewFFmpegRenderer(cfg config.RenderConfig, ve video.VideoEncoder, eff effects.Effect, logger zerolog.Logger) (*FFmpegRenderer, error) {
	drawer, err := NewFrameDrawer(cfg.Width, cfg.Height, cfg.FontSize, cfg.QRLink)
	if err != nil {
		return nil, errs.Wrap(errs.KindRender, "renderer.new", err)
	}
	return &FFmpegRenderer{
		Config:  cfg,
		Drawer:  drawer,
		Encoder: ve,
		Effect:  eff,
		Logger:  logger,
	}, nil
}

// Plan holds the per-scene segment lengths and the fade actually used.
// Every segment but the last is extended by the fade so that, after the
// xfade overlap, scene i still starts at the sum of earlier durations.
type Plan struct {
	Fade             float64
	SegmentDurations []float64
}

func PlanSegments(scenes []storyboard.Scene, fade float64, transition string) Plan {
	if transition == "" || transition == "none" || len(scenes) < 2 {
		fade = 0
	}

	minDur := 0.0
	for i, sc := range scenes {
		if i == 0 || sc.DurationSecs < minDur {
			minDur = sc.DurationSecs
		}
	}
	if fade > 0 && fade >= minDur/2 {
		fade = minDur / 2
	}

	durations := make([]float64, len(scenes))
	for i, sc := range scenes {
		durations[i] = sc.DurationSecs
		if i < len(scenes)-1 {
			durations[i] += fade
		}
	}
	return Plan{Fade: fade, SegmentDurations: durations}
}

// Render draws and encodes every scene in parallel, then joins the segments
// in scene_id order. The result is written next to outPath and renamed into
// place, so a failed render never leaves a truncated video behind.
func (r *FFmpegRenderer) Render(ctx context.Context, sb *storyboard.Storyboard, outPath string) (string, error) {
	const op = "renderer.render"
	start := time.Now()

	if sb == nil || len(sb.Scenes) == 0 {
		return "", errs.E(errs.KindRender, op, "storyboard has no scenes")
	}

	tempDir, err := os.MkdirTemp("", "script2video_")
	if err != nil {
		return "", errs.Wrap(errs.KindRender, op, err)
	}
	defer os.RemoveAll(tempDir)

	encoder := r.Config.VideoEncoder
	if encoder == "" {
		encoder = system.GetBestH264Encoder(ctx)
	}
	quality := r.Config.Quality
	if quality == 0 {
		quality = system.DefaultQuality(encoder)
	}
	workers := r.Config.Workers
	if workers <= 0 {
		workers = system.DefaultWorkers(r.Config.Width, r.Config.Height)
	}

	plan := PlanSegments(sb.Scenes, r.Config.FadeDuration, r.Config.TransitionType)
	if plan.Fade < r.Config.FadeDuration && plan.Fade > 0 {
		r.Logger.Warn().Float64("fade", plan.Fade).Msg("transition shortened to fit the shortest scene")
	}

	r.Logger.Info().
		Str("title", sb.Title).
		Int("scenes", len(sb.Scenes)).
		Str("encoder", encoder).
		Int("workers", workers).
		Msgf("rendering %dx%d @ %d fps", r.Config.Width, r.Config.Height, r.Config.FPS)

	segments := make([]string, len(sb.Scenes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, sc := range sb.Scenes {
		i, sc := i, sc
		g.Go(func() error {
			img, err := r.Drawer.Draw(sc)
			if err != nil {
				return fmt.Errorf("scene %d: draw: %w", sc.ID, err)
			}
			defer system.PutImage(img)

			params := config.SegmentParams{
				Width:        r.Config.Width,
				Height:       r.Config.Height,
				FPS:          r.Config.FPS,
				Duration:     plan.SegmentDurations[i],
				ZoomSpeed:    r.Config.ZoomSpeed,
				FadeDuration: plan.Fade,
				SceneIndex:   i,
				SceneType:    string(sc.Type),
			}
			params.Filter = r.Effect.GenerateFilter(params)

			segPath := filepath.Join(tempDir, fmt.Sprintf("s%03d.mp4", i))
			if err := r.Encoder.EncodeSegment(gctx, img, segPath, params, encoder, quality); err != nil {
				return fmt.Errorf("scene %d: %w", sc.ID, err)
			}
			segments[i] = segPath
			r.Logger.Debug().Int("scene", sc.ID).Float64("duration", params.Duration).Msg("segment encoded")
			return nil
		})
	}

	segStart := time.Now()
	if err := g.Wait(); err != nil {
		return "", errs.Wrap(errs.KindRender, op, err)
	}
	segTime := time.Since(segStart)

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", errs.Wrap(errs.KindRender, op, err)
	}
	partial := outPath + ".part"
	defer os.Remove(partial)

	concatStart := time.Now()
	err = r.Encoder.Concatenate(ctx, segments, partial, tempDir, video.ConcatParams{
		SegmentDurations: plan.SegmentDurations,
		FadeDuration:     plan.Fade,
		TransitionType:   r.Config.TransitionType,
		VideoEncoder:     encoder,
		Quality:          quality,
	})
	if err != nil {
		return "", errs.Wrap(errs.KindRender, op, err)
	}
	if err := os.Rename(partial, outPath); err != nil {
		return "", errs.Wrap(errs.KindRender, op, err)
	}

	r.LastStats = Stats{
		Scenes:      len(sb.Scenes),
		Segments:    segTime,
		Concatenate: time.Since(concatStart),
		Total:       time.Since(start),
	}
	if r.Config.ShowStats {
		r.LastStats.Host = system.Host()
		r.Logger.Info().
			Int("scenes", r.LastStats.Scenes).
			Dur("segments", r.LastStats.Segments).
			Dur("concat", r.LastStats.Concatenate).
			Dur("total", r.LastStats.Total).
			Int("cpus", r.LastStats.Host.LogicalCPUs).
			Float64("mem_used_pct", r.LastStats.Host.MemUsedPct).
			Msg("performance report")
	}

	r.Logger.Info().Str("path", outPath).Float64("duration", sb.TotalDuration()).Msg("video ready")
	return outPath, nil
}
