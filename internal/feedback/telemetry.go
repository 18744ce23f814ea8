package feedback

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ivlev/script2video/internal/errs"
	"github.com/ivlev/script2video/internal/storyboard"
)

// SignalSource yields the rating signal for a video.
type SignalSource interface {
	Average(ctx context.Context, videoID string) (float64, error)
}

// TelemetrySink records the last observed signal. It is write-only: nothing
// here reads it back.
type TelemetrySink interface {
	RecordSignal(videoID string, signal float64) error
}

type NopSink struct{}

func (NopSink) RecordSignal(string, float64) error { return nil }

// FileSink keeps {"last_avg_rating": x} in a JSON file.
type FileSink struct {
	Path string
}

type weights struct {
	LastAvgRating float64 `json:"last_avg_rating"`
	VideoID       string  `json:"video_id,omitempty"`
}

func (s *FileSink) RecordSignal(videoID string, signal float64) error {
	data, err := json.MarshalIndent(weights{LastAvgRating: signal, VideoID: videoID}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return err
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

// Adapter wires Adapt to a signal source and a telemetry sink.
type Adapter struct {
	Signals SignalSource
	Sink    TelemetrySink
	Logger  zerolog.Logger
}

func NewAdapter(signals SignalSource, sink TelemetrySink, logger zerolog.Logger) *Adapter {
	if sink == nil {
		sink = NopSink{}
	}
	return &Adapter{Signals: signals, Sink: sink, Logger: logger}
}

// AdaptFor reads the current signal for videoID and derives the adjusted
// storyboard. A telemetry failure is logged and does not fail the call.
func (a *Adapter) AdaptFor(ctx context.Context, sb *storyboard.Storyboard, videoID string) (*storyboard.Storyboard, float64, error) {
	signal, err := a.Signals.Average(ctx, videoID)
	if err != nil {
		return nil, 0, errs.Wrap(errs.KindStorage, "feedback.adapt", err)
	}
	signal = ClampRating(signal)

	out := Adapt(sb, signal)

	if err := a.Sink.RecordSignal(videoID, signal); err != nil {
		a.Logger.Warn().Err(err).Str("video", videoID).Msg("telemetry write failed")
	}

	a.Logger.Info().
		Str("video", videoID).
		Float64("signal", signal).
		Bool("shortened", signal < NeutralRating).
		Float64("duration", out.TotalDuration()).
		Msg("storyboard adapted")

	return out, signal, nil
}
