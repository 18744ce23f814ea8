package effects

import (
	"fmt"

	"github.com/ivlev/script2video/internal/config"
	"github.com/ivlev/script2video/internal/storyboard"
)

type Effect interface {
	GenerateFilter(params config.SegmentParams) string
}

// DefaultEffect slowly pushes in on example and definition scenes and holds
// every other scene still. zoompan emits the whole segment from the single
// raw frame piped in.
type DefaultEffect struct {
	// MaxZoom caps the push-in; 0 means 1.15.
	MaxZoom float64
}

func (e *DefaultEffect) GenerateFilter(p config.SegmentParams) string {
	fFPS := float64(p.FPS)
	fTotal := p.Duration * fFPS
	frames := int(fTotal + 0.5)
	if frames < 1 {
		frames = 1
	}

	zFormula := "1.0"
	if zooms(p.SceneType) {
		zFormula = pushIn(p, fTotal, e.maxZoom())
	}

	// 2x масштаб перед zoompan, иначе зум дрожит на целых пикселях
	aspectFilter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		p.Width*2, p.Height*2, p.Width*2, p.Height*2,
	)

	zoomFilter := fmt.Sprintf(
		"zoompan=z='%s':d=%d:s=%dx%d:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':fps=%d",
		zFormula, frames, p.Width, p.Height, p.FPS,
	)

	return fmt.Sprintf("%s,%s,setsar=1", aspectFilter, zoomFilter)
}

func (e *DefaultEffect) maxZoom() float64 {
	if e.MaxZoom <= 1 {
		return 1.15
	}
	return e.MaxZoom
}

func zooms(sceneType string) bool {
	switch storyboard.SceneType(sceneType) {
	case storyboard.TypeExample, storyboard.TypeDefinition:
		return true
	}
	return false
}

// pushIn grows zoom linearly until it peaks, then holds. The peak is reached
// before the cross-fade starts so the transition blends two still frames.
func pushIn(p config.SegmentParams, fTotal, maxZoom float64) string {
	zSpeed := p.ZoomSpeed
	if zSpeed <= 0 {
		zSpeed = 0.0006
	}

	fActive := fTotal - p.FadeDuration*float64(p.FPS)
	if fActive <= 0 {
		fActive = fTotal
	}

	onPeak := (maxZoom - 1.0) / zSpeed
	if onPeak > fActive {
		onPeak = fActive
	}
	peak := 1.0 + zSpeed*onPeak

	return fmt.Sprintf("if(lte(on,%f),1.0+(%f*on),%f)", onPeak, zSpeed, peak)
}
