package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ivlev/script2video/internal/config"
)

// ConcatParams drive the final assembly of scene segments.
type ConcatParams struct {
	// SegmentDurations are the real lengths of the encoded segments.
	SegmentDurations []float64
	FadeDuration     float64
	TransitionType   string
	VideoEncoder     string
	Quality          int
}

type VideoEncoder interface {
	EncodeSegment(ctx context.Context, img image.Image, videoPath string, params config.SegmentParams, encoderName string, quality int) error
	Concatenate(ctx context.Context, segmentPaths []string, finalPath string, tmpDir string, params ConcatParams) error
}

type FFmpegEncoder struct{}

func (e *FFmpegEncoder) EncodeSegment(
	ctx context.Context,
	img image.Image,
	videoPath string,
	params config.SegmentParams,
	encoderName string,
	quality int,
) error {
	inputW, inputH := img.Bounds().Dx(), img.Bounds().Dy()

	args := BuildSegmentArgs(inputW, inputH, videoPath, params, encoderName, quality)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe error: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w", err)
	}

	// Один кадр raw RGBA, zoompan размножит его на всю длительность
	if err := writeRawRGBA(stdin, img); err != nil {
		stdin.Close()
		cmd.Wait()
		return fmt.Errorf("write raw error: %w", err)
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w, output: %s", err, tail(out.String(), 2000))
	}
	return nil
}

// BuildSegmentArgs returns the ffmpeg arguments that encode one raw frame
// read from stdin into a segment of params.Duration seconds.
func BuildSegmentArgs(
	inputW, inputH int,
	videoPath string,
	params config.SegmentParams,
	encoderName string,
	quality int,
) []string {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", inputW, inputH),
		"-i", "-",
		"-vf", params.Filter,
		"-t", fmt.Sprintf("%f", params.Duration),
		"-r", fmt.Sprintf("%d", params.FPS),
		"-pix_fmt", "yuv420p",
		"-c:v", encoderName,
	}
	args = append(args, qualityArgs(encoderName, quality)...)
	args = append(args, videoPath)
	return args
}

func qualityArgs(encoderName string, quality int) []string {
	switch encoderName {
	case "h264_videotoolbox":
		// VideoToolbox не везде понимает -q:v, поэтому битрейт
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", quality)}
	default: // libx264
		return []string{"-crf", fmt.Sprintf("%d", quality), "-preset", "medium"}
	}
}

func writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(bounds)
		draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}

func usesTransition(params ConcatParams, n int) bool {
	return params.TransitionType != "" && params.TransitionType != "none" && n > 1 && params.FadeDuration > 0
}

func (e *FFmpegEncoder) Concatenate(ctx context.Context, segmentPaths []string, finalPath string, tmpDir string, params ConcatParams) error {
	if len(segmentPaths) == 0 {
		return fmt.Errorf("no segments to concatenate")
	}

	if !usesTransition(params, len(segmentPaths)) {
		concatFilePath := filepath.Join(tmpDir, "inputs.txt")
		f, err := os.Create(concatFilePath)
		if err != nil {
			return err
		}
		for _, p := range segmentPaths {
			absPath, _ := filepath.Abs(p)
			fmt.Fprintf(f, "file '%s'\n", absPath)
		}
		if err := f.Close(); err != nil {
			return err
		}

		cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
			"-f", "concat", "-safe", "0", "-i", concatFilePath,
			"-c", "copy", "-f", "mp4", finalPath,
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("ffmpeg concat error: %v, output: %s", err, tail(string(out), 2000))
		}
		return nil
	}

	args := BuildXfadeArgs(segmentPaths, finalPath, params)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg xfade error: %v, output: %s", err, tail(string(out), 2000))
	}
	return nil
}

// BuildXfadeArgs chains the segments with xfade. Transition k starts at
// the sum of the first k segment lengths minus k fades.
func BuildXfadeArgs(segmentPaths []string, finalPath string, params ConcatParams) []string {
	args := []string{"-y"}
	for _, p := range segmentPaths {
		args = append(args, "-i", p)
	}

	var filterGraph strings.Builder
	lastOut := "[0:v]"
	currentOffset := 0.0
	for i := 1; i < len(segmentPaths); i++ {
		duration := 0.0
		if i-1 < len(params.SegmentDurations) {
			duration = params.SegmentDurations[i-1]
		}
		currentOffset += duration - params.FadeDuration

		outName := fmt.Sprintf("[v%d]", i)
		fmt.Fprintf(&filterGraph, "%s[%d:v]xfade=transition=%s:duration=%f:offset=%f%s;",
			lastOut, i, params.TransitionType, params.FadeDuration, currentOffset, outName)
		lastOut = outName
	}

	args = append(args, "-filter_complex", strings.TrimSuffix(filterGraph.String(), ";"))
	args = append(args, "-map", lastOut)
	args = append(args, "-c:v", params.VideoEncoder, "-pix_fmt", "yuv420p")
	args = append(args, qualityArgs(params.VideoEncoder, params.Quality)...)
	args = append(args, "-f", "mp4", finalPath)
	return args
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
