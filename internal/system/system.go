package system

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// InitResourceLimits пытается увеличить лимит открытых файлов: каждый
// сегмент сцены держит свой файл до финальной склейки.
func InitResourceLimits(logger zerolog.Logger) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn().Err(err).Msg("cannot read open file limit")
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn().Err(err).Msg("cannot raise open file limit")
		return
	}
	logger.Debug().Uint64("limit", uint64(rLimit.Cur)).Msg("open file limit raised")
}

// DefaultWorkers picks the scene worker count: physical cores, reduced
// when free memory cannot hold one full-size frame buffer per worker.
func DefaultWorkers(width, height int) int {
	n, err := cpu.Counts(false)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}

	vm, err := mem.VirtualMemory()
	if err == nil && width > 0 && height > 0 {
		// frame RGBA + ffmpeg working set, roughly 8x the raw frame
		perWorker := uint64(width) * uint64(height) * 4 * 8
		if fit := int(vm.Available / perWorker); fit < n {
			n = fit
		}
	}
	if n < 1 {
		n = 1
	}
	return n
}

// HostReport describes the machine for the performance report.
type HostReport struct {
	LogicalCPUs  int
	MemTotalMB   uint64
	MemUsedPct   float64
	MemAvailable uint64
}

func Host() HostReport {
	var r HostReport
	if n, err := cpu.Counts(true); err == nil {
		r.LogicalCPUs = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		r.MemTotalMB = vm.Total / (1 << 20)
		r.MemUsedPct = vm.UsedPercent
		r.MemAvailable = vm.Available
	}
	return r
}

// GetBestH264Encoder returns the first hardware encoder ffmpeg offers,
// falling back to libx264.
func GetBestH264Encoder(ctx context.Context) string {
	// Приоритеты: VideoToolbox (macOS), NVENC (NVIDIA), затем libx264
	out, err := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(string(out), name) {
			return name
		}
	}
	return "libx264"
}

// DefaultQuality returns the quality value each encoder starts from.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75 // битрейт = Q*100 кбит/с
	case "h264_nvenc":
		return 28
	default:
		return 23 // CRF x264
	}
}

// ProbeDuration returns the container duration of a media file via ffprobe.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(out)))
	}

	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &duration); err != nil {
		return 0, err
	}
	return duration, nil
}

// FFmpegAvailable reports whether ffmpeg is on PATH.
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}
