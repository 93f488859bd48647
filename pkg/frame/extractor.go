package frame

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// VideoInfo is what ffprobe reports about the first video stream.
type VideoInfo struct {
	Path       string  `json:"path"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	FrameCount int     `json:"frame_count"`
	Duration   float64 `json:"duration_seconds"`
}

// SuggestedFrames returns the first frame, the quartiles and the last frame.
func (v VideoInfo) SuggestedFrames() []int {
	n := v.FrameCount
	if n <= 1 {
		return []int{0}
	}
	frames := []int{0, n / 4, n / 2, 3 * n / 4, n - 1}
	return slices.Compact(frames)
}

// DefaultFrameName is the output name used when the caller gives none.
func DefaultFrameName(videoPath string, frameNumber int) string {
	base := filepath.Base(videoPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_frame_%04d.jpg", name, frameNumber)
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Extractor pulls single frames out of a video with ffmpeg
type Extractor struct {
	FFmpeg  string
	FFprobe string
	logger  *slog.Logger
	run     runFunc
}

// NewExtractor uses ffmpeg and ffprobe from PATH
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		FFmpeg:  "ffmpeg",
		FFprobe: "ffprobe",
		logger:  logger,
		run:     execRun,
	}
}

// Available reports whether both tools can be found
func (e *Extractor) Available() error {
	for _, tool := range []string{e.FFmpeg, e.FFprobe} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("%s not found: %w", tool, err)
		}
	}
	return nil
}

// Probe reads the dimensions, frame rate and length of videoPath
func (e *Extractor) Probe(ctx context.Context, videoPath string) (VideoInfo, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames,duration:format=duration",
		"-of", "json",
		videoPath,
	}
	e.logger.Debug("probing video", "video", videoPath)

	out, err := e.run(ctx, e.FFprobe, args...)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe %s: %w", videoPath, err)
	}
	info, err := parseProbe(out)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe %s: %w", videoPath, err)
	}
	info.Path = videoPath
	return info, nil
}

// ExtractFrame writes frame frameNumber (0-based) of videoPath to outPath
// and returns the path written. An empty outPath uses DefaultFrameName.
func (e *Extractor) ExtractFrame(ctx context.Context, videoPath string, frameNumber int, outPath string) (string, error) {
	if frameNumber < 0 {
		return "", fmt.Errorf("frame number must be >= 0, got %d", frameNumber)
	}
	info, err := e.Probe(ctx, videoPath)
	if err != nil {
		return "", err
	}
	return e.extract(ctx, info, frameNumber, outPath)
}

// ExtractFrameAt extracts the frame shown at the given time.
func (e *Extractor) ExtractFrameAt(ctx context.Context, videoPath string, seconds float64, outPath string) (string, error) {
	if seconds < 0 || math.IsNaN(seconds) {
		return "", fmt.Errorf("time must be >= 0, got %g", seconds)
	}
	info, err := e.Probe(ctx, videoPath)
	if err != nil {
		return "", err
	}
	if info.FPS <= 0 {
		return "", fmt.Errorf("cannot determine frame rate of %s", videoPath)
	}
	return e.extract(ctx, info, int(seconds*info.FPS), outPath)
}

func (e *Extractor) extract(ctx context.Context, info VideoInfo, frameNumber int, outPath string) (string, error) {
	if info.FrameCount > 0 && frameNumber >= info.FrameCount {
		return "", fmt.Errorf("frame %d does not exist, last frame is %d", frameNumber, info.FrameCount-1)
	}
	if info.FPS <= 0 {
		return "", fmt.Errorf("cannot determine frame rate of %s", info.Path)
	}
	if outPath == "" {
		outPath = DefaultFrameName(info.Path, frameNumber)
	}

	ts := float64(frameNumber) / info.FPS
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", info.Path,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	}
	e.logger.Info("extracting frame",
		"video", info.Path,
		"frame", frameNumber,
		"time", ts,
		"output", outPath,
	)

	if out, err := e.run(ctx, e.FFmpeg, args...); err != nil {
		e.logger.Error("ffmpeg failed", "error", err, "ffmpeg_output", string(out))
		return "", fmt.Errorf("ffmpeg failed extracting frame %d: %w", frameNumber, err)
	}
	return outPath, nil
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbe(data []byte) (VideoInfo, error) {
	var p probeOutput
	if err := json.Unmarshal(data, &p); err != nil {
		return VideoInfo{}, fmt.Errorf("invalid ffprobe output: %w", err)
	}
	if len(p.Streams) == 0 {
		return VideoInfo{}, errors.New("no video stream")
	}
	s := p.Streams[0]

	fps := parseRate(s.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(s.RFrameRate)
	}

	duration, _ := strconv.ParseFloat(s.Duration, 64)
	if duration <= 0 {
		duration, _ = strconv.ParseFloat(p.Format.Duration, 64)
	}

	frames, _ := strconv.Atoi(s.NbFrames)
	if frames <= 0 && fps > 0 && duration > 0 {
		frames = int(math.Round(duration * fps))
	}
	if duration <= 0 && fps > 0 {
		duration = float64(frames) / fps
	}

	return VideoInfo{
		Width:      s.Width,
		Height:     s.Height,
		FPS:        fps,
		FrameCount: frames,
		Duration:   duration,
	}, nil
}

// parseRate parses ffprobe rates such as "30000/1001" or "25".
func parseRate(r string) float64 {
	num, den, ok := strings.Cut(r, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stderr.Bytes(), fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}
