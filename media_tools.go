package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ffmpegEncoder implements Encoder by shelling out to ffmpeg.
type ffmpegEncoder struct{}

func runFFmpeg(ctx context.Context, args ...string) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	full := append([]string{"-y", "-loglevel", "error", "-nostdin"}, args...)
	cmd := exec.CommandContext(ctxTimeout, "ffmpeg", full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg error: %v | %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (ffmpegEncoder) TitleCard(ctx context.Context, title, outPath string) error {
	// drawtext treats \ ' : % as control characters
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `%`, `\%`).Replace(title)
	return runFFmpeg(ctx,
		"-f", "lavfi",
		"-i", "color=c=0x1f2430:s=1280x720:d=1",
		"-vf", fmt.Sprintf("drawtext=text='%s':fontcolor=white:fontsize=48:x=(w-text_w)/2:y=(h-text_h)/2", escaped),
		"-frames:v", "1",
		outPath,
	)
}

func (ffmpegEncoder) StillToClip(ctx context.Context, imagePath string, d time.Duration, outPath string) error {
	return runFFmpeg(ctx,
		"-loop", "1",
		"-i", imagePath,
		"-t", strconv.FormatFloat(d.Seconds(), 'f', 2, 64),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-vf", "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2",
		"-r", "30",
		outPath,
	)
}

func (ffmpegEncoder) MergeAudio(ctx context.Context, clipPath, audioPath, outPath string) error {
	return runFFmpeg(ctx,
		"-i", clipPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		outPath,
	)
}

func (ffmpegEncoder) Concat(ctx context.Context, clipPaths []string, outPath string) error {
	listPath := filepath.Join(filepath.Dir(outPath), "concat.txt")
	var list strings.Builder
	for _, clip := range clipPaths {
		fmt.Fprintf(&list, "file '%s'\n", clip)
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return runFFmpeg(ctx,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	)
}

// ffprobeDuration measures the duration of a media file.
func ffprobeDuration(ctx context.Context, path string) (time.Duration, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctxTimeout, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe error: %v | %s", err, strings.TrimSpace(stderr.String()))
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe parse error: %w", err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
