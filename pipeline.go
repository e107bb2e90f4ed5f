package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// External collaborators of the pipeline. Production wiring lives in
// services.go, media_tools.go, storage.go; tests substitute fakes.

// Narrator synthesizes narration audio for a script, writes it to
// outPath, and returns the measured audio duration.
type Narrator interface {
	Synthesize(ctx context.Context, script, outPath string) (time.Duration, error)
}

// SlideRenderer renders slide markdown to a still image at outPath.
type SlideRenderer interface {
	Render(ctx context.Context, markdown, outPath string) error
}

// Encoder covers every video operation the pipeline needs.
type Encoder interface {
	// TitleCard writes a placeholder still for slides with no markdown.
	TitleCard(ctx context.Context, title, outPath string) error
	// StillToClip builds a fixed-duration silent clip from one image.
	StillToClip(ctx context.Context, imagePath string, d time.Duration, outPath string) error
	// MergeAudio muxes narration audio onto a silent clip.
	MergeAudio(ctx context.Context, clipPath, audioPath, outPath string) error
	// Concat joins the ordered clips into one video.
	Concat(ctx context.Context, clipPaths []string, outPath string) error
}

// ObjectStore uploads an artifact and returns its public location.
type ObjectStore interface {
	Put(ctx context.Context, key, filePath string) (string, error)
}

// Pipeline turns one job's slides into per-slide clips and a final
// concatenated video.
type Pipeline struct {
	narrator      Narrator
	renderer      SlideRenderer
	encoder       Encoder
	objects       ObjectStore
	workDir       string
	slideDuration time.Duration
}

func NewPipeline(narrator Narrator, renderer SlideRenderer, encoder Encoder, objects ObjectStore, workDir string) *Pipeline {
	return &Pipeline{
		narrator:      narrator,
		renderer:      renderer,
		encoder:       encoder,
		objects:       objects,
		workDir:       workDir,
		slideDuration: DefaultSlideDuration,
	}
}

func artifactKey(jobID, name string) string {
	return fmt.Sprintf("jobs/%s/%s", jobID, name)
}

// Process runs the per-slide stages in order. A failing slide is
// logged and skipped; the job only fails when zero slides produce a
// clip or the final concatenation cannot be built. The temp working
// directory is removed on success and failure alike.
func (p *Pipeline) Process(ctx context.Context, job *JobRecord, report func(progress int, message string)) (string, error) {
	tmpDir, err := os.MkdirTemp(p.workDir, "slidecast-"+job.JobID+"-")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	slides := job.Payload.Slides
	total := len(slides)
	var clips []string
	for i, slide := range slides {
		clip, err := p.processSlide(ctx, job.JobID, i, slide, tmpDir)
		if err != nil {
			log.Printf("⚠️  Job %s slide %d (%s) failed, skipping: %v", job.JobID, i, slide.ID, err)
		} else {
			clips = append(clips, clip)
		}
		report((i+1)*100/total, fmt.Sprintf("Processed slide %d of %d", i+1, total))
	}

	if len(clips) == 0 {
		return "", errors.New("no slides produced a usable clip")
	}

	finalPath := filepath.Join(tmpDir, "final.mp4")
	if err := p.encoder.Concat(ctx, clips, finalPath); err != nil {
		return "", fmt.Errorf("concatenate clips: %w", err)
	}
	url, err := p.objects.Put(ctx, artifactKey(job.JobID, "final.mp4"), finalPath)
	if err != nil {
		return "", fmt.Errorf("upload final video: %w", err)
	}
	return url, nil
}

func (p *Pipeline) processSlide(ctx context.Context, jobID string, idx int, slide Slide, dir string) (string, error) {
	base := fmt.Sprintf("slide-%03d", idx)

	// Narration first: its duration decides the clip length.
	duration := p.slideDuration
	audioPath := ""
	if strings.TrimSpace(slide.NarrationScript) != "" {
		audioPath = filepath.Join(dir, base+".mp3")
		d, err := p.narrator.Synthesize(ctx, slide.NarrationScript, audioPath)
		if err != nil {
			return "", fmt.Errorf("synthesize narration: %w", err)
		}
		duration = d
	}

	stillPath := filepath.Join(dir, base+".png")
	if strings.TrimSpace(slide.Markdown) != "" {
		if err := p.renderer.Render(ctx, slide.Markdown, stillPath); err != nil {
			return "", fmt.Errorf("render slide: %w", err)
		}
	} else {
		if err := p.encoder.TitleCard(ctx, slide.Title, stillPath); err != nil {
			return "", fmt.Errorf("render title card: %w", err)
		}
	}

	silentPath := filepath.Join(dir, base+"-silent.mp4")
	if err := p.encoder.StillToClip(ctx, stillPath, duration, silentPath); err != nil {
		return "", fmt.Errorf("build silent clip: %w", err)
	}
	if _, err := p.objects.Put(ctx, artifactKey(jobID, base+"-silent.mp4"), silentPath); err != nil {
		return "", fmt.Errorf("upload silent clip: %w", err)
	}

	if audioPath == "" {
		return silentPath, nil
	}

	mergedPath := filepath.Join(dir, base+".mp4")
	if err := p.encoder.MergeAudio(ctx, silentPath, audioPath, mergedPath); err != nil {
		return "", fmt.Errorf("merge narration: %w", err)
	}
	if _, err := p.objects.Put(ctx, artifactKey(jobID, base+".mp4"), mergedPath); err != nil {
		return "", fmt.Errorf("upload slide clip: %w", err)
	}
	return mergedPath, nil
}
