package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeNarrator struct {
	failOn   string // script substring that triggers a failure
	duration time.Duration
	calls    []string
}

func (n *fakeNarrator) Synthesize(ctx context.Context, script, outPath string) (time.Duration, error) {
	n.calls = append(n.calls, script)
	if n.failOn != "" && strings.Contains(script, n.failOn) {
		return 0, errors.New("synthesis backend unavailable")
	}
	return n.duration, nil
}

type fakeRenderer struct {
	calls []string
	err   error
}

func (r *fakeRenderer) Render(ctx context.Context, markdown, outPath string) error {
	r.calls = append(r.calls, markdown)
	return r.err
}

type fakeEncoder struct {
	titleCards []string
	clips      []time.Duration
	merged     []string
	concatGot  []string
	concatErr  error
	stillErr   error
}

func (e *fakeEncoder) TitleCard(ctx context.Context, title, outPath string) error {
	e.titleCards = append(e.titleCards, title)
	return nil
}

func (e *fakeEncoder) StillToClip(ctx context.Context, imagePath string, d time.Duration, outPath string) error {
	if e.stillErr != nil {
		return e.stillErr
	}
	e.clips = append(e.clips, d)
	return nil
}

func (e *fakeEncoder) MergeAudio(ctx context.Context, clipPath, audioPath, outPath string) error {
	e.merged = append(e.merged, outPath)
	return nil
}

func (e *fakeEncoder) Concat(ctx context.Context, clipPaths []string, outPath string) error {
	e.concatGot = append([]string(nil), clipPaths...)
	return e.concatErr
}

type fakeObjectStore struct {
	keys []string
	err  error
}

func (o *fakeObjectStore) Put(ctx context.Context, key, filePath string) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	o.keys = append(o.keys, key)
	return "https://cdn/" + key, nil
}

func newTestPipeline(t *testing.T, n Narrator, r SlideRenderer, e Encoder, o ObjectStore) *Pipeline {
	t.Helper()
	p := NewPipeline(n, r, e, o, t.TempDir())
	return p
}

func threeSlideJob() *JobRecord {
	return &JobRecord{
		JobID: "job-1",
		Payload: JobPayload{Slides: []Slide{
			{ID: "a", Title: "One", Markdown: "# one", NarrationScript: "first"},
			{ID: "b", Title: "Two", Markdown: "# two", NarrationScript: "second"},
			{ID: "c", Title: "Three", Markdown: "# three", NarrationScript: "third"},
		}},
	}
}

// TestPipelineSkipsFailingSlide checks a mid-job synthesis failure
// drops only that slide: the final video concatenates the others and
// the job still completes.
func TestPipelineSkipsFailingSlide(t *testing.T) {
	narrator := &fakeNarrator{failOn: "second", duration: 3 * time.Second}
	encoder := &fakeEncoder{}
	objects := &fakeObjectStore{}
	p := newTestPipeline(t, narrator, &fakeRenderer{}, encoder, objects)

	url, err := p.Process(context.Background(), threeSlideJob(), func(int, string) {})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if url != "https://cdn/jobs/job-1/final.mp4" {
		t.Fatalf("final url = %s", url)
	}

	if len(encoder.concatGot) != 2 {
		t.Fatalf("concat received %d clips, want 2", len(encoder.concatGot))
	}
	for _, clip := range encoder.concatGot {
		if strings.Contains(filepath.Base(clip), "slide-001") {
			t.Fatalf("failed slide's clip reached concat: %v", encoder.concatGot)
		}
	}
	if !strings.Contains(filepath.Base(encoder.concatGot[0]), "slide-000") ||
		!strings.Contains(filepath.Base(encoder.concatGot[1]), "slide-002") {
		t.Fatalf("concat clips out of order: %v", encoder.concatGot)
	}
}

// TestPipelineZeroClipsFails checks the job fails when no slide
// produces a usable clip.
func TestPipelineZeroClipsFails(t *testing.T) {
	encoder := &fakeEncoder{stillErr: errors.New("encoder exploded")}
	p := newTestPipeline(t, &fakeNarrator{duration: time.Second}, &fakeRenderer{}, encoder, &fakeObjectStore{})

	_, err := p.Process(context.Background(), threeSlideJob(), func(int, string) {})
	if err == nil {
		t.Fatal("expected failure with zero clips")
	}
	if len(encoder.concatGot) != 0 {
		t.Fatal("concat ran despite zero clips")
	}
}

// TestPipelineProgressSteps checks progress advances per slide and
// lands on 100 after the last one.
func TestPipelineProgressSteps(t *testing.T) {
	p := newTestPipeline(t, &fakeNarrator{duration: time.Second}, &fakeRenderer{}, &fakeEncoder{}, &fakeObjectStore{})

	var progress []int
	if _, err := p.Process(context.Background(), threeSlideJob(), func(pct int, _ string) {
		progress = append(progress, pct)
	}); err != nil {
		t.Fatalf("process: %v", err)
	}

	want := []int{33, 66, 100}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("progress = %v, want %v", progress, want)
		}
	}
}

// TestPipelinePlaceholderAndDefaultDuration checks a slide with no
// markdown gets a title card and no narration means the default clip
// duration with no merge step.
func TestPipelinePlaceholderAndDefaultDuration(t *testing.T) {
	narrator := &fakeNarrator{duration: 9 * time.Second}
	renderer := &fakeRenderer{}
	encoder := &fakeEncoder{}
	p := newTestPipeline(t, narrator, renderer, encoder, &fakeObjectStore{})

	jobRec := &JobRecord{
		JobID: "job-2",
		Payload: JobPayload{Slides: []Slide{
			{ID: "bare", Title: "Bare Slide"},
		}},
	}
	if _, err := p.Process(context.Background(), jobRec, func(int, string) {}); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(narrator.calls) != 0 {
		t.Fatal("narrator called for a slide with no script")
	}
	if len(renderer.calls) != 0 {
		t.Fatal("renderer called for a slide with no markdown")
	}
	if len(encoder.titleCards) != 1 || encoder.titleCards[0] != "Bare Slide" {
		t.Fatalf("title cards = %v", encoder.titleCards)
	}
	if len(encoder.clips) != 1 || encoder.clips[0] != DefaultSlideDuration {
		t.Fatalf("clip durations = %v, want default", encoder.clips)
	}
	if len(encoder.merged) != 0 {
		t.Fatal("merge ran without narration audio")
	}
}

// TestPipelineArtifactKeys checks uploads use jobs/{jobId}/{name}.
func TestPipelineArtifactKeys(t *testing.T) {
	objects := &fakeObjectStore{}
	p := newTestPipeline(t, &fakeNarrator{duration: time.Second}, &fakeRenderer{}, &fakeEncoder{}, objects)

	jobRec := &JobRecord{
		JobID: "job-3",
		Payload: JobPayload{Slides: []Slide{
			{ID: "a", Title: "A", Markdown: "# a", NarrationScript: "hello"},
		}},
	}
	if _, err := p.Process(context.Background(), jobRec, func(int, string) {}); err != nil {
		t.Fatalf("process: %v", err)
	}

	want := []string{
		"jobs/job-3/slide-000-silent.mp4",
		"jobs/job-3/slide-000.mp4",
		"jobs/job-3/final.mp4",
	}
	if len(objects.keys) != len(want) {
		t.Fatalf("uploaded keys = %v, want %v", objects.keys, want)
	}
	for i := range want {
		if objects.keys[i] != want[i] {
			t.Fatalf("uploaded keys = %v, want %v", objects.keys, want)
		}
	}
}
