package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// httpNarrator calls the external narration-synthesis engine: POST the
// script, stream the returned audio to outPath, then measure its
// duration with ffprobe.
type httpNarrator struct {
	endpoint string
	token    string
	http     *http.Client
	probe    func(ctx context.Context, path string) (time.Duration, error)
}

func newHTTPNarrator(endpoint, token string) *httpNarrator {
	return &httpNarrator{
		endpoint: endpoint,
		token:    token,
		http:     &http.Client{Timeout: 5 * time.Minute},
		probe:    ffprobeDuration,
	}
}

func (n *httpNarrator) Synthesize(ctx context.Context, script, outPath string) (time.Duration, error) {
	body, err := json.Marshal(map[string]string{"script": script})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}
	resp, err := n.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("narration request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("narration request: unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return 0, fmt.Errorf("write narration audio: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, err
	}
	return n.probe(ctx, outPath)
}

// httpRenderer calls the external slide renderer: POST the markdown,
// write the returned still image to outPath.
type httpRenderer struct {
	endpoint string
	token    string
	http     *http.Client
}

func newHTTPRenderer(endpoint, token string) *httpRenderer {
	return &httpRenderer{
		endpoint: endpoint,
		token:    token,
		http:     &http.Client{Timeout: 2 * time.Minute},
	}
}

func (r *httpRenderer) Render(ctx context.Context, markdown, outPath string) error {
	body, err := json.Marshal(map[string]string{"markdown": markdown})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("render request: unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("write slide image: %w", err)
	}
	return out.Close()
}
