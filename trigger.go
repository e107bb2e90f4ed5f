package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"
)

// ComputeTrigger fires a best-effort wake call to the compute
// backend's control endpoint when a job is enqueued. Job correctness
// never depends on this call: a worker started by any other means
// will observe the job through polling. Every failure is logged only.
type ComputeTrigger struct {
	endpoint string
	token    string
	http     *http.Client
}

func NewComputeTrigger(endpoint, token string) *ComputeTrigger {
	if endpoint == "" {
		return nil
	}
	return &ComputeTrigger{
		endpoint: endpoint,
		token:    token,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *ComputeTrigger) Wake(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader("{}"))
	if err != nil {
		log.Printf("⚠️  compute wake: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	resp, err := t.http.Do(req)
	if err != nil {
		log.Printf("⚠️  compute wake: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("⚠️  compute wake: unexpected status %d", resp.StatusCode)
		return
	}
	log.Println("✅ Compute wake sent")
}
