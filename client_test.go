package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestQueueClientStatusMapping checks the facade maps transport
// responses to the typed results the worker branches on.
func TestQueueClientStatusMapping(t *testing.T) {
	var nextStatus int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		switch r.URL.Path {
		case "/internal/queue/next":
			if nextStatus == http.StatusOK {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(JobRecord{JobID: "job-1", Status: StatusPending})
				return
			}
			w.WriteHeader(nextStatus)
		case "/jobs/missing":
			http.Error(w, "Job not found", http.StatusNotFound)
		case "/jobs/job-1":
			json.NewEncoder(w).Encode(JobRecord{JobID: "job-1", Status: StatusCompleted})
		case "/internal/jobs/job-1/status":
			json.NewEncoder(w).Encode(map[string]bool{"success": true})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := NewQueueClient(ts.URL, "tok")
	ctx := context.Background()

	nextStatus = http.StatusNoContent
	if _, err := c.GetJob(ctx); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("204 err = %v, want ErrQueueEmpty", err)
	}

	nextStatus = http.StatusTooManyRequests
	if _, err := c.GetJob(ctx); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("429 err = %v, want ErrRateLimited", err)
	}

	nextStatus = http.StatusOK
	rec, err := c.GetJob(ctx)
	if err != nil {
		t.Fatalf("200 err = %v", err)
	}
	if rec.JobID != "job-1" {
		t.Fatalf("record = %+v", rec)
	}

	if _, err := c.GetJobInfo(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("404 err = %v, want ErrJobNotFound", err)
	}
	if _, err := c.GetJobInfo(ctx, "job-1"); err != nil {
		t.Fatalf("info err = %v", err)
	}

	if err := c.UpdateJobStatus(ctx, "job-1", StatusUpdate{Status: StatusProcessing}); err != nil {
		t.Fatalf("update err = %v", err)
	}
	if err := c.CleanupOldJobs(ctx); err != nil {
		t.Fatalf("cleanup err = %v", err)
	}
}

// TestQueueClientAddJob checks the enqueue round trip returns the
// assigned job id.
func TestQueueClientAddJob(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/queue/add" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req addRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "jobId": req.JobID})
	}))
	defer ts.Close()

	c := NewQueueClient(ts.URL, "")
	id, err := c.AddJob(context.Background(), "job-5", JobPayload{Slides: []Slide{{ID: "a"}}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if id != "job-5" {
		t.Fatalf("jobId = %s", id)
	}
}
