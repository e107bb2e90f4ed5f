package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// server wires the queue backend, the subscriber hub, and the compute
// trigger behind the coordinator's HTTP surface.
type server struct {
	store   JobStore
	hub     *Hub
	trigger *ComputeTrigger
	limiter *rate.Limiter
	token   string
	started time.Time

	// Metrics
	enqueuedJobs  int64
	completedJobs int64
	failedJobs    int64
}

func newServer(store JobStore, hub *Hub, trigger *ComputeTrigger, token string) *server {
	return &server{
		store:   store,
		hub:     hub,
		trigger: trigger,
		limiter: rate.NewLimiter(rate.Limit(RequestsPerSecond), BurstSize),
		token:   token,
		started: time.Now(),
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/queue/add", s.handleAdd)
	mux.HandleFunc("/queue/next", s.handleNext)
	mux.HandleFunc("/update/", s.handleUpdate)
	mux.HandleFunc("/jobs/", s.handleJob)
	mux.HandleFunc("/internal/queue/next",
		rateLimitMiddleware(s.limiter, bearerAuthMiddleware(s.token, s.handleNext)))
	mux.HandleFunc("/internal/jobs/",
		rateLimitMiddleware(s.limiter, bearerAuthMiddleware(s.token, s.handleInternalStatus)))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.hub.handleWS(s.store))
	return mux
}

type addRequest struct {
	JobID string     `json:"jobId"`
	Data  JobPayload `json:"data"`
}

// handleAdd enqueues a new job and fires the best-effort compute wake.
func (s *server) handleAdd(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(req.Data.Slides) == 0 {
		http.Error(w, "Missing slides", http.StatusBadRequest)
		return
	}
	if req.JobID == "" {
		req.JobID = uuid.New().String()
	}

	rec, err := s.store.Add(r.Context(), req.JobID, req.Data)
	if err != nil {
		log.Printf("⚠️  add job %s: %v", req.JobID, err)
		http.Error(w, "Failed to enqueue job", http.StatusInternalServerError)
		return
	}
	atomic.AddInt64(&s.enqueuedJobs, 1)
	log.Printf("Job %s enqueued with %d slide(s)", rec.JobID, len(rec.Payload.Slides))

	// Latency optimization only: the worker will observe the job by
	// polling even if the wake call never lands.
	if s.trigger != nil {
		go s.trigger.Wake(context.Background())
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"jobId":   rec.JobID,
	})
}

// handleNext pops the next pending job. 204 means the queue is empty.
func (s *server) handleNext(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodGet {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	rec, err := s.store.Next(r.Context())
	if errors.Is(err, ErrQueueEmpty) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		log.Printf("⚠️  next: %v", err)
		http.Error(w, "Queue backend error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// handleUpdate merges a status report into the record and fans it out
// to live subscribers.
func (s *server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	jobID := filepath.Base(r.URL.Path)
	if jobID == "" || jobID == "update" {
		http.Error(w, "Missing job ID", http.StatusBadRequest)
		return
	}
	s.applyUpdate(w, r, jobID)
}

// handleInternalStatus is the worker-facing status report:
// POST /internal/jobs/{id}/status.
func (s *server) handleInternalStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	dir, last := filepath.Split(r.URL.Path)
	if last != "status" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	jobID := filepath.Base(filepath.Clean(dir))
	if jobID == "" || jobID == "jobs" {
		http.Error(w, "Missing job ID", http.StatusBadRequest)
		return
	}
	s.applyUpdate(w, r, jobID)
}

func (s *server) applyUpdate(w http.ResponseWriter, r *http.Request, jobID string) {
	var upd StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	rec, err := s.store.Update(r.Context(), jobID, upd)
	if err != nil {
		log.Printf("⚠️  update job %s: %v", jobID, err)
		http.Error(w, "Queue backend error", http.StatusInternalServerError)
		return
	}
	log.Printf("Job %s status updated to %s (%d%%)", jobID, rec.Status, rec.Progress)

	switch rec.Status {
	case StatusCompleted:
		atomic.AddInt64(&s.completedJobs, 1)
	case StatusFailed:
		atomic.AddInt64(&s.failedJobs, 1)
	}

	s.hub.Broadcast(rec)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// handleJob serves GET (lookup) and DELETE for /jobs/{id}.
func (s *server) handleJob(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	jobID := filepath.Base(r.URL.Path)
	if jobID == "" || jobID == "jobs" {
		http.Error(w, "Missing job ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, err := s.store.Get(r.Context(), jobID)
		if errors.Is(err, ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "Queue backend error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	case http.MethodDelete:
		if err := s.store.Delete(r.Context(), jobID); err != nil {
			http.Error(w, "Queue backend error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"deleted": jobID})
	default:
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	health := map[string]interface{}{
		"status":         "healthy",
		"enqueued_jobs":  atomic.LoadInt64(&s.enqueuedJobs),
		"completed_jobs": atomic.LoadInt64(&s.completedJobs),
		"failed_jobs":    atomic.LoadInt64(&s.failedJobs),
		"uptime":         time.Since(s.started).String(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
