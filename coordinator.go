package main

import (
	"context"
	"log"
	"sync"
	"time"
)

// Coordinator is the production JobStore: one mutex serializes every
// queue and record mutation, which is what guarantees a pending job is
// dequeued at most once across any number of polling workers. No other
// synchronization primitive is needed or wanted here.
type Coordinator struct {
	mu        sync.Mutex
	jobs      map[string]*JobRecord
	pending   []string
	maxJobAge time.Duration
	now       func() time.Time
}

func NewCoordinator(maxJobAge time.Duration) *Coordinator {
	return &Coordinator{
		jobs:      make(map[string]*JobRecord),
		maxJobAge: maxJobAge,
		now:       time.Now,
	}
}

func (c *Coordinator) Add(ctx context.Context, jobID string, payload JobPayload) (*JobRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	rec := &JobRecord{
		JobID:     jobID,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.jobs[jobID] = rec

	for _, id := range c.pending {
		if id == jobID {
			snap := *rec
			return &snap, nil
		}
	}
	c.pending = append(c.pending, jobID)
	snap := *rec
	return &snap, nil
}

func (c *Coordinator) Next(ctx context.Context) (*JobRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.pending) > 0 {
		id := c.pending[0]
		c.pending = c.pending[1:]
		rec, ok := c.jobs[id]
		if !ok {
			// Orphaned pending id. Skip it and keep going; the caller
			// never sees this as an error.
			log.Printf("⚠️  pending id %s has no record, skipping", id)
			continue
		}
		snap := *rec
		return &snap, nil
	}
	return nil, ErrQueueEmpty
}

// Update merges upd into the record for jobID, creating the record if
// none exists (tolerant create: a worker report must never be lost to
// a missing row).
func (c *Coordinator) Update(ctx context.Context, jobID string, upd StatusUpdate) (*JobRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.jobs[jobID]
	if !ok {
		rec = &JobRecord{
			JobID:     jobID,
			Status:    StatusPending,
			CreatedAt: c.now(),
		}
		c.jobs[jobID] = rec
	}
	mergeUpdate(rec, upd)
	rec.UpdatedAt = c.now()
	snap := *rec
	return &snap, nil
}

func (c *Coordinator) Get(ctx context.Context, jobID string) (*JobRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	snap := *rec
	return &snap, nil
}

func (c *Coordinator) Delete(ctx context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.jobs, jobID)
	for i, id := range c.pending {
		if id == jobID {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
	return nil
}

// Sweep deletes every record whose UpdatedAt is older than the
// configured max age and returns how many were removed.
func (c *Coordinator) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.maxJobAge)
	removed := 0
	for id, rec := range c.jobs {
		if rec.UpdatedAt.Before(cutoff) {
			delete(c.jobs, id)
			removed++
		}
	}
	return removed
}

// RunSweeper reschedules Sweep on a fixed ticker until ctx is done.
func (c *Coordinator) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				log.Printf("🧹 Sweep removed %d stale job(s)", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
