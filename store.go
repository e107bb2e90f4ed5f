package main

import (
	"context"
	"errors"
)

var (
	// ErrQueueEmpty means no pending job was available.
	ErrQueueEmpty = errors.New("queue empty")
	// ErrJobNotFound means no record exists for the requested job id.
	ErrJobNotFound = errors.New("job not found")
	// ErrRateLimited means the coordinator asked the caller to back off.
	ErrRateLimited = errors.New("rate limited")
)

// JobStore is the queue backend behind the coordinator's HTTP surface.
//
// Two implementations exist: Coordinator (serialized in-memory store,
// the production variant) and redisStore (development-only key-value
// store whose pending list is updated non-atomically — unsafe when
// more than one worker dequeues concurrently).
type JobStore interface {
	// Add writes a new pending record and enqueues its id. Adding an
	// id already in the pending list is a no-op for the list.
	Add(ctx context.Context, jobID string, payload JobPayload) (*JobRecord, error)
	// Next pops the head of the pending list. Returns ErrQueueEmpty
	// when nothing is pending.
	Next(ctx context.Context) (*JobRecord, error)
	// Update merges upd into the record, creating one if absent, and
	// returns the merged snapshot.
	Update(ctx context.Context, jobID string, upd StatusUpdate) (*JobRecord, error)
	// Get returns the record or ErrJobNotFound.
	Get(ctx context.Context, jobID string) (*JobRecord, error)
	// Delete removes the record. Deleting an unknown id is not an error.
	Delete(ctx context.Context, jobID string) error
}

// mergeUpdate applies the provided fields of upd onto rec.
func mergeUpdate(rec *JobRecord, upd StatusUpdate) {
	if upd.Status != "" {
		rec.Status = upd.Status
	}
	if upd.Progress != nil {
		p := *upd.Progress
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		rec.Progress = p
	}
	if upd.Message != "" {
		rec.Message = upd.Message
	}
	if upd.VideoURL != "" {
		rec.VideoURL = upd.VideoURL
	}
}
