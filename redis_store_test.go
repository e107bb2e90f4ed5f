package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// TestRedisRecordShape checks the JSON a record is stored under
// survives a round trip with every field intact, without needing a
// live redis.
func TestRedisRecordShape(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	rec := &JobRecord{
		JobID: "job-1",
		Payload: JobPayload{Slides: []Slide{
			{ID: "a", Title: "A", Markdown: "# a", NarrationScript: "hello"},
			{ID: "b", Title: "B"},
		}},
		Status:    StatusProcessing,
		Progress:  40,
		Message:   "slide 1 of 2",
		VideoURL:  "https://cdn/jobs/job-1/final.mp4",
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got JobRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.JobID != rec.JobID || got.Status != rec.Status || got.Progress != rec.Progress {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if len(got.Payload.Slides) != 2 || got.Payload.Slides[0].NarrationScript != "hello" {
		t.Fatalf("payload not preserved: %+v", got.Payload)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) || !got.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Fatalf("timestamps not preserved: %+v", got)
	}

	if key := redisJobKey("job-1"); key != "job:job-1" {
		t.Fatalf("job key = %s", key)
	}
}

// newTestRedisStore connects to the local dev redis or skips, and
// removes every key the test writes.
func newTestRedisStore(t *testing.T) *redisStore {
	t.Helper()
	s, err := newRedisStore(DefaultRedisAddr, DefaultRedisPassword, DefaultRedisDB, time.Minute)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	ctx := context.Background()
	// The dev backend keeps one shared pending list; start clean and
	// leave nothing behind.
	s.client.Del(ctx, redisPendingKey)
	t.Cleanup(func() {
		s.client.Del(ctx, redisPendingKey)
		s.client.Close()
	})
	return s
}

func redisTestJob(t *testing.T, s *redisStore, id string) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.Add(ctx, id, testPayload(1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	t.Cleanup(func() { s.client.Del(ctx, redisJobKey(id)) })
}

// TestRedisStoreAddNextRoundTrip mirrors the coordinator contract on
// the dev backend: added jobs come back in order, then the queue
// reports empty.
func TestRedisStoreAddNextRoundTrip(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	redisTestJob(t, s, "rjob-1")
	redisTestJob(t, s, "rjob-2")

	rec, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if rec.JobID != "rjob-1" || rec.Status != StatusPending {
		t.Fatalf("first dequeue = %+v", rec)
	}
	if rec, err = s.Next(ctx); err != nil || rec.JobID != "rjob-2" {
		t.Fatalf("second dequeue = %+v, err %v", rec, err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("drained queue err = %v, want ErrQueueEmpty", err)
	}
}

// TestRedisStoreUpdateTolerantCreate checks a report for an unknown
// id creates a retrievable record, like the coordinator does.
func TestRedisStoreUpdateTolerantCreate(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	t.Cleanup(func() { s.client.Del(ctx, redisJobKey("rghost")) })

	p := 70
	rec, err := s.Update(ctx, "rghost", StatusUpdate{Status: StatusProcessing, Progress: &p})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Status != StatusProcessing || rec.Progress != 70 {
		t.Fatalf("merged record = %+v", rec)
	}

	got, err := s.Get(ctx, "rghost")
	if err != nil {
		t.Fatalf("get after tolerant create: %v", err)
	}
	if got.Status != StatusProcessing || got.Progress != 70 {
		t.Fatalf("record = %+v", got)
	}
}

// TestRedisStoreNextSkipsOrphanedPendingID checks a pending id whose
// record expired is skipped silently.
func TestRedisStoreNextSkipsOrphanedPendingID(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	redisTestJob(t, s, "rgone")
	redisTestJob(t, s, "rkept")
	if err := s.client.Del(ctx, redisJobKey("rgone")).Err(); err != nil {
		t.Fatalf("del: %v", err)
	}

	rec, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if rec.JobID != "rkept" {
		t.Fatalf("next returned %s, want rkept", rec.JobID)
	}
}

// TestRedisStoreDelete checks Delete drops both the record and its
// pending entry.
func TestRedisStoreDelete(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	redisTestJob(t, s, "rdel")
	if err := s.Delete(ctx, "rdel"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "rdel"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("deleted record still readable, err = %v", err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("deleted job still pending")
	}
}
