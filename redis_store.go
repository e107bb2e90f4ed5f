package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// redisStore is the development-only queue backend: records live as
// JSON under job:{id} with a TTL, and the pending list is one JSON
// array read, modified, and written back without any transaction.
//
// The read-modify-write on the pending list races under concurrent
// dequeuers, so this backend is only safe with a single local worker.
// Production deployments use the Coordinator instead.
type redisStore struct {
	client    *redis.Client
	maxJobAge time.Duration
}

const redisPendingKey = "queue:pending"

func newRedisStore(addr, password string, db int, maxJobAge time.Duration) (*redisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Println("✅ Redis connected successfully")
	return &redisStore{client: client, maxJobAge: maxJobAge}, nil
}

func redisJobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func (s *redisStore) saveJob(ctx context.Context, rec *JobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisJobKey(rec.JobID), data, s.maxJobAge).Err()
}

func (s *redisStore) loadJob(ctx context.Context, jobID string) (*JobRecord, error) {
	val, err := s.client.Get(ctx, redisJobKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec JobRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *redisStore) loadPending(ctx context.Context) ([]string, error) {
	val, err := s.client.Get(ctx, redisPendingKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(val), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *redisStore) savePending(ctx context.Context, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisPendingKey, data, 0).Err()
}

func (s *redisStore) Add(ctx context.Context, jobID string, payload JobPayload) (*JobRecord, error) {
	now := time.Now()
	rec := &JobRecord{
		JobID:     jobID,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.saveJob(ctx, rec); err != nil {
		return nil, err
	}

	ids, err := s.loadPending(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if id == jobID {
			return rec, nil
		}
	}
	if err := s.savePending(ctx, append(ids, jobID)); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *redisStore) Next(ctx context.Context) (*JobRecord, error) {
	ids, err := s.loadPending(ctx)
	if err != nil {
		return nil, err
	}
	for len(ids) > 0 {
		id := ids[0]
		ids = ids[1:]
		if err := s.savePending(ctx, ids); err != nil {
			return nil, err
		}
		rec, err := s.loadJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			log.Printf("⚠️  pending id %s has no record, skipping", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, ErrQueueEmpty
}

func (s *redisStore) Update(ctx context.Context, jobID string, upd StatusUpdate) (*JobRecord, error) {
	rec, err := s.loadJob(ctx, jobID)
	if errors.Is(err, ErrJobNotFound) {
		rec = &JobRecord{
			JobID:     jobID,
			Status:    StatusPending,
			CreatedAt: time.Now(),
		}
	} else if err != nil {
		return nil, err
	}
	mergeUpdate(rec, upd)
	rec.UpdatedAt = time.Now()
	if err := s.saveJob(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *redisStore) Get(ctx context.Context, jobID string) (*JobRecord, error) {
	return s.loadJob(ctx, jobID)
}

func (s *redisStore) Delete(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, redisJobKey(jobID)).Err(); err != nil {
		return err
	}
	ids, err := s.loadPending(ctx)
	if err != nil {
		return err
	}
	for i, id := range ids {
		if id == jobID {
			return s.savePending(ctx, append(ids[:i], ids[i+1:]...))
		}
	}
	return nil
}
