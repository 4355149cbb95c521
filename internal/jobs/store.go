package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"edusphere/internal/export"
	"edusphere/internal/school"
)

const keyPrefix = "edusphere:job:"

func jobKey(id string) string  { return keyPrefix + id }
func dataKey(id string) string { return keyPrefix + id + ":data" }

// RedisStore keeps jobs as JSON and artifacts as raw bytes, both expiring
// after TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store. A zero ttl keeps keys forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Save writes job, replacing any previous version.
func (s *RedisStore) Save(ctx context.Context, job Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, jobKey(job.ID), b, s.ttl).Err()
}

// Get returns school.ErrNotFound for unknown or expired jobs.
func (s *RedisStore) Get(ctx context.Context, id string) (Job, error) {
	b, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, school.ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	var job Job
	if err := json.Unmarshal(b, &job); err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

// PutArtifact stores the rendered bytes. Filename and content type live on the job.
func (s *RedisStore) PutArtifact(ctx context.Context, id string, a export.Artifact) error {
	return s.client.Set(ctx, dataKey(id), a.Data, s.ttl).Err()
}

// Artifact loads the rendered bytes together with the job's file metadata.
func (s *RedisStore) Artifact(ctx context.Context, id string) (export.Artifact, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return export.Artifact{}, err
	}
	b, err := s.client.Get(ctx, dataKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return export.Artifact{}, school.ErrNotFound
	}
	if err != nil {
		return export.Artifact{}, err
	}
	return export.Artifact{Filename: job.Filename, ContentType: job.ContentType, Data: b}, nil
}

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu        sync.Mutex
	jobs      map[string]Job
	artifacts map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: map[string]Job{}, artifacts: map[string][]byte{}}
}

func (s *MemoryStore) Save(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, school.ErrNotFound
	}
	return job, nil
}

func (s *MemoryStore) PutArtifact(_ context.Context, id string, a export.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[id] = append([]byte(nil), a.Data...)
	return nil
}

func (s *MemoryStore) Artifact(_ context.Context, id string) (export.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	data, found := s.artifacts[id]
	if !ok || !found {
		return export.Artifact{}, school.ErrNotFound
	}
	return export.Artifact{Filename: job.Filename, ContentType: job.ContentType, Data: data}, nil
}
