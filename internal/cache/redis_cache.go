package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL applies when the cache is built with a non-positive TTL.
	DefaultTTL = 48 * time.Hour

	namespace  = "imagehash"
	jobsKey    = namespace + ":jobs:"
	resultsKey = namespace + ":results:"
	hashesKey  = namespace + ":hash:"
)

// ErrNotFound signals the requested key is absent.
var ErrNotFound = errors.New("cache: not found")

// JobStatus describes the state of an ingest request.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// JobRecord stores metadata for an image ingestion request.
type JobRecord struct {
	JobID            string    `json:"job_id"`
	Status           JobStatus `json:"status"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	RawPath          string    `json:"raw_path"`
	SizeBytes        int64     `json:"size_bytes"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	Checksum         string    `json:"checksum"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HashEntry is one computed hash for an image.
type HashEntry struct {
	Algorithm string `json:"algorithm"`
	Signature string `json:"signature"`
	Hash      string `json:"hash"`
	Bits      int    `json:"bits"`
}

// HashResult stores every hash computed for an ingest job.
type HashResult struct {
	JobID       string      `json:"job_id"`
	Checksum    string      `json:"checksum"`
	Hashes      []HashEntry `json:"hashes"`
	LegacyPHash string      `json:"legacy_phash,omitempty"`
	DurationMS  int64       `json:"duration_ms"`
	ComputedAt  time.Time   `json:"computed_at"`
}

// RedisCache provides typed helpers on top of redis.Client.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and validates connectivity.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	if redisURL == "" {
		return nil, errors.New("cache: redis URL is empty")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}
	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Close closes the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping reports whether Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SaveJob stores or replaces the job record.
func (c *RedisCache) SaveJob(ctx context.Context, record JobRecord) error {
	record.UpdatedAt = time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.UpdatedAt
	}
	return c.set(ctx, jobsKey+record.JobID, record)
}

// UpdateJobStatus updates the status and optional error message.
func (c *RedisCache) UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errMsg string) (JobRecord, error) {
	record, err := c.GetJob(ctx, jobID)
	if err != nil {
		return JobRecord{}, err
	}
	record.Status = status
	record.Error = errMsg
	if err := c.SaveJob(ctx, record); err != nil {
		return JobRecord{}, err
	}
	return c.GetJob(ctx, jobID)
}

// GetJob fetches a job by ID.
func (c *RedisCache) GetJob(ctx context.Context, jobID string) (JobRecord, error) {
	var record JobRecord
	if err := c.get(ctx, jobsKey+jobID, &record); err != nil {
		return JobRecord{}, err
	}
	return record, nil
}

// SaveResult stores the hashes computed for a job.
func (c *RedisCache) SaveResult(ctx context.Context, result HashResult) error {
	return c.set(ctx, resultsKey+result.JobID, result)
}

// GetResult fetches stored hashes for a job.
func (c *RedisCache) GetResult(ctx context.Context, jobID string) (HashResult, error) {
	var result HashResult
	if err := c.get(ctx, resultsKey+jobID, &result); err != nil {
		return HashResult{}, err
	}
	return result, nil
}

// SaveHash caches a hash computed for the image with the given checksum by
// the engine identified by fingerprint.
func (c *RedisCache) SaveHash(ctx context.Context, fingerprint, checksum string, entry HashEntry) error {
	return c.set(ctx, hashKey(fingerprint, checksum), entry)
}

// GetHash returns a cached hash for the checksum computed by the engine
// identified by fingerprint.
func (c *RedisCache) GetHash(ctx context.Context, fingerprint, checksum string) (HashEntry, error) {
	var entry HashEntry
	if err := c.get(ctx, hashKey(fingerprint, checksum), &entry); err != nil {
		return HashEntry{}, err
	}
	return entry, nil
}

func hashKey(fingerprint, checksum string) string {
	return hashesKey + fingerprint + ":" + checksum
}

func (c *RedisCache) set(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}

func (c *RedisCache) get(ctx context.Context, key string, v any) error {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(val, v)
}
