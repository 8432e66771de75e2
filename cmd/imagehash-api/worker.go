package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/busquepet/imagehash/internal/cache"
	"github.com/busquepet/imagehash/internal/queue"
	"github.com/busquepet/imagehash/internal/ws"
	"github.com/busquepet/imagehash/pkg/imagehash"
)

type ingestConsumer interface {
	ConsumeIngest(ctx context.Context, handler queue.Handler) error
}

// IngestWorker drains the ingest queue and hashes each persisted upload with
// every configured algorithm.
type IngestWorker struct {
	engines map[imagehash.Algorithm]*imagehash.Engine
	queue   ingestConsumer
	cache   *cache.RedisCache
	hub     *ws.Hub
	logger  *zap.Logger
}

// NewIngestWorker configures a worker.
func NewIngestWorker(
	engines map[imagehash.Algorithm]*imagehash.Engine,
	queue ingestConsumer,
	cache *cache.RedisCache,
	hub *ws.Hub,
	logger *zap.Logger,
) *IngestWorker {
	return &IngestWorker{
		engines: engines,
		queue:   queue,
		cache:   cache,
		hub:     hub,
		logger:  logger,
	}
}

// Run blocks until context cancellation.
func (w *IngestWorker) Run(ctx context.Context) error {
	if len(w.engines) == 0 {
		return fmt.Errorf("worker: no hash engines configured")
	}
	return w.queue.ConsumeIngest(ctx, w.process)
}

func (w *IngestWorker) process(ctx context.Context, msg queue.IngestMessage) error {
	record, err := w.cache.UpdateJobStatus(ctx, msg.JobID, cache.StatusProcessing, "")
	if err != nil {
		return err
	}
	w.notify(record, "job started")

	result, err := w.hash(ctx, msg)
	if err != nil {
		if _, uerr := w.cache.UpdateJobStatus(ctx, msg.JobID, cache.StatusFailed, err.Error()); uerr != nil {
			w.logger.Warn("failed to mark job as failed", zap.String("job_id", msg.JobID), zap.Error(uerr))
		}
		w.notify(cache.JobRecord{JobID: msg.JobID, Status: cache.StatusFailed, Error: err.Error()}, "hashing failed")
		return err
	}

	if err := w.cache.SaveResult(ctx, result); err != nil {
		return err
	}
	record, err = w.cache.UpdateJobStatus(ctx, msg.JobID, cache.StatusCompleted, "")
	if err != nil {
		return err
	}
	w.logger.Info("job completed",
		zap.String("job_id", msg.JobID),
		zap.Int("hashes", len(result.Hashes)),
		zap.Int64("duration_ms", result.DurationMS),
	)
	w.notify(record, "job completed")
	w.hub.Broadcast(ws.Result(result.JobID, result))
	return nil
}

// hash decodes the stored upload once and runs every engine over it. Each
// hash is also written to the checksum cache so later synchronous requests
// for the same bytes are served from Redis.
func (w *IngestWorker) hash(ctx context.Context, msg queue.IngestMessage) (cache.HashResult, error) {
	start := time.Now()
	file, err := os.Open(msg.RawPath)
	if err != nil {
		return cache.HashResult{}, fmt.Errorf("%w: %v", imagehash.ErrUnreadableImage, err)
	}
	defer file.Close()

	// Engines share decode settings, so any of them can decode.
	var decoder *imagehash.Engine
	for _, engine := range w.engines {
		decoder = engine
		break
	}
	img, err := decoder.Decode(file)
	if err != nil {
		return cache.HashResult{}, err
	}

	result := cache.HashResult{JobID: msg.JobID, Checksum: msg.Checksum}
	for _, algo := range imagehash.Algorithms {
		engine, ok := w.engines[algo]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return cache.HashResult{}, err
		}
		hash, err := engine.HashImage(img)
		if err != nil {
			return cache.HashResult{}, fmt.Errorf("%s: %w", algo, err)
		}
		entry := cache.HashEntry{
			Algorithm: string(algo),
			Signature: engine.Signature(),
			Hash:      hash.Hex(),
			Bits:      hash.Len(),
		}
		result.Hashes = append(result.Hashes, entry)
		if msg.Checksum != "" {
			if err := w.cache.SaveHash(ctx, engine.Fingerprint(), msg.Checksum, entry); err != nil {
				w.logger.Warn("hash cache store failed", zap.String("job_id", msg.JobID), zap.Error(err))
			}
		}
	}

	legacy, err := imagehash.LegacyPerceptionHash(img, imagehash.LegacyWidth, imagehash.LegacyHeight)
	if err != nil {
		w.logger.Warn("legacy perception hash failed", zap.String("job_id", msg.JobID), zap.Error(err))
	} else {
		result.LegacyPHash = legacy.Hex()
	}

	result.DurationMS = time.Since(start).Milliseconds()
	result.ComputedAt = time.Now().UTC()
	return result, nil
}

func (w *IngestWorker) notify(record cache.JobRecord, message string) {
	event := ws.Status(record.JobID, string(record.Status), message)
	event.Error = record.Error
	w.hub.Broadcast(event)
}
