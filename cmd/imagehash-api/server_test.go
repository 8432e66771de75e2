package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/busquepet/imagehash/internal/cache"
	"github.com/busquepet/imagehash/internal/preprocess"
	"github.com/busquepet/imagehash/internal/queue"
	"github.com/busquepet/imagehash/internal/ws"
	"github.com/busquepet/imagehash/pkg/config"
)

type fakeQueue struct {
	mu       sync.Mutex
	messages []queue.IngestMessage
	err      error
}

func (q *fakeQueue) PublishIngest(_ context.Context, msg queue.IngestMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, msg)
	return nil
}

func (q *fakeQueue) ConsumeIngest(ctx context.Context, handler queue.Handler) error {
	q.mu.Lock()
	pending := append([]queue.IngestMessage(nil), q.messages...)
	q.mu.Unlock()
	for _, msg := range pending {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

type harness struct {
	server *Server
	worker *IngestWorker
	cache  *cache.RedisCache
	queue  *fakeQueue
	redis  *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil, nil)
}

// newHarnessWith builds a harness on top of shared, when non-nil, and lets
// configure adjust the configuration before engines are built.
func newHarnessWith(t *testing.T, shared *harness, configure func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Config{
		MaxImageMB:           1,
		RequestTimeout:       5 * time.Second,
		Algorithm:            "difference",
		AverageSize:          8,
		DifferenceSize:       8,
		PerceptualSize:       32,
		PerceptualComparison: "average",
		BlockSize:            16,
		BlockMode:            "precise",
		ResampleFilter:       "linear",
		AutoOrient:           true,
	}
	if configure != nil {
		configure(&cfg)
	}
	require.NoError(t, cfg.Validate())

	log := zap.NewNop()
	engines, err := cfg.Engines(log)
	require.NoError(t, err)

	preproc, err := preprocess.NewService(log, t.TempDir(), cfg.MaxImageMB, cfg.AutoOrient)
	require.NoError(t, err)

	var (
		srv *miniredis.Miniredis
		c   *cache.RedisCache
	)
	if shared != nil {
		srv, c = shared.redis, shared.cache
	} else {
		srv = miniredis.RunT(t)
		c = cache.NewWithClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}), time.Hour)
		t.Cleanup(func() { c.Close() })
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := ws.NewHub(log)
	go hub.Run(ctx)

	q := &fakeQueue{}
	return &harness{
		server: NewServer(cfg, log, preproc, engines, c, q, hub),
		worker: NewIngestWorker(engines, q, c, hub, log),
		cache:  c,
		queue:  q,
		redis:  srv,
	}
}

func testPNG(t *testing.T, width, height int, reversed bool) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(x * 255 / (width - 1))
			if reversed {
				v = 255 - v
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, target string, files map[string][]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, data := range files {
		part, err := mw.CreateFormFile(field, field+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h *harness, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.server.Routes().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "block:16:precise", body["algorithms"].(map[string]any)["block"])
}

func TestHashEndpointCachesBySignature(t *testing.T) {
	h := newHarness(t)
	data := testPNG(t, 64, 48, true)

	rec := serve(h, multipartRequest(t, "/v1/hash", map[string][]byte{"image": data}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first hashResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Equal(t, "difference:8", first.Algorithm)
	require.Equal(t, "difference:8:linear:orient", first.Fingerprint)
	require.Equal(t, 64, first.Bits)
	require.Equal(t, "ffffffffffffffff", first.Hash)
	require.False(t, first.Cached)

	rec = serve(h, multipartRequest(t, "/v1/hash", map[string][]byte{"image": data}))
	var second hashResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.True(t, second.Cached)
	require.Equal(t, first.Hash, second.Hash)

	rec = serve(h, multipartRequest(t, "/v1/hash?algorithm=block", map[string][]byte{"image": data}))
	require.Equal(t, http.StatusOK, rec.Code)
	var block hashResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &block))
	require.Equal(t, "block:16:precise", block.Algorithm)
	require.Equal(t, 256, block.Bits)
	require.False(t, block.Cached)
}

// Servers sharing one Redis but resampling or orienting differently must not
// answer each other's requests from the hash cache.
func TestHashEndpointCacheSeparatesDecodeSettings(t *testing.T) {
	linear := newHarness(t)
	nearest := newHarnessWith(t, linear, func(cfg *config.Config) { cfg.ResampleFilter = "nearest" })
	upright := newHarnessWith(t, linear, func(cfg *config.Config) { cfg.AutoOrient = false })
	data := testPNG(t, 401, 333, false)

	hash := func(h *harness) hashResponse {
		t.Helper()
		rec := serve(h, multipartRequest(t, "/v1/hash", map[string][]byte{"image": data}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp hashResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	require.False(t, hash(linear).Cached)
	require.True(t, hash(linear).Cached)

	first := hash(nearest)
	require.False(t, first.Cached)
	require.Equal(t, "difference:8", first.Algorithm)
	require.Equal(t, "difference:8:nearest:orient", first.Fingerprint)
	require.True(t, hash(nearest).Cached)

	require.False(t, hash(upright).Cached)

	keys := linear.redis.Keys()
	var hashKeys []string
	for _, key := range keys {
		if strings.HasPrefix(key, "imagehash:hash:") {
			hashKeys = append(hashKeys, strings.TrimPrefix(key, "imagehash:hash:"))
		}
	}
	require.Len(t, hashKeys, 3)
	for _, prefix := range []string{
		"difference:8:linear:orient:",
		"difference:8:nearest:orient:",
		"difference:8:linear:noorient:",
	} {
		found := false
		for _, key := range hashKeys {
			if strings.HasPrefix(key, prefix) {
				found = true
			}
		}
		require.True(t, found, prefix)
	}
}

func TestHashEndpointErrors(t *testing.T) {
	h := newHarness(t)

	rec := serve(h, multipartRequest(t, "/v1/hash?algorithm=wavelet", map[string][]byte{"image": testPNG(t, 8, 8, false)}))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, multipartRequest(t, "/v1/hash", map[string][]byte{"image": []byte("not an image")}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid image", decode(t, rec)["error"])

	rec = serve(h, multipartRequest(t, "/v1/hash", map[string][]byte{"other": testPNG(t, 8, 8, false)}))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	big := bytes.Repeat([]byte{0x89}, 1024*1024+10)
	rec = serve(h, multipartRequest(t, "/v1/hash", map[string][]byte{"image": big}))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCompareEndpoint(t *testing.T) {
	h := newHarness(t)

	same := testPNG(t, 40, 30, false)
	rec := serve(h, multipartRequest(t, "/v1/compare", map[string][]byte{"a": same, "b": same}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	require.Equal(t, float64(0), body["distance"])
	require.Equal(t, body["a"], body["b"])

	rec = serve(h, multipartRequest(t, "/v1/compare", map[string][]byte{"a": same, "b": testPNG(t, 40, 30, true)}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(64), decode(t, rec)["distance"])

	rec = serve(h, multipartRequest(t, "/v1/compare", map[string][]byte{"a": same}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDistanceEndpoint(t *testing.T) {
	h := newHarness(t)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/distance?a=ffff&b=fff0", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, float64(4), body["distance"])
	require.Equal(t, false, body["equal"])

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/distance?a=00ff&b=ff", nil))
	require.Equal(t, true, decode(t, rec)["equal"])

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/distance?a=xyz&b=ff", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/distance?a=ff", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestAndWorker(t *testing.T) {
	h := newHarness(t)
	data := testPNG(t, 64, 64, false)

	rec := serve(h, multipartRequest(t, "/v1/ingest", map[string][]byte{"image": data}))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	jobID := decode(t, rec)["job_id"].(string)
	require.Len(t, h.queue.messages, 1)
	require.Equal(t, jobID, h.queue.messages[0].JobID)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode(t, rec)["job"].(map[string]any)
	require.Equal(t, string(cache.StatusPending), job["status"])

	require.NoError(t, h.worker.Run(context.Background()))

	record, err := h.cache.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	require.Equal(t, cache.StatusCompleted, record.Status)

	result, err := h.cache.GetResult(context.Background(), jobID)
	require.NoError(t, err)
	require.Len(t, result.Hashes, 4)
	require.Len(t, result.LegacyPHash, 64)
	signatures := make([]string, 0, len(result.Hashes))
	for _, entry := range result.Hashes {
		signatures = append(signatures, entry.Signature)
	}
	require.Equal(t, []string{"average:8", "difference:8", "perceptual:32:average", "block:16:precise"}, signatures)

	// The worker seeds the checksum cache used by /v1/hash.
	rec = serve(h, multipartRequest(t, "/v1/hash?algorithm=perceptual", map[string][]byte{"image": data}))
	var cached hashResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cached))
	require.True(t, cached.Cached)
	require.Equal(t, result.Hashes[2].Hash, cached.Hash)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID, nil))
	require.Contains(t, decode(t, rec), "result")
}

func TestWorkerMarksUnreadableUploadsFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	path := t.TempDir() + "/broken.png"
	require.NoError(t, os.WriteFile(path, []byte("broken"), 0o644))
	require.NoError(t, h.cache.SaveJob(ctx, cache.JobRecord{JobID: "job-x", Status: cache.StatusPending}))

	err := h.worker.process(ctx, queue.IngestMessage{JobID: "job-x", RawPath: path})
	require.Error(t, err)

	record, err := h.cache.GetJob(ctx, "job-x")
	require.NoError(t, err)
	require.Equal(t, cache.StatusFailed, record.Status)
	require.NotEmpty(t, record.Error)
}

func TestIngestPublishFailure(t *testing.T) {
	h := newHarness(t)
	h.queue.err = errors.New("nats down")

	rec := serve(h, multipartRequest(t, "/v1/ingest", map[string][]byte{"image": testPNG(t, 16, 16, false)}))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetJobNotFound(t *testing.T) {
	h := newHarness(t)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/jobs/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "job not found", decode(t, rec)["error"])
}

func TestAlgorithmName(t *testing.T) {
	require.Equal(t, "block", algorithmName("block:16:precise"))
	require.Equal(t, "difference", algorithmName("difference"))
}
