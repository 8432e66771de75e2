package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/busquepet/imagehash/internal/cache"
	"github.com/busquepet/imagehash/internal/preprocess"
	"github.com/busquepet/imagehash/internal/queue"
	"github.com/busquepet/imagehash/internal/ws"
	"github.com/busquepet/imagehash/pkg/bithash"
	"github.com/busquepet/imagehash/pkg/config"
	apperrors "github.com/busquepet/imagehash/pkg/errors"
	"github.com/busquepet/imagehash/pkg/imagehash"
)

const maxMultipartMemory = 32 << 20

type ingestPublisher interface {
	PublishIngest(ctx context.Context, msg queue.IngestMessage) error
}

// Server wires dependencies together and exposes HTTP routes.
type Server struct {
	cfg          config.Config
	logger       *zap.Logger
	preprocessor *preprocess.Service
	engines      map[imagehash.Algorithm]*imagehash.Engine
	cache        *cache.RedisCache
	queue        ingestPublisher
	hub          *ws.Hub
}

// NewServer returns a configured Server instance.
func NewServer(
	cfg config.Config,
	logger *zap.Logger,
	preproc *preprocess.Service,
	engines map[imagehash.Algorithm]*imagehash.Engine,
	cache *cache.RedisCache,
	queue ingestPublisher,
	hub *ws.Hub,
) *Server {
	return &Server{
		cfg:          cfg,
		logger:       logger,
		preprocessor: preproc,
		engines:      engines,
		cache:        cache,
		queue:        queue,
		hub:          hub,
	}
}

// Routes builds the HTTP handler tree.
func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		s.logRequests(),
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	)
	router.Get("/healthz", s.handleHealth)
	router.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.cfg.RequestTimeout > 0 {
				r.Use(middleware.Timeout(s.cfg.RequestTimeout))
			}
			r.Post("/hash", s.handleHash)
			r.Post("/compare", s.handleCompare)
			r.Get("/distance", s.handleDistance)
			r.Post("/ingest", s.handleIngest)
			r.Get("/jobs/{jobID}", s.handleGetJob)
		})
		r.Get("/ws", ws.Handler(s.hub))
	})
	return router
}

// Start launches the HTTP server and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown error", zap.Error(err))
		}
	}()

	s.logger.Info("imagehash API listening",
		zap.String("addr", srv.Addr),
		zap.String("default_algorithm", string(s.cfg.DefaultAlgorithm())),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	signatures := make(map[string]string, len(s.engines))
	for algo, engine := range s.engines {
		signatures[string(algo)] = engine.Signature()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"algorithms": signatures,
	})
}

type hashResponse struct {
	Hash        string `json:"hash"`
	Bits        int    `json:"bits"`
	Algorithm   string `json:"algorithm"`
	Fingerprint string `json:"fingerprint"`
	Cached      bool   `json:"cached"`
}

func (s *Server) handleHash(w http.ResponseWriter, r *http.Request) {
	engine, apiErr := s.engineFor(r)
	if apiErr != nil {
		s.respondError(w, *apiErr)
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		s.respondError(w, apperrors.BadRequest("multipart parse failed", err))
		return
	}
	upload, apiErr := s.readUpload(r, "image")
	if apiErr != nil {
		s.respondError(w, *apiErr)
		return
	}

	signature := engine.Signature()
	fingerprint := engine.Fingerprint()
	entry, err := s.cache.GetHash(r.Context(), fingerprint, upload.Checksum)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, hashResponse{Hash: entry.Hash, Bits: entry.Bits, Algorithm: signature, Fingerprint: fingerprint, Cached: true})
		return
	case !errors.Is(err, cache.ErrNotFound):
		s.logger.Warn("hash cache lookup failed", zap.Error(err))
	}

	hash, err := engine.HashImage(upload.Image)
	if err != nil {
		s.respondError(w, apperrors.BadRequest("invalid image", err))
		return
	}
	entry = cache.HashEntry{
		Algorithm: algorithmName(signature),
		Signature: signature,
		Hash:      hash.Hex(),
		Bits:      hash.Len(),
	}
	if err := s.cache.SaveHash(r.Context(), fingerprint, upload.Checksum, entry); err != nil {
		s.logger.Warn("hash cache store failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, hashResponse{Hash: entry.Hash, Bits: entry.Bits, Algorithm: signature, Fingerprint: fingerprint})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	engine, apiErr := s.engineFor(r)
	if apiErr != nil {
		s.respondError(w, *apiErr)
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		s.respondError(w, apperrors.BadRequest("multipart parse failed", err))
		return
	}

	hashes := make([]bithash.Hash, 0, 2)
	for _, field := range []string{"a", "b"} {
		upload, apiErr := s.readUpload(r, field)
		if apiErr != nil {
			s.respondError(w, *apiErr)
			return
		}
		hash, err := engine.HashImage(upload.Image)
		if err != nil {
			s.respondError(w, apperrors.BadRequest("invalid image in field "+field, err))
			return
		}
		hashes = append(hashes, hash)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"distance":  engine.Distance(hashes[0], hashes[1]),
		"a":         hashes[0].Hex(),
		"b":         hashes[1].Hex(),
		"algorithm": engine.Signature(),
	})
}

func (s *Server) handleDistance(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("a") == "" || query.Get("b") == "" {
		s.respondError(w, apperrors.BadRequest("query parameters a and b are required", nil))
		return
	}
	a, err := bithash.ParseHex(strings.TrimSpace(query.Get("a")))
	if err != nil {
		s.respondError(w, apperrors.BadRequest("malformed hash a", err))
		return
	}
	b, err := bithash.ParseHex(strings.TrimSpace(query.Get("b")))
	if err != nil {
		s.respondError(w, apperrors.BadRequest("malformed hash b", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"distance": a.Distance(b),
		"equal":    a.Equal(b),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		s.respondError(w, apperrors.BadRequest("multipart parse failed", err))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, apperrors.BadRequest("missing image field", err))
		return
	}
	defer file.Close()

	result, err := s.preprocessor.Process(r.Context(), file, header.Filename)
	if err != nil {
		s.respondError(w, uploadError(err))
		return
	}

	jobRecord := cache.JobRecord{
		JobID:            result.JobID,
		Status:           cache.StatusPending,
		OriginalFilename: result.OriginalFilename,
		ContentType:      result.ContentType,
		RawPath:          result.RawPath,
		SizeBytes:        result.SizeBytes,
		Width:            result.Width,
		Height:           result.Height,
		Checksum:         result.Checksum,
		CreatedAt:        result.ProcessedAt,
	}
	if err := s.cache.SaveJob(r.Context(), jobRecord); err != nil {
		s.respondError(w, apperrors.Internal("failed to persist job", err))
		return
	}

	msg := queue.IngestMessage{
		JobID:            result.JobID,
		RawPath:          result.RawPath,
		SizeBytes:        result.SizeBytes,
		Width:            result.Width,
		Height:           result.Height,
		OriginalFilename: result.OriginalFilename,
		ContentType:      result.ContentType,
		Checksum:         result.Checksum,
	}
	if err := s.queue.PublishIngest(r.Context(), msg); err != nil {
		s.respondError(w, apperrors.Internal("queue publish failed", err))
		return
	}

	s.hub.Broadcast(ws.Status(result.JobID, string(cache.StatusPending), "ingestion accepted"))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":  result.JobID,
		"status":  cache.StatusPending,
		"message": "job enqueued",
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		s.respondError(w, apperrors.BadRequest("job_id is required", nil))
		return
	}

	record, err := s.cache.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			s.respondError(w, apperrors.NotFound("job not found", err))
			return
		}
		s.respondError(w, apperrors.Internal("fetch job failed", err))
		return
	}
	response := map[string]any{
		"job": record,
	}
	result, err := s.cache.GetResult(r.Context(), jobID)
	if err == nil {
		response["result"] = result
	} else if !errors.Is(err, cache.ErrNotFound) {
		s.logger.Warn("failed to fetch cached result", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, response)
}

// engineFor resolves the ?algorithm= query parameter, falling back to the
// configured default.
func (s *Server) engineFor(r *http.Request) (*imagehash.Engine, *apperrors.APIError) {
	name := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("algorithm")))
	if name == "" {
		name = string(s.cfg.DefaultAlgorithm())
	}
	engine, ok := s.engines[imagehash.Algorithm(name)]
	if !ok {
		apiErr := apperrors.BadRequest(fmt.Sprintf("unknown algorithm %q", name), imagehash.ErrInvalidConfiguration)
		return nil, &apiErr
	}
	return engine, nil
}

func (s *Server) readUpload(r *http.Request, field string) (preprocess.Upload, *apperrors.APIError) {
	file, _, err := r.FormFile(field)
	if err != nil {
		apiErr := apperrors.BadRequest("missing "+field+" field", err)
		return preprocess.Upload{}, &apiErr
	}
	defer file.Close()

	upload, err := s.preprocessor.Read(r.Context(), file)
	if err != nil {
		apiErr := uploadError(err)
		return preprocess.Upload{}, &apiErr
	}
	return upload, nil
}

func uploadError(err error) apperrors.APIError {
	switch {
	case errors.Is(err, preprocess.ErrImageTooLarge):
		return apperrors.TooLarge("image too large", err)
	case errors.Is(err, preprocess.ErrInvalidImage):
		return apperrors.BadRequest("invalid image", err)
	default:
		return apperrors.Internal("preprocess failed", err)
	}
}

// algorithmName returns the algorithm part of a signature such as
// "block:16:precise".
func algorithmName(signature string) string {
	name, _, _ := strings.Cut(signature, ":")
	return name
}

func (s *Server) logRequests() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			s.logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func (s *Server) respondError(w http.ResponseWriter, apiErr apperrors.APIError) {
	if apiErr.Code == 0 {
		apiErr.Code = http.StatusInternalServerError
	}
	writeJSON(w, apiErr.Code, map[string]string{"error": apiErr.Message})
	s.logger.Warn("api error",
		zap.Int("status", apiErr.Code),
		zap.String("message", apiErr.Message),
		zap.Error(apiErr.Err),
	)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
