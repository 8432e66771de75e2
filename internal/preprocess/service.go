package preprocess

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/busquepet/imagehash/pkg/pixel"
)

const rawDirName = "raw"

var (
	// ErrImageTooLarge indicates the payload exceeded IMAGEHASH_MAX_IMAGE_MB.
	ErrImageTooLarge = errors.New("preprocess: image exceeds maximum allowed size")
	// ErrInvalidImage indicates an unreadable or unsupported image.
	ErrInvalidImage = errors.New("preprocess: invalid image")
)

// Service validates uploads and persists the ones queued for asynchronous
// hashing.
type Service struct {
	logger     *zap.Logger
	storage    string
	maxBytes   int64
	autoOrient bool
}

// Upload is a validated, decoded upload held in memory.
type Upload struct {
	Data        []byte
	Image       image.Image
	Format      string
	ContentType string
	SizeBytes   int64
	Width       int
	Height      int
	Checksum    string
}

// Result captures metadata about a persisted upload.
type Result struct {
	JobID            string    `json:"job_id"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	RawPath          string    `json:"raw_path"`
	SizeBytes        int64     `json:"size_bytes"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	Checksum         string    `json:"checksum"`
	ProcessedAt      time.Time `json:"processed_at"`
}

// NewService builds a Service that will store assets under storageDir.
func NewService(logger *zap.Logger, storageDir string, maxImageMB int64, autoOrient bool) (*Service, error) {
	if logger == nil {
		return nil, errors.New("preprocess: logger is required")
	}
	if storageDir == "" {
		return nil, errors.New("preprocess: storage directory is required")
	}
	absDir, err := filepath.Abs(storageDir)
	if err != nil {
		return nil, fmt.Errorf("preprocess: resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(absDir, rawDirName), 0o755); err != nil {
		return nil, fmt.Errorf("preprocess: create raw dir: %w", err)
	}
	maxBytes := maxImageMB * 1024 * 1024
	if maxBytes <= 0 {
		maxBytes = 5 * 1024 * 1024
	}
	return &Service{
		logger:     logger,
		storage:    absDir,
		maxBytes:   maxBytes,
		autoOrient: autoOrient,
	}, nil
}

// Read consumes the reader, enforces the size limit and decodes the image.
func (s *Service) Read(ctx context.Context, reader io.Reader) (Upload, error) {
	if err := ctx.Err(); err != nil {
		return Upload{}, err
	}
	data, size, err := s.readWithLimit(reader)
	if err != nil {
		return Upload{}, err
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	img, err := pixel.Decode(bytes.NewReader(data), s.autoOrient)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return Upload{}, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	sum := sha256.Sum256(data)
	return Upload{
		Data:        data,
		Image:       img,
		Format:      format,
		ContentType: http.DetectContentType(data[:min(len(data), 512)]),
		SizeBytes:   size,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Checksum:    hex.EncodeToString(sum[:]),
	}, nil
}

// Process reads the upload and persists the raw bytes under a new job ID.
func (s *Service) Process(ctx context.Context, reader io.Reader, filename string) (Result, error) {
	upload, err := s.Read(ctx, reader)
	if err != nil {
		return Result{}, err
	}

	jobID := uuid.NewString()
	rawPath, err := s.persist(jobID, filename, upload.Format, upload.Data)
	if err != nil {
		return Result{}, err
	}
	s.logger.Debug("upload persisted",
		zap.String("job_id", jobID),
		zap.String("path", rawPath),
		zap.Int64("size_bytes", upload.SizeBytes),
	)

	return Result{
		JobID:            jobID,
		OriginalFilename: sanitizeFilename(filename),
		ContentType:      upload.ContentType,
		RawPath:          rawPath,
		SizeBytes:        upload.SizeBytes,
		Width:            upload.Width,
		Height:           upload.Height,
		Checksum:         upload.Checksum,
		ProcessedAt:      time.Now().UTC(),
	}, nil
}

func (s *Service) readWithLimit(reader io.Reader) ([]byte, int64, error) {
	var buf bytes.Buffer
	limited := &io.LimitedReader{R: reader, N: s.maxBytes + 1}
	written, err := io.Copy(&buf, limited)
	if err != nil {
		return nil, 0, fmt.Errorf("preprocess: read payload: %w", err)
	}
	if limited.N <= 0 {
		return nil, 0, ErrImageTooLarge
	}
	if written == 0 {
		return nil, 0, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	return buf.Bytes(), written, nil
}

func (s *Service) persist(jobID, filename, format string, rawData []byte) (string, error) {
	rawExt := strings.ToLower(filepath.Ext(filename))
	if rawExt == "" && format != "" {
		rawExt = "." + strings.ToLower(format)
	}
	if rawExt == "" {
		rawExt = ".bin"
	}
	rawPath := filepath.Join(s.storage, rawDirName, jobID+rawExt)
	if err := os.WriteFile(rawPath, rawData, 0o644); err != nil {
		return "", fmt.Errorf("preprocess: persist raw: %w", err)
	}
	return rawPath, nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	if name == "." || name == "/" {
		return "unknown"
	}
	return name
}
