package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/campusworks/registry-api/pkg/errors"
	"github.com/campusworks/registry-api/pkg/jobs"
	"github.com/campusworks/registry-api/pkg/storage"
)

// ExportJobStatus tracks the lifecycle of a background roster export.
type ExportJobStatus string

const (
	ExportJobPending   ExportJobStatus = "pending"
	ExportJobCompleted ExportJobStatus = "completed"
	ExportJobFailed    ExportJobStatus = "failed"
)

// ExportJob describes a queued or finished roster export.
type ExportJob struct {
	ID          string          `json:"id"`
	Format      string          `json:"format"`
	Status      ExportJobStatus `json:"status"`
	Filename    string          `json:"filename,omitempty"`
	DownloadURL string          `json:"download_url,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

type rosterExporter interface {
	Export(ctx context.Context, format string) ([]byte, string, string, error)
}

// ExportJobService renders roster exports in the background and hands out
// signed download tokens for the stored files. Job state lives in memory,
// matching the in-process queue.
type ExportJobService struct {
	exporter rosterExporter
	storage  *storage.LocalStorage
	signer   *storage.SignedURLSigner
	queue    *jobs.Queue
	logger   *zap.Logger

	cancel context.CancelFunc

	mu   sync.RWMutex
	byID map[string]*ExportJob
}

// NewExportJobService wires the queue, storage and signer together.
func NewExportJobService(exporter rosterExporter, store *storage.LocalStorage, signer *storage.SignedURLSigner, workers int, logger *zap.Logger) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExportJobService{
		exporter: exporter,
		storage:  store,
		signer:   signer,
		logger:   logger,
		byID:     make(map[string]*ExportJob),
	}
	s.queue = jobs.NewQueue("roster-export", s.handle, jobs.QueueConfig{
		Workers: workers,
		Logger:  logger,
	})
	return s
}

// Start launches the queue workers and a cleanup loop that removes export
// files once their download tokens have lapsed.
func (s *ExportJobService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.queue.Start(ctx)
	go s.cleanupLoop(ctx)
}

// Stop drains the queue workers and halts the cleanup loop.
func (s *ExportJobService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.queue.Stop()
}

func (s *ExportJobService) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.storage.CleanupOlderThan(s.signer.TTL())
			if err != nil {
				s.logger.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}

// Enqueue schedules a roster export and returns the pending job.
func (s *ExportJobService) Enqueue(format string) (*ExportJob, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "pdf" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}

	job := &ExportJob{
		ID:        uuid.NewString(),
		Format:    format,
		Status:    ExportJobPending,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.byID[job.ID] = job
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "roster-export", Payload: format}); err != nil {
		s.mu.Lock()
		delete(s.byID, job.ID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue export")
	}

	return s.snapshot(job.ID), nil
}

// Get returns the current state of an export job.
func (s *ExportJobService) Get(id string) (*ExportJob, error) {
	job := s.snapshot(id)
	if job == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return job, nil
}

// Resolve validates a download token and returns the stored file path with
// its content type.
func (s *ExportJobService) Resolve(token string) (string, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	s.mu.RLock()
	job, ok := s.byID[jobID]
	s.mu.RUnlock()
	if !ok || job.Status != ExportJobCompleted {
		return "", "", appErrors.Clone(appErrors.ErrNotFound, "export not available")
	}

	contentType := "text/csv"
	if job.Format == "pdf" {
		contentType = "application/pdf"
	}
	return s.storage.Path(relPath), contentType, nil
}

func (s *ExportJobService) handle(ctx context.Context, job jobs.Job) error {
	format, _ := job.Payload.(string)

	payload, _, filename, err := s.exporter.Export(ctx, format)
	if err != nil {
		s.fail(job.ID, err)
		return err
	}

	relPath := fmt.Sprintf("%s/%s", job.ID, filename)
	if _, err := s.storage.Save(relPath, payload); err != nil {
		s.fail(job.ID, err)
		return err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		s.fail(job.ID, err)
		return err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	if stored, ok := s.byID[job.ID]; ok {
		stored.Status = ExportJobCompleted
		stored.Filename = filename
		stored.DownloadURL = fmt.Sprintf("/downloads/%s", token)
		stored.ExpiresAt = &expiresAt
		stored.CompletedAt = &now
	}
	s.mu.Unlock()

	s.logger.Info("roster export completed", zap.String("job_id", job.ID), zap.String("format", format))
	return nil
}

func (s *ExportJobService) fail(id string, err error) {
	now := time.Now().UTC()
	s.mu.Lock()
	if stored, ok := s.byID[id]; ok {
		stored.Status = ExportJobFailed
		stored.Error = err.Error()
		stored.CompletedAt = &now
	}
	s.mu.Unlock()
	s.logger.Warn("roster export failed", zap.String("job_id", id), zap.Error(err))
}

func (s *ExportJobService) snapshot(id string) *ExportJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.byID[id]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}
