package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/campusworks/registry-api/pkg/errors"
	"github.com/campusworks/registry-api/pkg/storage"
)

type stubRosterExporter struct {
	payload []byte
	err     error
}

func (s *stubRosterExporter) Export(ctx context.Context, format string) ([]byte, string, string, error) {
	if s.err != nil {
		return nil, "", "", s.err
	}
	return s.payload, "text/csv", "students_20260828.csv", nil
}

func newExportJobFixture(t *testing.T, exporter *stubRosterExporter) *ExportJobService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewExportJobService(exporter, store, signer, 1, zap.NewNop())
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)
	return svc
}

func waitForJob(t *testing.T, svc *ExportJobService, id string, want ExportJobStatus) *ExportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.Get(id)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", id, want)
	return nil
}

func TestExportJobServiceCompletes(t *testing.T) {
	svc := newExportJobFixture(t, &stubRosterExporter{payload: []byte("roll,name\n")})

	job, err := svc.Enqueue("csv")
	require.NoError(t, err)
	assert.Equal(t, ExportJobPending, job.Status)

	done := waitForJob(t, svc, job.ID, ExportJobCompleted)
	assert.Equal(t, "students_20260828.csv", done.Filename)
	assert.Contains(t, done.DownloadURL, "/downloads/")
	require.NotNil(t, done.ExpiresAt)
	require.NotNil(t, done.CompletedAt)

	token := done.DownloadURL[len("/downloads/"):]
	path, contentType, err := svc.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "roll,name\n", string(data))
}

func TestExportJobServiceEnqueueRejectsUnknownFormat(t *testing.T) {
	svc := newExportJobFixture(t, &stubRosterExporter{})

	_, err := svc.Enqueue("xlsx")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestExportJobServiceEnqueueDefaultsToCSV(t *testing.T) {
	svc := newExportJobFixture(t, &stubRosterExporter{payload: []byte("x\n")})

	job, err := svc.Enqueue("")
	require.NoError(t, err)
	assert.Equal(t, "csv", job.Format)
}

func TestExportJobServiceFailureRecorded(t *testing.T) {
	svc := newExportJobFixture(t, &stubRosterExporter{err: errors.New("boom")})

	job, err := svc.Enqueue("csv")
	require.NoError(t, err)

	failed := waitForJob(t, svc, job.ID, ExportJobFailed)
	assert.Equal(t, "boom", failed.Error)
}

func TestExportJobServiceGetUnknown(t *testing.T) {
	svc := newExportJobFixture(t, &stubRosterExporter{})

	_, err := svc.Get("missing")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestExportJobServiceResolveBadToken(t *testing.T) {
	svc := newExportJobFixture(t, &stubRosterExporter{})

	_, _, err := svc.Resolve("garbage")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}
