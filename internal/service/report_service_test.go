package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-backoffice-api/internal/dto"
	"github.com/noah-isme/agency-backoffice-api/internal/models"
	"github.com/noah-isme/agency-backoffice-api/internal/repository"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
	"github.com/noah-isme/agency-backoffice-api/pkg/jobs"
)

type reportRepoStub struct {
	mu      sync.Mutex
	jobs    map[string]*models.ReportJob
	expired []string
}

func newReportRepoStub() *reportRepoStub {
	return &reportRepoStub{jobs: map[string]*models.ReportJob{}}
}

func (r *reportRepoStub) Create(_ context.Context, job *models.ReportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	clone := *job
	r.jobs[job.ID] = &clone
	return nil
}

func (r *reportRepoStub) GetByID(_ context.Context, tenantID, id string) (*models.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || (tenantID != "" && job.CompanyID != tenantID) {
		return nil, sql.ErrNoRows
	}
	clone := *job
	return &clone, nil
}

func (r *reportRepoStub) status(id string) models.ReportStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id].Status
}

func (r *reportRepoStub) Update(_ context.Context, id string, params repository.UpdateReportJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *reportRepoStub) ListQueued(_ context.Context, _ int) ([]models.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var queued []models.ReportJob
	for _, job := range r.jobs {
		if job.Status == models.ReportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (r *reportRepoStub) ListFinishedBefore(_ context.Context, cutoff time.Time, _ int) ([]models.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var finished []models.ReportJob
	for _, job := range r.jobs {
		if job.Status == models.ReportStatusFinished && job.ResultURL != nil && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			finished = append(finished, *job)
		}
	}
	return finished, nil
}

func (r *reportRepoStub) MarkExpired(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id].ResultURL = nil
	r.expired = append(r.expired, id)
	return nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type reportFixture struct {
	service  *ReportService
	worker   *ReportWorker
	repo     *reportRepoStub
	queue    *queueStub
	exporter *ExportService
}

func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()
	repo := newReportRepoStub()
	queue := &queueStub{}
	exporter, _, _ := newExportServiceForTest(t)
	svc := NewReportService(repo, queue, exporter, NewAccessGuard(nil), nil, nil, zap.NewNop(), ReportServiceConfig{ResultTTL: time.Hour})
	return &reportFixture{
		service:  svc,
		worker:   NewReportWorker(repo, exporter, nil, zap.NewNop()),
		repo:     repo,
		queue:    queue,
		exporter: exporter,
	}
}

func TestReportServiceCreateJob(t *testing.T) {
	f := newReportFixture(t)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.FixedZone("AST", 3*3600))

	resp, err := f.service.CreateJob(context.Background(), actorFor(models.RoleAdmin, "tenant-a"), dto.ReportRequest{
		Type:   models.ReportTypePayments,
		Format: models.ReportFormatXLSX,
		From:   &from,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, jobs.Job{ID: resp.ID, TenantID: "tenant-a", Kind: ReportJobKind}, f.queue.jobs[0])

	stored := f.repo.jobs[resp.ID]
	assert.Equal(t, "tenant-a", stored.CompanyID)
	assert.Equal(t, "user-ADMIN", stored.CreatedBy)
	assert.Equal(t, time.UTC, stored.Params.From.Location())
}

func TestReportServiceCreateJobRejects(t *testing.T) {
	f := newReportFixture(t)
	admin := actorFor(models.RoleAdmin, "tenant-a")

	_, err := f.service.CreateJob(context.Background(), actorFor(models.RoleStaff, "tenant-a"), dto.ReportRequest{Type: models.ReportTypeCosts, Format: models.ReportFormatCSV})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.service.CreateJob(context.Background(), admin, dto.ReportRequest{Type: "grades", Format: models.ReportFormatCSV})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, -1, 0)
	_, err = f.service.CreateJob(context.Background(), admin, dto.ReportRequest{Type: models.ReportTypeCosts, Format: models.ReportFormatCSV, From: &from, To: &to})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Empty(t, f.repo.jobs)

	f.queue.err = jobs.ErrQueueStopped
	_, err = f.service.CreateJob(context.Background(), admin, dto.ReportRequest{Type: models.ReportTypeCosts, Format: models.ReportFormatCSV})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	for _, job := range f.repo.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
	}
}

func TestReportServiceGetStatusIsTenantScoped(t *testing.T) {
	f := newReportFixture(t)
	msg := "boom"
	f.repo.jobs["job-1"] = &models.ReportJob{ID: "job-1", CompanyID: "tenant-a", Type: models.ReportTypeCosts, Status: models.ReportStatusQueued, ErrorMessage: &msg}

	resp, err := f.service.GetStatus(context.Background(), actorFor(models.RoleAdmin, "tenant-a"), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportTypeCosts, resp.Type)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", *resp.Error)

	_, err = f.service.GetStatus(context.Background(), actorFor(models.RoleAdmin, "tenant-b"), "job-1")
	assert.Equal(t, appErrors.ErrNotFound, err)
}

func TestReportWorkerGeneratesAndDownloadResolves(t *testing.T) {
	f := newReportFixture(t)
	resp, err := f.service.CreateJob(context.Background(), actorFor(models.RoleAdmin, "tenant-a"), dto.ReportRequest{Type: models.ReportTypePayments, Format: models.ReportFormatCSV})
	require.NoError(t, err)

	require.NoError(t, f.worker.Handle(context.Background(), f.queue.jobs[0]))
	job := f.repo.jobs[resp.ID]
	assert.Equal(t, models.ReportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultURL)

	token := extractToken(*job.ResultURL)
	download, err := f.service.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "text/csv", download.ContentType)
	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(body), "CLIENT-1")

	_, err = f.service.ResolveDownload(context.Background(), token+"x")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	other, _, err := f.exporter.signer.Generate("tenant-a", resp.ID, "tenant-a/other.csv")
	require.NoError(t, err)
	_, err = f.service.ResolveDownload(context.Background(), other)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

type exportStub struct {
	result *ExportResult
	err    error
}

func (e exportStub) Generate(context.Context, *models.ReportJob) (*ExportResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func TestReportWorkerFailureRequeuesUntilDead(t *testing.T) {
	repo := newReportRepoStub()
	repo.jobs["job-1"] = &models.ReportJob{ID: "job-1", CompanyID: "tenant-a", Type: models.ReportTypeCosts, Status: models.ReportStatusQueued}
	worker := NewReportWorker(repo, exportStub{err: errors.New("boom")}, nil, zap.NewNop())

	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond, OnDead: worker.OnDead})
	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(jobs.Job{ID: "job-1", TenantID: "tenant-a", Kind: ReportJobKind}))
	require.Eventually(t, func() bool {
		return repo.status("job-1") == models.ReportStatusFailed
	}, 2*time.Second, 5*time.Millisecond)

	job, err := repo.GetByID(context.Background(), "tenant-a", "job-1")
	require.NoError(t, err)
	assert.Equal(t, "boom", *job.ErrorMessage)
	assert.NotNil(t, job.FinishedAt)
}

func TestReportServiceCleanupExpired(t *testing.T) {
	f := newReportFixture(t)
	resp, err := f.service.CreateJob(context.Background(), actorFor(models.RoleAdmin, "tenant-a"), dto.ReportRequest{Type: models.ReportTypeCosts, Format: models.ReportFormatCSV})
	require.NoError(t, err)
	require.NoError(t, f.worker.Handle(context.Background(), f.queue.jobs[0]))

	token := extractToken(*f.repo.jobs[resp.ID].ResultURL)
	claims, err := f.exporter.ParseToken(token, false)
	require.NoError(t, err)

	require.NoError(t, f.service.CleanupExpired(context.Background()))
	assert.Empty(t, f.repo.expired)

	f.service.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.NoError(t, f.service.CleanupExpired(context.Background()))
	assert.Equal(t, []string{resp.ID}, f.repo.expired)
	assert.Nil(t, f.repo.jobs[resp.ID].ResultURL)

	_, err = f.exporter.Open(claims.Path)
	assert.Error(t, err)

	task := f.service.CleanupTask()
	assert.Equal(t, "@every 1h", task.Spec)
	assert.NotNil(t, task.Run)
}
