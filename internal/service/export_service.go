package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
	"github.com/noah-isme/agency-backoffice-api/pkg/export"
	"github.com/noah-isme/agency-backoffice-api/pkg/storage"
)

type paymentRangeReader interface {
	ListBetween(ctx context.Context, tenantID string, from, to *time.Time) ([]models.Payment, error)
}

type costRangeReader interface {
	ListBetween(ctx context.Context, tenantID string, from, to *time.Time) ([]models.Cost, error)
}

type settlementRangeReader interface {
	ListBetween(ctx context.Context, tenantID string, from, to *time.Time) ([]models.CancellationSettlement, error)
}

type fileStorage interface {
	Save(tenantID, filename string, data []byte) (string, error)
	Open(rel string) (*os.File, error)
	Delete(rel string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// DatasetRenderer turns a dataset into a downloadable document.
type DatasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	payments    paymentRangeReader
	costs       costRangeReader
	settlements settlementRangeReader
	storage     fileStorage
	renderers   map[models.ReportFormat]DatasetRenderer
	signer      *storage.SignedURLSigner
	logger      *zap.Logger
	cfg         ExportConfig
	now         func() time.Time
}

// NewExportService constructs an ExportService with the CSV, PDF and XLSX renderers.
func NewExportService(payments paymentRangeReader, costs costRangeReader, settlements settlementRangeReader, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		payments:    payments,
		costs:       costs,
		settlements: settlements,
		storage:     files,
		renderers: map[models.ReportFormat]DatasetRenderer{
			models.ReportFormatCSV:  export.NewCSVExporter(),
			models.ReportFormatPDF:  export.NewPDFExporter(),
			models.ReportFormatXLSX: export.NewXLSXExporter(),
		},
		signer: signer,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Generate builds the dataset for the job, renders it and stores the file under the job's tenant.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	renderer, ok := s.renderers[job.Params.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	dataset, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", job.Params.Format, err)
	}

	relPath, err := s.storage.Save(job.CompanyID, s.buildFilename(job, renderer.Extension()), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.CompanyID, job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Debug("report rendered", zap.String("job_id", job.ID), zap.Int("rows", len(dataset.Rows)), zap.Int("bytes", len(payload)))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/reports/download/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates a download token.
func (s *ExportService) ParseToken(token string, allowExpired bool) (*storage.DownloadClaims, error) {
	return s.signer.Parse(token, allowExpired)
}

// ContentType returns the MIME type for a format.
func (s *ExportService) ContentType(format models.ReportFormat) string {
	if renderer, ok := s.renderers[format]; ok {
		return renderer.ContentType()
	}
	return "application/octet-stream"
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob, ext string) string {
	stamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", job.Type, rangeLabel(job.Params), stamp, ext)
}

func rangeLabel(params models.ReportJobParams) string {
	from, to := "start", "now"
	if params.From != nil {
		from = params.From.UTC().Format("20060102")
	}
	if params.To != nil {
		to = params.To.UTC().Format("20060102")
	}
	return from + "-" + to
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, error) {
	from, to := job.Params.From, job.Params.To
	switch job.Type {
	case models.ReportTypePayments:
		return s.paymentsDataset(ctx, job.CompanyID, from, to)
	case models.ReportTypeCosts:
		return s.costsDataset(ctx, job.CompanyID, from, to)
	case models.ReportTypeSettlements:
		return s.settlementsDataset(ctx, job.CompanyID, from, to)
	default:
		return export.Dataset{}, fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) paymentsDataset(ctx context.Context, tenantID string, from, to *time.Time) (export.Dataset, error) {
	payments, err := s.payments.ListBetween(ctx, tenantID, from, to)
	if err != nil {
		return export.Dataset{}, err
	}
	rows := make([][]string, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, []string{
			p.PaidAt.UTC().Format("2006-01-02"),
			p.ApplicationID,
			p.ClientRef,
			p.Type,
			money(p.Amount),
			p.Currency,
			yesNo(p.Refundable),
			yesNo(p.SettlementID != nil),
		})
	}
	return export.Dataset{
		Title:   "Payments " + rangeTitle(from, to),
		Headers: []string{"Paid At", "Application", "Client", "Type", "Amount", "Currency", "Refundable", "Settled"},
		Rows:    rows,
	}, nil
}

func (s *ExportService) costsDataset(ctx context.Context, tenantID string, from, to *time.Time) (export.Dataset, error) {
	costs, err := s.costs.ListBetween(ctx, tenantID, from, to)
	if err != nil {
		return export.Dataset{}, err
	}
	rows := make([][]string, 0, len(costs))
	for _, c := range costs {
		rows = append(rows, []string{
			c.IncurredAt.UTC().Format("2006-01-02"),
			c.ApplicationID,
			string(c.Type),
			money(c.Amount),
			c.Currency,
			c.Description,
		})
	}
	return export.Dataset{
		Title:   "Costs " + rangeTitle(from, to),
		Headers: []string{"Incurred At", "Application", "Type", "Amount", "Currency", "Description"},
		Rows:    rows,
	}, nil
}

func (s *ExportService) settlementsDataset(ctx context.Context, tenantID string, from, to *time.Time) (export.Dataset, error) {
	settlements, err := s.settlements.ListBetween(ctx, tenantID, from, to)
	if err != nil {
		return export.Dataset{}, err
	}
	rows := make([][]string, 0, len(settlements))
	for i := range settlements {
		st := &settlements[i]
		rows = append(rows, []string{
			st.ComputedAt.UTC().Format("2006-01-02"),
			st.ApplicationID,
			string(st.Class),
			string(st.ResponsibleParty),
			money(st.RefundAmount),
			money(st.PenaltyAmount),
			money(st.EffectiveRefund()),
			money(st.AbsorbedCost),
			st.Currency,
			yesNo(st.Finalized),
		})
	}
	return export.Dataset{
		Title:   "Settlements " + rangeTitle(from, to),
		Headers: []string{"Computed At", "Application", "Class", "Responsible", "Refund", "Penalty", "Effective Refund", "Absorbed Cost", "Currency", "Finalized"},
		Rows:    rows,
	}, nil
}

func rangeTitle(from, to *time.Time) string {
	start, end := "beginning", "today"
	if from != nil {
		start = from.UTC().Format("2006-01-02")
	}
	if to != nil {
		end = to.UTC().Format("2006-01-02")
	}
	return start + " to " + end
}
