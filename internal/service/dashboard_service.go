package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/agency-backoffice-api/internal/dto"
	"github.com/noah-isme/agency-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

const dashboardDateLayout = "2006-01-02"

type dashboardAggregates interface {
	CountByStatus(ctx context.Context, tenantID string) ([]models.PipelineColumn, error)
	PaymentsByMonth(ctx context.Context, tenantID string, rng models.DashboardRange) ([]models.MonthlyAmount, error)
	CostsByType(ctx context.Context, tenantID string, rng models.DashboardRange) ([]models.CategoryAmount, error)
	RefundsByClass(ctx context.Context, tenantID string, rng models.DashboardRange) ([]models.CategoryAmount, error)
}

// boardOrder is the column order of the pipeline board.
var boardOrder = append(append([]models.ApplicationStatus{}, mainline...),
	models.StatusRenewalPending,
	models.StatusContractEnded,
	models.StatusCancelledPreArrival,
	models.StatusCancelledPostArrival,
	models.StatusCancelledCandidate,
)

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL     time.Duration
	DefaultRange time.Duration
}

// DashboardService composes the pipeline board and finance charts.
type DashboardService struct {
	repo   dashboardAggregates
	guard  *AccessGuard
	cache  *CacheService
	logger *zap.Logger
	now    func() time.Time
	cfg    DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(repo dashboardAggregates, guard *AccessGuard, cache *CacheService, cfg DashboardServiceConfig, logger *zap.Logger) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.DefaultRange <= 0 {
		cfg.DefaultRange = 365 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		repo:   repo,
		guard:  guard,
		cache:  cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		cfg:    cfg,
	}
}

// Pipeline returns application counts for every lifecycle status with the next actions of each
// column. The boolean reports a cache hit.
func (s *DashboardService) Pipeline(ctx context.Context, actor *models.JWTClaims) (*models.PipelineBoard, bool, error) {
	if err := s.guard.Require(actor, CapApplicationsRead); err != nil {
		return nil, false, err
	}
	key := CacheKey("dashboard", actor.CompanyID, "pipeline")
	var cached models.PipelineBoard
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	rows, err := s.repo.CountByStatus(ctx, actor.CompanyID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pipeline")
	}
	counts := make(map[models.ApplicationStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	board := &models.PipelineBoard{Columns: make([]models.PipelineColumn, 0, len(boardOrder)), GeneratedAt: s.now()}
	for _, status := range boardOrder {
		board.Columns = append(board.Columns, models.PipelineColumn{
			Status:      status,
			Count:       counts[status],
			NextActions: AllowedTransitions(status),
		})
		board.Total += counts[status]
	}

	s.persistCache(ctx, key, board)
	return board, false, nil
}

// Finance returns payment, cost and refund series for the requested range. The three aggregates
// run concurrently.
func (s *DashboardService) Finance(ctx context.Context, actor *models.JWTClaims, query dto.DashboardQuery) (*models.FinanceDashboard, bool, error) {
	if err := s.guard.Require(actor, CapFinanceRead); err != nil {
		return nil, false, err
	}
	rng, err := s.parseRange(query)
	if err != nil {
		return nil, false, err
	}

	key := CacheKey("dashboard", actor.CompanyID, "finance", rng.From.Format(dashboardDateLayout), rng.To.Format(dashboardDateLayout))
	var cached models.FinanceDashboard
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	result := &models.FinanceDashboard{GeneratedAt: s.now()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.repo.PaymentsByMonth(gctx, actor.CompanyID, rng)
		result.PaymentsByMonth = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.repo.CostsByType(gctx, actor.CompanyID, rng)
		result.CostsByType = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.repo.RefundsByClass(gctx, actor.CompanyID, rng)
		result.RefundsByClass = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load finance dashboard")
	}
	if result.PaymentsByMonth == nil {
		result.PaymentsByMonth = []models.MonthlyAmount{}
	}
	if result.CostsByType == nil {
		result.CostsByType = []models.CategoryAmount{}
	}
	if result.RefundsByClass == nil {
		result.RefundsByClass = []models.CategoryAmount{}
	}

	s.persistCache(ctx, key, result)
	return result, false, nil
}

// parseRange resolves the query into a half-open [From, To) range. To is inclusive on input.
func (s *DashboardService) parseRange(query dto.DashboardQuery) (models.DashboardRange, error) {
	today := s.now().Truncate(24 * time.Hour)
	rng := models.DashboardRange{From: today.Add(-s.cfg.DefaultRange), To: today.AddDate(0, 0, 1)}
	if query.From != "" {
		from, err := time.Parse(dashboardDateLayout, query.From)
		if err != nil {
			return rng, appErrors.Clone(appErrors.ErrValidation, "from must use YYYY-MM-DD")
		}
		rng.From = from
	}
	if query.To != "" {
		to, err := time.Parse(dashboardDateLayout, query.To)
		if err != nil {
			return rng, appErrors.Clone(appErrors.ErrValidation, "to must use YYYY-MM-DD")
		}
		rng.To = to.AddDate(0, 0, 1)
	}
	if !rng.From.Before(rng.To) {
		return rng, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	return rng, nil
}

func (s *DashboardService) persistCache(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidateDashboards drops every cached dashboard of a tenant after a write that changes them.
func invalidateDashboards(ctx context.Context, cache *CacheService, tenantID string) {
	_ = cache.Invalidate(ctx, CacheKey("dashboard", tenantID, "*"))
}
