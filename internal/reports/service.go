package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/formreports/internal/attachments"
	"github.com/odyssey-erp/formreports/internal/forms"
	"github.com/odyssey-erp/formreports/internal/observability"
)

// AttachmentFetcher resolves optional attachments, folding failures into
// warnings.
type AttachmentFetcher interface {
	Optional(ctx context.Context, name string) (attachments.Attachment, string, bool)
}

// ServiceConfig wires the service dependencies.
type ServiceConfig struct {
	Source      forms.Source
	Builder     *Builder
	Renderer    Renderer
	Merger      Merger
	Attachments AttachmentFetcher
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// Service produces reports.
type Service struct {
	source      forms.Source
	builder     *Builder
	renderer    Renderer
	merger      Merger
	attachments AttachmentFetcher
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	builder := cfg.Builder
	if builder == nil {
		builder = NewBuilder(nil)
	}
	return &Service{
		source:      cfg.Source,
		builder:     builder,
		renderer:    cfg.Renderer,
		merger:      cfg.Merger,
		attachments: cfg.Attachments,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// Options loads the fiscal-year and month lists. Each list is loaded
// independently; a failing list is returned empty and its error joined.
func (s *Service) Options(ctx context.Context) (Options, error) {
	var (
		opts Options
		errs []error
	)
	years, err := s.source.FiscalYears(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("fiscal years: %w", err))
	} else {
		opts.FiscalYears = years
	}
	months, err := s.source.Months(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("months: %w", err))
	} else {
		opts.Months = months
	}
	return opts, errors.Join(errs...)
}

// Summary renders the summary PDF for period.
func (s *Service) Summary(ctx context.Context, period forms.Period) (res Result, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveReport(string(KindSummary), started, err) }()

	if err := checkPeriod(period); err != nil {
		return Result{}, err
	}
	if s.renderer == nil {
		return Result{}, ErrRendererMissing
	}
	records, err := s.source.ByPeriod(ctx, period)
	if err != nil {
		return Result{}, fmt.Errorf("reports: load forms: %w", err)
	}
	pdf, err := s.renderer.RenderSummary(ctx, s.builder.Summary(period, records))
	if err != nil {
		return Result{}, fmt.Errorf("reports: render summary: %w", err)
	}
	return Result{
		Kind:     KindSummary,
		Filename: SummaryFilename,
		PDF:      pdf,
		Records:  len(records),
		Parts:    1,
	}, nil
}

// Consolidated renders the summary, then for each record its detail page and
// attachment, and merges everything in order. Work is strictly sequential.
// Attachment problems become warnings; any other failure aborts.
func (s *Service) Consolidated(ctx context.Context, period forms.Period) (res Result, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveReport(string(KindConsolidated), started, err) }()

	if err := checkPeriod(period); err != nil {
		return Result{}, err
	}
	if s.renderer == nil || s.merger == nil {
		return Result{}, ErrRendererMissing
	}
	records, err := s.source.ByPeriod(ctx, period)
	if err != nil {
		return Result{}, fmt.Errorf("reports: load forms: %w", err)
	}

	summary, err := s.renderer.RenderSummary(ctx, s.builder.Summary(period, records))
	if err != nil {
		return Result{}, fmt.Errorf("reports: render summary: %w", err)
	}
	parts := [][]byte{summary}
	var warnings []string

	for i, rec := range records {
		detail := s.builder.Detail(i+1, rec)
		page, err := s.renderer.RenderDetail(ctx, detail)
		if err != nil {
			return Result{}, fmt.Errorf("reports: render detail %d: %w", detail.Index, err)
		}
		parts = append(parts, page)

		if s.attachments == nil || detail.Attachment == "" {
			continue
		}
		att, warning, ok := s.attachments.Optional(ctx, detail.Attachment)
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if warning != "" {
			warnings = append(warnings, warning)
		}
		if ok {
			parts = append(parts, att.Data)
		}
	}

	merged, err := s.merger.Merge(ctx, parts)
	if err != nil {
		return Result{}, fmt.Errorf("reports: merge: %w", err)
	}
	if len(warnings) > 0 {
		s.logger.Info("consolidated report produced with warnings",
			slog.String("period", period.Key()),
			slog.Int("warnings", len(warnings)))
	}
	return Result{
		Kind:     KindConsolidated,
		Filename: ConsolidatedFilename,
		PDF:      merged,
		Records:  len(records),
		Parts:    len(parts),
		Warnings: warnings,
	}, nil
}

// Filter lists the forms dated within rng.
func (s *Service) Filter(ctx context.Context, rng forms.DateRange) (Listing, error) {
	if err := rng.Validate(); err != nil {
		return Listing{}, err
	}
	records, err := s.source.ByDateRange(ctx, rng)
	if err != nil {
		return Listing{}, fmt.Errorf("reports: filter forms: %w", err)
	}
	return Listing{Range: rng, Rows: s.builder.Rows(records)}, nil
}

func checkPeriod(p forms.Period) error {
	if strings.TrimSpace(p.FiscalYear) == "" || strings.TrimSpace(p.Month) == "" {
		return ErrIncompletePeriod
	}
	return nil
}
