package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/formreports/internal/attachments"
	"github.com/odyssey-erp/formreports/internal/forms"
	"github.com/odyssey-erp/formreports/internal/forms/api"
	"github.com/odyssey-erp/formreports/internal/forms/postgres"
	"github.com/odyssey-erp/formreports/internal/observability"
	"github.com/odyssey-erp/formreports/internal/platform/db"
	"github.com/odyssey-erp/formreports/internal/reports"
	"github.com/odyssey-erp/formreports/internal/reports/native"
	"github.com/odyssey-erp/formreports/report"
)

// Reports is the report stack shared by the server, the worker and formctl.
type Reports struct {
	Service   *reports.Service
	Source    *forms.CachedSource
	Gotenberg *report.Client

	closers []func()
}

// Close releases the resources opened by BuildReports.
func (r *Reports) Close() {
	if r == nil {
		return
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// BuildReports wires the forms source, renderer, attachment fetcher and
// merger selected by cfg. redisClient may be nil, which disables the
// option cache.
func BuildReports(ctx context.Context, cfg *Config, logger *slog.Logger, redisClient *redis.Client, metrics *observability.Metrics) (*Reports, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	out := &Reports{}

	var source forms.Source
	switch cfg.FormsSource {
	case SourcePostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		out.closers = append(out.closers, pool.Close)
		source = postgres.NewRepository(pool)
	default:
		source = api.NewClient(cfg.FormsAPIURL, cfg.FormsAPITimeout)
	}
	out.Source = forms.NewCachedSource(source, redisClient, cfg.OptionsCacheTTL, logger)

	out.Gotenberg = report.NewClient(cfg.GotenbergURL)
	var renderer reports.Renderer
	if cfg.RenderEngine == EngineNative {
		renderer = native.NewRenderer()
	} else {
		htmlRenderer, err := reports.NewHTMLRenderer(out.Gotenberg)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("app: init renderer: %w", err)
		}
		renderer = htmlRenderer
	}

	fetcher := attachments.NewFetcher(cfg.AttachmentBaseURL, logger,
		attachments.WithMaxBytes(cfg.AttachmentMaxBytes),
		attachments.WithMetrics(metrics),
	)

	out.Service = reports.NewService(reports.ServiceConfig{
		Source:      out.Source,
		Builder:     reports.NewBuilder(reports.NewAmountFormatter(cfg.ReportLocale)),
		Renderer:    renderer,
		Merger:      out.Gotenberg,
		Attachments: fetcher,
		Metrics:     metrics,
		Logger:      logger,
	})
	logger.Info("report stack ready",
		slog.String("source", cfg.FormsSource),
		slog.String("engine", cfg.RenderEngine))
	return out, nil
}
