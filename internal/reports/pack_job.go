package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/formreports/internal/jobs"
	"github.com/odyssey-erp/formreports/jobs"
)

const packJobName = "consolidate_pack"

// PackJobConfig wires dependencies required by the worker job.
type PackJobConfig struct {
	Store      *PackStore
	Service    *Service
	StorageDir string
	Retention  time.Duration
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// PackJob assembles queued consolidated packs.
type PackJob struct {
	store      *PackStore
	service    *Service
	storageDir string
	retention  time.Duration
	logger     *slog.Logger
	metrics    *jobmetrics.Metrics
}

// NewPackJob constructs a PackJob.
func NewPackJob(cfg PackJobConfig) *PackJob {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dir := strings.TrimSpace(cfg.StorageDir)
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "formreports")
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	return &PackJob{
		store:      cfg.Store,
		service:    cfg.Service,
		storageDir: dir,
		retention:  retention,
		logger:     logger,
		metrics:    cfg.Metrics,
	}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *PackJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.store == nil || j.service == nil {
		return fmt.Errorf("pack job not configured")
	}
	payload, err := jobs.ParseConsolidatePackPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	tracker := j.metrics.Track(packJobName)
	defer func() { err = tracker.End(err) }()

	pack, err := j.store.MarkInProgress(ctx, payload.PackID)
	switch {
	case errors.Is(err, ErrPackNotFound):
		j.logger.Warn("pack vanished before assembly", slog.String("pack_id", payload.PackID))
		return nil
	case errors.Is(err, ErrInvalidPackStatus):
		// a duplicate delivery; the first run owns the pack
		return nil
	case err != nil:
		return err
	}

	res, err := j.service.Consolidated(ctx, pack.Period)
	if err != nil {
		j.fail(pack.ID, err)
		return err
	}
	path, err := j.save(pack.ID, res.PDF)
	if err != nil {
		j.fail(pack.ID, err)
		return err
	}
	if _, err := j.store.MarkReady(ctx, pack.ID, path, res); err != nil {
		return err
	}
	j.metrics.AddWarnings(packJobName, len(res.Warnings))
	j.logger.Info("consolidated pack ready",
		slog.String("pack_id", pack.ID),
		slog.String("file", path),
		slog.Int("parts", res.Parts),
		slog.Int("warnings", len(res.Warnings)))
	return nil
}

// Sweep removes pack files older than the retention window. It is wired as a
// periodic task.
func (j *PackJob) Sweep(ctx context.Context, _ *asynq.Task) error {
	entries, err := os.ReadDir(j.storageDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-j.retention)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pdf") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.storageDir, entry.Name())); err != nil {
			j.logger.Warn("remove expired pack", slog.String("file", entry.Name()), slog.Any("error", err))
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("expired packs removed", slog.Int("count", removed))
	}
	return nil
}

func (j *PackJob) fail(id string, cause error) {
	// the task context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := j.store.MarkFailed(ctx, id, cause.Error()); err != nil {
		j.logger.Error("mark pack failed", slog.String("pack_id", id), slog.Any("error", err))
	}
}

func (j *PackJob) save(id string, pdf []byte) (string, error) {
	if err := os.MkdirAll(j.storageDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(j.storageDir, fmt.Sprintf("consolidated-%s.pdf", id))
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
