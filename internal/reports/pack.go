package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/formreports/internal/forms"
	"github.com/odyssey-erp/formreports/jobs"
)

// PackStatus captures the state of a queued consolidated pack.
type PackStatus string

const (
	PackPending    PackStatus = "PENDING"
	PackInProgress PackStatus = "IN_PROGRESS"
	PackReady      PackStatus = "READY"
	PackFailed     PackStatus = "FAILED"
)

var (
	// ErrPackNotFound is returned when the pack id is unknown or expired.
	ErrPackNotFound = errors.New("reports: pack not found")
	// ErrInvalidPackStatus is returned on an illegal status transition.
	ErrInvalidPackStatus = errors.New("reports: invalid pack status transition")
	// ErrPackNotReady is returned when downloading an unfinished pack.
	ErrPackNotReady = errors.New("reports: pack not ready")
)

// Pack is a queued consolidated report.
type Pack struct {
	ID          string       `json:"id"`
	Period      forms.Period `json:"period"`
	Status      PackStatus   `json:"status"`
	FilePath    string       `json:"file_path,omitempty"`
	FileSize    int64        `json:"file_size,omitempty"`
	Records     int          `json:"records,omitempty"`
	Parts       int          `json:"parts,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	GeneratedAt *time.Time   `json:"generated_at,omitempty"`
}

// Filename is the download name of the pack.
func (p Pack) Filename() string {
	return ConsolidatedFilename
}

// PackStore keeps pack records in Redis with a retention TTL.
type PackStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewPackStore constructs a store.
func NewPackStore(client *redis.Client, ttl time.Duration) *PackStore {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &PackStore{client: client, ttl: ttl, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *PackStore) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func packKey(id string) string {
	return "formreports:pack:" + id
}

// Create stores a new PENDING pack.
func (s *PackStore) Create(ctx context.Context, period forms.Period) (Pack, error) {
	if err := checkPeriod(period); err != nil {
		return Pack{}, err
	}
	now := s.now().UTC()
	pack := Pack{
		ID:        uuid.NewString(),
		Period:    period,
		Status:    PackPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.put(ctx, s.client, pack); err != nil {
		return Pack{}, err
	}
	return pack, nil
}

// Get loads a pack.
func (s *PackStore) Get(ctx context.Context, id string) (Pack, error) {
	return s.get(ctx, s.client, id)
}

// MarkInProgress moves a PENDING pack to IN_PROGRESS.
func (s *PackStore) MarkInProgress(ctx context.Context, id string) (Pack, error) {
	return s.transition(ctx, id, func(p *Pack) error {
		if p.Status != PackPending {
			return ErrInvalidPackStatus
		}
		p.Status = PackInProgress
		return nil
	})
}

// MarkReady records the produced file.
func (s *PackStore) MarkReady(ctx context.Context, id, path string, res Result) (Pack, error) {
	return s.transition(ctx, id, func(p *Pack) error {
		if p.Status != PackInProgress {
			return ErrInvalidPackStatus
		}
		generated := s.now().UTC()
		p.Status = PackReady
		p.FilePath = path
		p.FileSize = int64(len(res.PDF))
		p.Records = res.Records
		p.Parts = res.Parts
		p.Warnings = res.Warnings
		p.Error = ""
		p.GeneratedAt = &generated
		return nil
	})
}

// MarkFailed records the failure message.
func (s *PackStore) MarkFailed(ctx context.Context, id, message string) (Pack, error) {
	return s.transition(ctx, id, func(p *Pack) error {
		if p.Status == PackReady {
			return ErrInvalidPackStatus
		}
		p.Status = PackFailed
		p.Error = strings.TrimSpace(message)
		return nil
	})
}

func (s *PackStore) transition(ctx context.Context, id string, fn func(*Pack) error) (Pack, error) {
	var out Pack
	key := packKey(id)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		pack, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&pack); err != nil {
			return err
		}
		pack.UpdatedAt = s.now().UTC()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.put(ctx, pipe, pack)
		})
		if err == nil {
			out = pack
		}
		return err
	}, key)
	if err != nil {
		return Pack{}, err
	}
	return out, nil
}

func (s *PackStore) get(ctx context.Context, c redis.Cmdable, id string) (Pack, error) {
	if strings.TrimSpace(id) == "" {
		return Pack{}, ErrPackNotFound
	}
	payload, err := c.Get(ctx, packKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Pack{}, ErrPackNotFound
	}
	if err != nil {
		return Pack{}, fmt.Errorf("reports: load pack: %w", err)
	}
	var pack Pack
	if err := json.Unmarshal(payload, &pack); err != nil {
		return Pack{}, fmt.Errorf("reports: decode pack: %w", err)
	}
	return pack, nil
}

func (s *PackStore) put(ctx context.Context, c redis.Cmdable, pack Pack) error {
	payload, err := json.Marshal(pack)
	if err != nil {
		return err
	}
	return c.Set(ctx, packKey(pack.ID), payload, s.ttl).Err()
}

// PackQueue submits pack assembly work.
type PackQueue interface {
	EnqueueConsolidatePack(ctx context.Context, payload jobs.ConsolidatePackPayload) (*asynq.TaskInfo, error)
}

// Packs is the request side of queued consolidated reports.
type Packs struct {
	store *PackStore
	queue PackQueue
}

// NewPacks constructs the request facade.
func NewPacks(store *PackStore, queue PackQueue) *Packs {
	return &Packs{store: store, queue: queue}
}

// Request stores a pack and enqueues its assembly. An enqueue failure marks
// the pack FAILED and is returned.
func (p *Packs) Request(ctx context.Context, period forms.Period) (Pack, error) {
	if p == nil || p.store == nil || p.queue == nil {
		return Pack{}, fmt.Errorf("reports: pack queue not configured")
	}
	pack, err := p.store.Create(ctx, period)
	if err != nil {
		return Pack{}, err
	}
	if _, err := p.queue.EnqueueConsolidatePack(ctx, jobs.ConsolidatePackPayload{PackID: pack.ID}); err != nil {
		_, _ = p.store.MarkFailed(ctx, pack.ID, err.Error())
		return Pack{}, fmt.Errorf("reports: enqueue pack: %w", err)
	}
	return pack, nil
}

// Get loads a pack.
func (p *Packs) Get(ctx context.Context, id string) (Pack, error) {
	if p == nil || p.store == nil {
		return Pack{}, ErrPackNotFound
	}
	return p.store.Get(ctx, id)
}

// Ready loads a pack and checks it can be downloaded.
func (p *Packs) Ready(ctx context.Context, id string) (Pack, error) {
	pack, err := p.Get(ctx, id)
	if err != nil {
		return Pack{}, err
	}
	if pack.Status != PackReady || pack.FilePath == "" {
		return pack, ErrPackNotReady
	}
	return pack, nil
}
