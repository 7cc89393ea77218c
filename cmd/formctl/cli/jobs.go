package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/formreports/internal/forms"
	"github.com/odyssey-erp/formreports/internal/reports"
)

// PackRequester queues consolidated packs.
type PackRequester interface {
	Request(ctx context.Context, period forms.Period) (reports.Pack, error)
}

// JobsCLI queues consolidated packs and inspects the report queue.
type JobsCLI struct {
	packs     PackRequester
	inspector *asynq.Inspector
	queue     string
}

// NewJobsCLI wires the helper. inspector may be nil.
func NewJobsCLI(packs PackRequester, inspector *asynq.Inspector, queue string) *JobsCLI {
	return &JobsCLI{packs: packs, inspector: inspector, queue: queue}
}

// EnqueueCommand queues a consolidated pack and prints its id.
func (c *JobsCLI) EnqueueCommand(ctx context.Context, fyYear, month string, stdout, stderr io.Writer) int {
	stdout, stderr = streams(stdout, stderr)
	if fyYear == "" || month == "" {
		_, _ = fmt.Fprintln(stderr, "enqueue: --fy-year and --month are required")
		return 2
	}
	if c == nil || c.packs == nil {
		_, _ = fmt.Fprintln(stderr, "enqueue: pack queue not configured")
		return 1
	}
	pack, err := c.packs.Request(ctx, forms.Period{FiscalYear: fyYear, Month: month})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "enqueue: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "queued pack %s (%s)\n", pack.ID, pack.Status)
	return 0
}

// QueueStats summarises the report queue.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Completed int
	Failed    int
}

// InspectQueue reports the queue counters.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(c.queue)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: c.queue}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Completed = info.Completed
		stats.Failed = info.Failed
	}
	return stats, nil
}
