package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueReports carries report assembly work.
	QueueReports = "reports"
	// TaskConsolidatePack assembles a queued consolidated pack.
	TaskConsolidatePack = "reports:consolidate"
	// TaskSweepPacks removes pack files past their retention.
	TaskSweepPacks = "reports:sweep"
)

// NewSweepPacksTask constructs the periodic sweep task.
func NewSweepPacksTask() *asynq.Task {
	return asynq.NewTask(TaskSweepPacks, nil)
}

// ConsolidatePackPayload identifies the pack record to assemble.
type ConsolidatePackPayload struct {
	PackID string `json:"pack_id"`
}

// NewConsolidatePackTask constructs an Asynq task.
func NewConsolidatePackTask(payload ConsolidatePackPayload) (*asynq.Task, error) {
	if strings.TrimSpace(payload.PackID) == "" {
		return nil, errors.New("jobs: pack id required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConsolidatePack, data), nil
}

// ParseConsolidatePackPayload decodes a task payload.
func ParseConsolidatePackPayload(task *asynq.Task) (ConsolidatePackPayload, error) {
	var payload ConsolidatePackPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ConsolidatePackPayload{}, err
	}
	if strings.TrimSpace(payload.PackID) == "" {
		return ConsolidatePackPayload{}, errors.New("jobs: pack id required")
	}
	return payload, nil
}
