package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docllama/internal/config"
	"docllama/internal/logger"
	"docllama/models"

	"github.com/hibiken/asynq"
)

const (
	TaskIngestDocument = "document:ingest"
	QueueIngest        = "ingest"

	// Finished tasks stay inspectable for this long.
	resultRetention = 24 * time.Hour
)

var ErrTaskNotFound = errors.New("task not found")

// RedisConnOpt derives the asynq connection from the shared Redis settings.
func RedisConnOpt(cfg *config.Config) (asynq.RedisClientOpt, error) {
	opts, err := config.RedisOptions(cfg)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}, nil
}

// NewIngestTask builds the task for one stored PDF.
func NewIngestTask(payload models.IngestTaskPayload, timeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	return asynq.NewTask(
		TaskIngestDocument,
		data,
		asynq.MaxRetry(3),
		asynq.Timeout(timeout),
		asynq.Queue(QueueIngest),
		asynq.Retention(resultRetention),
	), nil
}

// Enqueuer submits ingest tasks and reports on them.
type Enqueuer struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	timeout   time.Duration
}

func NewEnqueuer(opt asynq.RedisConnOpt, timeout time.Duration) *Enqueuer {
	return &Enqueuer{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		timeout:   timeout,
	}
}

func (e *Enqueuer) Enqueue(ctx context.Context, payload models.IngestTaskPayload) (*models.IngestTaskInfo, error) {
	task, err := NewIngestTask(payload, e.timeout)
	if err != nil {
		return nil, err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", payload.Filename, err)
	}
	logger.Info("Ingest task queued", "task_id", info.ID, "file", payload.Filename)
	return taskInfo(info), nil
}

// TaskInfo looks up a task by ID in the ingest queue.
func (e *Enqueuer) TaskInfo(_ context.Context, id string) (*models.IngestTaskInfo, error) {
	info, err := e.inspector.GetTaskInfo(QueueIngest, id)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return taskInfo(info), nil
}

func (e *Enqueuer) Close() error {
	return errors.Join(e.client.Close(), e.inspector.Close())
}

func taskInfo(info *asynq.TaskInfo) *models.IngestTaskInfo {
	out := &models.IngestTaskInfo{
		ID:    info.ID,
		Queue: info.Queue,
		State: info.State.String(),
		Error: info.LastErr,
	}

	var payload models.IngestTaskPayload
	if err := json.Unmarshal(info.Payload, &payload); err == nil {
		out.File = payload.Filename
	}
	if len(info.Result) > 0 {
		var result models.IngestResult
		if err := json.Unmarshal(info.Result, &result); err == nil {
			out.Result = &result
		}
	}
	return out
}

// DocumentProcessor runs the ingest pipeline for a stored PDF.
type DocumentProcessor interface {
	ProcessStored(ctx context.Context, payload models.IngestTaskPayload) models.IngestResult
}

// TaskProcessor handles ingest tasks on the worker side.
type TaskProcessor struct {
	documents DocumentProcessor
}

func NewTaskProcessor(documents DocumentProcessor) *TaskProcessor {
	return &TaskProcessor{documents: documents}
}

// ProcessIngest writes the per-document result as the task result. A failed
// document is returned as an error so asynq retries it.
func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload models.IngestTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	result := p.documents.ProcessStored(ctx, payload)
	if w := t.ResultWriter(); w != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			logger.Warn("Failed to write task result", "task_id", w.TaskID(), "error", err)
		}
	}

	if result.Status == models.IngestStatusFailed {
		return fmt.Errorf("ingest %s: %s", result.File, result.Error)
	}
	return nil
}
