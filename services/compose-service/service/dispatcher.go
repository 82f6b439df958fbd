package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/RigelNana/backdrop/pkg/metrics"
	"github.com/RigelNana/backdrop/services/compose-service/models"
	"github.com/RigelNana/backdrop/services/compose-service/repository"
)

var (
	ErrQueueFull        = errors.New("run queue is full")
	ErrDispatcherClosed = errors.New("dispatcher is stopped")
	ErrRunNotFound      = errors.New("run not found")
	ErrPairOutOfRange   = errors.New("pair index out of range")
)

type runJob struct {
	ctx        context.Context
	run        *models.Run
	pairs      []models.Pair
	credential string
	// single is set for a one-off generation that records no run
	single chan<- singleResult
}

type singleResult struct {
	outcome *models.GenerationOutcome
	err     error
}

const sessionRunsLimit = 100

// Dispatcher owns the single worker that executes runs. Runs are queued and
// executed one after another, so provider calls of two runs never overlap.
type Dispatcher struct {
	orchestrator *Orchestrator
	runs         repository.RunRepository
	hub          *ProgressHub
	logger       *logrus.Logger

	jobs chan runJob
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
	closed  bool
}

func NewDispatcher(orchestrator *Orchestrator, runs repository.RunRepository, hub *ProgressHub, queueSize int, logger *logrus.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Dispatcher{
		orchestrator: orchestrator,
		runs:         runs,
		hub:          hub,
		logger:       logger,
		jobs:         make(chan runJob, queueSize),
		ctx:          ctx,
		stop:         stop,
		cancels:      make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start launches the worker goroutine.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-d.ctx.Done():
				d.drain()
				return
			case job := <-d.jobs:
				d.handle(job)
			}
		}
	}()
	d.logger.Info("run dispatcher started")
}

// drain finishes queued jobs after stop; their contexts are already
// canceled so no provider call is made.
func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.jobs:
			d.handle(job)
		default:
			return
		}
	}
}

// Stop cancels queued and running runs and waits for the worker to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.stop()
	d.wg.Wait()
}

// Submit validates pairs and credential synchronously, records a queued run
// and hands it to the worker.
func (d *Dispatcher) Submit(sessionID, source string, pairs []models.Pair, credential string, retryOf *uuid.UUID) (*models.Run, error) {
	key, err := d.orchestrator.Prepare(pairs, credential)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDispatcherClosed
	}

	run := models.NewRun(sessionID, source, d.orchestrator.Strategy(), pairs)
	run.RetryOf = retryOf
	if err := d.runs.Create(run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	ctx, cancel := context.WithCancel(d.ctx)
	job := runJob{ctx: ctx, run: run, pairs: pairs, credential: key}
	select {
	case d.jobs <- job:
	default:
		cancel()
		if err := d.runs.SetStatus(run.ID, models.RunStatusCanceled); err != nil {
			d.logger.WithError(err).Error("failed to cancel rejected run")
		}
		return nil, ErrQueueFull
	}
	d.cancels[run.ID] = cancel
	metrics.RunsInFlight.Inc()

	d.logger.WithFields(logrus.Fields{"run_id": run.ID, "source": source, "pairs": len(pairs)}).Info("run queued")
	return run, nil
}

// Retry queues a new one-pair run for pairs[index] of an earlier run. The
// earlier run is left untouched.
func (d *Dispatcher) Retry(runID uuid.UUID, index int, credential string) (*models.Run, error) {
	prev, err := d.Get(runID)
	if err != nil {
		return nil, err
	}
	pairs := prev.Pairs.Data()
	if index < 0 || index >= len(pairs) {
		return nil, ErrPairOutOfRange
	}
	return d.Submit(prev.SessionID, models.RunSourceRetry, []models.Pair{pairs[index]}, credential, &prev.ID)
}

// Cancel stops a queued or running run between pairs.
func (d *Dispatcher) Cancel(runID uuid.UUID) bool {
	d.mu.Lock()
	cancel, ok := d.cancels[runID]
	d.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Generate runs one pair on the worker, after any queued runs, and waits for
// the outcome. Nothing is recorded.
func (d *Dispatcher) Generate(ctx context.Context, pair models.Pair, credential string) (*models.GenerationOutcome, error) {
	key, err := d.orchestrator.Prepare([]models.Pair{pair}, credential)
	if err != nil {
		return nil, err
	}

	done := make(chan singleResult, 1)
	job := runJob{ctx: ctx, pairs: []models.Pair{pair}, credential: key, single: done}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDispatcherClosed
	}
	select {
	case d.jobs <- job:
	default:
		d.mu.Unlock()
		return nil, ErrQueueFull
	}
	d.mu.Unlock()

	select {
	case res := <-done:
		return res.outcome, res.err
	case <-ctx.Done():
		return nil, AsGenerationError(ctx.Err())
	}
}

// ListBySession returns the session's runs, newest first.
func (d *Dispatcher) ListBySession(sessionID string) ([]*models.Run, error) {
	return d.runs.ListBySession(sessionID, sessionRunsLimit, 0)
}

// EndSession cancels the session's runs and deletes their records, image
// payloads included.
func (d *Dispatcher) EndSession(sessionID string) error {
	runs, err := d.runs.ListBySession(sessionID, -1, 0)
	if err != nil {
		return fmt.Errorf("list session runs: %w", err)
	}
	for _, run := range runs {
		d.Cancel(run.ID)
		if err := d.runs.Delete(run.ID); err != nil {
			return fmt.Errorf("delete run %s: %w", run.ID, err)
		}
	}
	d.logger.WithFields(logrus.Fields{"session_id": sessionID, "runs": len(runs)}).Info("session runs discarded")
	return nil
}

func (d *Dispatcher) Get(runID uuid.UUID) (*models.Run, error) {
	run, err := d.runs.GetByID(runID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	return run, err
}

func (d *Dispatcher) Hub() *ProgressHub {
	return d.hub
}

// Execute runs pairs on the calling goroutine and records the run. Used by
// callers that already serialize their work, like the queue consumer.
func (d *Dispatcher) Execute(ctx context.Context, source string, pairs []models.Pair, credential string) (*models.Run, error) {
	key, err := d.orchestrator.Prepare(pairs, credential)
	if err != nil {
		return nil, err
	}
	run := models.NewRun("", source, d.orchestrator.Strategy(), pairs)
	if err := d.runs.Create(run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	metrics.RunsInFlight.Inc()
	d.process(runJob{ctx: ctx, run: run, pairs: pairs, credential: key})

	// 队列任务不支持重试，结束后丢弃图片内容
	done, err := d.Get(run.ID)
	if err != nil {
		return nil, err
	}
	done.Pairs = datatypes.NewJSONType([]models.Pair{})
	if err := d.runs.Update(done); err != nil {
		return nil, fmt.Errorf("discard run images: %w", err)
	}
	return done, nil
}

func (d *Dispatcher) handle(job runJob) {
	if job.single == nil {
		d.process(job)
		return
	}
	if d.ctx.Err() != nil {
		job.single <- singleResult{err: ErrDispatcherClosed}
		return
	}
	outcome, err := d.orchestrator.Generate(job.ctx, job.pairs[0], job.credential)
	job.single <- singleResult{outcome: outcome, err: err}
}

func (d *Dispatcher) process(job runJob) {
	id := job.run.ID
	log := d.logger.WithField("run_id", id)
	defer func() {
		metrics.RunsInFlight.Dec()
		d.mu.Lock()
		if cancel, ok := d.cancels[id]; ok {
			cancel()
			delete(d.cancels, id)
		}
		d.mu.Unlock()
	}()

	if err := d.runs.SetStatus(id, models.RunStatusRunning); err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.WithError(err).Error("failed to mark run running")
	}

	ctx := ContextWithRunID(job.ctx, id.String())
	_, err := d.orchestrator.RunAll(ctx, job.pairs, job.credential, func(index int, result models.GenerationResult) {
		if err := d.runs.SaveResult(id, index, result); err != nil && !errors.Is(err, repository.ErrNotFound) {
			log.WithError(err).WithField("pair", index).Error("failed to save pair result")
		}
		d.hub.Publish(ProgressEvent{RunID: id.String(), Index: index, Result: result})
	})

	status := models.RunStatusCompleted
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = models.RunStatusCanceled
	case err != nil:
		log.WithError(err).Error("run aborted")
		status = models.RunStatusCanceled
	}
	if err := d.runs.SetStatus(id, status); errors.Is(err, repository.ErrNotFound) {
		log.Debug("run deleted before it finished")
	} else if err != nil {
		log.WithError(err).Error("failed to finish run")
	}
	d.hub.Finish(id.String(), status)
}
