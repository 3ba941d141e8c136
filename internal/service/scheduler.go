package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minimind-ai/minimind/internal/domain"
)

// Scheduler defaults
const (
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = time.Second
	DefaultProbeInterval = 30 * time.Second
)

// probePrompt is the health-check completion sent before real work dispatches.
const probePrompt = "Respond with the single word: ready"

// SchedulerStatus is a point-in-time snapshot of the queue for introspection.
type SchedulerStatus struct {
	Available   bool   `json:"available"`
	Probed      bool   `json:"probed"`
	QueueLength int    `json:"queue_length"`
	InFlightJob string `json:"in_flight_job,omitempty"`
}

// Scheduler serializes all inference traffic onto a single backend slot.
// One instance is shared by every agent and background service in the
// process: the backend runs one completion at a time, so jobs dispatch
// strictly FIFO and callbacks fire in dispatch order on the worker
// goroutine. Deferred prompt producers are invoked at dispatch time, not
// submission time, so a job that waited in the queue still renders its
// prompt from the freshest state.
type Scheduler struct {
	client        domain.InferenceClient
	logger        *zap.Logger
	maxRetries    int
	retryDelay    time.Duration
	probeInterval time.Duration

	mu        sync.Mutex
	queue     []*domain.InferenceJob
	callbacks map[string]domain.Callback
	inFlight  string
	abort     context.CancelFunc
	available bool
	probed    bool

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewScheduler(client domain.InferenceClient, maxRetries int, retryDelay, probeInterval time.Duration, logger *zap.Logger) *Scheduler {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	if probeInterval <= 0 {
		probeInterval = DefaultProbeInterval
	}
	return &Scheduler{
		client:        client,
		logger:        logger,
		maxRetries:    maxRetries,
		retryDelay:    retryDelay,
		probeInterval: probeInterval,
		callbacks:     make(map[string]domain.Callback),
		wake:          make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
	}
}

// Start launches the worker goroutine. The initial backend probe runs before
// any queued job dispatches; until it finishes, submissions only accumulate.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop aborts the in-flight backend call, if any, and waits for the worker
// to exit. Jobs still queued at shutdown are dropped without their callbacks
// firing.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.mu.Lock()
	if s.abort != nil {
		s.abort()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Submit enqueues a job and returns its id without blocking.
func (s *Scheduler) Submit(job domain.InferenceJob) string {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	queued := job

	s.mu.Lock()
	s.callbacks[job.ID] = job.OnComplete
	s.queue = append(s.queue, &queued)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return job.ID
}

// Cancel removes a queued job or aborts the in-flight one (best-effort). The
// job's callback will not fire afterward. Returns false when the job is
// unknown or already completed.
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.callbacks[jobID]; !ok {
		return false
	}
	delete(s.callbacks, jobID)

	for i, job := range s.queue {
		if job.ID == jobID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	if s.inFlight == jobID && s.abort != nil {
		s.abort()
	}
	return true
}

// Available reports whether the last backend probe succeeded.
func (s *Scheduler) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// Ready reports whether the startup probe has completed, regardless of its
// outcome.
func (s *Scheduler) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probed
}

func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SchedulerStatus{
		Available:   s.available,
		Probed:      s.probed,
		QueueLength: len(s.queue),
		InFlightJob: s.inFlight,
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	s.runProbe()
	s.drain()

	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.wake:
			s.drain()
		case <-ticker.C:
			if !s.Available() {
				s.runProbe()
				s.drain()
			}
		}
	}
}

func (s *Scheduler) runProbe() {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.abort = cancel
	s.mu.Unlock()

	_, err := s.completeWithRetry(ctx, domain.CompletionRequest{Prompt: probePrompt})

	s.mu.Lock()
	s.abort = nil
	s.available = err == nil
	s.probed = true
	s.mu.Unlock()
	cancel()

	if err != nil {
		s.logger.Warn("inference backend probe failed", zap.Error(err))
		return
	}
	s.logger.Info("inference backend ready")
}

func (s *Scheduler) drain() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		job := s.queue[0]
		s.queue = s.queue[1:]
		available := s.available
		s.mu.Unlock()

		if !available {
			s.finish(job.ID, domain.JobResult{JobID: job.ID, Err: domain.ErrBackendUnavailable})
			continue
		}
		s.dispatch(job)
	}
}

func (s *Scheduler) dispatch(job *domain.InferenceJob) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.mu.Lock()
	if _, alive := s.callbacks[job.ID]; !alive {
		// cancelled between dequeue and dispatch
		s.mu.Unlock()
		return
	}
	s.inFlight = job.ID
	s.abort = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = ""
		s.abort = nil
		s.mu.Unlock()
	}()

	prompt := job.Prompt
	if job.Producer != nil {
		p, err := invokeProducer(job.Producer)
		if err != nil {
			s.logger.Error("prompt producer failed", zap.String("job_id", job.ID), zap.Error(err))
			s.finish(job.ID, domain.JobResult{JobID: job.ID, Err: fmt.Errorf("%w: %v", domain.ErrPromptProducerFailed, err)})
			return
		}
		prompt = p
	}

	req := domain.CompletionRequest{
		System:      job.System,
		Temperature: job.Temperature,
		Stop:        job.Stop,
	}
	if job.Mode == domain.JobModeChatTurn {
		req.Messages = []domain.Message{{Role: "user", Content: prompt}}
	} else {
		req.Prompt = prompt
	}

	text, err := s.completeWithRetry(ctx, req)
	if ctx.Err() != nil {
		// cancelled in flight; the registration is already gone
		return
	}
	if err != nil {
		s.logger.Warn("inference job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	s.finish(job.ID, domain.JobResult{JobID: job.ID, Text: text, Err: err})
}

// finish removes the job's registration before invoking it, guaranteeing
// at-most-once delivery even if completion races a cancel.
func (s *Scheduler) finish(id string, result domain.JobResult) {
	s.mu.Lock()
	cb, ok := s.callbacks[id]
	delete(s.callbacks, id)
	s.mu.Unlock()

	if !ok || cb == nil {
		return
	}
	cb(result)
}

// invokeProducer resolves a deferred prompt, converting a panic into an
// error so one bad producer cannot take down the worker.
func invokeProducer(fn domain.PromptProducer) (prompt string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("prompt producer panicked: %v", r)
		}
	}()
	return fn()
}

func (s *Scheduler) completeWithRetry(ctx context.Context, req domain.CompletionRequest) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		text, err := s.client.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		if attempt < s.maxRetries {
			s.logger.Warn("inference attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", s.maxRetries),
				zap.Error(err))
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			case <-s.stopCh:
				return "", lastErr
			}
		}
	}
	return "", fmt.Errorf("inference failed after %d attempts: %w", s.maxRetries, lastErr)
}
