package broadcast

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
	"github.com/capitalize-ai/conversation-engine/pkg/metrics"
)

var (
	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("broadcast job not found")
	// ErrInvalidState is returned when an operation does not apply to the
	// job's current status.
	ErrInvalidState = errors.New("invalid broadcast job state")
)

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type jobState struct {
	job    model.BroadcastJob
	cancel context.CancelFunc
	done   chan struct{}
}

func (st *jobState) running() bool {
	return st.cancel != nil
}

// Scheduler owns broadcast jobs and runs each one sequentially: one send at
// a time, each after its planned delay. Jobs run independently of each other.
type Scheduler struct {
	sender  Sender
	wait    WaitFunc
	now     func() time.Time
	newRand func(seed int64) *rand.Rand
	logger  *logger.Logger

	mu    sync.Mutex
	jobs  map[string]*jobState
	order []string
	wg    sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWait replaces the delay function.
func WithWait(fn WaitFunc) Option {
	return func(s *Scheduler) { s.wait = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRandSource replaces how a job's seed becomes a random source.
func WithRandSource(fn func(seed int64) *rand.Rand) Option {
	return func(s *Scheduler) { s.newRand = fn }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a Scheduler that delivers through sender.
func NewScheduler(sender Sender, opts ...Option) *Scheduler {
	s := &Scheduler{
		sender:  sender,
		wait:    sleep,
		now:     time.Now,
		newRand: func(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) },
		jobs:    make(map[string]*jobState),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrGlobal(s.logger).Named("broadcast")
	return s
}

// Create plans a new draft job. Without a seed one is taken from the clock
// and recorded on the job so its plan can be reproduced.
func (s *Scheduler) Create(req model.CreateBroadcastRequest) (model.BroadcastJob, error) {
	now := s.now()
	job := model.BroadcastJob{
		ID:              uuid.Must(uuid.NewV7()).String(),
		Name:            req.Name,
		Recipients:      append([]string(nil), req.Recipients...),
		Variants:        append([]string(nil), req.Variants...),
		Mode:            req.Mode,
		MsgInterval:     req.MsgInterval,
		ContactInterval: req.ContactInterval,
		Status:          model.JobDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if job.Mode == "" {
		job.Mode = model.SendAll
	}
	if req.Seed != nil {
		job.Seed = *req.Seed
	} else {
		job.Seed = now.UnixNano()
	}

	steps, err := Plan(job, s.newRand(job.Seed))
	if err != nil {
		return model.BroadcastJob{}, err
	}
	job.Steps = steps

	s.mu.Lock()
	s.jobs[job.ID] = &jobState{job: job}
	s.order = append(s.order, job.ID)
	s.mu.Unlock()

	s.logger.Info("broadcast created",
		zap.String("job_id", job.ID),
		zap.Int("recipients", len(job.Recipients)),
		zap.Int("steps", len(job.Steps)),
		zap.String("mode", string(job.Mode)),
	)
	return job.Clone(), nil
}

// Get returns a copy of one job.
func (s *Scheduler) Get(id string) (model.BroadcastJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[id]
	if !ok {
		return model.BroadcastJob{}, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	return st.job.Clone(), nil
}

// List returns copies of every job in creation order.
func (s *Scheduler) List() []model.BroadcastJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.BroadcastJob, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].job.Clone())
	}
	return out
}

// Schedule sets the start time of a job that has not started. It does not
// touch per-message pacing.
func (s *Scheduler) Schedule(id string, at time.Time) (model.BroadcastJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.lookup(id)
	if err != nil {
		return model.BroadcastJob{}, err
	}
	if st.running() || (st.job.Status != model.JobDraft && st.job.Status != model.JobScheduled) {
		return model.BroadcastJob{}, fmt.Errorf("schedule %s while %s: %w", id, st.job.Status, ErrInvalidState)
	}
	at = at.UTC()
	st.job.ScheduledAt = &at
	st.job.Status = model.JobScheduled
	st.job.UpdatedAt = s.now()
	return st.job.Clone(), nil
}

// ApplySuggestion schedules a job at a suggested send time.
func (s *Scheduler) ApplySuggestion(id string, suggestion model.SendTime) (model.BroadcastJob, error) {
	return s.Schedule(id, suggestion.At)
}

// Start begins sending a draft or scheduled job in the background. A
// scheduled job first waits for its start time. The run is detached from
// ctx's cancellation; use Pause or Cancel to stop it.
func (s *Scheduler) Start(ctx context.Context, id string) (model.BroadcastJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.lookup(id)
	if err != nil {
		return model.BroadcastJob{}, err
	}
	if st.running() || (st.job.Status != model.JobDraft && st.job.Status != model.JobScheduled) {
		return model.BroadcastJob{}, fmt.Errorf("start %s while %s: %w", id, st.job.Status, ErrInvalidState)
	}
	s.launch(ctx, st)
	return st.job.Clone(), nil
}

// Resume continues a paused job from its cursor. Steps already sent are
// never sent again.
func (s *Scheduler) Resume(ctx context.Context, id string) (model.BroadcastJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.lookup(id)
	if err != nil {
		return model.BroadcastJob{}, err
	}
	if st.running() || st.job.Status != model.JobPaused {
		return model.BroadcastJob{}, fmt.Errorf("resume %s while %s: %w", id, st.job.Status, ErrInvalidState)
	}
	st.job.LastError = ""
	s.launch(ctx, st)
	return st.job.Clone(), nil
}

// Pause stops a running job after the send in progress, if any, and keeps
// its cursor.
func (s *Scheduler) Pause(id string) (model.BroadcastJob, error) {
	return s.halt(id, model.JobPaused)
}

// Cancel stops a job for good.
func (s *Scheduler) Cancel(id string) (model.BroadcastJob, error) {
	return s.halt(id, model.JobCanceled)
}

func (s *Scheduler) halt(id string, to model.JobStatus) (model.BroadcastJob, error) {
	s.mu.Lock()
	st, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return model.BroadcastJob{}, err
	}
	switch {
	case to == model.JobPaused && !st.running():
		s.mu.Unlock()
		return model.BroadcastJob{}, fmt.Errorf("pause %s while %s: %w", id, st.job.Status, ErrInvalidState)
	case to == model.JobCanceled && terminal(st.job.Status):
		s.mu.Unlock()
		return model.BroadcastJob{}, fmt.Errorf("cancel %s while %s: %w", id, st.job.Status, ErrInvalidState)
	}
	cancel, done := st.cancel, st.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !terminal(st.job.Status) {
		st.job.Status = to
		st.job.UpdatedAt = s.now()
	}
	s.logger.Info("broadcast halted",
		zap.String("job_id", id),
		zap.String("status", string(st.job.Status)),
		zap.Int("cursor", st.job.Cursor),
	)
	return st.job.Clone(), nil
}

// Wait blocks until the job's current run ends or ctx is done, and returns
// the job.
func (s *Scheduler) Wait(ctx context.Context, id string) (model.BroadcastJob, error) {
	s.mu.Lock()
	st, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return model.BroadcastJob{}, err
	}
	done := st.done
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return model.BroadcastJob{}, ctx.Err()
		}
	}
	return s.Get(id)
}

// Stop pauses every running job and waits for the runners to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	var ids []string
	for id, st := range s.jobs {
		if st.running() {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		if _, err := s.Pause(id); err != nil && !errors.Is(err, ErrInvalidState) {
			s.logger.Warn("pause on stop failed", zap.String("job_id", id), zap.Error(err))
		}
	}
	s.wg.Wait()
}

func terminal(status model.JobStatus) bool {
	return status == model.JobCompleted || status == model.JobCanceled
}

// lookup returns the state for id. Caller holds s.mu.
func (s *Scheduler) lookup(id string) (*jobState, error) {
	st, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	return st, nil
}

// launch starts a runner for st. Caller holds s.mu.
func (s *Scheduler) launch(ctx context.Context, st *jobState) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	st.cancel = cancel
	st.done = make(chan struct{})
	if st.job.ScheduledAt != nil && st.job.ScheduledAt.After(s.now()) {
		st.job.Status = model.JobScheduled
	} else {
		st.job.Status = model.JobRunning
	}
	st.job.UpdatedAt = s.now()

	s.wg.Add(1)
	go s.run(runCtx, st, st.done)
}

// run sends the remaining steps of a job in order. The cursor advances only
// after a step was sent, so a paused job resumes at the first unsent step.
func (s *Scheduler) run(ctx context.Context, st *jobState, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)
	defer func() {
		s.mu.Lock()
		st.cancel()
		st.cancel = nil
		s.mu.Unlock()
	}()

	s.mu.Lock()
	id := st.job.ID
	at := st.job.ScheduledAt
	s.mu.Unlock()
	log := s.logger.With(zap.String("job_id", id))

	if at != nil {
		if d := at.Sub(s.now()); d > 0 {
			if err := s.wait(ctx, d); err != nil {
				return
			}
		}
		s.mu.Lock()
		st.job.Status = model.JobRunning
		st.job.UpdatedAt = s.now()
		s.mu.Unlock()
	}

	for {
		s.mu.Lock()
		if st.job.Cursor >= len(st.job.Steps) {
			st.job.Status = model.JobCompleted
			st.job.UpdatedAt = s.now()
			sent := st.job.Sent
			s.mu.Unlock()
			log.Info("broadcast completed", zap.Int("sent", sent))
			return
		}
		seq := st.job.Cursor
		step := st.job.Steps[seq]
		job := st.job.Clone()
		s.mu.Unlock()

		if step.Delay > 0 {
			if err := s.wait(ctx, step.Delay); err != nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		// A send that started completes even if the job is paused meanwhile.
		err := s.sender.Send(context.WithoutCancel(ctx), job, seq, step)

		s.mu.Lock()
		st.job.UpdatedAt = s.now()
		if err != nil {
			st.job.Status = model.JobPaused
			st.job.LastError = err.Error()
			s.mu.Unlock()
			metrics.BroadcastSendsTotal.WithLabelValues("failed").Inc()
			log.Warn("broadcast send failed, job paused",
				zap.Int("cursor", seq),
				zap.String("recipient_id", step.RecipientID),
				zap.Error(err),
			)
			return
		}
		st.job.Cursor = seq + 1
		st.job.Sent++
		s.mu.Unlock()
		metrics.BroadcastSendsTotal.WithLabelValues("sent").Inc()
		log.Debug("broadcast step sent",
			zap.Int("cursor", seq),
			zap.String("recipient_id", step.RecipientID),
			zap.Int("variant", step.Variant),
		)
	}
}
