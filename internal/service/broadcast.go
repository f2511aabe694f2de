package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-engine/internal/broadcast"
	"github.com/capitalize-ai/conversation-engine/internal/filter"
	"github.com/capitalize-ai/conversation-engine/internal/model"
	"github.com/capitalize-ai/conversation-engine/internal/store"
	"github.com/capitalize-ai/conversation-engine/pkg/logger"
)

// BroadcastService creates and drives broadcast jobs.
type BroadcastService struct {
	store     *store.Store
	scheduler *broadcast.Scheduler
	advisor   *broadcast.Advisor
	logger    *logger.Logger
}

// NewBroadcastService creates a new broadcast service.
func NewBroadcastService(st *store.Store, scheduler *broadcast.Scheduler, advisor *broadcast.Advisor, log *logger.Logger) *BroadcastService {
	return &BroadcastService{
		store:     st,
		scheduler: scheduler,
		advisor:   advisor,
		logger:    logger.OrGlobal(log).Named("broadcasts"),
	}
}

// Create plans a draft job. When the request names no recipients, the
// conversations matching its filter become the recipients.
func (s *BroadcastService) Create(ctx context.Context, req model.CreateBroadcastRequest) (model.BroadcastJob, error) {
	if len(req.Recipients) == 0 && req.Filter != nil {
		criteria, err := filter.Normalize(*req.Filter)
		if err != nil {
			s.logger.Warn("filter values dropped", zap.Error(err))
		}
		for _, c := range filter.Conversations(s.store.List(), criteria, "") {
			req.Recipients = append(req.Recipients, c.ID)
		}
	}
	for _, id := range req.Recipients {
		if _, err := s.store.Get(id); err != nil {
			return model.BroadcastJob{}, fmt.Errorf("%w: recipient %s", broadcast.ErrInvalidJob, id)
		}
	}
	return s.scheduler.Create(req)
}

// Get returns one job.
func (s *BroadcastService) Get(ctx context.Context, id string) (model.BroadcastJob, error) {
	return s.scheduler.Get(id)
}

// List returns every job in creation order.
func (s *BroadcastService) List(ctx context.Context) []model.BroadcastJob {
	return s.scheduler.List()
}

// Schedule sets a draft job's intended start time.
func (s *BroadcastService) Schedule(ctx context.Context, id string, at time.Time) (model.BroadcastJob, error) {
	return s.scheduler.Schedule(id, at)
}

// Start begins sending a job.
func (s *BroadcastService) Start(ctx context.Context, id string) (model.BroadcastJob, error) {
	return s.scheduler.Start(ctx, id)
}

// Pause stops a running job after its current send.
func (s *BroadcastService) Pause(ctx context.Context, id string) (model.BroadcastJob, error) {
	return s.scheduler.Pause(id)
}

// Resume continues a paused job from its cursor.
func (s *BroadcastService) Resume(ctx context.Context, id string) (model.BroadcastJob, error) {
	return s.scheduler.Resume(ctx, id)
}

// Cancel stops a job for good.
func (s *BroadcastService) Cancel(ctx context.Context, id string) (model.BroadcastJob, error) {
	return s.scheduler.Cancel(id)
}

// SuggestTimeResponse carries a suggested start time and, when applied, the
// rescheduled job.
type SuggestTimeResponse struct {
	Suggestion model.SendTime      `json:"suggestion"`
	Job        *model.BroadcastJob `json:"job,omitempty"`
}

// SuggestTime ranks send windows against the recipients' preferred contact
// hours. With apply set the job is scheduled at the suggestion; its pacing
// is left unchanged.
func (s *BroadcastService) SuggestTime(ctx context.Context, id string, apply bool) (*SuggestTimeResponse, error) {
	job, err := s.scheduler.Get(id)
	if err != nil {
		return nil, err
	}

	customers := make([]model.Customer, 0, len(job.Recipients))
	for _, rid := range job.Recipients {
		conv, err := s.store.Get(rid)
		if err != nil {
			continue
		}
		customers = append(customers, conv.Customer)
	}

	suggestion, err := s.advisor.SuggestSendTime(broadcast.SignalsFor(customers))
	if err != nil {
		return nil, err
	}
	resp := &SuggestTimeResponse{Suggestion: suggestion}
	if !apply {
		return resp, nil
	}

	scheduled, err := s.scheduler.ApplySuggestion(id, suggestion)
	if err != nil {
		return nil, err
	}
	resp.Job = &scheduled
	s.logger.Info("broadcast scheduled from suggestion",
		zap.String("job_id", id),
		zap.Time("at", suggestion.At),
		zap.Float64("score", suggestion.Score),
	)
	return resp, nil
}
