// Copyright 2025 James Ross
package bots

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/flyingrobots/jobcoordinator/internal/obs"
	"github.com/flyingrobots/jobcoordinator/internal/store"
)

// BotView is the API-facing projection of a Bot: the stored row plus its
// computed_status.
type BotView struct {
	*store.Bot
	ComputedStatus string `json:"computed_status"`
}

// Service wraps the store's bot operations and derives computed_status for
// every bot returned to a caller.
type Service struct {
	store         *store.Store
	downThreshold time.Duration
	log           *zap.Logger
}

func New(st *store.Store, downThreshold time.Duration, log *zap.Logger) *Service {
	return &Service{store: st, downThreshold: downThreshold, log: log}
}

func (s *Service) view(b *store.Bot) *BotView {
	return &BotView{Bot: b, ComputedStatus: b.ComputedStatus(s.downThreshold, time.Now().UTC())}
}

// Register creates or revives a bot, then optionally pins its
// assigned_operation (applied only when the bot has no pin yet, whether
// new, revived or already registered; a pin already present from a prior
// registration or an assign-operation call is left untouched, per the
// DESIGN.md Open Question decision).
func (s *Service) Register(ctx context.Context, id string, assignedOperation *string) (*BotView, error) {
	bot, err := s.store.RegisterBot(ctx, id)
	if err != nil {
		return nil, err
	}
	if assignedOperation != nil && bot.AssignedOperation == nil {
		if err := s.store.AssignOperation(ctx, id, assignedOperation); err != nil {
			return nil, err
		}
		bot.AssignedOperation = assignedOperation
	}
	return s.view(bot), nil
}

func (s *Service) Heartbeat(ctx context.Context, id string) error {
	return s.store.Heartbeat(ctx, id)
}

func (s *Service) AssignOperation(ctx context.Context, id string, operation *string) (*BotView, error) {
	if err := s.store.AssignOperation(ctx, id, operation); err != nil {
		return nil, err
	}
	bot, err := s.store.GetBot(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(bot), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.SoftDelete(ctx, id)
}

func (s *Service) Reset(ctx context.Context, id string) (*BotView, error) {
	if err := s.store.Reset(ctx, id); err != nil {
		return nil, err
	}
	bot, err := s.store.GetBot(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(bot), nil
}

// List returns every non-deleted bot with its computed status, and
// refreshes the bots_by_status gauge as a side effect -- the one place in
// the service layer that samples gauge state rather than incrementing a
// counter on a discrete event.
func (s *Service) List(ctx context.Context) ([]*BotView, error) {
	raw, err := s.store.ListBots(ctx, false)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	out := make([]*BotView, 0, len(raw))
	for _, b := range raw {
		v := s.view(b)
		out = append(out, v)
		counts[v.ComputedStatus]++
	}
	for status, n := range counts {
		obs.BotsByStatus.WithLabelValues(status).Set(float64(n))
	}
	return out, nil
}
