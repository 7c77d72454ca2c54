package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Apurer/worktrack/internal/domains/webhooks/domain"
	"github.com/Apurer/worktrack/internal/domains/webhooks/ports"
)

var _ ports.SideEffectLog = (*SideEffectLog)(nil)

// SideEffectLog keeps side effects in insertion order.
type SideEffectLog struct {
	mu      sync.RWMutex
	effects []domain.SideEffect
}

func NewSideEffectLog() *SideEffectLog {
	return &SideEffectLog{}
}

func (l *SideEffectLog) Append(_ context.Context, effect domain.SideEffect) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.effects {
		if existing.ID == effect.ID {
			return fmt.Errorf("side effect %s already recorded", effect.ID)
		}
	}
	l.effects = append(l.effects, effect)
	return nil
}

func (l *SideEffectLog) Update(_ context.Context, effect domain.SideEffect) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.effects {
		if l.effects[i].ID == effect.ID {
			l.effects[i] = effect
			return nil
		}
	}
	return fmt.Errorf("side effect %s not found", effect.ID)
}

func (l *SideEffectLog) LastSent(_ context.Context, aggregateID string, kind domain.Kind) (*domain.SideEffect, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var last *domain.SideEffect
	for i := range l.effects {
		e := l.effects[i]
		if e.AggregateID != aggregateID || e.Kind != kind || e.Status != domain.StatusSent || e.SentAt == nil {
			continue
		}
		if last == nil || e.SentAt.After(*last.SentAt) {
			copied := e
			last = &copied
		}
	}
	return last, nil
}

func (l *SideEffectLog) ListDue(_ context.Context, now time.Time, limit int) ([]domain.SideEffect, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	due := make([]domain.SideEffect, 0)
	for _, e := range l.effects {
		if e.Status == domain.StatusDeferred && !e.ScheduledAt.After(now) {
			due = append(due, e)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}
