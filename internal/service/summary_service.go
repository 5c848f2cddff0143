package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/training-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/training-scheduler-api/pkg/errors"
)

const (
	summaryTotalsKey = "summary:totals"
	summaryPattern   = "summary:*"
)

type totalsCounter interface {
	Totals(ctx context.Context) (*models.SummaryTotals, error)
}

// SummaryService serves dashboard totals through the cache.
type SummaryService struct {
	counter totalsCounter
	cache   *CacheService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewSummaryService constructs a SummaryService. A nil cache disables caching.
func NewSummaryService(counter totalsCounter, cache *CacheService, ttl time.Duration, logger *zap.Logger) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{counter: counter, cache: cache, ttl: ttl, logger: logger}
}

// Totals returns entity counts, served from cache when available.
func (s *SummaryService) Totals(ctx context.Context) (*models.SummaryTotals, error) {
	var totals models.SummaryTotals
	load := func(ctx context.Context) error {
		fresh, err := s.counter.Totals(ctx)
		if err != nil {
			return err
		}
		totals = *fresh
		return nil
	}
	if _, err := s.cache.Remember(ctx, summaryTotalsKey, s.ttl, &totals, load); err != nil {
		return nil, appErrors.Internal(err, "failed to count totals")
	}
	return &totals, nil
}

// Invalidate drops cached totals after a write.
func (s *SummaryService) Invalidate(ctx context.Context) {
	if s == nil {
		return
	}
	s.cache.Invalidate(ctx, summaryPattern)
}
