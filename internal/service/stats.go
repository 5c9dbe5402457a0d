package service

import (
	"context"
	"time"

	"moderation-service/internal/models"
	"moderation-service/internal/repository"
)

// Stats summarizes moderation throughput for an organization set or a single
// reviewer. ApprovalRate is nil until at least one approve or reject exists.
type Stats struct {
	Pending            int                         `json:"pending"`
	InReview           int                         `json:"in_review"`
	Escalated          int                         `json:"escalated"`
	CompletedToday     int                         `json:"completed_today"`
	CompletedWeek      int                         `json:"completed_week"`
	AvgTimeSeconds     float64                     `json:"avg_time_seconds"`
	ApprovalRate       *float64                    `json:"approval_rate"`
	DecisionsBreakdown map[models.ResultStatus]int `json:"decisions_breakdown"`
}

// StatsService derives throughput figures from items and results.
type StatsService struct {
	*engine
	cache *ttlCache
}

func NewStatsService(d Deps, ttl time.Duration) *StatsService {
	e := newEngine(d)
	return &StatsService{engine: e, cache: newTTLCache(ttl, e.clock)}
}

// UserStats reports a reviewer's own activity.
func (s *StatsService) UserStats(ctx context.Context, reviewerID int64) (*Stats, error) {
	v, err := s.cache.get(ctx, "user:"+itoa(reviewerID), func(ctx context.Context) (any, error) {
		stats, err := s.compute(ctx, repository.Scope{ReviewerID: reviewerID})
		if err != nil {
			return nil, err
		}
		stats.InReview, err = s.store.Items.CountInReviewBy(ctx, s.store.DB, reviewerID)
		return stats, err
	})
	if err != nil {
		return nil, storageErr("user stats", err)
	}
	return v.(*Stats), nil
}

// OrgStats reports activity across organizations.
func (s *StatsService) OrgStats(ctx context.Context, orgIDs []int64) (*Stats, error) {
	ids := normalizeOrgIDs(orgIDs)
	if len(ids) == 0 {
		return &Stats{DecisionsBreakdown: map[models.ResultStatus]int{}}, nil
	}

	v, err := s.cache.get(ctx, orgKey("org", ids), func(ctx context.Context) (any, error) {
		stats, err := s.compute(ctx, repository.Scope{OrgIDs: ids})
		if err != nil {
			return nil, err
		}
		counts, err := s.store.Items.CountActive(ctx, s.store.DB, ids, s.now())
		if err != nil {
			return nil, err
		}
		stats.Pending = counts.Pending
		stats.InReview = counts.InReview
		stats.Escalated = counts.Escalated
		return stats, nil
	})
	if err != nil {
		return nil, storageErr("org stats", err)
	}
	return v.(*Stats), nil
}

func (s *StatsService) compute(ctx context.Context, scope repository.Scope) (*Stats, error) {
	now := s.now()
	today, week := startOfDay(now), startOfWeek(now)
	db := s.store.DB

	stats := &Stats{}
	var err error
	if stats.CompletedToday, err = s.store.Items.CountCompleted(ctx, db, scope, today); err != nil {
		return nil, err
	}
	if stats.CompletedWeek, err = s.store.Items.CountCompleted(ctx, db, scope, week); err != nil {
		return nil, err
	}

	timings, err := s.store.Items.ListDecisionTimings(ctx, db, scope, week)
	if err != nil {
		return nil, err
	}
	stats.AvgTimeSeconds = averageSeconds(timings)

	if stats.DecisionsBreakdown, err = s.store.Results.CountByStatus(ctx, db, scope, week); err != nil {
		return nil, err
	}
	approved := stats.DecisionsBreakdown[models.ResultApproved]
	rejected := stats.DecisionsBreakdown[models.ResultRejected]
	if approved+rejected > 0 {
		rate := float64(approved) / float64(approved+rejected)
		stats.ApprovalRate = &rate
	}
	return stats, nil
}

func averageSeconds(timings []repository.DecisionTiming) float64 {
	var total time.Duration
	var n int
	for _, t := range timings {
		if t.StartedAt == nil || t.CompletedAt == nil {
			continue
		}
		total += t.CompletedAt.Sub(*t.StartedAt)
		n++
	}
	if n == 0 {
		return 0
	}
	return total.Seconds() / float64(n)
}
