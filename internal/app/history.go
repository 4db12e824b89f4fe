package app

import (
	"context"
	"math"

	"bitquiz-service/internal/domain"
)

// passThreshold is the percentage from which an attempt counts as passed.
const passThreshold = 50

// statsWindow bounds how many recent attempts feed the aggregates.
const statsWindow = 50

// HistoryService reads the per-user result history and derives aggregate
// statistics from it.
type HistoryService struct {
	history  HistoryRecorder
	profiles ProfileRepository
}

func NewHistoryService(history HistoryRecorder, profiles ProfileRepository) *HistoryService {
	return &HistoryService{history: history, profiles: profiles}
}

// List returns the user's attempts, newest first, optionally filtered by exam.
func (s *HistoryService) List(ctx context.Context, userID, examID string, limit int) ([]domain.Result, error) {
	if limit <= 0 || limit > statsWindow {
		limit = statsWindow
	}
	return s.history.List(ctx, userID, examID, limit)
}

// Stats aggregates one quiz's history for the user. Pro users get attempt
// count, average percentage and passed count; free users only the current
// pass streak.
func (s *HistoryService) Stats(ctx context.Context, userID, examID string) (domain.QuizStats, error) {
	pro := false
	if profile, err := s.profiles.Get(ctx, userID); err == nil {
		pro = profile.IsPro
	}
	entries, err := s.history.List(ctx, userID, examID, statsWindow)
	if err != nil {
		return domain.QuizStats{}, err
	}
	return ComputeStats(examID, entries, pro), nil
}

// ComputeStats folds history entries (expected newest first) into QuizStats.
func ComputeStats(examID string, entries []domain.Result, pro bool) domain.QuizStats {
	stats := domain.QuizStats{ExamID: examID}
	if pro {
		sum := 0
		for _, e := range entries {
			sum += e.Percentage
			if e.Percentage >= passThreshold {
				stats.Passed++
			}
		}
		stats.Attempts = len(entries)
		if len(entries) > 0 {
			stats.AveragePercent = int(math.Round(float64(sum) / float64(len(entries))))
		}
		return stats
	}
	for _, e := range entries {
		if e.Percentage < passThreshold {
			break
		}
		stats.Streak++
	}
	return stats
}
