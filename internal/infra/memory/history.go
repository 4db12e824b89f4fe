package memory

import (
	"context"
	"sort"
	"sync"

	"bitquiz-service/internal/domain"
)

// HistoryRecorder keeps per-user results in memory, newest first on read.
type HistoryRecorder struct {
	mu      sync.RWMutex
	entries map[string][]domain.Result
}

func NewHistoryRecorder() *HistoryRecorder {
	return &HistoryRecorder{entries: make(map[string][]domain.Result)}
}

func (r *HistoryRecorder) Append(_ context.Context, userID string, res domain.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[userID] = append(r.entries[userID], res)
	return nil
}

func (r *HistoryRecorder) List(_ context.Context, userID, examID string, limit int) ([]domain.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Result, 0, limit)
	for _, e := range r.entries[userID] {
		if examID != "" && e.ExamID != examID {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
