package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"bitquiz-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// HistoryRecorder persists results in the append-only history table.
type HistoryRecorder struct {
	pool *pgxpool.Pool
}

func NewHistoryRecorder(pool *pgxpool.Pool) *HistoryRecorder {
	return &HistoryRecorder{pool: pool}
}

func (r *HistoryRecorder) Append(ctx context.Context, userID string, res domain.Result) error {
	var details []byte
	if res.Details != nil {
		var err error
		details, err = json.Marshal(res.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO history (user_id, exam_id, mode, score, total, percentage, recorded_at, details)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		userID, res.ExamID, string(res.Mode), res.Score, res.Total, res.Percentage, res.RecordedAt, details)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (r *HistoryRecorder) List(ctx context.Context, userID, examID string, limit int) ([]domain.Result, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT exam_id, mode, score, total, percentage, recorded_at, details
	          FROM history WHERE user_id=$1`
	args := []interface{}{userID}
	if examID != "" {
		query += ` AND exam_id=$2`
		args = append(args, examID)
	}
	query += fmt.Sprintf(` ORDER BY recorded_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []domain.Result
	for rows.Next() {
		var res domain.Result
		var mode string
		var details []byte
		if err := rows.Scan(&res.ExamID, &mode, &res.Score, &res.Total, &res.Percentage, &res.RecordedAt, &details); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		res.Mode = domain.SessionMode(mode)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &res.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details: %w", err)
			}
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
