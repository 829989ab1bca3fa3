package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/matchpulse/matchpulse/internal/domain/history"
)

// HistoryRepository persists finished matches. The insert conflicts away on
// match_id, which is what makes duplicate hand-offs from overlapping refresh
// cycles harmless.
type HistoryRepository struct {
	db *sqlx.DB
}

func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Record(ctx context.Context, rec history.Record) error {
	const query = `
		INSERT INTO match_history (
			match_id, competition_name, home_name, away_name,
			home_score, away_score, status,
			kill_score, total_score, confidence, action, finished_at
		) VALUES (
			:match_id, :competition_name, :home_name, :away_name,
			:home_score, :away_score, :status,
			:kill_score, :total_score, :confidence, :action, :finished_at
		)
		ON CONFLICT (match_id) DO NOTHING`

	row := matchHistoryTableModel{
		MatchID:         rec.MatchID,
		CompetitionName: rec.CompetitionName,
		HomeName:        rec.HomeName,
		AwayName:        rec.AwayName,
		HomeScore:       rec.HomeScore,
		AwayScore:       rec.AwayScore,
		Status:          rec.Status,
		KillScore:       rec.KillScore,
		TotalScore:      rec.TotalScore,
		Confidence:      rec.Confidence,
		Action:          rec.Action,
		FinishedAt:      rec.FinishedAt,
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("insert match history match_id=%d: %w", rec.MatchID, err)
	}
	return nil
}

// ListRecent returns the newest finished matches for the history endpoint.
func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]history.Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	const query = `
		SELECT match_id, competition_name, home_name, away_name,
		       home_score, away_score, status,
		       kill_score, total_score, confidence, action, finished_at, created_at
		FROM match_history
		ORDER BY finished_at DESC, match_id DESC
		LIMIT $1`

	var rows []matchHistoryTableModel
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("select match history: %w", err)
	}

	out := make([]history.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, history.Record{
			MatchID:         row.MatchID,
			CompetitionName: row.CompetitionName,
			HomeName:        row.HomeName,
			AwayName:        row.AwayName,
			HomeScore:       row.HomeScore,
			AwayScore:       row.AwayScore,
			Status:          row.Status,
			KillScore:       row.KillScore,
			TotalScore:      row.TotalScore,
			Confidence:      row.Confidence,
			Action:          row.Action,
			FinishedAt:      row.FinishedAt,
		})
	}
	return out, nil
}
