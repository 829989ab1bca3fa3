package postgres

import "time"

type matchHistoryTableModel struct {
	MatchID         int64     `db:"match_id"`
	CompetitionName string    `db:"competition_name"`
	HomeName        string    `db:"home_name"`
	AwayName        string    `db:"away_name"`
	HomeScore       int       `db:"home_score"`
	AwayScore       int       `db:"away_score"`
	Status          string    `db:"status"`
	KillScore       int       `db:"kill_score"`
	TotalScore      int       `db:"total_score"`
	Confidence      int       `db:"confidence"`
	Action          string    `db:"action"`
	FinishedAt      time.Time `db:"finished_at"`
	CreatedAt       time.Time `db:"created_at"`
}
