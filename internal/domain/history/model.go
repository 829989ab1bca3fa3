package history

import "time"

// Record is the immutable hand-off for one finished match. A duplicate
// submission for the same MatchID must be a no-op at the recorder.
type Record struct {
	MatchID         int64
	CompetitionName string
	HomeName        string
	AwayName        string
	HomeScore       int
	AwayScore       int
	Status          string
	KillScore       int
	TotalScore      int
	Confidence      int
	Action          string
	FinishedAt      time.Time
}
