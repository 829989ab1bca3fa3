package snapshot

import (
	"time"

	"github.com/matchpulse/matchpulse/internal/domain/match"
)

// Freshness status returned to readers.
const (
	StatusFresh           = "FRESH"
	StatusStaleRefreshing = "STALE_REFRESHING"
	StatusRefreshed       = "REFRESHED"
)

// Coverage counts how many matches in a cycle carried each data source.
type Coverage struct {
	WithOdds      int `json:"withOdds"`
	WithOverUnder int `json:"withOverUnder"`
	WithRealStats int `json:"withRealStats"`
}

// RefreshMeta describes one refresh cycle. It is immutable once written and
// superseded wholesale by the next cycle.
type RefreshMeta struct {
	StartedAt         time.Time     `json:"startedAt"`
	NextRefreshAt     time.Time     `json:"nextRefreshAt"`
	MatchCount        int           `json:"matchCount"`
	LiveCount         int           `json:"liveCount"`
	APICallsThisCycle int           `json:"apiCallsThisCycle"`
	Duration          time.Duration `json:"duration"`
	Errors            []string      `json:"errors,omitempty"`
	Coverage          Coverage      `json:"coverage"`
}

// CachedSnapshot is the shared last-good result set. It is replaced
// atomically on each successful refresh, never mutated in place.
type CachedSnapshot struct {
	Events   []match.Event `json:"events"`
	Meta     RefreshMeta   `json:"meta"`
	StoredAt time.Time     `json:"storedAt"`
}

func (s CachedSnapshot) Age(now time.Time) time.Duration {
	if s.StoredAt.IsZero() {
		return 0
	}
	return now.Sub(s.StoredAt)
}
