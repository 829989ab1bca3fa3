package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/matchpulse/matchpulse/internal/domain/history"
	"github.com/matchpulse/matchpulse/internal/domain/match"
	"github.com/matchpulse/matchpulse/internal/domain/scoring"
	"github.com/matchpulse/matchpulse/internal/domain/snapshot"
	"github.com/matchpulse/matchpulse/internal/platform/logging"
	"github.com/matchpulse/matchpulse/internal/usecase"
)

// SnapshotProvider is the refresh coordinator surface the API needs.
type SnapshotProvider interface {
	Handle(ctx context.Context) (snapshot.CachedSnapshot, string, error)
	RefreshNow(ctx context.Context) (snapshot.CachedSnapshot, error)
	BackgroundFailures() int64
}

// HistoryLister serves the finished-match archive. Nil when no database is
// configured.
type HistoryLister interface {
	ListRecent(ctx context.Context, limit int) ([]history.Record, error)
}

type Handler struct {
	snapshots SnapshotProvider
	quota     usecase.QuotaCounter
	history   HistoryLister
	validate  *validator.Validate
	logger    *logging.Logger
	now       func() time.Time
}

func NewHandler(
	snapshots SnapshotProvider,
	quota usecase.QuotaCounter,
	historyLister HistoryLister,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		snapshots: snapshots,
		quota:     quota,
		history:   historyLister,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		now:       time.Now,
	}
}

type liveMatchesQuery struct {
	MinKillScore int    `validate:"gte=0,lte=100"`
	Action       string `validate:"omitempty,oneof=BET PREPARE WATCH IGNORE"`
}

type matchView struct {
	match.Event
	Score *scoring.Result `json:"score,omitempty"`
}

type liveMatchesMeta struct {
	Total           int     `json:"total"`
	Live            int     `json:"live"`
	LastRefresh     string  `json:"lastRefresh"`
	NextRefresh     string  `json:"nextRefresh"`
	CacheAge        float64 `json:"cacheAge"`
	APICallsToday   int     `json:"apiCallsToday"`
	Status          string  `json:"status"`
	RefreshDuration float64 `json:"refreshDuration"`
}

type liveMatchesData struct {
	Matches []matchView     `json:"matches"`
	Meta    liveMatchesMeta `json:"meta"`
}

func (h *Handler) LiveMatches(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.LiveMatches")
	defer span.End()

	query, err := h.parseLiveMatchesQuery(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	snap, status, err := h.snapshots.Handle(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	// A snapshot rebuilt synchronously on this request is as fresh as it gets.
	if status == snapshot.StatusRefreshed {
		status = snapshot.StatusFresh
	}
	age := snap.Age(h.now())

	matches := make([]matchView, 0, len(snap.Events))
	for _, ev := range snap.Events {
		view := matchView{Event: ev}
		if !ev.Unscoreable {
			result := usecase.ScoreMatch(ev, &usecase.MarketContext{
				SnapshotAge:  age,
				LineMovement: ev.Odds.LineMovement,
			})
			view.Score = &result
		}
		if !query.matches(view) {
			continue
		}
		matches = append(matches, view)
	}

	callsToday := 0
	if h.quota != nil {
		if total, quotaErr := h.quota.CallsToday(ctx); quotaErr == nil {
			callsToday = total
		} else {
			h.logger.WarnContext(ctx, "quota lookup failed", "error", quotaErr)
		}
	}

	setCacheControl(w, status)
	writeSuccess(ctx, w, http.StatusOK, liveMatchesData{
		Matches: matches,
		Meta: liveMatchesMeta{
			Total:           len(matches),
			Live:            snap.Meta.LiveCount,
			LastRefresh:     snap.Meta.StartedAt.UTC().Format(time.RFC3339),
			NextRefresh:     snap.Meta.NextRefreshAt.UTC().Format(time.RFC3339),
			CacheAge:        age.Seconds(),
			APICallsToday:   callsToday,
			Status:          status,
			RefreshDuration: snap.Meta.Duration.Seconds(),
		},
	})
}

func (h *Handler) parseLiveMatchesQuery(r *http.Request) (liveMatchesQuery, error) {
	query := liveMatchesQuery{
		Action: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("action"))),
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("minKillScore")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return liveMatchesQuery{}, fmt.Errorf("%w: minKillScore must be an integer", usecase.ErrInvalidInput)
		}
		query.MinKillScore = value
	}

	if err := h.validate.Struct(query); err != nil {
		return liveMatchesQuery{}, fmt.Errorf("%w: %s", usecase.ErrInvalidInput, err)
	}
	return query, nil
}

func (q liveMatchesQuery) matches(view matchView) bool {
	if view.KillScore < q.MinKillScore {
		return false
	}
	if q.Action != "" {
		if view.Score == nil || string(view.Score.Action) != q.Action {
			return false
		}
	}
	return true
}

func setCacheControl(w http.ResponseWriter, status string) {
	switch status {
	case snapshot.StatusFresh:
		w.Header().Set("Cache-Control", "public, s-maxage=15, stale-while-revalidate=45")
	case snapshot.StatusStaleRefreshing:
		w.Header().Set("Cache-Control", "public, s-maxage=5, stale-while-revalidate=55")
	default:
		w.Header().Set("Cache-Control", "no-store")
	}
}

type refreshJobData struct {
	Status            string   `json:"status"`
	MatchCount        int      `json:"matchCount"`
	LiveCount         int      `json:"liveCount"`
	APICallsThisCycle int      `json:"apiCallsThisCycle"`
	Duration          float64  `json:"duration"`
	Errors            []string `json:"errors,omitempty"`
}

// RunRefreshJob forces a synchronous refresh, ignoring snapshot freshness.
// It still goes through the lock, so it cannot race a reader-triggered
// refresh.
func (h *Handler) RunRefreshJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RunRefreshJob")
	defer span.End()

	snap, err := h.snapshots.RefreshNow(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, refreshJobData{
		Status:            "refreshed",
		MatchCount:        snap.Meta.MatchCount,
		LiveCount:         snap.Meta.LiveCount,
		APICallsThisCycle: snap.Meta.APICallsThisCycle,
		Duration:          snap.Meta.Duration.Seconds(),
		Errors:            snap.Meta.Errors,
	})
}

type historyData struct {
	Records []history.Record `json:"records"`
}

func (h *Handler) MatchHistory(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.MatchHistory")
	defer span.End()

	if h.history == nil {
		writeError(ctx, w, fmt.Errorf("%w: match history storage is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 1 || value > 200 {
			writeError(ctx, w, fmt.Errorf("%w: limit must be between 1 and 200", usecase.ErrInvalidInput))
			return
		}
		limit = value
	}

	records, err := h.history.ListRecent(ctx, limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeSuccess(ctx, w, http.StatusOK, historyData{Records: records})
}

type healthData struct {
	Status             string `json:"status"`
	BackgroundFailures int64  `json:"backgroundFailures"`
	APICallsToday      int    `json:"apiCallsToday"`
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	callsToday := 0
	if h.quota != nil {
		if total, err := h.quota.CallsToday(ctx); err == nil {
			callsToday = total
		}
	}

	writeSuccess(ctx, w, http.StatusOK, healthData{
		Status:             "ok",
		BackgroundFailures: h.snapshots.BackgroundFailures(),
		APICallsToday:      callsToday,
	})
}
