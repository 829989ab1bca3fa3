package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"

	"github.com/matchpulse/matchpulse/internal/domain/match"
	"github.com/matchpulse/matchpulse/internal/domain/snapshot"
	"github.com/matchpulse/matchpulse/internal/platform/logging"
	"github.com/matchpulse/matchpulse/internal/usecase"
)

type stubSnapshots struct {
	snap      snapshot.CachedSnapshot
	status    string
	err       error
	refreshed bool
}

func (s *stubSnapshots) Handle(context.Context) (snapshot.CachedSnapshot, string, error) {
	return s.snap, s.status, s.err
}

func (s *stubSnapshots) RefreshNow(context.Context) (snapshot.CachedSnapshot, error) {
	s.refreshed = true
	return s.snap, s.err
}

func (s *stubSnapshots) BackgroundFailures() int64 { return 0 }

type stubQuota struct{ total int }

func (q *stubQuota) IncrementCalls(context.Context, int) error { return nil }
func (q *stubQuota) CallsToday(context.Context) (int, error)   { return q.total, nil }

func intRef(v int) *int           { return &v }
func floatRef(v float64) *float64 { return &v }

func liveEvent() match.Event {
	ev := match.Event{
		ID:     1001,
		Home:   match.Participant{ID: 14, Name: "Arsenal", Score: 1},
		Away:   match.Participant{ID: 19, Name: "Liverpool", Score: 1},
		Minute: 80,
		Status: match.StatusSecondHalf,
		Stats: match.StatsBlock{
			HasRealData: true,
			Home:        match.TeamStats{TeamID: 14, Shots: intRef(13), ShotsOnTarget: intRef(5), Possession: floatRef(55)},
			Away:        match.TeamStats{TeamID: 19, Shots: intRef(12), ShotsOnTarget: intRef(4), Possession: floatRef(45)},
		},
		Odds: match.OddsBlock{
			FetchStatus: match.FetchSuccess,
			Live:        true,
			Source:      match.OddsSourceLive,
			OverUnder:   &match.OverUnderMarket{Line: 2.5, Over: 1.85, Under: 1.95},
		},
		Timeline: []match.TimelineEntry{
			{Minute: 23, Type: match.TimelineGoal, TeamID: 14},
			{Minute: 67, Type: match.TimelineGoal, TeamID: 19},
		},
		KillScore: 95,
	}
	ev.Validation = usecase.ValidateMatch(ev)
	return ev
}

func testSnapshot(status string) *stubSnapshots {
	now := time.Now()
	return &stubSnapshots{
		snap: snapshot.CachedSnapshot{
			Events: []match.Event{liveEvent()},
			Meta: snapshot.RefreshMeta{
				StartedAt:         now.Add(-5 * time.Second),
				NextRefreshAt:     now.Add(10 * time.Second),
				MatchCount:        1,
				LiveCount:         1,
				APICallsThisCycle: 5,
				Duration:          900 * time.Millisecond,
			},
			StoredAt: now.Add(-5 * time.Second),
		},
		status: status,
	}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	if err := sonic.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope
}

func TestLiveMatchesFreshResponse(t *testing.T) {
	t.Parallel()

	snapshots := testSnapshot(snapshot.StatusFresh)
	handler := NewHandler(snapshots, &stubQuota{total: 120}, nil, logging.NewNop())

	rec := httptest.NewRecorder()
	handler.LiveMatches(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "s-maxage=15") {
		t.Fatalf("cache control = %q", cc)
	}

	envelope := decodeEnvelope(t, rec)
	if !envelope.Success {
		t.Fatalf("expected success envelope: %s", rec.Body.String())
	}

	var data liveMatchesData
	raw, _ := sonic.Marshal(envelope.Data)
	if err := sonic.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Meta.Status != snapshot.StatusFresh || data.Meta.Total != 1 || data.Meta.Live != 1 {
		t.Fatalf("unexpected meta: %+v", data.Meta)
	}
	if data.Meta.APICallsToday != 120 {
		t.Fatalf("apiCallsToday = %d", data.Meta.APICallsToday)
	}
	if len(data.Matches) != 1 || data.Matches[0].Score == nil {
		t.Fatalf("expected one scored match, got %+v", data.Matches)
	}
}

func TestLiveMatchesScoreReflectsLineMovement(t *testing.T) {
	t.Parallel()

	still := testSnapshot(snapshot.StatusFresh)
	moved := testSnapshot(snapshot.StatusFresh)
	moved.snap.Events[0].Odds.LineMovement = 0.2

	marketScore := func(snapshots *stubSnapshots) float64 {
		handler := NewHandler(snapshots, &stubQuota{}, nil, logging.NewNop())
		rec := httptest.NewRecorder()
		handler.LiveMatches(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/live", nil))

		envelope := decodeEnvelope(t, rec)
		var data liveMatchesData
		raw, _ := sonic.Marshal(envelope.Data)
		if err := sonic.Unmarshal(raw, &data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if len(data.Matches) != 1 || data.Matches[0].Score == nil {
			t.Fatalf("expected one scored match, got %+v", data.Matches)
		}
		return data.Matches[0].Score.Components.Market.Score
	}

	if a, b := marketScore(still), marketScore(moved); b <= a {
		t.Fatalf("line movement must raise the market component: still=%v moved=%v", a, b)
	}
}

func TestLiveMatchesMapsRefreshedToFresh(t *testing.T) {
	t.Parallel()

	snapshots := testSnapshot(snapshot.StatusRefreshed)
	handler := NewHandler(snapshots, &stubQuota{}, nil, logging.NewNop())

	rec := httptest.NewRecorder()
	handler.LiveMatches(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/live", nil))

	envelope := decodeEnvelope(t, rec)
	var data liveMatchesData
	raw, _ := sonic.Marshal(envelope.Data)
	if err := sonic.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Meta.Status != snapshot.StatusFresh {
		t.Fatalf("status = %s, want FRESH", data.Meta.Status)
	}
}

func TestLiveMatchesUnscoreableGetsNoScore(t *testing.T) {
	t.Parallel()

	snapshots := testSnapshot(snapshot.StatusFresh)
	snapshots.snap.Events[0].Unscoreable = true

	handler := NewHandler(snapshots, &stubQuota{}, nil, logging.NewNop())
	rec := httptest.NewRecorder()
	handler.LiveMatches(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/live", nil))

	envelope := decodeEnvelope(t, rec)
	var data liveMatchesData
	raw, _ := sonic.Marshal(envelope.Data)
	if err := sonic.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data.Matches) != 1 || data.Matches[0].Score != nil {
		t.Fatalf("unscoreable match must carry no score: %+v", data.Matches)
	}
}

func TestLiveMatchesQueryValidation(t *testing.T) {
	t.Parallel()

	handler := NewHandler(testSnapshot(snapshot.StatusFresh), &stubQuota{}, nil, logging.NewNop())

	rec := httptest.NewRecorder()
	handler.LiveMatches(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/live?minKillScore=180", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.LiveMatches(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/live?action=BANANA", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.LiveMatches(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/live?minKillScore=99", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	envelope := decodeEnvelope(t, rec)
	var data liveMatchesData
	raw, _ := sonic.Marshal(envelope.Data)
	if err := sonic.Unmarshal(raw, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data.Matches) != 0 {
		t.Fatalf("kill score filter did not apply: %+v", data.Matches)
	}
}

func TestLiveMatchesRefreshFailure(t *testing.T) {
	t.Parallel()

	snapshots := &stubSnapshots{err: usecase.ErrRefreshFailed}
	handler := NewHandler(snapshots, &stubQuota{}, nil, logging.NewNop())

	rec := httptest.NewRecorder()
	handler.LiveMatches(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/live", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	envelope := decodeEnvelope(t, rec)
	if envelope.Success || envelope.Error == nil || envelope.Error.Reason != "refreshFailed" {
		t.Fatalf("unexpected error envelope: %s", rec.Body.String())
	}
}

func TestInternalRefreshRequiresToken(t *testing.T) {
	t.Parallel()

	snapshots := testSnapshot(snapshot.StatusFresh)
	handler := NewHandler(snapshots, &stubQuota{}, nil, logging.NewNop())
	router := NewRouter(handler, logging.NewNop(), nil, "job-secret")

	req := httptest.NewRequest(http.MethodPost, "/v1/internal/refresh", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", rec.Code)
	}
	if snapshots.refreshed {
		t.Fatal("refresh must not run without the job token")
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/internal/refresh", nil)
	req.Header.Set("X-Internal-Job-Token", "job-secret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with token: %s", rec.Code, rec.Body.String())
	}
	if !snapshots.refreshed {
		t.Fatal("expected forced refresh to run")
	}
}

func TestMatchHistoryWithoutStorage(t *testing.T) {
	t.Parallel()

	handler := NewHandler(testSnapshot(snapshot.StatusFresh), &stubQuota{}, nil, logging.NewNop())

	rec := httptest.NewRecorder()
	handler.MatchHistory(rec, httptest.NewRequest(http.MethodGet, "/v1/matches/history", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 without database", rec.Code)
	}
}

func TestMapErrorTaxonomy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		status int
	}{
		{usecase.ErrInvalidInput, http.StatusBadRequest},
		{usecase.ErrNotFound, http.StatusNotFound},
		{usecase.ErrUnauthorized, http.StatusUnauthorized},
		{usecase.ErrRefreshFailed, http.StatusServiceUnavailable},
		{usecase.ErrDependencyUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := mapError(tc.err).HTTPStatus; got != tc.status {
			t.Fatalf("mapError(%v) = %d, want %d", tc.err, got, tc.status)
		}
	}
}
