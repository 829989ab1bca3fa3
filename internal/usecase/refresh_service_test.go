package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/matchpulse/matchpulse/internal/domain/history"
	"github.com/matchpulse/matchpulse/internal/domain/match"
	"github.com/matchpulse/matchpulse/internal/domain/snapshot"
	"github.com/matchpulse/matchpulse/internal/infrastructure/sharedstore"
	"github.com/matchpulse/matchpulse/internal/platform/logging"
)

type stubUpstream struct {
	mu          sync.Mutex
	fixtures    []ExternalFixture
	fixturesErr error
	statsErr    error
	liveOddsErr error
	overPrice   *float64
	gate        chan struct{}

	statsIDs        []int64
	prematchOddsIDs []int64

	fixtureCalls atomic.Int32
	statsCalls   atomic.Int32
	oddsCalls    atomic.Int32
	cycleCalls   atomic.Int32
}

func (s *stubUpstream) FetchLiveFixtures(ctx context.Context) ([]ExternalFixture, error) {
	s.fixtureCalls.Add(1)
	s.cycleCalls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fixturesErr != nil {
		return nil, s.fixturesErr
	}
	return s.fixtures, nil
}

func (s *stubUpstream) FetchStatistics(_ context.Context, ids []int64) (map[int64]ExternalStats, error) {
	s.statsCalls.Add(1)
	s.cycleCalls.Add(1)
	s.mu.Lock()
	s.statsIDs = append([]int64(nil), ids...)
	s.mu.Unlock()
	if s.statsErr != nil {
		return map[int64]ExternalStats{}, s.statsErr
	}
	out := make(map[int64]ExternalStats, len(ids))
	for _, id := range ids {
		out[id] = *sampleStats()
	}
	return out, nil
}

func (s *stubUpstream) FetchTimelines(_ context.Context, ids []int64) (map[int64][]ExternalTimelineEvent, error) {
	s.cycleCalls.Add(1)
	out := make(map[int64][]ExternalTimelineEvent, len(ids))
	for _, id := range ids {
		out[id] = sampleTimeline()
	}
	return out, nil
}

func (s *stubUpstream) FetchLiveOdds(_ context.Context, ids []int64) (map[int64]ExternalOdds, error) {
	s.oddsCalls.Add(1)
	s.cycleCalls.Add(1)
	if s.liveOddsErr != nil {
		return map[int64]ExternalOdds{}, s.liveOddsErr
	}
	out := make(map[int64]ExternalOdds, len(ids))
	for _, id := range ids {
		odds := sampleLiveOdds()
		if s.overPrice != nil {
			odds.Markets[0].Values[0].Price = s.overPrice
		}
		out[id] = *odds
	}
	return out, nil
}

func (s *stubUpstream) FetchPrematchOdds(_ context.Context, ids []int64) (map[int64]ExternalOdds, error) {
	s.cycleCalls.Add(1)
	s.mu.Lock()
	s.prematchOddsIDs = append([]int64(nil), ids...)
	s.mu.Unlock()
	return map[int64]ExternalOdds{}, nil
}

func (s *stubUpstream) ResetCycleCalls() { s.cycleCalls.Store(0) }
func (s *stubUpstream) CycleCalls() int  { return int(s.cycleCalls.Load()) }

type stubQuota struct {
	mu    sync.Mutex
	total int
}

func (q *stubQuota) IncrementCalls(_ context.Context, n int) error {
	q.mu.Lock()
	q.total += n
	q.mu.Unlock()
	return nil
}

func (q *stubQuota) CallsToday(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total, nil
}

type stubRecorder struct {
	mu      sync.Mutex
	records []history.Record
}

func (r *stubRecorder) Record(_ context.Context, rec history.Record) error {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
	return nil
}

func newTestService(upstream *stubUpstream, store SharedStore) *RefreshService {
	return NewRefreshService(upstream, store, &stubQuota{}, nil, logging.NewNop(), RefreshConfig{
		LockRetryWait: 50 * time.Millisecond,
	})
}

func seedSnapshot(t *testing.T, store SharedStore, age time.Duration) snapshot.CachedSnapshot {
	t.Helper()

	ev := CombineMatch(sampleFixture(), sampleStats(), sampleTimeline(), sampleLiveOdds(), nil)
	ev.Validation = ValidateMatch(ev)
	snap := snapshot.CachedSnapshot{
		Events:   []match.Event{ev},
		Meta:     snapshot.RefreshMeta{MatchCount: 1, LiveCount: 1, APICallsThisCycle: 5},
		StoredAt: time.Now().Add(-age),
	}

	raw, err := sonic.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	if err := store.Set(context.Background(), snapshotKey, raw, time.Hour); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	return snap
}

func TestHandleFreshSnapshotSkipsUpstream(t *testing.T) {
	t.Parallel()

	upstream := &stubUpstream{}
	store := sharedstore.NewMemory()
	seeded := seedSnapshot(t, store, 2*time.Second)

	svc := newTestService(upstream, store)
	snap, status, err := svc.Handle(context.Background())
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if status != snapshot.StatusFresh {
		t.Fatalf("status = %s, want FRESH", status)
	}
	if len(snap.Events) != 1 || snap.Events[0].ID != seeded.Events[0].ID {
		t.Fatalf("snapshot not returned verbatim: %+v", snap.Events)
	}
	if calls := upstream.fixtureCalls.Load(); calls != 0 {
		t.Fatalf("fresh read made %d upstream calls", calls)
	}
}

func TestHandleStaleStartsAtMostOneRefresh(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	upstream := &stubUpstream{fixtures: []ExternalFixture{sampleFixture()}, gate: gate}
	store := sharedstore.NewMemory()
	seedSnapshot(t, store, 30*time.Second)

	svc := newTestService(upstream, store)

	const readers = 8
	var readerErrs [readers]error
	var statuses [readers]string
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, statuses[i], readerErrs[i] = svc.Handle(context.Background())
		}()
	}
	wg.Wait()
	close(gate)
	svc.Wait()

	for i := 0; i < readers; i++ {
		if readerErrs[i] != nil {
			t.Fatalf("reader %d: %v", i, readerErrs[i])
		}
		if statuses[i] != snapshot.StatusStaleRefreshing {
			t.Fatalf("reader %d status = %s, want STALE_REFRESHING", i, statuses[i])
		}
	}
	if calls := upstream.fixtureCalls.Load(); calls != 1 {
		t.Fatalf("expected exactly one background refresh, got %d", calls)
	}
}

func TestHandleEmptyFixtureListWritesCheapSnapshot(t *testing.T) {
	t.Parallel()

	upstream := &stubUpstream{}
	store := sharedstore.NewMemory()
	quota := &stubQuota{}
	svc := NewRefreshService(upstream, store, quota, nil, logging.NewNop(), RefreshConfig{})

	snap, status, err := svc.Handle(context.Background())
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if status != snapshot.StatusRefreshed {
		t.Fatalf("status = %s, want REFRESHED", status)
	}
	if len(snap.Events) != 0 || snap.Meta.MatchCount != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
	if snap.Meta.APICallsThisCycle != 1 {
		t.Fatalf("apiCallsThisCycle = %d, want 1", snap.Meta.APICallsThisCycle)
	}
	if upstream.statsCalls.Load() != 0 || upstream.oddsCalls.Load() != 0 {
		t.Fatal("no per-fixture calls may be made for an empty live list")
	}
	if total, _ := quota.CallsToday(context.Background()); total != 1 {
		t.Fatalf("quota total = %d, want 1", total)
	}
}

func TestHandleRefreshFailureKeepsLastGoodSnapshot(t *testing.T) {
	t.Parallel()

	upstream := &stubUpstream{fixturesErr: errors.New("provider down")}
	store := sharedstore.NewMemory()
	seeded := seedSnapshot(t, store, 2*time.Minute)

	svc := newTestService(upstream, store)
	_, _, err := svc.Handle(context.Background())
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}

	raw, found, err := store.Get(context.Background(), snapshotKey)
	if err != nil || !found {
		t.Fatalf("last-good snapshot gone: found=%v err=%v", found, err)
	}
	var snap snapshot.CachedSnapshot
	if err := sonic.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Events) != 1 || snap.Events[0].ID != seeded.Events[0].ID {
		t.Fatal("failed refresh must not overwrite the stored snapshot")
	}
}

func TestHandleLockHeldAcceptsSnapshotAfterWait(t *testing.T) {
	t.Parallel()

	upstream := &stubUpstream{}
	store := sharedstore.NewMemory()
	if _, acquired, err := store.TryAcquireLock(context.Background(), refreshLockName, time.Minute); err != nil || !acquired {
		t.Fatalf("pre-acquire lock: acquired=%v err=%v", acquired, err)
	}

	svc := newTestService(upstream, store)

	go func() {
		time.Sleep(5 * time.Millisecond)
		seedSnapshot(t, store, 0)
	}()

	snap, status, err := svc.Handle(context.Background())
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if status != snapshot.StatusFresh {
		t.Fatalf("status = %s, want FRESH after re-read", status)
	}
	if len(snap.Events) != 1 {
		t.Fatalf("expected re-read snapshot, got %+v", snap.Events)
	}
}

func TestHandleLockHeldWithoutSnapshotFails(t *testing.T) {
	t.Parallel()

	upstream := &stubUpstream{}
	store := sharedstore.NewMemory()
	if _, acquired, err := store.TryAcquireLock(context.Background(), refreshLockName, time.Minute); err != nil || !acquired {
		t.Fatalf("pre-acquire lock: acquired=%v err=%v", acquired, err)
	}

	svc := newTestService(upstream, store)
	_, _, err := svc.Handle(context.Background())
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
	if upstream.fixtureCalls.Load() != 0 {
		t.Fatal("must not refresh while another holder owns the lock")
	}
}

func TestRefreshCommitsDepartedMatchesToHistory(t *testing.T) {
	t.Parallel()

	finished := sampleFixture()
	finished.StatusCode = "FT"
	finished.Minute = 90

	upstream := &stubUpstream{fixtures: []ExternalFixture{finished}}
	store := sharedstore.NewMemory()
	seedSnapshot(t, store, 2*time.Minute)
	recorder := &stubRecorder{}

	svc := NewRefreshService(upstream, store, &stubQuota{}, recorder, logging.NewNop(), RefreshConfig{})
	if _, _, err := svc.Handle(context.Background()); err != nil {
		t.Fatalf("handle: %v", err)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.records) != 1 {
		t.Fatalf("expected one history record, got %d", len(recorder.records))
	}
	rec := recorder.records[0]
	if rec.MatchID != finished.ID || rec.Status != match.StatusFinished {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestHandleLockHeldReturnsStaleForAgedSnapshot(t *testing.T) {
	t.Parallel()

	upstream := &stubUpstream{}
	store := sharedstore.NewMemory()
	if _, acquired, err := store.TryAcquireLock(context.Background(), refreshLockName, time.Minute); err != nil || !acquired {
		t.Fatalf("pre-acquire lock: acquired=%v err=%v", acquired, err)
	}

	svc := newTestService(upstream, store)

	go func() {
		time.Sleep(5 * time.Millisecond)
		seedSnapshot(t, store, 30*time.Second)
	}()

	_, status, err := svc.Handle(context.Background())
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if status != snapshot.StatusStaleRefreshing {
		t.Fatalf("status = %s, want STALE_REFRESHING for a re-read snapshot older than the fresh ttl", status)
	}
}

func TestRefreshTracksOverUnderLineMovement(t *testing.T) {
	t.Parallel()

	drifted := 2.05
	upstream := &stubUpstream{
		fixtures:  []ExternalFixture{sampleFixture()},
		overPrice: &drifted,
	}
	store := sharedstore.NewMemory()
	seedSnapshot(t, store, 30*time.Second)

	svc := newTestService(upstream, store)
	snap, err := svc.RefreshNow(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(snap.Events) != 1 {
		t.Fatalf("expected one event, got %d", len(snap.Events))
	}

	ev := snap.Events[0]
	if math.Abs(ev.Odds.LineMovement-0.20) > 1e-9 {
		t.Fatalf("line movement = %v, want 0.20", ev.Odds.LineMovement)
	}

	moved := ScoreMatch(ev, &MarketContext{LineMovement: ev.Odds.LineMovement})
	still := ScoreMatch(ev, &MarketContext{})
	gained := moved.Components.Market.Score - still.Components.Market.Score
	if math.Abs(gained-marketMovementStrongPts) > 1e-9 {
		t.Fatalf("movement contribution = %v, want %v", gained, marketMovementStrongPts)
	}
}

func TestRefreshKeepsLineMovementZeroWhenLineChanges(t *testing.T) {
	t.Parallel()

	if drift := overUnderDrift(
		&match.OverUnderMarket{Line: 2.5, Over: 1.85},
		&match.OverUnderMarket{Line: 3.5, Over: 1.60},
	); drift != 0 {
		t.Fatalf("repriced main line must not count as drift, got %v", drift)
	}
	if drift := overUnderDrift(nil, &match.OverUnderMarket{Line: 2.5, Over: 1.85}); drift != 0 {
		t.Fatalf("first sighting has no drift, got %v", drift)
	}
}

func TestRefreshCapsPrematchOddsRequests(t *testing.T) {
	t.Parallel()

	const total = 25
	fixtures := make([]ExternalFixture, 0, total)
	for i := 0; i < total; i++ {
		fx := sampleFixture()
		fx.ID = int64(2001 + i)
		fixtures = append(fixtures, fx)
	}

	upstream := &stubUpstream{fixtures: fixtures}
	store := sharedstore.NewMemory()
	svc := NewRefreshService(upstream, store, &stubQuota{}, nil, logging.NewNop(), RefreshConfig{})

	if _, err := svc.RefreshNow(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	upstream.mu.Lock()
	defer upstream.mu.Unlock()
	if len(upstream.statsIDs) != total {
		t.Fatalf("statistics requested for %d ids, want %d", len(upstream.statsIDs), total)
	}
	if len(upstream.prematchOddsIDs) != 20 {
		t.Fatalf("prematch odds requested for %d ids, want 20", len(upstream.prematchOddsIDs))
	}
	for i, id := range upstream.prematchOddsIDs {
		if want := fixtures[i].ID; id != want {
			t.Fatalf("prematch id[%d] = %d, want %d (first fixtures in order)", i, id, want)
		}
	}
}

func TestRefreshMarksLiveOddsFailureBeyondPrematchCap(t *testing.T) {
	t.Parallel()

	first := sampleFixture()
	second := sampleFixture()
	second.ID = 1002

	upstream := &stubUpstream{
		fixtures:    []ExternalFixture{first, second},
		liveOddsErr: errors.New("odds feed down"),
	}
	store := sharedstore.NewMemory()
	svc := NewRefreshService(upstream, store, &stubQuota{}, nil, logging.NewNop(), RefreshConfig{PrematchOddsCap: 1})

	snap, err := svc.RefreshNow(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(snap.Events) != 2 {
		t.Fatalf("expected two events, got %d", len(snap.Events))
	}

	if got := snap.Events[0].Odds.FetchStatus; got != match.FetchNotFetched {
		t.Fatalf("capped-in event status = %s, want NOT_FETCHED while prematch may still cover it", got)
	}
	if got := snap.Events[1].Odds.FetchStatus; got != match.FetchError {
		t.Fatalf("beyond-cap event status = %s, want ERROR after its only odds fetch failed", got)
	}
}
