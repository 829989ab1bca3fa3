package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/panjf2000/ants/v2"

	"github.com/matchpulse/matchpulse/internal/domain/history"
	"github.com/matchpulse/matchpulse/internal/domain/match"
	"github.com/matchpulse/matchpulse/internal/domain/snapshot"
	"github.com/matchpulse/matchpulse/internal/platform/logging"
)

const (
	snapshotKey     = "matchpulse:snapshot"
	refreshLockName = "matchpulse:refresh"

	sourceFetchWorkers = 4
)

// RefreshConfig carries the cache-coherence knobs. Zero values are replaced
// by the defaults below so a partially filled config stays safe.
type RefreshConfig struct {
	FreshTTL        time.Duration
	StaleTTL        time.Duration
	LockTTL         time.Duration
	LockRetryWait   time.Duration
	RefreshTimeout  time.Duration
	SnapshotTTL     time.Duration
	PrematchOddsCap int
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	if c.FreshTTL <= 0 {
		c.FreshTTL = 15 * time.Second
	}
	if c.StaleTTL <= 0 {
		c.StaleTTL = 60 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 90 * time.Second
	}
	if c.LockRetryWait <= 0 {
		c.LockRetryWait = 2 * time.Second
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = 45 * time.Second
	}
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = 10 * time.Minute
	}
	if c.PrematchOddsCap <= 0 {
		c.PrematchOddsCap = 20
	}
	return c
}

// RefreshService owns the cached snapshot: it decides per read whether the
// snapshot is fresh, refreshable in the background, or must be rebuilt
// synchronously, and it is the only writer of the snapshot key.
type RefreshService struct {
	upstream UpstreamClient
	store    SharedStore
	quota    QuotaCounter
	history  history.Recorder
	logger   *logging.Logger
	cfg      RefreshConfig

	now func() time.Time

	backgroundFailures atomic.Int64
	background         sync.WaitGroup
}

func NewRefreshService(
	upstream UpstreamClient,
	store SharedStore,
	quota QuotaCounter,
	recorder history.Recorder,
	logger *logging.Logger,
	cfg RefreshConfig,
) *RefreshService {
	if logger == nil {
		logger = logging.Default()
	}
	return &RefreshService{
		upstream: upstream,
		store:    store,
		quota:    quota,
		history:  recorder,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// BackgroundFailures reports how many fire-and-forget refreshes have failed
// since startup. Exposed for health reporting only.
func (s *RefreshService) BackgroundFailures() int64 {
	return s.backgroundFailures.Load()
}

// Wait blocks until in-flight background refreshes finish. Used on shutdown.
func (s *RefreshService) Wait() {
	s.background.Wait()
}

// Handle serves one read. The returned status is FRESH, STALE_REFRESHING, or
// REFRESHED; the snapshot is never partially written.
func (s *RefreshService) Handle(ctx context.Context) (snapshot.CachedSnapshot, string, error) {
	ctx, span := startUsecaseSpan(ctx, "RefreshService.Handle")
	defer span.End()

	snap, found, err := s.readSnapshot(ctx)
	if err != nil {
		return snapshot.CachedSnapshot{}, "", fmt.Errorf("read snapshot: %w", errors.Join(ErrDependencyUnavailable, err))
	}

	if found {
		age := snap.Age(s.now())
		if age < s.cfg.FreshTTL {
			return snap, snapshot.StatusFresh, nil
		}
		if age < s.cfg.StaleTTL {
			s.maybeStartBackgroundRefresh(ctx)
			return snap, snapshot.StatusStaleRefreshing, nil
		}
	}

	return s.refreshBlocking(ctx)
}

// maybeStartBackgroundRefresh fires at most one refresh: the lock decides.
// Losing the lock means another worker is already on it.
func (s *RefreshService) maybeStartBackgroundRefresh(ctx context.Context) {
	owner, acquired, err := s.store.TryAcquireLock(ctx, refreshLockName, s.cfg.LockTTL)
	if err != nil {
		s.logger.WarnContext(ctx, "refresh lock acquire failed", "error", err)
		return
	}
	if !acquired {
		return
	}

	// Detached from the request: the triggering reader already has its
	// response, completion is observed by the next reader.
	bgCtx := context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()

		ctx, cancel := context.WithTimeout(bgCtx, s.cfg.RefreshTimeout)
		defer cancel()
		defer s.releaseLock(ctx, owner)

		if _, err := s.refresh(ctx); err != nil {
			s.backgroundFailures.Add(1)
			s.logger.ErrorContext(ctx, "background refresh failed", "error", err)
		}
	}()
}

func (s *RefreshService) refreshBlocking(ctx context.Context) (snapshot.CachedSnapshot, string, error) {
	owner, acquired, err := s.store.TryAcquireLock(ctx, refreshLockName, s.cfg.LockTTL)
	if err != nil {
		return snapshot.CachedSnapshot{}, "", fmt.Errorf("acquire refresh lock: %w", errors.Join(ErrDependencyUnavailable, err))
	}

	if !acquired {
		// Another worker is refreshing. Wait once, then accept whatever it
		// produced as long as it is younger than the stale ceiling.
		select {
		case <-ctx.Done():
			return snapshot.CachedSnapshot{}, "", ctx.Err()
		case <-time.After(s.cfg.LockRetryWait):
		}

		snap, found, err := s.readSnapshot(ctx)
		if err != nil {
			return snapshot.CachedSnapshot{}, "", fmt.Errorf("re-read snapshot: %w", errors.Join(ErrDependencyUnavailable, err))
		}
		if found {
			age := snap.Age(s.now())
			if age < s.cfg.FreshTTL {
				return snap, snapshot.StatusFresh, nil
			}
			if age < s.cfg.StaleTTL {
				return snap, snapshot.StatusStaleRefreshing, nil
			}
		}
		return snapshot.CachedSnapshot{}, "", fmt.Errorf("refresh lock held and no usable snapshot: %w", ErrRefreshFailed)
	}

	defer s.releaseLock(ctx, owner)

	snap, err := s.refresh(ctx)
	if err != nil {
		return snapshot.CachedSnapshot{}, "", fmt.Errorf("synchronous refresh: %w", errors.Join(ErrRefreshFailed, err))
	}
	return snap, snapshot.StatusRefreshed, nil
}

// RefreshNow rebuilds the snapshot regardless of its age. It competes for
// the same lock as reader-triggered refreshes, so a cycle already in flight
// makes it fail instead of doubling the provider calls.
func (s *RefreshService) RefreshNow(ctx context.Context) (snapshot.CachedSnapshot, error) {
	ctx, span := startUsecaseSpan(ctx, "RefreshService.RefreshNow")
	defer span.End()

	owner, acquired, err := s.store.TryAcquireLock(ctx, refreshLockName, s.cfg.LockTTL)
	if err != nil {
		return snapshot.CachedSnapshot{}, fmt.Errorf("acquire refresh lock: %w", errors.Join(ErrDependencyUnavailable, err))
	}
	if !acquired {
		return snapshot.CachedSnapshot{}, fmt.Errorf("refresh already in progress: %w", ErrRefreshFailed)
	}
	defer s.releaseLock(ctx, owner)

	snap, err := s.refresh(ctx)
	if err != nil {
		return snapshot.CachedSnapshot{}, fmt.Errorf("forced refresh: %w", errors.Join(ErrRefreshFailed, err))
	}
	return snap, nil
}

func (s *RefreshService) releaseLock(ctx context.Context, owner string) {
	if err := s.store.ReleaseLock(ctx, refreshLockName, owner); err != nil {
		s.logger.WarnContext(ctx, "refresh lock release failed", "error", err)
	}
}

func (s *RefreshService) readSnapshot(ctx context.Context) (snapshot.CachedSnapshot, bool, error) {
	raw, found, err := s.store.Get(ctx, snapshotKey)
	if err != nil || !found {
		return snapshot.CachedSnapshot{}, false, err
	}
	var snap snapshot.CachedSnapshot
	if err := sonic.Unmarshal(raw, &snap); err != nil {
		// A corrupt snapshot is treated as absent; the next refresh replaces it.
		s.logger.WarnContext(ctx, "snapshot decode failed, discarding", "error", err)
		return snapshot.CachedSnapshot{}, false, nil
	}
	return snap, true, nil
}

type sourcePayloads struct {
	stats    map[int64]ExternalStats
	timeline map[int64][]ExternalTimelineEvent
	liveOdds map[int64]ExternalOdds
	prematch map[int64]ExternalOdds

	prematchRequested map[int64]bool

	statsErr    error
	timelineErr error
	liveErr     error
	prematchErr error
}

// refresh rebuilds the snapshot wholesale. The fixture list is the one call
// that may fail the whole cycle; everything after it degrades per source.
func (s *RefreshService) refresh(ctx context.Context) (snapshot.CachedSnapshot, error) {
	ctx, span := startUsecaseSpan(ctx, "RefreshService.refresh")
	defer span.End()

	start := s.now()
	s.upstream.ResetCycleCalls()

	prev, prevFound, err := s.readSnapshot(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "previous snapshot unavailable", "error", err)
		prevFound = false
	}

	fixtures, err := s.upstream.FetchLiveFixtures(ctx)
	if err != nil {
		return snapshot.CachedSnapshot{}, fmt.Errorf("fetch live fixtures: %w", err)
	}

	if len(fixtures) == 0 {
		snap := s.emptySnapshot(start)
		if err := s.writeSnapshot(ctx, snap); err != nil {
			return snapshot.CachedSnapshot{}, err
		}
		s.recordQuota(ctx, snap.Meta.APICallsThisCycle)
		if prevFound {
			s.commitDeparted(ctx, prev.Events, nil)
		}
		return snap, nil
	}

	ids := make([]int64, 0, len(fixtures))
	for _, fx := range fixtures {
		ids = append(ids, fx.ID)
	}
	prematchIDs := ids
	if len(prematchIDs) > s.cfg.PrematchOddsCap {
		prematchIDs = prematchIDs[:s.cfg.PrematchOddsCap]
	}

	payloads, err := s.fetchSources(ctx, ids, prematchIDs)
	if err != nil {
		return snapshot.CachedSnapshot{}, err
	}

	prevOverUnder := make(map[int64]*match.OverUnderMarket)
	if prevFound {
		for _, prevEv := range prev.Events {
			prevOverUnder[prevEv.ID] = prevEv.Odds.OverUnder
		}
	}

	// Finished matches leave the live set here and go to history instead.
	all := make([]match.Event, 0, len(fixtures))
	live := make([]match.Event, 0, len(fixtures))
	for _, fx := range fixtures {
		ev := s.assembleEvent(fx, payloads)
		ev.Odds.LineMovement = overUnderDrift(prevOverUnder[fx.ID], ev.Odds.OverUnder)
		all = append(all, ev)
		if !match.IsFinished(ev.Status) {
			live = append(live, ev)
		}
	}

	snap := snapshot.CachedSnapshot{
		Events:   live,
		Meta:     s.buildMeta(start, live, payloads),
		StoredAt: s.now(),
	}
	if err := s.writeSnapshot(ctx, snap); err != nil {
		return snapshot.CachedSnapshot{}, err
	}
	s.recordQuota(ctx, snap.Meta.APICallsThisCycle)
	var prevEvents []match.Event
	if prevFound {
		prevEvents = prev.Events
	}
	s.commitDeparted(ctx, prevEvents, all)
	return snap, nil
}

// fetchSources runs the four per-fixture calls in parallel. A source that
// fails entirely degrades to an empty map and an error string in the meta.
func (s *RefreshService) fetchSources(ctx context.Context, ids, prematchIDs []int64) (*sourcePayloads, error) {
	payloads := &sourcePayloads{
		prematchRequested: make(map[int64]bool, len(prematchIDs)),
	}
	for _, id := range prematchIDs {
		payloads.prematchRequested[id] = true
	}

	pool, err := ants.NewPool(sourceFetchWorkers)
	if err != nil {
		return nil, fmt.Errorf("create fetch pool: %w", err)
	}
	defer pool.Release()

	var workers sync.WaitGroup
	submit := func(task func()) error {
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()
			task()
		}); err != nil {
			workers.Done()
			return fmt.Errorf("submit fetch task: %w", err)
		}
		return nil
	}

	tasks := []func(){
		func() { payloads.stats, payloads.statsErr = s.upstream.FetchStatistics(ctx, ids) },
		func() { payloads.timeline, payloads.timelineErr = s.upstream.FetchTimelines(ctx, ids) },
		func() { payloads.liveOdds, payloads.liveErr = s.upstream.FetchLiveOdds(ctx, ids) },
		func() { payloads.prematch, payloads.prematchErr = s.upstream.FetchPrematchOdds(ctx, prematchIDs) },
	}
	for _, task := range tasks {
		if err := submit(task); err != nil {
			workers.Wait()
			return nil, err
		}
	}
	workers.Wait()

	for _, item := range []struct {
		source string
		err    error
	}{
		{"statistics", payloads.statsErr},
		{"timelines", payloads.timelineErr},
		{"live odds", payloads.liveErr},
		{"prematch odds", payloads.prematchErr},
	} {
		if item.err != nil {
			s.logger.WarnContext(ctx, "source fetch degraded", "source", item.source, "error", item.err)
		}
	}

	return payloads, nil
}

func (s *RefreshService) assembleEvent(fx ExternalFixture, payloads *sourcePayloads) match.Event {
	var stats *ExternalStats
	if st, ok := payloads.stats[fx.ID]; ok {
		stats = &st
	}
	var liveOdds *ExternalOdds
	if odds, ok := payloads.liveOdds[fx.ID]; ok {
		liveOdds = &odds
	}
	var prematch *ExternalOdds
	if odds, ok := payloads.prematch[fx.ID]; ok {
		prematch = &odds
	}

	ev := CombineMatch(fx, stats, payloads.timeline[fx.ID], liveOdds, prematch)

	// Distinguish "never asked" from "asked and the source call blew up".
	// Beyond the pre-match cap, a failed live fetch was the only attempt.
	if ev.Odds.FetchStatus == match.FetchNotFetched && payloads.liveErr != nil &&
		(payloads.prematchErr != nil || !payloads.prematchRequested[fx.ID]) {
		ev.Odds.FetchStatus = match.FetchError
	}

	ev.Validation = ValidateMatch(ev)
	return ev
}

// overUnderDrift is the signed change of the main over/under "over" price
// between two cycles. A changed main line is a repricing, not a drift.
func overUnderDrift(prev, curr *match.OverUnderMarket) float64 {
	if prev == nil || curr == nil {
		return 0
	}
	if prev.Line != curr.Line {
		return 0
	}
	return curr.Over - prev.Over
}

func (s *RefreshService) buildMeta(start time.Time, events []match.Event, payloads *sourcePayloads) snapshot.RefreshMeta {
	meta := snapshot.RefreshMeta{
		StartedAt:         start,
		NextRefreshAt:     start.Add(s.cfg.FreshTTL),
		MatchCount:        len(events),
		APICallsThisCycle: s.upstream.CycleCalls(),
		Duration:          s.now().Sub(start),
	}

	for _, item := range []struct {
		source string
		err    error
	}{
		{"statistics", payloads.statsErr},
		{"timelines", payloads.timelineErr},
		{"live_odds", payloads.liveErr},
		{"prematch_odds", payloads.prematchErr},
	} {
		if item.err != nil {
			meta.Errors = append(meta.Errors, fmt.Sprintf("%s: %v", item.source, item.err))
		}
	}

	for _, ev := range events {
		if match.IsInPlay(ev.Status) {
			meta.LiveCount++
		}
		if ev.Odds.HasAnyMarket() {
			meta.Coverage.WithOdds++
		}
		if ev.Odds.OverUnder != nil {
			meta.Coverage.WithOverUnder++
		}
		if ev.Stats.HasRealData {
			meta.Coverage.WithRealStats++
		}
	}

	return meta
}

func (s *RefreshService) emptySnapshot(start time.Time) snapshot.CachedSnapshot {
	return snapshot.CachedSnapshot{
		Events: []match.Event{},
		Meta: snapshot.RefreshMeta{
			StartedAt:         start,
			NextRefreshAt:     start.Add(s.cfg.FreshTTL),
			APICallsThisCycle: s.upstream.CycleCalls(),
			Duration:          s.now().Sub(start),
		},
		StoredAt: s.now(),
	}
}

func (s *RefreshService) writeSnapshot(ctx context.Context, snap snapshot.CachedSnapshot) error {
	raw, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.store.Set(ctx, snapshotKey, raw, s.cfg.SnapshotTTL); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

func (s *RefreshService) recordQuota(ctx context.Context, calls int) {
	if s.quota == nil || calls <= 0 {
		return
	}
	if err := s.quota.IncrementCalls(ctx, calls); err != nil {
		s.logger.WarnContext(ctx, "quota increment failed", "error", err)
	}
}

// commitDeparted hands events that left the live set to the history recorder:
// matches the current cycle reports as finished, plus matches that vanished
// from the feed since the previous snapshot. Recording is best effort and
// idempotent on the recorder side.
func (s *RefreshService) commitDeparted(ctx context.Context, previous, current []match.Event) {
	if s.history == nil {
		return
	}

	stillLive := make(map[int64]bool, len(current))
	byID := make(map[int64]match.Event, len(current))
	for _, ev := range current {
		byID[ev.ID] = ev
		if !match.IsFinished(ev.Status) {
			stillLive[ev.ID] = true
		}
	}

	departed := make([]match.Event, 0)
	seen := make(map[int64]bool)
	for _, ev := range current {
		if match.IsFinished(ev.Status) {
			departed = append(departed, ev)
			seen[ev.ID] = true
		}
	}
	for _, prevEv := range previous {
		if stillLive[prevEv.ID] || seen[prevEv.ID] {
			continue
		}
		if ev, ok := byID[prevEv.ID]; ok {
			prevEv = ev
		}
		departed = append(departed, prevEv)
	}

	for _, final := range departed {
		result := ScoreMatch(final, &MarketContext{LineMovement: final.Odds.LineMovement})
		rec := history.Record{
			MatchID:         final.ID,
			CompetitionName: final.CompetitionName,
			HomeName:        final.Home.Name,
			AwayName:        final.Away.Name,
			HomeScore:       final.Home.Score,
			AwayScore:       final.Away.Score,
			Status:          final.Status,
			KillScore:       final.KillScore,
			TotalScore:      result.Total,
			Confidence:      result.Confidence,
			Action:          string(result.Action),
			FinishedAt:      s.now(),
		}
		if err := s.history.Record(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "history commit failed", "matchId", final.ID, "error", err)
		}
	}
}
