package usecase

import (
	"context"
	"time"
)

// UpstreamClient is the batched, rate-limited sports-data provider boundary.
// Batch operations return maps keyed by match id; ids whose chunk failed are
// simply absent. The cycle call counter is reset and read only by the active
// refresh.
type UpstreamClient interface {
	FetchLiveFixtures(ctx context.Context) ([]ExternalFixture, error)
	FetchStatistics(ctx context.Context, ids []int64) (map[int64]ExternalStats, error)
	FetchTimelines(ctx context.Context, ids []int64) (map[int64][]ExternalTimelineEvent, error)
	FetchLiveOdds(ctx context.Context, ids []int64) (map[int64]ExternalOdds, error)
	FetchPrematchOdds(ctx context.Context, ids []int64) (map[int64]ExternalOdds, error)
	ResetCycleCalls()
	CycleCalls() int
}

// SharedStore is the externally shared state reachable by every worker: the
// cached snapshot plus the refresh lock. Values are opaque bytes replaced
// atomically; locks carry a TTL so a crashed holder cannot wedge refreshes.
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	TryAcquireLock(ctx context.Context, name string, ttl time.Duration) (owner string, acquired bool, err error)
	ReleaseLock(ctx context.Context, name, owner string) error
}

// QuotaCounter is the provider's daily call-budget collaborator. The core
// consults it but does not own it.
type QuotaCounter interface {
	IncrementCalls(ctx context.Context, n int) error
	CallsToday(ctx context.Context) (int, error)
}
