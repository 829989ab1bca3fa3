package quota

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matchpulse/matchpulse/internal/usecase"
)

const (
	keyPrefix = "matchpulse:quota:"
	keyTTL    = 48 * time.Hour
)

// Counter tracks the provider's daily call budget in the shared store, keyed
// by UTC date. Increments happen only from the lock-holding refresh, so the
// read-modify-write below is serialized by the refresh lock rather than by
// the store.
type Counter struct {
	store usecase.SharedStore
	now   func() time.Time
}

func NewCounter(store usecase.SharedStore) *Counter {
	return &Counter{store: store, now: time.Now}
}

func (c *Counter) IncrementCalls(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}

	key := c.dayKey()
	current, err := c.read(ctx, key)
	if err != nil {
		return err
	}

	if err := c.store.Set(ctx, key, []byte(strconv.Itoa(current+n)), keyTTL); err != nil {
		return fmt.Errorf("store quota counter: %w", err)
	}
	return nil
}

func (c *Counter) CallsToday(ctx context.Context) (int, error) {
	return c.read(ctx, c.dayKey())
}

func (c *Counter) read(ctx context.Context, key string) (int, error) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read quota counter: %w", err)
	}
	if !ok {
		return 0, nil
	}

	value, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, nil
	}
	return value, nil
}

func (c *Counter) dayKey() string {
	return keyPrefix + c.now().UTC().Format("2006-01-02")
}
