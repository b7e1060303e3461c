package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/padhaihub/backend/internal/models"
)

type memCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]int64
	sets    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[uuid.UUID]int64)}
}

func (c *memCache) Get(_ context.Context, userID uuid.UUID) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[userID]
	return v, ok
}

func (c *memCache) Set(_ context.Context, userID uuid.UUID, balance int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = balance
	c.sets++
}

func (c *memCache) Invalidate(_ context.Context, userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

var _ BalanceCache = (*memCache)(nil)

// Balance reads through the cache: a miss populates it from the repository,
// a hit skips the repository entirely.
func TestBalanceReadThrough(t *testing.T) {
	user := uuid.New()
	repo := newMemRepo()
	cache := newMemCache()
	svc := NewService(repo, cache, nil)
	ctx := context.Background()

	balance, err := svc.Balance(ctx, user)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != models.StartingGrant {
		t.Errorf("balance: got %d, want %d", balance, models.StartingGrant)
	}
	if cache.sets != 1 {
		t.Errorf("cache sets after first read: got %d, want 1", cache.sets)
	}

	// Mutate the repository behind the cache's back; a hit must serve the
	// cached value without touching the repository.
	repo.mu.Lock()
	repo.balances[user] = 999
	repo.mu.Unlock()

	balance, err = svc.Balance(ctx, user)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != models.StartingGrant {
		t.Errorf("cached balance: got %d, want %d", balance, models.StartingGrant)
	}
	if cache.sets != 1 {
		t.Errorf("cache sets after hit: got %d, want 1", cache.sets)
	}
}

// Every write path invalidates: debit, credit, and the post-commit flush
// used by settlement and award flows. The next read repopulates from the
// repository, so the cache can never serve a pre-write balance.
func TestBalanceCacheInvalidatedOnWrites(t *testing.T) {
	user := uuid.New()
	repo := newMemRepo()
	cache := newMemCache()
	svc := NewService(repo, cache, nil)
	ctx := context.Background()

	if _, err := svc.Balance(ctx, user); err != nil {
		t.Fatalf("balance: %v", err)
	}

	if _, err := svc.Debit(ctx, user, 10, "feature: quiz"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if _, ok := cache.Get(ctx, user); ok {
		t.Error("cache entry should be invalidated by debit")
	}
	balance, err := svc.Balance(ctx, user)
	if err != nil {
		t.Fatalf("balance after debit: %v", err)
	}
	if balance != models.StartingGrant-10 {
		t.Errorf("balance after debit: got %d, want %d", balance, models.StartingGrant-10)
	}

	if _, err := svc.Credit(ctx, user, 40, models.TxKindPurchased, "topup"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, ok := cache.Get(ctx, user); ok {
		t.Error("cache entry should be invalidated by credit")
	}
	balance, err = svc.Balance(ctx, user)
	if err != nil {
		t.Fatalf("balance after credit: %v", err)
	}
	if balance != models.StartingGrant+30 {
		t.Errorf("balance after credit: got %d, want %d", balance, models.StartingGrant+30)
	}

	svc.FlushBalance(ctx, user)
	if _, ok := cache.Get(ctx, user); ok {
		t.Error("cache entry should be invalidated by FlushBalance")
	}
}
