package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/padhaihub/backend/internal/models"
	"github.com/padhaihub/backend/internal/notify"
)

// ---------------------------------------------------------------------------
// In-memory Repo with the same atomicity semantics as the real one: the
// balance check and decrement happen under one lock, and every mutation
// appends a matching transaction.
// ---------------------------------------------------------------------------

type memRepo struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
	txs      []*models.Transaction
}

func newMemRepo() *memRepo {
	return &memRepo{balances: make(map[uuid.UUID]int64)}
}

func (m *memRepo) ensure(userID uuid.UUID) {
	if _, ok := m.balances[userID]; !ok {
		m.balances[userID] = models.StartingGrant
		m.append(userID, models.StartingGrant, models.TxKindEarned, "starting grant")
	}
}

func (m *memRepo) append(userID uuid.UUID, amount int64, kind, description string) {
	m.txs = append(m.txs, &models.Transaction{
		ID: uuid.New(), UserID: userID, Amount: amount, Kind: kind, Description: description,
	})
}

func (m *memRepo) Debit(_ context.Context, userID uuid.UUID, amount int64, description string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(userID)
	if m.balances[userID] < amount {
		return m.balances[userID], &InsufficientFundsError{Remaining: m.balances[userID]}
	}
	m.balances[userID] -= amount
	m.append(userID, -amount, models.TxKindSpent, description)
	return m.balances[userID], nil
}

func (m *memRepo) Credit(_ context.Context, userID uuid.UUID, amount int64, kind, description string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(userID)
	m.balances[userID] += amount
	m.append(userID, amount, kind, description)
	return m.balances[userID], nil
}

func (m *memRepo) CreditTx(ctx context.Context, _ pgx.Tx, userID uuid.UUID, amount int64, kind, description string) (int64, error) {
	return m.Credit(ctx, userID, amount, kind, description)
}

func (m *memRepo) Balance(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(userID)
	return m.balances[userID], nil
}

func (m *memRepo) History(_ context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Transaction
	for i := len(m.txs) - 1; i >= 0; i-- {
		if m.txs[i].UserID == userID {
			out = append(out, m.txs[i])
		}
	}
	return out, nil
}

func (m *memRepo) Audit(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[userID]
	if !ok {
		return nil
	}
	var sum int64
	for _, t := range m.txs {
		if t.UserID == userID {
			sum += t.Amount
		}
	}
	if sum != balance {
		return fmt.Errorf("%w: balance %d, transaction sum %d", ErrInvariantViolation, balance, sum)
	}
	return nil
}

// ---

type captureEmitter struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureEmitter) Emit(_ context.Context, ev notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureEmitter) byType(t string) []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestDebitInsufficientFunds(t *testing.T) {
	user := uuid.New()
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	// Starting grant is 30; spend 25, then try 10 more.
	remaining, err := svc.Debit(ctx, user, 25, "feature: essay_outline")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if remaining != 5 {
		t.Errorf("remaining after debit: got %d, want 5", remaining)
	}

	_, err = svc.Debit(ctx, user, 10, "feature: essay_outline")
	var insufficient *InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if insufficient.Remaining != 5 {
		t.Errorf("remaining in error: got %d, want 5", insufficient.Remaining)
	}

	if err := svc.Audit(ctx, user); err != nil {
		t.Errorf("audit after refused debit: %v", err)
	}
}

// Two concurrent debits of 6 against a balance of 10: exactly one succeeds
// with remaining 4, the other is refused with remaining 4.
func TestConcurrentDebitsExactlyOneSucceeds(t *testing.T) {
	user := uuid.New()
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	// Bring the balance to exactly 10 (grant is 30).
	if _, err := svc.Debit(ctx, user, 20, "setup"); err != nil {
		t.Fatalf("setup debit: %v", err)
	}

	type result struct {
		remaining int64
		err       error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			remaining, err := svc.Debit(ctx, user, 6, "feature: flashcards")
			results <- result{remaining, err}
		}()
	}
	wg.Wait()
	close(results)

	var successes, failures int
	for res := range results {
		if res.err == nil {
			successes++
			if res.remaining != 4 {
				t.Errorf("successful debit remaining: got %d, want 4", res.remaining)
			}
		} else {
			failures++
			var insufficient *InsufficientFundsError
			if !errors.As(res.err, &insufficient) {
				t.Errorf("expected InsufficientFundsError, got %v", res.err)
			} else if insufficient.Remaining != 4 {
				t.Errorf("refused debit remaining: got %d, want 4", insufficient.Remaining)
			}
		}
	}
	if successes != 1 || failures != 1 {
		t.Errorf("got %d successes and %d failures, want exactly 1 of each", successes, failures)
	}

	balance, _ := svc.Balance(ctx, user)
	if balance != 4 {
		t.Errorf("final balance: got %d, want 4", balance)
	}
	if err := svc.Audit(ctx, user); err != nil {
		t.Errorf("audit: %v", err)
	}
}

// Under N concurrent debits of amount A against balance B, exactly
// floor(B/A) succeed.
func TestConcurrentDebitsFloorBound(t *testing.T) {
	user := uuid.New()
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	const extra = 70 // grant 30 + 70 = 100
	if _, err := svc.Credit(ctx, user, extra, models.TxKindPurchased, "test topup"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	const n = 20
	const amount = 7 // floor(100/7) = 14
	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Debit(ctx, user, amount, "load test"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 14 {
		t.Errorf("successful debits: got %d, want 14", successes)
	}
	balance, _ := svc.Balance(ctx, user)
	if balance != 100-14*amount {
		t.Errorf("final balance: got %d, want %d", balance, 100-14*amount)
	}
	if err := svc.Audit(ctx, user); err != nil {
		t.Errorf("audit: %v", err)
	}
}

func TestRefundTaggedForAudit(t *testing.T) {
	user := uuid.New()
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	if _, err := svc.Debit(ctx, user, 10, "feature: export"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if _, err := svc.Refund(ctx, user, 10, "export pipeline crashed"); err != nil {
		t.Fatalf("refund: %v", err)
	}

	history, _ := svc.History(ctx, user)
	var found bool
	for _, tx := range history {
		if tx.Kind == models.TxKindEarned && tx.Amount == 10 && tx.Description == "refund: export pipeline crashed" {
			found = true
		}
	}
	if !found {
		t.Error("refund transaction with tagged description not found in history")
	}

	balance, _ := svc.Balance(ctx, user)
	if balance != models.StartingGrant {
		t.Errorf("balance after refund: got %d, want %d", balance, models.StartingGrant)
	}
}

func TestLowBalanceEventEmitted(t *testing.T) {
	user := uuid.New()
	repo := newMemRepo()
	emitter := &captureEmitter{}
	svc := NewService(repo, nil, emitter)
	ctx := context.Background()

	// 30 -> 25: above threshold, no event.
	if _, err := svc.Debit(ctx, user, 5, "feature: quiz"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if n := len(emitter.byType(notify.EventLowBalance)); n != 0 {
		t.Errorf("low_balance events above threshold: got %d, want 0", n)
	}

	// 25 -> 5: crosses the threshold.
	if _, err := svc.Debit(ctx, user, 20, "feature: quiz"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	events := emitter.byType(notify.EventLowBalance)
	if len(events) != 1 {
		t.Fatalf("low_balance events: got %d, want 1", len(events))
	}
	if events[0].UserID != user {
		t.Error("low_balance event should target the debited user")
	}

	// 5 -> 2: already below, no re-emit.
	if _, err := svc.Debit(ctx, user, 3, "feature: quiz"); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if n := len(emitter.byType(notify.EventLowBalance)); n != 1 {
		t.Errorf("low_balance events after debit below threshold: got %d, want 1", n)
	}
}

