package submissions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/padhaihub/backend/internal/models"
)

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// ---------------------------------------------------------------------------
// In-memory Repo. The conditional transitions and the achievement grant keep
// the same "did THIS call win" semantics as the SQL, under one mutex.
// ---------------------------------------------------------------------------

type memSubRepo struct {
	mu           sync.Mutex
	submissions  map[uuid.UUID]*models.Submission
	groups       map[uuid.UUID][]uuid.UUID // verified members only
	achievements map[string]bool           // userID|code
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{
		submissions:  make(map[uuid.UUID]*models.Submission),
		groups:       make(map[uuid.UUID][]uuid.UUID),
		achievements: make(map[string]bool),
	}
}

func (m *memSubRepo) Create(_ context.Context, s *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.submissions[s.ID] = &cp
	return nil
}

func (m *memSubRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	cp := *s
	return &cp, nil
}

func reviewable(status string) bool {
	return status == models.SubmissionStatusPending || status == models.SubmissionStatusUnderReview
}

func (m *memSubRepo) TryApprove(_ context.Context, _ pgx.Tx, id uuid.UUID, qualityScore int, credits int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok || !reviewable(s.Status) {
		return false, nil
	}
	s.Status = models.SubmissionStatusApproved
	s.QualityScore = qualityScore
	s.CreditsAwarded = credits
	return true, nil
}

func (m *memSubRepo) TryTransition(_ context.Context, id uuid.UUID, toStatus string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok || !reviewable(s.Status) {
		return false, nil
	}
	s.Status = toStatus
	return true, nil
}

func (m *memSubRepo) VerifiedGroupMembers(_ context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.groups[groupID]...), nil
}

func (m *memSubRepo) CountApprovedByUser(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, s := range m.submissions {
		if s.UserID == userID && s.Status == models.SubmissionStatusApproved {
			n++
		}
	}
	return n, nil
}

func (m *memSubRepo) GrantAchievement(_ context.Context, _ pgx.Tx, userID uuid.UUID, code string, _ int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID.String() + "|" + code
	if m.achievements[key] {
		return false, nil
	}
	m.achievements[key] = true
	return true, nil
}

// --- mock ledger recording credits per user ---

type recordingLedger struct {
	mu      sync.Mutex
	credits map[uuid.UUID][]int64
}

func newRecordingLedger() *recordingLedger {
	return &recordingLedger{credits: make(map[uuid.UUID][]int64)}
}

func (l *recordingLedger) CreditTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount int64, _, _ string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credits[userID] = append(l.credits[userID], amount)
	return amount, nil
}

func (l *recordingLedger) FlushBalance(context.Context, uuid.UUID) {}

func (l *recordingLedger) total(userID uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, a := range l.credits[userID] {
		sum += a
	}
	return sum
}

func (l *recordingLedger) amounts(userID uuid.UUID) []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int64(nil), l.credits[userID]...)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// A group submission worth 100 with three other verified members: the
// submitter keeps the full 100, each other member gets floor(100/4) = 25.
func TestApproveGroupSubmissionSplit(t *testing.T) {
	repo := newMemSubRepo()
	led := newRecordingLedger()
	svc := NewService(mockPool{}, repo, led, nil, nil)
	ctx := context.Background()

	submitter := uuid.New()
	groupID := uuid.New()
	others := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	repo.groups[groupID] = append([]uuid.UUID{submitter}, others...)

	sub, err := svc.Create(ctx, submitter, &groupID, models.SubmissionTypeNotes, 0, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// quality 5, no word bonus -> 100 credits
	approved, err := svc.Approve(ctx, sub.ID, 5)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != models.SubmissionStatusApproved {
		t.Errorf("status: got %s, want approved", approved.Status)
	}
	if approved.CreditsAwarded != 100 {
		t.Errorf("credits_awarded: got %d, want 100", approved.CreditsAwarded)
	}

	// Submitter: 100 award + 10 first-approval bonus.
	if got := led.amounts(submitter); len(got) != 2 || got[0] != 100 || got[1] != bonusFirstApproval {
		t.Errorf("submitter credits: got %v, want [100 %d]", got, bonusFirstApproval)
	}
	for i, member := range others {
		if got := led.total(member); got != 25 {
			t.Errorf("member %d share: got %d, want 25", i, got)
		}
	}
}

func TestReApproveAwardsNothing(t *testing.T) {
	repo := newMemSubRepo()
	led := newRecordingLedger()
	svc := NewService(mockPool{}, repo, led, nil, nil)
	ctx := context.Background()

	submitter := uuid.New()
	sub, err := svc.Create(ctx, submitter, nil, models.SubmissionTypeNotes, 0, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Approve(ctx, sub.ID, 5); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	firstTotal := led.total(submitter)

	if _, err := svc.Approve(ctx, sub.ID, 3); !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("second approve: expected ErrAlreadyReviewed, got %v", err)
	}
	if got := led.total(submitter); got != firstTotal {
		t.Errorf("credits after re-approve: got %d, want %d", got, firstTotal)
	}

	final, _ := repo.GetByID(ctx, sub.ID)
	if final.QualityScore != 5 {
		t.Error("losing approval must not overwrite the quality score")
	}
}

func TestConcurrentApprovalsExactlyOneWins(t *testing.T) {
	repo := newMemSubRepo()
	led := newRecordingLedger()
	svc := NewService(mockPool{}, repo, led, nil, nil)
	ctx := context.Background()

	submitter := uuid.New()
	sub, err := svc.Create(ctx, submitter, nil, models.SubmissionTypeNotes, 0, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 5
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Approve(ctx, sub.ID, 5)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, losses int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyReviewed):
			losses++
		default:
			t.Errorf("unexpected approve error: %v", err)
		}
	}
	if wins != 1 || losses != n-1 {
		t.Errorf("got %d wins and %d losses, want 1 and %d", wins, losses, n-1)
	}
	// Exactly one award plus one first-approval bonus.
	if got := led.total(submitter); got != 100+bonusFirstApproval {
		t.Errorf("submitter credits: got %d, want %d", got, 100+bonusFirstApproval)
	}
}

func TestRejectedSubmissionCannotBeApproved(t *testing.T) {
	repo := newMemSubRepo()
	led := newRecordingLedger()
	svc := NewService(mockPool{}, repo, led, nil, nil)
	ctx := context.Background()

	submitter := uuid.New()
	sub, err := svc.Create(ctx, submitter, nil, models.SubmissionTypeNotes, 0, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Reject(ctx, sub.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := svc.Reject(ctx, sub.ID); !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("double reject: expected ErrAlreadyReviewed, got %v", err)
	}
	if _, err := svc.Approve(ctx, sub.ID, 5); !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("approve after reject: expected ErrAlreadyReviewed, got %v", err)
	}
	if got := led.total(submitter); got != 0 {
		t.Errorf("credits after rejected submission: got %d, want 0", got)
	}
}

// CheckAchievements may be re-invoked at any time; each bonus lands once.
func TestAchievementRecheckGrantsOnce(t *testing.T) {
	repo := newMemSubRepo()
	led := newRecordingLedger()
	svc := NewService(mockPool{}, repo, led, nil, nil)
	ctx := context.Background()

	submitter := uuid.New()
	sub, err := svc.Create(ctx, submitter, nil, models.SubmissionTypeNotes, 0, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Approve(ctx, sub.ID, 5); err != nil {
		t.Fatalf("approve: %v", err)
	}
	afterApprove := led.total(submitter)

	for i := 0; i < 3; i++ {
		if err := svc.CheckAchievements(ctx, submitter, true); err != nil {
			t.Fatalf("recheck %d: %v", i, err)
		}
	}
	if got := led.total(submitter); got != afterApprove {
		t.Errorf("credits after rechecks: got %d, want %d", got, afterApprove)
	}
}

func TestFiveApprovalsBonus(t *testing.T) {
	repo := newMemSubRepo()
	led := newRecordingLedger()
	svc := NewService(mockPool{}, repo, led, nil, nil)
	ctx := context.Background()

	submitter := uuid.New()
	for i := 0; i < 5; i++ {
		sub, err := svc.Create(ctx, submitter, nil, models.SubmissionTypeNotes, 0, false)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if _, err := svc.Approve(ctx, sub.ID, 1); err != nil {
			t.Fatalf("approve %d: %v", i, err)
		}
	}

	// 5 awards of 20 each, plus the two one-time bonuses.
	want := 5*20 + bonusFirstApproval + bonusFiveApprovals
	if got := led.total(submitter); got != want {
		t.Errorf("credits after five approvals: got %d, want %d", got, want)
	}
}
