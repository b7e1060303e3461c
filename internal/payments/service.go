package payments

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/padhaihub/backend/internal/models"
	"github.com/padhaihub/backend/internal/notify"
)

var (
	// ErrUnauthorizedCallback is returned before any state is touched when
	// the gateway callback's shared key does not match.
	ErrUnauthorizedCallback = errors.New("unauthorized gateway callback")

	// ErrNotPaymentOwner guards the manual verification trigger: a caller may
	// only verify payments that belong to them.
	ErrNotPaymentOwner = errors.New("payment does not belong to requester")
)

// Repo is the payment state machine storage.
type Repo interface {
	Create(ctx context.Context, tx pgx.Tx, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error)
	TryComplete(ctx context.Context, tx pgx.Tx, id uuid.UUID, externalTxID string) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Ledger is the subset of the ledger service settlement needs.
type Ledger interface {
	CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, kind, description string) (int64, error)
	FlushBalance(ctx context.Context, userID uuid.UUID)
}

// EnqueueReconcileFunc schedules a background reconcile of the payment within
// the given transaction. Provided by main as a closure over river.Client.InsertTx.
type EnqueueReconcileFunc func(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) error

// CallbackPayload is the inbound gateway callback body.
type CallbackPayload struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"external_transaction_id"`
	Status        string `json:"status"`
}

// Service is the settlement reconciler. Three independent triggers (gateway
// callback, client poll, manual verification) plus the background worker all
// converge on the same Settle contract, so redundant delivery is harmless.
type Service interface {
	Initiate(ctx context.Context, userID uuid.UUID, amount, credits int64, method string, metadata json.RawMessage) (*models.Payment, error)
	HandleCallback(ctx context.Context, payload CallbackPayload, providedKey string) error
	Poll(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	VerifyManual(ctx context.Context, paymentID, requesterID uuid.UUID) (*models.Payment, error)
	AdminMarkPaid(ctx context.Context, paymentID uuid.UUID, reference string) (*models.Payment, error)
	Settle(ctx context.Context, paymentID uuid.UUID, gatewayStatus, externalTxID string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error)
}

type service struct {
	db               TxBeginner
	repo             Repo
	gateway          Gateway
	ledger           Ledger
	emitter          notify.Emitter
	enqueueReconcile EnqueueReconcileFunc
	callbackKey      []byte
	log              *slog.Logger
}

func NewService(db TxBeginner, repo Repo, gateway Gateway, ledger Ledger, emitter notify.Emitter, enqueue EnqueueReconcileFunc, callbackKey string, log *slog.Logger) Service {
	if emitter == nil {
		emitter = notify.NopEmitter{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &service{
		db:               db,
		repo:             repo,
		gateway:          gateway,
		ledger:           ledger,
		emitter:          emitter,
		enqueueReconcile: enqueue,
		callbackKey:      []byte(callbackKey),
		log:              log,
	}
}

var _ Service = (*service)(nil)

// Initiate creates the pending payment row and enqueues its background
// reconcile in one transaction, then asks the gateway to start the payment.
// Row and safety net commit together: no pending payment can exist without a
// scheduled reconcile. A gateway error leaves the row pending for later
// triggers.
func (s *service) Initiate(ctx context.Context, userID uuid.UUID, amount, credits int64, method string, metadata json.RawMessage) (*models.Payment, error) {
	p := &models.Payment{
		ID:               uuid.New(),
		UserID:           &userID,
		Amount:           amount,
		CreditsPurchased: credits,
		PaymentMethod:    method,
		Status:           models.PaymentStatusPending,
		Metadata:         metadata,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.repo.Create(ctx, tx, p); err != nil {
		return nil, err
	}
	if s.enqueueReconcile != nil {
		if err := s.enqueueReconcile(ctx, tx, p.ID); err != nil {
			return nil, fmt.Errorf("enqueue payment reconcile: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	res, err := s.gateway.Initiate(ctx, p.ID.String(), userID.String(), amount)
	if err != nil {
		return p, err
	}
	if res.TransactionID != "" {
		s.log.Info("gateway assigned transaction id", "payment_id", p.ID, "transaction_id", res.TransactionID)
	}
	return p, nil
}

// HandleCallback is the gateway-callback trigger. The shared key is checked
// in constant time before anything else; an invalid key mutates nothing.
func (s *service) HandleCallback(ctx context.Context, payload CallbackPayload, providedKey string) error {
	if subtle.ConstantTimeCompare([]byte(providedKey), s.callbackKey) != 1 {
		return ErrUnauthorizedCallback
	}
	paymentID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return fmt.Errorf("invalid order_id in callback: %w", err)
	}
	return s.Settle(ctx, paymentID, payload.Status, payload.TransactionID)
}

// Poll is the client-initiated trigger: query the gateway directly, then
// funnel the result through the same settle path.
func (s *service) Poll(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	p, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Terminal() {
		return p, nil
	}
	res, err := s.gateway.QueryStatus(ctx, paymentID.String())
	if err != nil {
		return p, err
	}
	if err := s.Settle(ctx, paymentID, res.PaymentStatus, res.TransactionID); err != nil {
		return p, err
	}
	return s.repo.GetByID(ctx, paymentID)
}

// VerifyManual is the operator/user-triggered trigger, used because gateway
// delivery is not guaranteed. The caller-asserted "I paid" is only trusted
// after the ownership check, and even then the gateway is consulted.
func (s *service) VerifyManual(ctx context.Context, paymentID, requesterID uuid.UUID) (*models.Payment, error) {
	p, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID == nil || *p.UserID != requesterID {
		return nil, ErrNotPaymentOwner
	}
	if p.Terminal() {
		return p, nil
	}
	res, err := s.gateway.QueryStatus(ctx, paymentID.String())
	if err != nil {
		return p, err
	}
	if err := s.Settle(ctx, paymentID, res.PaymentStatus, res.TransactionID); err != nil {
		return p, err
	}
	return s.repo.GetByID(ctx, paymentID)
}

// AdminMarkPaid is the administrative override. It still routes through the
// same conditional completion, never a direct balance mutation.
func (s *service) AdminMarkPaid(ctx context.Context, paymentID uuid.UUID, reference string) (*models.Payment, error) {
	if err := s.Settle(ctx, paymentID, GatewayStatusCompleted, "manual:"+reference); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, paymentID)
}

// Settle maps a gateway-reported status onto the payment state machine.
// "pending" leaves the row untouched; completed/failed funnel into the
// one-time conditional transitions.
func (s *service) Settle(ctx context.Context, paymentID uuid.UUID, gatewayStatus, externalTxID string) error {
	p, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	switch gatewayStatus {
	case GatewayStatusCompleted:
		return s.settleCompleted(ctx, p, externalTxID)
	case GatewayStatusFailed, GatewayStatusCancelled:
		return s.settleFailed(ctx, p)
	case GatewayStatusPending:
		return nil
	default:
		return fmt.Errorf("unknown gateway status %q for payment %s", gatewayStatus, paymentID)
	}
}

// settleCompleted performs the conditional pending -> completed transition
// and, only if this call won it, credits the purchase in the same database
// transaction. Losing callers observe a successful no-op.
func (s *service) settleCompleted(ctx context.Context, p *models.Payment, externalTxID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	first, err := s.repo.TryComplete(ctx, tx, p.ID, externalTxID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}
	if p.UserID != nil {
		_, err = s.ledger.CreditTx(ctx, tx, *p.UserID, p.CreditsPurchased, models.TxKindPurchased,
			fmt.Sprintf("credit purchase %s", p.ID))
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if p.UserID != nil {
		s.ledger.FlushBalance(ctx, *p.UserID)
		s.emitter.Emit(ctx, notify.Event{
			UserID:   *p.UserID,
			Type:     notify.EventPaymentCompleted,
			Title:    "Payment completed",
			Message:  fmt.Sprintf("%d credits have been added to your account.", p.CreditsPurchased),
			Priority: notify.PriorityHigh,
			Metadata: map[string]string{"payment_id": p.ID.String()},
		})
	}
	s.log.Info("payment settled", "payment_id", p.ID, "credits", p.CreditsPurchased)
	return nil
}

func (s *service) settleFailed(ctx context.Context, p *models.Payment) error {
	first, err := s.repo.MarkFailed(ctx, p.ID)
	if err != nil {
		return err
	}
	if first && p.UserID != nil {
		s.emitter.Emit(ctx, notify.Event{
			UserID:   *p.UserID,
			Type:     notify.EventPaymentFailed,
			Title:    "Payment failed",
			Message:  "Your payment did not go through. No credits were charged.",
			Priority: notify.PriorityHigh,
			Metadata: map[string]string{"payment_id": p.ID.String()},
		})
	}
	return nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Payment, error) {
	return s.repo.ListByUser(ctx, userID)
}
