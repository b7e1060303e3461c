package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/sethvargo/go-retry"

	"github.com/padhaihub/backend/internal/models"
	"github.com/padhaihub/backend/internal/payments"
)

// ReconcilePaymentArgs is the river job scheduled at payment creation. It is
// the automated poll trigger: if the gateway callback never arrives, this job
// queries the gateway and funnels the outcome through the same settle path.
type ReconcilePaymentArgs struct {
	PaymentID uuid.UUID `json:"payment_id"`
}

func (ReconcilePaymentArgs) Kind() string { return "payment_reconcile" }

// PaymentService is the contract the worker needs from the reconciler.
type PaymentService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	Settle(ctx context.Context, paymentID uuid.UUID, gatewayStatus, externalTxID string) error
}

type Worker struct {
	river.WorkerDefaults[ReconcilePaymentArgs]
	payments PaymentService
	gateway  payments.Gateway
	log      *slog.Logger
}

func NewWorker(svc PaymentService, gateway payments.Gateway, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{payments: svc, gateway: gateway, log: log}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[ReconcilePaymentArgs]) error {
	paymentID := job.Args.PaymentID

	p, err := w.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			w.log.Warn("reconcile: payment vanished", "payment_id", paymentID)
			return nil
		}
		return err
	}
	if p.Terminal() {
		return nil
	}

	res, err := w.queryWithBackoff(ctx, paymentID)
	if err != nil {
		// Row stays pending; river retries the job, and the other triggers
		// remain free to settle it first.
		return fmt.Errorf("reconcile payment %s: %w", paymentID, err)
	}
	if res.PaymentStatus == payments.GatewayStatusPending {
		return fmt.Errorf("payment %s still pending at gateway", paymentID)
	}

	if err := w.payments.Settle(ctx, paymentID, res.PaymentStatus, res.TransactionID); err != nil {
		return err
	}
	w.log.Info("reconcile settled payment", "payment_id", paymentID, "gateway_status", res.PaymentStatus)
	return nil
}

// queryWithBackoff retries transient gateway failures with fibonacci backoff
// under a hard deadline. Non-transient errors abort immediately.
func (w *Worker) queryWithBackoff(ctx context.Context, paymentID uuid.UUID) (*payments.StatusResult, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var res *payments.StatusResult
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(time.Second))
	err := retry.Do(queryCtx, backoff, func(ctx context.Context) error {
		var qerr error
		res, qerr = w.gateway.QueryStatus(ctx, paymentID.String())
		if errors.Is(qerr, payments.ErrGatewayUnavailable) {
			return retry.RetryableError(qerr)
		}
		return qerr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
