package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatflowers/casperflow/internal/app/service/aftercommit"
	"github.com/fatflowers/casperflow/internal/app/service/consent"
	"github.com/fatflowers/casperflow/internal/app/service/stake"
	"github.com/fatflowers/casperflow/internal/app/service/transaction"
	"github.com/fatflowers/casperflow/internal/models"
	"github.com/fatflowers/casperflow/internal/store"
	"github.com/fatflowers/casperflow/pkg/errs"
	"github.com/fatflowers/casperflow/pkg/logctx"
	"github.com/fatflowers/casperflow/pkg/tool"
	"github.com/fatflowers/casperflow/pkg/types"
)

const (
	// PayInvoiceEntryPoint is called on the billing contract when one is configured.
	PayInvoiceEntryPoint = "pay_invoice"

	// claimPrefix marks an invoice whose wallet payment is being submitted.
	claimPrefix = "submitting:"
)

// PaymentResult is the invoice after a payment attempt, plus the chain
// transaction for wallet payments.
type PaymentResult struct {
	Invoice     *models.Invoice          `json:"invoice"`
	Transaction *models.ChainTransaction `json:"transaction,omitempty"`
}

// PayInvoice settles a pending invoice with the given method. When the
// chosen consent or stake position cannot cover the total, or a chain
// transaction definitely failed, the invoice moves to failed and the
// cause is returned. A confirmation timeout leaves it pending.
func (s *Service) PayInvoice(ctx context.Context, invoiceID, caller string, method types.PaymentMethod) (*PaymentResult, error) {
	if !method.Valid() {
		return nil, errs.Invalidf("unknown payment method %q", method)
	}
	inv, err := getInvoice(ctx, s.store, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Subscriber != caller {
		return nil, errs.ErrUnauthorized
	}
	if inv.Status != types.InvoiceStatusPending {
		return nil, errs.ErrInvoiceNotPayable.Withf("invoice is %s", inv.Status)
	}
	if inv.PaymentTx != "" {
		return nil, errs.ErrPaymentInFlight
	}

	start := time.Now()
	defer s.metrics.ObserveProcess("pay_invoice", string(method), start)

	switch method {
	case types.PaymentMethodStake:
		return s.payWithStake(ctx, invoiceID, caller)
	case types.PaymentMethodConsent:
		return s.payWithConsent(ctx, invoiceID)
	default:
		return s.payWithWallet(ctx, inv)
	}
}

// declined reports whether err only says that no consent can pay.
func declined(err error) bool {
	return errors.Is(err, errs.ErrConsentNotFound) || errors.Is(err, errs.ErrInsufficientAllowance)
}

// fundsDeclined reports whether err means the chosen consent or stake
// position cannot pay, as opposed to bad input or a store failure.
func fundsDeclined(err error) bool {
	return declined(err) ||
		errors.Is(err, errs.ErrConsentRevoked) ||
		errors.Is(err, errs.ErrConsentExpired) ||
		errors.Is(err, errs.ErrInsufficientRewards) ||
		errors.Is(err, errs.ErrPositionNotFound)
}

// failDeclinedTx marks invoiceID failed for method inside tx after cause
// declined the payment.
func (s *Service) failDeclinedTx(ctx context.Context, tx store.Store, q *aftercommit.Queue, invoiceID string, method types.PaymentMethod, cause error, now time.Time) error {
	inv, err := getInvoice(ctx, tx, invoiceID)
	if err != nil {
		return err
	}
	if inv.Status != types.InvoiceStatusPending {
		return errs.ErrInvoiceNotPayable.Withf("invoice is %s", inv.Status)
	}
	inv.PaymentMethod = method
	return s.FailTx(ctx, tx, q, inv, cause.Error(), now)
}

// payWithStake pays from the caller's accrued rewards. A position that
// cannot cover the total fails the invoice.
func (s *Service) payWithStake(ctx context.Context, invoiceID, caller string) (*PaymentResult, error) {
	var (
		pay   *stake.InvoicePayment
		cause error
	)
	q := &aftercommit.Queue{}
	err := store.Retry(ctx, retryAttempts, func() error {
		q.Reset()
		pay, cause = nil, nil
		now := s.now()
		return s.store.Transaction(ctx, func(tx store.Store) error {
			inv, err := getInvoice(ctx, tx, invoiceID)
			if err != nil {
				return err
			}
			p, err := s.stakes.PayInvoiceTx(ctx, tx, caller, invoiceID, inv.TotalAmount, now)
			if err == nil {
				pay = p
				q.Add(func() { s.stakes.AfterInvoicePaid(ctx, p) })
				return nil
			}
			if !fundsDeclined(err) {
				return err
			}
			cause = err
			return s.failDeclinedTx(ctx, tx, q, invoiceID, types.PaymentMethodStake, err, now)
		})
	})
	if err != nil {
		return nil, err
	}
	q.Run()
	if cause != nil {
		return nil, cause
	}
	return &PaymentResult{Invoice: pay.Invoice}, nil
}

// chargeConsentTx pays a pending invoice from a covering consent inside tx.
func (s *Service) chargeConsentTx(ctx context.Context, tx store.Store, q *aftercommit.Queue, invoiceID string, now time.Time) (*models.Invoice, error) {
	inv, err := getInvoice(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != types.InvoiceStatusPending {
		return nil, errs.ErrInvoiceNotPayable.Withf("invoice is %s", inv.Status)
	}
	if inv.PaymentTx != "" {
		return nil, errs.ErrPaymentInFlight
	}
	c, err := consent.FindCoveringTx(ctx, tx, inv.Subscriber, inv.PlanID, inv.TotalAmount, now)
	if err != nil {
		return nil, err
	}
	consentBefore, consentAfter, err := consent.ChargeTx(ctx, tx, c.ID, inv.TotalAmount, now)
	if err != nil {
		return nil, err
	}
	before := inv.Clone()
	inv.MarkPaid(types.PaymentMethodConsent, c.ID, s.feeBps, now)
	if err := tx.Invoices().CompareAndSwap(ctx, types.InvoiceStatusPending, inv); err != nil {
		return nil, fmt.Errorf("failed to mark invoice paid: %w", err)
	}
	after := inv.Clone()
	q.Add(func() {
		s.changes.Record(ctx, models.EntityConsent, c.ID, types.ChangeReasonCharge, consentBefore, consentAfter)
		s.afterPaid(ctx, before, after)
	})
	return inv, nil
}

// payWithConsent charges a covering consent. When none can pay, the
// invoice fails.
func (s *Service) payWithConsent(ctx context.Context, invoiceID string) (*PaymentResult, error) {
	var (
		inv   *models.Invoice
		cause error
	)
	q := &aftercommit.Queue{}
	err := store.Retry(ctx, retryAttempts, func() error {
		q.Reset()
		inv, cause = nil, nil
		now := s.now()
		return s.store.Transaction(ctx, func(tx store.Store) error {
			var err error
			inv, err = s.chargeConsentTx(ctx, tx, q, invoiceID, now)
			if err == nil || !fundsDeclined(err) {
				return err
			}
			cause = err
			return s.failDeclinedTx(ctx, tx, q, invoiceID, types.PaymentMethodConsent, err, now)
		})
	})
	if err != nil {
		return nil, err
	}
	q.Run()
	if cause != nil {
		return nil, cause
	}
	return &PaymentResult{Invoice: inv}, nil
}

func (s *Service) submit(ctx context.Context, inv *models.Invoice) (*models.ChainTransaction, error) {
	if s.contractHash != "" {
		return s.txm.SubmitContractCall(ctx, &transaction.ContractCallRequest{
			From:         inv.Subscriber,
			ContractHash: s.contractHash,
			EntryPoint:   PayInvoiceEntryPoint,
			Args: map[string]any{
				"invoice_id": inv.ID,
				"merchant":   inv.Merchant,
				"amount":     inv.TotalAmount,
			},
			Amount:    inv.TotalAmount,
			InvoiceID: inv.ID,
		})
	}
	return s.txm.SubmitTransfer(ctx, &transaction.TransferRequest{
		From:      inv.Subscriber,
		To:        inv.Merchant,
		Amount:    inv.TotalAmount,
		InvoiceID: inv.ID,
	})
}

// inFlight explains why the payment reference of invoiceID could not be claimed.
func (s *Service) inFlight(ctx context.Context, invoiceID string) error {
	inv, err := getInvoice(ctx, s.store, invoiceID)
	if err != nil {
		return err
	}
	if inv.Status != types.InvoiceStatusPending {
		return errs.ErrInvoiceNotPayable.Withf("invoice is %s", inv.Status)
	}
	return errs.ErrPaymentInFlight
}

// payWithWallet claims the invoice, submits the chain payment and waits for
// it. A confirmation timeout leaves the invoice pending with the hash
// recorded so ReconcileInvoice can settle it later.
func (s *Service) payWithWallet(ctx context.Context, inv *models.Invoice) (*PaymentResult, error) {
	log := logctx.FromCtx(ctx, s.log)
	// bookkeeping must survive the caller giving up after submission
	bg := context.WithoutCancel(ctx)

	claim := claimPrefix + tool.GenerateUUIDV7()
	if err := s.store.Invoices().SwapPaymentTx(ctx, inv.ID, "", claim, s.now()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, s.inFlight(ctx, inv.ID)
		}
		return nil, fmt.Errorf("failed to claim invoice: %w", err)
	}

	chainTx, err := s.submit(ctx, inv)
	if err != nil {
		if rerr := s.store.Invoices().SwapPaymentTx(bg, inv.ID, claim, "", s.now()); rerr != nil {
			log.Errorw("failed to release invoice claim", "invoice_id", inv.ID, "err", rerr)
		}
		return nil, err
	}
	if err := s.store.Invoices().SwapPaymentTx(bg, inv.ID, claim, chainTx.Hash, s.now()); err != nil {
		return nil, fmt.Errorf("failed to record payment transaction %s: %w", chainTx.Hash, err)
	}
	log.Infow("wallet payment submitted", "invoice_id", inv.ID, "hash", chainTx.Hash, "amount", inv.TotalAmount)

	confirmed, err := s.txm.WaitForConfirmation(ctx, chainTx.Hash, 0)
	if err != nil {
		log.Warnw("wallet payment unconfirmed", "invoice_id", inv.ID, "hash", chainTx.Hash, "err", err)
		return nil, err
	}
	return s.settleWallet(bg, inv.ID, confirmed)
}

// settleWallet applies a terminal chain outcome to the invoice it pays.
func (s *Service) settleWallet(ctx context.Context, invoiceID string, chainTx *models.ChainTransaction) (*PaymentResult, error) {
	var before, after *models.Invoice
	err := store.Retry(ctx, retryAttempts, func() error {
		before, after = nil, nil
		now := s.now()
		return s.store.Transaction(ctx, func(tx store.Store) error {
			inv, err := getInvoice(ctx, tx, invoiceID)
			if err != nil {
				return err
			}
			if inv.Status != types.InvoiceStatusPending {
				after = inv
				return nil
			}
			if inv.PaymentTx != chainTx.Hash {
				return errs.ErrPaymentInFlight.Withf("invoice is bound to another payment")
			}
			before = inv.Clone()
			after = inv
			if chainTx.Status == types.TxStatusSucceeded {
				after.MarkPaid(types.PaymentMethodWallet, chainTx.Hash, s.feeBps, now)
			} else {
				after.Status = types.InvoiceStatusFailed
				after.PaymentMethod = types.PaymentMethodWallet
				after.UpdatedAt = now
			}
			return tx.Invoices().CompareAndSwap(ctx, types.InvoiceStatusPending, after)
		})
	})
	if err != nil {
		return nil, err
	}
	res := &PaymentResult{Invoice: after, Transaction: chainTx}
	if before == nil {
		// settled by someone else
		return res, nil
	}
	if after.Status == types.InvoiceStatusPaid {
		s.afterPaid(ctx, before, after)
		return res, nil
	}
	s.afterFailed(ctx, before, after, chainTx.ErrorMessage)
	return nil, errs.ErrChainFailure.Withf("payment transaction %s failed: %s", chainTx.Hash, chainTx.ErrorMessage)
}

// ReconcileInvoice re-queries the chain payment of a pending invoice and
// settles it when the outcome is known. It never resubmits.
func (s *Service) ReconcileInvoice(ctx context.Context, invoiceID, caller string) (*PaymentResult, error) {
	inv, err := getInvoice(ctx, s.store, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Subscriber != caller && inv.Merchant != caller {
		return nil, errs.ErrUnauthorized
	}
	return s.reconcile(ctx, inv)
}

// ReconcileTransaction settles the invoice paid by the chain transaction
// hash, typically after a node notification. The outcome is always read
// back from the node. Transactions of already settled invoices, or ones
// the invoice no longer points at, are reported without changes.
func (s *Service) ReconcileTransaction(ctx context.Context, hash string) (*PaymentResult, error) {
	chainTx, err := s.txm.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if chainTx.InvoiceID == nil {
		return &PaymentResult{Transaction: chainTx}, nil
	}
	inv, err := getInvoice(ctx, s.store, *chainTx.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.PaymentTx != hash {
		return &PaymentResult{Invoice: inv, Transaction: chainTx}, nil
	}
	return s.reconcile(ctx, inv)
}

func (s *Service) reconcile(ctx context.Context, inv *models.Invoice) (*PaymentResult, error) {
	if inv.Status != types.InvoiceStatusPending {
		return &PaymentResult{Invoice: inv}, nil
	}
	switch {
	case inv.PaymentTx == "":
		return nil, errs.ErrInvoiceNotPayable.Withf("invoice has no chain payment to reconcile")
	case strings.HasPrefix(inv.PaymentTx, claimPrefix):
		return s.releaseStaleClaim(ctx, inv)
	}

	chainTx, err := s.txm.Refresh(ctx, inv.PaymentTx)
	if err != nil {
		return nil, err
	}
	if chainTx.Status == types.TxStatusPending {
		return &PaymentResult{Invoice: inv, Transaction: chainTx}, nil
	}
	return s.settleWallet(ctx, inv.ID, chainTx)
}

// releaseStaleClaim frees an invoice whose submission never recorded a hash
// within the confirmation ceiling, so it can be paid again.
func (s *Service) releaseStaleClaim(ctx context.Context, inv *models.Invoice) (*PaymentResult, error) {
	if s.now().Sub(inv.UpdatedAt) < s.confirmTimeout {
		return nil, errs.ErrPaymentInFlight
	}
	if err := s.store.Invoices().SwapPaymentTx(ctx, inv.ID, inv.PaymentTx, "", s.now()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, s.inFlight(ctx, inv.ID)
		}
		return nil, fmt.Errorf("failed to release invoice claim: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Warnw("released stale payment claim", "invoice_id", inv.ID, "claim", inv.PaymentTx)
	out, err := getInvoice(ctx, s.store, inv.ID)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Invoice: out}, nil
}

// AutoSettleTx pays a pending invoice from a covering consent or, failing
// that, from auto-pay staking rewards, inside tx. It reports false when
// neither can pay.
func (s *Service) AutoSettleTx(ctx context.Context, tx store.Store, q *aftercommit.Queue, inv *models.Invoice, now time.Time) (bool, error) {
	if inv.Status != types.InvoiceStatusPending || inv.PaymentTx != "" {
		return inv.Status == types.InvoiceStatusPaid, nil
	}
	_, err := s.chargeConsentTx(ctx, tx, q, inv.ID, now)
	if err == nil {
		return true, nil
	}
	if !declined(err) {
		return false, err
	}
	pos, err := s.stakes.FindPosition(ctx, tx, inv.Subscriber)
	if err != nil {
		return false, err
	}
	if !s.stakes.CoversRenewal(pos, inv.PlanID, inv.TotalAmount, now) {
		return false, nil
	}
	pay, err := s.stakes.PayInvoiceTx(ctx, tx, inv.Subscriber, inv.ID, inv.TotalAmount, now)
	if err != nil {
		return false, err
	}
	q.Add(func() { s.stakes.AfterInvoicePaid(ctx, pay) })
	return true, nil
}

// CanAutoPayTx reports whether a consent or auto-pay stake position of
// subscriber could cover amount for planID at now.
func (s *Service) CanAutoPayTx(ctx context.Context, tx store.Store, subscriber, planID string, amount int64, now time.Time) (bool, error) {
	if amount <= 0 {
		return true, nil
	}
	_, err := consent.FindCoveringTx(ctx, tx, subscriber, planID, amount, now)
	if err == nil {
		return true, nil
	}
	if !declined(err) {
		return false, err
	}
	pos, err := s.stakes.FindPosition(ctx, tx, subscriber)
	if err != nil {
		return false, err
	}
	return s.stakes.CoversRenewal(pos, planID, amount, now), nil
}
