package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexnikon/wgbot/internal/database/models"
	"github.com/alexnikon/wgbot/internal/database/repositories"
)

// PriceResolver returns the effective price for an owner, with any per-owner
// promo adjustment already applied.
type PriceResolver interface {
	ResolvePrice(ownerID int64, tariff Tariff, currency Currency) int64
}

const maxPeerNameProbes = 20

// Outcome reports what a confirmed payment did to the subscription.
type Outcome int

const (
	OutcomeNone Outcome = iota
	// OutcomeCreated - a peer was provisioned for the first time.
	OutcomeCreated
	// OutcomeRenewed - an existing subscription was extended or revived.
	OutcomeRenewed
)

// Reconciler owns payment confirmation: the ledger write that makes a payment
// ref unique, amount validation against the adjusted price, and the hand-off
// to the lifecycle manager. Settling money and applying it are separate
// phases; a payment that settled but could not be applied is retried by the
// sweep, never refunded.
type Reconciler struct {
	subs     *repositories.SubscriptionRepository
	payments *repositories.PaymentRepository
	prices   PriceResolver
	life     *Lifecycle
	log      *slog.Logger
	now      func() time.Time
}

func NewReconciler(subs *repositories.SubscriptionRepository, payments *repositories.PaymentRepository, prices PriceResolver, life *Lifecycle, log *slog.Logger) *Reconciler {
	return &Reconciler{subs: subs, payments: payments, prices: prices, life: life, now: time.Now, log: log}
}

// RecordIntent reserves a peer name for a new purchase before the invoice
// goes out. Repeated taps on the same tariff reuse the existing pending row.
func (r *Reconciler) RecordIntent(ctx context.Context, ownerID int64, username, tariffKey, method string) (string, error) {
	tariff, ok := TariffByKey(tariffKey)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTariff, tariffKey)
	}

	existing, err := r.subs.FindPendingByOwnerTariff(ctx, ownerID, tariff.Key)
	if err == nil {
		return existing.PeerName, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return "", err
	}

	peerName, err := r.freePeerName(ctx, ownerID, username)
	if err != nil {
		return "", err
	}

	sub := &models.Subscription{
		PeerName: peerName,
		OwnerID:  ownerID,
		Tariff:   tariff.Key,
		Status:   models.StatusPendingPayment,

		PaymentMethod: method,
	}
	if err := r.subs.Create(ctx, sub); err != nil {
		return "", err
	}
	r.log.Info("purchase intent recorded", "owner", ownerID, "peer", peerName, "tariff", tariff.Key)
	return peerName, nil
}

// freePeerName derives the first unused name for the owner: the bare
// username_id form, then numbered variants.
func (r *Reconciler) freePeerName(ctx context.Context, ownerID int64, username string) (string, error) {
	base := fmt.Sprintf("user_%d", ownerID)
	if username != "" {
		base = fmt.Sprintf("%s_%d", username, ownerID)
	}
	for i := 1; i <= maxPeerNameProbes; i++ {
		name := base
		if i > 1 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		_, err := r.subs.GetByPeerName(ctx, name)
		if errors.Is(err, repositories.ErrNotFound) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free peer name for owner %d", ownerID)
}

// Confirm applies a settled payment exactly once. A ref seen before and fully
// applied returns ErrDuplicatePayment; a ref that settled but never finished
// applying resumes where it stopped. Underpayment against the owner's
// adjusted price is rejected before any money is recorded.
func (r *Reconciler) Confirm(ctx context.Context, ev PaymentEvent) (Outcome, error) {
	sub, err := r.subs.GetByPeerName(ctx, ev.PeerName())
	if err != nil {
		return OutcomeNone, mapNotFound(err)
	}
	if sub.OwnerID != ev.PayerID() {
		return OutcomeNone, fmt.Errorf("%w: payer %d is not the owner of %s", ErrUnknownSubscription, ev.PayerID(), ev.PeerName())
	}

	tariff, ok := TariffByKey(sub.Tariff)
	if !ok {
		return OutcomeNone, fmt.Errorf("%w: %s", ErrUnknownTariff, sub.Tariff)
	}
	due := r.prices.ResolvePrice(sub.OwnerID, tariff, ev.Currency())
	if ev.Amount() < due {
		return OutcomeNone, fmt.Errorf("%w: got %d, need %d %s", ErrAmountMismatch, ev.Amount(), due, ev.Currency())
	}

	// The ledger insert is the idempotency gate: the ref is the primary key.
	priorExpiry := sub.ExpiresAt
	err = r.payments.Insert(ctx, &models.Payment{
		PaymentRef:  ev.Ref(),
		OwnerID:     ev.PayerID(),
		PeerName:    ev.PeerName(),
		Amount:      ev.Amount(),
		Currency:    string(ev.Currency()),
		Method:      ev.Method(),
		Status:      models.PaymentSettled,
		PriorExpiry: priorExpiry,
	})
	if errors.Is(err, repositories.ErrDuplicate) {
		prev, gerr := r.payments.GetByRef(ctx, ev.Ref())
		if gerr != nil {
			return OutcomeNone, gerr
		}
		if prev.Status == models.PaymentApplied {
			return OutcomeNone, ErrDuplicatePayment
		}
		// Settled but not applied: a crashed or failed first attempt. The
		// original entry's prior expiry is authoritative, the row may have
		// moved since.
		priorExpiry = prev.PriorExpiry
		r.log.Warn("resuming settled payment", "ref", ev.Ref(), "peer", ev.PeerName())
	} else if err != nil {
		return OutcomeNone, err
	}

	if _, err := r.subs.StampPayment(ctx, ev.PeerName(), ev.Ref(), ev.Method(), ev.Amount()); err != nil {
		return OutcomeNone, err
	}
	return r.apply(ctx, ev.Ref(), ev.PeerName(), priorExpiry)
}

// apply drives the provisioning phase for a settled payment and closes the
// ledger entry on success. priorExpiry is the expiry recorded when the
// payment settled: a row already past it means the renewal committed on an
// earlier attempt and only the ledger close is outstanding.
func (r *Reconciler) apply(ctx context.Context, paymentRef, peerName string, priorExpiry time.Time) (Outcome, error) {
	var err error
	outcome := OutcomeNone
	for attempt := 0; attempt < 2; attempt++ {
		var sub *models.Subscription
		sub, err = r.subs.GetByPeerName(ctx, peerName)
		if err != nil {
			return OutcomeNone, mapNotFound(err)
		}

		switch sub.Status {
		case models.StatusPendingPayment:
			outcome = OutcomeCreated
			err = r.life.Create(ctx, peerName)
		case models.StatusActive, models.StatusGrace, models.StatusExpired, models.StatusRevoked:
			outcome = OutcomeRenewed
			if priorExpiry.IsZero() || sub.ExpiresAt.After(priorExpiry) {
				// The transition this payment bought already committed (a zero
				// prior means the row left pending through our own Create);
				// only the ledger close is outstanding.
				err = nil
				if priorExpiry.IsZero() {
					outcome = OutcomeCreated
				}
			} else {
				err = r.life.Renew(ctx, peerName)
			}
		default:
			err = fmt.Errorf("%w: apply on %s row", ErrConflict, sub.Status)
		}
		if !errors.Is(err, ErrConflict) {
			break
		}
		// A concurrent transition changed the row; one re-read and retry.
	}
	if err != nil {
		r.log.Error("settled payment not applied yet", "ref", paymentRef, "peer", peerName, "error", err)
		return OutcomeNone, err
	}

	if _, err := r.payments.SetStatus(ctx, paymentRef, models.PaymentSettled, models.PaymentApplied); err != nil {
		return outcome, err
	}
	if err := r.subs.ResetProvisionRetries(ctx, peerName); err != nil {
		return outcome, err
	}
	r.log.Info("payment applied", "ref", paymentRef, "peer", peerName)
	return outcome, nil
}

// Resume re-drives a settled payment found by the sweep. Bounded by the
// row's retry counter; past the cap the payment stays settled and is only
// logged for the operator.
func (r *Reconciler) Resume(ctx context.Context, p *models.Payment, maxRetries int) error {
	sub, err := r.subs.GetByPeerName(ctx, p.PeerName)
	if err != nil {
		return mapNotFound(err)
	}
	if sub.ProvisionRetries >= maxRetries {
		r.log.Error("settled payment exceeded retry budget, operator attention needed",
			"ref", p.PaymentRef, "peer", p.PeerName, "retries", sub.ProvisionRetries)
		return nil
	}
	if err := r.subs.IncrementProvisionRetries(ctx, p.PeerName); err != nil {
		return err
	}
	_, err = r.apply(ctx, p.PaymentRef, p.PeerName, p.PriorExpiry)
	return err
}
