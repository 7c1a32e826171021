package subscription

import (
	"context"
	"log/slog"
	"time"

	"github.com/alexnikon/wgbot/internal/database/models"
	"github.com/alexnikon/wgbot/internal/database/repositories"
)

// Notification kinds delivered to owners by the sweep and the payment
// handlers.
const (
	NotifyPreExpiry       = "pre_expiry"
	NotifyPostExpiry      = "post_expiry"
	NotifyPaymentApplied  = "payment_applied"
	NotifyPaymentCanceled = "payment_canceled"
	NotifyRefund          = "refund"
)

// Notifier delivers a lifecycle notification to an owner. Delivery failures
// are the notifier's problem; the sweep never blocks a state transition on
// one.
type Notifier interface {
	Notify(ctx context.Context, ownerID int64, kind, peerName string) error
}

const maxProvisionRetries = 5

// Sweeper is the periodic pass that keeps rows, remote state and owners in
// agreement: grace warnings, expiry teardown, abandoned intent cleanup,
// missing expiry jobs and stuck settled payments.
type Sweeper struct {
	subs       *repositories.SubscriptionRepository
	payments   *repositories.PaymentRepository
	life       *Lifecycle
	rec        *Reconciler
	notify     Notifier
	log        *slog.Logger
	interval   time.Duration
	window     time.Duration
	pendingTTL time.Duration
}

func NewSweeper(subs *repositories.SubscriptionRepository, payments *repositories.PaymentRepository, life *Lifecycle, rec *Reconciler, notify Notifier, log *slog.Logger, interval, window, pendingTTL time.Duration) *Sweeper {
	return &Sweeper{
		subs:       subs,
		payments:   payments,
		life:       life,
		rec:        rec,
		notify:     notify,
		log:        log,
		interval:   interval,
		window:     window,
		pendingTTL: pendingTTL,
	}
}

// Run sweeps once immediately, then on every tick until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	s.Sweep(ctx, time.Now())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(ctx, now)
		}
	}
}

// Sweep runs all passes against a single observed now. Each pass is
// independent; a failure in one row never stops the rest.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) {
	s.warnExpiring(ctx, now)
	s.retireExpired(ctx, now)
	s.dropStalePending(ctx, now)
	s.installMissingJobs(ctx)
	s.resumeSettled(ctx, now)
}

// warnExpiring moves rows inside the pre-expiry window to grace and warns the
// owner once. The conditional update claims the notification, so a second
// sweep racing this one sends nothing.
func (s *Sweeper) warnExpiring(ctx context.Context, now time.Time) {
	subs, err := s.subs.FindExpiring(ctx, now, s.window)
	if err != nil {
		s.log.Error("expiring scan failed", "error", err)
		return
	}
	for i := range subs {
		sub := &subs[i]
		applied, err := s.subs.MarkGrace(ctx, sub.PeerName, sub.ExpiresAt)
		if err != nil {
			s.log.Error("grace transition failed", "peer", sub.PeerName, "error", err)
			continue
		}
		if !applied {
			continue
		}
		if err := s.notify.Notify(ctx, sub.OwnerID, NotifyPreExpiry, sub.PeerName); err != nil {
			s.log.Warn("pre-expiry notification failed", "peer", sub.PeerName, "error", err)
		}
	}
}

// retireExpired tears down rows past their deadline: expired locally first,
// then the remote revoke, then the one post-expiry notice. A failed revoke
// leaves the row expired and the next sweep retries it.
func (s *Sweeper) retireExpired(ctx context.Context, now time.Time) {
	subs, err := s.subs.FindExpired(ctx, now)
	if err != nil {
		s.log.Error("expired scan failed", "error", err)
		return
	}
	for i := range subs {
		sub := &subs[i]
		if sub.Status != models.StatusExpired {
			applied, err := s.subs.MarkExpired(ctx, sub.PeerName, sub.ExpiresAt)
			if err != nil {
				s.log.Error("expire transition failed", "peer", sub.PeerName, "error", err)
				continue
			}
			if !applied {
				// A renewal moved the deadline under us; the row survives.
				continue
			}
		}
		if err := s.life.Revoke(ctx, sub.PeerName); err != nil {
			s.log.Error("revoke failed, will retry", "peer", sub.PeerName, "error", err)
			continue
		}
		applied, err := s.subs.MarkPostExpiryNotified(ctx, sub.PeerName)
		if err != nil {
			s.log.Error("post-expiry claim failed", "peer", sub.PeerName, "error", err)
			continue
		}
		if !applied {
			continue
		}
		if err := s.notify.Notify(ctx, sub.OwnerID, NotifyPostExpiry, sub.PeerName); err != nil {
			s.log.Warn("post-expiry notification failed", "peer", sub.PeerName, "error", err)
		}
	}
}

// dropStalePending deletes purchase intents that never saw money.
func (s *Sweeper) dropStalePending(ctx context.Context, now time.Time) {
	subs, err := s.subs.FindStalePending(ctx, now.Add(-s.pendingTTL))
	if err != nil {
		s.log.Error("stale pending scan failed", "error", err)
		return
	}
	for i := range subs {
		applied, err := s.subs.DeletePending(ctx, subs[i].PeerName)
		if err != nil {
			s.log.Error("stale pending delete failed", "peer", subs[i].PeerName, "error", err)
			continue
		}
		if applied {
			s.log.Info("abandoned purchase intent dropped", "peer", subs[i].PeerName)
		}
	}
}

// installMissingJobs finishes creates whose expiry-job phase failed.
func (s *Sweeper) installMissingJobs(ctx context.Context) {
	subs, err := s.subs.FindUnscheduled(ctx)
	if err != nil {
		s.log.Error("unscheduled scan failed", "error", err)
		return
	}
	for i := range subs {
		if err := s.life.EnsureScheduled(ctx, &subs[i]); err != nil {
			s.log.Error("expiry job install failed, will retry", "peer", subs[i].PeerName, "error", err)
		}
	}
}

// resumeSettled re-drives payments that settled but were never applied. Only
// payments older than one interval are picked up, so an in-flight confirm is
// not raced.
func (s *Sweeper) resumeSettled(ctx context.Context, now time.Time) {
	payments, err := s.payments.FindSettledBefore(ctx, now.Add(-s.interval))
	if err != nil {
		s.log.Error("settled payment scan failed", "error", err)
		return
	}
	for i := range payments {
		if err := s.rec.Resume(ctx, &payments[i], maxProvisionRetries); err != nil {
			s.log.Error("settled payment resume failed", "ref", payments[i].PaymentRef, "error", err)
		}
	}
}
