package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexnikon/wgbot/internal/database/models"
	"github.com/alexnikon/wgbot/internal/database/repositories"
	"github.com/google/uuid"
)

// ControlPlane is the outbound surface of the VPN management service.
// SaveExpiryJob is an upsert keyed by jobID, so install and extend are the
// same remote call; DeleteExpiryJob needs the full job coordinates.
type ControlPlane interface {
	CreatePeer(ctx context.Context, name string) (peerRef string, err error)
	PeerByName(ctx context.Context, name string) (peerRef string, ok bool, err error)
	DeletePeer(ctx context.Context, peerRef string) error
	PeerExists(ctx context.Context, peerRef string) (bool, error)
	PeerConfig(ctx context.Context, peerRef string) ([]byte, error)
	SaveExpiryJob(ctx context.Context, jobID, peerRef string, expiresAt time.Time) error
	DeleteExpiryJob(ctx context.Context, jobID, peerRef string, expiresAt time.Time) error
}

const (
	remoteAttempts = 3
	backoffBase    = 500 * time.Millisecond
)

// Lifecycle drives every remote transition of a peer. The ordering rules:
// allocation is the irreversible step, so it always goes first and is never
// undone; on teardown the job dies before the peer so no orphaned job
// outlives its peer. No row lock is held across a remote call; every local
// commit is a conditional update that re-checks its precondition.
type Lifecycle struct {
	subs *repositories.SubscriptionRepository
	cp   ControlPlane
	log  *slog.Logger
	now  func() time.Time
}

func NewLifecycle(subs *repositories.SubscriptionRepository, cp ControlPlane, log *slog.Logger) *Lifecycle {
	return &Lifecycle{subs: subs, cp: cp, log: log, now: time.Now}
}

// Create provisions the remote peer for a pending row and activates it.
// Peer allocation failure fails the call; expiry-job failure does not: the
// peer is kept, the row goes active with a nil schedule_ref, and the sweep
// retries the job install.
func (l *Lifecycle) Create(ctx context.Context, peerName string) error {
	sub, err := l.subs.GetByPeerName(ctx, peerName)
	if err != nil {
		return mapNotFound(err)
	}
	if sub.Status != models.StatusPendingPayment {
		return fmt.Errorf("%w: create on %s row", ErrConflict, sub.Status)
	}

	tariff, ok := TariffByKey(sub.Tariff)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTariff, sub.Tariff)
	}
	expiresAt := l.now().Add(tariff.Duration())

	peerRef, scheduleRef, err := l.provision(ctx, peerName, expiresAt)
	if err != nil {
		return err
	}

	applied, err := l.subs.MarkProvisioned(ctx, peerName, peerRef, scheduleRef, expiresAt)
	if err != nil {
		return err
	}
	if !applied {
		// Another actor already activated the row; the remote peer we made is
		// the same name, so nothing to clean up.
		l.log.Warn("provisioned row was no longer pending", "peer", peerName)
		return ErrConflict
	}
	l.log.Info("peer provisioned", "peer", peerName, "tariff", sub.Tariff, "expires_at", expiresAt)
	return nil
}

// Renew extends a live row in place by the tariff duration, or re-provisions
// a dead one under the same name. Extension is additive: the new expiry is
// the previous expiry plus the duration, never now plus the duration.
func (l *Lifecycle) Renew(ctx context.Context, peerName string) error {
	sub, err := l.subs.GetByPeerName(ctx, peerName)
	if err != nil {
		return mapNotFound(err)
	}

	tariff, ok := TariffByKey(sub.Tariff)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTariff, sub.Tariff)
	}

	switch sub.Status {
	case models.StatusActive, models.StatusGrace:
		return l.extend(ctx, sub, tariff)
	case models.StatusExpired, models.StatusRevoked:
		return l.reprovision(ctx, sub, tariff)
	default:
		return fmt.Errorf("%w: renew on %s row", ErrConflict, sub.Status)
	}
}

func (l *Lifecycle) extend(ctx context.Context, sub *models.Subscription, tariff Tariff) error {
	prevExpiry := sub.ExpiresAt
	newExpiry := prevExpiry.Add(tariff.Duration())

	if sub.PeerRef == nil {
		return fmt.Errorf("%w: %s live without peer_ref", ErrInconsistent, sub.PeerName)
	}
	if sub.ScheduleRef != nil {
		// Upsert by job id, idempotent, safe to retry blindly.
		err := l.withRetry(ctx, func() error {
			return l.cp.SaveExpiryJob(ctx, *sub.ScheduleRef, *sub.PeerRef, newExpiry)
		})
		if err != nil {
			return err
		}
	}

	applied, err := l.subs.ExtendExpiry(ctx, sub.PeerName, prevExpiry, newExpiry)
	if err != nil {
		return err
	}
	if !applied {
		// Sweep expired the row between our read and write. The remote job
		// now points past the expiry; re-reading and retrying through Renew
		// handles the revoked case.
		return ErrConflict
	}
	l.log.Info("peer renewed", "peer", sub.PeerName, "expires_at", newExpiry)
	return nil
}

func (l *Lifecycle) reprovision(ctx context.Context, sub *models.Subscription, tariff Tariff) error {
	expiresAt := l.now().Add(tariff.Duration())

	peerRef, scheduleRef, err := l.provision(ctx, sub.PeerName, expiresAt)
	if err != nil {
		return err
	}

	applied, err := l.subs.Reprovision(ctx, sub.PeerName, peerRef, scheduleRef, expiresAt)
	if err != nil {
		return err
	}
	if !applied {
		l.log.Warn("reprovisioned row changed status concurrently", "peer", sub.PeerName)
		return ErrConflict
	}
	l.log.Info("peer reprovisioned", "peer", sub.PeerName, "expires_at", expiresAt)
	return nil
}

// provision allocates the peer, then installs the expiry job. A create that
// timed out may still have succeeded remotely, so retries first look the peer
// up by name instead of allocating twice.
func (l *Lifecycle) provision(ctx context.Context, peerName string, expiresAt time.Time) (string, *string, error) {
	var peerRef string
	err := l.withRetry(ctx, func() error {
		if ref, ok, err := l.cp.PeerByName(ctx, peerName); err == nil && ok {
			peerRef = ref
			return nil
		}
		ref, err := l.cp.CreatePeer(ctx, peerName)
		if err != nil {
			return err
		}
		peerRef = ref
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	jobID := uuid.NewString()
	jobErr := l.withRetry(ctx, func() error {
		return l.cp.SaveExpiryJob(ctx, jobID, peerRef, expiresAt)
	})
	if jobErr != nil {
		// Keep the peer: an orphan schedule is recoverable, an unrecorded
		// peer is not. The sweep installs the job later.
		l.log.Error("expiry job install failed, will retry on sweep", "peer", peerName, "error", jobErr)
		return peerRef, nil, nil
	}
	return peerRef, &jobID, nil
}

// EnsureScheduled installs the expiry job for an active row that is missing
// one (a create whose second phase failed).
func (l *Lifecycle) EnsureScheduled(ctx context.Context, sub *models.Subscription) error {
	if sub.PeerRef == nil {
		return fmt.Errorf("%w: %s active without peer_ref", ErrInconsistent, sub.PeerName)
	}
	jobID := uuid.NewString()
	err := l.withRetry(ctx, func() error {
		return l.cp.SaveExpiryJob(ctx, jobID, *sub.PeerRef, sub.ExpiresAt)
	})
	if err != nil {
		return err
	}
	applied, err := l.subs.SetScheduleRef(ctx, sub.PeerName, jobID)
	if err != nil {
		return err
	}
	if applied {
		l.log.Info("expiry job installed", "peer", sub.PeerName, "job", jobID)
	}
	return nil
}

// Revoke tears down the remote peer: job first, then peer, then the local
// row. Revoking an already-revoked row is a no-op success.
func (l *Lifecycle) Revoke(ctx context.Context, peerName string) error {
	sub, err := l.subs.GetByPeerName(ctx, peerName)
	if err != nil {
		return mapNotFound(err)
	}
	if sub.Status == models.StatusRevoked || sub.PeerRef == nil {
		return nil
	}

	if sub.ScheduleRef != nil {
		err := l.withRetry(ctx, func() error {
			return l.cp.DeleteExpiryJob(ctx, *sub.ScheduleRef, *sub.PeerRef, sub.ExpiresAt)
		})
		if err != nil && !errors.Is(err, ErrRemoteRejected) {
			return err
		}
		// A rejected delete means the job is already gone remotely.
	}

	err = l.withRetry(ctx, func() error {
		return l.cp.DeletePeer(ctx, *sub.PeerRef)
	})
	if err != nil && !errors.Is(err, ErrRemoteRejected) {
		return err
	}

	if _, err := l.subs.MarkRevoked(ctx, peerName); err != nil {
		return err
	}
	l.log.Info("peer revoked", "peer", peerName)
	return nil
}

// FetchConfig returns the peer's config blob. Grace rows still have a
// reachable peer, so they can download too.
func (l *Lifecycle) FetchConfig(ctx context.Context, peerName string) ([]byte, error) {
	sub, err := l.subs.GetByPeerName(ctx, peerName)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if sub.PeerRef == nil || (sub.Status != models.StatusActive && sub.Status != models.StatusGrace) {
		return nil, ErrNotProvisioned
	}
	var blob []byte
	err = l.withRetry(ctx, func() error {
		b, err := l.cp.PeerConfig(ctx, *sub.PeerRef)
		if err != nil {
			return err
		}
		blob = b
		return nil
	})
	return blob, err
}

// ReconcileStartup re-checks every live row against the control-plane. A row
// whose remote peer vanished (server reinstall, manual delete) is
// re-provisioned under the same name with the same expiry. Deterministic and
// logged, never silently trusted.
func (l *Lifecycle) ReconcileStartup(ctx context.Context) error {
	subs, err := l.subs.FindLive(ctx)
	if err != nil {
		return err
	}
	for i := range subs {
		sub := &subs[i]
		if sub.PeerRef == nil {
			l.log.Error("live row without peer_ref", "peer", sub.PeerName)
			continue
		}
		exists, err := l.cp.PeerExists(ctx, *sub.PeerRef)
		if err != nil {
			l.log.Warn("startup check failed, keeping row", "peer", sub.PeerName, "error", err)
			continue
		}
		if exists {
			continue
		}
		l.log.Warn("remote peer missing, re-provisioning", "peer", sub.PeerName)
		peerRef, scheduleRef, err := l.provision(ctx, sub.PeerName, sub.ExpiresAt)
		if err != nil {
			l.log.Error("re-provisioning failed", "peer", sub.PeerName, "error", err)
			continue
		}
		if _, err := l.subs.ReplaceRefs(ctx, sub.PeerName, peerRef, scheduleRef); err != nil {
			l.log.Error("recording re-provisioned refs failed", "peer", sub.PeerName, "error", err)
		}
	}
	return nil
}

// withRetry runs fn with bounded exponential backoff, retrying transient
// failures only.
func (l *Lifecycle) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delay := backoffBase
	for attempt := 0; attempt < remoteAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
	}
	return err
}

func mapNotFound(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrUnknownSubscription
	}
	return err
}
