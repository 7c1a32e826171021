package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/alexnikon/wgbot/internal/database/models"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *SubscriptionRepository) GetByPeerName(ctx context.Context, peerName string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).First(&sub, "peer_name = ?", peerName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) FindByOwner(ctx context.Context, ownerID int64) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&subs).Error
	return subs, err
}

// FindPendingByOwnerTariff returns an existing purchase intent so repeated
// taps on the same tariff do not pile up rows.
func (r *SubscriptionRepository) FindPendingByOwnerTariff(ctx context.Context, ownerID int64, tariff string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND tariff = ? AND status = ?", ownerID, tariff, models.StatusPendingPayment).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindExpiring returns active rows inside the pre-expiry window that have not
// been warned yet.
func (r *SubscriptionRepository) FindExpiring(ctx context.Context, now time.Time, window time.Duration) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND pre_expiry_notified = ? AND expires_at > ? AND expires_at <= ?",
			models.StatusActive, false, now, now.Add(window)).
		Order("expires_at ASC").
		Find(&subs).Error
	return subs, err
}

// FindExpired returns rows past their expiry that still need revocation.
// Rows stuck in expired from a failed remote revoke are included so the sweep
// retries them.
func (r *SubscriptionRepository) FindExpired(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at <= ?",
			[]string{models.StatusActive, models.StatusGrace, models.StatusExpired}, now).
		Order("expires_at ASC").
		Find(&subs).Error
	return subs, err
}

// FindStalePending returns purchase intents older than the cutoff that never
// got a payment reference stamped on them.
func (r *SubscriptionRepository) FindStalePending(ctx context.Context, cutoff time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_ref IS NULL AND created_at < ?", models.StatusPendingPayment, cutoff).
		Find(&subs).Error
	return subs, err
}

// FindUnscheduled returns active rows whose remote expiry job is missing.
func (r *SubscriptionRepository) FindUnscheduled(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND schedule_ref IS NULL", models.StatusActive).
		Find(&subs).Error
	return subs, err
}

// FindLive returns all rows that claim a provisioned remote peer.
func (r *SubscriptionRepository) FindLive(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{models.StatusActive, models.StatusGrace}).
		Find(&subs).Error
	return subs, err
}

// DeletePending removes an abandoned purchase intent. The status condition
// keeps a racing confirmation from losing a provisioned row.
func (r *SubscriptionRepository) DeletePending(ctx context.Context, peerName string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("peer_name = ? AND status = ? AND payment_ref IS NULL", peerName, models.StatusPendingPayment).
		Delete(&models.Subscription{})
	return res.RowsAffected == 1, res.Error
}

// StampPayment records the settled payment on the row before provisioning
// starts. It does not advance the status.
func (r *SubscriptionRepository) StampPayment(ctx context.Context, peerName, paymentRef, method string, amount int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("peer_name = ?", peerName).
		Updates(map[string]interface{}{
			"payment_ref":    paymentRef,
			"payment_method": method,
			"amount_paid":    amount,
			"updated_at":     time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

// MarkProvisioned moves a pending row to active once the remote peer exists.
// scheduleRef may be nil when the expiry job install failed; the sweep
// finishes it later.
func (r *SubscriptionRepository) MarkProvisioned(ctx context.Context, peerName, peerRef string, scheduleRef *string, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("peer_name = ? AND status = ?", peerName, models.StatusPendingPayment).
		Updates(map[string]interface{}{
			"peer_ref":     peerRef,
			"schedule_ref": scheduleRef,
			"status":       models.StatusActive,
			"expires_at":   expiresAt,
			"updated_at":   time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

// Reprovision re-activates an expired or revoked row with fresh remote
// identifiers, reusing the peer name.
func (r *SubscriptionRepository) Reprovision(ctx context.Context, peerName, peerRef string, scheduleRef *string, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("peer_name = ? AND status IN ?", peerName, []string{models.StatusExpired, models.StatusRevoked}).
		Updates(map[string]interface{}{
			"peer_ref":             peerRef,
			"schedule_ref":         scheduleRef,
			"status":               models.StatusActive,
			"expires_at":           expiresAt,
			"pre_expiry_notified":  false,
			"post_expiry_notified": false,
			"updated_at":           time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

// ReplaceRefs swaps the remote identifiers of a live row in place. Used by
// startup reconciliation when the remote peer vanished.
func (r *SubscriptionRepository) ReplaceRefs(ctx context.Context, peerName, peerRef string, scheduleRef *string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("peer_name = ? AND status IN ?", peerName, []string{models.StatusActive, models.StatusGrace}).
		Updates(map[string]interface{}{
			"peer_ref":     peerRef,
			"schedule_ref": scheduleRef,
			"updated_at":   time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

// ExtendExpiry is the renewal write. Conditioned on the previously read
// expires_at so a racing sweep transition makes it a no-op instead of a lost
// update. A renewed grace row goes back to active and may be warned again.
func (r *SubscriptionRepository) ExtendExpiry(ctx context.Context, peerName string, prevExpiry, newExpiry time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("peer_name = ? AND expires_at = ? AND status IN ?",
			peerName, prevExpiry, []string{models.StatusActive, models.StatusGrace}).
		Updates(map[string]interface{}{
			"expires_at":          newExpiry,
			"status":              models.StatusActive,
			"pre_expiry_notified": false,
			"updated_at":          time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

// SetTariff retargets the row's tariff before a renewal invoice goes out.
// The amount check at confirmation reads whatever tariff is current then.
func (r *SubscriptionRepository) SetTariff(ctx context.Context, peerName, tariff string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("peer_name = ?", peerName).
		Updates(map[string]interface{}{
			"tariff":     tariff,
			"updated_at": time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

// MarkGrace flips an active row into the warned state exactly once.
func (r *SubscriptionRepository) MarkGrace(ctx context.Context, peerName string, prevExpiry time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("peer_name = ? AND status = ? AND expires_at = ? AND pre_expiry_notified = ?",
			peerName, models.StatusActive, prevExpiry, false).
		Updates(map[string]interface{}{
			"status":              models.StatusGrace,
			"pre_expiry_notified": true,
			"updated_at":          time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

// MarkExpired moves a live row past its deadline. Conditioned on expires_at:
// a renewal that raised it between sweep read and write wins the race.
func (r *SubscriptionRepository) MarkExpired(ctx context.Context, peerName string, prevExpiry time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("peer_name = ? AND expires_at = ? AND status IN ?",
			peerName, prevExpiry, []string{models.StatusActive, models.StatusGrace}).
		Updates(map[string]interface{}{
			"status":     models.StatusExpired,
			"updated_at": time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

// MarkRevoked clears the remote identifiers after a successful remote revoke.
func (r *SubscriptionRepository) MarkRevoked(ctx context.Context, peerName string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("peer_name = ? AND status = ?", peerName, models.StatusExpired).
		Updates(map[string]interface{}{
			"status":       models.StatusRevoked,
			"peer_ref":     nil,
			"schedule_ref": nil,
			"updated_at":   time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

// MarkPostExpiryNotified claims the one post-expiry notification.
func (r *SubscriptionRepository) MarkPostExpiryNotified(ctx context.Context, peerName string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("peer_name = ? AND post_expiry_notified = ?", peerName, false).
		Updates(map[string]interface{}{
			"post_expiry_notified": true,
			"updated_at":           time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

// SetScheduleRef installs a previously missing expiry job reference.
func (r *SubscriptionRepository) SetScheduleRef(ctx context.Context, peerName, scheduleRef string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("peer_name = ? AND status = ? AND schedule_ref IS NULL", peerName, models.StatusActive).
		Updates(map[string]interface{}{
			"schedule_ref": scheduleRef,
			"updated_at":   time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

// IncrementProvisionRetries bumps the sticky retry counter for a row whose
// settled payment could not be applied yet.
func (r *SubscriptionRepository) IncrementProvisionRetries(ctx context.Context, peerName string) error {
	return r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("peer_name = ?", peerName).
		UpdateColumn("provision_retries", gorm.Expr("provision_retries + 1")).Error
}

func (r *SubscriptionRepository) ResetProvisionRetries(ctx context.Context, peerName string) error {
	return r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("peer_name = ?", peerName).
		UpdateColumn("provision_retries", 0).Error
}
