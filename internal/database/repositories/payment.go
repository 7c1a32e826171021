package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/alexnikon/wgbot/internal/database/models"
	"gorm.io/gorm"
)

var ErrDuplicate = errors.New("duplicate record")

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Insert adds a ledger entry. A second insert with the same payment_ref
// returns ErrDuplicate; this is the at-most-once guard for payment
// application.
func (r *PaymentRepository) Insert(ctx context.Context, p *models.Payment) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (r *PaymentRepository) GetByRef(ctx context.Context, paymentRef string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).First(&p, "payment_ref = ?", paymentRef).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetStatus moves a ledger entry along pending -> settled -> applied (or to
// refunded). The condition keeps the transition one-way.
func (r *PaymentRepository) SetStatus(ctx context.Context, paymentRef, from, to string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("payment_ref = ? AND status = ?", paymentRef, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

// FindSettledBefore returns settled-but-unapplied payments older than the
// cutoff: money confirmed, provisioning never finished. The recovery sweep
// resumes these.
func (r *PaymentRepository) FindSettledBefore(ctx context.Context, cutoff time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.PaymentSettled, cutoff).
		Order("updated_at ASC").
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) FindByOwner(ctx context.Context, ownerID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&payments).Error
	return payments, err
}
