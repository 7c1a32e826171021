package models

import "time"

// Subscription statuses.
const (
	StatusPendingPayment = "pending_payment"
	StatusActive         = "active"
	StatusGrace          = "grace"
	StatusExpired        = "expired"
	StatusRevoked        = "revoked"
)

// Payment methods.
const (
	MethodStars    = "stars"
	MethodYooKassa = "yookassa"
)

// Payment ledger statuses.
const (
	PaymentPending  = "pending"
	PaymentSettled  = "settled"
	PaymentApplied  = "applied"
	PaymentRefunded = "refunded"
)

type User struct {
	UserID    int64  `gorm:"primaryKey" json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Subscription is one issued peer. PeerName is the unique key into the
// control-plane; PeerRef and ScheduleRef are the opaque remote identifiers and
// stay NULL until provisioning succeeds. PeerRef is non-NULL exactly when
// Status is active or grace.
type Subscription struct {
	PeerName           string    `gorm:"primaryKey" json:"peerName"`
	OwnerID            int64     `gorm:"index" json:"ownerId"`
	PeerRef            *string   `json:"peerRef,omitempty"`
	ScheduleRef        *string   `json:"scheduleRef,omitempty"`
	Tariff             string    `json:"tariff"`
	Status             string    `gorm:"index" json:"status"`
	ExpiresAt          time.Time `json:"expiresAt"`
	PaymentMethod      string    `json:"paymentMethod"`
	AmountPaid         int64     `json:"amountPaid"`
	PaymentRef         *string   `json:"paymentRef,omitempty"`
	PreExpiryNotified  bool      `gorm:"default:false" json:"preExpiryNotified"`
	PostExpiryNotified bool      `gorm:"default:false" json:"postExpiryNotified"`
	ProvisionRetries   int       `gorm:"default:0" json:"provisionRetries"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Payment is the applied-payment ledger. PaymentRef is the gateway's payment
// id or the Telegram Stars charge id; its uniqueness is what makes payment
// application at-most-once. PriorExpiry is the subscription's expires_at as
// read when the payment settled (zero for first purchases): a resumed apply
// compares it against the row to tell a committed extension from a failed one.
type Payment struct {
	PaymentRef  string    `gorm:"primaryKey" json:"paymentRef"`
	OwnerID     int64     `gorm:"index" json:"ownerId"`
	PeerName    string    `json:"peerName"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Method      string    `json:"method"`
	Status      string    `json:"status"`
	PriorExpiry time.Time `json:"priorExpiry"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (Subscription) TableName() string {
	return "subscriptions"
}

func (Payment) TableName() string {
	return "payments"
}
