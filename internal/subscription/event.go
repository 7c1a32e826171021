package subscription

import (
	"fmt"

	"github.com/alexnikon/wgbot/internal/database/models"
)

// PaymentEvent is a validated inbound payment confirmation. The two concrete
// variants are built at the transport boundary (Telegram successful_payment,
// YooKassa webhook); anything that fails validation there never reaches the
// reconciler.
type PaymentEvent interface {
	Ref() string
	PeerName() string
	PayerID() int64
	Amount() int64
	Currency() Currency
	Method() string
}

// PointsPayment is a settled Telegram Stars charge.
type PointsPayment struct {
	ChargeID string
	Peer     string
	Payer    int64
	Stars    int64
}

func NewPointsPayment(chargeID, peerName string, payerID, stars int64) (PointsPayment, error) {
	if chargeID == "" || peerName == "" || payerID == 0 || stars <= 0 {
		return PointsPayment{}, fmt.Errorf("%w: malformed stars payment", ErrRemoteRejected)
	}
	return PointsPayment{ChargeID: chargeID, Peer: peerName, Payer: payerID, Stars: stars}, nil
}

func (p PointsPayment) Ref() string        { return p.ChargeID }
func (p PointsPayment) PeerName() string   { return p.Peer }
func (p PointsPayment) PayerID() int64     { return p.Payer }
func (p PointsPayment) Amount() int64      { return p.Stars }
func (p PointsPayment) Currency() Currency { return CurrencyStars }
func (p PointsPayment) Method() string     { return models.MethodStars }

// GatewayPayment is a settled YooKassa card payment. Kopeks is the captured
// amount in kopeks.
type GatewayPayment struct {
	PaymentID string
	Peer      string
	Payer     int64
	Kopeks    int64
}

func NewGatewayPayment(paymentID, peerName string, payerID, kopeks int64) (GatewayPayment, error) {
	if paymentID == "" || peerName == "" || payerID == 0 || kopeks <= 0 {
		return GatewayPayment{}, fmt.Errorf("%w: malformed gateway payment", ErrRemoteRejected)
	}
	return GatewayPayment{PaymentID: paymentID, Peer: peerName, Payer: payerID, Kopeks: kopeks}, nil
}

func (p GatewayPayment) Ref() string        { return p.PaymentID }
func (p GatewayPayment) PeerName() string   { return p.Peer }
func (p GatewayPayment) PayerID() int64     { return p.Payer }
func (p GatewayPayment) Amount() int64      { return p.Kopeks }
func (p GatewayPayment) Currency() Currency { return CurrencyRUB }
func (p GatewayPayment) Method() string     { return models.MethodYooKassa }
