package yookassa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// Webhook events delivered by the gateway.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentCanceled  = "payment.canceled"
	EventPaymentWaiting   = "payment.waiting_for_capture"
	EventRefundSucceeded  = "refund.succeeded"
)

// Notification is the webhook envelope: the event name plus the payment
// object it is about.
type Notification struct {
	Type   string  `json:"type"`
	Event  string  `json:"event"`
	Object Payment `json:"object"`
}

// ParseNotification decodes and validates a webhook body. Anything missing
// the fields the engine needs is rejected here, before it reaches the
// reconciler.
func ParseNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("malformed notification: %w", err)
	}
	if n.Type != "notification" || n.Event == "" {
		return nil, fmt.Errorf("not a gateway notification")
	}
	if n.Object.ID == "" {
		return nil, fmt.Errorf("notification without payment id")
	}
	return &n, nil
}

// PayerID extracts the chat user id from the round-tripped metadata.
func (n *Notification) PayerID() (int64, error) {
	raw, ok := n.Object.Metadata["user_id"]
	if !ok {
		return 0, fmt.Errorf("notification without user_id metadata")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("bad user_id metadata %q", raw)
	}
	return id, nil
}

// PeerName extracts the reserved peer name from the metadata.
func (n *Notification) PeerName() (string, error) {
	name, ok := n.Object.Metadata["peer_name"]
	if !ok || name == "" {
		return "", fmt.Errorf("notification without peer_name metadata")
	}
	return name, nil
}

// VerifySignature checks the hex HMAC-SHA256 of the raw body against the
// shop secret. The signature is decoded before the constant-time compare, so
// upper- and lowercase hex both verify.
func VerifySignature(body []byte, signature, secret string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}
