// Package webhook is the inbound HTTP surface for gateway notifications.
package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexnikon/wgbot/internal/subscription"
	"github.com/alexnikon/wgbot/internal/yookassa"
	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Payment-Sha256-Signature"

// Confirmer applies a validated payment event exactly once.
type Confirmer interface {
	Confirm(ctx context.Context, ev subscription.PaymentEvent) (subscription.Outcome, error)
}

// PaymentNotifier tells the payer their money was applied and delivers the
// config on a first purchase.
type PaymentNotifier interface {
	PaymentApplied(ctx context.Context, ownerID int64, peerName string, created bool) error
}

// Server accepts YooKassa webhooks. Responses follow the gateway contract:
// 200 acknowledges the event (including duplicates and permanently bad
// events), anything else makes the gateway redeliver.
type Server struct {
	engine    *gin.Engine
	confirmer Confirmer
	notify    subscription.Notifier
	payments  PaymentNotifier
	secret    string
	log       *slog.Logger
}

func NewServer(confirmer Confirmer, notify subscription.Notifier, payments PaymentNotifier, secret string, log *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:    engine,
		confirmer: confirmer,
		notify:    notify,
		payments:  payments,
		secret:    secret,
		log:       log,
	}
	engine.GET("/health", s.health)
	engine.POST("/webhook/yookassa", s.handleYooKassa)
	return s
}

// Run serves until the context ends, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleYooKassa(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if sig := c.GetHeader(signatureHeader); sig != "" {
		if !yookassa.VerifySignature(body, sig, s.secret) {
			s.log.Warn("webhook signature mismatch")
			c.Status(http.StatusForbidden)
			return
		}
	}

	n, err := yookassa.ParseNotification(body)
	if err != nil {
		s.log.Warn("webhook rejected", "error", err)
		c.Status(http.StatusBadRequest)
		return
	}

	switch n.Event {
	case yookassa.EventPaymentSucceeded:
		s.paymentSucceeded(c, n)
	case yookassa.EventPaymentCanceled:
		s.paymentCanceled(c, n)
	case yookassa.EventPaymentWaiting, yookassa.EventRefundSucceeded:
		// Capture is automatic and refunds are manual operator actions;
		// both are acknowledged and logged only.
		s.log.Info("gateway event acknowledged", "event", n.Event, "payment", n.Object.ID)
		c.Status(http.StatusOK)
	default:
		s.log.Warn("unknown gateway event", "event", n.Event)
		c.Status(http.StatusOK)
	}
}

func (s *Server) paymentSucceeded(c *gin.Context, n *yookassa.Notification) {
	payerID, err := n.PayerID()
	if err != nil {
		s.log.Error("succeeded event unusable", "payment", n.Object.ID, "error", err)
		c.Status(http.StatusOK)
		return
	}
	peerName, err := n.PeerName()
	if err != nil {
		s.log.Error("succeeded event unusable", "payment", n.Object.ID, "error", err)
		c.Status(http.StatusOK)
		return
	}
	kopeks, err := yookassa.ParseKopeks(n.Object.Amount.Value)
	if err != nil {
		s.log.Error("succeeded event unusable", "payment", n.Object.ID, "error", err)
		c.Status(http.StatusOK)
		return
	}

	ev, err := subscription.NewGatewayPayment(n.Object.ID, peerName, payerID, kopeks)
	if err != nil {
		s.log.Error("succeeded event unusable", "payment", n.Object.ID, "error", err)
		c.Status(http.StatusOK)
		return
	}

	ctx := c.Request.Context()
	outcome, err := s.confirmer.Confirm(ctx, ev)
	switch {
	case err == nil:
		if nerr := s.payments.PaymentApplied(ctx, payerID, peerName, outcome == subscription.OutcomeCreated); nerr != nil {
			s.log.Warn("payment notification failed", "peer", peerName, "error", nerr)
		}
		c.Status(http.StatusOK)
	case errors.Is(err, subscription.ErrDuplicatePayment):
		c.Status(http.StatusOK)
	case errors.Is(err, subscription.ErrAmountMismatch),
		errors.Is(err, subscription.ErrUnknownSubscription),
		errors.Is(err, subscription.ErrRemoteRejected):
		// Permanently unusable; redelivery cannot fix it.
		s.log.Error("payment not applicable", "payment", n.Object.ID, "error", err)
		c.Status(http.StatusOK)
	default:
		// Money is settled in the ledger by now; the sweep also retries, but
		// a gateway redelivery gets there sooner.
		s.log.Error("payment confirmation failed, asking for redelivery", "payment", n.Object.ID, "error", err)
		c.Status(http.StatusInternalServerError)
	}
}

func (s *Server) paymentCanceled(c *gin.Context, n *yookassa.Notification) {
	payerID, err := n.PayerID()
	if err == nil {
		peerName, _ := n.PeerName()
		if nerr := s.notify.Notify(c.Request.Context(), payerID, subscription.NotifyPaymentCanceled, peerName); nerr != nil {
			s.log.Warn("cancel notification failed", "payment", n.Object.ID, "error", nerr)
		}
	}
	s.log.Info("payment canceled", "payment", n.Object.ID)
	c.Status(http.StatusOK)
}
