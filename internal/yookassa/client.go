// Package yookassa is the client for the YooKassa card gateway: payment
// creation with idempotence keys, payment lookup and webhook notification
// parsing.
package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alexnikon/wgbot/internal/subscription"
	"github.com/google/uuid"
)

const (
	apiBase        = "https://api.yookassa.ru/v3"
	requestTimeout = 20 * time.Second
)

// Payment statuses the gateway reports.
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

type Client struct {
	shopID    string
	secretKey string
	returnURL string
	baseURL   string
	http      *http.Client
	log       *slog.Logger
}

func NewClient(shopID, secretKey, returnURL string, log *slog.Logger) *Client {
	return &Client{
		shopID:    shopID,
		secretKey: secretKey,
		returnURL: returnURL,
		baseURL:   apiBase,
		http:      &http.Client{Timeout: requestTimeout},
		log:       log,
	}
}

// Amount is the gateway money shape: a decimal string plus a currency code.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Payment is the gateway payment object, trimmed to the fields the bot reads.
type Payment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       Amount            `json:"amount"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
	Confirmation *Confirmation     `json:"confirmation,omitempty"`
}

type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type createRequest struct {
	Amount       Amount            `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation Confirmation      `json:"confirmation"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata"`
}

// CreatePayment opens a redirect payment for the given amount in kopeks. The
// metadata round-trips through the gateway and comes back on the webhook; it
// carries the payer id and the reserved peer name.
func (c *Client) CreatePayment(ctx context.Context, kopeks int64, description string, metadata map[string]string) (*Payment, error) {
	body := createRequest{
		Amount:  Amount{Value: FormatKopeks(kopeks), Currency: "RUB"},
		Capture: true,
		Confirmation: Confirmation{
			Type:      "redirect",
			ReturnURL: c.returnURL,
		},
		Description: description,
		Metadata:    metadata,
	}

	var p Payment
	if err := c.do(ctx, http.MethodPost, "/payments", body, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: payment created without id", subscription.ErrRemoteRejected)
	}
	return &p, nil
}

// GetPayment fetches the current state of a payment, used to re-check a
// webhook against the gateway itself.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var p Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.shopID, c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotence-Key", uuid.NewString())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &subscription.RemoteError{Op: path, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &subscription.RemoteError{Op: path, StatusCode: resp.StatusCode, Transient: true, Err: err}
	}
	if resp.StatusCode >= 500 {
		return &subscription.RemoteError{Op: path, StatusCode: resp.StatusCode, Transient: true,
			Err: fmt.Errorf("gateway error: %s", http.StatusText(resp.StatusCode))}
	}
	if resp.StatusCode >= 400 {
		return &subscription.RemoteError{Op: path, StatusCode: resp.StatusCode, Transient: false,
			Err: fmt.Errorf("gateway rejected: %s", strings.TrimSpace(string(raw)))}
	}
	return json.Unmarshal(raw, out)
}

// FormatKopeks renders kopeks as the gateway decimal string, e.g. 15000 ->
// "150.00".
func FormatKopeks(kopeks int64) string {
	return fmt.Sprintf("%d.%02d", kopeks/100, kopeks%100)
}

// ParseKopeks converts a gateway decimal string back into kopeks.
func ParseKopeks(value string) (int64, error) {
	whole, frac, _ := strings.Cut(value, ".")
	rub, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q: %w", value, err)
	}
	if frac == "" {
		return rub * 100, nil
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	kop, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q: %w", value, err)
	}
	return rub*100 + kop, nil
}
