// Package wgdashboard is the HTTP client for the WGDashboard management API.
// The management panel fronts the wireguard interface: peers are created and
// deleted through it, and per-peer restriction jobs implement expiry.
package wgdashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/alexnikon/wgbot/internal/subscription"
	"github.com/sony/gobreaker/v2"
)

const (
	apiKeyHeader   = "wg-dashboard-apikey"
	requestTimeout = 15 * time.Second
	expiryLayout   = "2006-01-02 15:04:05"
)

// Client talks to one WGDashboard instance for one wireguard configuration.
// All calls go through a circuit breaker so a dead panel fails fast instead
// of stalling every bot update.
type Client struct {
	baseURL    string
	apiKey     string
	configName string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	log        *slog.Logger
}

func NewClient(baseURL, apiKey, configName string, log *slog.Logger) *Client {
	settings := gobreaker.Settings{
		Name:    "wgdashboard",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("control-plane breaker state changed", "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Rejections count against the caller, not the panel.
			return err == nil || errors.Is(err, subscription.ErrRemoteRejected)
		},
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		configName: configName,
		http:       &http.Client{Timeout: requestTimeout},
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
		log:        log,
	}
}

// envelope is the uniform WGDashboard response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type peerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type scheduleJob struct {
	JobID         string `json:"JobID"`
	Configuration string `json:"Configuration"`
	Peer          string `json:"Peer"`
	Field         string `json:"Field"`
	Operator      string `json:"Operator"`
	Value         string `json:"Value"`
	CreationDate  string `json:"CreationDate"`
	ExpireDate    string `json:"ExpireDate"`
	Action        string `json:"Action"`
}

// Handshake verifies the panel is reachable and the key is accepted.
func (c *Client) Handshake(ctx context.Context) error {
	_, err := c.call(ctx, http.MethodGet, "/api/handshake", nil)
	return err
}

// CreatePeer allocates a peer and returns its panel identifier (the peer
// public key).
func (c *Client) CreatePeer(ctx context.Context, name string) (string, error) {
	data, err := c.call(ctx, http.MethodPost, "/api/addPeers/"+c.configName, map[string]string{"name": name})
	if err != nil {
		return "", err
	}
	var peers []peerInfo
	if err := json.Unmarshal(data, &peers); err != nil || len(peers) == 0 || peers[0].ID == "" {
		return "", fmt.Errorf("%w: addPeers returned no peer", subscription.ErrRemoteRejected)
	}
	return peers[0].ID, nil
}

// PeerByName scans the configuration's peer list for a peer with the given
// display name. Used to recover the id of a create whose response was lost.
func (c *Client) PeerByName(ctx context.Context, name string) (string, bool, error) {
	q := url.Values{"configurationName": {c.configName}}
	data, err := c.call(ctx, http.MethodGet, "/api/getWireguardConfigurationInfo?"+q.Encode(), nil)
	if err != nil {
		return "", false, err
	}
	var info struct {
		ConfigurationPeers []peerInfo `json:"configurationPeers"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return "", false, fmt.Errorf("%w: bad configuration info payload", subscription.ErrRemoteRejected)
	}
	for _, p := range info.ConfigurationPeers {
		if p.Name == name {
			return p.ID, true, nil
		}
	}
	return "", false, nil
}

func (c *Client) DeletePeer(ctx context.Context, peerRef string) error {
	_, err := c.call(ctx, http.MethodPost, "/api/deletePeers/"+c.configName, map[string][]string{"peers": {peerRef}})
	return err
}

// PeerExists probes the peer through the download endpoint, which the panel
// answers with status false for unknown ids.
func (c *Client) PeerExists(ctx context.Context, peerRef string) (bool, error) {
	_, err := c.downloadPeer(ctx, peerRef)
	if errors.Is(err, subscription.ErrRemoteRejected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PeerConfig returns the rendered wireguard config file for the peer.
func (c *Client) PeerConfig(ctx context.Context, peerRef string) ([]byte, error) {
	return c.downloadPeer(ctx, peerRef)
}

func (c *Client) downloadPeer(ctx context.Context, peerRef string) ([]byte, error) {
	q := url.Values{"id": {peerRef}}
	data, err := c.call(ctx, http.MethodGet, "/api/downloadPeer/"+c.configName+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var file struct {
		FileName string `json:"fileName"`
		File     string `json:"file"`
	}
	if err := json.Unmarshal(data, &file); err != nil || file.File == "" {
		return nil, fmt.Errorf("%w: bad downloadPeer payload", subscription.ErrRemoteRejected)
	}
	return []byte(file.File), nil
}

// SaveExpiryJob installs or replaces the restriction job that locks the peer
// at expiresAt. The panel upserts by job id.
func (c *Client) SaveExpiryJob(ctx context.Context, jobID, peerRef string, expiresAt time.Time) error {
	_, err := c.call(ctx, http.MethodPost, "/api/savePeerScheduleJob", map[string]scheduleJob{
		"Job": c.expiryJob(jobID, peerRef, expiresAt),
	})
	return err
}

func (c *Client) DeleteExpiryJob(ctx context.Context, jobID, peerRef string, expiresAt time.Time) error {
	_, err := c.call(ctx, http.MethodPost, "/api/deletePeerScheduleJob", map[string]scheduleJob{
		"Job": c.expiryJob(jobID, peerRef, expiresAt),
	})
	return err
}

func (c *Client) expiryJob(jobID, peerRef string, expiresAt time.Time) scheduleJob {
	stamp := expiresAt.UTC().Format(expiryLayout)
	return scheduleJob{
		JobID:         jobID,
		Configuration: c.configName,
		Peer:          peerRef,
		Field:         "date",
		Operator:      "lgt",
		Value:         stamp,
		ExpireDate:    stamp,
		Action:        "restrict",
	}
}

// call performs one API request through the breaker and unwraps the response
// envelope. Network failures and 5xx answers come back transient; 4xx and
// status:false answers come back rejected.
func (c *Client) call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, method, path, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &subscription.RemoteError{Op: path, Transient: true, Err: err}
	}
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &subscription.RemoteError{Op: path, Transient: false, Err: err}
	}
	if !env.Status {
		return nil, fmt.Errorf("%w: %s: %s", subscription.ErrRemoteRejected, path, env.Message)
	}
	return env.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &subscription.RemoteError{Op: path, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &subscription.RemoteError{Op: path, StatusCode: resp.StatusCode, Transient: true, Err: err}
	}
	if resp.StatusCode >= 500 {
		return nil, &subscription.RemoteError{Op: path, StatusCode: resp.StatusCode, Transient: true,
			Err: fmt.Errorf("server error: %s", http.StatusText(resp.StatusCode))}
	}
	if resp.StatusCode >= 400 {
		return nil, &subscription.RemoteError{Op: path, StatusCode: resp.StatusCode, Transient: false,
			Err: fmt.Errorf("request rejected: %s", http.StatusText(resp.StatusCode))}
	}
	return raw, nil
}
