package wgdashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alexnikon/wgbot/internal/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestCreatePeer(t *testing.T) {
	var gotKey string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/addPeers/awg0", r.URL.Path)
		gotKey = r.Header.Get("wg-dashboard-apikey")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"status": true, "message": null, "data": [{"id": "pubkey-1", "name": "alice_1"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "awg0", testLogger())
	ref, err := c.CreatePeer(context.Background(), "alice_1")
	require.NoError(t, err)

	assert.Equal(t, "pubkey-1", ref)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "alice_1", gotBody["name"])
}

func TestPeerByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/getWireguardConfigurationInfo", r.URL.Path)
		require.Equal(t, "awg0", r.URL.Query().Get("configurationName"))
		w.Write([]byte(`{"status": true, "data": {"configurationPeers": [
			{"id": "pk-a", "name": "alice_1"},
			{"id": "pk-b", "name": "bob_2"}
		]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "awg0", testLogger())

	ref, ok, err := c.PeerByName(context.Background(), "bob_2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "pk-b", ref)

	_, ok, err = c.PeerByName(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveExpiryJobWireShape(t *testing.T) {
	var payload struct {
		Job scheduleJob `json:"Job"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/savePeerScheduleJob", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Write([]byte(`{"status": true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "awg0", testLogger())
	expiresAt := time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.SaveExpiryJob(context.Background(), "job-1", "pk-a", expiresAt))

	assert.Equal(t, "job-1", payload.Job.JobID)
	assert.Equal(t, "awg0", payload.Job.Configuration)
	assert.Equal(t, "pk-a", payload.Job.Peer)
	assert.Equal(t, "date", payload.Job.Field)
	assert.Equal(t, "lgt", payload.Job.Operator)
	assert.Equal(t, "2026-09-30 12:00:00", payload.Job.Value)
	assert.Equal(t, "restrict", payload.Job.Action)
}

func TestPeerExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "pk-a" {
			w.Write([]byte(`{"status": true, "data": {"fileName": "alice_1", "file": "[Interface]"}}`))
			return
		}
		w.Write([]byte(`{"status": false, "message": "peer does not exist"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "awg0", testLogger())

	ok, err := c.PeerExists(context.Background(), "pk-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.PeerExists(context.Background(), "pk-gone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPeerConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": true, "data": {"fileName": "alice_1", "file": "[Interface]\nPrivateKey = x"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "awg0", testLogger())
	blob, err := c.PeerConfig(context.Background(), "pk-a")
	require.NoError(t, err)
	assert.Contains(t, string(blob), "[Interface]")
}

func TestErrorClassification(t *testing.T) {
	t.Run("server error is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "secret", "awg0", testLogger())
		_, err := c.CreatePeer(context.Background(), "alice_1")
		assert.ErrorIs(t, err, subscription.ErrRemoteTransient)
	})

	t.Run("client error is rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "secret", "awg0", testLogger())
		_, err := c.CreatePeer(context.Background(), "alice_1")
		assert.ErrorIs(t, err, subscription.ErrRemoteRejected)
	})

	t.Run("status false is rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status": false, "message": "configuration does not exist"}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "secret", "awg0", testLogger())
		err := c.DeletePeer(context.Background(), "pk-a")
		assert.ErrorIs(t, err, subscription.ErrRemoteRejected)
	})

	t.Run("unreachable panel is transient", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1", "secret", "awg0", testLogger())
		_, err := c.CreatePeer(context.Background(), "alice_1")
		assert.ErrorIs(t, err, subscription.ErrRemoteTransient)
	})
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "awg0", testLogger())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := c.CreatePeer(ctx, "alice_1")
		require.Error(t, err)
	}

	// The breaker is open now; the failure is still reported as transient.
	_, err := c.CreatePeer(ctx, "alice_1")
	assert.ErrorIs(t, err, subscription.ErrRemoteTransient)
}
