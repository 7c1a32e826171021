package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/alexnikon/wgbot/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProvisionsPeerAndJob(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedPending(t, "alice_1", 1, "30_days")

	require.NoError(t, e.life.Create(ctx, "alice_1"))

	sub := e.get(t, "alice_1")
	assert.Equal(t, models.StatusActive, sub.Status)
	require.NotNil(t, sub.PeerRef)
	require.NotNil(t, sub.ScheduleRef)
	assert.Equal(t, "alice_1", e.cp.peers[*sub.PeerRef])

	job, ok := e.cp.jobs[*sub.ScheduleRef]
	require.True(t, ok)
	assert.Equal(t, *sub.PeerRef, job.peerRef)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), sub.ExpiresAt, time.Minute)
	assert.WithinDuration(t, sub.ExpiresAt, job.expiresAt, time.Second)
}

func TestCreateUnknownPeer(t *testing.T) {
	e := newEnv(t)
	err := e.life.Create(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownSubscription)
}

func TestCreateJobFailureKeepsPeer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedPending(t, "alice_1", 1, "14_days")
	e.cp.jobErr = transientErr("savePeerScheduleJob")

	require.NoError(t, e.life.Create(ctx, "alice_1"))

	sub := e.get(t, "alice_1")
	assert.Equal(t, models.StatusActive, sub.Status)
	require.NotNil(t, sub.PeerRef)
	assert.Nil(t, sub.ScheduleRef)
	assert.Len(t, e.cp.peers, 1)
}

func TestCreatePeerFailureFails(t *testing.T) {
	e := newEnv(t)
	e.seedPending(t, "alice_1", 1, "14_days")
	e.cp.createErr = &RemoteError{Op: "addPeers", StatusCode: 400, Err: assert.AnError}

	err := e.life.Create(context.Background(), "alice_1")
	require.Error(t, err)
	assert.Equal(t, models.StatusPendingPayment, e.get(t, "alice_1").Status)
}

func TestCreateRetryReusesExistingRemotePeer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedPending(t, "alice_1", 1, "14_days")

	// The peer already exists remotely from a create whose response was lost.
	ref, err := e.cp.CreatePeer(ctx, "alice_1")
	require.NoError(t, err)
	calls := e.cp.createCalls

	require.NoError(t, e.life.Create(ctx, "alice_1"))

	sub := e.get(t, "alice_1")
	require.NotNil(t, sub.PeerRef)
	assert.Equal(t, ref, *sub.PeerRef)
	assert.Equal(t, calls, e.cp.createCalls)
}

func TestRenewActiveIsAdditive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	prevExpiry := time.Now().Add(10 * 24 * time.Hour).Truncate(time.Second)
	e.seedActive(t, "alice_1", 1, "30_days", prevExpiry)

	require.NoError(t, e.life.Renew(ctx, "alice_1"))

	sub := e.get(t, "alice_1")
	assert.Equal(t, models.StatusActive, sub.Status)
	assert.WithinDuration(t, prevExpiry.Add(30*24*time.Hour), sub.ExpiresAt, time.Second)

	job := e.cp.jobs["job-alice_1"]
	assert.WithinDuration(t, prevExpiry.Add(30*24*time.Hour), job.expiresAt, time.Second)
}

func TestRenewGraceReturnsToActive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	prevExpiry := time.Now().Add(12 * time.Hour).Truncate(time.Second)
	e.seedActive(t, "alice_1", 1, "14_days", prevExpiry)
	applied, err := e.subs.MarkGrace(ctx, "alice_1", prevExpiry)
	require.NoError(t, err)
	require.True(t, applied)

	require.NoError(t, e.life.Renew(ctx, "alice_1"))

	sub := e.get(t, "alice_1")
	assert.Equal(t, models.StatusActive, sub.Status)
	assert.False(t, sub.PreExpiryNotified)
	assert.WithinDuration(t, prevExpiry.Add(14*24*time.Hour), sub.ExpiresAt, time.Second)
}

func TestRenewRevokedReprovisions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	expired := time.Now().Add(-time.Hour).Truncate(time.Second)
	e.seedActive(t, "alice_1", 1, "30_days", expired)

	applied, err := e.subs.MarkExpired(ctx, "alice_1", expired)
	require.NoError(t, err)
	require.True(t, applied)
	require.NoError(t, e.life.Revoke(ctx, "alice_1"))
	require.Equal(t, models.StatusRevoked, e.get(t, "alice_1").Status)

	require.NoError(t, e.life.Renew(ctx, "alice_1"))

	sub := e.get(t, "alice_1")
	assert.Equal(t, models.StatusActive, sub.Status)
	require.NotNil(t, sub.PeerRef)
	assert.Equal(t, "alice_1", e.cp.peers[*sub.PeerRef])
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), sub.ExpiresAt, time.Minute)
	assert.False(t, sub.PreExpiryNotified)
	assert.False(t, sub.PostExpiryNotified)
}

func TestRenewPendingIsConflict(t *testing.T) {
	e := newEnv(t)
	e.seedPending(t, "alice_1", 1, "30_days")
	err := e.life.Renew(context.Background(), "alice_1")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRevokeDeletesJobThenPeer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	expired := time.Now().Add(-time.Minute).Truncate(time.Second)
	e.seedActive(t, "alice_1", 1, "30_days", expired)
	applied, err := e.subs.MarkExpired(ctx, "alice_1", expired)
	require.NoError(t, err)
	require.True(t, applied)

	require.NoError(t, e.life.Revoke(ctx, "alice_1"))

	sub := e.get(t, "alice_1")
	assert.Equal(t, models.StatusRevoked, sub.Status)
	assert.Nil(t, sub.PeerRef)
	assert.Nil(t, sub.ScheduleRef)
	assert.Empty(t, e.cp.peers)
	assert.Empty(t, e.cp.jobs)

	// Second revoke is a no-op success.
	require.NoError(t, e.life.Revoke(ctx, "alice_1"))
}

func TestRevokeToleratesRemoteAlreadyGone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	expired := time.Now().Add(-time.Minute).Truncate(time.Second)
	sub := e.seedActive(t, "alice_1", 1, "30_days", expired)
	applied, err := e.subs.MarkExpired(ctx, "alice_1", expired)
	require.NoError(t, err)
	require.True(t, applied)

	// Operator deleted the peer by hand.
	require.NoError(t, e.cp.DeletePeer(ctx, *sub.PeerRef))

	require.NoError(t, e.life.Revoke(ctx, "alice_1"))
	assert.Equal(t, models.StatusRevoked, e.get(t, "alice_1").Status)
}

func TestFetchConfigStatusGate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.seedPending(t, "pending_1", 1, "30_days")
	_, err := e.life.FetchConfig(ctx, "pending_1")
	assert.ErrorIs(t, err, ErrNotProvisioned)

	expiry := time.Now().Add(12 * time.Hour).Truncate(time.Second)
	e.seedActive(t, "alice_2", 2, "14_days", expiry)
	blob, err := e.life.FetchConfig(ctx, "alice_2")
	require.NoError(t, err)
	assert.Contains(t, string(blob), "[Interface]")

	// Grace rows can still download.
	applied, err := e.subs.MarkGrace(ctx, "alice_2", expiry)
	require.NoError(t, err)
	require.True(t, applied)
	_, err = e.life.FetchConfig(ctx, "alice_2")
	assert.NoError(t, err)
}

func TestEnsureScheduledInstallsMissingJob(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedPending(t, "alice_1", 1, "14_days")
	e.cp.jobErr = transientErr("savePeerScheduleJob")
	require.NoError(t, e.life.Create(ctx, "alice_1"))
	e.cp.jobErr = nil

	sub := e.get(t, "alice_1")
	require.Nil(t, sub.ScheduleRef)

	require.NoError(t, e.life.EnsureScheduled(ctx, sub))

	sub = e.get(t, "alice_1")
	require.NotNil(t, sub.ScheduleRef)
	job, ok := e.cp.jobs[*sub.ScheduleRef]
	require.True(t, ok)
	assert.Equal(t, *sub.PeerRef, job.peerRef)
}

func TestReconcileStartupRecreatesVanishedPeer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	expiry := time.Now().Add(5 * 24 * time.Hour).Truncate(time.Second)
	sub := e.seedActive(t, "alice_1", 1, "30_days", expiry)
	oldRef := *sub.PeerRef

	// Server reinstall wiped the peer.
	require.NoError(t, e.cp.DeletePeer(ctx, oldRef))

	require.NoError(t, e.life.ReconcileStartup(ctx))

	got := e.get(t, "alice_1")
	require.NotNil(t, got.PeerRef)
	assert.NotEqual(t, oldRef, *got.PeerRef)
	assert.Equal(t, "alice_1", e.cp.peers[*got.PeerRef])
	// Same name, same expiry, only the refs changed.
	assert.WithinDuration(t, expiry, got.ExpiresAt, time.Second)
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestReconcileStartupLeavesHealthyRowsAlone(t *testing.T) {
	e := newEnv(t)
	expiry := time.Now().Add(5 * 24 * time.Hour).Truncate(time.Second)
	sub := e.seedActive(t, "alice_1", 1, "30_days", expiry)
	ref := *sub.PeerRef

	require.NoError(t, e.life.ReconcileStartup(context.Background()))

	got := e.get(t, "alice_1")
	require.NotNil(t, got.PeerRef)
	assert.Equal(t, ref, *got.PeerRef)
}
