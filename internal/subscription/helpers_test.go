package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alexnikon/wgbot/internal/database"
	"github.com/alexnikon/wgbot/internal/database/models"
	"github.com/alexnikon/wgbot/internal/database/repositories"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fakeJob struct {
	peerRef   string
	expiresAt time.Time
}

// fakeControlPlane is an in-memory WGDashboard: peers and jobs in maps, with
// injectable failures per operation.
type fakeControlPlane struct {
	mu     sync.Mutex
	nextID int
	peers  map[string]string // ref -> display name
	jobs   map[string]fakeJob

	createErr    error
	jobErr       error
	deleteErr    error
	downloadErr  error
	createCalls  int
	saveJobCalls int
}

func newFakeControlPlane() *fakeControlPlane {
	return &fakeControlPlane{
		peers: make(map[string]string),
		jobs:  make(map[string]fakeJob),
	}
}

func transientErr(op string) error {
	return &RemoteError{Op: op, Transient: true, Err: errors.New("unreachable")}
}

func (f *fakeControlPlane) CreatePeer(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	ref := fmt.Sprintf("pk-%d", f.nextID)
	f.peers[ref] = name
	return ref, nil
}

func (f *fakeControlPlane) PeerByName(ctx context.Context, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ref, n := range f.peers {
		if n == name {
			return ref, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeControlPlane) DeletePeer(ctx context.Context, peerRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.peers, peerRef)
	return nil
}

func (f *fakeControlPlane) PeerExists(ctx context.Context, peerRef string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.peers[peerRef]
	return ok, nil
}

func (f *fakeControlPlane) PeerConfig(ctx context.Context, peerRef string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	if _, ok := f.peers[peerRef]; !ok {
		return nil, fmt.Errorf("%w: unknown peer", ErrRemoteRejected)
	}
	return []byte("[Interface]\n# " + peerRef), nil
}

func (f *fakeControlPlane) SaveExpiryJob(ctx context.Context, jobID, peerRef string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveJobCalls++
	if f.jobErr != nil {
		return f.jobErr
	}
	f.jobs[jobID] = fakeJob{peerRef: peerRef, expiresAt: expiresAt}
	return nil
}

func (f *fakeControlPlane) DeleteExpiryJob(ctx context.Context, jobID, peerRef string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.jobs, jobID)
	return nil
}

type note struct {
	ownerID  int64
	kind     string
	peerName string
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []note
	err   error
}

func (f *fakeNotifier) Notify(ctx context.Context, ownerID int64, kind, peerName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.notes = append(f.notes, note{ownerID: ownerID, kind: kind, peerName: peerName})
	return nil
}

func (f *fakeNotifier) byKind(kind string) []note {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []note
	for _, n := range f.notes {
		if n.kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// listPrices pays the catalog price untouched.
type listPrices struct{}

func (listPrices) ResolvePrice(ownerID int64, tariff Tariff, currency Currency) int64 {
	return tariff.Price(currency)
}

type env struct {
	subs     *repositories.SubscriptionRepository
	payments *repositories.PaymentRepository
	cp       *fakeControlPlane
	life     *Lifecycle
	rec      *Reconciler
	notes    *fakeNotifier
	sweeper  *Sweeper
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.InitDB(filepath.Join(t.TempDir(), "wgbot.db"))
	require.NoError(t, err)

	log := testLogger()
	subs := repositories.NewSubscriptionRepository(db)
	payments := repositories.NewPaymentRepository(db)
	cp := newFakeControlPlane()
	life := NewLifecycle(subs, cp, log)
	rec := NewReconciler(subs, payments, listPrices{}, life, log)
	notes := &fakeNotifier{}
	sweeper := NewSweeper(subs, payments, life, rec, notes, log,
		5*time.Minute, 24*time.Hour, time.Hour)

	return &env{subs: subs, payments: payments, cp: cp, life: life, rec: rec, notes: notes, sweeper: sweeper}
}

func (e *env) seedPending(t *testing.T, peerName string, ownerID int64, tariff string) {
	t.Helper()
	require.NoError(t, e.subs.Create(context.Background(), &models.Subscription{
		PeerName: peerName,
		OwnerID:  ownerID,
		Tariff:   tariff,
		Status:   models.StatusPendingPayment,
	}))
}

// seedActive provisions a live row backed by a real fake peer and job.
func (e *env) seedActive(t *testing.T, peerName string, ownerID int64, tariff string, expiresAt time.Time) *models.Subscription {
	t.Helper()
	ctx := context.Background()

	ref, err := e.cp.CreatePeer(ctx, peerName)
	require.NoError(t, err)
	jobID := "job-" + peerName
	require.NoError(t, e.cp.SaveExpiryJob(ctx, jobID, ref, expiresAt))

	require.NoError(t, e.subs.Create(ctx, &models.Subscription{
		PeerName:    peerName,
		OwnerID:     ownerID,
		Tariff:      tariff,
		Status:      models.StatusActive,
		PeerRef:     &ref,
		ScheduleRef: &jobID,
		ExpiresAt:   expiresAt,
	}))

	sub, err := e.subs.GetByPeerName(ctx, peerName)
	require.NoError(t, err)
	return sub
}

func (e *env) get(t *testing.T, peerName string) *models.Subscription {
	t.Helper()
	sub, err := e.subs.GetByPeerName(context.Background(), peerName)
	require.NoError(t, err)
	return sub
}
