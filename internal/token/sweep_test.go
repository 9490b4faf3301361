package token

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comanda-hq/comanda-sync/internal/provider"
	"github.com/comanda-hq/comanda-sync/internal/store"
)

type memorySessionRepo struct {
	mu      sync.Mutex
	items   []store.StoreSession
	updated map[int64]string
	failFor map[int64]error
}

func (r *memorySessionRepo) ListExpiring(ctx context.Context, provider string, within time.Duration) ([]store.StoreSession, error) {
	return r.items, nil
}

func (r *memorySessionRepo) UpdateSessionToken(ctx context.Context, storeID int64, accessToken, refreshToken string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failFor[storeID]; ok {
		return err
	}
	if r.updated == nil {
		r.updated = make(map[int64]string)
	}
	r.updated[storeID] = accessToken
	return nil
}

type fakeRefresher struct {
	mu      sync.Mutex
	failFor map[string]error
	calls   []string
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*provider.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, refreshToken)
	if err, ok := f.failFor[refreshToken]; ok {
		return nil, err
	}
	return &provider.TokenPair{AccessToken: "new-" + refreshToken, RefreshToken: "r-" + refreshToken, ExpiresIn: 3600}, nil
}

type fakePOSLogin struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakePOSLogin) Login(ctx context.Context, email, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "pos-" + email, nil
}

type plainOpener struct{}

func (plainOpener) OpenCredentials(sealed []byte) (store.Credentials, error) {
	return store.Credentials{Email: string(sealed), Password: "pw"}, nil
}

func session(storeID int64, tenantID int64, refresh string, creds []byte) store.StoreSession {
	return store.StoreSession{
		Store:   store.Store{ID: storeID, TenantID: tenantID, Active: true},
		Session: store.Session{StoreID: storeID, RefreshToken: refresh, Credentials: creds, ExpiresAt: time.Now().Add(time.Hour)},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRefreshSweepIsolatesFailures(t *testing.T) {
	repo := &memorySessionRepo{items: []store.StoreSession{
		session(1, 10, "rt-1", nil),
		session(2, 10, "rt-2", nil),
		session(3, 11, "rt-3", nil),
	}}
	oauth := &fakeRefresher{failFor: map[string]error{"rt-2": errors.New("upstream down")}}

	sweeper := NewSweeper(Config{Repo: repo, OAuth: oauth, Logger: testLogger()})
	require.NoError(t, sweeper.RefreshMarketplace(context.Background()))

	require.Len(t, oauth.calls, 3)
	require.Equal(t, "new-rt-1", repo.updated[1])
	require.Equal(t, "new-rt-3", repo.updated[3])
	require.NotContains(t, repo.updated, int64(2))
}

func TestReloginSkipsStoresWithoutCredentials(t *testing.T) {
	repo := &memorySessionRepo{items: []store.StoreSession{
		session(1, 10, "", nil),
		session(2, 10, "", []byte("loja@example.com")),
	}}
	pos := &fakePOSLogin{}

	sweeper := NewSweeper(Config{Repo: repo, POS: pos, Credentials: plainOpener{}, Logger: testLogger()})
	require.NoError(t, sweeper.ReloginPOS(context.Background()))

	require.Equal(t, 1, pos.calls)
	require.Equal(t, "pos-loja@example.com", repo.updated[2])
	require.NotContains(t, repo.updated, int64(1))
}

func TestReloginFailureDoesNotAbortSweep(t *testing.T) {
	repo := &memorySessionRepo{
		items: []store.StoreSession{
			session(1, 10, "", []byte("a@example.com")),
			session(2, 10, "", []byte("b@example.com")),
		},
		failFor: map[int64]error{1: errors.New("db write failed")},
	}
	pos := &fakePOSLogin{}

	sweeper := NewSweeper(Config{Repo: repo, POS: pos, Credentials: plainOpener{}, Logger: testLogger()})
	require.NoError(t, sweeper.ReloginPOS(context.Background()))

	require.Equal(t, 2, pos.calls)
	require.Contains(t, repo.updated, int64(2))
}
