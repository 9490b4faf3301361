package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comanda-hq/comanda-sync/internal/shared"
)

type fakeRepo struct {
	created     []Store
	sessions    []Session
	deactivated []int64
	setActive   map[int64]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{setActive: make(map[int64]bool)}
}

func (r *fakeRepo) Get(ctx context.Context, tenantID, storeID int64) (Store, error) {
	return Store{}, shared.ErrNotFound
}

func (r *fakeRepo) ListActive(ctx context.Context, provider string) ([]Store, error) {
	return nil, nil
}

func (r *fakeRepo) Create(ctx context.Context, s Store, sess Session) (int64, error) {
	r.created = append(r.created, s)
	r.sessions = append(r.sessions, sess)
	return int64(len(r.created)), nil
}

func (r *fakeRepo) GetSession(ctx context.Context, storeID int64) (Session, error) {
	return Session{}, shared.ErrNotFound
}

func (r *fakeRepo) ListExpiring(ctx context.Context, provider string, within time.Duration) ([]StoreSession, error) {
	return nil, nil
}

func (r *fakeRepo) UpdateSessionToken(ctx context.Context, storeID int64, accessToken, refreshToken string, expiresAt time.Time) error {
	return nil
}

func (r *fakeRepo) SetActive(ctx context.Context, tenantID, storeID int64, active bool) error {
	r.setActive[storeID] = active
	if !active {
		r.deactivated = append(r.deactivated, storeID)
	}
	return nil
}

func (r *fakeRepo) UpdateMetadata(ctx context.Context, tenantID, storeID int64, name, status string) error {
	return nil
}

type recordingInvalidator struct {
	calls [][2]int64
}

func (i *recordingInvalidator) Invalidate(ctx context.Context, tenantID, storeID int64) error {
	i.calls = append(i.calls, [2]int64{tenantID, storeID})
	return nil
}

func TestDeactivateDropsCachedToken(t *testing.T) {
	repo := newFakeRepo()
	tokens := &recordingInvalidator{}
	s := NewService(repo, [32]byte{}, tokens, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := s.Deactivate(context.Background(), 3, 7, "provider authentication failed")
	require.NoError(t, err)
	require.Equal(t, []int64{7}, repo.deactivated)
	require.Equal(t, [][2]int64{{3, 7}}, tokens.calls)
}

func TestDeactivateWithoutTokenCache(t *testing.T) {
	repo := newFakeRepo()
	s := NewService(repo, [32]byte{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, s.Deactivate(context.Background(), 3, 7, "manual"))
	require.Equal(t, []int64{7}, repo.deactivated)
}

func TestConnectSealsCredentials(t *testing.T) {
	repo := newFakeRepo()
	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	s := NewService(repo, key, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	id, err := s.Connect(context.Background(), ConnectInput{
		TenantID:        3,
		Provider:        ProviderMarketplace,
		ExternalStoreID: "ext-7",
		Name:            "Pizzaria Centro",
		AccessToken:     "tok",
		ExpiresAt:       time.Now().Add(time.Hour),
		Credentials:     &Credentials{Email: "operator@example.com", Password: "secret"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
	require.NotEmpty(t, repo.sessions[0].Credentials)

	creds, err := s.OpenCredentials(repo.sessions[0].Credentials)
	require.NoError(t, err)
	require.Equal(t, "operator@example.com", creds.Email)
	require.Equal(t, "secret", creds.Password)
}
