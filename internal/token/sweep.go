package token

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/comanda-hq/comanda-sync/internal/platform/cache"
	"github.com/comanda-hq/comanda-sync/internal/provider"
	"github.com/comanda-hq/comanda-sync/internal/store"
)

// POS session tokens carry no expiry in the login response; sessions are
// assumed valid for a week and re-login runs well before that.
const posSessionTTL = 7 * 24 * time.Hour

const sweepConcurrency = 4

// SessionRepo is the slice of the store repository the sweeps need.
type SessionRepo interface {
	ListExpiring(ctx context.Context, provider string, within time.Duration) ([]store.StoreSession, error)
	UpdateSessionToken(ctx context.Context, storeID int64, accessToken, refreshToken string, expiresAt time.Time) error
}

// Refresher performs OAuth refresh grants.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*provider.TokenPair, error)
}

// POSLogin performs full credential logins.
type POSLogin interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// CredentialOpener unseals stored credentials.
type CredentialOpener interface {
	OpenCredentials(sealed []byte) (store.Credentials, error)
}

// Sweeper renews provider sessions nearing expiry. One store's failure is
// logged and never aborts the sweep for the others.
type Sweeper struct {
	repo          SessionRepo
	oauth         Refresher
	pos           POSLogin
	creds         CredentialOpener
	cache         *cache.TokenCache
	logger        *slog.Logger
	refreshWithin time.Duration
	reloginWithin time.Duration
}

// Config groups sweep dependencies.
type Config struct {
	Repo          SessionRepo
	OAuth         Refresher
	POS           POSLogin
	Credentials   CredentialOpener
	Cache         *cache.TokenCache
	Logger        *slog.Logger
	RefreshWithin time.Duration
	ReloginWithin time.Duration
}

// NewSweeper builds a Sweeper.
func NewSweeper(cfg Config) *Sweeper {
	refreshWithin := cfg.RefreshWithin
	if refreshWithin <= 0 {
		refreshWithin = 24 * time.Hour
	}
	reloginWithin := cfg.ReloginWithin
	if reloginWithin <= 0 {
		reloginWithin = 72 * time.Hour
	}
	return &Sweeper{
		repo:          cfg.Repo,
		oauth:         cfg.OAuth,
		pos:           cfg.POS,
		creds:         cfg.Credentials,
		cache:         cfg.Cache,
		logger:        cfg.Logger,
		refreshWithin: refreshWithin,
		reloginWithin: reloginWithin,
	}
}

// RefreshMarketplace refreshes marketplace sessions expiring within the
// short horizon using their refresh tokens.
func (s *Sweeper) RefreshMarketplace(ctx context.Context) error {
	items, err := s.repo.ListExpiring(ctx, store.ProviderMarketplace, s.refreshWithin)
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(sweepConcurrency)
	for _, item := range items {
		item := item
		g.Go(func() error {
			s.refreshOne(ctx, item)
			return nil
		})
	}
	return g.Wait()
}

func (s *Sweeper) refreshOne(ctx context.Context, item store.StoreSession) {
	pair, err := s.oauth.Refresh(ctx, item.Session.RefreshToken)
	if err != nil {
		s.logger.Error("token refresh failed",
			slog.Int64("tenant_id", item.Store.TenantID),
			slog.Int64("store_id", item.Store.ID),
			slog.Any("error", err))
		return
	}
	expiresAt := pair.ExpiresAt(time.Now().UTC())
	if err := s.repo.UpdateSessionToken(ctx, item.Store.ID, pair.AccessToken, pair.RefreshToken, expiresAt); err != nil {
		s.logger.Error("token refresh persist failed",
			slog.Int64("store_id", item.Store.ID),
			slog.Any("error", err))
		return
	}
	_ = s.cache.Put(ctx, item.Store.TenantID, item.Store.ID, pair.AccessToken, expiresAt)
	s.logger.Info("token refreshed",
		slog.Int64("tenant_id", item.Store.TenantID),
		slog.Int64("store_id", item.Store.ID),
		slog.Time("expires_at", expiresAt))
}

// ReloginPOS re-authenticates POS sessions expiring within the long horizon.
// Stores connected without saved credentials only get a warning: the
// operator must reconnect manually.
func (s *Sweeper) ReloginPOS(ctx context.Context) error {
	items, err := s.repo.ListExpiring(ctx, store.ProviderPOS, s.reloginWithin)
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(sweepConcurrency)
	for _, item := range items {
		item := item
		g.Go(func() error {
			s.reloginOne(ctx, item)
			return nil
		})
	}
	return g.Wait()
}

func (s *Sweeper) reloginOne(ctx context.Context, item store.StoreSession) {
	if len(item.Session.Credentials) == 0 {
		s.logger.Warn("manual reconnection required",
			slog.Int64("tenant_id", item.Store.TenantID),
			slog.Int64("store_id", item.Store.ID),
			slog.Time("expires_at", item.Session.ExpiresAt))
		return
	}
	creds, err := s.creds.OpenCredentials(item.Session.Credentials)
	if err != nil {
		s.logger.Error("credential unseal failed",
			slog.Int64("store_id", item.Store.ID),
			slog.Any("error", err))
		return
	}
	token, err := s.pos.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		s.logger.Error("pos re-login failed",
			slog.Int64("tenant_id", item.Store.TenantID),
			slog.Int64("store_id", item.Store.ID),
			slog.Any("error", err))
		return
	}
	expiresAt := time.Now().UTC().Add(posSessionTTL)
	if err := s.repo.UpdateSessionToken(ctx, item.Store.ID, token, "", expiresAt); err != nil {
		s.logger.Error("pos re-login persist failed",
			slog.Int64("store_id", item.Store.ID),
			slog.Any("error", err))
		return
	}
	_ = s.cache.Put(ctx, item.Store.TenantID, item.Store.ID, token, expiresAt)
	s.logger.Info("pos session renewed",
		slog.Int64("tenant_id", item.Store.TenantID),
		slog.Int64("store_id", item.Store.ID))
}
