package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RepositoryPort abstracts repository usage for service and sweep code.
type RepositoryPort interface {
	Get(ctx context.Context, tenantID, storeID int64) (Store, error)
	ListActive(ctx context.Context, provider string) ([]Store, error)
	Create(ctx context.Context, s Store, sess Session) (int64, error)
	GetSession(ctx context.Context, storeID int64) (Session, error)
	ListExpiring(ctx context.Context, provider string, within time.Duration) ([]StoreSession, error)
	UpdateSessionToken(ctx context.Context, storeID int64, accessToken, refreshToken string, expiresAt time.Time) error
	SetActive(ctx context.Context, tenantID, storeID int64, active bool) error
	UpdateMetadata(ctx context.Context, tenantID, storeID int64, name, status string) error
}

// TokenInvalidator drops a store's cached provider token.
type TokenInvalidator interface {
	Invalidate(ctx context.Context, tenantID, storeID int64) error
}

// Service manages store connections.
type Service struct {
	repo          RepositoryPort
	credentialKey [32]byte
	tokens        TokenInvalidator
	logger        *slog.Logger
}

// NewService builds Service. tokens may be nil when no token cache is wired.
func NewService(repo RepositoryPort, credentialKey [32]byte, tokens TokenInvalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, credentialKey: credentialKey, tokens: tokens, logger: logger}
}

// ConnectInput carries everything needed to connect a store.
type ConnectInput struct {
	TenantID        int64
	Provider        string
	ExternalStoreID string
	Name            string
	AccessToken     string
	RefreshToken    string
	ExpiresAt       time.Time
	// Credentials are optional; when present they are sealed and stored so
	// the token sweep can re-login on behalf of the operator.
	Credentials *Credentials
}

// Connect registers a store and its initial provider session.
func (s *Service) Connect(ctx context.Context, input ConnectInput) (int64, error) {
	if input.TenantID == 0 || input.ExternalStoreID == "" {
		return 0, errors.New("store: tenant and external store id required")
	}
	if input.Provider != ProviderMarketplace && input.Provider != ProviderPOS {
		return 0, fmt.Errorf("store: unknown provider %q", input.Provider)
	}
	if input.AccessToken == "" {
		return 0, errors.New("store: access token required")
	}

	var sealed []byte
	if input.Credentials != nil {
		var err error
		sealed, err = SealCredentials(s.credentialKey, *input.Credentials)
		if err != nil {
			return 0, fmt.Errorf("store: seal credentials: %w", err)
		}
	}

	id, err := s.repo.Create(ctx, Store{
		TenantID:        input.TenantID,
		Provider:        input.Provider,
		ExternalStoreID: input.ExternalStoreID,
		Name:            input.Name,
	}, Session{
		AccessToken:  input.AccessToken,
		RefreshToken: input.RefreshToken,
		ExpiresAt:    input.ExpiresAt,
		Credentials:  sealed,
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("store connected",
		slog.Int64("tenant_id", input.TenantID),
		slog.Int64("store_id", id),
		slog.String("provider", input.Provider))
	return id, nil
}

// Deactivate marks a store inactive, stopping further sync attempts until it
// is reconnected manually.
func (s *Service) Deactivate(ctx context.Context, tenantID, storeID int64, reason string) error {
	if err := s.repo.SetActive(ctx, tenantID, storeID, false); err != nil {
		return err
	}
	// The cached token belongs to the dead session; the next pass must not
	// pick it up.
	if s.tokens != nil {
		if err := s.tokens.Invalidate(ctx, tenantID, storeID); err != nil {
			s.logger.Warn("token cache invalidation failed",
				slog.Int64("store_id", storeID),
				slog.Any("error", err))
		}
	}
	s.logger.Warn("store deactivated",
		slog.Int64("tenant_id", tenantID),
		slog.Int64("store_id", storeID),
		slog.String("reason", reason))
	return nil
}

// OpenCredentials unseals a session's stored credentials.
func (s *Service) OpenCredentials(sealed []byte) (Credentials, error) {
	return OpenCredentials(s.credentialKey, sealed)
}
