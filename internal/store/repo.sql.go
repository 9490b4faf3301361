package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comanda-hq/comanda-sync/internal/platform/db"
	"github.com/comanda-hq/comanda-sync/internal/shared"
)

// ErrStoreExists indicates a duplicate (tenant, provider, external id) connect.
var ErrStoreExists = errors.New("store: already connected")

// Repository persists stores and provider sessions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, tenantID, storeID int64) (Store, error) {
	var s Store
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, provider, external_store_id, name, status, active, created_at, updated_at
FROM stores WHERE tenant_id=$1 AND id=$2`, tenantID, storeID).
		Scan(&s.ID, &s.TenantID, &s.Provider, &s.ExternalStoreID, &s.Name, &s.Status, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Store{}, shared.ErrNotFound
		}
		return Store{}, err
	}
	return s, nil
}

func (r *Repository) ListActive(ctx context.Context, provider string) ([]Store, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, provider, external_store_id, name, status, active, created_at, updated_at
FROM stores WHERE provider=$1 AND active ORDER BY tenant_id, id`, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stores []Store
	for rows.Next() {
		var s Store
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Provider, &s.ExternalStoreID, &s.Name, &s.Status, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

// Create inserts a store with its initial session in one transaction.
func (r *Repository) Create(ctx context.Context, s Store, sess Session) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO stores (tenant_id, provider, external_store_id, name, status, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,TRUE,NOW(),NOW()) RETURNING id`,
			s.TenantID, s.Provider, s.ExternalStoreID, s.Name, s.Status).Scan(&id)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrStoreExists
			}
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO provider_sessions (store_id, access_token, refresh_token, expires_at, credentials, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())`, id, sess.AccessToken, sess.RefreshToken, sess.ExpiresAt, sess.Credentials)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Repository) GetSession(ctx context.Context, storeID int64) (Session, error) {
	var sess Session
	err := r.pool.QueryRow(ctx, `SELECT id, store_id, access_token, refresh_token, expires_at, credentials, updated_at
FROM provider_sessions WHERE store_id=$1`, storeID).
		Scan(&sess.ID, &sess.StoreID, &sess.AccessToken, &sess.RefreshToken, &sess.ExpiresAt, &sess.Credentials, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, shared.ErrNotFound
		}
		return Session{}, err
	}
	return sess, nil
}

// ListExpiring returns active stores of a provider whose session expires
// within the horizon.
func (r *Repository) ListExpiring(ctx context.Context, provider string, within time.Duration) ([]StoreSession, error) {
	rows, err := r.pool.Query(ctx, `SELECT s.id, s.tenant_id, s.provider, s.external_store_id, s.name, s.status, s.active, s.created_at, s.updated_at,
       ps.id, ps.store_id, ps.access_token, ps.refresh_token, ps.expires_at, ps.credentials, ps.updated_at
FROM stores s
JOIN provider_sessions ps ON ps.store_id = s.id
WHERE s.provider=$1 AND s.active AND ps.expires_at <= NOW() + $2::interval
ORDER BY ps.expires_at ASC`, provider, within.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StoreSession
	for rows.Next() {
		var item StoreSession
		if err := rows.Scan(
			&item.Store.ID, &item.Store.TenantID, &item.Store.Provider, &item.Store.ExternalStoreID, &item.Store.Name, &item.Store.Status, &item.Store.Active, &item.Store.CreatedAt, &item.Store.UpdatedAt,
			&item.Session.ID, &item.Session.StoreID, &item.Session.AccessToken, &item.Session.RefreshToken, &item.Session.ExpiresAt, &item.Session.Credentials, &item.Session.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// UpdateSessionToken replaces the session tokens after a refresh or re-login.
func (r *Repository) UpdateSessionToken(ctx context.Context, storeID int64, accessToken, refreshToken string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE provider_sessions
SET access_token=$2, refresh_token=COALESCE(NULLIF($3,''), refresh_token), expires_at=$4, updated_at=NOW()
WHERE store_id=$1`, storeID, accessToken, refreshToken, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetActive toggles the store's active flag.
func (r *Repository) SetActive(ctx context.Context, tenantID, storeID int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stores SET active=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, storeID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateMetadata refreshes display name and provider-reported status.
func (r *Repository) UpdateMetadata(ctx context.Context, tenantID, storeID int64, name, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stores SET name=$3, status=$4, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, storeID, name, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
