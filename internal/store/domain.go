package store

import "time"

// Provider identifiers. The marketplace provider uses OAuth refresh tokens;
// the POS provider only supports full credential logins.
const (
	ProviderMarketplace = "marketplace"
	ProviderPOS         = "pos"
)

// Store is one connected sales channel of a tenant.
type Store struct {
	ID              int64
	TenantID        int64
	Provider        string
	ExternalStoreID string
	Name            string
	Status          string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Session holds the provider session tokens of a store. Credentials is the
// sealed login secret saved at connect time for providers without a
// refresh-token flow; empty means the operator opted out.
type Session struct {
	ID           int64
	StoreID      int64
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Credentials  []byte
	UpdatedAt    time.Time
}

// StoreSession pairs a store with its current session for sweep jobs.
type StoreSession struct {
	Store   Store
	Session Session
}

// Credentials is the plaintext login secret sealed into Session.Credentials.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
