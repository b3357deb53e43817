package hue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Credential is a username a bridge issued to this application.
type Credential struct {
	BridgeID  string
	Host      string
	Username  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CredentialStore persists bridge usernames across restarts.
type CredentialStore interface {
	// Get returns the credential for bridgeID or ErrCredentialNotFound.
	Get(ctx context.Context, bridgeID string) (Credential, error)

	// Save inserts or replaces the credential for cred.BridgeID.
	Save(ctx context.Context, cred Credential) error
}

// SQLiteCredentialStore keeps credentials in the hue_credentials table.
type SQLiteCredentialStore struct {
	db *sql.DB
}

// NewSQLiteCredentialStore creates a store over db.
func NewSQLiteCredentialStore(db *sql.DB) *SQLiteCredentialStore {
	return &SQLiteCredentialStore{db: db}
}

// Get implements CredentialStore.
func (s *SQLiteCredentialStore) Get(ctx context.Context, bridgeID string) (Credential, error) {
	var cred Credential
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT bridge_id, host, username, created_at, updated_at
		 FROM hue_credentials WHERE bridge_id = ?`,
		bridgeID,
	).Scan(&cred.BridgeID, &cred.Host, &cred.Username, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrCredentialNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("querying credential: %w", err)
	}

	cred.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // written by Save
	cred.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // written by Save
	return cred, nil
}

// Save implements CredentialStore.
func (s *SQLiteCredentialStore) Save(ctx context.Context, cred Credential) error {
	if cred.BridgeID == "" || cred.Username == "" {
		return fmt.Errorf("saving credential: bridge ID and username are required")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hue_credentials (bridge_id, host, username, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (bridge_id) DO UPDATE SET
		     host = excluded.host,
		     username = excluded.username,
		     updated_at = excluded.updated_at`,
		cred.BridgeID, cred.Host, cred.Username, now, now,
	)
	if err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	return nil
}
