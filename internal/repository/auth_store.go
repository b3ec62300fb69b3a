package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/vault-blog/internal/model"
	"github.com/iliyamo/vault-blog/internal/vault"
)

// Vault descriptors for the user entity. The credentials satellite
// carries the password hash produced by the opaque one-way verifier;
// the store never sees plain passwords.
var (
	hubUser = vault.Hub{
		Table:       "hub_user",
		KeyCol:      "user_hash_key",
		NaturalCols: []string{"username"},
	}
	satUserAuth = vault.Satellite{
		Table:       "sat_user_auth",
		KeyCol:      "user_hash_key",
		PayloadCols: []string{"password"},
	}
)

// AuthStore persists user identities and their credential history.
type AuthStore struct {
	vault *vault.Store
}

func NewAuthStore(v *vault.Store) *AuthStore { return &AuthStore{vault: v} }

// Register creates the user hub and its first credential version in one
// transaction. A taken username yields vault.ErrAlreadyExists; the hub
// row is written exactly once per username.
func (s *AuthStore) Register(ctx context.Context, username, passwordHash string) (model.User, error) {
	now := vault.Now()
	var user model.User
	err := s.vault.WithTx(ctx, func(tx *sql.Tx) error {
		hub, err := vault.InsertHub(ctx, tx, hubUser, now, username)
		if err != nil {
			return err
		}
		if _, err := vault.AppendSatellite(ctx, tx, satUserAuth, hub.HashKey, now, passwordHash); err != nil {
			return err
		}
		user = model.User{HashKey: hub.HashKey, Username: username, Created: now}
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

// Credentials resolves a username to its user view and the currently
// valid password hash. A username with no hub is vault.ErrNotFound; a
// hub without any credential version is incompletely created and
// surfaces as vault.ErrNoLineage.
func (s *AuthStore) Credentials(ctx context.Context, username string) (model.User, string, error) {
	hub, err := vault.HubByNaturalKey(ctx, s.vault.DB(), hubUser, username)
	if err != nil {
		return model.User{}, "", err
	}
	cur, err := vault.CurrentSatellite(ctx, s.vault.DB(), satUserAuth, hub.HashKey)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			return model.User{}, "", fmt.Errorf("user %q: %w", username, vault.ErrNoLineage)
		}
		return model.User{}, "", err
	}
	return model.User{HashKey: hub.HashKey, Username: username, Created: hub.Created}, cur.Payload[0], nil
}

// ByHashKey loads the user view for a surrogate key.
func (s *AuthStore) ByHashKey(ctx context.Context, hashKey string) (model.User, error) {
	hub, err := vault.HubByHashKey(ctx, s.vault.DB(), hubUser, hashKey)
	if err != nil {
		return model.User{}, err
	}
	return model.User{HashKey: hub.HashKey, Username: hub.Natural[0], Created: hub.Created}, nil
}

// CurrentPasswordHash returns the open credential version for a user.
func (s *AuthStore) CurrentPasswordHash(ctx context.Context, hashKey string) (string, error) {
	cur, err := vault.CurrentSatellite(ctx, s.vault.DB(), satUserAuth, hashKey)
	if err != nil {
		return "", err
	}
	return cur.Payload[0], nil
}

// ChangePassword supersedes the current credential version: the old
// hash is closed, the new one opened, and both remain in history.
func (s *AuthStore) ChangePassword(ctx context.Context, hashKey, newPasswordHash string) error {
	_, err := s.vault.Revise(ctx, satUserAuth, hashKey, vault.Now(), newPasswordHash)
	return err
}

// CredentialHistory returns every credential version for a user, most
// recent first.
func (s *AuthStore) CredentialHistory(ctx context.Context, hashKey string) ([]vault.SatelliteRecord, error) {
	return vault.SatelliteHistory(ctx, s.vault.DB(), satUserAuth, hashKey)
}
