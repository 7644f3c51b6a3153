package core

import "context"

// Durable storage keys shared by the auth store and the API client.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
	AuthSnapshotKey = "auth-storage"
)

type (
	// Storage is a durable string key/value store scoped to one client (a browser session, a CLI user...).
	// GetItem returns ErrNotFound when the key holds no value.
	Storage interface {
		GetItem(ctx context.Context, key string) (string, error)
		SetItem(ctx context.Context, key, value string) error
		RemoveItem(ctx context.Context, key string) error
	}

	// Tokens is the pair issued by the auth endpoints.
	Tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type,omitempty"`
	}
)

// StoreTokens persists both tokens.
func StoreTokens(ctx context.Context, s Storage, tokens Tokens) error {
	if err := s.SetItem(ctx, AccessTokenKey, tokens.AccessToken); err != nil {
		return err
	}
	return s.SetItem(ctx, RefreshTokenKey, tokens.RefreshToken)
}

// ClearTokens removes both tokens, attempting both even if the first removal fails.
func ClearTokens(ctx context.Context, s Storage) error {
	err := s.RemoveItem(ctx, AccessTokenKey)
	if rErr := s.RemoveItem(ctx, RefreshTokenKey); err == nil {
		err = rErr
	}
	return err
}

// GetToken returns the stored token under key, or "" if there is none.
func GetToken(ctx context.Context, s Storage, key string) (string, error) {
	tok, err := s.GetItem(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return tok, nil
}

// StorageProvider hands out the Storage of one client, identified by namespace (e.g. a session id).
type StorageProvider interface {
	Storage(namespace string) Storage
}
