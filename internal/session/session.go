// Package session binds a live access token to its user and paired refresh
// token in a TTL'd key-value store. Entries expire with the access token;
// absence always means "not logged in", never a fatal inconsistency.
package session

import (
	"context"
	"time"
)

// Data is the value stored under the access-token key.
type Data struct {
	UserID       string `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
}

// Store is the KV contract the authentication flow composes with.
type Store interface {
	// Put upserts the entry for the access token, overwriting any prior value.
	Put(ctx context.Context, accessToken string, data Data, ttl time.Duration) error

	// Get returns the entry and true, or false on miss or expiry.
	Get(ctx context.Context, accessToken string) (Data, bool, error)

	// Remove deletes the entry under the access-token key. When the entry
	// exists its stored refresh token is also issued as a companion delete.
	// Returns false if the access token was not found.
	Remove(ctx context.Context, accessToken string) (bool, error)
}
