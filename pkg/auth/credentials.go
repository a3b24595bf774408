// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-trustgate.
//
// go-trustgate is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package auth

import (
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-trustgate/pkg/storage"
)

const credentialsNamespace = "credentials"

// CredentialStore holds one password hash per user.
type CredentialStore interface {
	// PasswordHash returns the user's hash; ok is false for unknown users.
	PasswordHash(username string) (hash string, ok bool, err error)
	SetPasswordHash(username, hash string) error
	DeleteUser(username string) error
}

// KV is the subset of the secret store used for credentials.
type KV interface {
	GetString(key, def string) (string, error)
	PutString(key, value string) error
	Remove(key string) error
	Contains(key string) (bool, error)
}

// SecretStoreCredentials keeps hashes in the secret store.
type SecretStoreCredentials struct {
	kv KV
}

// NewSecretStoreCredentials returns a CredentialStore over kv.
func NewSecretStoreCredentials(kv KV) *SecretStoreCredentials {
	return &SecretStoreCredentials{kv: kv}
}

func credentialKey(username string) string {
	return storage.NewKey(credentialsNamespace, username).String()
}

// PasswordHash implements CredentialStore.
func (c *SecretStoreCredentials) PasswordHash(username string) (string, bool, error) {
	key := credentialKey(username)
	ok, err := c.kv.Contains(key)
	if err != nil || !ok {
		return "", false, err
	}
	hash, err := c.kv.GetString(key, "")
	if err != nil {
		return "", false, err
	}
	return hash, hash != "", nil
}

// SetPasswordHash implements CredentialStore.
func (c *SecretStoreCredentials) SetPasswordHash(username, hash string) error {
	if hash == "" {
		return errors.New("auth: empty password hash")
	}
	if err := c.kv.PutString(credentialKey(username), hash); err != nil {
		return fmt.Errorf("auth: storing credentials: %w", err)
	}
	return nil
}

// DeleteUser implements CredentialStore. Unknown users are not an error.
func (c *SecretStoreCredentials) DeleteUser(username string) error {
	return c.kv.Remove(credentialKey(username))
}
