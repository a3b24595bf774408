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

package storage

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// namespacePattern matches slash separated lowercase segments, e.g. "lockout/failed_attempts".
var namespacePattern = regexp.MustCompile(`^[a-z0-9_\-\.]+(/[a-z0-9_\-\.]+)*$`)

// Key is a structured storage key scoped to a namespace and a principal.
type Key struct {
	Namespace string
	Principal string
}

// NewKey returns the key for principal within namespace.
func NewKey(namespace, principal string) Key {
	return Key{Namespace: namespace, Principal: principal}
}

// Validate reports whether the key can be encoded.
func (k Key) Validate() error {
	if !namespacePattern.MatchString(k.Namespace) {
		return fmt.Errorf("%w: namespace %q", ErrInvalidKey, k.Namespace)
	}
	if strings.Contains(k.Namespace, "..") {
		return fmt.Errorf("%w: namespace %q", ErrInvalidKey, k.Namespace)
	}
	if k.Principal == "" {
		return fmt.Errorf("%w: empty principal", ErrInvalidKey)
	}
	if strings.ContainsRune(k.Principal, 0) {
		return fmt.Errorf("%w: principal contains null byte", ErrInvalidKey)
	}
	return nil
}

// String encodes the key as "<namespace>/<principal>" with the principal in
// unpadded base64url. The alphabet has no separators or dots, so a principal
// can never alias another namespace or escape a directory.
func (k Key) String() string {
	return k.Namespace + "/" + base64.RawURLEncoding.EncodeToString([]byte(k.Principal))
}

// NamespacePrefix returns the List prefix selecting every key in namespace.
func NamespacePrefix(namespace string) string {
	return namespace + "/"
}

// ParseKey reverses Key.String.
func ParseKey(s string) (Key, error) {
	idx := strings.LastIndex(s, "/")
	if idx <= 0 || idx == len(s)-1 {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	principal, err := base64.RawURLEncoding.DecodeString(s[idx+1:])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q: %v", ErrInvalidKey, s, err)
	}
	k := Key{Namespace: s[:idx], Principal: string(principal)}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}
