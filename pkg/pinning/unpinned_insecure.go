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

//go:build trustgate_insecure

package pinning

import (
	"crypto/tls"
	"net/http"
)

// UnpinnedAvailable reports whether NewUnpinnedClient can succeed in this build.
const UnpinnedAvailable = true

// NewUnpinnedClient returns a client that skips certificate verification.
// It exists only in builds tagged trustgate_insecure, for local development
// against self-signed servers.
func NewUnpinnedClient() (*http.Client, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, //nolint:gosec // development builds only
		},
		TLSHandshakeTimeout:   DefaultTimeout,
		ResponseHeaderTimeout: DefaultTimeout,
	}
	return &http.Client{Transport: transport}, nil
}
