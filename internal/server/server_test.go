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

package server

import (
	"context"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-trustgate/internal/config"
	"github.com/jeremyhahn/go-trustgate/pkg/health"
	"github.com/jeremyhahn/go-trustgate/pkg/keyprovider"
	"github.com/jeremyhahn/go-trustgate/pkg/pinning"
	"github.com/jeremyhahn/go-trustgate/pkg/secretstore"
	"github.com/jeremyhahn/go-trustgate/pkg/securitylog"
)

var testKey = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", keyprovider.KeySize)))

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Logging.Level = "error"
	cfg.Storage = config.StorageConfig{Backend: config.StorageMemory}
	cfg.KeyProvider.Type = config.KeyProviderStatic
	cfg.KeyProvider.Static.Key = testKey
	cfg.Password.Cost = 4
	cfg.Lockout.Threshold = 3
	cfg.SecurityLog.Dir = "/var/lib/trustgate"
	cfg.Metrics.Enabled = false
	cfg.Admin.Token = "admin-token"
	return cfg
}

func TestNewKeyProvider(t *testing.T) {
	fs := afero.NewMemMapFs()

	tests := []struct {
		name     string
		cfg      config.KeyProviderConfig
		wantName string
		wantErr  bool
	}{
		{
			name:     "static",
			cfg:      config.KeyProviderConfig{Type: config.KeyProviderStatic, Static: config.StaticKeyConfig{Key: testKey}},
			wantName: "static",
		},
		{
			name:    "static bad base64",
			cfg:     config.KeyProviderConfig{Type: config.KeyProviderStatic, Static: config.StaticKeyConfig{Key: "%%%"}},
			wantErr: true,
		},
		{
			name:    "static wrong length",
			cfg:     config.KeyProviderConfig{Type: config.KeyProviderStatic, Static: config.StaticKeyConfig{Key: "c2hvcnQ="}},
			wantErr: true,
		},
		{
			name:     "file",
			cfg:      config.KeyProviderConfig{Type: config.KeyProviderFile, File: config.FileKeyConfig{Path: "/keys/master.key"}},
			wantName: "file",
		},
		{
			name: "awskms",
			cfg: config.KeyProviderConfig{Type: config.KeyProviderAWSKMS, AWSKMS: config.AWSKMSConfig{
				KeyID: "alias/trustgate", WrappedKey: "AAAA", Region: "us-east-1",
			}},
			wantName: "awskms",
		},
		{
			name: "gcpkms",
			cfg: config.KeyProviderConfig{Type: config.KeyProviderGCPKMS, GCPKMS: config.GCPKMSConfig{
				KeyName: "projects/p/locations/l/keyRings/r/cryptoKeys/k", WrappedKey: "AAAA",
			}},
			wantName: "gcpkms",
		},
		{
			name: "azurekv",
			cfg: config.KeyProviderConfig{Type: config.KeyProviderAzureKV, AzureKV: config.AzureKVConfig{
				VaultURL: "https://example.vault.azure.net", SecretName: "trustgate-master",
			}},
			wantName: "azurekv",
		},
		{
			name: "vault",
			cfg: config.KeyProviderConfig{Type: config.KeyProviderVault, Vault: config.VaultConfig{
				Address: "https://vault.example.com:8200", Path: "secret/data/trustgate",
			}},
			wantName: "vault",
		},
		{
			name:     "none",
			cfg:      config.KeyProviderConfig{Type: config.KeyProviderNone},
			wantName: "none",
		},
		{
			name:    "unknown",
			cfg:     config.KeyProviderConfig{Type: "tpm2"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewKeyProvider(tt.cfg, fs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestNewStorageBackend(t *testing.T) {
	fs := afero.NewMemMapFs()

	b, err := NewStorageBackend(config.StorageConfig{Backend: config.StorageMemory}, fs)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = NewStorageBackend(config.StorageConfig{Backend: config.StorageFile, Path: "/data/store"}, fs)
	require.NoError(t, err)
	require.NoError(t, b.Put("marker", []byte("x"), nil))
	ok, err := afero.DirExists(fs, "/data/store")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Close())

	_, err = NewStorageBackend(config.StorageConfig{Backend: "s3"}, fs)
	assert.Error(t, err)
}

func TestNewComponents(t *testing.T) {
	cfg := testConfig()
	c, err := NewComponents(cfg, afero.NewMemMapFs(), nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Store.Open(context.Background()))
	assert.Equal(t, secretstore.ModeEncrypted, c.Store.Status().Mode)
	assert.Equal(t, 3, c.Lockout.Threshold())
	assert.Equal(t, "/var/lib/trustgate/security_events.log", c.Events.Path())
	assert.NotEmpty(t, c.Pins.Pins)

	// The guard and the event log share the engine.
	require.NoError(t, c.Guard.Register(context.Background(), "alice", "Str0ng!Passw0rd"))
	for i := 0; i < 3; i++ {
		require.Error(t, c.Guard.Login(context.Background(), "alice", "wrong"))
	}
	locked, err := c.Events.IsAccountLocked("alice")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestNewComponents_InvalidPasswordCost(t *testing.T) {
	cfg := testConfig()
	cfg.Password.Cost = 99
	_, err := NewComponents(cfg, afero.NewMemMapFs(), nil)
	assert.Error(t, err)
}

func TestServer_Lifecycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := NewWithFs(testConfig(), fs)
	require.NoError(t, err)
	require.NotNil(t, s.PinnedClient())

	require.NoError(t, s.Start())
	assert.True(t, s.HealthChecker().IsStarted())
	assert.False(t, s.Components().Store.Degraded())

	// Admin routes are mounted and guarded.
	w := httptest.NewRecorder()
	s.RESTServer().Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/pins", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	entries, err := s.Components().Events.Entries(0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, securitylog.UnauthorizedAccess, entries[len(entries)-1].Kind)

	require.NoError(t, s.Shutdown())
	require.NoError(t, s.Shutdown())
	s.WaitForShutdown()
	assert.False(t, s.HealthChecker().IsStarted())
}

func TestServer_DegradedStoreIsNotFatal(t *testing.T) {
	cfg := testConfig()
	cfg.KeyProvider = config.KeyProviderConfig{Type: config.KeyProviderNone}

	s, err := NewWithFs(cfg, afero.NewMemMapFs())
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Shutdown()

	assert.True(t, s.Components().Store.Degraded())
	status := health.AggregateStatus(s.HealthChecker().Ready(context.Background()))
	assert.Equal(t, health.StatusDegraded, status)
}

func TestServer_InvalidTLS(t *testing.T) {
	cfg := testConfig()
	cfg.TLS.Enabled = true
	cfg.TLS.CertFile = "/nonexistent/cert.pem"
	cfg.TLS.KeyFile = "/nonexistent/key.pem"

	_, err := NewWithFs(cfg, afero.NewMemMapFs())
	assert.Error(t, err)
}

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ts.Close)
	return ts
}

// newPinnedServer builds a trustd whose pinned client targets api.
func newPinnedServer(t *testing.T, api *httptest.Server, pins ...string) *Server {
	t.Helper()

	fs := afero.NewMemMapFs()
	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: api.Certificate().Raw})
	require.NoError(t, afero.WriteFile(fs, "/etc/trustgate/api-ca.pem", caPEM, 0o600))

	cfg := testConfig()
	cfg.Pinning.Host = "127.0.0.1"
	cfg.Pinning.Pins = pins
	cfg.Pinning.CAFile = "/etc/trustgate/api-ca.pem"

	s, err := NewWithFs(cfg, fs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestServer_PinnedClientLogsMismatch(t *testing.T) {
	api := newAPIServer(t)
	wrongPin := pinning.Prefix + base64.StdEncoding.EncodeToString(make([]byte, 32))
	s := newPinnedServer(t, api, wrongPin)

	resp, err := s.PinnedClient().Get(api.URL + "/v1/status")
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, pinning.ErrPinMismatch)

	lines, err := s.Components().Events.GetSecurityLogs(0)
	require.NoError(t, err)
	require.NotEmpty(t, lines)
	last := lines[len(lines)-1]
	assert.Contains(t, last, string(securitylog.CertificatePinningFailed))
	assert.Contains(t, last, "127.0.0.1")
}

func TestServer_PinnedClientAcceptsMatchingPin(t *testing.T) {
	api := newAPIServer(t)
	s := newPinnedServer(t, api, pinning.PinFromCertificate(api.Certificate()).String())

	resp, err := s.PinnedClient().Get(api.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	lines, err := s.Components().Events.GetSecurityLogs(0)
	require.NoError(t, err)
	for _, line := range lines {
		assert.NotContains(t, line, string(securitylog.CertificatePinningFailed))
	}
}

func TestServer_PinningCAFileErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/trustgate/empty.pem", []byte("not pem"), 0o600))

	cfg := testConfig()
	cfg.Pinning.CAFile = "/etc/trustgate/missing.pem"
	_, err := NewWithFs(cfg, fs)
	assert.ErrorContains(t, err, "ca_file")

	cfg = testConfig()
	cfg.Pinning.CAFile = "/etc/trustgate/empty.pem"
	_, err = NewWithFs(cfg, fs)
	assert.ErrorContains(t, err, "no PEM certificates")
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestGetBuildVersion(t *testing.T) {
	assert.NotEmpty(t, getBuildVersion())
}
