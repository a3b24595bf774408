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

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/jeremyhahn/go-trustgate/pkg/secretstore"
)

// StoreStatus is implemented by *secretstore.Store.
type StoreStatus interface {
	Status() secretstore.Status
}

// StoreCheck reports the secret store as degraded while it runs on the
// plaintext fallback, and unhealthy before it has been opened.
func StoreCheck(store StoreStatus) CheckFunc {
	return func(ctx context.Context) CheckResult {
		st := store.Status()
		result := CheckResult{Name: "secretstore"}
		switch st.Mode {
		case secretstore.ModeEncrypted:
			result.Status = StatusHealthy
			result.Message = fmt.Sprintf("encrypted with %s (key provider %s)", st.Algorithm, st.Provider)
		case secretstore.ModeDegraded:
			result.Status = StatusDegraded
			result.Message = "secure storage unavailable, entries are stored unencrypted"
			result.Error = st.Reason
		default:
			result.Status = StatusUnhealthy
			result.Message = "secret store not open"
		}
		return result
	}
}

// AuditLogCheck reports whether the security log directory is writable.
func AuditLogCheck(fsys afero.Fs, dir string) CheckFunc {
	return func(ctx context.Context) CheckResult {
		result := CheckResult{Name: "securitylog", Status: StatusHealthy, Message: dir}
		if err := fsys.MkdirAll(dir, 0700); err != nil {
			result.Status = StatusUnhealthy
			result.Error = err.Error()
			return result
		}
		probe := filepath.Join(dir, ".health-probe")
		f, err := fsys.OpenFile(probe, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			// Audit is best effort; logins keep working without it.
			result.Status = StatusDegraded
			result.Error = err.Error()
			return result
		}
		_ = f.Close()
		_ = fsys.Remove(probe)
		return result
	}
}
