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

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jeremyhahn/go-trustgate/internal/rest"
)

// AdminClient talks to the trustd admin API.
type AdminClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *AdminClient) doRequest(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp rest.ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			if errResp.Message != "" {
				return fmt.Errorf("server error: %s: %s", errResp.Error, errResp.Message)
			}
			return fmt.Errorf("server error: %s", errResp.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// SecurityLogs returns the last lines of the security log. Zero uses the
// server default.
func (c *AdminClient) SecurityLogs(ctx context.Context, lines int) (*rest.SecurityLogsResponse, error) {
	path := "/api/v1/security/logs"
	if lines > 0 {
		path += "?lines=" + strconv.Itoa(lines)
	}
	var resp rest.SecurityLogsResponse
	if err := c.doRequest(ctx, http.MethodGet, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearSecurityLogs deletes the live log and its backup.
func (c *AdminClient) ClearSecurityLogs(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodDelete, "/api/v1/security/logs", nil)
}

// Lockout returns an account's lockout state.
func (c *AdminClient) Lockout(ctx context.Context, username string) (*rest.LockoutResponse, error) {
	var resp rest.LockoutResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/lockout/"+url.PathEscape(username), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Unlock clears an account's lockout.
func (c *AdminClient) Unlock(ctx context.Context, username string) error {
	return c.doRequest(ctx, http.MethodDelete, "/api/v1/lockout/"+url.PathEscape(username), nil)
}

// Pins returns the server's active pin set.
func (c *AdminClient) Pins(ctx context.Context) (*rest.PinsResponse, error) {
	var resp rest.PinsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/pins", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StoreStatus reports how the server's secret store protects entries.
func (c *AdminClient) StoreStatus(ctx context.Context) (*rest.StoreResponse, error) {
	var resp rest.StoreResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/store", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
