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

// Package rest serves the trustd admin API.
//
// # API Endpoints
//
// Health and metrics (no authentication):
//   - GET /health - overall status and version
//   - GET /health/live - liveness probe
//   - GET /health/ready - readiness probe; "degraded" while the secret store runs unencrypted
//   - GET /health/startup - startup probe
//   - GET /metrics - Prometheus exposition (path configurable)
//
// Admin routes, mounted only when a bearer token is configured:
//   - GET /api/v1/security/logs?lines=N - tail of the security event log
//   - DELETE /api/v1/security/logs - clear the live and rotated log
//   - GET /api/v1/lockout/{username} - lockout state of an account
//   - DELETE /api/v1/lockout/{username} - unlock an account
//   - GET /api/v1/pins - the active certificate pin set
//   - GET /api/v1/store - secret store mode and provider
//
// Requests with a missing or wrong token get 401 and are recorded as
// UNAUTHORIZED_ACCESS events. Rate-limited requests get 429 and are
// recorded as SUSPICIOUS_ACTIVITY.
//
// # Error Handling
//
// Errors are returned as JSON:
//
//	{"error": "invalid username", "message": "...", "code": 400}
package rest
