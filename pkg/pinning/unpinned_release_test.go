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

//go:build !trustgate_insecure

package pinning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnpinnedClientDisabledInRelease(t *testing.T) {
	assert.False(t, UnpinnedAvailable)
	client, err := NewUnpinnedClient()
	assert.Nil(t, client)
	assert.ErrorIs(t, err, ErrUnpinnedDisabled)
}
