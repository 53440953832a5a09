// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package errutil

import (
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected a coded error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode asserts that err carries code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	assert.Equal(t, code, mustOops(t, err).Code(), "error: %v", err)
}

// AssertErrorContext asserts that err carries key=value in its context.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	ctx := mustOops(t, err).Context()
	if assert.Contains(t, ctx, key, "error: %v", err) {
		assert.Equal(t, value, ctx[key])
	}
}

// AssertErrorHint asserts that the hint of err contains substr.
func AssertErrorHint(t *testing.T, err error, substr string) {
	t.Helper()
	hint := mustOops(t, err).Hint()
	assert.True(t, strings.Contains(hint, substr), "hint %q does not contain %q", hint, substr)
}
