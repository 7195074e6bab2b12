// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package errutil

import (
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestingT is satisfied by *testing.T and by ginkgo's GinkgoT().
type TestingT interface {
	Helper()
	Errorf(format string, args ...any)
	FailNow()
}

// AssertErrorCode asserts that err carries the oops code code.
// Wrapped errors report the innermost code, matching Code.
func AssertErrorCode(t TestingT, err error, code string) {
	t.Helper()
	require.Error(t, err, "expected an error with code %s", code)
	_, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	if !ok {
		return
	}
	assert.Equal(t, code, Code(err), "error: %v", err)
}

// AssertErrorContext asserts that err carries key=value in its oops context.
func AssertErrorContext(t TestingT, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	if !ok {
		return
	}
	ctx := oopsErr.Context()
	require.Contains(t, ctx, key, "context has no %q", key)
	assert.Equal(t, value, ctx[key], "context %q", key)
}
