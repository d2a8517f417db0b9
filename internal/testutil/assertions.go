package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junioryono/keel"
)

// AssertServiceResolvable checks if a service can be resolved
func AssertServiceResolvable[T any](t *testing.T, locator *keel.ServiceLocator, name string) T {
	t.Helper()
	service, err := keel.Resolve[T](locator, name)
	require.NoError(t, err, "failed to resolve service %q", name)
	require.NotNil(t, service, "resolved service is nil")
	return service
}

// AssertServiceNotFound checks if a service lookup fails with not found error
func AssertServiceNotFound(t *testing.T, locator *keel.ServiceLocator, name string) {
	t.Helper()
	_, err := locator.Get(name)
	assert.Error(t, err)
	assert.True(t, keel.IsNotFound(err), "expected service not found error, got: %v", err)
}

// AssertPanicsWithError checks if a function panics with specific error
func AssertPanicsWithError(t *testing.T, expectedError error, f func(), msgAndArgs ...interface{}) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			assert.Fail(t, "function did not panic", msgAndArgs...)
			return
		}

		err, ok := r.(error)
		if !ok {
			assert.Fail(t, "panic value is not an error: %v", r)
			return
		}

		assert.ErrorIs(t, err, expectedError, msgAndArgs...)
	}()
	f()
}

// AssertDispatch runs argv and checks the exit code
func AssertDispatch(t *testing.T, app *keel.Application, expected int, argv ...string) {
	t.Helper()
	code, err := app.Run(t.Context(), argv)
	require.NoError(t, err, "dispatch %v returned an error", argv)
	assert.Equal(t, expected, code, "unexpected exit code for %v", argv)
}
