package config

import (
	"os"
	"testing"
)

// unsetEnv removes key for the duration of the test. It must follow a
// t.Setenv call for the same key so the original value is restored.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset %s: %v", key, err)
	}
}
