// Package testing puts binaries into test mode and points every external
// collaborator at an unreachable address.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("FORMREPORTS_TEST_MODE", "1")
		for _, key := range []string{"GOTENBERG_URL", "FORMS_API_URL", "ATTACHMENT_BASE_URL"} {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, "http://127.0.0.1:0")
			}
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain runs m in test mode.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
