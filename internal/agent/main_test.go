// File: internal/agent/main_test.go
package agent

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies that no test in this package leaks goroutines.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
