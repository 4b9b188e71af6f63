package testutil

import (
	"fmt"
	"testing"

	"politodown/lib/telemetry"
)

// Setup initializes telemetry for a test suite, returning the cleanup
// to defer. Without a telemetry.json5 in scope it is a no-op.
func Setup(t testing.TB, name string) func() {
	return telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", name))
}
