// Package testutil provides test flags and in-memory collaborator fakes
// for tests that exercise the pipeline without a network.
package testutil

import (
	"flag"
	"testing"
)

var runLong = flag.Bool("long", false, "run long/heavy tests")

// RequireLong skips the test unless the -long flag is set. Bulk and
// end-to-end tests sit behind it so the default run stays fast.
func RequireLong(t *testing.T) {
	t.Helper()
	if !*runLong {
		t.Skip("skipping long test (use -long to enable)")
	}
}
