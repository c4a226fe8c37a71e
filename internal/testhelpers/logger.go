package testhelpers

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger routes global log output through the test's log buffer for
// the duration of the test, restoring the previous logger afterwards.
func SetupLogger(t *testing.T) {
	t.Helper()

	previous := log.Logger
	log.Logger = zerolog.New(zerolog.NewTestWriter(t))

	t.Cleanup(func() {
		log.Logger = previous
	})
}
