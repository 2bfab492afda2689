package testhelpers

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger sends the global logger's output to the test log, so it only
// shows for failing or verbose tests. The previous logger is restored on
// cleanup.
func SetupLogger(t *testing.T) {
	t.Helper()

	previous := log.Logger
	log.Logger = zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)

	t.Cleanup(func() {
		log.Logger = previous
	})
}
