package debugger

import (
	"os"
	"testing"

	"github.com/replaydev/rr-mcp/logger"
)

func TestMain(m *testing.M) {
	// Send logging to /dev/null so tests don't write into the state dir
	logger.Reset()
	logger.Init(os.DevNull)

	code := m.Run()

	logger.Reset()
	os.Exit(code)
}
