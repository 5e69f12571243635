package lumenvk

import (
	"log/slog"

	"github.com/andewx/lumenvk/hal"
)

// SetLogger configures the logger for the engine and its backends.
// By default nothing is logged. Pass nil to restore silence.
//
// Levels used:
//   - Debug: object creation and teardown, frame statistics
//   - Info: device selection, swapchain (re)creation, feature groups
//   - Warn: uploads before data is resident, unknown renderables
func SetLogger(l *slog.Logger) { hal.SetLogger(l) }

// Logger returns the active logger.
func Logger() *slog.Logger { return hal.Logger() }
