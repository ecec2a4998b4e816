//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"github.com/fleetbay/drydock/internal/logger"
)

// ApplyLogLevel sets the global log level from the first parseable value.
// Callers pass the CLI override first and the configured level second.
func ApplyLogLevel(values ...string) {
	for _, value := range values {
		if value == "" {
			continue
		}

		if level, ok := logger.ParseLogLevel(value); ok {
			logger.SetLevel(level)

			return
		}
	}
}
