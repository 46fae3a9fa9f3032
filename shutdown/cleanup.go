package shutdown

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"edgedetect/logging"
)

// RemovePartialFiles returns a CleanupFunc that deletes files in dir
// matching pattern. Artifacts are written to a temporary name and renamed
// into place, so an interrupted encode leaves one of those behind.
//
// Failures are logged and never returned, so they cannot block the rest
// of the shutdown.
func RemovePartialFiles(logger *logging.Logger, dir, pattern string) CleanupFunc {
	return func(ctx context.Context) error {
		glob := filepath.Join(dir, pattern)
		matches, err := filepath.Glob(glob)
		if err != nil {
			logger.Error("Failed to list partial files", zap.String("pattern", glob), zap.Error(err))
			return nil
		}
		if len(matches) == 0 {
			return nil
		}

		var removed, failed int
		for _, match := range matches {
			if ctx.Err() != nil {
				logger.Warn("Cleanup interrupted",
					zap.Int("removed", removed),
					zap.Int("remaining", len(matches)-removed-failed),
				)
				return nil
			}
			if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
				failed++
				logger.Warn("Failed to remove partial file", zap.String("file", filepath.Base(match)), zap.Error(err))
				continue
			}
			removed++
		}

		logger.Info("Removed partial files", zap.Int("removed", removed), zap.Int("failed", failed))
		return nil
	}
}
