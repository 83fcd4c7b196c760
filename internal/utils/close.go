package utils

import (
	"io"

	"github.com/MrSnakeDoc/timecapsule/internal/logger"
)

// MustClose closes c and logs any error under what.
func MustClose(c io.Closer, what string, log logger.Logger) {
	if err := c.Close(); err != nil {
		log.Warn("failed to close", logger.String("what", what), logger.Error(err))
	}
}
