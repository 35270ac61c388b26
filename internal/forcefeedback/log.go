package forcefeedback

import (
	"log/slog"
	"time"
)

// LogDevice writes samples to a logger at debug level. It is used when no
// haptic hardware is attached.
type LogDevice struct {
	Logger *slog.Logger
}

func (d LogDevice) Update(force float64, period time.Duration) error {
	d.Logger.Debug("force feedback", "force", force, "period", period)
	return nil
}
