package detector

import (
	"fmt"

	"github.com/seatmetrics/seatwatch/internal/config"
)

// New constructs the configured detection pipeline. Called once at server
// startup.
func New(cfg config.DetectorConfig) (Pipeline, error) {
	switch cfg.Provider {
	case "http":
		return NewHTTPClient(cfg.BaseURL, cfg.Timeout), nil
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown detector provider %q: must be one of http, mock", cfg.Provider)
	}
}
