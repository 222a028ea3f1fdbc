package transcribe

import (
	"time"

	"github.com/voicedeskhq/voicedesk/internal/logging"
)

// NewAdapter picks the Deepgram adapter when an API key is configured and
// the demo adapter otherwise.
func NewAdapter(cfg DeepgramConfig, demoDwell time.Duration) Adapter {
	if cfg.APIKey == "" {
		logging.Warn(nil, "deepgram API key not configured, using demo mode")
		return NewDemoAdapter(demoDwell)
	}
	return NewDeepgramAdapter(cfg)
}
