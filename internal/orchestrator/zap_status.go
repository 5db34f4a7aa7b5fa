package orchestrator

import "go.uber.org/zap"

// NewZapStatusCallback returns a StatusCallback that logs every update
// through log. Report/UI rendering is out of scope for the engine, so the
// default progress surface is a structured log line per update.
func NewZapStatusCallback(log *zap.Logger) StatusCallback {
	if log == nil {
		log = zap.NewNop()
	}
	return func(u StatusUpdate) {
		log.Info("pipeline status",
			zap.String("phase", string(u.Phase)),
			zap.String("prompt", u.PromptPath),
			zap.Int("attempt", u.AttemptNumber),
			zap.String("message", u.Message),
		)
	}
}
