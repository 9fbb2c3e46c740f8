package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/logger"
)

// LoggingNotifier records outbound notifications for observability without
// delivering them. Production deployments substitute a real channel adapter
// behind the same port; implementing the transport is out of scope here.
type LoggingNotifier struct {
	logger *zap.Logger
}

// NewLoggingNotifier constructs a notifier backed by structured logging.
func NewLoggingNotifier(log *zap.Logger) *LoggingNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingNotifier{logger: log}
}

// SendEmail logs the outbound email. The body, which carries the one-time
// code, is logged only at debug level.
func (n *LoggingNotifier) SendEmail(_ context.Context, destination, subject, body string) error {
	n.logger.Info("dispatch email",
		zap.String("destination", logger.MaskEmail(destination)),
		zap.String("subject", subject),
	)
	n.logger.Debug("email body", zap.String("body", body))
	return nil
}

// SendSMS logs the outbound SMS.
func (n *LoggingNotifier) SendSMS(_ context.Context, destination, body string) error {
	n.logger.Info("dispatch sms",
		zap.String("destination", logger.MaskPhone(destination)),
	)
	n.logger.Debug("sms body", zap.String("body", body))
	return nil
}

var _ port.Notifier = (*LoggingNotifier)(nil)
