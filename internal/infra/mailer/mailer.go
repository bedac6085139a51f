package mailer

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/avralex/authgate/internal/core/port"
	"github.com/avralex/authgate/internal/infra/logger"
)

// LoggingDispatcher writes confirmation mail to the log instead of an SMTP
// relay. It stands in for a real delivery backend in development and tests.
type LoggingDispatcher struct {
	logger *zap.Logger
	from   string
}

// NewLoggingDispatcher constructs a log-backed email dispatcher.
func NewLoggingDispatcher(log *zap.Logger, from string) *LoggingDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingDispatcher{logger: log, from: from}
}

// SendConfirmationLink logs the confirmation mail that would be delivered.
func (d *LoggingDispatcher) SendConfirmationLink(_ context.Context, email, link string) error {
	d.logger.Info("dispatching confirmation email",
		zap.String("from", d.from),
		zap.String("to", logger.MaskEmail(email)),
		zap.String("link", link),
	)
	return nil
}

var _ port.EmailDispatcher = (*LoggingDispatcher)(nil)

// ConfirmationLink builds the link embedded in confirmation mail. The raw
// token travels only inside this link; it is never persisted.
func ConfirmationLink(baseURL, userID, rawToken string) string {
	query := url.Values{}
	query.Set("userId", userID)
	query.Set("token", rawToken)
	return fmt.Sprintf("%s/auth/confirm-email?%s", baseURL, query.Encode())
}
