package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/MarkoPoloResearchLab/lessons/pkg/booking"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

const (
	sendgridEndpoint   = "/v3/mail/send"
	contentTypePlain   = "text/plain"
	subjectPrefixOpen  = "["
	subjectPrefixClose = "] "
)

// LogSender writes notifications to the log instead of mailing them.
type LogSender struct {
	logger *zap.Logger
	from   string
}

// NewLogSender returns a Sender for local development.
func NewLogSender(logger *zap.Logger, from string) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger, from: from}
}

// Deliver logs the message.
func (sender *LogSender) Deliver(_ context.Context, notification booking.Notification) error {
	sender.logger.Info("email",
		zap.String("from", sender.from),
		zap.String("to", notification.To),
		zap.String("subject", notification.Subject),
		zap.String("body", notification.Body),
	)
	return nil
}

// SendgridSender posts messages to the SendGrid v3 mail API.
type SendgridSender struct {
	key           string
	host          string
	from          *sgmail.Email
	subjectPrefix string
}

// NewSendgridSender builds a sender from validated config.
func NewSendgridSender(config Config) *SendgridSender {
	return &SendgridSender{
		key:           config.SendgridAPIKey,
		host:          config.SendgridHost,
		from:          sgmail.NewEmail(config.FromName, config.FromAddress),
		subjectPrefix: subjectPrefixOpen + config.FromName + subjectPrefixClose,
	}
}

func (sender *SendgridSender) prepare(notification booking.Notification) *sgmail.SGMailV3 {
	personalization := sgmail.NewPersonalization()
	personalization.Subject = sender.subjectPrefix + notification.Subject
	personalization.AddTos(sgmail.NewEmail("", notification.To))

	message := sgmail.NewV3Mail()
	message.SetFrom(sender.from)
	message.AddPersonalizations(personalization)
	message.AddContent(sgmail.NewContent(contentTypePlain, notification.Body))
	return message
}

// Deliver sends one message; non-2xx responses are errors. The request is bound to ctx.
func (sender *SendgridSender) Deliver(ctx context.Context, notification booking.Notification) error {
	request := sendgrid.GetRequest(sender.key, sendgridEndpoint, sender.host)
	request.Method = http.MethodPost
	request.Body = sgmail.GetRequestBody(sender.prepare(notification))
	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if response.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}

// NewSender picks the transport named by config.Mode.
func NewSender(config Config, logger *zap.Logger) (Sender, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Mode {
	case ModeSendgrid:
		return NewSendgridSender(config), nil
	default:
		return NewLogSender(logger, config.FromAddress), nil
	}
}
