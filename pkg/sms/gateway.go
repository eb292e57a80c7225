package sms

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Gateway sends text messages
type Gateway interface {
	// Send delivers message to an E.164 phone number and returns the
	// provider's message id when it reports one
	Send(ctx context.Context, phone, message string) (string, error)

	// GetName returns the name of the SMS gateway implementation
	GetName() string
}

// LogGateway logs messages instead of sending them. Used in development.
type LogGateway struct {
	logger *logrus.Logger
}

// NewLogGateway creates a LogGateway
func NewLogGateway(logger *logrus.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

// Send logs the message
func (g *LogGateway) Send(ctx context.Context, phone, message string) (string, error) {
	g.logger.WithFields(logrus.Fields{
		"phone":   phone,
		"message": message,
	}).Info("SMS (dev mode, not sent)")
	return "", nil
}

// GetName returns the name of this SMS gateway
func (g *LogGateway) GetName() string {
	return "Log Gateway"
}
