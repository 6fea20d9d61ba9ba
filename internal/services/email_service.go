package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/cyberguard/aegis/internal/models"
)

// EmailService delivers security alert notifications.
type EmailService interface {
	SendAlertEmail(ctx context.Context, alert *models.SecurityAlert) error
}

// AWSSESEmailService sends alert notifications using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	toAddress   string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress, toAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		toAddress:   toAddress,
		logger:      logger,
	}, nil
}

// SendAlertEmail sends one security alert to the on-call address.
func (s *AWSSESEmailService) SendAlertEmail(ctx context.Context, alert *models.SecurityAlert) error {
	subject := fmt.Sprintf("[%s] Security alert: %s from %s",
		strings.ToUpper(string(alert.Severity)), alert.AlertType, alert.IPAddress)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8d7da; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        table { border-collapse: collapse; width: 100%%; }
        td { padding: 8px; border-bottom: 1px solid #eee; }
        td:first-child { font-weight: bold; width: 160px; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Security Alert</h1>
        </div>
        <div class="content">
            <table>
                <tr><td>Severity</td><td>%s</td></tr>
                <tr><td>Type</td><td>%s</td></tr>
                <tr><td>Source IP</td><td>%s</td></tr>
                <tr><td>Requests in window</td><td>%d</td></tr>
                <tr><td>Detected at</td><td>%s</td></tr>
                <tr><td>Description</td><td>%s</td></tr>
            </table>
        </div>
        <div class="footer">
            <p>This is an automated message from the Aegis security gateway. Please do not reply.</p>
        </div>
    </div>
</body>
</html>
`, alert.Severity, alert.AlertType, alert.IPAddress, alert.RequestCount,
		alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"), alert.Description)

	textBody := fmt.Sprintf(`Security Alert

Severity:    %s
Type:        %s
Source IP:   %s
Requests:    %d
Detected at: %s
Description: %s

This is an automated message from the Aegis security gateway. Please do not reply.
`, alert.Severity, alert.AlertType, alert.IPAddress, alert.RequestCount,
		alert.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"), alert.Description)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{s.toAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send alert email via SES",
			slog.String("alert_type", alert.AlertType),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("alert email sent",
		slog.String("alert_type", alert.AlertType),
		slog.String("message_id", *result.MessageId))

	return nil
}

// NoopEmailService drops alert emails. Used when email alerts are disabled.
type NoopEmailService struct{}

func (NoopEmailService) SendAlertEmail(ctx context.Context, alert *models.SecurityAlert) error {
	return nil
}
