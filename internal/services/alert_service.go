package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkglogger "github.com/BradenHooton/cadence/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"golang.org/x/time/rate"
)

// EmailSender abstracts the SES client so alerts can be tested without AWS
type EmailSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SecurityAlertConfig holds configuration for operator alert emails
type SecurityAlertConfig struct {
	FromAddress     string
	Recipients      []string
	AlertsPerMinute int
	Burst           int
}

// SecurityAlertService emails operators when an IP gets blocked.
// Sending is throttled so a burst of blocks cannot flood the mailbox.
type SecurityAlertService struct {
	client  EmailSender
	config  SecurityAlertConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewSecurityAlertService creates a new SecurityAlertService around an existing SES client
func NewSecurityAlertService(client EmailSender, cfg SecurityAlertConfig, logger *slog.Logger) *SecurityAlertService {
	if cfg.AlertsPerMinute <= 0 {
		cfg.AlertsPerMinute = 6
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}

	return &SecurityAlertService{
		client:  client,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.AlertsPerMinute)), cfg.Burst),
		logger:  logger,
	}
}

// NewAWSSESAlertService creates a SecurityAlertService backed by AWS SES
func NewAWSSESAlertService(region string, cfg SecurityAlertConfig, logger *slog.Logger) (*SecurityAlertService, error) {
	awsCfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSecurityAlertService(ses.NewFromConfig(awsCfg), cfg, logger), nil
}

// NotifyIPBlocked sends a block alert unless the alert budget is exhausted
func (s *SecurityAlertService) NotifyIPBlocked(ctx context.Context, ip string, violations int) error {
	if len(s.config.Recipients) == 0 {
		return nil
	}

	if !s.limiter.Allow() {
		s.logger.Warn("security alert suppressed by throttle",
			slog.String("ip_address", ip),
			slog.Int("violations", violations))
		return nil
	}

	subject := fmt.Sprintf("[security] IP %s blocked", ip)
	textBody := fmt.Sprintf(`An IP address has been blocked after repeated high-severity security events.

IP address: %s
Violations: %d
Blocked at: %s

The block stays in place until an operator removes it:
DELETE /api/admin/security?ip=%s

This is an automated message.
`, ip, violations, time.Now().UTC().Format(time.RFC3339), ip)

	input := &ses.SendEmailInput{
		Source: aws.String(s.config.FromAddress),
		Destination: &types.Destination{
			ToAddresses: s.config.Recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send security alert via SES",
			slog.String("ip_address", ip),
			slog.Any("error", err))
		return fmt.Errorf("failed to send security alert: %w", err)
	}

	recipients := make([]string, len(s.config.Recipients))
	for i, r := range s.config.Recipients {
		recipients[i] = pkglogger.SanitizedEmail(r)
	}

	messageID := ""
	if result != nil && result.MessageId != nil {
		messageID = *result.MessageId
	}
	s.logger.Info("security alert sent",
		slog.String("ip_address", ip),
		slog.Any("recipients", recipients),
		slog.String("message_id", messageID))

	return nil
}
