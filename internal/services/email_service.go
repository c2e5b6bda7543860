package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/hopehand/api/internal/domain"
	"github.com/hopehand/api/internal/repositories"
)

// ErrEmailDelivery indicates the SMTP relay rejected or failed the send.
var ErrEmailDelivery = errors.New("email: delivery failed")

// EmailSender abstracts the SMTP transport for testing. An empty htmlBody
// sends a plain-text message.
type EmailSender interface {
	Send(ctx context.Context, to string, subject string, textBody string, htmlBody string) error
}

// EmailServiceDeps wires the dependencies required by the email service.
type EmailServiceDeps struct {
	Profiles repositories.UserProfileRepository
	Log      repositories.EmailLogRepository
	Sender   EmailSender

	// SystemPrincipal is the UID of the platform's own service identity, which
	// may send mail without holding the admin role.
	SystemPrincipal string

	Sanitizer   *bluemonday.Policy
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type emailService struct {
	profiles        repositories.UserProfileRepository
	log             repositories.EmailLogRepository
	sender          EmailSender
	systemPrincipal string
	sanitizer       *bluemonday.Policy
	now             func() time.Time
	idGen           func() string
	logger          func(ctx context.Context, event string, fields map[string]any)
}

var _ EmailService = (*emailService)(nil)

// NewEmailService constructs an EmailService validating required dependencies.
func NewEmailService(deps EmailServiceDeps) (EmailService, error) {
	if deps.Profiles == nil {
		return nil, errors.New("email service: profile repository is required")
	}
	if deps.Log == nil {
		return nil, errors.New("email service: email log repository is required")
	}
	if deps.Sender == nil {
		return nil, errors.New("email service: sender is required")
	}

	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = bluemonday.UGCPolicy()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &emailService{
		profiles:        deps.Profiles,
		log:             deps.Log,
		sender:          deps.Sender,
		systemPrincipal: strings.TrimSpace(deps.SystemPrincipal),
		sanitizer:       sanitizer,
		now: func() time.Time {
			return clock().UTC()
		},
		idGen:  idGen,
		logger: logger,
	}, nil
}

// Send authorises the caller, sanitises the body, delivers the message, and
// appends one audit row per attempt regardless of outcome. The authorization
// gate completes before any network call.
func (s *emailService) Send(ctx context.Context, cmd SendEmailCommand) error {
	callerUID := strings.TrimSpace(cmd.CallerUID)
	if callerUID == "" {
		return ErrUnauthenticated
	}

	to := strings.TrimSpace(cmd.To)
	subject := strings.TrimSpace(cmd.Subject)
	if to == "" || subject == "" {
		return fmt.Errorf("%w: recipient and subject are required", ErrInvalidRequest)
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return fmt.Errorf("%w: invalid recipient address", ErrInvalidRequest)
	}
	textBody := cmd.TextBody
	if strings.TrimSpace(textBody) == "" {
		return fmt.Errorf("%w: text body is required", ErrInvalidRequest)
	}

	if err := s.authorize(ctx, callerUID); err != nil {
		s.appendLog(ctx, to, subject, callerUID, false, "permission denied")
		return err
	}

	htmlBody := ""
	if strings.TrimSpace(cmd.HTMLBody) != "" {
		htmlBody = s.sanitizer.Sanitize(cmd.HTMLBody)
	}

	if err := s.sender.Send(ctx, to, subject, textBody, htmlBody); err != nil {
		s.logger(ctx, "email.send_failed", map[string]any{
			"to":    to,
			"error": err.Error(),
		})
		s.appendLog(ctx, to, subject, callerUID, false, err.Error())
		return fmt.Errorf("%w: %v", ErrEmailDelivery, err)
	}

	s.appendLog(ctx, to, subject, callerUID, true, "")
	return nil
}

func (s *emailService) authorize(ctx context.Context, callerUID string) error {
	if s.systemPrincipal != "" && callerUID == s.systemPrincipal {
		return nil
	}

	profile, err := s.profiles.FindByID(ctx, callerUID)
	if err != nil {
		if isRepoNotFound(err) {
			return ErrPermissionDenied
		}
		return err
	}
	if !profile.HasRole(domain.RoleAdmin) {
		return ErrPermissionDenied
	}
	return nil
}

// appendLog is best-effort: a failed audit write never masks the send result.
func (s *emailService) appendLog(ctx context.Context, to, subject, callerUID string, success bool, sendErr string) {
	entry := domain.EmailLog{
		ID:      s.idGen(),
		To:      to,
		Subject: subject,
		SentBy:  callerUID,
		Success: success,
		Error:   sendErr,
		SentAt:  s.now(),
	}
	if _, err := s.log.Append(ctx, entry); err != nil {
		s.logger(ctx, "email.log_append_failed", map[string]any{
			"to":    to,
			"error": err.Error(),
		})
	}
}
