package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/hopehand/api/internal/domain"
)

type stubProfiles struct {
	profiles map[string]domain.UserProfile
}

func (s *stubProfiles) FindByID(_ context.Context, uid string) (domain.UserProfile, error) {
	profile, ok := s.profiles[uid]
	if !ok {
		return domain.UserProfile{}, notFoundError{}
	}
	return profile, nil
}

type captureEmailLog struct {
	entries []domain.EmailLog
	err     error
}

func (c *captureEmailLog) Append(_ context.Context, entry domain.EmailLog) (domain.EmailLog, error) {
	c.entries = append(c.entries, entry)
	return entry, c.err
}

type stubSender struct {
	sendFunc func(ctx context.Context, to, subject, textBody, htmlBody string) error
	sent     []string
	texts    []string
	htmls    []string
}

func (s *stubSender) Send(ctx context.Context, to, subject, textBody, htmlBody string) error {
	s.sent = append(s.sent, to)
	s.texts = append(s.texts, textBody)
	s.htmls = append(s.htmls, htmlBody)
	if s.sendFunc != nil {
		return s.sendFunc(ctx, to, subject, textBody, htmlBody)
	}
	return nil
}

func newTestEmailService(t *testing.T, deps EmailServiceDeps) EmailService {
	t.Helper()
	if deps.Profiles == nil {
		deps.Profiles = &stubProfiles{}
	}
	if deps.Log == nil {
		deps.Log = &captureEmailLog{}
	}
	if deps.Sender == nil {
		deps.Sender = &stubSender{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	}
	svc, err := NewEmailService(deps)
	if err != nil {
		t.Fatalf("NewEmailService: %v", err)
	}
	return svc
}

func TestEmailSendByAdminSucceedsAndLogs(t *testing.T) {
	log := &captureEmailLog{}
	sender := &stubSender{}
	svc := newTestEmailService(t, EmailServiceDeps{
		Profiles: &stubProfiles{profiles: map[string]domain.UserProfile{
			"admin-1": {UID: "admin-1", Roles: []string{domain.RoleAdmin}},
		}},
		Log:    log,
		Sender: sender,
	})

	err := svc.Send(context.Background(), SendEmailCommand{
		CallerUID: "admin-1",
		To:        "donor@example.org",
		Subject:   "Thank you",
		TextBody:  "Thanks for your donation.",
		HTMLBody:  "<p>Thanks for your donation.</p>",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "donor@example.org" {
		t.Fatalf("expected one delivery, got %v", sender.sent)
	}
	if sender.texts[0] != "Thanks for your donation." {
		t.Fatalf("expected text body to reach the sender, got %q", sender.texts[0])
	}
	if sender.htmls[0] != "<p>Thanks for your donation.</p>" {
		t.Fatalf("expected html body to reach the sender, got %q", sender.htmls[0])
	}
	if len(log.entries) != 1 || !log.entries[0].Success {
		t.Fatalf("expected success log row, got %+v", log.entries)
	}
	if log.entries[0].SentBy != "admin-1" {
		t.Fatalf("expected sentBy admin-1, got %s", log.entries[0].SentBy)
	}
}

func TestEmailSendByDonorIsDeniedAndLogged(t *testing.T) {
	log := &captureEmailLog{}
	sender := &stubSender{}
	svc := newTestEmailService(t, EmailServiceDeps{
		Profiles: &stubProfiles{profiles: map[string]domain.UserProfile{
			"donor-1": {UID: "donor-1", Roles: []string{domain.RoleDonor}},
		}},
		Log:    log,
		Sender: sender,
	})

	err := svc.Send(context.Background(), SendEmailCommand{
		CallerUID: "donor-1",
		To:        "someone@example.org",
		Subject:   "Hi",
		TextBody:  "hi",
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("denied caller must not trigger delivery")
	}
	if len(log.entries) != 1 || log.entries[0].Success {
		t.Fatalf("expected failure log row, got %+v", log.entries)
	}
}

func TestEmailSendBySystemPrincipalBypassesProfileLookup(t *testing.T) {
	sender := &stubSender{}
	svc := newTestEmailService(t, EmailServiceDeps{
		Profiles:        &stubProfiles{},
		Sender:          sender,
		SystemPrincipal: "svc-payments",
	})

	err := svc.Send(context.Background(), SendEmailCommand{
		CallerUID: "svc-payments",
		To:        "donor@example.org",
		Subject:   "Receipt",
		TextBody:  "Your receipt is attached below.",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected delivery, got %v", sender.sent)
	}
}

func TestEmailSendMissingCallerIsUnauthenticated(t *testing.T) {
	svc := newTestEmailService(t, EmailServiceDeps{})
	err := svc.Send(context.Background(), SendEmailCommand{
		To:      "donor@example.org",
		Subject: "x",
	})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestEmailSendValidatesRecipient(t *testing.T) {
	svc := newTestEmailService(t, EmailServiceDeps{
		Profiles: &stubProfiles{profiles: map[string]domain.UserProfile{
			"admin-1": {UID: "admin-1", Roles: []string{domain.RoleAdmin}},
		}},
	})

	cases := []SendEmailCommand{
		{CallerUID: "admin-1", To: "", Subject: "x", TextBody: "x"},
		{CallerUID: "admin-1", To: "not-an-address", Subject: "x", TextBody: "x"},
		{CallerUID: "admin-1", To: "a@example.org", Subject: "", TextBody: "x"},
		{CallerUID: "admin-1", To: "a@example.org", Subject: "x", TextBody: "   "},
	}
	for _, cmd := range cases {
		if err := svc.Send(context.Background(), cmd); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", cmd, err)
		}
	}
}

func TestEmailSendWithoutHTMLDeliversPlainText(t *testing.T) {
	sender := &stubSender{}
	svc := newTestEmailService(t, EmailServiceDeps{
		Profiles: &stubProfiles{profiles: map[string]domain.UserProfile{
			"admin-1": {UID: "admin-1", Roles: []string{domain.RoleAdmin}},
		}},
		Sender: sender,
	})

	err := svc.Send(context.Background(), SendEmailCommand{
		CallerUID: "admin-1",
		To:        "donor@example.org",
		Subject:   "Update",
		TextBody:  "plain words only",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.texts) != 1 || sender.texts[0] != "plain words only" {
		t.Fatalf("expected text delivery, got %v", sender.texts)
	}
	if sender.htmls[0] != "" {
		t.Fatalf("expected empty html part, got %q", sender.htmls[0])
	}
}

func TestEmailSendSanitisesHTMLBody(t *testing.T) {
	sender := &stubSender{}
	svc := newTestEmailService(t, EmailServiceDeps{
		Profiles: &stubProfiles{profiles: map[string]domain.UserProfile{
			"admin-1": {UID: "admin-1", Roles: []string{domain.RoleAdmin}},
		}},
		Sender: sender,
	})

	err := svc.Send(context.Background(), SendEmailCommand{
		CallerUID: "admin-1",
		To:        "donor@example.org",
		Subject:   "Update",
		TextBody:  "hello",
		HTMLBody:  `<p>hello</p><script>alert("x")</script>`,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.htmls) != 1 {
		t.Fatalf("expected one delivery, got %d", len(sender.htmls))
	}
	if strings.Contains(sender.htmls[0], "<script>") {
		t.Fatalf("script tag must be stripped, got %q", sender.htmls[0])
	}
	if !strings.Contains(sender.htmls[0], "<p>hello</p>") {
		t.Fatalf("benign markup must survive, got %q", sender.htmls[0])
	}
}

func TestEmailSendDeliveryFailureIsLogged(t *testing.T) {
	log := &captureEmailLog{}
	sender := &stubSender{
		sendFunc: func(context.Context, string, string, string, string) error {
			return errors.New("relay refused")
		},
	}
	svc := newTestEmailService(t, EmailServiceDeps{
		Profiles: &stubProfiles{profiles: map[string]domain.UserProfile{
			"admin-1": {UID: "admin-1", Roles: []string{domain.RoleAdmin}},
		}},
		Log:    log,
		Sender: sender,
	})

	err := svc.Send(context.Background(), SendEmailCommand{
		CallerUID: "admin-1",
		To:        "donor@example.org",
		Subject:   "Update",
		TextBody:  "x",
	})
	if !errors.Is(err, ErrEmailDelivery) {
		t.Fatalf("expected ErrEmailDelivery, got %v", err)
	}
	if len(log.entries) != 1 || log.entries[0].Success {
		t.Fatalf("expected failure log row, got %+v", log.entries)
	}
	if log.entries[0].Error == "" {
		t.Fatal("expected error diagnostic in log row")
	}
}

func TestEmailLogAppendFailureNeverMasksResult(t *testing.T) {
	log := &captureEmailLog{err: errors.New("firestore down")}
	svc := newTestEmailService(t, EmailServiceDeps{
		Profiles: &stubProfiles{profiles: map[string]domain.UserProfile{
			"admin-1": {UID: "admin-1", Roles: []string{domain.RoleAdmin}},
		}},
		Log: log,
	})

	err := svc.Send(context.Background(), SendEmailCommand{
		CallerUID: "admin-1",
		To:        "donor@example.org",
		Subject:   "Update",
		TextBody:  "x",
	})
	if err != nil {
		t.Fatalf("log append failure must not fail the send: %v", err)
	}
}
