package mail

import (
	"strings"
	"testing"
)

func TestNewSMTPSenderValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing host", Config{Port: 587, From: "noreply@example.org"}},
		{"missing port", Config{Host: "smtp.example.org", From: "noreply@example.org"}},
		{"missing from", Config{Host: "smtp.example.org", Port: 587}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSMTPSender(tc.cfg); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}

func TestBuildMessagePlainTextOnly(t *testing.T) {
	msg := string(buildMessage("noreply@example.org", "donor@example.org", "Thank you", "Thanks for your gift.", ""))

	if !strings.Contains(msg, "Content-Type: text/plain; charset=\"utf-8\"") {
		t.Fatalf("expected text/plain content type, got %q", msg)
	}
	if strings.Contains(msg, "multipart/alternative") {
		t.Fatalf("plain message must not be multipart, got %q", msg)
	}
	if !strings.Contains(msg, "Thanks for your gift.") {
		t.Fatalf("expected text body in message, got %q", msg)
	}
}

func TestBuildMessageMultipartAlternative(t *testing.T) {
	msg := string(buildMessage("noreply@example.org", "donor@example.org", "Thank you", "Thanks for your gift.", "<p>Thanks for your gift.</p>"))

	if !strings.Contains(msg, "Content-Type: multipart/alternative; boundary=\""+alternativeBoundary+"\"") {
		t.Fatalf("expected multipart/alternative content type, got %q", msg)
	}
	textIdx := strings.Index(msg, "Content-Type: text/plain")
	htmlIdx := strings.Index(msg, "Content-Type: text/html")
	if textIdx < 0 || htmlIdx < 0 {
		t.Fatalf("expected both text and html parts, got %q", msg)
	}
	if textIdx > htmlIdx {
		t.Fatal("plain text part must precede the html part")
	}
	if !strings.Contains(msg, "<p>Thanks for your gift.</p>") {
		t.Fatalf("expected html body in message, got %q", msg)
	}
	if !strings.HasSuffix(msg, "--"+alternativeBoundary+"--\r\n") {
		t.Fatalf("expected closing boundary, got %q", msg)
	}
}

func TestBuildMessageEncodesSubject(t *testing.T) {
	msg := string(buildMessage("noreply@example.org", "donor@example.org", "Mulțumim", "x", ""))
	if strings.Contains(msg, "Subject: Mulțumim") {
		t.Fatalf("expected q-encoded subject, got %q", msg)
	}
	if !strings.Contains(msg, "Subject: =?utf-8?q?") {
		t.Fatalf("expected q-encoded subject header, got %q", msg)
	}
}
