package domain

import "testing"

func TestPaymentStatusCanTransition(t *testing.T) {
	cases := []struct {
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{PaymentStatusInitialized, PaymentStatusCreated, true},
		{PaymentStatusInitialized, PaymentStatusCaptured, false},
		{PaymentStatusInitialized, PaymentStatusConfirmed, false},
		{PaymentStatusInitialized, PaymentStatusFailed, true},
		{PaymentStatusCreated, PaymentStatusCaptured, true},
		{PaymentStatusCreated, PaymentStatusConfirmed, true},
		{PaymentStatusCreated, PaymentStatusInitialized, false},
		{PaymentStatusCreated, PaymentStatusFailed, true},
		{PaymentStatusCaptured, PaymentStatusConfirmed, false},
		{PaymentStatusCaptured, PaymentStatusFailed, false},
		{PaymentStatusConfirmed, PaymentStatusFailed, false},
		{PaymentStatusFailed, PaymentStatusCreated, false},
		{PaymentStatusFailed, PaymentStatusFailed, false},
		{PaymentStatusCreated, PaymentStatusCreated, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestPaymentStatusTerminal(t *testing.T) {
	terminal := map[PaymentStatus]bool{
		PaymentStatusInitialized: false,
		PaymentStatusCreated:     false,
		PaymentStatusCaptured:    true,
		PaymentStatusConfirmed:   true,
		PaymentStatusFailed:      true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("Terminal(%s) = %v, want %v", status, got, want)
		}
	}
}
