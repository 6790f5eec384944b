package sharecrypt

import (
	"errors"
	"testing"
	"time"
)

func fullyDisqualifiedShare() *Share {
	past := time.Now().Add(-time.Hour)
	return &Share{
		ID:        "share-1",
		Disabled:  true,
		ExpiresAt: &past,
		Views:     5,
		ViewLimit: 5,
		SaltPW:    "00ff:AAAA",
	}
}

// Precedence is fixed: disabled, then expired, then view limit, then
// password. Peeling conditions off one by one must walk exactly that order.
func TestGatePrecedence(t *testing.T) {
	share := fullyDisqualifiedShare()

	if state := NewShareGate(share).State(); state != StateDisabled {
		t.Fatalf("Expected disabled, got %s", state)
	}

	share.Disabled = false
	if state := NewShareGate(share).State(); state != StateExpired {
		t.Fatalf("Expected expired, got %s", state)
	}

	share.ExpiresAt = nil
	if state := NewShareGate(share).State(); state != StateViewLimitReached {
		t.Fatalf("Expected view limit reached, got %s", state)
	}

	share.ViewLimit = 0
	if state := NewShareGate(share).State(); state != StatePasswordRequired {
		t.Fatalf("Expected password required, got %s", state)
	}

	share.SaltPW = ""
	if state := NewShareGate(share).State(); state != StateUnlocked {
		t.Fatalf("Expected unlocked, got %s", state)
	}
}

func TestGateAdmitErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Share)
		wantErr error
	}{
		{"disabled", func(s *Share) { s.Disabled = true }, ErrShareDisabled},
		{"expired", func(s *Share) { past := time.Now().Add(-time.Minute); s.ExpiresAt = &past }, ErrShareExpired},
		{"view limit", func(s *Share) { s.Views, s.ViewLimit = 3, 3 }, ErrViewLimitReached},
		{"password", func(s *Share) { s.SaltPW = "00ff:AAAA" }, ErrPasswordRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			share := &Share{ID: "share-1"}
			tt.mutate(share)

			err := NewShareGate(share).Admit()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr != ErrPasswordRequired && !errors.Is(err, ErrShareUnavailable) {
				t.Errorf("Terminal states must wrap ErrShareUnavailable, got %v", err)
			}
		})
	}
}

func TestGateUnlockTransition(t *testing.T) {
	share := &Share{ID: "share-1", SaltPW: "00ff:AAAA"}
	gate := NewShareGate(share)

	if state := gate.State(); state != StatePasswordRequired {
		t.Fatalf("Expected password required, got %s", state)
	}

	gate.MarkUnlocked()
	if state := gate.State(); state != StateUnlocked {
		t.Fatalf("Expected unlocked after MarkUnlocked, got %s", state)
	}
	if err := gate.Admit(); err != nil {
		t.Errorf("Admit should pass after unlock: %v", err)
	}
}

// Unlocking a password share does not override the other disqualifiers.
func TestGateUnlockDoesNotBypassDisabled(t *testing.T) {
	share := &Share{ID: "share-1", Disabled: true, SaltPW: "00ff:AAAA"}
	gate := NewShareGate(share)
	gate.MarkUnlocked()

	if state := gate.State(); state != StateDisabled {
		t.Fatalf("Expected disabled, got %s", state)
	}
}

func TestGateViewsBelowLimit(t *testing.T) {
	share := &Share{ID: "share-1", Views: 2, ViewLimit: 3}
	if state := NewShareGate(share).State(); state != StateUnlocked {
		t.Fatalf("Expected unlocked below the limit, got %s", state)
	}
}

func TestGateNilShareIsLoading(t *testing.T) {
	if state := NewShareGate(nil).State(); state != StateLoading {
		t.Fatalf("Expected loading, got %s", state)
	}
}
