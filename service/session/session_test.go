package session

import (
	"strings"
	"testing"
	"time"

	"PulseChat/service/gateway"
)

func TestGenerateSignInRoundtrip(t *testing.T) {
	p := NewProvider(DefaultOptions([]byte("test-secret")))

	token, exp, err := p.Generate("u1", "alice@test.local")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expiry in the past: %v", exp)
	}

	sess, err := p.SignIn(token)
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	if sess.UserID != "u1" || sess.Email != "alice@test.local" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	cur, ok := p.Current()
	if !ok || cur.UserID != "u1" {
		t.Fatalf("current session not installed: %+v ok=%v", cur, ok)
	}
}

func TestSignInRejectsWrongSecret(t *testing.T) {
	signer := NewProvider(DefaultOptions([]byte("secret-a")))
	verifier := NewProvider(DefaultOptions([]byte("secret-b")))

	token, _, err := signer.Generate("u1", "a@b.c")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := verifier.SignIn(token); err == nil {
		t.Fatal("token signed with a different secret was accepted")
	}
	if _, ok := verifier.Current(); ok {
		t.Fatal("failed sign-in installed a session")
	}
}

func TestSignInRejectsMissingSubject(t *testing.T) {
	p := NewProvider(DefaultOptions([]byte("test-secret")))

	token, _, err := p.Generate("", "a@b.c")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	_, err = p.SignIn(token)
	if err == nil || !strings.Contains(err.Error(), "sub") {
		t.Fatalf("expected missing-sub error, got %v", err)
	}
}

func TestLifecycleCallbacks(t *testing.T) {
	p := NewProvider(DefaultOptions([]byte("test-secret")))

	var events []string
	p.OnChange(func(s *gateway.Session) {
		if s == nil {
			events = append(events, "out")
			return
		}
		events = append(events, "in:"+s.UserID)
	})

	token, _, err := p.Generate("u1", "a@b.c")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := p.SignIn(token); err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	// re-verifying the same user's token must not refire
	if _, err := p.SignIn(token); err != nil {
		t.Fatalf("re-sign in failed: %v", err)
	}
	p.SignOut()
	p.SignOut() // already signed out, no second event

	want := []string{"in:u1", "out"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}
