package guard

import (
	"errors"
	"testing"
	"time"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	return New(5 * time.Minute)
}

// ─── Detection ───────────────────────────────────────────────────────────────

func TestDetect_BulkPhrases(t *testing.T) {
	g := newTestGuard(t)

	cases := []struct {
		text   string
		action Action
	}{
		{"delete all tasks", ActionDeleteAll},
		{"Delete ALL my tasks please", ActionDeleteAll},
		{"please delete every todo", ActionDeleteAll},
		{"remove all tasks", ActionDeleteAll},
		{"clear each todo from my list", ActionDeleteAll},
		{"complete all tasks", ActionCompleteAll},
		{"mark all tasks as done", ActionCompleteAll},
		{"mark every todo as complete", ActionCompleteAll},
		{"finish each task", ActionCompleteAll},
	}

	for _, tc := range cases {
		action, ok := g.Detect(tc.text)
		if !ok {
			t.Errorf("Detect(%q) = no action, want %s", tc.text, tc.action)
			continue
		}
		if action != tc.action {
			t.Errorf("Detect(%q) = %s, want %s", tc.text, action, tc.action)
		}
	}
}

func TestDetect_IgnoresSpecificRequests(t *testing.T) {
	g := newTestGuard(t)

	for _, text := range []string{
		"delete my task about groceries",
		"complete the first task",
		"remove task 3",
		"show me all tasks",
		"mark the meeting task as done",
		"",
	} {
		if action, ok := g.Detect(text); ok {
			t.Errorf("Detect(%q) = %s, want no action", text, action)
		}
	}
}

func TestDetect_FirstMatchWins(t *testing.T) {
	g := newTestGuard(t)

	// "delete all tasks and complete every todo" matches the delete
	// pattern first.
	action, ok := g.Detect("delete all tasks and complete every todo")
	if !ok || action != ActionDeleteAll {
		t.Errorf("Detect = %s (%v), want %s", action, ok, ActionDeleteAll)
	}
}

// ─── Token lifecycle ─────────────────────────────────────────────────────────

func TestRedeem_SingleUse(t *testing.T) {
	g := newTestGuard(t)

	token, err := g.RequestConfirmation("user-1", ActionDeleteAll)
	if err != nil {
		t.Fatalf("RequestConfirmation: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	action, err := g.Redeem(token, "user-1")
	if err != nil {
		t.Fatalf("first Redeem: %v", err)
	}
	if action != ActionDeleteAll {
		t.Errorf("Redeem action = %s, want %s", action, ActionDeleteAll)
	}

	if _, err := g.Redeem(token, "user-1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("second Redeem err = %v, want ErrInvalidToken", err)
	}
}

func TestRedeem_WrongUser(t *testing.T) {
	g := newTestGuard(t)

	token, err := g.RequestConfirmation("user-1", ActionCompleteAll)
	if err != nil {
		t.Fatalf("RequestConfirmation: %v", err)
	}

	if _, err := g.Redeem(token, "user-2"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign Redeem err = %v, want ErrInvalidToken", err)
	}

	// Consumed by the failed attempt: the owner cannot use it either.
	if _, err := g.Redeem(token, "user-1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("owner Redeem after foreign attempt err = %v, want ErrInvalidToken", err)
	}
}

func TestRedeem_UnknownToken(t *testing.T) {
	g := newTestGuard(t)

	if _, err := g.Redeem("no-such-token", "user-1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Redeem err = %v, want ErrInvalidToken", err)
	}
}

func TestRedeem_Expired(t *testing.T) {
	g := newTestGuard(t)

	now := time.Now()
	g.now = func() time.Time { return now }

	token, err := g.RequestConfirmation("user-1", ActionDeleteAll)
	if err != nil {
		t.Fatalf("RequestConfirmation: %v", err)
	}

	g.now = func() time.Time { return now.Add(6 * time.Minute) }

	if _, err := g.Redeem(token, "user-1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired Redeem err = %v, want ErrInvalidToken", err)
	}
}

func TestRequestConfirmation_SweepsExpired(t *testing.T) {
	g := newTestGuard(t)

	now := time.Now()
	g.now = func() time.Time { return now }

	if _, err := g.RequestConfirmation("user-1", ActionDeleteAll); err != nil {
		t.Fatalf("RequestConfirmation: %v", err)
	}
	if g.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", g.Pending())
	}

	g.now = func() time.Time { return now.Add(10 * time.Minute) }

	if _, err := g.RequestConfirmation("user-1", ActionCompleteAll); err != nil {
		t.Fatalf("RequestConfirmation: %v", err)
	}
	if g.Pending() != 1 {
		t.Errorf("Pending = %d, want 1 after sweep", g.Pending())
	}
}

func TestTokensAreUnique(t *testing.T) {
	g := newTestGuard(t)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		token, err := g.RequestConfirmation("user-1", ActionDeleteAll)
		if err != nil {
			t.Fatalf("RequestConfirmation: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true
	}
}
