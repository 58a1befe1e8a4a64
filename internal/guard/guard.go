// Package guard gates bulk task operations behind an explicit
// confirmation round-trip. Ambiguous natural language is the one place
// where agent misinterpretation has outsized blast radius, so a
// detected bulk phrase never executes directly: the caller must replay
// a freshly minted single-use token first.
package guard

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Action is the coarse kind of a detected bulk operation.
type Action string

const (
	ActionDeleteAll   Action = "delete_all"
	ActionCompleteAll Action = "complete_all"
)

// ErrInvalidToken is returned when a confirmation token is unknown,
// expired, or owned by a different user. It is distinct from "no bulk
// action detected" so callers can surface a clear rejection instead of
// silently proceeding.
var ErrInvalidToken = errors.New("invalid confirmation token")

// bulkPatterns is the fixed, ordered set of phrase patterns. First
// match wins. Singular, specific requests ("delete my task about
// groceries") intentionally do not match.
var bulkPatterns = []struct {
	re     *regexp.Regexp
	action Action
}{
	{regexp.MustCompile(`delete\s+(all|every|each)\s+(?:(?:of\s+)?(?:my|the|our)\s+)?(task|todo)`), ActionDeleteAll},
	{regexp.MustCompile(`(remove|clear)\s+(all|every|each)\s+(?:(?:of\s+)?(?:my|the|our)\s+)?(task|todo)`), ActionDeleteAll},
	{regexp.MustCompile(`complete\s+(all|every|each)\s+(?:(?:of\s+)?(?:my|the|our)\s+)?(task|todo)`), ActionCompleteAll},
	{regexp.MustCompile(`mark\s+(all|every|each)\s+(?:(?:of\s+)?(?:my|the|our)\s+)?(task|todo).*(done|complete)`), ActionCompleteAll},
	{regexp.MustCompile(`finish\s+(all|every|each)\s+(?:(?:of\s+)?(?:my|the|our)\s+)?(task|todo)`), ActionCompleteAll},
}

type pending struct {
	userID    string
	action    Action
	createdAt time.Time
}

// Guard holds pending confirmation tokens. State is process-local and
// lost on restart; pending confirmations simply expire.
type Guard struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	tokens map[string]pending
}

// New creates a Guard whose tokens expire after ttl.
func New(ttl time.Duration) *Guard {
	return &Guard{
		ttl:    ttl,
		now:    time.Now,
		tokens: make(map[string]pending),
	}
}

// Detect matches text against the bulk phrase patterns,
// case-insensitively. It returns the detected action and true, or
// false when the text requests no bulk operation.
func (g *Guard) Detect(text string) (Action, bool) {
	lower := strings.ToLower(text)
	for _, p := range bulkPatterns {
		if p.re.MatchString(lower) {
			return p.action, true
		}
	}
	return "", false
}

// RequestConfirmation mints a single-use token for a detected action.
// Expired tokens are swept opportunistically while the lock is held.
func (g *Guard) RequestConfirmation(userID string, action Action) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("mint confirmation token: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for t, p := range g.tokens {
		if now.Sub(p.createdAt) > g.ttl {
			delete(g.tokens, t)
		}
	}

	g.tokens[token] = pending{
		userID:    userID,
		action:    action,
		createdAt: now,
	}
	return token, nil
}

// Redeem consumes a token exactly once. A token that is unknown,
// expired, or owned by another user yields ErrInvalidToken; the token
// is removed in every case, so a second redemption always fails.
func (g *Guard) Redeem(token, userID string) (Action, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	delete(g.tokens, token)

	if g.now().Sub(p.createdAt) > g.ttl {
		return "", ErrInvalidToken
	}
	if p.userID != userID {
		return "", ErrInvalidToken
	}
	return p.action, nil
}

// Pending reports the number of outstanding tokens. Used by tests and
// the readiness probe.
func (g *Guard) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tokens)
}

// Describe returns the human-readable phrasing of an action, used in
// confirmation prompts.
func Describe(action Action) string {
	if action == ActionDeleteAll {
		return "delete all"
	}
	return "mark all as complete"
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
