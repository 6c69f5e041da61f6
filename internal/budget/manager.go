package budget

import (
	"log"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Manager tracks an estimated token total per model session and keeps
// every session under its configured budget. Estimation and commit are
// a single atomic step per session, so concurrent dispatches sharing a
// session cannot race past the budget.
type Manager struct {
	budgetTokens int
	sessions     *cache.Cache
	mu           sync.Mutex // guards session creation
}

// session is the tracked state of one bounded-context conversation.
type session struct {
	mu sync.Mutex
	// chunks holds the estimated token cost of each exchange, oldest
	// first, so summarization can collapse the head.
	chunks []int
	total  int
}

// NewManager creates a budget manager. Sessions idle past idleExpiry
// are dropped, which is equivalent to a reset on next use.
func NewManager(budgetTokens int, idleExpiry time.Duration) *Manager {
	return &Manager{
		budgetTokens: budgetTokens,
		sessions:     cache.New(idleExpiry, idleExpiry/2),
	}
}

// Estimate approximates the token count of text. Deliberately a fast
// character-count heuristic, conservative for small models; consistency
// matters more than precision here.
func Estimate(text string) int {
	return (len(text) + 2) / 3
}

// Budget returns the configured per-session token budget.
func (m *Manager) Budget() int {
	return m.budgetTokens
}

// Used returns the current tracked total for a session.
func (m *Manager) Used(sessionID string) int {
	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// WillFit reports whether the addition would fit the session's budget
// as-is, without committing and without triggering the overflow policy.
func (m *Manager) WillFit(sessionID, addition string) bool {
	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total+Estimate(addition) <= m.budgetTokens
}

// Reserve atomically fits the addition into the session and commits its
// estimate. On overflow it first summarizes the session once; if the
// addition still does not fit it resets the session (clears accumulated
// history) and reports ok=false, reset=true WITHOUT committing, so the
// caller can requeue the in-flight thought fresh rather than continue
// it against context that no longer exists. After a successful Reserve
// the tracked total never exceeds the budget.
func (m *Manager) Reserve(sessionID, addition string) (ok, reset bool) {
	tokens := Estimate(addition)
	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.total+tokens <= m.budgetTokens {
		s.commit(tokens)
		return true, false
	}

	s.summarize()
	if s.total+tokens <= m.budgetTokens {
		log.Printf("🧹 [BUDGET] Session %s summarized to %d tokens", sessionID, s.total)
		s.commit(tokens)
		return true, false
	}

	// Still over budget: clear accumulated history. The caller sees the
	// reset and requeues its thought against the now-empty session.
	s.chunks = nil
	s.total = 0
	log.Printf("♻️  [BUDGET] Session %s reset (addition: %d tokens)", sessionID, tokens)
	return false, true
}

// Append accounts a model response into the session after dispatch.
// Overflow here applies the same summarize-then-reset policy silently;
// the response itself is already durable in the store.
func (m *Manager) Append(sessionID, text string) {
	tokens := Estimate(text)
	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.total+tokens <= m.budgetTokens {
		s.commit(tokens)
		return
	}
	s.summarize()
	if s.total+tokens <= m.budgetTokens {
		s.commit(tokens)
		return
	}
	s.chunks = nil
	s.total = 0
	if tokens <= m.budgetTokens {
		s.commit(tokens)
	}
}

// Reset clears a session's accumulated history.
func (m *Manager) Reset(sessionID string) {
	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.total = 0
}

func (m *Manager) session(id string) *session {
	if v, found := m.sessions.Get(id); found {
		// Refresh the TTL on every access: only genuinely idle
		// sessions expire, not busy long-lived ones.
		m.sessions.Set(id, v, cache.DefaultExpiration)
		return v.(*session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, found := m.sessions.Get(id); found {
		return v.(*session)
	}
	s := &session{}
	m.sessions.Set(id, s, cache.DefaultExpiration)
	return s
}

func (s *session) commit(tokens int) {
	s.chunks = append(s.chunks, tokens)
	s.total += tokens
}

// summarize replaces all but the two most recent exchanges with a
// condensed representation at a quarter of their cost. Attempted once
// per overflow; if the addition still does not fit, the caller resets.
func (s *session) summarize() {
	if len(s.chunks) <= 2 {
		return
	}
	head := 0
	for _, c := range s.chunks[:len(s.chunks)-2] {
		head += c
	}
	condensed := head / 4
	tail := s.chunks[len(s.chunks)-2:]
	s.chunks = append([]int{condensed}, tail...)
	s.total = condensed + tail[0] + tail[1]
}
