package budget

import (
	"strings"
	"testing"
	"time"
)

func newTestManager(budgetTokens int) *Manager {
	return NewManager(budgetTokens, time.Minute)
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"ab", 1},
		{"abc", 1},
		{"abcd", 2},
		{strings.Repeat("x", 300), 100},
	}
	for _, tt := range tests {
		if got := Estimate(tt.text); got != tt.want {
			t.Errorf("Estimate(%d chars) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestReserveAccumulates(t *testing.T) {
	m := newTestManager(100)

	chunk := strings.Repeat("x", 90) // 30 tokens

	for i := 1; i <= 3; i++ {
		ok, reset := m.Reserve("s", chunk)
		if !ok || reset {
			t.Fatalf("Reserve %d: got (ok=%v, reset=%v), want (true, false)", i, ok, reset)
		}
		if used := m.Used("s"); used != 30*i {
			t.Fatalf("After reserve %d: used %d, want %d", i, used, 30*i)
		}
	}
}

func TestReserveNeverExceedsBudget(t *testing.T) {
	m := newTestManager(50)

	// Random-ish mixed additions; the invariant must hold throughout.
	for i := 0; i < 200; i++ {
		m.Reserve("s", strings.Repeat("y", (i%40)+3))
		if used := m.Used("s"); used > m.Budget() {
			t.Fatalf("Iteration %d: used %d exceeds budget %d", i, used, m.Budget())
		}
	}
}

func TestReserveSummarizesBeforeReset(t *testing.T) {
	m := newTestManager(100)

	// Three exchanges of 30 tokens each: total 90.
	for i := 0; i < 3; i++ {
		if ok, _ := m.Reserve("s", strings.Repeat("x", 90)); !ok {
			t.Fatalf("Setup reserve %d failed", i)
		}
	}

	// 30 more does not fit as-is (would be 120), but summarization
	// collapses the oldest exchange to a quarter: 7 + 30 + 30 = 67.
	ok, reset := m.Reserve("s", strings.Repeat("x", 90))
	if !ok || reset {
		t.Fatalf("Expected summarization to make room, got (ok=%v, reset=%v)", ok, reset)
	}
	if used := m.Used("s"); used != 97 {
		t.Errorf("After summarize+commit: used %d, want 97", used)
	}
}

func TestReserveResetsWhenSummarizationInsufficient(t *testing.T) {
	m := newTestManager(100)

	// Two large exchanges; summarize keeps the last two untouched, so it
	// cannot make room.
	m.Reserve("s", strings.Repeat("x", 150)) // 50 tokens
	m.Reserve("s", strings.Repeat("x", 120)) // 40 tokens

	ok, reset := m.Reserve("s", strings.Repeat("x", 120))
	if ok || !reset {
		t.Fatalf("Expected reset, got (ok=%v, reset=%v)", ok, reset)
	}
	// The failed addition must not be committed.
	if used := m.Used("s"); used != 0 {
		t.Errorf("After reset: used %d, want 0", used)
	}

	// The session is fresh; the same addition now fits.
	ok, reset = m.Reserve("s", strings.Repeat("x", 120))
	if !ok || reset {
		t.Fatalf("Expected fresh session to accept, got (ok=%v, reset=%v)", ok, reset)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	m := newTestManager(100)

	m.Reserve("a", strings.Repeat("x", 240)) // 80 tokens in a
	if used := m.Used("b"); used != 0 {
		t.Errorf("Session b contaminated: used %d", used)
	}

	ok, _ := m.Reserve("b", strings.Repeat("x", 240))
	if !ok {
		t.Error("Session b must have its own budget")
	}
}

func TestWillFit(t *testing.T) {
	m := newTestManager(100)

	if !m.WillFit("s", strings.Repeat("x", 300)) {
		t.Error("Empty session must fit a budget-sized addition")
	}
	// WillFit must not commit anything.
	if used := m.Used("s"); used != 0 {
		t.Errorf("WillFit committed %d tokens", used)
	}

	m.Reserve("s", strings.Repeat("x", 270)) // 90 tokens
	if m.WillFit("s", strings.Repeat("x", 60)) {
		t.Error("Expected 20-token addition not to fit in 10 remaining")
	}
}

func TestAppendOverflowIsSilent(t *testing.T) {
	m := newTestManager(100)

	m.Reserve("s", strings.Repeat("x", 270)) // 90 tokens

	// Response pushes past the budget; Append applies the overflow
	// policy itself and the total ends within budget either way.
	m.Append("s", strings.Repeat("x", 120))
	if used := m.Used("s"); used > m.Budget() {
		t.Errorf("After Append: used %d exceeds budget %d", used, m.Budget())
	}
}

func TestReset(t *testing.T) {
	m := newTestManager(100)

	m.Reserve("s", strings.Repeat("x", 90))
	m.Reset("s")
	if used := m.Used("s"); used != 0 {
		t.Errorf("After Reset: used %d, want 0", used)
	}
}

func TestBusySessionSurvivesIdleExpiry(t *testing.T) {
	m := NewManager(1000, 80*time.Millisecond)

	if ok, _ := m.Reserve("chat", "123456789"); !ok { // 3 tokens
		t.Fatal("Reserve failed")
	}

	// Touch the session at intervals well inside the idle window, for
	// longer than the window itself. Expiry is idle-based, so a busy
	// session must never be dropped mid-conversation.
	for i := 0; i < 8; i++ {
		time.Sleep(20 * time.Millisecond)
		m.WillFit("chat", "x")
	}

	if got := m.Used("chat"); got != 3 {
		t.Errorf("Used = %d, want 3: busy session was dropped", got)
	}
}
