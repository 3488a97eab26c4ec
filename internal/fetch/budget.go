package fetch

import (
	"sync"
	"time"
)

// BudgetState is a point-in-time copy of one provider's call budget.
type BudgetState struct {
	Provider  string    `json:"provider"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Unlimited bool      `json:"unlimited"`
	LastCall  time.Time `json:"last_call,omitzero"`
	Day       string    `json:"day"`
}

// Budget tracks calls used today for one provider. A limit <= 0 means
// unlimited. Check-and-increment happens in one critical section so two
// concurrent callers cannot both pass the last slot.
type Budget struct {
	mu          sync.Mutex
	provider    string
	limit       int
	used        int
	lastCall    time.Time
	day         string
	fingerprint string

	now func() time.Time
}

// NewBudget creates a budget for provider with the given daily limit.
func NewBudget(provider string, limit int) *Budget {
	return &Budget{provider: provider, limit: limit, now: time.Now}
}

// Reserve claims one call for the credential identified by fingerprint. The
// count resets when the UTC day rolls over or the credential changes. It
// returns false when the budget is spent.
func (b *Budget) Reserve(fingerprint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollLocked()
	if b.fingerprint != "" && b.fingerprint != fingerprint {
		b.used = 0
	}
	b.fingerprint = fingerprint

	if b.limit > 0 && b.used >= b.limit {
		return false
	}
	b.used++
	return true
}

// Release returns a reserved call that the provider did not honor.
func (b *Budget) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used > 0 {
		b.used--
	}
}

// Touch records the moment a call was actually issued.
func (b *Budget) Touch() {
	b.mu.Lock()
	b.lastCall = b.now()
	b.mu.Unlock()
}

// Reset zeroes the count and forgets the credential.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used = 0
	b.fingerprint = ""
	b.day = dayOf(b.now())
}

// Remaining returns calls left today, or -1 when unlimited.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return b.remainingLocked()
}

// State returns a copy of the budget.
func (b *Budget) State() BudgetState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return BudgetState{
		Provider:  b.provider,
		Used:      b.used,
		Limit:     b.limit,
		Remaining: b.remainingLocked(),
		Unlimited: b.limit <= 0,
		LastCall:  b.lastCall,
		Day:       b.day,
	}
}

func (b *Budget) remainingLocked() int {
	if b.limit <= 0 {
		return -1
	}
	return max(0, b.limit-b.used)
}

func (b *Budget) rollLocked() {
	today := dayOf(b.now())
	if b.day != today {
		b.day = today
		b.used = 0
	}
}

func dayOf(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
