package engine

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reservation is a provisionally held quota unit on a sender account. It is
// committed when the send executes or released when the dispatch is
// cancelled.
type Reservation struct {
	ID           string
	RuleID       uint
	AccountID    uint
	DelaySeconds int
	CreatedAt    time.Time
}

type accountCounter struct {
	date      string // local YYYY-MM-DD the counts belong to
	committed int
	reserved  int
}

// RateLimiter enforces per-account daily quotas with a reserve-then-commit
// protocol. It is the exclusive owner of daily send counters; all access is
// serialized behind one mutex.
type RateLimiter struct {
	mu           sync.Mutex
	counters     map[uint]*accountCounter
	reservations map[string]*Reservation
	rnd          *rand.Rand
	now          func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		counters:     make(map[uint]*accountCounter),
		reservations: make(map[string]*Reservation),
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          time.Now,
	}
}

// SeedAccount loads a persisted daily count into the limiter, typically at
// snapshot refresh. Counts from an earlier day are discarded.
func (rl *RateLimiter) SeedAccount(accountID uint, count int, date string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	today := rl.today()
	if date != today {
		return
	}
	c := rl.counter(accountID)
	if count > c.committed {
		c.committed = count
	}
}

// Reserve picks a sender account for the rule and provisionally holds one
// quota unit on it, along with a randomized send delay drawn uniformly from
// [DelayMin, DelayMax]. Returns ErrNoEligibleSender when no account
// qualifies.
func (rl *RateLimiter) Reserve(rule *TriggerRule, accounts []MonitoringAccount) (*Reservation, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var best *MonitoringAccount
	bestUsed := 0
	for i := range accounts {
		acc := &accounts[i]
		if !rl.eligible(rule, acc) {
			continue
		}
		used := rl.usage(acc.ID)
		if best == nil || used < bestUsed || (used == bestUsed && acc.ID < best.ID) {
			best = acc
			bestUsed = used
		}
	}

	if best == nil {
		return nil, ErrNoEligibleSender
	}

	c := rl.counter(best.ID)
	c.reserved++

	delay := rule.DelayMin
	if rule.DelayMax > rule.DelayMin {
		delay += rl.rnd.Intn(rule.DelayMax - rule.DelayMin + 1)
	}

	res := &Reservation{
		ID:           uuid.NewString(),
		RuleID:       rule.ID,
		AccountID:    best.ID,
		DelaySeconds: delay,
		CreatedAt:    rl.now(),
	}
	rl.reservations[res.ID] = res
	return res, nil
}

// Commit converts a reservation into a committed send. Reports false when
// the reservation is unknown (already committed or released).
func (rl *RateLimiter) Commit(reservationID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	res, ok := rl.reservations[reservationID]
	if !ok {
		return false
	}
	delete(rl.reservations, reservationID)

	c := rl.counter(res.AccountID)
	if c.reserved > 0 {
		c.reserved--
	}
	c.committed++
	return true
}

// Release returns a reserved quota unit without consuming it.
func (rl *RateLimiter) Release(reservationID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	res, ok := rl.reservations[reservationID]
	if !ok {
		return
	}
	delete(rl.reservations, reservationID)

	c := rl.counter(res.AccountID)
	if c.reserved > 0 {
		c.reserved--
	}
}

// CommittedToday returns the committed send count for an account, for
// persistence write-back.
func (rl *RateLimiter) CommittedToday(accountID uint) (count int, date string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	c := rl.counter(accountID)
	return c.committed, c.date
}

func (rl *RateLimiter) eligible(rule *TriggerRule, acc *MonitoringAccount) bool {
	if !acc.IsSender || acc.Status != AccountConnected {
		return false
	}
	if rule.SenderType == SenderSpecific {
		found := false
		for _, id := range rule.SenderAccountIDs {
			if id == acc.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	limit := acc.DailySendLimit
	if rule.DailyLimit > 0 && rule.DailyLimit < limit {
		limit = rule.DailyLimit
	}
	return rl.usage(acc.ID) < limit
}

// usage counts committed plus reserved units for today.
func (rl *RateLimiter) usage(accountID uint) int {
	c := rl.counter(accountID)
	return c.committed + c.reserved
}

// counter returns the account's counter, rolling it over at the local day
// boundary. Callers must hold the mutex.
func (rl *RateLimiter) counter(accountID uint) *accountCounter {
	today := rl.today()
	c, ok := rl.counters[accountID]
	if !ok {
		c = &accountCounter{date: today}
		rl.counters[accountID] = c
	}
	if c.date != today {
		c.date = today
		c.committed = 0
		c.reserved = 0
	}
	return c
}

func (rl *RateLimiter) today() string {
	return rl.now().Local().Format("2006-01-02")
}
