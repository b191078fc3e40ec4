package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chat-monitor/internal/logger"
)

// LedgerStore is the persistence side of the once-per-user trigger ledger.
type LedgerStore interface {
	TriggerLedger
	RecordTrigger(ruleID uint, userID string)
}

// KeywordHitStore persists per-keyword match counts, keeping each set's
// totalMatches equal to the sum of its keyword counts.
type KeywordHitStore interface {
	RecordKeywordHits(setID uint, keywords []string)
}

// AccountCountStore writes back an account's committed daily send count so it
// survives a restart.
type AccountCountStore interface {
	SaveAccountCount(accountID uint, count int, date string)
}

// Engine runs the monitoring pipeline: match, resolve, gate, reserve, and
// hand off to the asynchronous dispatcher. Messages from the same
// (group, account) stream are processed in arrival order; independent
// streams run concurrently.
type Engine struct {
	snapshot atomic.Pointer[Snapshot]

	Limiter    *RateLimiter
	Stats      *StatsAggregator
	Dispatcher *Dispatcher

	ledger   LedgerStore
	hits     KeywordHitStore
	notifier Notifier

	// Counts, when set, receives the committed daily send count after each
	// successful send.
	Counts AccountCountStore

	mu      sync.Mutex
	streams map[string]chan MessageContext
	wg      sync.WaitGroup
	senders sync.WaitGroup
	closed  bool

	// afterDelay schedules the commit step; tests replace it to run inline.
	afterDelay func(d time.Duration, fn func())
}

func NewEngine(limiter *RateLimiter, stats *StatsAggregator, ledger LedgerStore, hits KeywordHitStore, executor SendExecutor, leads LeadSink, notifier Notifier) *Engine {
	e := &Engine{
		Limiter:  limiter,
		Stats:    stats,
		ledger:   ledger,
		hits:     hits,
		notifier: notifier,
		streams:  make(map[string]chan MessageContext),
		afterDelay: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
	e.Dispatcher = NewDispatcher(e.Snapshot, limiter, executor, leads, notifier)
	e.snapshot.Store(&Snapshot{})
	return e
}

// Snapshot returns the current catalog snapshot. Always complete, never
// torn: replacement swaps the whole pointer.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// ReplaceSnapshot installs a freshly loaded catalog snapshot and seeds the
// rate limiter with the persisted daily counts.
func (e *Engine) ReplaceSnapshot(snap *Snapshot, countDates map[uint]string) {
	for i := range snap.Accounts {
		acc := &snap.Accounts[i]
		if date, ok := countDates[acc.ID]; ok {
			e.Limiter.SeedAccount(acc.ID, acc.DailySendCount, date)
		}
	}
	e.snapshot.Store(snap)
}

// HandleMessage queues an incoming message on its (group, account) stream.
// Returns immediately; the stream worker performs the synchronous decision
// and schedules the delayed dispatch.
func (e *Engine) HandleMessage(msg MessageContext) {
	key := fmt.Sprintf("%d/%d", msg.GroupID, msg.SenderAccountID)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	ch, ok := e.streams[key]
	if !ok {
		ch = make(chan MessageContext, 64)
		e.streams[key] = ch
		e.wg.Add(1)
		go e.runStream(ch)
	}
	// The send happens outside the lock so one full stream never stalls
	// ingestion on the others. Stop waits for in-flight senders before
	// closing any channel.
	e.senders.Add(1)
	e.mu.Unlock()

	ch <- msg
	e.senders.Done()
}

// Stop drains the stream workers. Delayed dispatch tasks already scheduled
// still fire.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	// No sender registers after closed is set, so this waits out every
	// in-flight channel send.
	e.senders.Wait()

	e.mu.Lock()
	for _, ch := range e.streams {
		close(ch)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) runStream(ch chan MessageContext) {
	defer e.wg.Done()
	for msg := range ch {
		e.Process(msg)
	}
}

// Process runs the synchronous decision path for one message: match,
// resolve, evaluate conditions, reserve a sender, then enqueue the delayed
// dispatch. Quick by design; only the dispatch task suspends.
func (e *Engine) Process(msg MessageContext) {
	snap := e.Snapshot()

	group := snap.Group(msg.GroupID)
	if group == nil {
		return
	}

	sets := snap.keywordSetsForGroup(group)
	matches := MatchKeywords(msg.Text, sets)
	if len(matches) == 0 {
		return
	}

	rule := ResolveRule(matches, msg.GroupID, snap.Rules)
	if rule == nil {
		return
	}

	if !EvaluateConditions(rule, msg, e.ledger, time.Now()) {
		return
	}

	keyword := MatchedKeyword(matches, rule)
	matchCtx := MatchContext{
		MessageContext: msg,
		GroupName:      group.Name,
		Keyword:        keyword,
	}

	// The rule fired: count the trigger and bump keyword counters before
	// the send outcome is known.
	e.Stats.RecordTrigger(rule)
	if e.ledger != nil && rule.Conditions.OncePerUser {
		e.ledger.RecordTrigger(rule.ID, msg.SenderUserID)
	}
	if e.hits != nil {
		for _, m := range matches {
			e.hits.RecordKeywordHits(m.KeywordSetID, m.MatchedKeywords)
		}
	}

	if rule.ResponseType == ResponseRecordOnly {
		e.Dispatcher.Dispatch(rule, matchCtx, nil)
		e.Stats.RecordOutcome(rule, keyword, false)
		e.notifyTriggered(rule, keyword, false)
		return
	}

	res, err := e.Limiter.Reserve(rule, snap.Accounts)
	if err != nil {
		logger.Sugar.Warnw("dispatch aborted", "rule", rule.Name, "error", err)
		e.Stats.RecordOutcome(rule, keyword, false)
		if rule.NotifyMe {
			e.notifyTriggered(rule, keyword, false)
		}
		return
	}

	action := e.Dispatcher.Dispatch(rule, matchCtx, res)
	e.notifyTriggered(rule, keyword, true)

	ruleID := rule.ID
	e.afterDelay(time.Duration(res.DelaySeconds)*time.Second, func() {
		result := e.Dispatcher.CommitSend(action)
		if result == CommitPending {
			return // outcome recorded on confirm/reject
		}
		sent := result == CommitSent
		if sent {
			e.persistAccountCount(action.AccountID)
		}
		e.recordCommitOutcome(ruleID, keyword, sent)
	})
}

// ConfirmPending releases a semi-mode AI reply for sending and records the
// outcome.
func (e *Engine) ConfirmPending(actionID string) bool {
	pc := e.findPending(actionID)
	if pc == nil {
		return false
	}
	sent := e.Dispatcher.Confirm(actionID)
	if sent {
		e.persistAccountCount(pc.Action.AccountID)
	}
	e.recordCommitOutcome(pc.Action.RuleID, pc.Action.Keyword, sent)
	return sent
}

// RejectPending discards a semi-mode AI reply and releases its quota.
func (e *Engine) RejectPending(actionID string) bool {
	pc := e.findPending(actionID)
	if pc == nil {
		return false
	}
	if !e.Dispatcher.Reject(actionID) {
		return false
	}
	e.recordCommitOutcome(pc.Action.RuleID, pc.Action.Keyword, false)
	return true
}

func (e *Engine) findPending(actionID string) *PendingConfirmation {
	for _, pc := range e.Dispatcher.Pending() {
		if pc.Action.ID == actionID {
			return pc
		}
	}
	return nil
}

func (e *Engine) persistAccountCount(accountID uint) {
	if e.Counts == nil || accountID == 0 {
		return
	}
	count, date := e.Limiter.CommittedToday(accountID)
	e.Counts.SaveAccountCount(accountID, count, date)
}

func (e *Engine) recordCommitOutcome(ruleID uint, keyword string, sent bool) {
	if rule := e.Snapshot().Rule(ruleID); rule != nil {
		e.Stats.RecordOutcome(rule, keyword, sent)
	}
}

func (e *Engine) notifyTriggered(rule *TriggerRule, keyword string, success bool) {
	if e.notifier != nil && rule.NotifyMe {
		e.notifier.RuleTriggered(rule.Name, keyword, success)
	}
}

// keywordSetsForGroup narrows the snapshot's keyword sets to those linked to
// the group.
func (s *Snapshot) keywordSetsForGroup(group *MonitoredGroup) []KeywordSet {
	if len(group.KeywordSetIDs) == 0 {
		return nil
	}
	linked := make(map[uint]bool, len(group.KeywordSetIDs))
	for _, id := range group.KeywordSetIDs {
		linked[id] = true
	}
	var out []KeywordSet
	for i := range s.KeywordSets {
		if linked[s.KeywordSets[i].ID] {
			out = append(out, s.KeywordSets[i])
		}
	}
	return out
}

// TestResult is the operator-facing dry run output.
type TestResult struct {
	Matched         bool     `json:"matched"`
	MatchedKeywords []string `json:"matched_keywords"`
	ConditionsMet   bool     `json:"conditions_met"`
	ResponsePreview string   `json:"response_preview"`
}

// Test runs a rule against a sample message with zero side effects: no
// counters, no ledger writes, no reservations, no sends.
func (e *Engine) Test(rule *TriggerRule, sampleText string) TestResult {
	snap := e.Snapshot()

	var sets []KeywordSet
	ruleSets := make(map[uint]bool, len(rule.KeywordSetIDs))
	for _, id := range rule.KeywordSetIDs {
		ruleSets[id] = true
	}
	for i := range snap.KeywordSets {
		if ruleSets[snap.KeywordSets[i].ID] {
			sets = append(sets, snap.KeywordSets[i])
		}
	}

	matches := MatchKeywords(sampleText, sets)
	result := TestResult{}
	if len(matches) == 0 {
		return result
	}
	result.Matched = true
	for _, m := range matches {
		result.MatchedKeywords = append(result.MatchedKeywords, m.MatchedKeywords...)
	}

	msg := MessageContext{Text: sampleText, Timestamp: time.Now()}
	result.ConditionsMet = EvaluateConditions(rule, msg, e.ledger, time.Now())

	matchCtx := MatchContext{MessageContext: msg, Keyword: result.MatchedKeywords[0]}
	switch rule.ResponseType {
	case ResponseTemplate:
		if tpl := snap.Template(rule.ResponseConfig.TemplateID); tpl != nil {
			result.ResponsePreview = RenderTemplate(tpl.Content, matchCtx)
		}
	case ResponseAIChat:
		result.ResponsePreview = "[AI reply"
		if rule.ResponseConfig.AIMode == AIModeSemi {
			result.ResponsePreview += ", manual confirmation"
		}
		result.ResponsePreview += "]"
	case ResponseScript:
		result.ResponsePreview = "[script " + rule.ResponseConfig.ScriptID + "]"
	case ResponseRecordOnly:
		result.ResponsePreview = "[record only]"
	}
	return result
}
