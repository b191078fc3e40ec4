package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeHits struct {
	mu   sync.Mutex
	hits map[uint][]string
}

func newFakeHits() *fakeHits {
	return &fakeHits{hits: make(map[uint][]string)}
}

func (f *fakeHits) RecordKeywordHits(setID uint, keywords []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[setID] = append(f.hits[setID], keywords...)
}

type fakeCounts struct {
	mu     sync.Mutex
	counts map[uint]int
}

func (f *fakeCounts) SaveAccountCount(accountID uint, count int, date string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[uint]int)
	}
	f.counts[accountID] = count
}

func pipelineSnapshot() *Snapshot {
	return &Snapshot{
		Rules: []*TriggerRule{
			{
				ID: 1, Name: "welcome", Priority: PriorityHigh, IsActive: true,
				SourceType: SourceAll, KeywordSetIDs: []uint{10},
				Conditions:     RuleConditions{OncePerUser: true},
				ResponseType:   ResponseTemplate,
				ResponseConfig: ResponseConfig{TemplateID: 7},
				SenderType:     SenderAuto,
				NotifyMe:       true,
			},
		},
		KeywordSets: []KeywordSet{
			{ID: 10, Name: "pricing", MatchMode: MatchModeFuzzy, IsActive: true, Keywords: []Keyword{{Text: "price"}, {Text: "多少錢"}}},
		},
		Groups: []MonitoredGroup{
			{ID: 1, Name: "Gophers", KeywordSetIDs: []uint{10}},
		},
		Accounts: []MonitoringAccount{
			{ID: 3, Phone: "+100", IsSender: true, Status: AccountConnected, DailySendLimit: 5},
		},
		Templates: []ChatTemplate{
			{ID: 7, Content: "Hello {{username}}"},
		},
	}
}

type pipelineFixture struct {
	eng      *Engine
	ledger   *fakeLedger
	hits     *fakeHits
	exec     *fakeExecutor
	leads    *fakeLeads
	notifier *fakeNotifier
	counts   *fakeCounts
}

func newPipeline(t *testing.T, snap *Snapshot) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		ledger:   newFakeLedger(),
		hits:     newFakeHits(),
		exec:     &fakeExecutor{},
		leads:    &fakeLeads{},
		notifier: &fakeNotifier{},
		counts:   &fakeCounts{},
	}
	f.eng = NewEngine(NewRateLimiter(), NewStatsAggregator(nil), f.ledger, f.hits, f.exec, f.leads, f.notifier)
	f.eng.Counts = f.counts
	f.eng.afterDelay = func(d time.Duration, fn func()) { fn() }
	f.eng.ReplaceSnapshot(snap, nil)
	return f
}

func TestPipelineSuccessfulDispatch(t *testing.T) {
	snap := pipelineSnapshot()
	f := newPipeline(t, snap)

	f.eng.Process(MessageContext{
		GroupID:      1,
		SenderUserID: "u1",
		Username:     "alice",
		Text:         "what is the price?",
		Timestamp:    time.Now(),
	})

	rule := snap.Rules[0]
	require.Equal(t, 1, rule.TriggerCount)
	require.Equal(t, 1, rule.SuccessCount)
	require.Equal(t, 1, f.exec.sent())
	require.Equal(t, "Hello alice", f.exec.actions[0].Payload)
	require.Equal(t, uint(3), f.exec.actions[0].AccountID)

	// Once-per-user ledger entry was written, so a second message from the
	// same user does not fire.
	require.True(t, f.ledger.HasTriggered(1, "u1"))
	f.eng.Process(MessageContext{GroupID: 1, SenderUserID: "u1", Text: "price again"})
	require.Equal(t, 1, rule.TriggerCount)

	// Keyword hit counters were forwarded to the store.
	require.Equal(t, []string{"price"}, f.hits.hits[10])

	// The committed daily count was written back for the sender account.
	require.Equal(t, 1, f.counts.counts[3])

	// Operator notification fired for the notify_me rule.
	require.Equal(t, []string{"welcome"}, f.notifier.triggered)
}

func TestPipelineExhaustedSenderCountsTriggerOnly(t *testing.T) {
	// acc 3 has daily limit 5 and five committed sends already: the sole
	// eligible sender is spent.
	snap := pipelineSnapshot()
	snap.Rules[0].Conditions = RuleConditions{}
	snap.Accounts[0].DailySendCount = 5
	f := newPipeline(t, snap)
	f.eng.Limiter.SeedAccount(3, 5, f.eng.Limiter.today())

	f.eng.Process(MessageContext{GroupID: 1, SenderUserID: "u1", Text: "price?"})

	rule := snap.Rules[0]
	require.Equal(t, 1, rule.TriggerCount)
	require.Equal(t, 0, rule.SuccessCount)
	require.Equal(t, 0, f.exec.sent())

	log := f.eng.Stats.SessionLog()
	require.Len(t, log, 1)
	require.False(t, log[0].Success)
}

func TestPipelineRecordOnly(t *testing.T) {
	snap := pipelineSnapshot()
	snap.Rules[0].Conditions = RuleConditions{}
	snap.Rules[0].ResponseType = ResponseRecordOnly
	snap.Rules[0].AutoAddLead = true
	f := newPipeline(t, snap)

	f.eng.Process(MessageContext{GroupID: 1, SenderUserID: "u1", Username: "alice", Text: "price?"})

	rule := snap.Rules[0]
	require.Equal(t, 1, rule.TriggerCount)
	require.Equal(t, 0, rule.SuccessCount, "record_only never counts as success")
	require.Equal(t, 0, f.exec.sent())
	require.Len(t, f.leads.leads, 1)
	require.Equal(t, "price", f.leads.leads[0].Keyword)
	require.Equal(t, "Gophers", f.leads.leads[0].GroupName)
}

func TestPipelineIgnoresUnmonitoredGroup(t *testing.T) {
	snap := pipelineSnapshot()
	f := newPipeline(t, snap)

	f.eng.Process(MessageContext{GroupID: 99, SenderUserID: "u1", Text: "price?"})
	require.Equal(t, 0, snap.Rules[0].TriggerCount)
}

func TestPipelineConditionFailureAborts(t *testing.T) {
	snap := pipelineSnapshot()
	snap.Rules[0].Conditions = RuleConditions{ExcludeAdmin: true}
	f := newPipeline(t, snap)

	f.eng.Process(MessageContext{GroupID: 1, SenderUserID: "u1", Text: "price?", IsSenderAdmin: true})

	// A failed condition aborts matching entirely; no trigger, no log.
	require.Equal(t, 0, snap.Rules[0].TriggerCount)
	require.Empty(t, f.eng.Stats.SessionLog())
}

func TestPipelineStaleSendCancelledOnCommit(t *testing.T) {
	snap := pipelineSnapshot()
	snap.Rules[0].Conditions = RuleConditions{}
	f := newPipeline(t, snap)

	// Disable the rule between the decision and the delayed commit.
	f.eng.afterDelay = func(d time.Duration, fn func()) {
		snap.Rules[0].IsActive = false
		fn()
	}

	f.eng.Process(MessageContext{GroupID: 1, SenderUserID: "u1", Text: "price?"})

	rule := snap.Rules[0]
	require.Equal(t, 1, rule.TriggerCount)
	require.Equal(t, 0, rule.SuccessCount)
	require.Equal(t, 0, f.exec.sent())

	// The reserved quota unit was released: the next message can reserve.
	snap.Rules[0].IsActive = true
	f.eng.afterDelay = func(d time.Duration, fn func()) { fn() }
	f.eng.Process(MessageContext{GroupID: 1, SenderUserID: "u2", Text: "price?"})
	require.Equal(t, 1, f.exec.sent())
}

func TestPipelineSemiModeConfirm(t *testing.T) {
	snap := pipelineSnapshot()
	snap.Rules[0].Conditions = RuleConditions{}
	snap.Rules[0].ResponseType = ResponseAIChat
	snap.Rules[0].ResponseConfig = ResponseConfig{AIMode: AIModeSemi}
	f := newPipeline(t, snap)

	f.eng.Process(MessageContext{GroupID: 1, SenderUserID: "u1", Text: "price?"})

	rule := snap.Rules[0]
	require.Equal(t, 1, rule.TriggerCount)
	require.Equal(t, 0, rule.SuccessCount, "pending confirmation is not yet a success")

	pending := f.eng.Dispatcher.Pending()
	require.Len(t, pending, 1)

	require.True(t, f.eng.ConfirmPending(pending[0].Action.ID))
	require.Equal(t, 1, rule.SuccessCount)
	require.Equal(t, 1, f.exec.sent())
}

func TestPipelineSemiModeReject(t *testing.T) {
	snap := pipelineSnapshot()
	snap.Rules[0].Conditions = RuleConditions{}
	snap.Rules[0].ResponseType = ResponseAIChat
	snap.Rules[0].ResponseConfig = ResponseConfig{AIMode: AIModeSemi}
	f := newPipeline(t, snap)

	f.eng.Process(MessageContext{GroupID: 1, SenderUserID: "u1", Text: "price?"})
	pending := f.eng.Dispatcher.Pending()
	require.Len(t, pending, 1)

	require.True(t, f.eng.RejectPending(pending[0].Action.ID))
	require.Equal(t, 0, snap.Rules[0].SuccessCount)
	require.Equal(t, 0, f.exec.sent())
}

func TestStreamOrderingWithinStream(t *testing.T) {
	snap := pipelineSnapshot()
	snap.Rules[0].Conditions = RuleConditions{}
	f := newPipeline(t, snap)

	for i := 0; i < 10; i++ {
		f.eng.HandleMessage(MessageContext{GroupID: 1, SenderAccountID: 1, SenderUserID: "u1", Text: "price?"})
	}
	f.eng.Stop()

	require.Equal(t, 5, snap.Rules[0].SuccessCount, "sends stop at the account daily limit")
	require.Equal(t, 10, snap.Rules[0].TriggerCount)
}

func TestCounterReadsDuringIngestion(t *testing.T) {
	snap := pipelineSnapshot()
	snap.Rules[0].Conditions = RuleConditions{}
	snap.Accounts[0].DailySendLimit = 1000
	f := newPipeline(t, snap)

	// Counter reads go through the aggregator while the pipeline writes;
	// run under the race detector this verifies both sides stay behind the
	// same mutex.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			f.eng.Stats.RuleStats(snap.Rules[0], time.Now())
			f.eng.Stats.Overview(snap.Rules, time.Now())
		}
	}()

	for i := 0; i < 200; i++ {
		f.eng.HandleMessage(MessageContext{GroupID: 1, SenderUserID: "u1", Text: "price?"})
	}
	f.eng.Stop()
	<-done

	stats := f.eng.Stats.RuleStats(snap.Rules[0], time.Now())
	require.Equal(t, 200, stats.TriggerCount)
	require.Equal(t, 200, stats.SuccessCount)
}

func TestIngestionIndependentAcrossStreams(t *testing.T) {
	snap := pipelineSnapshot()
	snap.Rules[0].Conditions = RuleConditions{}
	snap.Accounts[0].DailySendLimit = 1000
	snap.Groups = append(snap.Groups, MonitoredGroup{ID: 2, Name: "Rustaceans", KeywordSetIDs: []uint{10}})
	f := newPipeline(t, snap)

	gate := make(chan struct{})
	f.exec.gate = gate

	// Wedge the first stream: its worker blocks in the executor and the
	// surplus fills the stream buffer until the producer itself blocks.
	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		for i := 0; i < 80; i++ {
			f.eng.HandleMessage(MessageContext{GroupID: 1, SenderAccountID: 1, SenderUserID: "u1", Text: "price?"})
		}
	}()

	// A message for an independent stream must still be accepted promptly.
	accepted := make(chan struct{})
	go func() {
		f.eng.HandleMessage(MessageContext{GroupID: 2, SenderAccountID: 1, SenderUserID: "u2", Text: "price?"})
		close(accepted)
	}()

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("a saturated stream stalled ingestion on an independent stream")
	}

	close(gate)
	<-producerDone
	f.eng.Stop()

	require.Equal(t, 81, f.exec.sent())
}

func TestDryRunHasNoSideEffects(t *testing.T) {
	snap := pipelineSnapshot()
	f := newPipeline(t, snap)
	rule := snap.Rules[0]

	result := f.eng.Test(rule, "多少錢一個月")
	require.True(t, result.Matched)
	require.Equal(t, []string{"多少錢"}, result.MatchedKeywords)
	require.True(t, result.ConditionsMet)
	require.Equal(t, "Hello ", result.ResponsePreview)

	require.Equal(t, 0, rule.TriggerCount)
	require.Equal(t, 0, f.exec.sent())
	require.Empty(t, f.ledger.entries)
	require.Empty(t, f.hits.hits)

	miss := f.eng.Test(rule, "unrelated")
	require.False(t, miss.Matched)
	require.Empty(t, miss.ResponsePreview)
}
