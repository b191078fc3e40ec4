package engine

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-monitor/internal/logger"
)

// ActionDescriptor is the engine's output to the send-executor collaborator.
type ActionDescriptor struct {
	ID            string    `json:"id"`
	RuleID        uint      `json:"rule_id"`
	RuleName      string    `json:"rule_name"`
	AccountID     uint      `json:"account_id"`
	GroupID       uint      `json:"group_id"`
	ResponseType  string    `json:"response_type"`
	AIMode        string    `json:"ai_mode,omitempty"`
	ScriptID      string    `json:"script_id,omitempty"`
	Payload       string    `json:"payload,omitempty"`
	Keyword       string    `json:"keyword,omitempty"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	ReservationID string    `json:"-"`
	Outbound      bool      `json:"outbound"`
}

// Lead is a captured prospect emitted by the auto-add-lead side effect.
type Lead struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	GroupName string `json:"group_name"`
	Keyword   string `json:"keyword"`
	RuleName  string `json:"rule_name"`
}

// LeadSink receives captured leads. Implemented by the persistence
// collaborator.
type LeadSink interface {
	AddLead(lead Lead)
}

// Notifier receives operator-facing events. Implemented by the dashboard
// bridge.
type Notifier interface {
	RuleTriggered(ruleName, keyword string, success bool)
	LeadAdded(lead Lead)
}

// SendExecutor performs the actual outbound send. The engine never talks to
// the chat platform itself.
type SendExecutor interface {
	Execute(action *ActionDescriptor) error
}

// Semi-mode confirmation states
const (
	ConfirmationPending  = "pending_confirmation"
	ConfirmationSent     = "sent"
	ConfirmationRejected = "rejected"
)

// PendingConfirmation is an ai_chat semi-mode action waiting for a human
// decision.
type PendingConfirmation struct {
	Action    *ActionDescriptor
	State     string
	CreatedAt time.Time
}

var placeholderPattern = regexp.MustCompile(`\{\{[^{}]*\}\}`)

// Dispatcher turns a resolved rule into a send action and owns the
// commit-time re-verification of delayed sends.
type Dispatcher struct {
	snapshot func() *Snapshot
	limiter  *RateLimiter
	executor SendExecutor
	leads    LeadSink
	notifier Notifier

	mu      sync.Mutex
	pending map[string]*PendingConfirmation
}

func NewDispatcher(snapshot func() *Snapshot, limiter *RateLimiter, executor SendExecutor, leads LeadSink, notifier Notifier) *Dispatcher {
	return &Dispatcher{
		snapshot: snapshot,
		limiter:  limiter,
		executor: executor,
		leads:    leads,
		notifier: notifier,
		pending:  make(map[string]*PendingConfirmation),
	}
}

// Dispatch builds the action descriptor for a resolved rule and fires the
// rule's side effects. The reservation is nil for record_only rules, which
// produce no outbound action.
func (d *Dispatcher) Dispatch(rule *TriggerRule, matchCtx MatchContext, res *Reservation) *ActionDescriptor {
	action := &ActionDescriptor{
		ID:           uuid.NewString(),
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		GroupID:      matchCtx.GroupID,
		ResponseType: rule.ResponseType,
		Keyword:      matchCtx.Keyword,
		ScheduledAt:  time.Now(),
		Outbound:     rule.ResponseType != ResponseRecordOnly,
	}
	if res != nil {
		action.AccountID = res.AccountID
		action.ReservationID = res.ID
		action.ScheduledAt = time.Now().Add(time.Duration(res.DelaySeconds) * time.Second)
	}

	switch rule.ResponseType {
	case ResponseAIChat:
		action.AIMode = rule.ResponseConfig.AIMode
		if action.AIMode == "" {
			action.AIMode = AIModeFull
		}
		action.Payload = rule.ResponseConfig.Prompt
	case ResponseTemplate:
		action.Payload = d.renderTemplate(rule.ResponseConfig.TemplateID, matchCtx)
	case ResponseScript:
		action.ScriptID = rule.ResponseConfig.ScriptID
	}

	// Side effects fire independently of the response type.
	if rule.AutoAddLead {
		lead := Lead{
			UserID:    matchCtx.SenderUserID,
			Username:  matchCtx.Username,
			GroupName: matchCtx.GroupName,
			Keyword:   matchCtx.Keyword,
			RuleName:  rule.Name,
		}
		if d.leads != nil {
			d.leads.AddLead(lead)
		}
		if d.notifier != nil {
			d.notifier.LeadAdded(lead)
		}
	}

	return action
}

// CommitResult is the outcome of committing a delayed action.
type CommitResult int

const (
	CommitCancelled CommitResult = iota
	CommitSent
	CommitPending
)

// CommitSend executes a delayed action once its delay has elapsed. The rule
// must still be active and the group still monitored; otherwise the action
// is cancelled silently and the reserved quota unit is released. Semi-mode
// AI replies are parked for operator confirmation instead of sending.
func (d *Dispatcher) CommitSend(action *ActionDescriptor) CommitResult {
	if !action.Outbound {
		return CommitCancelled
	}

	if !d.stillEligible(action) {
		d.cancel(action)
		return CommitCancelled
	}

	if action.ResponseType == ResponseAIChat && action.AIMode == AIModeSemi {
		d.mu.Lock()
		d.pending[action.ID] = &PendingConfirmation{
			Action:    action,
			State:     ConfirmationPending,
			CreatedAt: time.Now(),
		}
		d.mu.Unlock()
		logger.Sugar.Infow("ai reply held for confirmation", "action", action.ID, "rule", action.RuleName)
		return CommitPending
	}

	if d.execute(action) {
		return CommitSent
	}
	return CommitCancelled
}

// Confirm releases a semi-mode action for sending. Returns true when the
// send executed.
func (d *Dispatcher) Confirm(actionID string) bool {
	d.mu.Lock()
	pc, ok := d.pending[actionID]
	if !ok || pc.State != ConfirmationPending {
		d.mu.Unlock()
		return false
	}
	pc.State = ConfirmationSent
	delete(d.pending, actionID)
	d.mu.Unlock()

	if !d.stillEligible(pc.Action) {
		d.cancel(pc.Action)
		return false
	}
	return d.execute(pc.Action)
}

// Reject discards a semi-mode action and releases its quota.
func (d *Dispatcher) Reject(actionID string) bool {
	d.mu.Lock()
	pc, ok := d.pending[actionID]
	if !ok || pc.State != ConfirmationPending {
		d.mu.Unlock()
		return false
	}
	pc.State = ConfirmationRejected
	delete(d.pending, actionID)
	d.mu.Unlock()

	d.cancel(pc.Action)
	return true
}

// Pending lists actions currently awaiting operator confirmation.
func (d *Dispatcher) Pending() []*PendingConfirmation {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*PendingConfirmation, 0, len(d.pending))
	for _, pc := range d.pending {
		out = append(out, pc)
	}
	return out
}

func (d *Dispatcher) execute(action *ActionDescriptor) bool {
	if d.executor != nil {
		if err := d.executor.Execute(action); err != nil {
			logger.Sugar.Errorw("send execution failed", "action", action.ID, "error", err)
			d.cancel(action)
			return false
		}
	}
	if d.limiter != nil && action.ReservationID != "" {
		d.limiter.Commit(action.ReservationID)
	}
	return true
}

func (d *Dispatcher) cancel(action *ActionDescriptor) {
	if d.limiter != nil && action.ReservationID != "" {
		d.limiter.Release(action.ReservationID)
	}
}

// stillEligible re-verifies the rule and group against the current snapshot
// at commit time, so a rule disabled during the delay window does not cause
// a stale send.
func (d *Dispatcher) stillEligible(action *ActionDescriptor) bool {
	if d.snapshot == nil {
		return true
	}
	snap := d.snapshot()
	if snap == nil {
		return false
	}
	rule := snap.Rule(action.RuleID)
	if rule == nil || !rule.IsActive {
		return false
	}
	return snap.Group(action.GroupID) != nil
}

// renderTemplate resolves the rule's template and substitutes the supported
// variables. Any placeholder left unresolved is stripped to an empty string.
func (d *Dispatcher) renderTemplate(templateID uint, matchCtx MatchContext) string {
	var content string
	if d.snapshot != nil {
		if snap := d.snapshot(); snap != nil {
			if tpl := snap.Template(templateID); tpl != nil {
				content = tpl.Content
			}
		}
	}
	if content == "" {
		return ""
	}
	return RenderTemplate(content, matchCtx)
}

// RenderTemplate substitutes the supported {{variable}} placeholders and
// strips anything it does not recognize.
func RenderTemplate(content string, matchCtx MatchContext) string {
	now := time.Now()
	replacer := strings.NewReplacer(
		"{{username}}", matchCtx.Username,
		"{{firstName}}", matchCtx.FirstName,
		"{{groupName}}", matchCtx.GroupName,
		"{{keyword}}", matchCtx.Keyword,
		"{{date}}", now.Format("2006-01-02"),
		"{{time}}", now.Format("15:04"),
	)
	out := replacer.Replace(content)
	return placeholderPattern.ReplaceAllString(out, "")
}
