package engine

import (
	"errors"
	"fmt"
)

// ErrNoEligibleSender is returned when no sender account has quota left.
// It is not a failure of the engine: the trigger is still counted, only the
// send is skipped.
var ErrNoEligibleSender = errors.New("no eligible sender account")

// ErrPersistenceConflict marks a retryable storage conflict (busy database,
// concurrent write). Handlers surface it without discarding the in-progress
// edit.
var ErrPersistenceConflict = errors.New("storage conflict, retry the operation")

// InvalidRuleConfigError rejects a rule at save time, before it can reach
// the resolver.
type InvalidRuleConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidRuleConfigError) Error() string {
	return fmt.Sprintf("invalid rule config: %s: %s", e.Field, e.Reason)
}

// ValidateRule checks the save-time invariants of a rule.
func ValidateRule(r *TriggerRule) error {
	if r.Name == "" {
		return &InvalidRuleConfigError{Field: "name", Reason: "must not be empty"}
	}
	if len(r.KeywordSetIDs) == 0 {
		return &InvalidRuleConfigError{Field: "keyword_set_ids", Reason: "at least one keyword set is required"}
	}
	if r.SourceType == SourceSpecific && len(r.SourceGroupIDs) == 0 {
		return &InvalidRuleConfigError{Field: "source_group_ids", Reason: "specific scope requires at least one group"}
	}
	switch r.ResponseType {
	case ResponseAIChat, ResponseTemplate, ResponseScript, ResponseRecordOnly:
	default:
		return &InvalidRuleConfigError{Field: "response_type", Reason: "unknown response type"}
	}
	if r.ResponseType == ResponseTemplate && r.ResponseConfig.TemplateID == 0 {
		return &InvalidRuleConfigError{Field: "response_config.template_id", Reason: "template response requires a template id"}
	}
	if r.SenderType == SenderSpecific && len(r.SenderAccountIDs) == 0 {
		return &InvalidRuleConfigError{Field: "sender_account_ids", Reason: "specific sender requires at least one account"}
	}
	if r.DelayMin < 0 || r.DelayMax < r.DelayMin {
		return &InvalidRuleConfigError{Field: "delay", Reason: "delay range must satisfy 0 <= min <= max"}
	}
	return nil
}
