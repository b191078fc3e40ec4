package engine

// RuleDraft builds a trigger rule across the four wizard steps: basics,
// scope, conditions, response. Each step validates incrementally; Validate
// gates the final commit, so only fully valid rules ever reach the store.
type RuleDraft struct {
	rule TriggerRule
}

func NewRuleDraft() *RuleDraft {
	return &RuleDraft{
		rule: TriggerRule{
			Priority:   PriorityMedium,
			IsActive:   true,
			SourceType: SourceAll,
			SenderType: SenderAuto,
		},
	}
}

// SetBasics is step 1: name and priority.
func (d *RuleDraft) SetBasics(name string, priority int) error {
	if name == "" {
		return &InvalidRuleConfigError{Field: "name", Reason: "must not be empty"}
	}
	if priority < PriorityLow || priority > PriorityHigh {
		return &InvalidRuleConfigError{Field: "priority", Reason: "must be low, medium, or high"}
	}
	d.rule.Name = name
	d.rule.Priority = priority
	return nil
}

// SetScope is step 2: source groups and keyword sets.
func (d *RuleDraft) SetScope(sourceType string, groupIDs, keywordSetIDs []uint) error {
	if sourceType != SourceAll && sourceType != SourceSpecific {
		return &InvalidRuleConfigError{Field: "source_type", Reason: "must be all or specific"}
	}
	if sourceType == SourceSpecific && len(groupIDs) == 0 {
		return &InvalidRuleConfigError{Field: "source_group_ids", Reason: "specific scope requires at least one group"}
	}
	if len(keywordSetIDs) == 0 {
		return &InvalidRuleConfigError{Field: "keyword_set_ids", Reason: "at least one keyword set is required"}
	}
	d.rule.SourceType = sourceType
	d.rule.SourceGroupIDs = groupIDs
	d.rule.KeywordSetIDs = keywordSetIDs
	return nil
}

// SetConditions is step 3: the optional gate checks.
func (d *RuleDraft) SetConditions(cond RuleConditions) error {
	if tr := cond.TimeRange; tr != nil {
		if tr.StartHour < 0 || tr.StartHour > 23 || tr.EndHour < 0 || tr.EndHour > 23 {
			return &InvalidRuleConfigError{Field: "time_range", Reason: "hours must be within 0-23"}
		}
	}
	d.rule.Conditions = cond
	return nil
}

// SetResponse is step 4: response type, sender policy, delays and limits.
func (d *RuleDraft) SetResponse(responseType string, cfg ResponseConfig, senderType string, senderAccountIDs []uint, delayMin, delayMax, dailyLimit int) error {
	switch responseType {
	case ResponseAIChat, ResponseTemplate, ResponseScript, ResponseRecordOnly:
	default:
		return &InvalidRuleConfigError{Field: "response_type", Reason: "unknown response type"}
	}
	if responseType == ResponseTemplate && cfg.TemplateID == 0 {
		return &InvalidRuleConfigError{Field: "response_config.template_id", Reason: "template response requires a template id"}
	}
	if senderType == SenderSpecific && len(senderAccountIDs) == 0 {
		return &InvalidRuleConfigError{Field: "sender_account_ids", Reason: "specific sender requires at least one account"}
	}
	if delayMin < 0 || delayMax < delayMin {
		return &InvalidRuleConfigError{Field: "delay", Reason: "delay range must satisfy 0 <= min <= max"}
	}
	d.rule.ResponseType = responseType
	d.rule.ResponseConfig = cfg
	d.rule.SenderType = senderType
	d.rule.SenderAccountIDs = senderAccountIDs
	d.rule.DelayMin = delayMin
	d.rule.DelayMax = delayMax
	d.rule.DailyLimit = dailyLimit
	return nil
}

// SetSideEffects toggles the lead capture and operator notification flags.
func (d *RuleDraft) SetSideEffects(autoAddLead, notifyMe bool) {
	d.rule.AutoAddLead = autoAddLead
	d.rule.NotifyMe = notifyMe
}

// Validate runs the full save-time check over the assembled draft.
func (d *RuleDraft) Validate() error {
	return ValidateRule(&d.rule)
}

// Build returns the completed rule. Returns an error unless the draft
// passes the full validation gate.
func (d *RuleDraft) Build() (*TriggerRule, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	rule := d.rule
	return &rule, nil
}
