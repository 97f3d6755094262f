package events

// Event enumerates high-level topics inside the rule engine.
type Event string

const (
	EventMarketTick       Event = "market_tick"
	EventRuleResult       Event = "rule_result"
	EventRuleConflict     Event = "rule_conflict"
	EventUserAction       Event = "user_action"
	EventPlaybookDeployed Event = "playbook_deployed"
	EventEngineError      Event = "engine_error"
)
