package claudecontract

// Stream event types from stream-json output.
const (
	// EventTypeSystem carries init, hook_response and compact_boundary events.
	EventTypeSystem = "system"

	// EventTypeAssistant is a model response.
	EventTypeAssistant = "assistant"

	// EventTypeUser echoes user turns, including tool results.
	EventTypeUser = "user"

	// EventTypeResult is the final line of a run, with cost and usage.
	EventTypeResult = "result"
)

// System event subtypes.
const (
	SubtypeInit            = "init"
	SubtypeHookResponse    = "hook_response"
	SubtypeCompactBoundary = "compact_boundary"
)

// Result subtypes.
const (
	ResultSubtypeSuccess              = "success"
	ResultSubtypeErrorMaxTurns        = "error_max_turns"
	ResultSubtypeErrorDuringExecution = "error_during_execution"
	ResultSubtypeErrorMaxBudgetUSD    = "error_max_budget_usd"
)

// JSON field names the relay reads from every stream line.
const (
	FieldType         = "type"
	FieldSubtype      = "subtype"
	FieldSessionID    = "session_id"
	FieldTotalCostUSD = "total_cost_usd"
)
