package claudecontract

// CLI flag names used by the relay, exactly as the claude binary spells them.
const (
	FlagPrint        = "--print"         // -p, run non-interactively and exit
	FlagOutputFormat = "--output-format" // text, json, stream-json
	FlagVerbose      = "--verbose"       // required by stream-json in print mode

	FlagResume   = "--resume"   // -r, resume a session by ID
	FlagContinue = "--continue" // -c, continue the most recent session

	FlagModel = "--model"

	// The CLI accepts both camelCase and kebab-case for the tool flags.
	FlagAllowedTools    = "--allowedTools"
	FlagDisallowedTools = "--disallowedTools"
)

// DefaultBinary is the executable name looked up in PATH when no path is
// configured.
const DefaultBinary = "claude"

// ToolListSeparator joins tool names into a single flag value.
const ToolListSeparator = ","

// RelayFlags returns every flag the relay may emit, in the order it emits them.
func RelayFlags() []string {
	return []string{
		FlagPrint,
		FlagOutputFormat,
		FlagVerbose,
		FlagResume,
		FlagAllowedTools,
		FlagDisallowedTools,
		FlagModel,
	}
}
