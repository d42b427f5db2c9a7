package claudecontract

// Output formats for --output-format.
const (
	// FormatText is plain text output (CLI default).
	FormatText = "text"

	// FormatJSON is a single JSON document printed at exit.
	FormatJSON = "json"

	// FormatStreamJSON is newline-delimited JSON, one event per line.
	FormatStreamJSON = "stream-json"
)

// ExitCodeSuccess is the only exit status the CLI uses for a completed run.
const ExitCodeSuccess = 0
