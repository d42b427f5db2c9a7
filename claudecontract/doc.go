// Package claudecontract holds the strings the relay shares with the claude
// CLI binary: flag names, output formats and the stream-json event vocabulary.
//
// When the CLI renames a flag or an event type only this package changes.
//
//	args := []string{
//	    claudecontract.FlagPrint,
//	    claudecontract.FlagOutputFormat, claudecontract.FormatStreamJSON,
//	    claudecontract.FlagVerbose,
//	}
//
// Source: claude --help and https://code.claude.com/docs/en/cli-reference
package claudecontract
