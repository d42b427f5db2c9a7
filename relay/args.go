package relay

import (
	"strings"

	"github.com/randalmurphal/claude-relay/claudecontract"
)

// BuildArgs maps a prompt and request options to the CLI argument vector.
// The prompt is always the last element and is passed through untouched;
// arguments go to exec directly, never through a shell.
func BuildArgs(prompt string, opts Options) []string {
	args := []string{
		claudecontract.FlagPrint,
		claudecontract.FlagOutputFormat, claudecontract.FormatStreamJSON,
		claudecontract.FlagVerbose,
	}

	if opts.SessionID != "" {
		args = append(args, claudecontract.FlagResume, opts.SessionID)
	}

	args = appendToolArgs(args, claudecontract.FlagAllowedTools, opts.ToolsSettings.AllowedTools)
	args = appendToolArgs(args, claudecontract.FlagDisallowedTools, opts.ToolsSettings.DisallowedTools)

	if opts.Model != "" {
		args = append(args, claudecontract.FlagModel, opts.Model)
	}

	return append(args, prompt)
}

// appendToolArgs adds flag with the comma-joined tools, keeping their order.
func appendToolArgs(args []string, flag string, tools []string) []string {
	if len(tools) == 0 {
		return args
	}
	return append(args, flag, strings.Join(tools, claudecontract.ToolListSeparator))
}
