// Package relay runs the claude CLI for a client request and forwards its
// stream-json output to a live sink as it is produced.
//
// # Basic Usage
//
//	reg := session.NewRegistry()
//	runner := relay.NewRunner(reg, relay.WithClaudePath("claude"))
//
//	err := runner.Run(ctx, "fix the failing test", relay.Options{
//	    Cwd: "/path/to/project",
//	}, sink)
//
// Each output line is forwarded as a claude-response event. The first
// session_id seen rekeys the run in the registry, and for new sessions a
// session-created event is sent before the line itself. A run ends with
// claude-complete on exit code 0, or claude-error followed by a returned
// *Error otherwise.
//
// # Cancellation
//
// Abort sends SIGTERM to the run's process group and SIGKILL after the grace
// period if it is still alive. Whichever of Abort and the natural exit path
// removes the registry entry first finalizes the run; the other does nothing.
//
// # Events
//
// Event is a closed union of SessionCreated, Response, Complete and
// ErrorEvent. Response carries a Payload that is either a parsed Record or
// the raw text of a line that was not a JSON object. EventSchema returns the
// JSON schema of the wire format.
package relay
