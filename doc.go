// Package clauderelay is a relay between live clients and the claude CLI.
//
// A client request (prompt plus options) starts one CLI process; its
// stream-json output is forwarded line by line to the client as it arrives,
// and the process can be aborted at any time. Subpackages:
//
//   - relay: process orchestration, event forwarding and cancellation
//   - session: registry of running processes keyed by session ID
//   - attachments: staging of inline images as temporary files
//   - claudecontract: CLI flags and stream-json field names
//   - config: file and environment configuration with hot reload
//   - server: websocket transport, admin HTTP and metrics
//
// # Quick Start
//
//	reg := session.NewRegistry()
//	runner := relay.NewRunner(reg, relay.WithGracePeriod(5*time.Second))
//	srv := server.New(runner)
//	http.ListenAndServe(":3001", srv.Handler())
//
// Or run the bundled binary:
//
//	claude-relay serve --config relay.yaml
package clauderelay
