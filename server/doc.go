// Package server exposes a relay.Runner to live clients over websockets.
//
// Each websocket connection may start any number of runs with
// claude-command messages and cancel them with abort-session messages.
// Events from every run on a connection are written to that connection as
// JSON text frames. The server also answers admin queries about active
// sessions and serves Prometheus metrics:
//
//	GET /ws                  websocket endpoint
//	GET /health              liveness
//	GET /api/sessions        active session ids
//	GET /api/sessions/{id}   one session's state
//	GET /metrics             Prometheus exposition
package server
