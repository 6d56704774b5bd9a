// Package api implements the HTTP status API and WebSocket event feed.
//
// Endpoints (all under /api/v1):
//   - GET  /health          broker and database health
//   - GET  /status          relay state and runtime statistics
//   - GET  /commands        the loaded command table and duplicate report
//   - GET  /commands/{code} one command table entry
//   - GET  /pending         queries waiting for a response
//   - GET  /history         recorded relay events (kind, code, since, limit, offset)
//   - POST /dispatch        inject a DTMF code as if received from the radio
//   - GET  /ws              live relay events, filtered by ?kinds=reply,expired
//
// Prometheus metrics are served on /metrics when a gatherer is supplied.
//
// The API has no authentication and is meant to listen on a local
// interface only.
package api
