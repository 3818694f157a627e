// Package sydney implements the session client for the backend's streaming
// chat protocol.
//
// # Overview
//
// The backend exposes two surfaces: an HTTPS endpoint that mints a
// conversation handle (conversationId, clientId, conversationSignature) and
// a websocket chat endpoint speaking record-separator-delimited JSON frames.
// A Session owns one handle and drives one exchange at a time over a fresh
// transport per exchange.
//
// # Exchange lifecycle
//
// Each SendMessage call walks a fixed state machine:
//
//	Disconnected → Connecting → HandshakePending → Streaming → Completed
//
// with Failed reachable from every non-terminal state. After the transport
// opens, the client sends {"protocol":"json","version":1}; the backend
// acknowledges with an empty-object frame, upon which the query goes out.
// Update frames then stream in: fragments sharing a messageId replace each
// other (last write wins) and new ids append in first-seen order. A
// completion frame (or a bare session-closed frame) terminates the stream.
//
// # Timers
//
// Two timers bound the session:
//
//   - response timer (default 8s): rearmed on every inbound frame; silence
//     beyond it rejects the exchange with ErrResponseTimeout
//   - conversation timer (default 24h): rearmed on handle creation and on
//     every query; firing expires the handle
//
// Both are cleared on every exit path. Every 10th inbound frame is answered
// with a keepalive ping.
//
// # Failure model
//
// All failures reject the pending exchange exactly once and leave the
// session expired, so the next SendMessage transparently creates a fresh
// handle. Concurrent handle creations coalesce into a single request.
package sydney
