// ABOUTME: The streaming exchange state machine: handshake, query, fragment stream, terminal frames.
// ABOUTME: Recovers an ordered, deduplicated, timeout-bounded result from an unordered push stream.

package sydney

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/sydney-bridge/internal/wire"
)

// State identifies where an exchange is in its lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshakePending
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshakePending:
		return "handshake_pending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// keepaliveEvery is how many inbound frames pass between keepalive pings
// sent back to hold the transport open.
const keepaliveEvery = 10

// optionsSets are the fixed backend feature flags sent on every query.
var optionsSets = []string{
	"nlu_direct_response_filter",
	"deepleo",
	"disable_emoji_spoken_text",
	"responsible_ai_policy_235",
	"enablemm",
	"dtappid",
	"rai253",
	"dv3sugg",
}

// Result is the terminal outcome of one exchange: the chosen answer
// fragment, the full ordered last-known state of every fragment, and the
// continuation fields echoed by the backend.
type Result struct {
	Answer                 wire.Message
	Messages               []wire.Message
	ConversationID         string
	ConversationExpiryTime string
}

// exchange drives one query/response cycle over a fresh transport. It is
// used once and discarded; the pending result settles exactly once.
type exchange struct {
	session *Session
	handle  Handle
	start   bool
	text    string
	opts    SendOptions
	logger  *slog.Logger

	state    State
	frames   int
	acc      *accumulator
	progress *notifier
	result   *Result
	settled  bool
}

// run executes the full state machine and returns the settled result.
func (e *exchange) run(ctx context.Context) (*Result, error) {
	requestID := uuid.New().String()
	e.logger = e.logger.With("request_id", requestID)

	e.setState(StateConnecting)
	transport, err := e.session.cfg.Dial(ctx, e.session.cfg.ChatURL)
	if err != nil {
		return e.fail(&TransportError{Err: err})
	}
	defer transport.Close()

	handshake, err := wire.Encode(wire.Handshake{Protocol: "json", Version: 1})
	if err != nil {
		return e.fail(fmt.Errorf("encoding handshake: %w", err))
	}
	if err := transport.Write(ctx, handshake); err != nil {
		return e.fail(&TransportError{Err: err})
	}
	e.setState(StateHandshakePending)

	for {
		payload, err := e.readPayload(ctx, transport)
		if err != nil {
			return e.fail(err)
		}
		for _, frame := range wire.Decode(payload) {
			done, err := e.handleFrame(ctx, transport, requestID, frame)
			if err != nil {
				return e.fail(err)
			}
			if done {
				return e.settle()
			}
		}
	}
}

// readPayload reads one transport payload under the response timeout. The
// timeout rearms on every read, so it bounds silence since the last frame.
func (e *exchange) readPayload(ctx context.Context, t Transport) ([]byte, error) {
	readCtx, cancel := context.WithTimeout(ctx, e.session.responseTimeout())
	defer cancel()

	payload, err := t.Read(readCtx)
	if err != nil {
		if errors.Is(readCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrResponseTimeout
		}
		return nil, &TransportError{Err: err}
	}
	return payload, nil
}

// handleFrame dispatches one decoded frame. It returns done=true when a
// terminal frame has settled the result.
func (e *exchange) handleFrame(ctx context.Context, t Transport, requestID string, frame wire.Frame) (bool, error) {
	if !frame.Typed {
		e.logger.Debug("ignoring opaque segment", "length", len(frame.Opaque))
		return false, nil
	}

	e.frames++
	if e.frames%keepaliveEvery == 0 {
		ping, err := wire.Encode(wire.Ping{Type: wire.FramePing})
		if err == nil {
			err = t.Write(ctx, ping)
		}
		if err != nil {
			return false, &TransportError{Err: err}
		}
		e.logger.Debug("keepalive sent", "frames", e.frames)
	}

	switch e.state {
	case StateHandshakePending:
		// The backend acknowledges the handshake with an empty-object
		// frame; anything else before that is ignored.
		if frame.Type != 0 {
			return false, nil
		}
		if err := e.sendQuery(ctx, t, requestID); err != nil {
			return false, err
		}
		e.setState(StateStreaming)
		return false, nil

	case StateStreaming:
		switch frame.Type {
		case wire.FrameUpdate:
			e.applyUpdate(frame.Raw)
		case wire.FrameCompletion:
			return e.complete(frame.Raw), nil
		case wire.FrameSessionClosed:
			e.logger.Debug("session closed by backend", "frames", e.frames)
			e.result = e.partialResult()
			return true, nil
		default:
			// Unrecognized frame types are forward-compatible no-ops.
		}
	}
	return false, nil
}

// sendQuery transmits the invocation frame and drops the start-of-session
// flag for the remainder of this handle's life.
func (e *exchange) sendQuery(ctx context.Context, t Transport, requestID string) error {
	query, err := wire.Encode(e.buildInvocation(requestID))
	if err != nil {
		return fmt.Errorf("encoding query: %w", err)
	}
	if err := t.Write(ctx, query); err != nil {
		return &TransportError{Err: err}
	}
	e.session.noteQuerySent()
	e.logger.Debug("query sent",
		"conversation_id", e.handle.ConversationID,
		"start_of_session", e.start,
	)
	return nil
}

// buildInvocation assembles the type-4 query frame for this exchange.
func (e *exchange) buildInvocation(requestID string) wire.Invocation {
	msg := wire.ChatMessage{
		Locale:      orDefault(e.opts.Locale, "en-US"),
		Market:      orDefault(e.opts.Market, "en-US"),
		Region:      orDefault(e.opts.Region, "US"),
		Author:      "user",
		InputMethod: "Keyboard",
		Text:        e.text,
		MessageType: "Chat",
		RequestID:   requestID,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if loc := e.opts.Location; loc != nil {
		msg.Location = fmt.Sprintf("lat:%.6f;long:%.6f;re=%dm", loc.Lat, loc.Lng, loc.Radius)
	}

	return wire.Invocation{
		Arguments: []wire.ChatArgument{{
			Source:                "cib",
			OptionsSets:           optionsSets,
			IsStartOfSession:      e.start,
			Message:               msg,
			ConversationSignature: e.handle.ConversationSignature,
			Participant:           wire.Participant{ID: e.handle.ClientID},
			ConversationID:        e.handle.ConversationID,
		}},
		InvocationID: "0",
		Target:       "chat",
		Type:         wire.FrameInvocation,
	}
}

// applyUpdate merges the fragments of an update frame and emits a throttled
// progress notification with the full current ordered set.
func (e *exchange) applyUpdate(raw json.RawMessage) {
	var update wire.UpdateFrame
	if err := json.Unmarshal(raw, &update); err != nil {
		e.logger.Warn("malformed update frame", "error", err)
		return
	}
	changed := false
	for _, arg := range update.Arguments {
		if len(arg.Messages) > 0 {
			e.acc.apply(arg.Messages)
			changed = true
		}
	}
	if changed {
		e.progress.publish(e.acc.snapshot())
	}
}

// complete assembles the final result from a completion frame. Status
// fragments are filtered out; the last remaining fragment is the answer.
// A malformed completion frame is ignored like any unparseable segment.
func (e *exchange) complete(raw json.RawMessage) bool {
	var completion wire.CompletionFrame
	if err := json.Unmarshal(raw, &completion); err != nil {
		e.logger.Warn("malformed completion frame", "error", err)
		return false
	}

	e.acc.apply(completion.Item.Messages)
	res := e.partialResult()
	if completion.Item.ConversationID != "" {
		res.ConversationID = completion.Item.ConversationID
	}
	res.ConversationExpiryTime = completion.Item.ConversationExpiryTime
	e.result = res
	return true
}

// partialResult builds a result from whatever has been accumulated so far.
func (e *exchange) partialResult() *Result {
	res := &Result{
		Messages:       e.acc.snapshot(),
		ConversationID: e.handle.ConversationID,
	}
	if answer, ok := e.acc.answer(); ok {
		res.Answer = answer
	}
	return res
}

// settle resolves the exchange exactly once, flushing any pending trailing
// progress so the caller has seen the final accumulated state.
func (e *exchange) settle() (*Result, error) {
	if e.settled {
		e.logger.Error("protocol violation: exchange settled twice")
		return e.result, nil
	}
	e.settled = true
	e.progress.flush()
	e.setState(StateCompleted)
	e.logger.Info("exchange completed",
		"frames", e.frames,
		"fragments", len(e.result.Messages),
	)
	return e.result, nil
}

// fail rejects the exchange exactly once. No further progress is emitted.
func (e *exchange) fail(err error) (*Result, error) {
	if e.settled {
		e.logger.Error("protocol violation: exchange failed after settling", "error", err)
		return nil, err
	}
	e.settled = true
	e.progress.stop()
	e.setState(StateFailed)
	e.logger.Warn("exchange failed", "state_frames", e.frames, "error", err)
	return nil, err
}

func (e *exchange) setState(next State) {
	e.logger.Debug("state transition", "from", e.state.String(), "to", next.String())
	e.state = next
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
