// ABOUTME: Matrix-facing dispatcher: routes user messages to per-user sydney sessions.
// ABOUTME: Owns the session map, the reset command, and progress relay via message edits.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/sydney-bridge/internal/config"
	"github.com/2389/sydney-bridge/internal/dedupe"
	"github.com/2389/sydney-bridge/internal/sydney"
	"github.com/2389/sydney-bridge/internal/wire"
)

// matrixSender is the slice of the Matrix SDK the dispatcher needs for
// outbound traffic. *mautrix.Client satisfies it.
type matrixSender interface {
	SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON any, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
	UserTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) (*mautrix.RespTyping, error)
}

// dedupe window for replayed sync events
const (
	seenTTL     = 10 * time.Minute
	seenMaxSize = 4096
)

// typingTimeout is how long a typing indicator shows before Matrix drops it.
const typingTimeout = 30 * time.Second

// networkTimeout bounds outbound Matrix API calls that run off the request path.
const networkTimeout = 10 * time.Second

// Bridge connects Matrix rooms to the chat backend. Each Matrix sender gets
// its own ConversationSession; overlapping questions from the same sender
// are answered with a busy notice rather than interleaved.
type Bridge struct {
	cfg    *config.Config
	matrix *mautrix.Client
	send   matrixSender
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[id.UserID]*sydney.Session

	newSession func() *sydney.Session
	seen       *dedupe.Cache

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a bridge from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Matrix.Homeserver, id.UserID(cfg.Matrix.UserID), cfg.Matrix.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	return &Bridge{
		cfg:      cfg,
		matrix:   client,
		send:     client,
		logger:   logger.With("component", "bridge"),
		sessions: make(map[id.UserID]*sydney.Session),
		seen:     dedupe.New(seenTTL, seenMaxSize),
		newSession: func() *sydney.Session {
			return sydney.NewSession(sydney.Config{
				CreateURL:       cfg.Backend.CreateURL,
				ChatURL:         cfg.Backend.ChatURL,
				Cookie:          cfg.Backend.Cookie,
				ResponseTimeout: cfg.Backend.ResponseTimeout,
				ConversationTTL: cfg.Backend.ConversationTTL,
				Logger:          logger,
			})
		},
	}, nil
}

// Run starts the Matrix sync loop and blocks until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting bridge",
		"homeserver", b.cfg.Matrix.Homeserver,
		"user_id", b.cfg.Matrix.UserID,
	)

	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()

	syncer, ok := b.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.matrix.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.matrix.SyncWithContext(b.ctx)
	}()

	b.logger.Info("bridge running")

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down bridge")
		b.cancel()
		return nil
	case err := <-syncErr:
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessageEvent filters inbound Matrix events down to fresh text
// messages from allowed rooms and hands them to processMessage.
func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(b.cfg.Matrix.UserID) {
		return
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}
	if b.seen.Seen(evt.ID.String()) {
		b.logger.Debug("dropping replayed event", "event_id", evt.ID)
		return
	}
	if !b.isRoomAllowed(evt.RoomID.String()) {
		b.logger.Debug("ignoring message from non-allowed room", "room", evt.RoomID)
		return
	}

	body := content.Body
	if prefix := b.cfg.Bridge.CommandPrefix; prefix != "" {
		if !strings.HasPrefix(body, prefix) {
			return
		}
		body = strings.TrimSpace(strings.TrimPrefix(body, prefix))
	}
	if body == "" {
		return
	}

	b.logger.Info("received message",
		"room", evt.RoomID.String(),
		"sender", evt.Sender.String(),
	)

	// Process off the sync loop; the bridge context covers shutdown.
	go b.processMessage(b.ctx, evt.RoomID, evt.Sender, body)
}

// processMessage runs one exchange for a user and relays progress and the
// final answer back into the room.
func (b *Bridge) processMessage(ctx context.Context, roomID id.RoomID, sender id.UserID, text string) {
	if text == b.cfg.Bridge.ResetCommand {
		b.resetSession(sender)
		b.sendText(roomID, "Conversation reset.")
		return
	}

	session := b.sessionFor(sender)

	if b.cfg.Bridge.TypingIndicator {
		b.setTyping(roomID, true)
		defer b.setTyping(roomID, false)
	}

	placeholder := b.sendPlaceholder(roomID)

	opts := sydney.SendOptions{
		Locale: b.cfg.Backend.Locale,
		Market: b.cfg.Backend.Market,
		Region: b.cfg.Backend.Region,
	}
	if placeholder != "" {
		opts.OnProgress = func(msgs []wire.Message) {
			if body := progressBody(msgs); body != "" {
				b.editMessage(roomID, placeholder, body, "")
			}
		}
	}

	res, err := session.SendMessage(ctx, text, opts)
	if err != nil {
		b.logger.Error("exchange failed",
			"room", roomID.String(),
			"sender", sender.String(),
			"error", err,
		)
		b.reply(roomID, placeholder, userFacingError(err), "")
		return
	}

	plain, html := formatAnswer(res)
	if plain == "" {
		plain = "The conversation ended without an answer."
	}
	b.reply(roomID, placeholder, plain, html)
}

// sessionFor returns the sender's session, creating one atomically if needed.
func (b *Bridge) sessionFor(user id.UserID) *sydney.Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.sessions[user]; ok {
		return s
	}
	s := b.newSession()
	b.sessions[user] = s
	b.logger.Debug("session created", "user", user.String())
	return s
}

// resetSession tears down the sender's session without contacting the backend.
func (b *Bridge) resetSession(user id.UserID) {
	b.mu.Lock()
	s := b.sessions[user]
	b.mu.Unlock()

	if s != nil {
		s.Reset()
	}
	b.logger.Info("session reset", "user", user.String())
}

// isRoomAllowed checks the room against the configured allow list.
func (b *Bridge) isRoomAllowed(roomID string) bool {
	if len(b.cfg.Bridge.AllowedRooms) == 0 {
		return true
	}
	for _, allowed := range b.cfg.Bridge.AllowedRooms {
		if allowed == roomID {
			return true
		}
	}
	return false
}

// userFacingError maps the session error taxonomy onto room-appropriate text.
func userFacingError(err error) string {
	var backendErr *sydney.BackendUnavailableError
	switch {
	case errors.Is(err, sydney.ErrSessionBusy):
		return "I'm still working on your previous message. Try again in a moment."
	case errors.Is(err, sydney.ErrResponseTimeout):
		return "The backend stopped responding mid-answer. Please try again."
	case errors.As(err, &backendErr):
		return fmt.Sprintf("The backend refused a new conversation (status %d). Please try again later.", backendErr.StatusCode)
	default:
		return "Something went wrong talking to the backend. Please try again."
	}
}

// sendPlaceholder posts the message that later edits will replace. An empty
// event ID means the send failed and progress relay is skipped.
func (b *Bridge) sendPlaceholder(roomID id.RoomID) id.EventID {
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()

	resp, err := b.send.SendText(ctx, roomID, "…")
	if err != nil {
		b.logger.Warn("failed to send placeholder", "room", roomID.String(), "error", err)
		return ""
	}
	return resp.EventID
}

// reply edits the placeholder with the final body, or sends a fresh message
// when there is no placeholder to edit.
func (b *Bridge) reply(roomID id.RoomID, placeholder id.EventID, plain, html string) {
	if placeholder != "" {
		b.editMessage(roomID, placeholder, plain, html)
		return
	}
	b.sendText(roomID, plain)
}

// editMessage replaces the placeholder's content via an m.replace relation.
func (b *Bridge) editMessage(roomID id.RoomID, target id.EventID, plain, html string) {
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    plain,
	}
	if html != "" && html != plain {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}
	content.SetEdit(target)

	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()

	if _, err := b.send.SendMessageEvent(ctx, roomID, event.EventMessage, &content); err != nil {
		b.logger.Warn("failed to edit message", "room", roomID.String(), "error", err)
	}
}

// sendText sends a plain text message to a room.
func (b *Bridge) sendText(roomID id.RoomID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := b.send.SendText(ctx, roomID, text); err != nil {
		b.logger.Error("failed to send message", "room", roomID.String(), "error", err)
	}
}

// setTyping toggles the typing indicator for a room.
func (b *Bridge) setTyping(roomID id.RoomID, typing bool) {
	var timeout time.Duration
	if typing {
		timeout = typingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()

	if _, err := b.send.UserTyping(ctx, roomID, typing, timeout); err != nil {
		b.logger.Debug("failed to set typing indicator", "room", roomID.String(), "error", err)
	}
}
