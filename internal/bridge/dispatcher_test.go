// ABOUTME: Tests for the dispatcher: session map, reset command, and error replies.
// ABOUTME: Uses a fake Matrix sender and a counting conversation-creation server.

package bridge

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/sydney-bridge/internal/config"
	"github.com/2389/sydney-bridge/internal/dedupe"
	"github.com/2389/sydney-bridge/internal/sydney"
)

// fakeSender records outbound Matrix traffic.
type fakeSender struct {
	mu     sync.Mutex
	texts  []string
	edits  []*event.MessageEventContent
	nextID int
}

func (f *fakeSender) SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.nextID++
	return &mautrix.RespSendEvent{EventID: id.EventID(string(rune('A' + f.nextID)))}, nil
}

func (f *fakeSender) SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON any, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if content, ok := contentJSON.(*event.MessageEventContent); ok {
		f.edits = append(f.edits, content)
	}
	return &mautrix.RespSendEvent{EventID: "$edit"}, nil
}

func (f *fakeSender) UserTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) (*mautrix.RespTyping, error) {
	return &mautrix.RespTyping{}, nil
}

func (f *fakeSender) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeSender) lastEdit() *event.MessageEventContent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return nil
	}
	return f.edits[len(f.edits)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestBridge wires a bridge to a fake sender and a conversation-creation
// server that counts requests and answers with the given status.
func newTestBridge(t *testing.T, createStatus int) (*Bridge, *fakeSender, *atomic.Int32) {
	t.Helper()

	var creates atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creates.Add(1)
		w.WriteHeader(createStatus)
		w.Write([]byte("no conversation for you"))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Bridge: config.BridgeConfig{ResetCommand: "/reset"},
	}
	sender := &fakeSender{}
	b := &Bridge{
		cfg:      cfg,
		send:     sender,
		logger:   discardLogger(),
		sessions: make(map[id.UserID]*sydney.Session),
		seen:     dedupe.New(time.Minute, 64),
		newSession: func() *sydney.Session {
			return sydney.NewSession(sydney.Config{
				CreateURL:  srv.URL,
				ChatURL:    "wss://backend.test/chathub",
				Cookie:     "c",
				HTTPClient: srv.Client(),
				Logger:     discardLogger(),
			})
		},
	}
	return b, sender, &creates
}

func TestBridge_SessionPerUser(t *testing.T) {
	b, _, _ := newTestBridge(t, http.StatusOK)

	alice1 := b.sessionFor("@alice:example.org")
	alice2 := b.sessionFor("@alice:example.org")
	bob := b.sessionFor("@bob:example.org")

	assert.Same(t, alice1, alice2, "one session per sender")
	assert.NotSame(t, alice1, bob)
}

func TestBridge_ResetCommandSkipsBackend(t *testing.T) {
	b, sender, creates := newTestBridge(t, http.StatusOK)

	// Reset with no existing session must not panic or dial out.
	b.processMessage(context.Background(), "!room:example.org", "@alice:example.org", "/reset")

	assert.Equal(t, int32(0), creates.Load(), "reset never contacts the backend")
	texts := sender.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "Conversation reset.", texts[0])
}

func TestBridge_ResetTearsDownExistingSession(t *testing.T) {
	b, _, _ := newTestBridge(t, http.StatusOK)

	s := b.sessionFor("@alice:example.org")
	b.processMessage(context.Background(), "!room:example.org", "@alice:example.org", "/reset")

	assert.True(t, s.Expired())
	assert.Same(t, s, b.sessionFor("@alice:example.org"), "session object survives reset")
}

func TestBridge_BackendFailureProducesReply(t *testing.T) {
	b, sender, creates := newTestBridge(t, http.StatusServiceUnavailable)

	b.processMessage(context.Background(), "!room:example.org", "@alice:example.org", "hello there")

	assert.Equal(t, int32(1), creates.Load())

	texts := sender.sentTexts()
	require.NotEmpty(t, texts)
	assert.Equal(t, "…", texts[0], "placeholder goes out first")

	edit := sender.lastEdit()
	require.NotNil(t, edit, "failure is reported by editing the placeholder")
	assert.Contains(t, edit.Body, "status 503")
}

func TestBridge_IsRoomAllowed(t *testing.T) {
	b, _, _ := newTestBridge(t, http.StatusOK)

	assert.True(t, b.isRoomAllowed("!any:example.org"), "empty allow list allows all")

	b.cfg.Bridge.AllowedRooms = []string{"!good:example.org"}
	assert.True(t, b.isRoomAllowed("!good:example.org"))
	assert.False(t, b.isRoomAllowed("!other:example.org"))
}

func TestUserFacingError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"busy", sydney.ErrSessionBusy, "still working"},
		{"timeout", sydney.ErrResponseTimeout, "stopped responding"},
		{"backend", &sydney.BackendUnavailableError{StatusCode: 502}, "status 502"},
		{"other", context.Canceled, "Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, userFacingError(tt.err), tt.want)
		})
	}
}
