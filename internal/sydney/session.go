// ABOUTME: ConversationSession lifecycle: handle acquisition, expiry, one exchange at a time.
// ABOUTME: Owns the conversation timer and the single-flight around handle creation.

package sydney

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Defaults for the session tunables. Tests override them with short values
// to exercise real timer paths.
const (
	DefaultResponseTimeout  = 8 * time.Second
	DefaultConversationTTL  = 24 * time.Hour
	DefaultThrottleInterval = 500 * time.Millisecond
)

// createTimeout bounds the conversation-creation request. It is detached
// from any single waiter's context because other waiters share the result.
const createTimeout = 30 * time.Second

// Config carries everything a Session needs. There is no package-level
// mutable state; endpoints and credentials travel with the session.
type Config struct {
	CreateURL string // conversation-creation endpoint
	ChatURL   string // websocket chat endpoint
	Cookie    string // session cookie credential (_U)

	// Zero values fall back to the defaults above.
	ResponseTimeout  time.Duration // silence bound between inbound frames
	ConversationTTL  time.Duration // handle lifetime without activity
	ThrottleInterval time.Duration // progress notification cadence

	HTTPClient *http.Client
	Dial       DialFunc
	Logger     *slog.Logger
}

// SendOptions customize one exchange.
type SendOptions struct {
	Locale     string
	Market     string
	Region     string
	Location   *Location
	OnProgress ProgressFunc
}

// Location is an optional caller location hint.
type Location struct {
	Lat    float64
	Lng    float64
	Radius int // meters
}

// Session manages one logical conversation: handle creation and expiry, the
// conversation timer, and at most one in-flight exchange. A Session is safe
// for concurrent use; overlapping exchanges are rejected with ErrSessionBusy.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu             sync.Mutex
	handle         Handle
	expired        bool
	startOfSession bool
	busy           bool
	convTimer      *time.Timer
	cancelExchange context.CancelFunc

	creating singleflight.Group
}

// NewSession returns a session with no backend conversation yet; the first
// SendMessage creates one.
func NewSession(cfg Config) *Session {
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.ConversationTTL <= 0 {
		cfg.ConversationTTL = DefaultConversationTTL
	}
	if cfg.ThrottleInterval <= 0 {
		cfg.ThrottleInterval = DefaultThrottleInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Dial == nil {
		cfg.Dial = dialWebSocket
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:     cfg,
		logger:  logger.With("component", "sydney"),
		expired: true,
	}
}

// Expired reports whether the session currently has no usable handle.
// True before the first exchange, after the conversation timer fires, and
// after any exchange failure.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired || !s.handle.Valid()
}

// SendMessage runs one full exchange: ensure a handle exists, open a
// transport, drive the streaming protocol, and return the final result.
// Progress snapshots are delivered through opts.OnProgress, throttled.
//
// Any failure leaves the session expired so the next call transparently
// re-creates the handle; no error here is fatal to the session.
func (s *Session) SendMessage(ctx context.Context, text string, opts SendOptions) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrSessionBusy
	}
	s.busy = true
	s.cancelExchange = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.cancelExchange = nil
		s.mu.Unlock()
	}()

	handle, start, err := s.ensureHandle(ctx)
	if err != nil {
		return nil, err
	}

	ex := &exchange{
		session:  s,
		handle:   handle,
		start:    start,
		text:     text,
		opts:     opts,
		logger:   s.logger,
		acc:      newAccumulator(),
		progress: newNotifier(s.cfg.ThrottleInterval, opts.OnProgress),
	}

	res, err := ex.run(ctx)
	if err != nil {
		// Leave a clean slate: the handle may be mid-exchange on the
		// backend side and cannot be safely resumed.
		s.expire()
		return nil, err
	}
	return res, nil
}

// Reset tears the session down immediately without contacting the backend.
// Safe to call at any state; redundant calls are no-ops.
func (s *Session) Reset() {
	s.mu.Lock()
	cancel := s.cancelExchange
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.expire()
	s.logger.Info("session reset")
}

// ensureHandle returns the current handle, creating one if the session is
// expired. Concurrent callers coalesce onto a single creation request and
// all observe the same outcome.
func (s *Session) ensureHandle(ctx context.Context) (Handle, bool, error) {
	s.mu.Lock()
	h, start, err := s.handleLocked()
	s.mu.Unlock()
	if err == nil {
		return h, start, nil
	}
	// errHandleExpired: create a fresh handle, coalescing concurrent waiters.

	ch := s.creating.DoChan("create", func() (any, error) {
		createCtx, cancel := context.WithTimeout(context.Background(), createTimeout)
		defer cancel()

		h, err := createHandle(createCtx, s.cfg.HTTPClient, s.cfg.CreateURL, s.cfg.Cookie)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.handle = h
		s.expired = false
		s.startOfSession = true
		s.armConversationTimerLocked()
		s.mu.Unlock()

		s.logger.Info("conversation created", "conversation_id", h.ConversationID)
		return h, nil
	})

	select {
	case <-ctx.Done():
		return Handle{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Handle{}, false, res.Err
		}
		s.mu.Lock()
		start := s.startOfSession
		s.mu.Unlock()
		return res.Val.(Handle), start, nil
	}
}

// handleLocked returns the live handle and start-of-session flag, or
// errHandleExpired when the session needs a fresh handle. Caller holds s.mu.
func (s *Session) handleLocked() (Handle, bool, error) {
	if s.expired || !s.handle.Valid() {
		return Handle{}, false, errHandleExpired
	}
	return s.handle, s.startOfSession, nil
}

// noteQuerySent records that the first query for this handle is out: the
// start-of-session flag drops for the rest of the handle's life and the
// conversation timer restarts.
func (s *Session) noteQuerySent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startOfSession = false
	s.armConversationTimerLocked()
}

// armConversationTimerLocked (re)starts the inactivity timer bounding the
// handle's total lifetime. Caller must hold s.mu.
func (s *Session) armConversationTimerLocked() {
	if s.convTimer != nil {
		s.convTimer.Stop()
	}
	s.convTimer = time.AfterFunc(s.cfg.ConversationTTL, func() {
		s.logger.Info("conversation expired", "ttl", s.cfg.ConversationTTL)
		s.expire()
	})
}

// expire clears the handle and stops the conversation timer so the next
// exchange re-creates everything. Idempotent.
func (s *Session) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expired = true
	s.startOfSession = false
	s.handle = Handle{}
	if s.convTimer != nil {
		s.convTimer.Stop()
		s.convTimer = nil
	}
}

func (s *Session) responseTimeout() time.Duration {
	return s.cfg.ResponseTimeout
}
