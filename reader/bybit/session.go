// Package bybit owns the realtime session: connect, authenticate, subscribe,
// wait for first data, keep the connection alive and reconnect on any
// transport failure. Inbound frames are routed to the reconciler and the
// events it returns go to the dispatch queue.
package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"bybitflow/config"
	"bybitflow/internal/dispatch"
	"bybitflow/logger"
	"bybitflow/models"
	"bybitflow/processor"
)

// State of the session lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	AwaitingReady
	Ready
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case AwaitingReady:
		return "awaiting_ready"
	case Ready:
		return "ready"
	}
	return "disconnected"
}

var (
	// ErrAlreadyRunning is returned by Start on a running session.
	ErrAlreadyRunning = errors.New("session already running")
	// ErrReadyTimeout is returned when the readiness wait exceeds the
	// configured bound.
	ErrReadyTimeout = errors.New("timed out waiting for first data")
	// errNotConnected is the swallowed outcome of writes while disconnected.
	errNotConnected = errors.New("not connected")
)

// Authentication expiry headroom, tolerates clock skew against the server.
const authExpiryHeadroom = 10 * time.Second

const readyPollInterval = 100 * time.Millisecond

// Session is the live handle handed to consumer callbacks. All read
// accessors return copies of the best currently-known state and never an
// error.
type Session struct {
	cfg        config.StreamConfig
	apiKey     string
	secret     string
	channels   []string
	hasPrivate bool

	rec   *processor.Reconciler
	queue *dispatch.Queue[*Session]
	log   *logger.Entry

	dial    Dialer
	now     func() time.Time
	backoff *backoff.Backoff

	mu         sync.Mutex
	conn       Conn
	state      State
	connected  bool
	lastUpdate map[string]time.Time
	running    bool

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option adjusts session construction, mainly for tests that need to script
// the transport or the clock.
type Option func(*Session)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dial = d }
}

// WithClock replaces the time source used for stamps and auth expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithBackoff replaces the redial backoff strategy.
func WithBackoff(b *backoff.Backoff) Option {
	return func(s *Session) { s.backoff = b }
}

// NewSession wires a session against the reconciler and dispatch queue. The
// queue may be nil when no consumer callbacks are registered.
func NewSession(log *logger.Log, cfg config.StreamConfig, apiKey, secret string, rec *processor.Reconciler, queue *dispatch.Queue[*Session], opts ...Option) *Session {
	channels := cfg.ChannelList()
	hasPrivate := false
	for _, ch := range channels {
		if models.IsPrivateChannel(ch) {
			hasPrivate = true
			break
		}
	}

	s := &Session{
		cfg:        cfg,
		apiKey:     apiKey,
		secret:     secret,
		channels:   channels,
		hasPrivate: hasPrivate,
		rec:        rec,
		queue:      queue,
		log:        log.WithComponent("session").WithFields(logger.Fields{"symbol": cfg.Symbol}),
		dial:       dialWebsocket,
		now:        time.Now,
		lastUpdate: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.backoff == nil {
		// Fixed cadence: the endpoint is assumed to come back eventually,
		// there is nothing to gain from growing the delay.
		s.backoff = &backoff.Backoff{
			Min:    cfg.ReconnectBackoff,
			Max:    cfg.ReconnectBackoff,
			Factor: 1,
		}
	}
	return s
}

// Start connects, authenticates, subscribes and blocks until every public
// channel has delivered its first data or the ready timeout expires. The
// receive and keep-alive loops keep running in the background afterwards;
// transport failures redial forever until Stop.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.state = Connecting
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.log.WithFields(logger.Fields{"endpoint": s.cfg.Endpoint(), "channels": s.channels}).Info("connecting websocket")

	if !s.redial() {
		s.Stop()
		return s.ctx.Err()
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()

	if err := s.waitReady(); err != nil {
		return err
	}
	s.log.Info("received first data, session ready")
	return nil
}

// Stop tears the session down: transport closed, loops joined.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	conn := s.conn
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.conn = nil
	s.connected = false
	s.state = Disconnected
	s.mu.Unlock()
	s.log.Info("session stopped")
}

// Reconnect forces a full teardown and redial. Consumers call it when they
// detect staleness the transport has not noticed.
func (s *Session) Reconnect() {
	s.log.Info("forcing reconnect")
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		// The read loop observes the close error and runs the normal
		// teardown-and-redial path.
		conn.Close()
	}
}

// redial dials with backoff until a connection is up and the auth and
// subscribe requests went out. Returns false when the session context ended.
func (s *Session) redial() bool {
	for {
		if s.ctx.Err() != nil {
			return false
		}

		connID := uuid.NewString()[:8]
		log := s.log.WithFields(logger.Fields{"conn_id": connID})

		conn, err := s.dial(s.ctx, s.cfg.Endpoint())
		if err != nil {
			wait := s.backoff.Duration()
			log.WithError(err).WithFields(logger.Fields{"retry_in": wait.String()}).Warn("websocket dial failed")
			select {
			case <-s.ctx.Done():
				return false
			case <-time.After(wait):
			}
			continue
		}
		s.backoff.Reset()

		s.mu.Lock()
		s.conn = conn
		s.state = AwaitingReady
		s.mu.Unlock()

		log.Info("websocket opened")

		if err := s.onOpen(); err != nil {
			log.WithError(err).Warn("handshake requests failed")
			s.teardown()
			continue
		}
		return true
	}
}

// onOpen authenticates when a private channel is subscribed, then always
// subscribes the full channel list.
func (s *Session) onOpen() error {
	if s.hasPrivate {
		expires := s.now().Add(authExpiryHeadroom).UnixMilli()
		req := models.Request{
			Op:   "auth",
			Args: []interface{}{s.apiKey, expires, sign(s.secret, expires)},
		}
		if err := s.send(&req); err != nil {
			return fmt.Errorf("send auth: %w", err)
		}
		s.log.Info("sent auth")
	}

	args := make([]interface{}, len(s.channels))
	for i, ch := range s.channels {
		args[i] = ch
	}
	if err := s.send(&models.Request{Op: "subscribe", Args: args}); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	s.log.WithFields(logger.Fields{"channels": s.channels}).Info("sent subscribe")
	return nil
}

// sign computes the hex HMAC-SHA256 signature over "GET/realtime" plus the
// millisecond expiry.
func sign(secret string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "GET/realtime%d", expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// readLoop is the single receive goroutine. It survives every per-frame
// error and every transport failure; only Stop ends it.
func (s *Session) readLoop() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		if conn == nil {
			if s.ctx.Err() != nil {
				return
			}
			logger.IncrementReconnect()
			if !s.redial() {
				return
			}
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.log.WithError(err).Error("websocket read failed")
			s.teardown()
			continue
		}

		logger.IncrementFrameRead(len(data))
		s.handleFrame(data)
	}
}

// teardown closes the transport and clears connectivity state: the
// connected flag and every per-channel stamp. Readiness must be re-earned
// from scratch on the next connection.
func (s *Session) teardown() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.state = Disconnected
	s.lastUpdate = make(map[string]time.Time)
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.log.Info("websocket closed")
}

// handleFrame isolates one frame: any decode or processing failure is
// logged and the loop moves on.
func (s *Session) handleFrame(data []byte) {
	var frame models.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.log.WithError(err).Warn("malformed frame")
		return
	}

	if frame.IsControl() {
		s.handleControl(&frame)
		return
	}

	if frame.Topic == "" {
		s.log.WithFields(logger.Fields{"frame": string(data)}).Warn("unknown message")
		return
	}

	s.stamp(frame.Topic)
	logger.RecordChannelMessage(frame.Topic, len(data))

	events, err := s.rec.Handle(&frame)
	if err != nil {
		s.log.WithError(err).WithFields(logger.Fields{"topic": frame.Topic}).Warn("frame processing failed")
		return
	}
	if s.queue == nil || s.queue.Empty() {
		return
	}
	for _, ev := range events {
		logger.IncrementEventRaised()
		s.queue.Publish(ev)
	}
}

// handleControl processes acknowledgment frames. A success whose argument
// count matches the full subscription marks the session connected; a
// rejection is logged and nothing else, reconnection is only ever driven by
// transport errors.
func (s *Session) handleControl(frame *models.Frame) {
	if !*frame.Success {
		s.log.WithFields(logger.Fields{"ret_msg": frame.RetMsg}).Error("request rejected by stream")
		return
	}

	if frame.RetMsg == "pong" {
		s.log.Debug("pong received")
		return
	}

	if frame.Request != nil && len(frame.Request.Args) == len(s.channels) {
		s.mu.Lock()
		s.connected = true
		s.maybeReadyLocked()
		s.mu.Unlock()
		s.log.Info("subscription acknowledged")
		return
	}

	s.log.WithFields(logger.Fields{"ret_msg": frame.RetMsg}).Debug("control frame acknowledged")
}

// stamp records first/latest data arrival per channel.
func (s *Session) stamp(channel string) {
	s.mu.Lock()
	s.lastUpdate[channel] = s.now()
	s.maybeReadyLocked()
	s.mu.Unlock()
}

// maybeReadyLocked promotes the session to Ready once the subscription is
// acknowledged and every public channel has produced data. Private channels
// are excluded: they stay silent for flat accounts.
func (s *Session) maybeReadyLocked() {
	if s.state != AwaitingReady || !s.connected {
		return
	}
	for _, ch := range s.channels {
		if models.IsPrivateChannel(ch) {
			continue
		}
		if _, ok := s.lastUpdate[ch]; !ok {
			return
		}
	}
	s.state = Ready
}

// waitReady blocks until the session reaches Ready, bounded by the
// configured ready timeout when one is set.
func (s *Session) waitReady() error {
	s.log.Info("waiting for first data")

	var deadline <-chan time.Time
	if s.cfg.ReadyTimeout > 0 {
		timer := time.NewTimer(s.cfg.ReadyTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w after %s", ErrReadyTimeout, s.cfg.ReadyTimeout)
		case <-ticker.C:
			if s.State() == Ready {
				return nil
			}
		}
	}
}

// pingLoop sends the keep-alive frame for as long as the session lives.
// Failures while disconnected are expected and swallowed.
func (s *Session) pingLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.send(&models.Request{Op: "ping"}); err != nil {
				s.log.WithError(err).Debug("ping not sent")
			}
		}
	}
}

// send marshals and writes one control frame on the current connection.
func (s *Session) send(req *models.Request) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}
