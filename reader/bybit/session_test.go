package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bybitflow/config"
	"bybitflow/logger"
	"bybitflow/models"
	"bybitflow/processor"
)

var errConnClosed = errors.New("use of closed connection")

// scriptConn is an in-memory connection the tests feed frames into and read
// control requests out of.
type scriptConn struct {
	inbound chan []byte
	writes  chan models.Request
	done    chan struct{}
	once    sync.Once
}

func newScriptConn() *scriptConn {
	return &scriptConn{
		inbound: make(chan []byte, 32),
		writes:  make(chan models.Request, 32),
		done:    make(chan struct{}),
	}
}

func (c *scriptConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.inbound:
		return websocket.TextMessage, data, nil
	case <-c.done:
		return 0, nil, errConnClosed
	}
}

func (c *scriptConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	var req models.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}
	c.writes <- req
	return nil
}

func (c *scriptConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *scriptConn) feed(frames ...string) {
	for _, f := range frames {
		c.inbound <- []byte(f)
	}
}

// nextWrite returns the next request written to the connection or fails the
// test after a timeout.
func (c *scriptConn) nextWrite(t *testing.T) models.Request {
	t.Helper()
	select {
	case req := <-c.writes:
		return req
	case <-time.After(2 * time.Second):
		t.Fatalf("no request written to connection")
		return models.Request{}
	}
}

// dialerFor hands out the given connections in order and fails every dial
// afterwards.
func dialerFor(count *int32, conns ...*scriptConn) Dialer {
	return func(ctx context.Context, endpoint string) (Conn, error) {
		n := atomic.AddInt32(count, 1)
		if int(n) > len(conns) {
			return nil, errors.New("no more scripted connections")
		}
		return conns[n-1], nil
	}
}

func ackFrame(channels []string) string {
	quoted := make([]string, len(channels))
	for i, ch := range channels {
		quoted[i] = strconv.Quote(ch)
	}
	return fmt.Sprintf(`{"success":true,"ret_msg":"","request":{"op":"subscribe","args":[%s]}}`,
		strings.Join(quoted, ","))
}

const (
	tradeFrame = `{"topic":"trade.BTCUSD","data":[{"symbol":"BTCUSD","side":"Buy","size":1,"price":100,"trade_id":"t1"}]}`
	klineFrame = `{"topic":"klineV2.1.BTCUSD","data":[{"start":1000,"open":1,"high":1,"low":1,"close":1,"volume":1}]}`
)

func publicStreamConfig() config.StreamConfig {
	return config.StreamConfig{
		Symbol:           "BTCUSD",
		KlinePeriod:      "1",
		Channels:         []string{"trade.BTCUSD", "klineV2.1.BTCUSD"},
		PingInterval:     time.Hour,
		ReconnectBackoff: 10 * time.Millisecond,
		ReadyTimeout:     2 * time.Second,
	}
}

func newTestSession(cfg config.StreamConfig, key, secret string, opts ...Option) *Session {
	rec := processor.New(logger.GetLogger(), cfg.Symbol, cfg.KlinePeriod)
	return NewSession(logger.GetLogger(), cfg, key, secret, rec, nil, opts...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSignature(t *testing.T) {
	cases := []struct {
		secret  string
		expires int64
		want    string
	}{
		{"secret", 1700000010000, "7ccf9bb4db01ad0e1ee2c3eef8d8b4730fc9bcab069e44972f6723cde7f692f3"},
		{"stream-key-secret", 1500000000000, "c542d35333f3470f3bbe3075647ddc7c62ae1296e6c0596764b70cc8d66f9ad7"},
	}
	for _, c := range cases {
		if got := sign(c.secret, c.expires); got != c.want {
			t.Errorf("sign(%q, %d) = %s, want %s", c.secret, c.expires, got, c.want)
		}
	}
}

func TestStartSubscribesAndBecomesReady(t *testing.T) {
	cfg := publicStreamConfig()
	conn := newScriptConn()
	var dials int32
	now := time.UnixMilli(1700000000000)
	s := newTestSession(cfg, "", "",
		WithDialer(dialerFor(&dials, conn)),
		WithClock(func() time.Time { return now }))

	conn.feed(ackFrame(cfg.Channels), tradeFrame, klineFrame)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	// No private channel subscribed, so the only request is the subscribe.
	req := conn.nextWrite(t)
	if req.Op != "subscribe" || len(req.Args) != 2 {
		t.Fatalf("unexpected first request: %+v", req)
	}
	if req.Args[0] != "trade.BTCUSD" || req.Args[1] != "klineV2.1.BTCUSD" {
		t.Fatalf("unexpected subscribe args: %v", req.Args)
	}

	if !s.Ready() || s.State() != Ready {
		t.Fatalf("session not ready, state %s", s.State())
	}
	if _, ok := s.LastUpdate("trade.BTCUSD"); !ok {
		t.Errorf("trade channel not stamped")
	}
	if age, ok := s.Staleness(); !ok || age != 0 {
		t.Errorf("unexpected staleness: %v %v", age, ok)
	}
	if s.LastPrice().String() != "100" {
		t.Errorf("frame did not reach the reconciler: last price %s", s.LastPrice())
	}
}

func TestAuthSentBeforeSubscribeForPrivateChannels(t *testing.T) {
	cfg := publicStreamConfig()
	cfg.Channels = []string{"order"}
	conn := newScriptConn()
	var dials int32
	now := time.UnixMilli(1700000000000)
	s := newTestSession(cfg, "api-key", "secret",
		WithDialer(dialerFor(&dials, conn)),
		WithClock(func() time.Time { return now }))

	// Private-only subscription: readiness needs just the acknowledgment.
	conn.feed(ackFrame(cfg.Channels))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	auth := conn.nextWrite(t)
	if auth.Op != "auth" || len(auth.Args) != 3 {
		t.Fatalf("expected auth request first, got %+v", auth)
	}
	if auth.Args[0] != "api-key" {
		t.Errorf("unexpected api key arg: %v", auth.Args[0])
	}
	expires := int64(auth.Args[1].(float64))
	if expires != now.Add(authExpiryHeadroom).UnixMilli() {
		t.Errorf("unexpected expiry: %d", expires)
	}
	if auth.Args[2] != "7ccf9bb4db01ad0e1ee2c3eef8d8b4730fc9bcab069e44972f6723cde7f692f3" {
		t.Errorf("unexpected signature: %v", auth.Args[2])
	}

	sub := conn.nextWrite(t)
	if sub.Op != "subscribe" {
		t.Fatalf("expected subscribe after auth, got %+v", sub)
	}
}

func TestReadyTimeout(t *testing.T) {
	cfg := publicStreamConfig()
	cfg.ReadyTimeout = 150 * time.Millisecond
	conn := newScriptConn()
	var dials int32
	s := newTestSession(cfg, "", "", WithDialer(dialerFor(&dials, conn)))

	// Acknowledged but one channel stays silent: never ready.
	conn.feed(ackFrame(cfg.Channels), tradeFrame)

	err := s.Start(context.Background())
	if !errors.Is(err, ErrReadyTimeout) {
		t.Fatalf("expected ErrReadyTimeout, got %v", err)
	}
	s.Stop()
}

func TestRejectedRequestDoesNotReconnect(t *testing.T) {
	cfg := publicStreamConfig()
	conn := newScriptConn()
	var dials int32
	s := newTestSession(cfg, "", "", WithDialer(dialerFor(&dials, conn)))

	conn.feed(
		`{"success":false,"ret_msg":"error:unknown topic"}`,
		ackFrame(cfg.Channels),
		tradeFrame,
		klineFrame,
	)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if got := atomic.LoadInt32(&dials); got != 1 {
		t.Errorf("rejection must not trigger a redial, dialed %d times", got)
	}
}

func TestMalformedFrameIsIsolated(t *testing.T) {
	cfg := publicStreamConfig()
	conn := newScriptConn()
	var dials int32
	s := newTestSession(cfg, "", "", WithDialer(dialerFor(&dials, conn)))

	conn.feed(
		`{not json`,
		`{"topic":"trade.BTCUSD","data":{"bad":"shape"}}`,
		ackFrame(cfg.Channels),
		tradeFrame,
		klineFrame,
	)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if !s.Ready() {
		t.Fatalf("bad frames must not wedge the session")
	}
}

func TestReconnectClearsReadinessUntilNewData(t *testing.T) {
	cfg := publicStreamConfig()
	first := newScriptConn()
	second := newScriptConn()
	var dials int32
	s := newTestSession(cfg, "", "", WithDialer(dialerFor(&dials, first, second)))

	first.feed(ackFrame(cfg.Channels), tradeFrame, klineFrame)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	// Transport drops. The read loop tears down and redials.
	first.Close()
	waitFor(t, "redial", func() bool { return atomic.LoadInt32(&dials) == 2 })
	waitFor(t, "readiness reset", func() bool { return !s.Ready() })

	if _, ok := s.LastUpdate("trade.BTCUSD"); ok {
		t.Errorf("stamps must be cleared on reconnect")
	}

	// Readiness is re-earned on the new connection.
	second.feed(ackFrame(cfg.Channels), tradeFrame, klineFrame)
	waitFor(t, "ready after reconnect", func() bool { return s.Ready() })
}

func TestForcedReconnectRedials(t *testing.T) {
	cfg := publicStreamConfig()
	first := newScriptConn()
	second := newScriptConn()
	var dials int32
	s := newTestSession(cfg, "", "", WithDialer(dialerFor(&dials, first, second)))

	first.feed(ackFrame(cfg.Channels), tradeFrame, klineFrame)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	second.feed(ackFrame(cfg.Channels), tradeFrame, klineFrame)
	s.Reconnect()
	waitFor(t, "ready after forced reconnect", func() bool {
		return atomic.LoadInt32(&dials) == 2 && s.Ready()
	})
}

func TestStartTwice(t *testing.T) {
	cfg := publicStreamConfig()
	conn := newScriptConn()
	var dials int32
	s := newTestSession(cfg, "", "", WithDialer(dialerFor(&dials, conn)))

	conn.feed(ackFrame(cfg.Channels), tradeFrame, klineFrame)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStopLeavesSessionDisconnected(t *testing.T) {
	cfg := publicStreamConfig()
	conn := newScriptConn()
	var dials int32
	s := newTestSession(cfg, "", "", WithDialer(dialerFor(&dials, conn)))

	conn.feed(ackFrame(cfg.Channels), tradeFrame, klineFrame)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.Stop()
	if s.State() != Disconnected {
		t.Fatalf("expected disconnected after stop, got %s", s.State())
	}
	// Idempotent.
	s.Stop()
}
