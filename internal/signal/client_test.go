package signal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"vox_chat/native/internal/domain"

	"github.com/gorilla/websocket"
)

// capturingHandler collects dispatched signals on a channel for the test to
// wait on.
type capturingHandler struct {
	signals chan domain.SignalMessage
}

func (h *capturingHandler) HandleSignal(msg domain.SignalMessage) {
	h.signals <- msg
}

// relayServer is a minimal in-process relay: it records inbound frames and can
// push frames back to the connected client.
type relayServer struct {
	t *testing.T

	mu     sync.Mutex
	conn   *websocket.Conn
	auth   string
	frames chan frame

	srv *httptest.Server
}

func newRelayServer(t *testing.T) *relayServer {
	t.Helper()
	rs := &relayServer{t: t, frames: make(chan frame, 16)}

	upgrader := websocket.Upgrader{}
	rs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.auth = r.Header.Get("Authorization")
		rs.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		rs.mu.Lock()
		rs.conn = conn
		rs.mu.Unlock()

		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			rs.frames <- f
		}
	}))
	t.Cleanup(rs.srv.Close)
	return rs
}

func (rs *relayServer) url() string {
	return "ws" + strings.TrimPrefix(rs.srv.URL, "http")
}

func (rs *relayServer) push(t *testing.T, f frame) {
	t.Helper()
	rs.mu.Lock()
	conn := rs.conn
	rs.mu.Unlock()
	if conn == nil {
		t.Fatalf("no client connected")
	}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("push frame: %v", err)
	}
}

func (rs *relayServer) next(t *testing.T) frame {
	t.Helper()
	select {
	case f := <-rs.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame received")
		return frame{}
	}
}

func TestClient_ConnectSendsBearerToken(t *testing.T) {
	rs := newRelayServer(t)
	c := NewClient(rs.url(), "tok-123", &capturingHandler{signals: make(chan domain.SignalMessage, 1)})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if err := c.Subscribe("call.user.1-2"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	rs.next(t)

	rs.mu.Lock()
	auth := rs.auth
	rs.mu.Unlock()
	if auth != "Bearer tok-123" {
		t.Errorf("unexpected auth header %q", auth)
	}
}

func TestClient_SendSubscribesThenPublishes(t *testing.T) {
	rs := newRelayServer(t)
	c := NewClient(rs.url(), "tok", &capturingHandler{signals: make(chan domain.SignalMessage, 1)})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	msg := domain.SignalMessage{
		CallID:     "c-1",
		CallType:   domain.CallAudio,
		SignalType: domain.SignalHangup,
		Sender:     domain.User{ID: 1, Name: "alice"},
	}
	if err := c.Send("call.user.1-2", msg); err != nil {
		t.Fatalf("send: %v", err)
	}

	sub := rs.next(t)
	if sub.Action != "subscribe" || sub.Channel != "call.user.1-2" {
		t.Errorf("expected subscribe first, got %+v", sub)
	}
	pub := rs.next(t)
	if pub.Action != "publish" || pub.Channel != "call.user.1-2" {
		t.Errorf("expected publish, got %+v", pub)
	}
	if pub.Data == nil || pub.Data.CallID != "c-1" || pub.Data.SignalType != domain.SignalHangup {
		t.Errorf("publish data mangled: %+v", pub.Data)
	}

	// A second send on the same channel must not resubscribe.
	if err := c.Send("call.user.1-2", msg); err != nil {
		t.Fatalf("second send: %v", err)
	}
	if f := rs.next(t); f.Action != "publish" {
		t.Errorf("expected publish only, got %+v", f)
	}
}

func TestClient_DispatchesInboundMessages(t *testing.T) {
	handler := &capturingHandler{signals: make(chan domain.SignalMessage, 1)}
	rs := newRelayServer(t)
	c := NewClient(rs.url(), "tok", handler)
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if err := c.Subscribe("call.user.1-2"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	rs.next(t)

	inbound := domain.SignalMessage{
		CallID:     "c-9",
		CallType:   domain.CallVideo,
		SignalType: domain.SignalOffer,
		Sender:     domain.User{ID: 2, Name: "bob"},
	}
	rs.push(t, frame{Action: "message", Channel: "call.user.1-2", Data: &inbound})
	// Ack frames must be ignored without touching the handler.
	rs.push(t, frame{Action: "subscribed", Channel: "call.user.1-2"})

	select {
	case got := <-handler.signals:
		if got.CallID != "c-9" || got.SignalType != domain.SignalOffer || got.Sender.ID != 2 {
			t.Errorf("unexpected signal %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("inbound signal not dispatched")
	}

	select {
	case got := <-handler.signals:
		t.Errorf("ack frame dispatched as signal: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_SendWithoutConnectFails(t *testing.T) {
	c := NewClient("ws://127.0.0.1:0", "tok", &capturingHandler{signals: make(chan domain.SignalMessage, 1)})
	err := c.Send("call.user.1-2", domain.SignalMessage{SignalType: domain.SignalOffer})
	if err == nil {
		t.Fatalf("expected error before connect")
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	rs := newRelayServer(t)
	c := NewClient(rs.url(), "tok", &capturingHandler{signals: make(chan domain.SignalMessage, 1)})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c.Close()
	c.Close()
}
