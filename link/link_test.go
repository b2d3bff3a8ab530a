package link

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PratikAg001/doc-scribe/wire"
)

var upgrader = websocket.Upgrader{}

// startServer runs a websocket endpoint whose handler receives the
// upgraded connection.
func startServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConnectSendsSettingsFirst(t *testing.T) {
	firstMsg := make(chan wire.ProcessingSettings, 1)
	url := startServer(t, func(conn *websocket.Conn) {
		var settings wire.ProcessingSettings
		if err := conn.ReadJSON(&settings); err != nil {
			t.Errorf("read settings: %v", err)
			return
		}
		firstMsg <- settings
		// Hold the connection open until the client closes.
		conn.ReadMessage()
	})

	l := New(nil)
	if err := l.Connect(context.Background(), url, "enhanced"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer l.Close()

	select {
	case settings := <-firstMsg:
		if settings.Type != "processing_settings" {
			t.Errorf("first message type = %q", settings.Type)
		}
		if settings.ProcessingMode != "enhanced" {
			t.Errorf("processing_mode = %q", settings.ProcessingMode)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received settings")
	}

	if l.State() != Connected {
		t.Errorf("state = %s, want connected", l.State())
	}
}

func TestEventsDeliveredInOrder(t *testing.T) {
	url := startServer(t, func(conn *websocket.Conn) {
		var settings wire.ProcessingSettings
		conn.ReadJSON(&settings)

		send := func(v string) {
			conn.WriteMessage(websocket.TextMessage, []byte(v))
		}
		send(`{"type":"transcript_update","data":{"text":"Patient","is_final":false}}`)
		send(`{"type":"transcript_update","data":{"text":"reports pain","is_final":false}}`)
		send(`{"type":"session_complete","data":{"transcript":"Patient reports pain.","transcript_segments":["Patient reports pain."],"processing_time":1.5}}`)
		conn.ReadMessage()
	})

	l := New(nil)
	if err := l.Connect(context.Background(), url, "standard"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer l.Close()

	wantTexts := []string{"Patient", "reports pain"}
	for i, want := range wantTexts {
		select {
		case ev := <-l.Events():
			tu, ok := ev.(wire.TranscriptUpdate)
			if !ok {
				t.Fatalf("event %d: got %T", i, ev)
			}
			if tu.Text != want {
				t.Errorf("event %d text = %q, want %q", i, tu.Text, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for transcript update")
		}
	}

	select {
	case ev := <-l.Events():
		sc, ok := ev.(wire.SessionComplete)
		if !ok {
			t.Fatalf("got %T, want SessionComplete", ev)
		}
		if sc.Transcript != "Patient reports pain." {
			t.Errorf("Transcript = %q", sc.Transcript)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

func TestStopSendsSingleSignal(t *testing.T) {
	stops := make(chan struct{}, 4)
	url := startServer(t, func(conn *websocket.Conn) {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(raw, &msg) == nil && msg.Type == "stop_recording" {
				stops <- struct{}{}
			}
		}
	})

	l := New(nil)
	if err := l.Connect(context.Background(), url, "standard"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer l.Close()
	l.StartStreaming()

	if err := l.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if l.State() != Stopping {
		t.Errorf("state = %s, want stopping", l.State())
	}

	select {
	case <-stops:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received stop signal")
	}
	select {
	case <-stops:
		t.Error("stop signal sent more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendFrame(t *testing.T) {
	frames := make(chan []byte, 4)
	url := startServer(t, func(conn *websocket.Conn) {
		for {
			msgType, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.BinaryMessage {
				frames <- raw
			}
		}
	})

	l := New(nil)
	if err := l.Connect(context.Background(), url, "standard"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer l.Close()
	l.StartStreaming()

	if err := l.SendFrame([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("send frame: %v", err)
	}

	select {
	case frame := <-frames:
		if len(frame) != 4 || frame[0] != 1 {
			t.Errorf("frame = %v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received frame")
	}
}

func TestSendFrameDroppedWhenNotStreaming(t *testing.T) {
	l := New(nil)
	// Idle link: frames are dropped, not errors.
	if err := l.SendFrame([]byte{1}); err != nil {
		t.Errorf("SendFrame on idle link = %v, want nil", err)
	}
}

func TestCloseForcesIdle(t *testing.T) {
	url := startServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
		conn.ReadMessage()
	})

	l := New(nil)
	if err := l.Connect(context.Background(), url, "standard"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	l.StartStreaming()

	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if l.State() != Idle {
		t.Errorf("state = %s, want idle", l.State())
	}

	// Events channel drains and closes after a deliberate close.
	select {
	case _, ok := <-l.Events():
		if ok {
			t.Error("unexpected event after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel never closed")
	}

	// Close is safe to repeat.
	if err := l.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestServerCloseWithoutCompletion(t *testing.T) {
	url := startServer(t, func(conn *websocket.Conn) {
		var settings wire.ProcessingSettings
		conn.ReadJSON(&settings)
		// Server goes away mid-session.
	})

	l := New(nil)
	if err := l.Connect(context.Background(), url, "standard"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	l.StartStreaming()

	select {
	case _, ok := <-l.Events():
		if ok {
			t.Error("unexpected event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel never closed")
	}
}

func TestConnectAfterClose(t *testing.T) {
	l := New(nil)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	err := l.Connect(context.Background(), "ws://127.0.0.1:1/api/transcribe/x", "standard")
	if err == nil {
		t.Fatal("want error connecting a closed link")
	}
	if l.State() != Idle {
		t.Errorf("state = %s, want idle", l.State())
	}

	// The events channel was closed exactly once by Close; no read loop
	// started that could close it again.
	if _, ok := <-l.Events(); ok {
		t.Error("unexpected event on closed link")
	}
}

func TestConnectFailure(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := l.Connect(ctx, "ws://127.0.0.1:1/api/transcribe/x", "standard")
	if err == nil {
		t.Fatal("want connect error")
	}
	if l.State() != Failed {
		t.Errorf("state = %s, want error", l.State())
	}
}
