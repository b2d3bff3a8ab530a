// Package link owns the duplex realtime channel to the transcription
// backend and the session lifecycle state machine around it. Outbound it
// carries one configuration message, binary audio frames, and a single
// stop signal; inbound it delivers decoded events in receipt order.
package link

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/PratikAg001/doc-scribe/wire"
)

// State is the session lifecycle position. Error is reachable from any
// non-idle state.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Streaming
	Stopping
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Streaming:
		return "streaming"
	case Stopping:
		return "stopping"
	case Completed:
		return "completed"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// Link is the exclusive owner of the websocket handle for one session.
type Link struct {
	logger *log.Logger
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	state    State
	stopSent bool
	closed   bool

	events chan wire.Event
}

func New(logger *log.Logger) *Link {
	if logger == nil {
		logger = log.Default()
	}
	return &Link{
		logger: logger,
		dialer: websocket.DefaultDialer,
		state:  Idle,
		events: make(chan wire.Event, 64),
	}
}

// State reports the current lifecycle position.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Events delivers decoded inbound messages in the order they were
// received. The channel closes when the transport closes; after that,
// State distinguishes a failure from a deliberate close.
func (l *Link) Events() <-chan wire.Event {
	return l.events
}

// Connect dials the channel and, once it is open, transmits the
// processing-settings message before any audio is sent.
func (l *Link) Connect(ctx context.Context, wsURL, mode string) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("connect on closed link")
	}
	if l.state != Idle {
		state := l.state
		l.mu.Unlock()
		return fmt.Errorf("connect from state %s", state)
	}
	l.state = Connecting
	l.mu.Unlock()

	conn, _, err := l.dialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		l.fail()
		return fmt.Errorf("connect to transcription channel: %w", err)
	}

	settings := wire.NewProcessingSettings(mode)
	if err := conn.WriteJSON(settings); err != nil {
		conn.Close()
		l.fail()
		return fmt.Errorf("send processing settings: %w", err)
	}

	l.mu.Lock()
	if l.closed {
		// Close raced the dial and already shut the events channel; the
		// read loop must not start, or its close would panic.
		l.mu.Unlock()
		conn.Close()
		return fmt.Errorf("link closed during connect")
	}
	l.conn = conn
	l.state = Connected
	l.mu.Unlock()

	l.logger.Info("Transcription channel open", "mode", mode)
	go l.readLoop(conn)
	return nil
}

// StartStreaming marks audio flowing. Valid only once connected.
func (l *Link) StartStreaming() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Connected {
		l.state = Streaming
	}
}

// SendFrame transmits one binary audio frame. Frames offered while the
// channel is not connected or streaming are dropped, not errors: the
// capture pipeline may outlive the channel by a block or two during
// shutdown.
func (l *Link) SendFrame(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Connected && l.state != Streaming {
		return nil
	}
	if err := l.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("send audio frame: %w", err)
	}
	return nil
}

// Stop transitions to stopping and sends the stop signal exactly once.
// Calling it while already stopping, completed, or idle is a no-op; the
// link then waits for session_complete or error from the server, with no
// client-side timeout.
func (l *Link) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Connected && l.state != Streaming {
		return nil
	}
	l.state = Stopping
	if l.stopSent {
		return nil
	}
	l.stopSent = true
	if err := l.conn.WriteJSON(wire.NewStopRecording()); err != nil {
		return fmt.Errorf("send stop signal: %w", err)
	}
	return nil
}

// Complete records the terminal success state. Results remain visible;
// the state is not reset to idle until a new session starts.
func (l *Link) Complete() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = Completed
}

// Fail forces the error state from wherever the session was.
func (l *Link) Fail() {
	l.fail()
}

func (l *Link) fail() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Idle {
		l.state = Failed
	}
}

// Close tears the channel down and forces idle regardless of in-flight
// work. Safe to call repeatedly.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	conn := l.conn
	l.state = Idle
	l.mu.Unlock()

	if conn == nil {
		close(l.events)
		return nil
	}
	err := conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	if closeErr := conn.Close(); err == nil {
		err = closeErr
	}
	return err
}

// readLoop is the only reader of the connection, so delivery order on the
// events channel matches receipt order.
func (l *Link) readLoop(conn *websocket.Conn) {
	defer close(l.events)

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			l.mu.Lock()
			deliberate := l.closed
			l.mu.Unlock()
			if deliberate || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			l.logger.Error("Transcription channel read failed", "error", err)
			l.fail()
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		ev, err := wire.Decode(raw)
		if err != nil {
			l.logger.Error("Failed to decode channel message", "error", err)
			continue
		}
		if unknown, ok := ev.(wire.Unknown); ok {
			l.logger.Warn("Unhandled channel event", "type", unknown.Type)
			continue
		}
		l.events <- ev
	}
}
