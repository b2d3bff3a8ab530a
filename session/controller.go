// Package session coordinates one recording-through-summary interaction:
// it drives the session link and capture pipeline, folds inbound events
// into a single view of the transcript and note, and mediates source
// inspection, edits, and feedback submission for UIs.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/PratikAg001/doc-scribe/api"
	"github.com/PratikAg001/doc-scribe/capture"
	"github.com/PratikAg001/doc-scribe/feedback"
	"github.com/PratikAg001/doc-scribe/link"
	"github.com/PratikAg001/doc-scribe/soap"
	"github.com/PratikAg001/doc-scribe/transcript"
	"github.com/PratikAg001/doc-scribe/wire"
)

// Transport is the duplex channel surface the controller drives. The
// production implementation is link.Link.
type Transport interface {
	Connect(ctx context.Context, wsURL, mode string) error
	StartStreaming()
	SendFrame(data []byte) error
	Stop() error
	Complete()
	Fail()
	Close() error
	State() link.State
	Events() <-chan wire.Event
}

// Backend is the request/response surface the controller consumes. The
// production implementation is api.Client.
type Backend interface {
	StartSession(ctx context.Context, mode string) (string, error)
	Session(ctx context.Context, id string) (*api.SessionRecord, error)
	SubmitFeedback(ctx context.Context, sub feedback.Submission) (*api.FeedbackAck, error)
}

// view is every piece of session view-state, kept in one struct so reset
// is a single replace and no subset can survive a reset.
type view struct {
	Transcript     transcript.State
	Note           soap.Note
	Hovered        *soap.HoveredSource
	ProcessingTime float64
	Err            string
	AudioLevel     float64
	Connected      bool
	Mode           string
	Speech         string
}

// Snapshot is a read-only copy of the controller's state for rendering.
type Snapshot struct {
	State          link.State
	SessionID      string
	Display        string
	Chunks         []transcript.Chunk
	Interim        string
	Final          string
	Segments       []string
	Note           soap.Note
	Hovered        *soap.HoveredSource
	ProcessingTime float64
	Err            string
	AudioLevel     float64
	Connected      bool
	Mode           string
	Speech         string
	EditMode       bool
	EditCount      int
}

// Controller owns the session state machine from the UI's point of view.
// All mutation funnels through its mutex; event delivery order from the
// link is preserved because a single goroutine consumes the event channel.
type Controller struct {
	backend      Backend
	newTransport func() Transport
	openSource   func() (capture.Source, error)
	wsBase       string
	logger       *log.Logger

	// OnComplete, when set, fires after session_complete so collaborators
	// can refresh the external session list.
	OnComplete func()

	mu        sync.Mutex
	transport Transport
	pipeline  *capture.Pipeline
	cancel    context.CancelFunc
	view      view
	store     *feedback.Store
	editMode  bool

	sessionID  string // live session, server-assigned
	selectedID string // explicitly selected historical session

	notify chan struct{}
	done   chan struct{}
}

// Options configures a Controller. Zero fields fall back to production
// implementations.
type Options struct {
	Backend      Backend
	NewTransport func() Transport
	OpenSource   func() (capture.Source, error)
	WSBase       string
	Logger       *log.Logger
}

func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	newTransport := opts.NewTransport
	if newTransport == nil {
		newTransport = func() Transport { return link.New(logger) }
	}
	openSource := opts.OpenSource
	if openSource == nil {
		openSource = func() (capture.Source, error) {
			return capture.OpenDevice(capture.DefaultConfig(), logger)
		}
	}
	return &Controller{
		backend:      opts.Backend,
		newTransport: newTransport,
		openSource:   openSource,
		wsBase:       opts.WSBase,
		logger:       logger,
		store:        feedback.NewStore(),
		notify:       make(chan struct{}, 1),
	}
}

// Updates signals that a snapshot consumer should re-render. Signals
// coalesce; consumers always read the latest snapshot.
func (c *Controller) Updates() <-chan struct{} {
	return c.notify
}

func (c *Controller) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Start begins a fresh session: allocate a server-assigned session,
// acquire the capture device, open the channel (which sends the
// processing-settings message first), then stream audio. A still-open
// prior session is superseded first — its transport closes and its event
// consumer drains before any new state is wired, so no late event from
// the old channel can touch the new view — and any prior view state is
// cleared so no cross-session correlation survives.
func (c *Controller) Start(ctx context.Context, mode string) error {
	if err := c.teardown(); err != nil {
		c.logger.Error("Failed to close superseded session", "error", err)
	}
	c.Reset()

	c.mu.Lock()
	c.store = feedback.NewStore()
	c.editMode = false
	c.mu.Unlock()

	clientRef := uuid.NewString()
	sessionLog := c.logger.With("clientRef", clientRef)
	sessionLog.Info("Starting session", "mode", mode)

	id, err := c.backend.StartSession(ctx, mode)
	if err != nil {
		return c.failStart(fmt.Errorf("create session: %w", err))
	}

	src, err := c.openSource()
	if err != nil {
		// Microphone denied or unavailable: fatal to session start, no retry.
		return c.failStart(fmt.Errorf("acquire microphone: %w", err))
	}

	transport := c.newTransport()
	if err := transport.Connect(ctx, c.sessionURL(id, clientRef), mode); err != nil {
		if stopErr := src.Stop(); stopErr != nil {
			sessionLog.Error("Failed to release device after connect failure", "error", stopErr)
		}
		return c.failStart(err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	pipeline := capture.NewPipeline(src, transport.SendFrame, c.setLevel, c.logger)

	c.mu.Lock()
	c.sessionID = id
	c.selectedID = ""
	c.transport = transport
	c.pipeline = pipeline
	c.cancel = cancel
	c.done = make(chan struct{})
	c.view.Connected = true
	c.mu.Unlock()

	transport.StartStreaming()

	go func() {
		if err := pipeline.Run(runCtx); err != nil && err != context.Canceled {
			sessionLog.Error("Capture pipeline stopped", "error", err)
		}
	}()
	go c.consume(transport, sessionLog)

	c.signal()
	return nil
}

// sessionURL carries the client reference as a query parameter so the
// backend's log stream for a session can be tied to this client's.
func (c *Controller) sessionURL(id, clientRef string) string {
	return strings.TrimRight(c.wsBase, "/") + "/api/transcribe/" + id + "?client_ref=" + clientRef
}

func (c *Controller) failStart(err error) error {
	c.mu.Lock()
	c.view.Err = err.Error()
	c.mu.Unlock()
	c.signal()
	return err
}

// consume is the single reader of the event channel, so chunks append in
// exactly the order their messages arrived.
func (c *Controller) consume(transport Transport, logger *log.Logger) {
	defer close(c.done)

	for ev := range transport.Events() {
		c.dispatch(ev)
	}

	// Transport closed. A terminal outcome keeps its state; anything else
	// is forced to idle, and in every case the capture pipeline halts so
	// no frames outlive the channel.
	state := transport.State()
	if state != link.Completed && state != link.Failed {
		if err := transport.Close(); err != nil {
			logger.Error("Failed to close transport", "error", err)
		}
	}
	c.haltCapture()

	c.mu.Lock()
	c.view.Connected = false
	c.mu.Unlock()
	c.signal()
}

// dispatch folds one inbound event into the view. New message types are
// new cases here, nothing else.
func (c *Controller) dispatch(ev wire.Event) {
	c.mu.Lock()
	switch e := ev.(type) {
	case wire.ConnectionStatus:
		c.view.Connected = e.Status == "connected"

	case wire.ProcessingStatus:
		c.view.Mode = e.Mode

	case wire.SpeechStatus:
		c.view.Speech = e.Status

	case wire.TranscriptUpdate:
		if e.IsFinal {
			c.view.Transcript.SetFinal(e.FullTranscript)
		} else {
			c.view.Transcript.AppendInterim(e.Text)
		}

	case wire.SessionComplete:
		c.view.Transcript.Complete(e.Transcript, e.TranscriptSegments)
		c.view.Note = soap.Note{Text: e.SoapNote, Sections: e.SoapSections}
		c.view.ProcessingTime = e.ProcessingTime
		c.transport.Complete()

	case wire.ServerError:
		c.view.Err = e.Message
		c.transport.Fail()
	}
	c.mu.Unlock()

	switch ev.(type) {
	case wire.SessionComplete:
		c.haltCapture()
		if c.OnComplete != nil {
			c.OnComplete()
		}
	case wire.ServerError:
		c.haltCapture()
	}

	c.signal()
}

func (c *Controller) setLevel(level float64) {
	c.mu.Lock()
	c.view.AudioLevel = level
	c.mu.Unlock()
	c.signal()
}

func (c *Controller) haltCapture() {
	c.mu.Lock()
	pipeline := c.pipeline
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if pipeline != nil {
		pipeline.Stop()
	}
}

// Stop halts the capture pipeline, sends the single stop signal, and
// leaves the session in stopping until the server delivers its result.
// Stopping an already stopping, completed, or idle session is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return nil
	}

	state := transport.State()
	if state != link.Connected && state != link.Streaming {
		return nil
	}

	c.haltCapture()
	if err := transport.Stop(); err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	c.signal()
	return nil
}

// Close tears everything down: capture halted, channel closed, state
// forced to idle regardless of in-flight work.
func (c *Controller) Close() error {
	return c.teardown()
}

// teardown halts capture, closes the live transport, and waits for the
// event consumer to drain before releasing the session's handles. Safe
// when no session is live.
func (c *Controller) teardown() error {
	c.mu.Lock()
	transport := c.transport
	done := c.done
	c.mu.Unlock()

	if transport == nil {
		return nil
	}

	c.haltCapture()
	err := transport.Close()
	if done != nil {
		<-done
	}

	c.mu.Lock()
	c.transport = nil
	c.pipeline = nil
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()
	return err
}

// Reset clears every view field at once by replacing the whole struct.
// Partial reset is not possible by construction.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.view = view{}
	c.selectedID = ""
	c.mu.Unlock()
	c.signal()
}

// Load seeds the view from a stored session record: final transcript and
// segments arrive together, exactly as on completion. The loaded id takes
// precedence over any live session id in feedback submissions.
func (c *Controller) Load(ctx context.Context, id string) error {
	record, err := c.backend.Session(ctx, id)
	if err != nil {
		return err
	}

	c.Reset()
	c.mu.Lock()
	c.view.Transcript.Complete(record.Transcript, record.TranscriptSegments)
	c.view.Note = soap.Note{Text: record.SoapNote, Sections: record.SoapSections}
	c.view.ProcessingTime = record.ProcessingTime
	c.view.Mode = record.AudioProcessingMode
	c.selectedID = id
	c.store = feedback.NewStore()
	c.editMode = false
	c.mu.Unlock()
	c.signal()
	return nil
}

// Hover derives the source view for a statement. Suppressed entirely
// while edit mode is active: inspecting and editing are mutually
// exclusive interactions.
func (c *Controller) Hover(section string, index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editMode {
		return
	}
	stmt, ok := c.view.Note.Statement(section, index)
	if !ok {
		return
	}
	hovered := soap.Hover(stmt, c.view.Transcript.Segments)
	c.view.Hovered = &hovered
	c.signal()
}

// Unhover clears the source view. Also suppressed in edit mode.
func (c *Controller) Unhover() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editMode {
		return
	}
	c.view.Hovered = nil
	c.signal()
}

// SetEditMode toggles statement editing. Entering edit mode drops any
// live hover state.
func (c *Controller) SetEditMode(on bool) {
	c.mu.Lock()
	c.editMode = on
	if on {
		c.view.Hovered = nil
	}
	c.mu.Unlock()
	c.signal()
}

// RecordEdit upserts an edit for a statement. The original text is read
// fresh from the immutable statement, never from a prior edit, so the
// overlay always carries the true generated text.
func (c *Controller) RecordEdit(section string, index int, newText string, editType feedback.EditType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stmt, ok := c.view.Note.Statement(section, index)
	if !ok {
		return fmt.Errorf("no statement at %s[%d]", section, index)
	}
	c.store.Record(section, index, stmt.Statement, newText, editType)
	c.signal()
	return nil
}

// StatementText is the display text for a statement in every rendering
// path: the edit overlay when one exists, the generated text otherwise.
func (c *Controller) StatementText(section string, index int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stmt, ok := c.view.Note.Statement(section, index)
	if !ok {
		return "", false
	}
	return c.store.DisplayText(section, index, stmt.Statement), true
}

// SubmitFeedback builds a submission from the live overlay and sends it.
// The historical selection wins over the live session id. On success the
// overlay and edit mode clear atomically; on failure both are preserved
// so no work is lost, and the error is surfaced to the caller.
func (c *Controller) SubmitFeedback(ctx context.Context, satisfaction, timeSaved float64, comments string) (*api.FeedbackAck, error) {
	c.mu.Lock()
	id := c.selectedID
	if id == "" {
		id = c.sessionID
	}
	sub := c.store.Build(id, satisfaction, timeSaved, comments)
	c.mu.Unlock()

	ack, err := c.backend.SubmitFeedback(ctx, sub)
	if err != nil {
		c.mu.Lock()
		c.view.Err = err.Error()
		c.mu.Unlock()
		c.signal()
		return nil, err
	}

	c.mu.Lock()
	c.store.Clear()
	c.editMode = false
	c.mu.Unlock()
	c.signal()
	return ack, nil
}

// Snapshot copies the current state for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := link.Idle
	if c.transport != nil {
		state = c.transport.State()
	}

	id := c.selectedID
	if id == "" {
		id = c.sessionID
	}

	return Snapshot{
		State:          state,
		SessionID:      id,
		Display:        c.view.Transcript.Display(),
		Chunks:         c.view.Transcript.Chunks,
		Interim:        c.view.Transcript.Interim,
		Final:          c.view.Transcript.Final,
		Segments:       c.view.Transcript.Segments,
		Note:           c.view.Note,
		Hovered:        c.view.Hovered,
		ProcessingTime: c.view.ProcessingTime,
		Err:            c.view.Err,
		AudioLevel:     c.view.AudioLevel,
		Connected:      c.view.Connected,
		Mode:           c.view.Mode,
		Speech:         c.view.Speech,
		EditMode:       c.editMode,
		EditCount:      c.store.Len(),
	}
}
