package call

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/domain/entities"
	"github.com/MareskoY/tutor-ai/domain/repositories"
	"github.com/MareskoY/tutor-ai/internal/metrics"
	"github.com/MareskoY/tutor-ai/internal/realtime"
	"github.com/MareskoY/tutor-ai/internal/transcript"
)

// State is the lifecycle state of the coordinator
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateStopping   State = "stopping"
)

const inboundBuffer = 256

// Conn is an open realtime session
type Conn interface {
	Send(payload any) error
	Ready() bool
	Close() error
}

// Opener opens realtime sessions
type Opener interface {
	Open(ctx context.Context, credential string, params realtime.OpenParams) (Conn, error)
}

type managerOpener struct {
	manager *realtime.Manager
}

// NewManagerOpener adapts a realtime.Manager to Opener
func NewManagerOpener(m *realtime.Manager) Opener {
	return managerOpener{manager: m}
}

func (o managerOpener) Open(ctx context.Context, credential string, params realtime.OpenParams) (Conn, error) {
	s, err := o.manager.Open(ctx, credential, params)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Options configures a Coordinator
type Options struct {
	ChatID string
	Voice  string

	// TickInterval is the duration tick period, one second by default
	TickInterval time.Duration
	// FlushEvery flushes on ticks where the elapsed seconds are a multiple of it
	FlushEvery int
	// PersistTimeout bounds each persistence call
	PersistTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.FlushEvery <= 0 {
		o.FlushEvery = 5
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 10 * time.Second
	}
	return o
}

// Snapshot is a point-in-time view of the call for observers
type Snapshot struct {
	State           State                        `json:"state"`
	Status          string                       `json:"status"`
	CallRecordID    string                       `json:"callRecordId,omitempty"`
	DurationSeconds int                          `json:"durationSeconds"`
	Volume          float64                      `json:"volume"`
	Entries         []entities.ConversationEntry `json:"entries"`
	RawEventCount   int                          `json:"rawEventCount"`
}

type flushResult struct {
	saved []string
}

// activeCall is the per-call state. Fields below the channels are owned by
// the loop goroutine.
type activeCall struct {
	conn       Conn
	dispatcher *realtime.Dispatcher
	session    *entities.CallSession

	ctx    context.Context
	cancel context.CancelFunc

	inbound       chan []byte
	texts         chan string
	flushed       chan flushResult
	recordCreated chan string
	quit          chan struct{}
	done          chan struct{}

	duration      atomic.Int64
	flushing      bool
	recordPending bool
}

func (a *activeCall) enqueue(data []byte) {
	msg := append([]byte(nil), data...)
	select {
	case a.inbound <- msg:
	case <-a.ctx.Done():
	}
}

// Coordinator drives the lifecycle of one voice call at a time: it opens the
// realtime session, feeds protocol events into the transcript, persists the
// call record and transcript periodically and tears everything down on stop.
type Coordinator struct {
	credentials repositories.CredentialProvider
	records     repositories.CallRecordStore
	transcripts repositories.TranscriptStore
	opener      Opener
	tools       *realtime.ToolRegistry
	assembler   *transcript.Assembler
	opts        Options
	clock       clock.Clock
	logger      *zap.Logger

	mu          sync.Mutex
	state       State
	status      string
	cancelStart context.CancelFunc
	startDone   chan struct{}
	call        *activeCall

	volume atomic.Uint64

	obsMu     sync.RWMutex
	observers []func(Snapshot)
}

// NewCoordinator creates an idle coordinator
func NewCoordinator(
	credentials repositories.CredentialProvider,
	records repositories.CallRecordStore,
	transcripts repositories.TranscriptStore,
	opener Opener,
	opts Options,
	logger *zap.Logger,
) *Coordinator {
	clk := clock.New()
	return &Coordinator{
		credentials: credentials,
		records:     records,
		transcripts: transcripts,
		opener:      opener,
		tools:       realtime.NewToolRegistry(),
		assembler:   transcript.NewAssembler(logger).WithClock(clk.Now),
		opts:        opts.withDefaults(),
		clock:       clk,
		logger:      logger,
		state:       StateIdle,
		status:      "Idle",
	}
}

// WithClock replaces the time source used for ticks, durations and entry timestamps
func (c *Coordinator) WithClock(clk clock.Clock) *Coordinator {
	c.clock = clk
	c.assembler.WithClock(clk.Now)
	return c
}

// RegisterFunction makes fn callable by the voice model. Functions registered
// with a description are advertised when the next call starts.
func (c *Coordinator) RegisterFunction(def realtime.ToolDefinition, fn realtime.ToolFunc) {
	c.tools.Register(def, fn)
}

// OnChange registers an observer notified with a fresh snapshot after every
// state, transcript or volume change. Observers must not block.
func (c *Coordinator) OnChange(fn func(Snapshot)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns the current lifecycle state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start acquires a credential, opens the realtime session and begins the
// call. It fails with domain.ErrCallInProgress unless the coordinator is idle.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: coordinator is %s", domain.ErrCallInProgress, state)
	}
	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	startDone := make(chan struct{})
	c.state = StateConnecting
	c.status = "Fetching ephemeral token..."
	c.cancelStart = cancelAttempt
	c.startDone = startDone
	c.mu.Unlock()
	defer func() {
		cancelAttempt()
		close(startDone)
	}()
	c.publish()

	credential, err := c.credentials.AcquireEphemeralCredential(attemptCtx)
	if err != nil {
		return c.abortStart(attemptCtx, err, "credential")
	}

	callCtx, cancelCall := context.WithCancel(context.Background())
	call := &activeCall{
		ctx:           callCtx,
		cancel:        cancelCall,
		inbound:       make(chan []byte, inboundBuffer),
		texts:         make(chan string, 16),
		flushed:       make(chan flushResult, 1),
		recordCreated: make(chan string, 1),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	c.setStatus("Establishing connection...")
	conn, err := c.opener.Open(attemptCtx, credential, realtime.OpenParams{
		Voice:             c.opts.Voice,
		Tools:             c.tools.Definitions(),
		OnMessage:         call.enqueue,
		OnOpen:            func() { c.logger.Info("Realtime data channel open") },
		OnVolume:          c.storeVolume,
		OnConnectionState: c.connectionStateChanged,
	})
	if err != nil {
		cancelCall()
		return c.abortStart(attemptCtx, err, reasonFor(err))
	}

	c.mu.Lock()
	if attemptCtx.Err() != nil {
		c.mu.Unlock()
		cancelCall()
		if err := conn.Close(); err != nil {
			c.logger.Warn("Failed to close session of cancelled call", zap.Error(err))
		}
		return c.abortStart(attemptCtx, domain.ErrCallCancelled, "cancelled")
	}
	call.conn = conn
	call.dispatcher = realtime.NewDispatcher(c.assembler, conn, c.tools, c.logger)
	call.session = &entities.CallSession{StartedAt: c.clock.Now()}
	call.recordPending = true
	c.call = call
	c.state = StateActive
	c.status = "Session established successfully!"
	c.cancelStart = nil
	c.mu.Unlock()

	metrics.CallsActive.Inc()
	metrics.CallsTotal.Inc()
	c.logger.Info("Call started", zap.String("chatID", c.opts.ChatID))

	ticker := c.clock.Ticker(c.opts.TickInterval)
	go c.createRecord(call)
	go c.run(call, ticker)
	c.publish()
	return nil
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrMediaAccess):
		return "media"
	case errors.Is(err, domain.ErrCallCancelled):
		return "cancelled"
	case errors.Is(err, domain.ErrSignaling):
		return "signaling"
	default:
		return "open"
	}
}

func (c *Coordinator) abortStart(attemptCtx context.Context, err error, reason string) error {
	if attemptCtx.Err() != nil && !errors.Is(err, domain.ErrCallCancelled) {
		err = fmt.Errorf("%w: %v", domain.ErrCallCancelled, err)
		reason = "cancelled"
	}
	metrics.CallStartFailures.WithLabelValues(reason).Inc()
	c.logger.Error("Failed to start call", zap.String("reason", reason), zap.Error(err))

	c.assembler.Reset()
	c.storeVolume(0)

	c.mu.Lock()
	c.state = StateIdle
	c.status = "Error: " + err.Error()
	c.cancelStart = nil
	c.call = nil
	c.mu.Unlock()
	c.publish()
	return err
}

func (c *Coordinator) createRecord(call *activeCall) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.PersistTimeout)
	defer cancel()

	id, err := c.records.CreateCallRecord(ctx, c.opts.ChatID)
	if err != nil {
		metrics.PersistenceErrors.WithLabelValues("create_call_record").Inc()
		c.logger.Error("Failed to create call record",
			zap.String("chatID", c.opts.ChatID),
			zap.Error(fmt.Errorf("%w: %v", domain.ErrPersistence, err)))
		id = ""
	}
	call.recordCreated <- id
}

// run is the call's event loop. It is the only writer of the transcript
// while the call is active.
func (c *Coordinator) run(call *activeCall, ticker *clock.Ticker) {
	defer close(call.done)
	defer ticker.Stop()

	for {
		select {
		case <-call.quit:
			c.drain(call)
			return

		case data := <-call.inbound:
			call.dispatcher.HandleMessage(call.ctx, data)
			c.publish()

		case text := <-call.texts:
			c.sendText(call, text)
			c.publish()

		case id := <-call.recordCreated:
			c.recordReady(call, id)

		case now := <-ticker.C:
			c.tick(call, now)

		case res := <-call.flushed:
			c.flushCompleted(call, res)
		}
	}
}

// drain waits for work the loop started so the final flush sees its result
func (c *Coordinator) drain(call *activeCall) {
	if call.recordPending {
		c.recordReady(call, <-call.recordCreated)
	}
	if call.flushing {
		c.flushCompleted(call, <-call.flushed)
	}
}

func (c *Coordinator) recordReady(call *activeCall, id string) {
	call.recordPending = false
	if id == "" {
		return
	}
	c.mu.Lock()
	call.session.CallRecordID = id
	c.mu.Unlock()
	c.logger.Info("Call record created", zap.String("callRecordID", id))
	c.publish()
}

func (c *Coordinator) tick(call *activeCall, now time.Time) {
	duration := call.session.DurationSeconds(now)
	call.duration.Store(int64(duration))
	if shouldFlush(duration, c.opts.FlushEvery) {
		c.startFlush(call, duration)
	}
	c.publish()
}

func shouldFlush(durationSeconds, every int) bool {
	return every > 0 && durationSeconds > 0 && durationSeconds%every == 0
}

func (c *Coordinator) startFlush(call *activeCall, duration int) {
	if call.flushing {
		metrics.FlushSkipped.Inc()
		c.logger.Debug("Skipping flush, previous flush still in flight", zap.Int("duration", duration))
		return
	}
	recordID := call.session.CallRecordID
	if recordID == "" {
		return
	}

	entries := c.assembler.UnsavedFinal()
	call.flushing = true
	go func() {
		call.flushed <- c.persist(recordID, duration, entries)
	}()
}

func (c *Coordinator) flushCompleted(call *activeCall, res flushResult) {
	call.flushing = false
	if len(res.saved) > 0 {
		c.assembler.MarkSaved(res.saved...)
		c.publish()
	}
}

// persist updates the call duration and appends the given entries. Failures
// are logged and leave the entries unsaved for the next attempt.
func (c *Coordinator) persist(recordID string, duration int, entries []entities.ConversationEntry) flushResult {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.PersistTimeout)
	defer cancel()

	started := time.Now()
	defer func() {
		metrics.FlushDuration.Observe(time.Since(started).Seconds())
	}()

	logger := c.logger.With(zap.String("callRecordID", recordID), zap.Int("duration", duration))

	if err := c.records.UpdateCallRecord(ctx, recordID, duration); err != nil {
		metrics.PersistenceErrors.WithLabelValues("update_call_record").Inc()
		logger.Error("Failed to update call record", zap.Error(fmt.Errorf("%w: %v", domain.ErrPersistence, err)))
	}

	if len(entries) == 0 {
		return flushResult{}
	}

	rows := make([]entities.TranscriptEntry, len(entries))
	ids := make([]string, len(entries))
	for i, e := range entries {
		rows[i] = e.ToTranscript()
		ids[i] = e.ID
	}

	if err := c.transcripts.AppendTranscriptEntries(ctx, c.opts.ChatID, recordID, rows); err != nil {
		metrics.PersistenceErrors.WithLabelValues("append_transcript").Inc()
		logger.Error("Failed to save call transcriptions",
			zap.Int("entries", len(rows)),
			zap.Error(fmt.Errorf("%w: %v", domain.ErrPersistence, err)))
		return flushResult{}
	}

	metrics.TranscriptEntriesSaved.Add(float64(len(rows)))
	logger.Debug("Saved call transcriptions", zap.Int("entries", len(rows)))
	return flushResult{saved: ids}
}

// Stop ends the call. It cancels an in-flight Start, waits for the loop to
// exit, releases the session, performs a final flush and returns to idle.
// Stop on an idle coordinator is a no-op.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateStopping:
		c.mu.Unlock()
		return nil

	case StateConnecting:
		cancel := c.cancelStart
		done := c.startDone
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		// Start may have won the race and activated the call
		if c.State() == StateActive {
			return c.Stop(ctx)
		}
		return nil
	}

	call := c.call
	c.state = StateStopping
	c.status = "Stopping session..."
	c.mu.Unlock()
	c.publish()

	close(call.quit)
	<-call.done
	call.cancel()

	if err := call.conn.Close(); err != nil {
		c.logger.Warn("Failed to close realtime session", zap.Error(err))
	}

	duration := call.session.DurationSeconds(c.clock.Now())
	c.mu.Lock()
	recordID := call.session.CallRecordID
	c.mu.Unlock()

	if recordID != "" {
		res := c.persist(recordID, duration, c.assembler.UnsavedFinal())
		c.assembler.MarkSaved(res.saved...)
	}

	c.assembler.Reset()
	call.dispatcher.ResetLog()
	c.storeVolume(0)

	c.mu.Lock()
	c.state = StateIdle
	c.status = "Session stopped"
	c.call = nil
	c.mu.Unlock()

	metrics.CallsActive.Dec()
	metrics.CallDuration.Observe(float64(duration))
	c.logger.Info("Call stopped",
		zap.String("callRecordID", recordID),
		zap.Int("duration", duration))
	c.publish()
	return nil
}

// Toggle starts the call when idle and stops it otherwise
func (c *Coordinator) Toggle(ctx context.Context) error {
	if c.State() == StateIdle {
		return c.Start(ctx)
	}
	return c.Stop(ctx)
}

// SendText sends a typed user message to the model during an active call
func (c *Coordinator) SendText(ctx context.Context, text string) error {
	if text == "" {
		return fmt.Errorf("%w: empty message", domain.ErrInvalidInput)
	}

	c.mu.Lock()
	call := c.call
	active := c.state == StateActive
	c.mu.Unlock()

	if !active || call == nil || !call.conn.Ready() {
		return domain.ErrChannelUnavailable
	}

	select {
	case call.texts <- text:
		return nil
	case <-call.done:
		return domain.ErrChannelUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) sendText(call *activeCall, text string) {
	if !call.conn.Ready() {
		c.logger.Warn("Dropping text message", zap.Error(domain.ErrChannelUnavailable))
		return
	}
	c.assembler.AppendUserText(text)
	if err := call.conn.Send(realtime.NewUserTextMessage(text)); err != nil {
		c.logger.Error("Failed to send text message", zap.Error(err))
		return
	}
	if err := call.conn.Send(realtime.NewResponseCreate()); err != nil {
		c.logger.Error("Failed to request response", zap.Error(err))
	}
}

func (c *Coordinator) connectionStateChanged(state webrtc.PeerConnectionState) {
	if state != webrtc.PeerConnectionStateFailed {
		return
	}
	c.logger.Warn("Peer connection failed, stopping call")
	go func() {
		if err := c.Stop(context.Background()); err != nil {
			c.logger.Error("Failed to stop call after connection failure", zap.Error(err))
		}
	}()
}

func (c *Coordinator) storeVolume(level float64) {
	c.volume.Store(math.Float64bits(level))
	c.publish()
}

// Volume returns the last sampled remote audio level
func (c *Coordinator) Volume() float64 {
	return math.Float64frombits(c.volume.Load())
}

func (c *Coordinator) setStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	c.publish()
}

// Snapshot returns the current view of the call
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		State:  c.state,
		Status: c.status,
	}
	if call := c.call; call != nil {
		s.CallRecordID = call.session.CallRecordID
		s.DurationSeconds = int(call.duration.Load())
		s.RawEventCount = call.dispatcher.RawEventCount()
	}
	c.mu.Unlock()

	s.Volume = c.Volume()
	s.Entries = c.assembler.Entries()
	return s
}

func (c *Coordinator) publish() {
	c.obsMu.RLock()
	observers := c.observers
	c.obsMu.RUnlock()
	if len(observers) == 0 {
		return
	}

	snapshot := c.Snapshot()
	for _, fn := range observers {
		fn(snapshot)
	}
}
