package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain/entities"
	"github.com/MareskoY/tutor-ai/internal/metrics"
	"github.com/MareskoY/tutor-ai/internal/transcript"
)

// Sender delivers an outbound control message over the data channel
type Sender interface {
	Send(payload any) error
}

// Dispatcher applies inbound protocol events to the transcript and runs tool
// calls requested by the model.
type Dispatcher struct {
	assembler *transcript.Assembler
	sender    Sender
	tools     *ToolRegistry
	logger    *zap.Logger

	logMu  sync.RWMutex
	rawLog []json.RawMessage

	// transcription fragments of the active user entry
	partialID string
	partial   string

	toolsWG sync.WaitGroup
}

// NewDispatcher creates a dispatcher writing into assembler and replying through sender
func NewDispatcher(assembler *transcript.Assembler, sender Sender, tools *ToolRegistry, logger *zap.Logger) *Dispatcher {
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Dispatcher{
		assembler: assembler,
		sender:    sender,
		tools:     tools,
		logger:    logger,
	}
}

// HandleMessage decodes and dispatches one data channel message. Messages
// that are not valid events are logged and dropped.
func (d *Dispatcher) HandleMessage(ctx context.Context, data []byte) {
	ev, err := DecodeEvent(data)
	if err != nil {
		d.logger.Warn("Dropping undecodable realtime message", zap.Error(err), zap.Int("size", len(data)))
		return
	}
	d.Dispatch(ctx, ev)
}

// Dispatch applies ev. ctx scopes tool handlers started by the event and is
// expected to be cancelled when the call ends. Dispatch must be called from a
// single goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	d.logMu.Lock()
	d.rawLog = append(d.rawLog, ev.Raw)
	d.logMu.Unlock()

	metrics.InboundEvents.WithLabelValues(ev.Type).Inc()

	switch ev.Type {
	case EventSpeechStarted:
		d.assembler.ActiveUserEntry()
		d.assembler.UpdateActiveUserEntry(transcript.UserUpdate{
			Status: statusPtr(entities.EntryStatusSpeaking),
		})

	case EventSpeechStopped:
		d.assembler.UpdateActiveUserEntry(transcript.UserUpdate{
			Status: statusPtr(entities.EntryStatusSpeaking),
		})

	case EventAudioBufferCommitted:
		d.assembler.UpdateActiveUserEntry(transcript.UserUpdate{
			Text:   stringPtr("Processing speech..."),
			Status: statusPtr(entities.EntryStatusProcessing),
			Saved:  boolPtr(false),
		})

	case EventInputTranscription:
		text := ev.PartialTranscript()
		d.partialID, d.partial = d.assembler.ActiveID(), ""
		if ev.Transcript != nil || ev.Text != nil {
			d.partial = text
		}
		d.updatePartial(text)

	case EventInputTranscriptionPart:
		if id := d.assembler.ActiveID(); id != d.partialID {
			d.partialID, d.partial = id, ""
		}
		d.partial += ev.Delta
		text := d.partial
		if text == "" {
			text = placeholderSpeaking
		}
		d.updatePartial(text)

	case EventInputTranscriptionDone:
		d.logger.Debug("Final user transcription", zap.String("itemID", ev.ItemID))
		d.assembler.UpdateActiveUserEntry(transcript.UserUpdate{
			Text:    stringPtr(ev.FinalTranscript()),
			Status:  statusPtr(entities.EntryStatusFinal),
			IsFinal: boolPtr(true),
			Saved:   boolPtr(false),
		})
		d.assembler.ClearActiveUserEntry()

	case EventAudioTranscriptDelta, EventOutputTranscriptDelta:
		d.assembler.AppendAssistantDelta(ev.Delta)

	case EventAudioTranscriptDone, EventOutputTranscriptDone:
		d.assembler.FinalizeAssistant()

	case EventFunctionCallArgsDone:
		d.startTool(ctx, ev)

	case EventError:
		if ev.Error != nil {
			d.logger.Warn("Realtime endpoint reported an error",
				zap.String("type", ev.Error.Type),
				zap.String("code", ev.Error.Code),
				zap.String("message", ev.Error.Message))
		}
	}
}

func (d *Dispatcher) updatePartial(text string) {
	d.assembler.UpdateActiveUserEntry(transcript.UserUpdate{
		Text:    stringPtr(text),
		Status:  statusPtr(entities.EntryStatusSpeaking),
		IsFinal: boolPtr(false),
		Saved:   boolPtr(false),
	})
}

func (d *Dispatcher) startTool(ctx context.Context, ev Event) {
	fn, ok := d.tools.Lookup(ev.Name)
	if !ok {
		d.logger.Warn("No handler registered for function call", zap.String("name", ev.Name))
		metrics.ToolCalls.WithLabelValues("unknown").Inc()
		return
	}

	d.toolsWG.Add(1)
	go func() {
		defer d.toolsWG.Done()
		d.runTool(ctx, fn, ev)
	}()
}

func (d *Dispatcher) runTool(ctx context.Context, fn ToolFunc, ev Event) {
	logger := d.logger.With(zap.String("name", ev.Name), zap.String("callID", ev.CallID))

	args := map[string]any{}
	if ev.Arguments != "" {
		if err := json.Unmarshal([]byte(ev.Arguments), &args); err != nil {
			logger.Error("Failed to parse function call arguments", zap.Error(err))
			metrics.ToolCalls.WithLabelValues("bad_arguments").Inc()
			return
		}
	}

	result, err := fn(ctx, args)
	if ctx.Err() != nil {
		logger.Info("Call ended before function call completed")
		metrics.ToolCalls.WithLabelValues("cancelled").Inc()
		return
	}
	if err != nil {
		logger.Warn("Function call failed", zap.Error(err))
		metrics.ToolCalls.WithLabelValues("error").Inc()
		result = map[string]string{"error": err.Error()}
	} else {
		metrics.ToolCalls.WithLabelValues("ok").Inc()
	}

	output, err := json.Marshal(result)
	if err != nil {
		logger.Error("Failed to encode function call result", zap.Error(err))
		return
	}

	if err := d.sender.Send(NewFunctionCallOutput(ev.CallID, string(output))); err != nil {
		logger.Error("Failed to send function call output", zap.Error(err))
		return
	}
	if err := d.sender.Send(NewResponseCreate()); err != nil {
		logger.Error("Failed to request response after function call", zap.Error(err))
	}
}

// WaitForTools blocks until every started tool handler has returned. It is
// test support; a call stops its handlers by cancelling their ctx.
func (d *Dispatcher) WaitForTools() {
	d.toolsWG.Wait()
}

// RawEvents returns a copy of every event received so far
func (d *Dispatcher) RawEvents() []json.RawMessage {
	d.logMu.RLock()
	defer d.logMu.RUnlock()
	out := make([]json.RawMessage, len(d.rawLog))
	copy(out, d.rawLog)
	return out
}

// RawEventCount returns the number of events received so far
func (d *Dispatcher) RawEventCount() int {
	d.logMu.RLock()
	defer d.logMu.RUnlock()
	return len(d.rawLog)
}

// ResetLog clears the raw event log
func (d *Dispatcher) ResetLog() {
	d.logMu.Lock()
	defer d.logMu.Unlock()
	d.rawLog = nil
}

func stringPtr(s string) *string { return &s }
func boolPtr(b bool) *bool { return &b }
func statusPtr(s entities.EntryStatus) *entities.EntryStatus { return &s }
