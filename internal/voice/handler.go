// Package voice runs the per-connection session loop: it consumes parsed
// client messages, feeds audio into the transcription adapter, and drives
// the session state machine from transcript to dispatched function to
// spoken response.
package voice

import (
	"context"
	"time"

	"github.com/voicedeskhq/voicedesk/internal/agent"
	"github.com/voicedeskhq/voicedesk/internal/history"
	"github.com/voicedeskhq/voicedesk/internal/intent"
	"github.com/voicedeskhq/voicedesk/internal/logging"
	"github.com/voicedeskhq/voicedesk/internal/observability"
	"github.com/voicedeskhq/voicedesk/internal/protocol"
	"github.com/voicedeskhq/voicedesk/internal/registry"
	"github.com/voicedeskhq/voicedesk/internal/session"
	"github.com/voicedeskhq/voicedesk/internal/settings"
	"github.com/voicedeskhq/voicedesk/internal/transcribe"
)

// Dispatcher executes one recognized intent and always returns a usable
// result, as internal/registry does.
type Dispatcher interface {
	Execute(ctx context.Context, action intent.ActionType, args map[string]string) registry.Result
}

// Handler wires the session manager, recognizer, registry and transcription
// adapter together. One RunConnection call serves one websocket connection.
type Handler struct {
	sessions      *session.Manager
	recognizer    *intent.Recognizer
	registry      Dispatcher
	adapter       transcribe.Adapter
	store         history.Store
	stats         *settings.Store
	metrics       *observability.Metrics
	speakingDwell time.Duration
}

type Options struct {
	Sessions      *session.Manager
	Recognizer    *intent.Recognizer
	Registry      Dispatcher
	Adapter       transcribe.Adapter
	History       history.Store
	Stats         *settings.Store
	Metrics       *observability.Metrics
	SpeakingDwell time.Duration
}

func NewHandler(opts Options) *Handler {
	if opts.SpeakingDwell <= 0 {
		opts.SpeakingDwell = 2 * time.Second
	}
	return &Handler{
		sessions:      opts.Sessions,
		recognizer:    opts.Recognizer,
		registry:      opts.Registry,
		adapter:       opts.Adapter,
		store:         opts.History,
		stats:         opts.Stats,
		metrics:       opts.Metrics,
		speakingDwell: opts.SpeakingDwell,
	}
}

// connState is the per-connection mutable state owned by the run loop
// goroutine. Only the loop touches it, so it needs no locking.
type connState struct {
	connectionID string
	sessionID    string
	stream       transcribe.Stream
	events       <-chan transcribe.Event
	lastFinal    string
}

// RunConnection processes one connection until the context is cancelled or
// the inbound channel closes. Parsed protocol structs are written to
// outbound; the caller owns both channels and the websocket itself.
func (h *Handler) RunConnection(ctx context.Context, connectionID string, inbound <-chan []byte, outbound chan<- any) {
	st := &connState{connectionID: connectionID}
	defer h.teardown(st)

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-inbound:
			if !ok {
				return
			}
			h.handleClientMessage(ctx, st, raw, outbound)
		case ev, ok := <-st.events:
			if !ok {
				st.events = nil
				continue
			}
			h.handleTranscribeEvent(ctx, st, ev, outbound)
		}
	}
}

func (h *Handler) handleClientMessage(ctx context.Context, st *connState, raw []byte, outbound chan<- any) {
	msg, err := protocol.ParseClientMessage(raw)
	if err != nil {
		h.send(ctx, outbound, protocol.ErrorEvent{
			Type:    protocol.TypeError,
			Message: "Invalid message",
			Error:   err.Error(),
		})
		return
	}

	switch m := msg.(type) {
	case protocol.Start:
		h.handleStart(ctx, st, m, outbound)
	case protocol.Audio:
		h.handleAudio(ctx, st, m, outbound)
	case protocol.Text:
		h.processTranscript(ctx, st, m.Text, outbound)
	case protocol.Stop:
		h.handleStop(ctx, st, outbound)
	}
}

func (h *Handler) handleStart(ctx context.Context, st *connState, m protocol.Start, outbound chan<- any) {
	if st.stream != nil {
		_ = st.stream.Close()
		st.stream, st.events = nil, nil
	}

	s := h.sessions.Create(st.connectionID, session.Config{
		Voice:    m.Config.Voice,
		Language: m.Config.Language,
	})
	if st.sessionID == "" && h.metrics != nil {
		h.metrics.ActiveSessions.Inc()
	}
	st.sessionID = s.ID
	st.lastFinal = ""
	h.countSessionEvent("started")

	stream, events, err := h.adapter.Start(ctx, st.connectionID)
	if err != nil {
		logging.Error(logging.Fields{"connection_id": st.connectionID, "error": err.Error()}, "failed to start voice session")
		h.sessions.SetStatus(st.connectionID, session.StatusError)
		h.send(ctx, outbound, protocol.ErrorEvent{
			Type:    protocol.TypeError,
			Message: "Failed to start voice session",
			Error:   err.Error(),
		})
		h.send(ctx, outbound, protocol.Status{Type: protocol.TypeStatus, Status: string(session.StatusError)})
		return
	}
	st.stream, st.events = stream, events

	message := "Voice session started"
	if h.adapter.Mode() == "demo" {
		message = "Voice session started (demo mode)"
	}
	h.send(ctx, outbound, protocol.Ready{
		Type:      protocol.TypeReady,
		SessionID: s.ID,
		Mode:      h.adapter.Mode(),
		Message:   message,
	})
	h.setAndSendStatus(ctx, st, session.StatusListening, outbound)
}

func (h *Handler) handleAudio(ctx context.Context, st *connState, m protocol.Audio, outbound chan<- any) {
	if st.stream == nil {
		logging.Warn(logging.Fields{"connection_id": st.connectionID}, "audio chunk without active voice session")
		return
	}
	cur, err := h.sessions.Get(st.connectionID)
	if err != nil || cur.Status != session.StatusListening {
		return
	}
	if err := st.stream.SendAudio(ctx, m.ChunkBase64); err != nil {
		logging.Error(logging.Fields{"connection_id": st.connectionID, "error": err.Error()}, "error processing audio")
		h.send(ctx, outbound, protocol.ErrorEvent{
			Type:    protocol.TypeError,
			Message: "Voice processing error",
			Error:   err.Error(),
		})
	}
}

func (h *Handler) handleStop(ctx context.Context, st *connState, outbound chan<- any) {
	if st.stream != nil {
		_ = st.stream.Close()
		st.stream, st.events = nil, nil
	}
	st.lastFinal = ""
	h.sessions.SetStatus(st.connectionID, session.StatusIdle)
	h.countSessionEvent("stopped")
	h.send(ctx, outbound, protocol.Status{Type: protocol.TypeStatus, Status: string(session.StatusIdle)})
}

func (h *Handler) handleTranscribeEvent(ctx context.Context, st *connState, ev transcribe.Event, outbound chan<- any) {
	if h.metrics != nil {
		h.metrics.TranscriptEvents.WithLabelValues(string(ev.Type)).Inc()
	}
	switch ev.Type {
	case transcribe.EventPartial:
		h.send(ctx, outbound, protocol.Transcript{Type: protocol.TypeTranscript, Text: ev.Text, IsFinal: false})
	case transcribe.EventFinal:
		st.lastFinal = ev.Text
		h.sessions.SetTranscript(st.connectionID, ev.Text)
		h.send(ctx, outbound, protocol.Transcript{Type: protocol.TypeTranscript, Text: ev.Text, IsFinal: true})
	case transcribe.EventUtteranceEnd:
		if st.lastFinal == "" {
			return
		}
		text := st.lastFinal
		st.lastFinal = ""
		h.sessions.SetTranscript(st.connectionID, "")
		h.processTranscript(ctx, st, text, outbound)
	case transcribe.EventError:
		logging.Error(logging.Fields{"connection_id": st.connectionID, "detail": ev.Detail}, "transcription error")
		h.sessions.SetStatus(st.connectionID, session.StatusError)
		h.send(ctx, outbound, protocol.ErrorEvent{
			Type:    protocol.TypeError,
			Message: "Voice processing error",
			Error:   ev.Detail,
		})
		h.send(ctx, outbound, protocol.Status{Type: protocol.TypeStatus, Status: string(session.StatusError)})
	}
}

// processTranscript runs one utterance through intent analysis, dispatch and
// response generation. It also serves the voice:text path, which may arrive
// without a started session; session bookkeeping is best-effort there.
func (h *Handler) processTranscript(ctx context.Context, st *connState, text string, outbound chan<- any) {
	h.setAndSendStatus(ctx, st, session.StatusProcessing, outbound)
	h.sessions.AppendMessage(st.connectionID, text, session.RoleUser)

	it := h.recognizer.Analyze(text)
	var responseText string
	if it.Function == "" {
		responseText = agent.General(text)
		h.send(ctx, outbound, protocol.Response{Type: protocol.TypeResponse, Text: responseText})
	} else {
		h.send(ctx, outbound, protocol.FunctionCall{
			Type:      protocol.TypeFunctionCall,
			Function:  string(it.Function),
			Name:      it.Name,
			Arguments: it.Arguments,
		})

		var actionID string
		if a := h.sessions.AddAction(st.connectionID, string(it.Function), it.Name, it.Arguments); a != nil {
			actionID = a.ID
		}

		res := h.registry.Execute(ctx, it.Function, it.Arguments)

		// The session may have been replaced or torn down while the
		// dispatch was in flight; a stale result is dropped rather than
		// attributed to the wrong session.
		if st.sessionID != "" && !h.sessionAlive(st) {
			logging.Warn(logging.Fields{
				"connection_id": st.connectionID,
				"function":      string(it.Function),
			}, "discarding function result for ended session")
			return
		}

		status := session.ActionSuccess
		if !res.Success {
			status = session.ActionFailed
		}
		if actionID != "" {
			h.sessions.ResolveAction(st.connectionID, actionID, status, res.Data, res.Error)
		}
		if h.stats != nil {
			h.stats.RecordCommand(it.Function)
		}

		h.send(ctx, outbound, protocol.FunctionResult{
			Type:     protocol.TypeFunctionResult,
			Function: string(it.Function),
			Success:  res.Success,
			Result:   res.Data,
			Error:    res.Error,
		})

		responseText = agent.Respond(it, res)
		success := res.Success
		h.send(ctx, outbound, protocol.Response{
			Type:     protocol.TypeResponse,
			Text:     responseText,
			Function: string(it.Function),
			Success:  &success,
		})
	}
	h.sessions.AppendMessage(st.connectionID, responseText, session.RoleAssistant)

	h.setAndSendStatus(ctx, st, session.StatusSpeaking, outbound)
	h.scheduleSpeakingDone(ctx, st, outbound)
}

// scheduleSpeakingDone drops the session back to idle after the speaking
// dwell, unless it has already moved on.
func (h *Handler) scheduleSpeakingDone(ctx context.Context, st *connState, outbound chan<- any) {
	sessionID := st.sessionID
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(h.speakingDwell):
		}
		cur, err := h.sessions.Get(st.connectionID)
		if err != nil || cur.ID != sessionID || cur.Status != session.StatusSpeaking {
			return
		}
		h.sessions.SetStatus(st.connectionID, session.StatusIdle)
		h.send(ctx, outbound, protocol.Status{Type: protocol.TypeStatus, Status: string(session.StatusIdle)})
	}()
}

func (h *Handler) setAndSendStatus(ctx context.Context, st *connState, status session.Status, outbound chan<- any) {
	h.sessions.SetStatus(st.connectionID, status)
	h.send(ctx, outbound, protocol.Status{Type: protocol.TypeStatus, Status: string(status)})
}

func (h *Handler) sessionAlive(st *connState) bool {
	cur, err := h.sessions.Get(st.connectionID)
	return err == nil && cur.ID == st.sessionID
}

func (h *Handler) send(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case <-ctx.Done():
	case outbound <- msg:
	}
}

func (h *Handler) countSessionEvent(event string) {
	if h.metrics != nil {
		h.metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}

// teardown ends the session and writes the conversation audit record.
func (h *Handler) teardown(st *connState) {
	if st.stream != nil {
		_ = st.stream.Close()
	}
	final, err := h.sessions.End(st.connectionID)
	if err != nil {
		return
	}
	if h.metrics != nil {
		h.metrics.ActiveSessions.Dec()
	}
	h.countSessionEvent("ended")

	if h.store == nil || (len(final.Messages) == 0 && len(final.Actions) == 0) {
		return
	}

	conv := history.Conversation{
		ID:       final.ID,
		Date:     final.CreatedAt,
		Duration: final.EndedAt.Sub(final.CreatedAt),
	}
	for _, msg := range final.Messages {
		conv.Turns = append(conv.Turns, history.TurnRecord{
			Role:      string(msg.Role),
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}
	for _, a := range final.Actions {
		conv.Actions = append(conv.Actions, history.ActionRecord{
			Type:    a.Type,
			Name:    a.Name,
			Success: a.Status == session.ActionSuccess,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.store.SaveConversation(ctx, conv); err != nil {
		logging.Error(logging.Fields{"session_id": final.ID, "error": err.Error()}, "failed to save conversation history")
	}
}
