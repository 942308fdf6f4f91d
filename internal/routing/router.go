// Package routing is the top-level turn handler: it arbitrates each
// utterance between the conversational responder and a tool lifecycle
// session, and guarantees exactly one terminal reply per turn.
package routing

import (
	"context"
	"errors"
	"strings"

	"github.com/castaldi/frank/internal/catalog"
	"github.com/castaldi/frank/internal/domain"
	"github.com/castaldi/frank/internal/events"
	"github.com/castaldi/frank/internal/intent"
	"github.com/castaldi/frank/internal/lifecycle"
	"github.com/castaldi/frank/internal/llm"
	"github.com/castaldi/frank/internal/logging"
)

const errorReplyText = "Mi dispiace, ho avuto un problema a elaborare la richiesta. Riprova tra poco."

// Router delegates turns between free conversation and tool sessions.
type Router struct {
	detector  *intent.Detector
	catalog   *catalog.Registry
	sessions  *lifecycle.Store
	responder *Responder
	emitter   events.Emitter
	questions lifecycle.QuestionFunc
	log       *logging.Logger
}

// Options carries the router's collaborators.
type Options struct {
	Detector  *intent.Detector
	Catalog   *catalog.Registry
	Sessions  *lifecycle.Store
	Responder *Responder
	Emitter   events.Emitter
	Questions lifecycle.QuestionFunc // optional clarification question generator
}

func NewRouter(opts Options, log *logging.Logger) *Router {
	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.Nop{}
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = lifecycle.NewStore()
	}
	return &Router{
		detector:  opts.Detector,
		catalog:   opts.Catalog,
		sessions:  sessions,
		responder: opts.Responder,
		emitter:   emitter,
		questions: opts.Questions,
		log:       log.Sub("routing"),
	}
}

// Sessions exposes the active-session index, for status surfaces.
func (r *Router) Sessions() *lifecycle.Store { return r.sessions }

// Handle processes one utterance and returns the turn's single reply.
func (r *Router) Handle(ctx context.Context, conversationID, utterance string, convCtx *domain.Context) *domain.Reply {
	log := r.log.WithConversation(conversationID)

	// An active session owns every message of its conversation.
	if session := r.sessions.Get(conversationID); session != nil {
		log.Debug().Str("tool", session.ToolName()).Msg("forwarding turn to active session")
		return session.HandleMessage(ctx, utterance)
	}

	result := r.detector.Classify(ctx, utterance, r.catalog.Names(), convCtx)

	if result.RequiresTool && result.Confidence >= r.detector.LowThreshold() {
		if reply := r.startSession(ctx, conversationID, utterance, result, convCtx, log); reply != nil {
			return reply
		}
		// No tool could serve the category; fall through to conversation.
	}

	return r.respond(ctx, conversationID, utterance, convCtx, log)
}

// startSession resolves a tool for the classified category and creates the
// lifecycle session. It returns nil when no enabled tool matches.
func (r *Router) startSession(ctx context.Context, conversationID, utterance string, result intent.Result, convCtx *domain.Context, log *logging.Logger) *domain.Reply {
	desc := r.resolveTool(result.PrimaryCategory)
	if desc == nil {
		log.Debug().Str("category", result.PrimaryCategory).Msg("no enabled tool for category")
		return nil
	}

	params := r.completeParams(ctx, utterance, desc, result, convCtx)

	session := lifecycle.New(conversationID, desc, params, lifecycle.Config{
		Executor:  r.catalog,
		Emitter:   r.emitter,
		Questions: r.questions,
		OnComplete: func(o domain.Outcome) {
			r.sessions.Remove(o.ConversationID)
			log.Info().
				Str("tool", o.ToolName).
				Str("status", string(o.Status)).
				Msg("session completed, conversation slot cleared")
		},
		Logger: r.log,
	})

	if err := r.sessions.Put(session); err != nil {
		// Lost a creation race. The winning session owns the
		// conversation; ask the user to repeat so the turn reaches it.
		log.Warn().Err(err).Msg("active-session slot already taken")
		return &domain.Reply{
			Kind: domain.ReplyGating,
			Text: "Sto già gestendo una richiesta per questa conversazione. Ripeti tra un attimo.",
		}
	}

	if session.Phase() == lifecycle.PhaseReadyToStart {
		// All parameters resolved up front: run to completion within
		// this same turn.
		return session.Run(ctx)
	}

	return &domain.Reply{
		Kind:     domain.ReplyClarification,
		ToolName: desc.Name,
		Text:     session.FirstQuestion(ctx),
	}
}

// resolveTool picks the first enabled tool in the classified category.
func (r *Router) resolveTool(category string) *catalog.Descriptor {
	if !catalog.IsKnownCategory(category) {
		return nil
	}
	tools := r.catalog.ByCategory(catalog.Category(category))
	if len(tools) == 0 {
		return nil
	}
	return tools[0]
}

// completeParams merges classifier-extracted parameters with a dedicated
// extraction pass when required parameters are still uncovered.
func (r *Router) completeParams(ctx context.Context, utterance string, desc *catalog.Descriptor, result intent.Result, convCtx *domain.Context) map[string]any {
	params := map[string]any{}
	for k, v := range result.ExtractedParameters {
		params[k] = v
	}

	covered := true
	for _, req := range desc.RequiredParams() {
		if _, ok := params[req]; !ok {
			covered = false
			break
		}
	}
	if covered {
		return params
	}

	extra := r.detector.ExtractParameters(ctx, utterance, desc.Name, desc.Parameters, convCtx)
	for k, v := range extra {
		if _, ok := params[k]; !ok {
			params[k] = v
		}
	}
	return params
}

// respond routes the turn to the conversational responder.
func (r *Router) respond(ctx context.Context, conversationID, utterance string, convCtx *domain.Context, log *logging.Logger) *domain.Reply {
	text, err := r.responder.Respond(ctx, convCtx, utterance)
	if err != nil {
		log.Error().Err(err).Msg("conversational responder failed")
		return &domain.Reply{Kind: domain.ReplyError, Text: errorReplyText}
	}
	return &domain.Reply{Kind: domain.ReplyConversational, Text: text, Success: true}
}

// HandleStream processes one utterance, streaming conversational answers
// to the sink as incremental chunks. The returned reply carries the full
// final text; for streamed turns its text is what the sink already saw.
// Tool-directed turns are never streamed.
func (r *Router) HandleStream(ctx context.Context, conversationID, utterance string, convCtx *domain.Context, sink ChunkSink) *domain.Reply {
	log := r.log.WithConversation(conversationID)

	if session := r.sessions.Get(conversationID); session != nil {
		return session.HandleMessage(ctx, utterance)
	}

	result := r.detector.Classify(ctx, utterance, r.catalog.Names(), convCtx)
	if result.RequiresTool && result.Confidence >= r.detector.LowThreshold() {
		if reply := r.startSession(ctx, conversationID, utterance, result, convCtx, log); reply != nil {
			return reply
		}
	}

	return r.respondStream(ctx, conversationID, utterance, convCtx, sink, log)
}

// respondStream streams a conversational answer through a flusher. If the
// stream fails before any chunk was delivered, it falls back to a single
// non-streamed response; if chunks already went out, the partial text is
// closed out as the final answer so the turn never answers twice.
func (r *Router) respondStream(ctx context.Context, conversationID, utterance string, convCtx *domain.Context, sink ChunkSink, log *logging.Logger) *domain.Reply {
	stream, err := r.responder.RespondStream(ctx, convCtx, utterance)
	if err != nil {
		log.Warn().Err(err).Msg("stream failed to start, using non-streamed response")
		return r.respond(ctx, conversationID, utterance, convCtx, log)
	}

	flusher := NewStreamFlusher(StreamFlusherConfig{}, sink, log)
	var full strings.Builder
	var streamErr error

	for ev := range stream {
		switch ev.Type {
		case llm.EventDelta:
			full.WriteString(ev.Content)
			flusher.OnDelta(ev.Content)
		case llm.EventError:
			streamErr = errors.New(ev.Error)
		case llm.EventDone:
			if ev.Response != nil && full.Len() == 0 {
				full.WriteString(ev.Response.Content)
				flusher.OnDelta(ev.Response.Content)
			}
		}
	}
	flusher.Flush()

	if streamErr != nil && !flusher.Flushed() {
		log.Warn().Err(streamErr).Msg("stream failed mid-sequence with nothing delivered, using non-streamed response")
		return r.respond(ctx, conversationID, utterance, convCtx, log)
	}
	if streamErr != nil {
		log.Warn().Err(streamErr).Msg("stream failed mid-sequence, closing turn with partial answer")
	}

	return &domain.Reply{
		Kind:    domain.ReplyConversational,
		Text:    strings.TrimSpace(full.String()),
		Success: streamErr == nil,
	}
}
