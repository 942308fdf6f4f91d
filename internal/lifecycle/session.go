// Package lifecycle owns the state machine of one tool invocation: it
// collects parameters, gates unrelated input, dispatches execution, and
// reaches exactly one terminal state.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/castaldi/frank/internal/catalog"
	"github.com/castaldi/frank/internal/domain"
	"github.com/castaldi/frank/internal/events"
	"github.com/castaldi/frank/internal/intent"
	"github.com/castaldi/frank/internal/logging"
)

// Phase is the state of a session.
type Phase string

const (
	PhaseClarifying   Phase = "clarifying"
	PhaseReadyToStart Phase = "ready_to_start"
	PhaseRunning      Phase = "running"
	PhaseFinished     Phase = "finished"
	PhaseCanceled     Phase = "canceled"
)

// Terminal reports whether the phase admits no further transitions.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseCanceled
}

// cancelVocabulary always wins: any of these words in a message cancels
// the session regardless of what else the message says.
var cancelVocabulary = []string{"annulla", "cancella", "stop", "cancel", "basta", "esci"}

// IsCancelRequest reports whether the text contains a cancellation word.
func IsCancelRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range cancelVocabulary {
		for _, field := range strings.FieldsFunc(lower, func(r rune) bool {
			return !unicode.IsLetter(r)
		}) {
			if field == w {
				return true
			}
		}
	}
	return false
}

// Executor dispatches a tool invocation. The catalog registry satisfies it.
type Executor interface {
	Execute(ctx context.Context, name string, params map[string]any) *catalog.ExecResult
}

// QuestionFunc generates a clarification question for a missing parameter.
// A failure falls back to fixed template questions.
type QuestionFunc func(ctx context.Context, toolName, param string) (string, error)

// Config carries the collaborators a session needs.
type Config struct {
	Executor   Executor
	Emitter    events.Emitter
	Questions  QuestionFunc // optional
	OnComplete func(domain.Outcome)
	Logger     *logging.Logger
}

// Session is one in-flight tool invocation. It is owned by a single
// conversation and is never accessed concurrently.
type Session struct {
	ID             string
	ConversationID string

	desc      *catalog.Descriptor
	phase     Phase
	collected map[string]any
	missing   []string

	lastQuestion      string
	lastQuestionParam string
	attempts          int

	createdAt time.Time
	startedAt time.Time

	cfg Config
	log *logging.Logger
}

// New creates a session for the given tool with whatever parameters the
// classifier already extracted. The initial phase is Clarifying when
// required parameters are still missing, ReadyToStart otherwise.
func New(conversationID string, desc *catalog.Descriptor, initialParams map[string]any, cfg Config) *Session {
	if cfg.Emitter == nil {
		cfg.Emitter = events.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New(nil, "silent")
	}

	s := &Session{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		desc:           desc,
		collected:      map[string]any{},
		createdAt:      time.Now(),
		cfg:            cfg,
	}
	s.log = cfg.Logger.Sub("lifecycle").WithConversation(conversationID)

	for name, value := range initialParams {
		if _, known := desc.Parameters[name]; known {
			s.collected[name] = value
		}
	}
	s.recomputeMissing()

	if len(s.missing) > 0 {
		s.phase = PhaseClarifying
	} else {
		s.phase = PhaseReadyToStart
	}

	s.cfg.Emitter.Emit(events.SessionStarted, conversationID, desc.Name, map[string]any{
		"sessionId": s.ID,
		"phase":     string(s.phase),
		"missing":   append([]string(nil), s.missing...),
	})
	s.log.Info().Str("tool", desc.Name).Str("phase", string(s.phase)).Strs("missing", s.missing).Msg("session created")
	return s
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// ToolName returns the tool this session drives.
func (s *Session) ToolName() string { return s.desc.Name }

// Missing returns the still-unsatisfied required parameter names.
func (s *Session) Missing() []string { return append([]string(nil), s.missing...) }

// Collected returns a copy of the parameters gathered so far.
func (s *Session) Collected() map[string]any {
	out := make(map[string]any, len(s.collected))
	for k, v := range s.collected {
		out[k] = v
	}
	return out
}

// ClarificationAttempts returns how many clarification rounds have run.
func (s *Session) ClarificationAttempts() int { return s.attempts }

func (s *Session) recomputeMissing() {
	s.missing = s.missing[:0]
	for _, name := range s.desc.RequiredParams() {
		if _, ok := s.collected[name]; !ok {
			s.missing = append(s.missing, name)
		}
	}
}

// HandleMessage consumes one gated user message. The returned reply is
// the turn's single terminal response.
func (s *Session) HandleMessage(ctx context.Context, text string) *domain.Reply {
	if s.phase.Terminal() {
		return &domain.Reply{
			Kind: domain.ReplyError,
			Text: "La sessione è già conclusa.",
		}
	}

	if IsCancelRequest(text) {
		if s.Cancel("richiesta utente") {
			return &domain.Reply{
				Kind:     domain.ReplyCanceled,
				ToolName: s.desc.Name,
				Text:     fmt.Sprintf("Operazione annullata. Ho chiuso il tool %q.", s.desc.Name),
				Success:  true,
			}
		}
		return &domain.Reply{
			Kind:     domain.ReplyGating,
			ToolName: s.desc.Name,
			Text:     "L'operazione è già in corso e non può essere annullata ora.",
		}
	}

	switch s.phase {
	case PhaseClarifying:
		return s.handleClarifying(ctx, text)
	case PhaseReadyToStart:
		return s.Run(ctx)
	default:
		// Running with synchronous execution never sees a message.
		return &domain.Reply{
			Kind:     domain.ReplyGating,
			ToolName: s.desc.Name,
			Text:     fmt.Sprintf("Sto ancora eseguendo %s, un momento.", s.desc.Name),
		}
	}
}

func (s *Session) handleClarifying(ctx context.Context, text string) *domain.Reply {
	extracted := s.extractFromMessage(text)

	accepted := 0
	for name, value := range extracted {
		if _, known := s.desc.Parameters[name]; !known {
			continue
		}
		if _, already := s.collected[name]; already {
			continue
		}
		s.collected[name] = value
		accepted++
		s.cfg.Emitter.Emit(events.SessionParameterReceived, s.ConversationID, s.desc.Name, map[string]any{
			"sessionId": s.ID,
			"parameter": name,
		})
	}
	s.recomputeMissing()

	if accepted == 0 {
		// Unrelated input never silently leaves gating.
		s.cfg.Emitter.Emit(events.GatingNotice, s.ConversationID, s.desc.Name, map[string]any{
			"sessionId": s.ID,
			"text":      text,
		})
		question := s.lastQuestion
		if question == "" {
			question = s.askNext(ctx)
		}
		return &domain.Reply{
			Kind:     domain.ReplyGating,
			ToolName: s.desc.Name,
			Text: fmt.Sprintf("Sto ancora configurando %s. %s",
				s.desc.Name, question),
		}
	}

	if len(s.missing) == 0 {
		s.phase = PhaseReadyToStart
		s.cfg.Emitter.Emit(events.SessionReady, s.ConversationID, s.desc.Name, map[string]any{
			"sessionId": s.ID,
		})
		return s.Run(ctx)
	}

	return &domain.Reply{
		Kind:     domain.ReplyClarification,
		ToolName: s.desc.Name,
		Text:     s.askNext(ctx),
	}
}

// extractFromMessage applies the category rules table plus the
// answer-to-last-question shortcut.
func (s *Session) extractFromMessage(text string) map[string]any {
	extracted := intent.PatternParams(text, s.desc.Category)
	if extracted == nil {
		extracted = map[string]any{}
	}

	// A short plain phrase right after a question is the answer to it.
	if s.lastQuestionParam != "" {
		if _, got := extracted[s.lastQuestionParam]; !got {
			if answer := bareAnswer(text); answer != "" {
				extracted[s.lastQuestionParam] = answer
			}
		}
	}
	return extracted
}

// bareAnswer accepts a message of at most three words with no question
// mark as a direct parameter value.
func bareAnswer(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.Contains(trimmed, "?") {
		return ""
	}
	words := strings.Fields(trimmed)
	if len(words) > 3 {
		return ""
	}
	for _, w := range words {
		if isQuestionWord(w) {
			return ""
		}
	}
	return strings.TrimRight(trimmed, ".!")
}

func isQuestionWord(w string) bool {
	switch strings.ToLower(strings.Trim(w, ".,!?")) {
	case "come", "cosa", "chi", "dove", "quando", "perché", "stai", "vai", "fai":
		return true
	}
	return false
}

// askNext generates the clarification question for the first missing
// parameter, preferring the generator and falling back to templates.
func (s *Session) askNext(ctx context.Context) string {
	if len(s.missing) == 0 {
		return ""
	}
	param := s.missing[0]
	s.attempts++
	s.lastQuestionParam = param

	if s.cfg.Questions != nil {
		if q, err := s.cfg.Questions(ctx, s.desc.Name, param); err == nil && strings.TrimSpace(q) != "" {
			s.lastQuestion = q
			return q
		}
	}
	s.lastQuestion = templateQuestion(param)
	return s.lastQuestion
}

func templateQuestion(param string) string {
	switch param {
	case "destination":
		return "Qual è la destinazione?"
	case "location":
		return "Per quale località?"
	default:
		return fmt.Sprintf("Mi serve ancora un'informazione: %s. Puoi indicarla?", param)
	}
}

// Run executes the tool. It is the only path from ReadyToStart, and every
// way out of it ends in Finished.
func (s *Session) Run(ctx context.Context) *domain.Reply {
	if s.phase != PhaseReadyToStart {
		return &domain.Reply{Kind: domain.ReplyError, Text: "La sessione non è pronta per l'esecuzione."}
	}

	s.phase = PhaseRunning
	s.startedAt = time.Now()
	s.cfg.Emitter.Emit(events.SessionRunning, s.ConversationID, s.desc.Name, map[string]any{
		"sessionId": s.ID,
	})
	s.log.Info().Str("tool", s.desc.Name).Msg("executing tool")

	res := s.execute(ctx)

	outcome := domain.Outcome{
		ConversationID: s.ConversationID,
		ToolName:       s.desc.Name,
		Parameters:     s.Collected(),
		Message:        res.Message,
		Payload:        res.Data,
	}
	if res.Status == catalog.ExecSuccess {
		outcome.Status = domain.OutcomeSuccess
	} else {
		outcome.Status = domain.OutcomeError
		outcome.Reason = res.Message
	}

	s.finish(outcome)

	return &domain.Reply{
		Kind:     domain.ReplyToolResult,
		ToolName: s.desc.Name,
		Text:     outcome.Summary(),
		Success:  outcome.Status == domain.OutcomeSuccess,
	}
}

// execute calls the executor, converting a panic into an error result so
// the session can never get stuck in Running.
func (s *Session) execute(ctx context.Context) (res *catalog.ExecResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Any("panic", r).Str("tool", s.desc.Name).Msg("tool execution panicked")
			res = &catalog.ExecResult{
				Status:  catalog.ExecError,
				Message: fmt.Sprintf("esecuzione interrotta: %v", r),
			}
		}
	}()
	res = s.cfg.Executor.Execute(ctx, s.desc.Name, s.collected)
	if res == nil {
		res = &catalog.ExecResult{Status: catalog.ExecError, Message: "risultato vuoto dal tool"}
	}
	return res
}

// Cancel moves the session to Canceled if it has not passed the commit
// point. It reports whether the cancellation took effect.
func (s *Session) Cancel(reason string) bool {
	if s.phase.Terminal() {
		return false
	}
	if s.phase == PhaseRunning || s.phase == PhaseReadyToStart {
		return false
	}

	s.phase = PhaseCanceled
	s.cfg.Emitter.Emit(events.SessionCanceled, s.ConversationID, s.desc.Name, map[string]any{
		"sessionId": s.ID,
		"reason":    reason,
	})
	s.log.Info().Str("tool", s.desc.Name).Str("reason", reason).Msg("session canceled")

	if s.cfg.OnComplete != nil {
		s.cfg.OnComplete(domain.Outcome{
			ConversationID: s.ConversationID,
			ToolName:       s.desc.Name,
			Status:         domain.OutcomeCanceled,
			Reason:         reason,
			Parameters:     s.Collected(),
		})
	}
	return true
}

func (s *Session) finish(outcome domain.Outcome) {
	s.phase = PhaseFinished
	s.cfg.Emitter.Emit(events.SessionFinished, s.ConversationID, s.desc.Name, map[string]any{
		"sessionId": s.ID,
		"status":    string(outcome.Status),
		"duration":  time.Since(s.startedAt).String(),
	})
	s.log.Info().Str("tool", s.desc.Name).Str("status", string(outcome.Status)).Msg("session finished")

	if s.cfg.OnComplete != nil {
		s.cfg.OnComplete(outcome)
	}
}

// FirstQuestion generates the opening clarification question for a
// session created in Clarifying.
func (s *Session) FirstQuestion(ctx context.Context) string {
	return s.askNext(ctx)
}
