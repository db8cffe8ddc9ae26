// Package session owns the conversation: it gates every inbound message
// through the input guard, drives the streaming completion loop against the
// provider, dispatches tool calls through the registry and maintains the two
// histories (model context and displayable transcript).
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"

	"github.com/vendabot/vendabot/internal/guard"
	"github.com/vendabot/vendabot/internal/llm"
	"github.com/vendabot/vendabot/internal/logger"
	"github.com/vendabot/vendabot/pkg/tools"
)

// FSM states.
type FSMState stateless.State

var (
	StateIdle         FSMState = "Idle"
	StateGuarding     FSMState = "Guarding"
	StateStreaming    FSMState = "Streaming"
	StateToolDispatch FSMState = "ToolDispatch"
	StateCommitting   FSMState = "Committing"
)

// FSM triggers.
type FSMTrigger stateless.Trigger

var (
	TriggerMessageReceived FSMTrigger = "MessageReceived"
	TriggerRejected        FSMTrigger = "Rejected"
	TriggerAdmitted        FSMTrigger = "Admitted"
	TriggerToolsRequested  FSMTrigger = "ToolsRequested"
	TriggerToolsResolved   FSMTrigger = "ToolsResolved"
	TriggerTurnCompleted   FSMTrigger = "TurnCompleted"
	TriggerCommitted       FSMTrigger = "Committed"
	TriggerFatalError      FSMTrigger = "FatalError"
	TriggerCanceled        FSMTrigger = "Canceled"
)

// DefaultSystemPrompt fixes the assistant's role and reply conventions.
const DefaultSystemPrompt = `Você é um assistente virtual especializado em ajudar vendedores a entenderem suas vendas.

Você tem acesso a funções que permitem consultar:
- Vendas em períodos específicos
- Estatísticas de vendas (total, faturamento, ticket médio)
- Produto mais vendido
- Comparações entre períodos

Responda sempre em português brasileiro de forma clara, objetiva e amigável.
Quando mostrar valores monetários, use o formato R$ X.XXX,XX.

Ao responder sobre períodos:
- "semana passada" = últimos 7 dias
- "mês passado" = últimos 30 dias
- "hoje" = dia atual
- "ontem" = dia anterior

Sempre que possível, forneça contexto e insights sobre os dados.`

// Canned replies for turns the model never sees.
const (
	replyInvalid   = "❌ Por favor, envie uma mensagem válida (até 500 caracteres)."
	replyInjection = "🔒 Não posso ajudar com isso. Sou um assistente focado exclusivamente nas suas vendas."
	replyOffDomain = "Posso ajudar apenas com perguntas sobre suas vendas: faturamento, produtos, períodos e comparações. 📊"
	replyProvider  = "❌ Erro ao se comunicar com o serviço de IA. Tente novamente em instantes."
)

// Recorder receives every transcript turn for audit. Implementations must
// not block the chat pipeline.
type Recorder interface {
	Record(sessionID string, turn Turn)
}

// Options configures a Session.
type Options struct {
	ID           string
	Model        string
	SystemPrompt string
	Now          func() time.Time
	Recorder     Recorder
}

// Session is a single logical conversation. It is not safe for concurrent
// use: callers must serialize Send/History/Clear per instance, or use one
// instance per conversation.
type Session struct {
	id       string
	client   llm.Client
	guard    *guard.Guard
	registry *tools.Registry
	model    string
	system   string
	now      func() time.Time
	recorder Recorder
	log      *slog.Logger

	fsm          *stateless.StateMachine
	modelHistory []openai.ChatCompletionMessage
	transcript   []Turn
}

// New creates a session in the Idle state with a fresh system turn.
func New(client llm.Client, g *guard.Guard, registry *tools.Registry, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	s := &Session{
		id:       opts.ID,
		client:   client,
		guard:    g,
		registry: registry,
		model:    opts.Model,
		system:   opts.SystemPrompt,
		now:      opts.Now,
		recorder: opts.Recorder,
		log:      logger.For("session").With("session_id", opts.ID),
	}
	s.fsm = newTurnFSM()
	s.reset()
	return s
}

func newTurnFSM() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateIdle)
	fsm.Configure(StateIdle).
		Permit(TriggerMessageReceived, StateGuarding)
	fsm.Configure(StateGuarding).
		Permit(TriggerRejected, StateIdle).
		Permit(TriggerAdmitted, StateStreaming)
	fsm.Configure(StateStreaming).
		Permit(TriggerToolsRequested, StateToolDispatch).
		Permit(TriggerTurnCompleted, StateCommitting).
		Permit(TriggerFatalError, StateIdle).
		Permit(TriggerCanceled, StateIdle)
	fsm.Configure(StateToolDispatch).
		Permit(TriggerToolsResolved, StateStreaming).
		Permit(TriggerFatalError, StateIdle).
		Permit(TriggerCanceled, StateIdle)
	fsm.Configure(StateCommitting).
		Permit(TriggerCommitted, StateIdle)
	return fsm
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// History returns the displayable transcript in conversational order.
func (s *Session) History() []Turn {
	out := make([]Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Clear resets the model context to a single system turn and empties the
// displayable transcript. Calling it repeatedly is idempotent.
func (s *Session) Clear() {
	s.reset()
	s.log.Info("chat history cleared")
}

func (s *Session) reset() {
	s.modelHistory = []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: s.system,
	}}
	s.transcript = nil
}

// Send processes one user message and returns the lazy, finite sequence of
// text fragments of the assistant's reply. The sequence is not restartable;
// breaking out of it cancels the in-flight turn. Rejected messages yield a
// single canned reply without any provider call.
func (s *Session) Send(ctx context.Context, message string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if err := s.fsm.Fire(TriggerMessageReceived); err != nil {
			s.log.Warn("message received while session busy", "error", err)
			return
		}

		verdict := s.guard.Evaluate(message)
		if !verdict.Admitted {
			reply := cannedReply(verdict.Reason)
			s.appendTurn(RoleUser, message, false)
			s.appendTurn(RoleAssistant, reply, false)
			s.fire(TriggerRejected)
			yield(reply)
			return
		}

		s.modelHistory = append(s.modelHistory, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: message,
		})
		s.appendTurn(RoleUser, message, false)
		s.fire(TriggerAdmitted)

		var full strings.Builder
		for {
			stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
				Model:    s.model,
				Messages: s.modelHistory,
				Tools:    s.registry.Declarations(),
				Stream:   true,
			})
			if err != nil {
				s.failTurn(yield, fmt.Errorf("open completion stream: %w", err))
				return
			}

			outcome := s.consumeStream(ctx, stream, &full, yield)
			if cerr := stream.Close(); cerr != nil {
				s.log.Warn("stream close error", "error", cerr)
			}

			switch outcome.kind {
			case streamFatal:
				s.failTurn(yield, outcome.err)
				return
			case streamCanceled:
				s.log.Info("turn canceled; partial response discarded")
				s.fire(TriggerCanceled)
				return
			case streamToolCalls:
				s.fire(TriggerToolsRequested)
				s.dispatchTools(ctx, outcome.toolCalls)
				if ctx.Err() != nil {
					s.fire(TriggerCanceled)
					return
				}
				s.fire(TriggerToolsResolved)
				// Loop reopens the stream with the tool results in
				// context.
			case streamDone:
				s.fire(TriggerTurnCompleted)
				s.commit(full.String())
				s.fire(TriggerCommitted)
				return
			}
		}
	}
}

type streamOutcomeKind int

const (
	streamDone streamOutcomeKind = iota
	streamToolCalls
	streamCanceled
	streamFatal
)

type streamOutcome struct {
	kind      streamOutcomeKind
	toolCalls []openai.ToolCall
	err       error
}

// consumeStream forwards text deltas to the caller and accumulates tool-call
// deltas until the provider signals tool dispatch, end-of-turn or an error.
// No two events of one stream are ever processed concurrently.
func (s *Session) consumeStream(ctx context.Context, stream llm.Stream, full *strings.Builder, yield func(string) bool) streamOutcome {
	var calls []openai.ToolCall

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(calls) > 0 {
					return streamOutcome{kind: streamToolCalls, toolCalls: calls}
				}
				return streamOutcome{kind: streamDone}
			}
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return streamOutcome{kind: streamCanceled}
			}
			return streamOutcome{kind: streamFatal, err: err}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.Content != "" {
			full.WriteString(choice.Delta.Content)
			if !yield(choice.Delta.Content) {
				return streamOutcome{kind: streamCanceled}
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			calls = accumulateToolCall(calls, tc)
		}

		switch choice.FinishReason {
		case openai.FinishReasonToolCalls:
			return streamOutcome{kind: streamToolCalls, toolCalls: calls}
		case openai.FinishReasonStop:
			return streamOutcome{kind: streamDone}
		}
	}
}

// accumulateToolCall merges a streamed tool-call delta into the slot named
// by its index: the id and name arrive once, the arguments in pieces.
func accumulateToolCall(calls []openai.ToolCall, delta openai.ToolCall) []openai.ToolCall {
	idx := 0
	if delta.Index != nil {
		idx = *delta.Index
	}
	for len(calls) <= idx {
		calls = append(calls, openai.ToolCall{Type: openai.ToolTypeFunction})
	}
	if delta.ID != "" {
		calls[idx].ID = delta.ID
	}
	if delta.Function.Name != "" {
		calls[idx].Function.Name += delta.Function.Name
	}
	calls[idx].Function.Arguments += delta.Function.Arguments
	return calls
}

// dispatchTools executes the requested calls in order and feeds each result
// back into the model context. A failing tool produces an error-string
// result instead of aborting the turn.
func (s *Session) dispatchTools(ctx context.Context, calls []openai.ToolCall) {
	s.modelHistory = append(s.modelHistory, openai.ChatCompletionMessage{
		Role:      openai.ChatMessageRoleAssistant,
		ToolCalls: calls,
	})

	for _, call := range calls {
		name := call.Function.Name
		output := s.runTool(ctx, name, call.Function.Arguments)
		s.modelHistory = append(s.modelHistory, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    output,
			ToolCallID: call.ID,
			Name:       name,
		})
	}
}

func (s *Session) runTool(ctx context.Context, name, args string) string {
	tool, err := s.registry.Get(name)
	if err != nil {
		s.log.Warn("model requested unknown tool", "tool", name)
		return fmt.Sprintf("Erro: ferramenta desconhecida %q", name)
	}
	output, err := tool.Run(ctx, args)
	if err != nil {
		s.log.Warn("tool execution failed", "tool", name, "error", err)
		return fmt.Sprintf("Erro ao executar %s: %v", name, err)
	}
	return output
}

// commit appends the accumulated assistant reply to both histories. Only a
// cleanly completed turn ever reaches here.
func (s *Session) commit(content string) {
	s.modelHistory = append(s.modelHistory, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: content,
	})
	s.appendTurn(RoleAssistant, content, false)
}

// failTurn handles fatal provider errors: nothing is committed to the model
// context, the transcript gains an error turn and the caller receives one
// synthesized fragment.
func (s *Session) failTurn(yield func(string) bool, err error) {
	s.log.Error("provider error; turn aborted", "error", err)
	s.appendTurn(RoleAssistant, replyProvider, true)
	s.fire(TriggerFatalError)
	yield(replyProvider)
}

func (s *Session) appendTurn(role Role, content string, isError bool) {
	turn := Turn{Role: role, Content: content, Timestamp: s.now(), IsError: isError}
	s.transcript = append(s.transcript, turn)
	if s.recorder != nil {
		s.recorder.Record(s.id, turn)
	}
}

func (s *Session) fire(trigger FSMTrigger) {
	if err := s.fsm.Fire(trigger); err != nil {
		s.log.Warn("FSM fire error", "trigger", trigger, "error", err)
	}
}

func cannedReply(reason guard.Reason) string {
	switch reason {
	case guard.ReasonEmptyOrInvalid:
		return replyInvalid
	case guard.ReasonInjectionDetected:
		return replyInjection
	default:
		return replyOffDomain
	}
}
