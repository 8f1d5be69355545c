// Package agent runs conversations: it serializes per-session access,
// assembles history, calls the model provider, and persists the
// resulting turns.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/agentgate/internal/providers"
	"github.com/nextlevelbuilder/agentgate/internal/sessions"
	"github.com/nextlevelbuilder/agentgate/internal/store"
)

const (
	// DefaultInvokeTimeout bounds one model call. Long enough for a
	// large completion, short enough that a wedged upstream cannot pin
	// the session lock indefinitely.
	DefaultInvokeTimeout = 60 * time.Second

	// maxTitleLen caps the session title derived from the first user
	// message.
	maxTitleLen = 100

	// historyWindow is how many recent turns are replayed to the model.
	historyWindow = 50
)

var tracer = otel.Tracer("agentgate/agent")

// Orchestrator runs one agent invocation end to end. All state lives
// in the stores; the orchestrator itself only owns the lock registry.
type Orchestrator struct {
	providers *providers.Registry
	sessions  store.SessionStore
	locks     *sessions.LockRegistry
	timeout   time.Duration
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithInvokeTimeout overrides the per-invocation model deadline.
func WithInvokeTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// NewOrchestrator creates an orchestrator over the given registry and
// session store.
func NewOrchestrator(reg *providers.Registry, sessionStore store.SessionStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		providers: reg,
		sessions:  sessionStore,
		locks:     sessions.NewLockRegistry(),
		timeout:   DefaultInvokeTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// InvokeRequest is one user message addressed to an agent.
type InvokeRequest struct {
	Agent     *store.AgentData
	UserID    string
	SessionID string // empty = start a new session
	Message   string
}

// InvokeResult is the agent's reply plus the session it belongs to.
type InvokeResult struct {
	SessionID string           `json:"session_id"`
	Content   string           `json:"content"`
	Usage     *providers.Usage `json:"usage,omitempty"`
}

// Invoke runs one conversation turn under the session lock:
// load-or-create the session, call the model with the replayed history,
// then append the user and assistant turns in one atomic write. A
// failed or timed-out model call appends nothing, so the history never
// records a question that got no answer.
func (o *Orchestrator) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error) {
	return o.run(ctx, req, nil)
}

// InvokeStream is Invoke with incremental delivery: chunks go to
// onChunk as they arrive, and the completed turn is persisted exactly
// like the non-streaming path.
func (o *Orchestrator) InvokeStream(ctx context.Context, req InvokeRequest, onChunk func(providers.StreamChunk)) (*InvokeResult, error) {
	return o.run(ctx, req, onChunk)
}

func (o *Orchestrator) run(ctx context.Context, req InvokeRequest, onChunk func(providers.StreamChunk)) (*InvokeResult, error) {
	ctx, span := tracer.Start(ctx, "agent.invoke", trace.WithAttributes(
		attribute.String("agent.key", req.Agent.AgentKey),
		attribute.String("agent.provider", req.Agent.Provider),
	))
	defer span.End()

	provider, err := o.providers.Get(req.Agent.Provider)
	if err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = sessions.NewSessionID()
	}
	span.SetAttributes(attribute.String("session.id", sessionID))

	lock := o.locks.Get(sessionID)
	if err := lock.Acquire(ctx); err != nil {
		// Cancelled while queued; nothing was read or written.
		return nil, err
	}
	defer lock.Release()

	scope := sessions.ScopeForAgent(req.Agent.ID)
	sess, history, persist := o.loadOrCreate(ctx, scope, req.UserID, sessionID, req.SessionID != "")
	if sess == nil && req.SessionID != "" {
		// Caller named a session that is not theirs or does not exist.
		return nil, fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
	}

	messages := make([]providers.Message, 0, len(history)+1)
	for _, t := range history {
		messages = append(messages, providers.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, providers.Message{Role: "user", Content: req.Message})

	chatReq := providers.ChatRequest{
		Messages: messages,
		Model:    req.Agent.Model,
		System:   req.Agent.Instruction,
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	var resp *providers.ChatResponse
	if onChunk != nil {
		resp, err = provider.ChatStream(callCtx, chatReq, onChunk)
	} else {
		resp, err = provider.Chat(callCtx, chatReq)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			slog.Warn("agent.invoke_timeout",
				"session", sessionID, "agent", req.Agent.AgentKey, "elapsed", time.Since(start))
			return nil, fmt.Errorf("%w (after %s)", ErrInvocationTimeout, o.timeout)
		}
		return nil, fmt.Errorf("provider %s: %w", req.Agent.Provider, err)
	}

	if persist {
		turns := []store.Turn{
			{Role: "user", Content: req.Message},
			{Role: "assistant", Content: resp.Content},
		}
		if err := o.sessions.AppendTurns(ctx, sessionID, turns); err != nil {
			// The user already has the answer; losing one history entry
			// beats failing the whole turn.
			slog.Warn("agent.history_append_failed", "session", sessionID, "error", err)
		} else if len(history) == 0 {
			o.setMetadata(ctx, sessionID, req)
		}
	}

	slog.Info("agent.invoked",
		"session", sessionID,
		"agent", req.Agent.AgentKey,
		"provider", req.Agent.Provider,
		"duration", time.Since(start).Round(time.Millisecond))

	return &InvokeResult{
		SessionID: sessionID,
		Content:   resp.Content,
		Usage:     resp.Usage,
	}, nil
}

// loadOrCreate resolves the session row and its history. A failing
// session store degrades the call to a transient conversation: the
// model is still invoked, nothing is persisted, and persist comes back
// false. The bool distinction between "store is down" and "session not
// found" matters only for existing-session requests, which the caller
// rejects via the nil session.
func (o *Orchestrator) loadOrCreate(ctx context.Context, scope, userID, sessionID string, existing bool) (*store.SessionData, []store.Turn, bool) {
	if existing {
		sess, err := o.sessions.Load(ctx, scope, userID, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil, false
			}
			slog.Warn("agent.session_store_degraded", "session", sessionID, "error", err)
			return &store.SessionData{ID: sessionID, Scope: scope, UserID: userID}, nil, false
		}
		history, err := o.sessions.Turns(ctx, sessionID, historyWindow)
		if err != nil {
			slog.Warn("agent.history_unavailable", "session", sessionID, "error", err)
			history = nil
		}
		return sess, history, true
	}

	sess, err := o.sessions.Create(ctx, scope, userID, sessionID)
	if err != nil {
		slog.Warn("agent.session_store_degraded", "session", sessionID, "error", err)
		return &store.SessionData{ID: sessionID, Scope: scope, UserID: userID}, nil, false
	}
	return sess, nil, true
}

// setMetadata records the serving agent and derives the title from the
// first message. Best effort; the turn is already persisted.
func (o *Orchestrator) setMetadata(ctx context.Context, sessionID string, req InvokeRequest) {
	title := req.Message
	if len(title) > maxTitleLen {
		title = title[:maxTitleLen]
	}
	if err := o.sessions.SetMetadata(ctx, sessionID, req.Agent.ID, title); err != nil {
		slog.Warn("agent.metadata_update_failed", "session", sessionID, "error", err)
	}
}
