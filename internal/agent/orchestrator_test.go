package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentgate/internal/providers"
	"github.com/nextlevelbuilder/agentgate/internal/store"
	"github.com/nextlevelbuilder/agentgate/internal/store/memory"
)

// fakeProvider is a scriptable providers.Provider. Each call records
// the messages it was given; reply and delay drive the response.
type fakeProvider struct {
	mu       sync.Mutex
	calls    [][]providers.Message
	reply    func(n int) string // n = call number, 1-based
	delay    time.Duration
	failWith error
}

func (f *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Messages)
	n := len(f.calls)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failWith != nil {
		return nil, f.failWith
	}
	content := "ok"
	if f.reply != nil {
		content = f.reply(n)
	}
	return &providers.ChatResponse{
		Content:      content,
		FinishReason: "stop",
		Usage:        &providers.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	resp, err := f.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	onChunk(providers.StreamChunk{Content: resp.Content})
	onChunk(providers.StreamChunk{Done: true})
	return resp, nil
}

func (f *fakeProvider) DefaultModel() string { return "fake-model" }
func (f *fakeProvider) Name() string         { return "fake" }

func (f *fakeProvider) messagesInCall(n int) []providers.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[n-1]
}

func testAgent() *store.AgentData {
	return &store.AgentData{
		ID:       uuid.New(),
		AgentKey: "general",
		Name:     "General Assistant",
		AreaType: "general",
		Provider: "fake",
		Enabled:  true,
	}
}

func newTestOrchestrator(p *fakeProvider, sessionStore store.SessionStore, opts ...Option) *Orchestrator {
	reg := providers.NewRegistry()
	reg.Register(p)
	return NewOrchestrator(reg, sessionStore, opts...)
}

// TestInvoke_NewSession verifies a first turn: fresh session id, both
// turns persisted, and metadata (agent, title) recorded.
func TestInvoke_NewSession(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{}
	sessions := memory.NewSessionStore()
	agent := testAgent()
	orch := newTestOrchestrator(p, sessions)

	res, err := orch.Invoke(ctx, InvokeRequest{Agent: agent, UserID: "u1", Message: "hello there"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.SessionID == "" {
		t.Fatal("expected a generated session id")
	}
	if res.Content != "ok" {
		t.Errorf("content = %q, want ok", res.Content)
	}
	if res.Usage == nil || res.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v, want total 15", res.Usage)
	}

	turns, err := sessions.Turns(ctx, res.SessionID, 0)
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Content != "hello there" {
		t.Errorf("first turn = %+v", turns[0])
	}
	if turns[1].Role != "assistant" || turns[1].Content != "ok" {
		t.Errorf("second turn = %+v", turns[1])
	}

	sess, err := sessions.Get(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.AgentID != agent.ID {
		t.Errorf("session agent id = %s, want %s", sess.AgentID, agent.ID)
	}
	if sess.Title != "hello there" {
		t.Errorf("session title = %q, want the first message", sess.Title)
	}
}

// TestInvoke_HistoryReplay verifies the second turn sees the first
// turn's history and the system prompt comes from the agent config.
func TestInvoke_HistoryReplay(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: func(n int) string { return fmt.Sprintf("answer %d", n) }}
	sessions := memory.NewSessionStore()
	agent := testAgent()
	agent.Instruction = "be terse"
	orch := newTestOrchestrator(p, sessions)

	first, err := orch.Invoke(ctx, InvokeRequest{Agent: agent, UserID: "u1", Message: "one"})
	if err != nil {
		t.Fatalf("first Invoke: %v", err)
	}
	_, err = orch.Invoke(ctx, InvokeRequest{Agent: agent, UserID: "u1", SessionID: first.SessionID, Message: "two"})
	if err != nil {
		t.Fatalf("second Invoke: %v", err)
	}

	msgs := p.messagesInCall(2)
	wantRoles := []string{"user", "assistant", "user"}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("second call saw %d messages, want %d: %+v", len(msgs), len(wantRoles), msgs)
	}
	for i, r := range wantRoles {
		if msgs[i].Role != r {
			t.Errorf("message %d role = %q, want %q", i, msgs[i].Role, r)
		}
	}
	if msgs[1].Content != "answer 1" {
		t.Errorf("replayed assistant content = %q, want answer 1", msgs[1].Content)
	}

	turns, _ := sessions.Turns(ctx, first.SessionID, 0)
	if len(turns) != 4 {
		t.Errorf("got %d turns after two invocations, want 4", len(turns))
	}
}

// TestInvoke_ConcurrentSameSession verifies two racing invocations on
// one session are fully serialized: the later one replays the earlier
// one's turns and the final history holds all four.
func TestInvoke_ConcurrentSameSession(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{delay: 10 * time.Millisecond}
	sessions := memory.NewSessionStore()
	agent := testAgent()
	orch := newTestOrchestrator(p, sessions)

	seed, err := orch.Invoke(ctx, InvokeRequest{Agent: agent, UserID: "u1", Message: "seed"})
	if err != nil {
		t.Fatalf("seed Invoke: %v", err)
	}
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = orch.Invoke(ctx, InvokeRequest{
				Agent: agent, UserID: "u1", SessionID: seed.SessionID,
				Message: fmt.Sprintf("racer %d", i),
			})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("racer %d: %v", i, err)
		}
	}

	turns, err := sessions.Turns(ctx, seed.SessionID, 0)
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(turns) != 6 {
		t.Fatalf("got %d turns, want 6 (seed pair + two racer pairs)", len(turns))
	}
	// Turn pairs must be interleaved as complete user/assistant pairs,
	// never split by the other racer.
	for i := 0; i < len(turns); i += 2 {
		if turns[i].Role != "user" || turns[i+1].Role != "assistant" {
			t.Errorf("turns %d/%d roles = %s/%s, want user/assistant", i, i+1, turns[i].Role, turns[i+1].Role)
		}
	}

	// The later racer's model call must have seen the earlier racer's
	// pair: seed history (2) + first racer's pair (2) + own message.
	last := p.messagesInCall(3)
	if len(last) != 5 {
		t.Errorf("final call saw %d messages, want 5", len(last))
	}
}

// TestInvoke_Timeout verifies a wedged provider yields the distinct
// timeout error, appends nothing, and releases the session lock.
func TestInvoke_Timeout(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{delay: time.Second}
	sessions := memory.NewSessionStore()
	agent := testAgent()
	orch := newTestOrchestrator(p, sessions, WithInvokeTimeout(20*time.Millisecond))

	res, err := orch.Invoke(ctx, InvokeRequest{Agent: agent, UserID: "u1", SessionID: "", Message: "slow"})
	if !errors.Is(err, ErrInvocationTimeout) {
		t.Fatalf("err = %v, want ErrInvocationTimeout", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if !strings.Contains(err.Error(), "more specific request") {
		t.Errorf("timeout error %q should carry the retry guidance", err)
	}

	// Nothing may be recorded for the failed turn.
	listed, err := sessions.List(ctx, "u1", store.SessionListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, s := range listed.Sessions {
		if s.TurnCount != 0 {
			t.Errorf("session %s has %d turns after a timeout, want 0", s.ID, s.TurnCount)
		}
	}

	// The lock must have been released: a fast follow-up succeeds.
	p.delay = 0
	if _, err := orch.Invoke(ctx, InvokeRequest{Agent: agent, UserID: "u1", Message: "fast"}); err != nil {
		t.Fatalf("follow-up Invoke: %v", err)
	}
}

// TestInvoke_CallerCancellation verifies a cancelled caller gets the
// plain context error, not the timeout error.
func TestInvoke_CallerCancellation(t *testing.T) {
	p := &fakeProvider{delay: time.Second}
	orch := newTestOrchestrator(p, memory.NewSessionStore())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := orch.Invoke(ctx, InvokeRequest{Agent: testAgent(), UserID: "u1", Message: "hi"})
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if errors.Is(err, ErrInvocationTimeout) {
		t.Errorf("caller cancellation must not masquerade as an invocation timeout: %v", err)
	}
}

// TestInvoke_UnknownSession verifies that naming a session that does
// not exist (or belongs to someone else) fails with NotFound.
func TestInvoke_UnknownSession(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{}
	sessions := memory.NewSessionStore()
	agent := testAgent()
	orch := newTestOrchestrator(p, sessions)

	_, err := orch.Invoke(ctx, InvokeRequest{Agent: agent, UserID: "u1", SessionID: "sess_missing", Message: "hi"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}

	// Another user's session looks exactly like a missing one.
	mine, err := orch.Invoke(ctx, InvokeRequest{Agent: agent, UserID: "u1", Message: "hi"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	_, err = orch.Invoke(ctx, InvokeRequest{Agent: agent, UserID: "u2", SessionID: mine.SessionID, Message: "hi"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-user access err = %v, want store.ErrNotFound", err)
	}
}

// failingSessionStore errors on every call, simulating a dead backend.
type failingSessionStore struct{}

func (failingSessionStore) Load(context.Context, string, string, string) (*store.SessionData, error) {
	return nil, errors.New("backend down")
}
func (failingSessionStore) Create(context.Context, string, string, string) (*store.SessionData, error) {
	return nil, errors.New("backend down")
}
func (failingSessionStore) Get(context.Context, string) (*store.SessionData, error) {
	return nil, errors.New("backend down")
}
func (failingSessionStore) Turns(context.Context, string, int) ([]store.Turn, error) {
	return nil, errors.New("backend down")
}
func (failingSessionStore) AppendTurns(context.Context, string, []store.Turn) error {
	return errors.New("backend down")
}
func (failingSessionStore) SetMetadata(context.Context, string, uuid.UUID, string) error {
	return errors.New("backend down")
}
func (failingSessionStore) List(context.Context, string, store.SessionListOpts) (*store.SessionListResult, error) {
	return nil, errors.New("backend down")
}
func (failingSessionStore) Close(context.Context, string, string) (bool, error) {
	return false, errors.New("backend down")
}

// TestInvoke_DegradedStore verifies a dead session store degrades a new
// conversation to transient: the model still answers.
func TestInvoke_DegradedStore(t *testing.T) {
	p := &fakeProvider{}
	orch := newTestOrchestrator(p, failingSessionStore{})

	res, err := orch.Invoke(context.Background(), InvokeRequest{Agent: testAgent(), UserID: "u1", Message: "hi"})
	if err != nil {
		t.Fatalf("Invoke with degraded store: %v", err)
	}
	if res.Content != "ok" {
		t.Errorf("content = %q, want ok", res.Content)
	}
}

// TestInvokeStream verifies chunks arrive before the final result and
// the persisted outcome matches the non-streaming path.
func TestInvokeStream(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: func(int) string { return "streamed" }}
	sessions := memory.NewSessionStore()
	orch := newTestOrchestrator(p, sessions)

	var chunks []providers.StreamChunk
	res, err := orch.InvokeStream(ctx, InvokeRequest{Agent: testAgent(), UserID: "u1", Message: "hi"},
		func(c providers.StreamChunk) { chunks = append(chunks, c) })
	if err != nil {
		t.Fatalf("InvokeStream: %v", err)
	}
	if len(chunks) != 2 || chunks[0].Content != "streamed" || !chunks[1].Done {
		t.Errorf("chunks = %+v, want content then done", chunks)
	}
	if res.Content != "streamed" {
		t.Errorf("final content = %q, want streamed", res.Content)
	}

	turns, _ := sessions.Turns(ctx, res.SessionID, 0)
	if len(turns) != 2 {
		t.Errorf("got %d persisted turns, want 2", len(turns))
	}
}

// TestInvoke_TitleTruncation verifies long first messages are clipped
// for the session title while the turn keeps the full text.
func TestInvoke_TitleTruncation(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{}
	sessions := memory.NewSessionStore()
	orch := newTestOrchestrator(p, sessions)

	long := strings.Repeat("x", 500)
	res, err := orch.Invoke(ctx, InvokeRequest{Agent: testAgent(), UserID: "u1", Message: long})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	sess, err := sessions.Get(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.Title) != maxTitleLen {
		t.Errorf("title length = %d, want %d", len(sess.Title), maxTitleLen)
	}
	turns, _ := sessions.Turns(ctx, res.SessionID, 0)
	if turns[0].Content != long {
		t.Error("turn content must keep the full message")
	}
}
