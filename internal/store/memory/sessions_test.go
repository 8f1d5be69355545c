package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// TestSessionStore_Lifecycle walks create → append → load → close for
// one session, checking ownership scoping along the way.
func TestSessionStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()

	if _, err := s.Load(ctx, "agent_x", "u1", "sess_1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Load before create: err = %v, want ErrNotFound", err)
	}

	created, err := s.Create(ctx, "agent_x", "u1", "sess_1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != store.SessionActive || created.TurnCount != 0 {
		t.Errorf("created = %+v", created)
	}

	if err := s.AppendTurns(ctx, "sess_1", []store.Turn{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
	}); err != nil {
		t.Fatalf("AppendTurns: %v", err)
	}

	loaded, err := s.Load(ctx, "agent_x", "u1", "sess_1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.TurnCount != 2 {
		t.Errorf("turn count = %d, want 2", loaded.TurnCount)
	}

	// Wrong scope or wrong user both read as not found.
	if _, err := s.Load(ctx, "agent_y", "u1", "sess_1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-scope load err = %v, want ErrNotFound", err)
	}
	if _, err := s.Load(ctx, "agent_x", "u2", "sess_1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-user load err = %v, want ErrNotFound", err)
	}

	ok, err := s.Close(ctx, "sess_1", "u1")
	if err != nil || !ok {
		t.Fatalf("Close = %v, %v", ok, err)
	}
	// Closing twice is still acknowledged.
	if ok, _ := s.Close(ctx, "sess_1", "u1"); !ok {
		t.Error("second Close should report true")
	}
	// Another user cannot close it.
	if ok, _ := s.Close(ctx, "sess_1", "u2"); ok {
		t.Error("cross-user Close should report false")
	}
}

// TestSessionStore_TurnsWindow verifies the limit keeps the most recent
// turns while preserving oldest-first order.
func TestSessionStore_TurnsWindow(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	if _, err := s.Create(ctx, "sc", "u1", "sess_w"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var batch []store.Turn
	for i := 0; i < 6; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		batch = append(batch, store.Turn{Role: role, Content: string(rune('a' + i))})
	}
	if err := s.AppendTurns(ctx, "sess_w", batch); err != nil {
		t.Fatalf("AppendTurns: %v", err)
	}

	turns, err := s.Turns(ctx, "sess_w", 4)
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("got %d turns, want 4", len(turns))
	}
	if turns[0].Content != "c" || turns[3].Content != "f" {
		t.Errorf("window = %q..%q, want c..f", turns[0].Content, turns[3].Content)
	}

	all, _ := s.Turns(ctx, "sess_w", 0)
	if len(all) != 6 {
		t.Errorf("unlimited read got %d turns, want 6", len(all))
	}
}

// TestSessionStore_SetMetadata verifies agent id and title are written
// once and never overwritten.
func TestSessionStore_SetMetadata(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	if _, err := s.Create(ctx, "sc", "u1", "sess_m"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first := uuid.New()
	if err := s.SetMetadata(ctx, "sess_m", first, "first title"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata(ctx, "sess_m", uuid.New(), "second title"); err != nil {
		t.Fatalf("second SetMetadata: %v", err)
	}

	sess, _ := s.Get(ctx, "sess_m")
	if sess.AgentID != first {
		t.Errorf("agent id was overwritten: %s", sess.AgentID)
	}
	if sess.Title != "first title" {
		t.Errorf("title was overwritten: %q", sess.Title)
	}
}

// TestSessionStore_List verifies filtering and pagination, newest
// first.
func TestSessionStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	for _, id := range []string{"sess_a", "sess_b", "sess_c"} {
		if _, err := s.Create(ctx, "sc", "u1", id); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	if _, err := s.Create(ctx, "sc", "u2", "sess_other"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok, _ := s.Close(ctx, "sess_b", "u1"); !ok {
		t.Fatal("Close sess_b")
	}

	res, err := s.List(ctx, "u1", store.SessionListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 3 {
		t.Errorf("total = %d, want 3", res.Total)
	}

	active, _ := s.List(ctx, "u1", store.SessionListOpts{Status: store.SessionActive})
	if active.Total != 2 {
		t.Errorf("active total = %d, want 2", active.Total)
	}

	paged, _ := s.List(ctx, "u1", store.SessionListOpts{Limit: 2, Offset: 2})
	if paged.Total != 3 || len(paged.Sessions) != 1 {
		t.Errorf("paged total/len = %d/%d, want 3/1", paged.Total, len(paged.Sessions))
	}
}
