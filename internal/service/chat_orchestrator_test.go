package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/memory"
)

type fakeEngine struct {
	answer    *domain.ChatAnswer
	err       error
	questions []string
}

func (e *fakeEngine) Ask(ctx context.Context, question string) (*domain.ChatAnswer, error) {
	e.questions = append(e.questions, question)
	if e.err != nil {
		return nil, e.err
	}
	return e.answer, nil
}

func newTestChat(engine *fakeEngine) (*ChatOrchestrator, *memory.ChatRepository) {
	repo := memory.NewChatRepository()
	return NewChatOrchestrator(engine, repo, ChatConfig{}), repo
}

func TestChatOrchestrator_AskStoresQuestionAndAnswer(t *testing.T) {
	engine := &fakeEngine{answer: &domain.ChatAnswer{
		SQL:      "SELECT country, SUM(amount) FROM invoices GROUP BY country",
		Columns:  []string{"country", "sum"},
		Results:  []map[string]any{{"country": "TW", "sum": 12.5}, {"country": "SG", "sum": 3.0}},
		RowCount: 2,
	}}
	chat, _ := newTestChat(engine)
	ctx := context.Background()

	session, err := chat.CreateSession(ctx, "alice", "  ")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.Title != "New chat" {
		t.Fatalf("expected default title, got %q", session.Title)
	}

	reply, err := chat.Ask(ctx, "alice", session.ID, "  total amount by country  ")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if engine.questions[0] != "total amount by country" {
		t.Fatalf("expected trimmed question, got %q", engine.questions[0])
	}
	if reply.Kind != domain.ChatMessageAssistant || reply.Status != domain.ChatMessageCompleted {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if reply.SQL == nil || !strings.HasPrefix(*reply.SQL, "SELECT country") || reply.RowCount != 2 || len(reply.Rows) != 2 {
		t.Fatalf("expected engine results on the reply, got %+v", reply)
	}
	if reply.Content != "Found 2 rows." {
		t.Fatalf("unexpected summary %q", reply.Content)
	}

	msgs, err := chat.Messages(ctx, "alice", session.ID)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Kind != domain.ChatMessageUser || msgs[1].ID != reply.ID {
		t.Fatalf("expected question then answer, got %+v", msgs)
	}
	if msgs[1].Status != domain.ChatMessageCompleted {
		t.Fatalf("expected stored answer to be completed, got %s", msgs[1].Status)
	}
}

func TestChatOrchestrator_EngineFailureIsStoredAsErrorMessage(t *testing.T) {
	engine := &fakeEngine{err: errors.New("engine unavailable")}
	chat, _ := newTestChat(engine)
	ctx := context.Background()
	session, _ := chat.CreateSession(ctx, "alice", "Invoices")

	reply, err := chat.Ask(ctx, "alice", session.ID, "how many invoices?")
	if err != nil {
		t.Fatalf("engine failures must not fail the call: %v", err)
	}
	if reply.Kind != domain.ChatMessageError || reply.Status != domain.ChatMessageFailed {
		t.Fatalf("expected failed error message, got %+v", reply)
	}
	if reply.Content != "query failed: engine unavailable" {
		t.Fatalf("unexpected content %q", reply.Content)
	}
	if reply.SQL != nil {
		t.Fatalf("expected no SQL on a failed answer")
	}
}

func TestChatOrchestrator_QuestionLength(t *testing.T) {
	engine := &fakeEngine{answer: &domain.ChatAnswer{}}
	chat, _ := newTestChat(engine)
	ctx := context.Background()
	session, _ := chat.CreateSession(ctx, "alice", "")

	if _, err := chat.Ask(ctx, "alice", session.ID, " hi "); !errors.Is(err, ErrQuestionTooShort) {
		t.Fatalf("expected ErrQuestionTooShort, got %v", err)
	}
	if _, err := chat.Ask(ctx, "alice", session.ID, strings.Repeat("a", maxQuestionLength+1)); !errors.Is(err, ErrQuestionTooLong) {
		t.Fatalf("expected ErrQuestionTooLong, got %v", err)
	}
	if len(engine.questions) != 0 {
		t.Fatalf("expected no engine call for rejected questions")
	}
	msgs, _ := chat.Messages(ctx, "alice", session.ID)
	if len(msgs) != 0 {
		t.Fatalf("expected nothing stored, got %d messages", len(msgs))
	}
}

func TestChatOrchestrator_SessionsAreOwnerScoped(t *testing.T) {
	engine := &fakeEngine{answer: &domain.ChatAnswer{}}
	chat, _ := newTestChat(engine)
	ctx := context.Background()
	session, _ := chat.CreateSession(ctx, "alice", strings.Repeat("t", 100))
	if len([]rune(session.Title)) != maxTitleLength {
		t.Fatalf("expected title truncated to %d, got %d", maxTitleLength, len(session.Title))
	}

	if _, err := chat.Messages(ctx, "bob", session.ID); !errors.Is(err, ErrChatSessionNotFound) {
		t.Fatalf("expected ErrChatSessionNotFound for another user, got %v", err)
	}
	if _, err := chat.Ask(ctx, "bob", session.ID, "list invoices"); !errors.Is(err, ErrChatSessionNotFound) {
		t.Fatalf("expected ErrChatSessionNotFound for another user, got %v", err)
	}
	if _, err := chat.Ask(ctx, "alice", uuid.New(), "list invoices"); !errors.Is(err, ErrChatSessionNotFound) {
		t.Fatalf("expected ErrChatSessionNotFound for an unknown session, got %v", err)
	}

	sessions, err := chat.Sessions(ctx, "bob")
	if err != nil || len(sessions) != 0 {
		t.Fatalf("expected no sessions for bob, got %v %v", sessions, err)
	}
	sessions, _ = chat.Sessions(ctx, "alice")
	if len(sessions) != 1 || sessions[0].ID != session.ID {
		t.Fatalf("expected alice's session, got %+v", sessions)
	}
}

func TestChatOrchestrator_DeleteSession(t *testing.T) {
	engine := &fakeEngine{answer: &domain.ChatAnswer{RowCount: 1}}
	chat, repo := newTestChat(engine)
	ctx := context.Background()
	session, _ := chat.CreateSession(ctx, "alice", "Stock")
	if _, err := chat.Ask(ctx, "alice", session.ID, "total stock"); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if err := chat.DeleteSession(ctx, "bob", session.ID); !errors.Is(err, ErrChatSessionNotFound) {
		t.Fatalf("expected another user's delete refused, got %v", err)
	}
	if err := chat.DeleteSession(ctx, "alice", session.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := chat.Messages(ctx, "alice", session.ID); !errors.Is(err, ErrChatSessionNotFound) {
		t.Fatalf("expected the session gone, got %v", err)
	}
	if msgs, _ := repo.ListMessages(ctx, session.ID); len(msgs) != 0 {
		t.Fatalf("expected messages removed with the session, got %d", len(msgs))
	}
	if err := chat.DeleteSession(ctx, "alice", session.ID); !errors.Is(err, ErrChatSessionNotFound) {
		t.Fatalf("expected a second delete to report not found, got %v", err)
	}
}
