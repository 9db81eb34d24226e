package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/z-tavern/chatbot/internal/model/chat"
	chatservice "github.com/zhouzirui/z-tavern/chatbot/internal/service/chat"
	"github.com/zhouzirui/z-tavern/chatbot/internal/service/session"
	"github.com/zhouzirui/z-tavern/chatbot/internal/service/webhook"
	"github.com/zhouzirui/z-tavern/chatbot/internal/store"
)

type fakeExchanger struct {
	mu      sync.Mutex
	calls   []chat.OutboundMessage
	reply   chat.InboundMessage
	err     error
	started chan struct{}
	block   chan struct{}
}

func (f *fakeExchanger) SendMessage(ctx context.Context, sessionID, text string) (chat.InboundMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, chat.OutboundMessage{SessionID: sessionID, Message: text})
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.reply, f.err
}

type storageDownError struct{}

func (storageDownError) Error() string { return "storage unavailable" }

type failingIdentity struct{}

func (failingIdentity) GetOrCreate(context.Context) (string, error) {
	return "", storageDownError{}
}

func newService(ex chatservice.Exchanger, cfg chatservice.Config) *chatservice.Service {
	identity := session.NewManager(store.NewMemoryStore(), session.WithGenerator(func() string { return "s1" }))
	return chatservice.NewService(identity, ex, cfg)
}

func TestStartConversationSeedsGreeting(t *testing.T) {
	svc := newService(&fakeExchanger{}, chatservice.Config{})
	conv := svc.StartConversation(context.Background())

	if conv.SessionID != "s1" {
		t.Fatalf("unexpected session id: %q", conv.SessionID)
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("expected single greeting, got %d messages", len(conv.Messages))
	}
	if conv.Messages[0].IsUser || conv.Messages[0].Text != chatservice.DefaultGreeting {
		t.Fatalf("unexpected greeting: %+v", conv.Messages[0])
	}
}

func TestSendAppendsUserAndReply(t *testing.T) {
	ex := &fakeExchanger{reply: chat.InboundMessage{SessionID: "s1", Response: "hello"}}
	svc := newService(ex, chatservice.Config{})
	ctx := context.Background()
	conv := svc.StartConversation(ctx)

	msg, err := svc.Send(ctx, conv.ID, "hi")
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if msg.Text != "hello" || msg.IsUser {
		t.Fatalf("unexpected reply: %+v", msg)
	}

	got, err := svc.Transcript(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	if !got.Messages[1].IsUser || got.Messages[1].Text != "hi" {
		t.Fatalf("unexpected user message: %+v", got.Messages[1])
	}
	if len(ex.calls) != 1 || ex.calls[0] != (chat.OutboundMessage{SessionID: "s1", Message: "hi"}) {
		t.Fatalf("unexpected exchange calls: %+v", ex.calls)
	}
}

func TestSendFailureFallsBackAndReportsCause(t *testing.T) {
	cause := &webhook.HTTPError{StatusCode: 500}
	ex := &fakeExchanger{err: cause}

	var reported error
	svc := newService(ex, chatservice.Config{
		Fallback:        "sorry",
		OnExchangeError: func(_ string, err error) { reported = err },
	})
	ctx := context.Background()
	conv := svc.StartConversation(ctx)

	msg, err := svc.Send(ctx, conv.ID, "hi")
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if msg.Text != "sorry" {
		t.Fatalf("expected fallback text, got %q", msg.Text)
	}
	var httpErr *webhook.HTTPError
	if !errors.As(reported, &httpErr) || httpErr.StatusCode != 500 {
		t.Fatalf("expected reported HTTP 500, got %v", reported)
	}
}

func TestSendRejectsBlankText(t *testing.T) {
	ex := &fakeExchanger{}
	svc := newService(ex, chatservice.Config{})
	conv := svc.StartConversation(context.Background())

	if _, err := svc.Send(context.Background(), conv.ID, "   "); !errors.Is(err, chatservice.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if len(ex.calls) != 0 {
		t.Fatalf("expected no exchange, got %d", len(ex.calls))
	}
}

func TestSendUnknownConversation(t *testing.T) {
	svc := newService(&fakeExchanger{}, chatservice.Config{})
	if _, err := svc.Send(context.Background(), "missing", "hi"); !errors.Is(err, chatservice.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestSendIsSingleFlight(t *testing.T) {
	ex := &fakeExchanger{
		reply:   chat.InboundMessage{Response: "ok"},
		started: make(chan struct{}, 1),
		block:   make(chan struct{}),
	}
	svc := newService(ex, chatservice.Config{})
	ctx := context.Background()
	conv := svc.StartConversation(ctx)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Send(ctx, conv.ID, "first")
		done <- err
	}()
	<-ex.started

	if _, err := svc.Send(ctx, conv.ID, "second"); !errors.Is(err, chatservice.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(ex.block)
	if err := <-done; err != nil {
		t.Fatalf("first send err: %v", err)
	}

	ex.started = nil
	if _, err := svc.Send(ctx, conv.ID, "third"); err != nil {
		t.Fatalf("send after release err: %v", err)
	}
}

func TestSendDefersWhenSessionNotReady(t *testing.T) {
	ex := &fakeExchanger{}
	svc := chatservice.NewService(failingIdentity{}, ex, chatservice.Config{})
	ctx := context.Background()
	conv := svc.StartConversation(ctx)
	if conv.SessionID != "" {
		t.Fatalf("expected empty session id, got %q", conv.SessionID)
	}

	_, err := svc.Send(ctx, conv.ID, "hi")
	if !errors.Is(err, chatservice.ErrSessionNotReady) {
		t.Fatalf("expected ErrSessionNotReady, got %v", err)
	}
	var cause storageDownError
	if !errors.As(err, &cause) {
		t.Fatalf("expected storage cause to stay reachable, got %v", err)
	}
	if len(ex.calls) != 0 {
		t.Fatalf("expected no exchange, got %d", len(ex.calls))
	}

	got, _ := svc.Transcript(ctx, conv.ID)
	if len(got.Messages) != 1 {
		t.Fatalf("expected transcript untouched, got %d messages", len(got.Messages))
	}
}

func TestEndConversation(t *testing.T) {
	svc := newService(&fakeExchanger{}, chatservice.Config{})
	ctx := context.Background()
	conv := svc.StartConversation(ctx)

	if err := svc.EndConversation(ctx, conv.ID); err != nil {
		t.Fatalf("EndConversation err: %v", err)
	}
	if _, err := svc.Transcript(ctx, conv.ID); !errors.Is(err, chatservice.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if err := svc.EndConversation(ctx, conv.ID); !errors.Is(err, chatservice.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound on second end, got %v", err)
	}
}

func TestSweepIdleDropsStaleConversations(t *testing.T) {
	svc := newService(&fakeExchanger{}, chatservice.Config{})
	ctx := context.Background()
	stale := svc.StartConversation(ctx)

	if n := svc.SweepIdle(time.Now(), time.Minute); n != 0 {
		t.Fatalf("expected nothing swept yet, got %d", n)
	}

	fresh := svc.StartConversation(ctx)
	if n := svc.SweepIdle(time.Now().Add(2*time.Minute), time.Minute); n != 2 {
		t.Fatalf("expected both conversations swept, got %d", n)
	}
	for _, id := range []string{stale.ID, fresh.ID} {
		if _, err := svc.Transcript(ctx, id); !errors.Is(err, chatservice.ErrConversationNotFound) {
			t.Fatalf("expected %s to be swept, got %v", id, err)
		}
	}
}

func TestSweepIdleKeepsBusyConversation(t *testing.T) {
	ex := &fakeExchanger{
		reply:   chat.InboundMessage{Response: "ok"},
		started: make(chan struct{}, 1),
		block:   make(chan struct{}),
	}
	svc := newService(ex, chatservice.Config{})
	ctx := context.Background()
	conv := svc.StartConversation(ctx)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Send(ctx, conv.ID, "slow")
		done <- err
	}()
	<-ex.started

	if n := svc.SweepIdle(time.Now().Add(time.Hour), time.Minute); n != 0 {
		t.Fatalf("expected in-flight conversation kept, got %d swept", n)
	}
	close(ex.block)
	if err := <-done; err != nil {
		t.Fatalf("send err: %v", err)
	}

	got, err := svc.Transcript(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected reply appended, got %d messages", len(got.Messages))
	}
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	svc := newService(&fakeExchanger{}, chatservice.Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.RunSweeper(ctx, 10*time.Millisecond, time.Hour)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
