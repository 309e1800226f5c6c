package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"repairshop-backend/internal/dto"
)

type fakeChatAPI struct {
	mu           sync.Mutex
	sessions     []dto.SessionSummaryResponse
	messages     []dto.ChatMessageResponse
	listCalls    int
	messageCalls int
	readCalls    int
}

func (f *fakeChatAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/sessions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.listCalls++
		resp := dto.ListSessionsResponse{Sessions: f.sessions}
		f.mu.Unlock()
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/chat/sessions/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case r.Method == http.MethodPatch:
			f.readCalls++
			json.NewEncoder(w).Encode(dto.MarkReadResponse{Success: true})
		default:
			f.messageCalls++
			json.NewEncoder(w).Encode(dto.ListChatMessagesResponse{Messages: f.messages})
		}
	})
	return mux
}

func (f *fakeChatAPI) setSessions(sessions []dto.SessionSummaryResponse) {
	f.mu.Lock()
	f.sessions = sessions
	f.mu.Unlock()
}

func (f *fakeChatAPI) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.messageCalls, f.readCalls
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSessionListPollerReplacesSnapshot(t *testing.T) {
	api := &fakeChatAPI{
		sessions: []dto.SessionSummaryResponse{
			{Session: dto.SessionResponse{SessionID: "s1"}, UnreadCount: 2},
		},
	}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	p := NewSessionListPoller(NewClient(server.URL))
	p.Interval = 10 * time.Millisecond
	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, time.Second, func() bool {
		sessions := p.Sessions()
		return len(sessions) == 1 && sessions[0].UnreadCount == 2
	})

	if p.State() != StatePolling {
		t.Fatalf("expected polling state, got %s", p.State())
	}

	// The next fetch must replace the snapshot wholesale, not merge.
	api.setSessions([]dto.SessionSummaryResponse{
		{Session: dto.SessionResponse{SessionID: "s2"}, UnreadCount: 0},
	})

	waitFor(t, time.Second, func() bool {
		sessions := p.Sessions()
		return len(sessions) == 1 && sessions[0].Session.SessionID == "s2"
	})
}

func TestSessionListPollerStopReturnsToIdle(t *testing.T) {
	api := &fakeChatAPI{}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	p := NewSessionListPoller(NewClient(server.URL))
	p.Interval = 10 * time.Millisecond
	p.Start(context.Background())

	waitFor(t, time.Second, func() bool {
		calls, _, _ := api.counts()
		return calls >= 2
	})

	p.Stop()

	if p.State() != StateIdle {
		t.Fatalf("expected idle after stop, got %s", p.State())
	}

	callsAtStop, _, _ := api.counts()
	time.Sleep(50 * time.Millisecond)
	callsAfter, _, _ := api.counts()
	if callsAfter > callsAtStop+1 {
		t.Fatalf("poller kept fetching after stop: %d -> %d", callsAtStop, callsAfter)
	}
}

func TestSessionListPollerStopsOnContextCancel(t *testing.T) {
	api := &fakeChatAPI{}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	p := NewSessionListPoller(NewClient(server.URL))
	p.Interval = 10 * time.Millisecond
	p.Start(ctx)

	waitFor(t, time.Second, func() bool {
		calls, _, _ := api.counts()
		return calls >= 1
	})

	cancel()

	waitFor(t, time.Second, func() bool {
		return p.State() == StateIdle
	})
}

func TestAdminMessagePollerSendsReadReceipts(t *testing.T) {
	api := &fakeChatAPI{
		messages: []dto.ChatMessageResponse{
			{MessageID: "m1", SessionID: "s1", SenderType: "customer", Body: "hi"},
		},
	}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	p := NewAdminMessagePoller(NewClient(server.URL), "s1")
	p.Interval = 10 * time.Millisecond
	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, time.Second, func() bool {
		_, msgCalls, readCalls := api.counts()
		return msgCalls >= 2 && readCalls >= 2
	})

	messages := p.Messages()
	if len(messages) != 1 || messages[0].MessageID != "m1" {
		t.Fatalf("unexpected snapshot: %+v", messages)
	}
}

func TestWidgetMessagePollerDoesNotMarkRead(t *testing.T) {
	api := &fakeChatAPI{
		messages: []dto.ChatMessageResponse{
			{MessageID: "m1", SessionID: "s1", SenderType: "admin", Body: "hello"},
		},
	}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	p := NewWidgetMessagePoller(NewClient(server.URL), "s1")
	p.Interval = 10 * time.Millisecond
	p.Start(context.Background())
	defer p.Stop()

	waitFor(t, time.Second, func() bool {
		_, msgCalls, _ := api.counts()
		return msgCalls >= 3
	})

	_, _, readCalls := api.counts()
	if readCalls != 0 {
		t.Fatalf("widget poller must not send read receipts, got %d", readCalls)
	}
}

func TestStartIsIdempotentWhilePolling(t *testing.T) {
	api := &fakeChatAPI{}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	p := NewSessionListPoller(NewClient(server.URL))
	p.Interval = 10 * time.Millisecond
	p.Start(context.Background())
	p.Start(context.Background())
	defer p.Stop()

	if p.State() != StatePolling {
		t.Fatalf("expected polling, got %s", p.State())
	}
}
