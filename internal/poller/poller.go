package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"repairshop-backend/internal/dto"
)

type State int

const (
	StateIdle State = iota
	StatePolling
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	default:
		return "idle"
	}
}

const (
	SessionListInterval   = 5 * time.Second
	AdminMessageInterval  = 3 * time.Second
	WidgetMessageInterval = 5 * time.Second
)

// SessionListPoller keeps the console's session list fresh. Each tick
// refetches the full list with unread counts and replaces the held snapshot
// wholesale; nothing is merged.
type SessionListPoller struct {
	Client   *Client
	Interval time.Duration

	mu       sync.RWMutex
	state    State
	sessions []dto.SessionSummaryResponse
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewSessionListPoller(client *Client) *SessionListPoller {
	return &SessionListPoller{
		Client:   client,
		Interval: SessionListInterval,
	}
}

func (p *SessionListPoller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.state == StatePolling {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.state = StatePolling
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		defer p.setIdle()

		p.refresh(ctx)

		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Fetches are fired without an overlap guard; a slow
				// response just loses the race and each response
				// replaces the snapshot idempotently.
				go p.refresh(ctx)
			}
		}
	}()
}

func (p *SessionListPoller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (p *SessionListPoller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *SessionListPoller) Sessions() []dto.SessionSummaryResponse {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sessions := make([]dto.SessionSummaryResponse, len(p.sessions))
	copy(sessions, p.sessions)
	return sessions
}

func (p *SessionListPoller) setIdle() {
	p.mu.Lock()
	p.state = StateIdle
	p.mu.Unlock()
}

func (p *SessionListPoller) refresh(ctx context.Context) {
	resp, err := p.Client.ListSessions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("session list poll failed: %v", err)
		}
		return
	}

	p.mu.Lock()
	p.sessions = resp.Sessions
	p.mu.Unlock()
}

// MessagePoller keeps one open session view fresh. The admin variant ticks
// faster and sends a read receipt after every successful fetch: an agent
// with the session open has seen whatever arrived.
type MessagePoller struct {
	Client    *Client
	SessionID string
	Interval  time.Duration
	MarkRead  bool

	mu       sync.RWMutex
	state    State
	messages []dto.ChatMessageResponse
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewAdminMessagePoller(client *Client, sessionID string) *MessagePoller {
	return &MessagePoller{
		Client:    client,
		SessionID: sessionID,
		Interval:  AdminMessageInterval,
		MarkRead:  true,
	}
}

func NewWidgetMessagePoller(client *Client, sessionID string) *MessagePoller {
	return &MessagePoller{
		Client:    client,
		SessionID: sessionID,
		Interval:  WidgetMessageInterval,
	}
}

func (p *MessagePoller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.state == StatePolling {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.state = StatePolling
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		defer p.setIdle()

		p.refresh(ctx)

		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				go p.refresh(ctx)
			}
		}
	}()
}

func (p *MessagePoller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (p *MessagePoller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *MessagePoller) Messages() []dto.ChatMessageResponse {
	p.mu.RLock()
	defer p.mu.RUnlock()
	messages := make([]dto.ChatMessageResponse, len(p.messages))
	copy(messages, p.messages)
	return messages
}

func (p *MessagePoller) setIdle() {
	p.mu.Lock()
	p.state = StateIdle
	p.mu.Unlock()
}

func (p *MessagePoller) refresh(ctx context.Context) {
	resp, err := p.Client.ListSessionMessages(ctx, p.SessionID)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("message poll failed for session %s: %v", p.SessionID, err)
		}
		return
	}

	p.mu.Lock()
	p.messages = resp.Messages
	p.mu.Unlock()

	if p.MarkRead {
		if err := p.Client.MarkSessionRead(ctx, p.SessionID); err != nil && ctx.Err() == nil {
			log.Printf("mark read failed for session %s: %v", p.SessionID, err)
		}
	}
}
