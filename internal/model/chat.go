package model

import "fmt"

type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusClosed SessionStatus = "closed"
)

type SenderType string

const (
	SenderTypeCustomer SenderType = "customer"
	SenderTypeAdmin    SenderType = "admin"
)

func MessagePK(sessionID, messageID string) string {
	return fmt.Sprintf("%s#%s", sessionID, messageID)
}

// SessionItem is one support conversation. UserID is set for sessions owned
// by an authenticated customer; GuestName/GuestEmail for guest sessions. Both
// are nullable at the schema level.
type SessionItem struct {
	SessionID     string        `dynamodbav:"sessionId"`
	UserID        string        `dynamodbav:"userId,omitempty"`
	GuestName     string        `dynamodbav:"guestName,omitempty"`
	GuestEmail    string        `dynamodbav:"guestEmail,omitempty"`
	Status        SessionStatus `dynamodbav:"status"`
	CreatedAt     string        `dynamodbav:"createdAt"`
	LastMessageAt string        `dynamodbav:"lastMessageAt"`
}

// MessageItem is append-only; only IsRead is ever mutated after creation.
type MessageItem struct {
	PK         string     `dynamodbav:"pk"`
	SessionID  string     `dynamodbav:"sessionId"`
	MessageID  string     `dynamodbav:"messageId"`
	SenderType SenderType `dynamodbav:"senderType"`
	SenderID   string     `dynamodbav:"senderId,omitempty"`
	Body       string     `dynamodbav:"body"`
	IsRead     bool       `dynamodbav:"isRead"`
	CreatedAt  string     `dynamodbav:"createdAt"`
}
