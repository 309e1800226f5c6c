package dto

type SessionResponse struct {
	SessionID     string `json:"sessionId"`
	UserID        string `json:"userId,omitempty"`
	GuestName     string `json:"guestName,omitempty"`
	GuestEmail    string `json:"guestEmail,omitempty"`
	Status        string `json:"status"`
	CreatedAt     string `json:"createdAt"`
	LastMessageAt string `json:"lastMessageAt"`
}

type ChatMessageResponse struct {
	MessageID  string `json:"messageId"`
	SessionID  string `json:"sessionId"`
	SenderType string `json:"senderType"`
	SenderID   string `json:"senderId,omitempty"`
	Body       string `json:"body"`
	IsRead     bool   `json:"isRead"`
	CreatedAt  string `json:"createdAt"`
}

type ResolveSessionRequest struct {
	GuestName  string `json:"guestName,omitempty"`
	GuestEmail string `json:"guestEmail,omitempty"`
}

type ResolveSessionResponse struct {
	Session   SessionResponse `json:"session"`
	ChatToken string          `json:"chatToken"`
	Reused    bool            `json:"reused"`
}

type SendMessageRequest struct {
	Body string `json:"body"`
}

type SendMessageResponse struct {
	Message ChatMessageResponse `json:"message"`
}

type SessionSummaryResponse struct {
	Session            SessionResponse `json:"session"`
	UnreadCount        int             `json:"unreadCount"`
	LastMessageSnippet string          `json:"lastMessageSnippet,omitempty"`
}

type ListSessionsResponse struct {
	Sessions []SessionSummaryResponse `json:"sessions"`
}

type ListChatMessagesResponse struct {
	Messages []ChatMessageResponse `json:"messages"`
}

type MarkReadResponse struct {
	Success bool `json:"success"`
}

type DeleteSessionResponse struct {
	Success bool `json:"success"`
}
