package model

const (
	UsersTable        = "Users"
	ChatSessionsTable = "ChatSessions"
	ChatMessagesTable = "ChatMessages"
)

type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleAdmin    UserRole = "admin"
)

type UserItem struct {
	UserID       string   `dynamodbav:"userId"`
	Email        string   `dynamodbav:"email"`
	Name         string   `dynamodbav:"name"`
	Role         UserRole `dynamodbav:"role"`
	Status       string   `dynamodbav:"status"`
	PasswordHash string   `dynamodbav:"passwordHash"`
	CreatedAt    string   `dynamodbav:"createdAt"`
}
