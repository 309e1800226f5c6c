package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"repairshop-backend/internal/database"
	"repairshop-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrNotFound = errors.New("chat repository: not found")

type Repository interface {
	GetUser(ctx context.Context, userID string) (model.UserItem, error)
	CreateSession(ctx context.Context, session model.SessionItem) error
	GetSession(ctx context.Context, sessionID string) (model.SessionItem, error)
	ListSessions(ctx context.Context) ([]model.SessionItem, error)
	ListSessionsByUser(ctx context.Context, userID string) ([]model.SessionItem, error)
	UpdateSessionActivity(ctx context.Context, sessionID, lastMessageAt string) error
	UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error
	DeleteSession(ctx context.Context, sessionID string) error
	CreateMessage(ctx context.Context, message model.MessageItem) error
	ListMessages(ctx context.Context, sessionID string) ([]model.MessageItem, error)
	MarkCustomerMessagesRead(ctx context.Context, sessionID string) error
	DeleteSessionMessages(ctx context.Context, sessionID string) error
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) GetUser(ctx context.Context, userID string) (model.UserItem, error) {
	var user model.UserItem
	err := r.db.Client.GetItem(
		ctx,
		model.UsersTable,
		map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: userID},
		},
		&user,
	)
	if err != nil {
		if isNotFound(err) {
			return model.UserItem{}, ErrNotFound
		}
		return model.UserItem{}, err
	}
	return user, nil
}

func (r *DynamoRepository) CreateSession(ctx context.Context, session model.SessionItem) error {
	return r.db.Client.PutItem(ctx, model.ChatSessionsTable, session)
}

func (r *DynamoRepository) GetSession(ctx context.Context, sessionID string) (model.SessionItem, error) {
	var session model.SessionItem
	err := r.db.Client.GetItem(
		ctx,
		model.ChatSessionsTable,
		map[string]types.AttributeValue{
			"sessionId": &types.AttributeValueMemberS{Value: sessionID},
		},
		&session,
	)
	if err != nil {
		if isNotFound(err) {
			return model.SessionItem{}, ErrNotFound
		}
		return model.SessionItem{}, err
	}
	return session, nil
}

func (r *DynamoRepository) ListSessions(ctx context.Context) ([]model.SessionItem, error) {
	items, err := r.db.Client.ScanAll(ctx, model.ChatSessionsTable)
	if err != nil {
		return nil, err
	}

	sessions := make([]model.SessionItem, 0, len(items))
	for _, item := range items {
		var session model.SessionItem
		if err := attributevalue.UnmarshalMap(item, &session); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	sortSessionsByActivity(sessions)
	return sessions, nil
}

func (r *DynamoRepository) ListSessionsByUser(ctx context.Context, userID string) ([]model.SessionItem, error) {
	items, err := r.db.Client.QueryAll(
		ctx,
		model.ChatSessionsTable,
		aws.String("byUser"),
		"userId = :userId",
		map[string]types.AttributeValue{
			":userId": &types.AttributeValueMemberS{Value: userID},
		},
	)
	if err != nil && !isIndexNotFound(err) {
		return nil, err
	}

	if (err != nil && isIndexNotFound(err)) || items == nil {
		items, err = r.db.Client.ScanItems(
			ctx,
			model.ChatSessionsTable,
			"userId = :userId",
			map[string]types.AttributeValue{
				":userId": &types.AttributeValueMemberS{Value: userID},
			},
			nil,
		)
		if err != nil {
			return nil, err
		}
	}

	sessions := make([]model.SessionItem, 0, len(items))
	for _, item := range items {
		var session model.SessionItem
		if err := attributevalue.UnmarshalMap(item, &session); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	sortSessionsByActivity(sessions)
	return sessions, nil
}

func (r *DynamoRepository) UpdateSessionActivity(ctx context.Context, sessionID, lastMessageAt string) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.ChatSessionsTable,
		map[string]types.AttributeValue{
			"sessionId": &types.AttributeValueMemberS{Value: sessionID},
		},
		"SET #lastMessageAt = :lastMessageAt",
		map[string]types.AttributeValue{
			":lastMessageAt": &types.AttributeValueMemberS{Value: lastMessageAt},
		},
		map[string]string{
			"#lastMessageAt": "lastMessageAt",
		},
		nil,
	)
}

func (r *DynamoRepository) UpdateSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	return r.db.Client.UpdateItem(
		ctx,
		model.ChatSessionsTable,
		map[string]types.AttributeValue{
			"sessionId": &types.AttributeValueMemberS{Value: sessionID},
		},
		"SET #status = :status",
		map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
		map[string]string{
			"#status": "status",
		},
		nil,
	)
}

func (r *DynamoRepository) DeleteSession(ctx context.Context, sessionID string) error {
	return r.db.Client.DeleteItem(
		ctx,
		model.ChatSessionsTable,
		map[string]types.AttributeValue{
			"sessionId": &types.AttributeValueMemberS{Value: sessionID},
		},
	)
}

func (r *DynamoRepository) CreateMessage(ctx context.Context, message model.MessageItem) error {
	return r.db.Client.PutItem(ctx, model.ChatMessagesTable, message)
}

func (r *DynamoRepository) ListMessages(ctx context.Context, sessionID string) ([]model.MessageItem, error) {
	items, err := r.querySessionMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	messages := make([]model.MessageItem, 0, len(items))
	for _, item := range items {
		var message model.MessageItem
		if err := attributevalue.UnmarshalMap(item, &message); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	sort.Slice(messages, func(i, j int) bool {
		ti := parseTime(messages[i].CreatedAt)
		tj := parseTime(messages[j].CreatedAt)
		return ti.Before(tj)
	})

	return messages, nil
}

func (r *DynamoRepository) MarkCustomerMessagesRead(ctx context.Context, sessionID string) error {
	items, err := r.db.Client.QueryItemsWithFilter(
		ctx,
		model.ChatMessagesTable,
		aws.String("bySession"),
		"sessionId = :sessionId",
		aws.String("senderType = :senderType AND isRead = :isRead"),
		map[string]types.AttributeValue{
			":sessionId":  &types.AttributeValueMemberS{Value: sessionID},
			":senderType": &types.AttributeValueMemberS{Value: string(model.SenderTypeCustomer)},
			":isRead":     &types.AttributeValueMemberBOOL{Value: false},
		},
		nil,
	)
	if err != nil {
		if !isIndexNotFound(err) {
			return err
		}
		items, err = r.querySessionMessages(ctx, sessionID)
		if err != nil {
			return err
		}
	}

	for _, item := range items {
		var message model.MessageItem
		if err := attributevalue.UnmarshalMap(item, &message); err != nil {
			return err
		}
		if message.SenderType != model.SenderTypeCustomer || message.IsRead {
			continue
		}

		err := r.db.Client.UpdateItem(
			ctx,
			model.ChatMessagesTable,
			map[string]types.AttributeValue{
				"pk": &types.AttributeValueMemberS{Value: message.PK},
			},
			"SET #isRead = :isRead",
			map[string]types.AttributeValue{
				":isRead": &types.AttributeValueMemberBOOL{Value: true},
			},
			map[string]string{
				"#isRead": "isRead",
			},
			nil,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *DynamoRepository) DeleteSessionMessages(ctx context.Context, sessionID string) error {
	items, err := r.querySessionMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	keys := make([]map[string]types.AttributeValue, 0, len(items))
	for _, item := range items {
		var message model.MessageItem
		if err := attributevalue.UnmarshalMap(item, &message); err != nil {
			return err
		}
		keys = append(keys, map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: message.PK},
		})
	}

	return r.db.Client.BatchDeleteItems(ctx, model.ChatMessagesTable, keys)
}

func (r *DynamoRepository) querySessionMessages(ctx context.Context, sessionID string) ([]map[string]types.AttributeValue, error) {
	scanForward := true
	items, err := r.db.Client.QueryItems(
		ctx,
		model.ChatMessagesTable,
		aws.String("bySession"),
		"sessionId = :sessionId",
		map[string]types.AttributeValue{
			":sessionId": &types.AttributeValueMemberS{Value: sessionID},
		},
		nil,
		&scanForward,
	)
	if err != nil && !isIndexNotFound(err) {
		return nil, err
	}

	if (err != nil && isIndexNotFound(err)) || items == nil {
		items, err = r.db.Client.ScanItems(
			ctx,
			model.ChatMessagesTable,
			"sessionId = :sessionId",
			map[string]types.AttributeValue{
				":sessionId": &types.AttributeValueMemberS{Value: sessionID},
			},
			nil,
		)
		if err != nil {
			return nil, err
		}
	}

	return items, nil
}

func sortSessionsByActivity(sessions []model.SessionItem) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastMessageAt > sessions[j].LastMessageAt
	})
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "item not found")
}

func isIndexNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "index") && strings.Contains(msg, "not") && strings.Contains(msg, "found")
}

func parseTime(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
