package auth

import (
	"context"
	"errors"
	"strings"

	"repairshop-backend/internal/database"
	"repairshop-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrNotFound = errors.New("auth repository: not found")

type Repository interface {
	CreateUser(ctx context.Context, user model.UserItem) error
	GetUser(ctx context.Context, userID string) (model.UserItem, error)
	FindUserByEmail(ctx context.Context, email string) (model.UserItem, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) CreateUser(ctx context.Context, user model.UserItem) error {
	return r.db.Client.PutItem(ctx, model.UsersTable, user)
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
		if isNotFoundError(err) {
			return model.UserItem{}, ErrNotFound
		}
		return model.UserItem{}, err
	}

	return user, nil
}

func (r *DynamoRepository) FindUserByEmail(ctx context.Context, email string) (model.UserItem, error) {
	items, err := r.db.Client.QueryItems(
		ctx,
		model.UsersTable,
		aws.String("byEmail"),
		"email = :email",
		map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		},
		nil,
		nil,
	)
	if err != nil && !isIndexNotFound(err) {
		return model.UserItem{}, err
	}

	if (err != nil && isIndexNotFound(err)) || items == nil {
		items, err = r.db.Client.ScanItems(
			ctx,
			model.UsersTable,
			"email = :email",
			map[string]types.AttributeValue{
				":email": &types.AttributeValueMemberS{Value: email},
			},
			nil,
		)
		if err != nil {
			return model.UserItem{}, err
		}
	}

	if len(items) == 0 {
		return model.UserItem{}, ErrNotFound
	}

	var user model.UserItem
	if err := attributevalue.UnmarshalMap(items[0], &user); err != nil {
		return model.UserItem{}, err
	}

	return user, nil
}

func isNotFoundError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "item not found")
}

func isIndexNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "index") && strings.Contains(msg, "not") && strings.Contains(msg, "found")
}
